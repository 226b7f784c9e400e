package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oranjParker/Pawmap/internal/core"
)

func newTestFetcher() *Fetcher {
	return New(Options{UserAgent: "PawmapTest/1.0", AllowInternal: true})
}

func TestFetcher_Get(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(r.Header.Get("User-Agent") + "|" + r.Header.Get("Referer")))
		case "/moved":
			http.Redirect(w, r, "/ok", http.StatusFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	ctx := context.Background()

	t.Run("Sends User Agent And Headers", func(t *testing.T) {
		f := newTestFetcher()
		f.Header = http.Header{"Referer": []string{"https://m.map.naver.com/"}}
		page, err := f.Get(ctx, ts.URL+"/ok")
		if err != nil {
			t.Fatal(err)
		}
		if string(page.Body) != "PawmapTest/1.0|https://m.map.naver.com/" {
			t.Errorf("unexpected body %q", page.Body)
		}
	})

	t.Run("Non 2xx Is Error", func(t *testing.T) {
		_, err := newTestFetcher().Get(ctx, ts.URL+"/missing")
		if !errors.Is(err, core.ErrHTTPStatus) {
			t.Errorf("expected ErrHTTPStatus, got %v", err)
		}
	})

	t.Run("Redirect Returned As Page", func(t *testing.T) {
		page, err := newTestFetcher().Get(ctx, ts.URL+"/moved")
		if err != nil {
			t.Fatal(err)
		}
		if !page.Redirect() || page.Header.Get("Location") != "/ok" {
			t.Errorf("expected redirect page, got status %d", page.StatusCode)
		}
	})

	t.Run("Invalid URL", func(t *testing.T) {
		_, err := newTestFetcher().Get(ctx, "not a url")
		if !errors.Is(err, core.ErrInvalidURL) {
			t.Errorf("expected permanent error for invalid url, got %v", err)
		}
	})

	t.Run("Body Is Capped", func(t *testing.T) {
		big := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(make([]byte, 4096))
		}))
		defer big.Close()

		f := newTestFetcher()
		f.MaxBody = 100
		page, err := f.Get(ctx, big.URL)
		if err != nil {
			t.Fatal(err)
		}
		if len(page.Body) != 100 {
			t.Errorf("expected 100 bytes, got %d", len(page.Body))
		}
	})
}
