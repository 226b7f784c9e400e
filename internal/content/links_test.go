package content

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/oranjParker/Pawmap/internal/fetch"
)

func testFetcher() *fetch.Fetcher {
	return fetch.New(fetch.Options{UserAgent: "PawmapTest/1.0", AllowInternal: true})
}

func TestValidLink(t *testing.T) {
	base := "https://example.com"
	tests := []struct {
		link string
		want bool
	}{
		{"https://example.com/menu", true},
		{"https://www.example.com/about", true},
		{"https://example.com/board/123", false},
		{"https://example.com/notice/123", false},
		{"https://example.com/소개", false},
		{"https://other.com/menu", false},
		{"https://example.com/shop/list", false},
		{"https://example.com/PRIVACY", false},
		{"mailto:owner@example.com", false},
		{"javascript:void(0)", false},
		{"ftp://example.com/menu", false},
	}
	for _, tt := range tests {
		if got := ValidLink(tt.link, base); got != tt.want {
			t.Errorf("ValidLink(%q) = %v, want %v", tt.link, got, tt.want)
		}
	}
}

func TestLinkExtractor_Extract(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<html><body>
				<a href="/menu">메뉴</a>
				<a href="/menu/">메뉴 다시</a>
				<a href="/price#top">가격</a>
				<a href="/board/123">게시판</a>
				<a href="/contact">문의하기</a>
				<a href="https://other.com/menu">외부</a>
				<a href="#top">위로</a>
				<a href="javascript:void(0)">js</a>
			</body></html>`)
		case "/server-redirect":
			http.Redirect(w, r, "/", http.StatusMovedPermanently)
		case "/meta-redirect":
			fmt.Fprint(w, `<html><head><meta http-equiv="Refresh" content="0; url='/'"></head></html>`)
		case "/loop-a":
			http.Redirect(w, r, "/loop-b", http.StatusFound)
		case "/loop-b":
			http.Redirect(w, r, "/loop-a", http.StatusFound)
		case "/hop1":
			http.Redirect(w, r, "/hop2", http.StatusFound)
		case "/hop2":
			http.Redirect(w, r, "/hop3", http.StatusFound)
		case "/hop3":
			http.Redirect(w, r, "/", http.StatusFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	ctx := context.Background()
	e := NewLinkExtractor(testFetcher(), 2, nil)
	wantRoot := []string{ts.URL, ts.URL + "/menu", ts.URL + "/price"}

	t.Run("Filters Links", func(t *testing.T) {
		got, err := e.Extract(ctx, ts.URL+"/")
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, wantRoot) {
			t.Errorf("Extract() = %v, want %v", got, wantRoot)
		}
	})

	t.Run("Follows Server Redirect", func(t *testing.T) {
		got, err := e.Extract(ctx, ts.URL+"/server-redirect")
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, wantRoot) {
			t.Errorf("Extract() = %v, want %v", got, wantRoot)
		}
	})

	t.Run("Follows Meta Refresh", func(t *testing.T) {
		got, err := e.Extract(ctx, ts.URL+"/meta-redirect")
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, wantRoot) {
			t.Errorf("Extract() = %v, want %v", got, wantRoot)
		}
	})

	t.Run("Redirect Cycle Terminates", func(t *testing.T) {
		got, err := e.Extract(ctx, ts.URL+"/loop-a")
		if err != nil {
			t.Fatal(err)
		}
		// the cycle is cut at loop-b; its redirect body still links back to loop-a
		if !reflect.DeepEqual(got, []string{ts.URL + "/loop-a", ts.URL + "/loop-b"}) {
			t.Errorf("Extract() = %v", got)
		}
	})

	t.Run("Hop Limit", func(t *testing.T) {
		got, err := e.Extract(ctx, ts.URL+"/hop1")
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, []string{ts.URL, ts.URL + "/hop3"}) {
			t.Errorf("expected to stop at hop3, got %v", got)
		}
	})

	t.Run("Fetch Error", func(t *testing.T) {
		if _, err := e.Extract(ctx, ts.URL+"/missing"); err == nil {
			t.Error("expected error for 404 seed")
		}
	})
}
