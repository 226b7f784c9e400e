package place

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/oranjParker/Pawmap/internal/cache"
	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/oranjParker/Pawmap/internal/fetch"
	"github.com/oranjParker/Pawmap/internal/scraper"
	"github.com/redis/go-redis/v9"
)

func testPolicy() core.RetryPolicy {
	return core.RetryPolicy{
		MaxRetries: 2,
		Backoff:    core.Constant(time.Millisecond),
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}
}

func testFetcher(header http.Header) *fetch.Fetcher {
	return fetch.New(fetch.Options{UserAgent: "PawmapTest/1.0", AllowInternal: true, Header: header})
}

// =========================================================================
// DETAIL STAGE TESTS
// =========================================================================

func TestDetailScraper_Run(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		switch r.URL.Path {
		case "/place/1/home":
			w.WriteHeader(http.StatusInternalServerError)
		case "/place/2/home":
			fmt.Fprint(w, fixturePage(fixtureState))
		case "/place/3/home":
			fmt.Fprint(w, `<html><body>captcha</body></html>`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	c := cache.NewRedis(rdb, "")

	batch := scraper.NewBatch[*Detail]("detail-test", testFetcher(nil), 3, testPolicy(), nil)
	s := NewDetailScraper(batch, c, ts.URL+"/place/%s/home", time.Hour, nil)

	records := []core.Record{{"id": "1"}, {"id": "2"}, {"id": "3"}, {"name": "no id"}}
	got, err := s.Run(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected only place 2, got %v", got)
	}

	r := got[0]
	if r.ID() != "2" {
		t.Errorf("detail must carry the searched id, got %q", r.ID())
	}
	if r[KeyMapLink] != "https://map.naver.com/p/entry/place/2" {
		t.Errorf("map link = %v", r[KeyMapLink])
	}
	if menus, _ := r[KeyMenus].([]Menu); len(menus) != 3 {
		t.Errorf("menus = %v", r[KeyMenus])
	}
	if !mr.Exists("place:html:2") {
		t.Error("parsed page should be cached")
	}
	if mr.Exists("place:html:1") || mr.Exists("place:html:3") {
		t.Error("failed pages must not be cached")
	}

	// id 1 is retried twice; the stateless page 3 is fetched once like id 2
	if n := atomic.LoadInt32(&hits); n != 5 {
		t.Errorf("expected 5 requests, got %d", n)
	}

	t.Run("Cache Hit Skips Fetch", func(t *testing.T) {
		before := atomic.LoadInt32(&hits)
		got, err := s.Run(context.Background(), []core.Record{{"id": "2"}})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].ID() != "2" {
			t.Fatalf("unexpected %v", got)
		}
		if atomic.LoadInt32(&hits) != before {
			t.Error("cached place was fetched again")
		}
	})
}

// =========================================================================
// SEARCH TESTS
// =========================================================================

func TestSearchClient_Search(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	var referers []string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		mu.Lock()
		queries = append(queries, q.Get("query"))
		referers = append(referers, r.Header.Get("Referer"))
		mu.Unlock()

		if q.Get("siteSort") != "relativity" || q.Get("petrolType") != "all" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch q.Get("query") {
		case "서초구+강아지 유치원":
			fmt.Fprint(w, `{"items": [
				{"id": "11", "name": "해피독", "tel": "02-111", "address": "서울 서초구 서초동 1", "roadAddress": "서울 서초구 서초대로 1", "latitude": "37.49", "longitude": "127.01", "thumbUrl": "https://img.example.com/t11.jpg", "category": ["애견유치원"]},
				{"id": 12, "name": "강남독", "address": "서울 강남구 역삼동 2"}
			]}`)
		case "서초구+강아지 호텔":
			fmt.Fprint(w, `{"items": [
				{"id": "11", "name": "해피독 중복", "address": "서울 서초구 서초동 1"},
				{"id": "13", "name": "멍멍호텔", "address": "서울 서초구 방배동 3", "category": "애견호텔"}
			]}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer ts.Close()

	header := http.Header{}
	header.Set("Referer", DefaultSearchReferer)
	c := NewSearchClient(testFetcher(header), ts.URL, 0, testPolicy(), nil)

	got, err := c.Search(context.Background(), " 서초구 ", []string{"강아지 유치원", "강아지 호텔", "고장난 키워드"})
	if err != nil {
		t.Fatal(err)
	}

	ids := make([]string, 0, len(got))
	for _, r := range got {
		ids = append(ids, r.ID())
	}
	if !reflect.DeepEqual(ids, []string{"11", "13"}) {
		t.Fatalf("ids = %v, want [11 13]", ids)
	}

	first := got[0]
	want := core.Record{
		"id":            "11",
		"name":          "해피독",
		"tel":           "02-111",
		"address":       "서울 서초구 서초동 1",
		"road_address":  "서울 서초구 서초대로 1",
		"lat":           "37.49",
		"lng":           "127.01",
		"thumbnail_url": "https://img.example.com/t11.jpg",
		"category":      []string{"애견유치원"},
	}
	if !reflect.DeepEqual(first, want) {
		t.Errorf("projection = %v\nwant %v", first, want)
	}
	if cat := got[1][KeyCategory]; !reflect.DeepEqual(cat, []string{"애견호텔"}) {
		t.Errorf("string category = %v", cat)
	}

	for _, q := range queries {
		if !strings.HasPrefix(q, "서초구+") {
			t.Errorf("query %q not built as location+keyword", q)
		}
	}
	for _, ref := range referers {
		if ref != DefaultSearchReferer {
			t.Errorf("referer = %q", ref)
		}
	}
}

func TestSearchClient_Query_Encoding(t *testing.T) {
	var raw string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw = r.URL.RawQuery
		fmt.Fprint(w, `{"items": []}`)
	}))
	defer ts.Close()

	c := NewSearchClient(testFetcher(nil), ts.URL, 100, testPolicy(), nil)
	if _, err := c.Search(context.Background(), "강남구", []string{"애견 호텔"}); err != nil {
		t.Fatal(err)
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		t.Fatal(err)
	}
	if q.Get("query") != "강남구+애견 호텔" {
		t.Errorf("query = %q from raw %q", q.Get("query"), raw)
	}
}

func TestSearchClient_EmptyLocation(t *testing.T) {
	c := NewSearchClient(testFetcher(nil), "http://unused.invalid", 0, testPolicy(), nil)
	if _, err := c.Search(context.Background(), "  ", []string{"x"}); err != core.ErrNoLocation {
		t.Errorf("expected ErrNoLocation, got %v", err)
	}
}
