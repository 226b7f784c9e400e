package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/oranjParker/Pawmap/internal/config"
	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/oranjParker/Pawmap/internal/enrich"
	"github.com/oranjParker/Pawmap/internal/fetch"
	"github.com/oranjParker/Pawmap/internal/llm_provider"
	"github.com/oranjParker/Pawmap/internal/place"
	"github.com/oranjParker/Pawmap/internal/scraper"
	"github.com/oranjParker/Pawmap/internal/sink"
)

const detailPage = `<html><head><script>
window.__APOLLO_STATE__ = {
	"ROOT_QUERY": {"placeDetail({\"input\":{\"id\":\"2\"}})": {"__ref": "PlaceDetail:2"}},
	"PlaceDetail:2": {
		"base": {"__ref": "PlaceDetailBase:2"},
		"menus": [{"__ref": "Menu:2_0"}]
	},
	"PlaceDetailBase:2": {"id": "2", "name": "멍멍유치원"},
	"Menu:2_0": {"name": "종일반", "price": "35000"}
};
</script></head><body></body></html>`

// placeServer answers the search with places 1 and 2; only 2 has a readable
// detail page.
func placeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items": [
			{"id": "1", "name": "고장난 유치원", "address": "서울 마포구 1"},
			{"id": "2", "name": "멍멍유치원", "tel": "02-222", "address": "서울 마포구 2", "roadAddress": "서울 마포구 월드컵로 2", "latitude": "37.55", "longitude": "126.91"}
		]}`)
	})
	mux.HandleFunc("/place/1/home", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/place/2/home", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detailPage)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func testPolicy() core.RetryPolicy {
	return core.RetryPolicy{
		MaxRetries: 1,
		Backoff:    core.Constant(time.Millisecond),
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}
}

func readOutput(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var out []map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

// =========================================================================
// APP RUN
// =========================================================================

func TestApp_Run(t *testing.T) {
	ts := placeServer(t)
	f := fetch.New(fetch.Options{AllowInternal: true, FollowRedirects: true})
	mock := &llm_provider.MockProvider{}
	dir := t.TempDir()

	a := New(nil)
	a.Keywords = []string{"강아지 유치원"}
	a.Searcher = place.NewSearchClient(f, ts.URL+"/search", 0, testPolicy(), nil)
	a.Detail = place.NewDetailScraper(
		scraper.NewBatch[*place.Detail]("detail", f, 2, testPolicy(), nil),
		nil, ts.URL+"/place/%s/home", time.Hour, nil,
	)
	a.LLM = enrich.NewDirect(mock, &enrich.Builder{Model: "test", System: []string{"extract"}}, nil, 2, testPolicy(), nil)
	a.Writer = &sink.JSONWriter{Dir: dir}

	res, err := a.Run(context.Background(), "마포구")
	if err != nil {
		t.Fatal(err)
	}
	if res.RunID == "" {
		t.Error("run id should be set")
	}
	if res.Path != filepath.Join(dir, "마포구.json") {
		t.Errorf("path = %s", res.Path)
	}

	out := readOutput(t, res.Path)
	if len(out) != 1 {
		t.Fatalf("expected only place 2, got %v", out)
	}
	got := out[0]
	if got["id"] != "2" || got["name"] != "멍멍유치원" || got["road_address"] != "서울 마포구 월드컵로 2" {
		t.Errorf("search fields = %v", got)
	}
	if !reflect.DeepEqual(got["categories"], []any{"유치원", "호텔"}) {
		t.Errorf("categories = %v", got["categories"])
	}
	if _, ok := got[place.KeyMapLink]; ok {
		t.Error("map_link is not an output column")
	}
	for k := range got {
		found := false
		for _, want := range OutputKeys {
			found = found || k == want
		}
		if !found {
			t.Errorf("unexpected output key %q", k)
		}
	}

	if len(mock.Requests) != 1 {
		t.Errorf("LLM should only see place 2, got %d requests", len(mock.Requests))
	}
}

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, string, []string) ([]core.Record, error) {
	return nil, errors.New("search down")
}

func TestApp_Run_SearchFailure(t *testing.T) {
	a := New(nil)
	a.Searcher = failingSearcher{}
	a.Writer = &sink.JSONWriter{Dir: t.TempDir()}
	if _, err := a.Run(context.Background(), "마포구"); err == nil {
		t.Fatal("expected search error")
	}
}

type memSink struct {
	got    []core.Record
	closed bool
}

func (m *memSink) Write(_ context.Context, r core.Record) error {
	m.got = append(m.got, r)
	return nil
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}

func TestApp_Run_Sinks(t *testing.T) {
	ts := placeServer(t)
	f := fetch.New(fetch.Options{AllowInternal: true})

	a := New(nil)
	a.Keywords = []string{"강아지 유치원"}
	a.Searcher = place.NewSearchClient(f, ts.URL+"/search", 0, testPolicy(), nil)
	a.Writer = &sink.JSONWriter{Dir: t.TempDir()}

	s := &memSink{}
	var locations []string
	a.Sinks = []SinkFactory{
		func(location string) (core.Sink[core.Record], error) {
			locations = append(locations, location)
			return s, nil
		},
		func(string) (core.Sink[core.Record], error) {
			return nil, errors.New("broker down")
		},
	}

	res, err := a.Run(context.Background(), "마포구")
	if err != nil {
		t.Fatalf("sink failures must not fail the run: %v", err)
	}
	// no detail stage, so nothing is filtered
	if len(res.Records) != 2 || len(s.got) != 2 || !s.closed {
		t.Errorf("records = %d, sink got %d, closed %v", len(res.Records), len(s.got), s.closed)
	}
	if !reflect.DeepEqual(locations, []string{"마포구"}) {
		t.Errorf("sink opened for %v", locations)
	}
}

func TestProject(t *testing.T) {
	in := []core.Record{{"id": "1", "name": "a", "map_link": "x", "description": "d"}}
	got := Project(in)
	if !reflect.DeepEqual(got, []core.Record{{"id": "1", "name": "a"}}) {
		t.Errorf("Project() = %v", got)
	}
	if _, ok := in[0]["map_link"]; !ok {
		t.Error("Project must not modify its input")
	}
}

// =========================================================================
// WIRING
// =========================================================================

func TestBuild(t *testing.T) {
	ts := placeServer(t)
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	cfgPath := filepath.Join(dir, "pawmap.yaml")
	yaml := fmt.Sprintf(`
search:
  endpoint: %[1]s/search
  keywords: ["강아지 유치원"]
  queries_per_sec: 0
scraper:
  detail_url: %[1]s/place/%%s/home
  allow_internal: true
  max_retries: 1
  base_delay: 1ms
content:
  enabled: false
llm:
  mode: direct
  provider: mock
  work_dir: %[2]s/batch
output:
  dir: %[2]s/out
images:
  temp_dir: %[2]s/temp
`, ts.URL, dir)
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REDIS_URL", "redis://"+mr.Addr())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("NATS_URL", "")
	t.Setenv("AWS_S3_BUCKET", "")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	a, res, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()

	if a.Content != nil || a.Images != nil || len(a.Sinks) != 0 {
		t.Error("disabled parts should stay unwired")
	}
	if _, ok := a.LLM.(*enrich.Direct); !ok {
		t.Errorf("llm stage = %T, want direct", a.LLM)
	}

	result, err := a.Run(context.Background(), "마포구")
	if err != nil {
		t.Fatal(err)
	}
	out := readOutput(t, result.Path)
	if len(out) != 1 || out[0]["id"] != "2" {
		t.Fatalf("output = %v", out)
	}
	if !mr.Exists("pawmap:place:html:2") {
		t.Error("detail page should be cached in redis")
	}
}

func TestBuild_BatchMode(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "llm:\n  mode: batch\n"))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Cache.RedisURL = ""
	cfg.S3.Bucket = ""
	cfg.Sinks = config.SinksConfig{}

	a, res, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()
	if _, ok := a.LLM.(*enrich.Runner); !ok {
		t.Errorf("llm stage = %T, want batch runner", a.LLM)
	}
	if _, ok := a.Writer.(*sink.JSONWriter); !ok {
		t.Errorf("writer = %T", a.Writer)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pawmap.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
