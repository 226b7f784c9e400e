package place

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/oranjParker/Pawmap/internal/scraper"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultSearchEndpoint = "https://svc-api.map.naver.com/v1/fusion-search/all"
	DefaultSearchReferer  = "https://m.map.naver.com/"
	searchFanout          = 4
)

// Record keys contributed by the search stage.
const (
	KeyName         = "name"
	KeyTel          = "tel"
	KeyAddress      = "address"
	KeyRoadAddress  = "road_address"
	KeyLat          = "lat"
	KeyLng          = "lng"
	KeyThumbnailURL = "thumbnail_url"
	KeyCategory     = "category"
)

// SearchClient queries the map search API for location and keyword pairs.
// The getter is expected to send the user agent and Referer the API wants.
type SearchClient struct {
	Getter   scraper.Getter
	Endpoint string
	Limiter  *rate.Limiter
	Policy   core.RetryPolicy
	logger   *zap.Logger
}

func NewSearchClient(getter scraper.Getter, endpoint string, qps float64, policy core.RetryPolicy, logger *zap.Logger) *SearchClient {
	if endpoint == "" {
		endpoint = DefaultSearchEndpoint
	}
	limit := rate.Inf
	if qps > 0 {
		limit = rate.Limit(qps)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchClient{
		Getter:   getter,
		Endpoint: endpoint,
		Limiter:  rate.NewLimiter(limit, 1),
		Policy:   policy,
		logger:   logger.Named("search"),
	}
}

// Search runs one query per keyword and returns the places whose address
// contains location, deduplicated by id with the first occurrence kept.
// A failing keyword is logged and skipped.
func (c *SearchClient) Search(ctx context.Context, location string, keywords []string) ([]core.Record, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, core.ErrNoLocation
	}

	perKeyword := make([][]map[string]any, len(keywords))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searchFanout)
	for i, kw := range keywords {
		g.Go(func() error {
			items, err := c.query(gctx, location, kw)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.logger.Error("search query failed",
					zap.String("location", location),
					zap.String("keyword", kw),
					zap.Error(err),
				)
				return nil
			}
			perKeyword[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "search")
	}

	var out []core.Record
	seen := make(map[string]bool)
	for _, items := range perKeyword {
		for _, item := range items {
			id := str(item["id"])
			if id == "" || seen[id] {
				continue
			}
			if !strings.Contains(str(item["address"]), location) {
				continue
			}
			seen[id] = true
			out = append(out, projectItem(id, item))
		}
	}

	c.logger.Info("search finished",
		zap.String("location", location),
		zap.Int("keywords", len(keywords)),
		zap.Int("places", len(out)),
	)
	return out, nil
}

func (c *SearchClient) query(ctx context.Context, location, keyword string) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("query", location+"+"+keyword)
	params.Set("siteSort", "relativity")
	params.Set("petrolType", "all")
	target := c.Endpoint + "?" + params.Encode()

	var items []map[string]any
	err := c.Policy.Do(ctx, func(ctx context.Context, _ int) error {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
		page, err := c.Getter.Get(ctx, target)
		if err != nil {
			return err
		}

		var resp struct {
			Items []map[string]any `json:"items"`
		}
		dec := json.NewDecoder(bytes.NewReader(page.Body))
		dec.UseNumber()
		if err := dec.Decode(&resp); err != nil {
			return eris.Wrapf(err, "decode search response for %q", keyword)
		}
		items = resp.Items
		return nil
	})
	return items, err
}

func projectItem(id string, item map[string]any) core.Record {
	return core.Record{
		core.KeyID:      id,
		KeyName:         str(item["name"]),
		KeyTel:          str(item["tel"]),
		KeyAddress:      str(item["address"]),
		KeyRoadAddress:  str(item["roadAddress"]),
		KeyLat:          str(item["latitude"]),
		KeyLng:          str(item["longitude"]),
		KeyThumbnailURL: str(item["thumbUrl"]),
		KeyCategory:     categories(item["category"]),
	}
}

func categories(v any) []string {
	switch c := v.(type) {
	case []any:
		return strs(c)
	case string:
		if c == "" {
			return []string{}
		}
		return []string{c}
	}
	return []string{}
}
