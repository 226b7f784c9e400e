package place

import (
	"context"
	"fmt"
	"time"

	"github.com/oranjParker/Pawmap/internal/cache"
	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/oranjParker/Pawmap/internal/fetch"
	"github.com/oranjParker/Pawmap/internal/scraper"
	"go.uber.org/zap"
)

const (
	DefaultDetailURL = "https://m.place.naver.com/place/%s/home"
	htmlCachePrefix  = "place:html:"
)

// DetailScraper is the detail stage: it reads each place page, extracts the
// embedded state and parses it. Raw pages are cached so a rerun for the same
// location does not hit the site again.
type DetailScraper struct {
	Batch     *scraper.Batch[*Detail]
	Cache     cache.Cache
	URLFormat string
	TTL       time.Duration
	logger    *zap.Logger
}

func NewDetailScraper(batch *scraper.Batch[*Detail], c cache.Cache, urlFormat string, ttl time.Duration, logger *zap.Logger) *DetailScraper {
	if urlFormat == "" {
		urlFormat = DefaultDetailURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetailScraper{
		Batch:     batch,
		Cache:     c,
		URLFormat: urlFormat,
		TTL:       ttl,
		logger:    logger.Named("detail"),
	}
}

func (s *DetailScraper) Name() string { return "detail" }

func (s *DetailScraper) Run(ctx context.Context, records []core.Record) ([]core.Record, error) {
	idByURL := make(map[string]string, len(records))
	var urls []string
	var out []core.Record

	for _, r := range records {
		id := r.ID()
		if id == "" {
			continue
		}
		if d, ok := s.cached(ctx, id); ok {
			out = append(out, d.Record())
			continue
		}
		u := fmt.Sprintf(s.URLFormat, id)
		if _, dup := idByURL[u]; dup {
			continue
		}
		idByURL[u] = id
		urls = append(urls, u)
	}

	s.logger.Info("scraping place details", zap.Int("places", len(idByURL)), zap.Int("cached", len(out)))

	details := s.Batch.Run(ctx, urls, func(page *fetch.Page) (*Detail, error) {
		id := idByURL[page.URL]
		d, err := parseDetail(page.Body, id)
		if err != nil {
			return nil, err
		}
		if s.Cache != nil && id != "" {
			if err := s.Cache.Set(ctx, htmlCachePrefix+id, string(page.Body), s.TTL); err != nil {
				s.logger.Debug("cache write failed", zap.String("id", id), zap.Error(err))
			}
		}
		return d, nil
	})
	for _, d := range details {
		out = append(out, d.Record())
	}
	return out, ctx.Err()
}

func (s *DetailScraper) cached(ctx context.Context, id string) (*Detail, bool) {
	if s.Cache == nil {
		return nil, false
	}
	body, ok, err := s.Cache.Get(ctx, htmlCachePrefix+id)
	if err != nil || !ok {
		return nil, false
	}
	d, err := parseDetail([]byte(body), id)
	if err != nil {
		s.logger.Debug("cached page unusable", zap.String("id", id), zap.Error(err))
		return nil, false
	}
	return d, true
}

func parseDetail(body []byte, id string) (*Detail, error) {
	state, err := ExtractState(body, StateVariable)
	if err != nil {
		return nil, err
	}
	d, err := Parse(state)
	if err != nil {
		return nil, err
	}
	// the record must merge back onto the searched id
	if id != "" {
		d.ID = id
		d.MapLink = fmt.Sprintf(MapURL, id)
	}
	return d, nil
}
