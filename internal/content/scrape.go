package content

import (
	"context"
	"strings"

	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/oranjParker/Pawmap/internal/fetch"
	"github.com/oranjParker/Pawmap/internal/scraper"
	"go.uber.org/zap"
)

const (
	KeyPageContent  = "page_content"
	DefaultMaxPages = 10
)

// Scraper is the homepage stage: for every place it expands the homepage
// links into in-site pages, reads them through the batch scraper and stores
// the merged text under page_content.
type Scraper struct {
	Links    *LinkExtractor
	Batch    *scraper.Batch[[]string]
	Robots   *RobotsGuard
	LinksOf  func(core.Record) []string
	MaxPages int
	logger   *zap.Logger
}

func NewScraper(links *LinkExtractor, batch *scraper.Batch[[]string], robots *RobotsGuard, linksOf func(core.Record) []string, maxPages int, logger *zap.Logger) *Scraper {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		Links:    links,
		Batch:    batch,
		Robots:   robots,
		LinksOf:  linksOf,
		MaxPages: maxPages,
		logger:   logger.Named("content"),
	}
}

func (s *Scraper) Name() string { return "content" }

func (s *Scraper) Run(ctx context.Context, records []core.Record) ([]core.Record, error) {
	out := make([]core.Record, 0, len(records))
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		id := r.ID()
		if id == "" {
			continue
		}
		out = append(out, core.Record{
			core.KeyID:     id,
			KeyPageContent: s.PageContent(ctx, s.LinksOf(r)),
		})
	}
	return out, nil
}

// PageContent returns the deduplicated text of the pages reachable from seeds,
// joined by spaces. It is empty when nothing could be read.
func (s *Scraper) PageContent(ctx context.Context, seeds []string) string {
	var pages []string
	seen := make(map[string]bool)
	for _, seed := range seeds {
		links, err := s.Links.Extract(ctx, seed)
		if err != nil {
			s.logger.Warn("link extraction failed", zap.String("url", seed), zap.Error(err))
			continue
		}
		for _, l := range links {
			if seen[l] || len(pages) >= s.MaxPages {
				continue
			}
			if s.Robots != nil && !s.Robots.Allowed(ctx, l) {
				s.logger.Debug("robots.txt disallows", zap.String("url", l))
				continue
			}
			seen[l] = true
			pages = append(pages, l)
		}
	}
	if len(pages) == 0 {
		return ""
	}

	var texts []string
	for _, t := range s.Batch.Run(ctx, pages, parseTexts) {
		texts = append(texts, t...)
	}
	return strings.Join(RemoveDuplicates(texts), " ")
}

func parseTexts(page *fetch.Page) ([]string, error) {
	texts, err := ExtractTexts(page.Body)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, core.ErrEmptyResult
	}
	return texts, nil
}
