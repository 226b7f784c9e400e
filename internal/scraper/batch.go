package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/oranjParker/Pawmap/internal/fetch"
	"go.uber.org/zap"
)

const DefaultWorkers = 10

// Getter is the part of fetch.Fetcher the batch scraper needs.
type Getter interface {
	Get(ctx context.Context, url string) (*fetch.Page, error)
}

// ParseFunc turns a fetched page into a result. Returning core.ErrEmptyResult
// drops the URL without retrying; any other error is retried like a failed fetch.
type ParseFunc[T any] func(page *fetch.Page) (T, error)

type Batch[T any] struct {
	Name    string
	Getter  Getter
	Workers int
	Policy  core.RetryPolicy
	logger  *zap.Logger
}

func NewBatch[T any](name string, getter Getter, workers int, policy core.RetryPolicy, logger *zap.Logger) *Batch[T] {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batch[T]{
		Name:    name,
		Getter:  getter,
		Workers: workers,
		Policy:  policy,
		logger:  logger.Named("scraper").With(zap.String("scraper", name)),
	}
}

// Run fetches every URL on a fixed pool and returns the parsed results in
// completion order. Failed URLs are logged and left out.
func (b *Batch[T]) Run(ctx context.Context, urls []string, parse ParseFunc[T]) []T {
	start := time.Now()
	results := core.RunPool(ctx, b.Workers, urls, func(ctx context.Context, u string) (T, bool) {
		return b.scrape(ctx, u, parse)
	})

	b.logger.Info("batch finished",
		zap.Int("urls", len(urls)),
		zap.Int("results", len(results)),
		zap.Int("failed", len(urls)-len(results)),
		zap.Duration("took", time.Since(start)),
	)
	return results
}

func (b *Batch[T]) scrape(ctx context.Context, u string, parse ParseFunc[T]) (T, bool) {
	var result T

	policy := b.Policy
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		b.logger.Debug("retrying",
			zap.String("url", u),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		fetchAttempts.WithLabelValues(b.Name).Inc()
		page, err := b.Getter.Get(ctx, u)
		if err != nil {
			return err
		}
		result, err = parse(page)
		return err
	})

	switch {
	case err == nil:
		fetchOutcomes.WithLabelValues(b.Name, "ok").Inc()
		return result, true
	case errors.Is(err, core.ErrEmptyResult):
		fetchOutcomes.WithLabelValues(b.Name, "empty").Inc()
		b.logger.Debug("no result", zap.String("url", u))
	default:
		fetchOutcomes.WithLabelValues(b.Name, "dropped").Inc()
		b.logger.Warn("dropping url after retries",
			zap.String("url", u),
			zap.Int("max_retries", b.Policy.MaxRetries),
			zap.Error(err),
		)
	}
	var zero T
	return zero, false
}
