package browser

import (
	"context"
	"time"

	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/oranjParker/Pawmap/internal/place"
	"go.uber.org/zap"
)

const (
	MinBatch = 5
	MaxBatch = 20
)

// NewCrawlerFunc opens one crawler per worker batch.
type NewCrawlerFunc func(ctx context.Context) (PlaceCrawler, error)

// BatchCrawler splits ids into contiguous batches and crawls each batch
// sequentially in its own session. Ids that still fail after the policy's
// retries are dropped.
type BatchCrawler struct {
	NewCrawler NewCrawlerFunc
	Workers    int
	Policy     core.RetryPolicy
	logger     *zap.Logger
}

func NewBatchCrawler(newCrawler NewCrawlerFunc, workers, maxRetries int, retryDelay time.Duration, logger *zap.Logger) *BatchCrawler {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchCrawler{
		NewCrawler: newCrawler,
		Workers:    workers,
		Policy:     core.RetryPolicy{MaxRetries: maxRetries, Backoff: core.Constant(retryDelay)},
		logger:     logger.Named("browser"),
	}
}

func (b *BatchCrawler) Name() string { return "detail" }

// Run is the detail stage variant backed by the browser.
func (b *BatchCrawler) Run(ctx context.Context, records []core.Record) ([]core.Record, error) {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		if id := r.ID(); id != "" {
			ids = append(ids, id)
		}
	}
	return b.Crawl(ctx, ids), ctx.Err()
}

func (b *BatchCrawler) Crawl(ctx context.Context, ids []string) []core.Record {
	size := core.BatchSize(len(ids), b.Workers, MinBatch, MaxBatch)
	batches := core.SplitBatches(ids, size)
	b.logger.Info("crawling places",
		zap.Int("places", len(ids)),
		zap.Int("workers", b.Workers),
		zap.Int("batch_size", size),
		zap.Int("batches", len(batches)),
	)

	start := time.Now()
	perBatch := core.RunPool(ctx, b.Workers, batches, func(ctx context.Context, batch []string) ([]core.Record, bool) {
		return b.crawlBatch(ctx, batch), true
	})

	var out []core.Record
	for _, records := range perBatch {
		out = append(out, records...)
	}
	b.logger.Info("crawl finished",
		zap.Int("places", len(ids)),
		zap.Int("crawled", len(out)),
		zap.Duration("took", time.Since(start)),
	)
	return out
}

func (b *BatchCrawler) crawlBatch(ctx context.Context, ids []string) []core.Record {
	crawler, err := b.NewCrawler(ctx)
	if err != nil {
		b.logger.Error("could not open browser session", zap.Int("ids", len(ids)), zap.Error(err))
		return nil
	}
	defer crawler.Close()

	out := make([]core.Record, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		policy := b.Policy
		policy.OnRetry = func(attempt int, err error, wait time.Duration) {
			b.logger.Warn("crawl failed, retrying",
				zap.String("id", id),
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", b.Policy.MaxRetries),
				zap.Error(err),
			)
		}

		var detail *place.Detail
		err := policy.Do(ctx, func(ctx context.Context, _ int) error {
			d, err := crawler.Crawl(ctx, id)
			if err != nil {
				return err
			}
			detail = d
			return nil
		})
		if err != nil {
			b.logger.Error("dropping place after retries", zap.String("id", id), zap.Error(err))
			continue
		}
		out = append(out, detail.Record())
	}
	return out
}
