package enrich

import (
	"context"
	"time"

	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/oranjParker/Pawmap/internal/imaging"
	"github.com/oranjParker/Pawmap/internal/llm_provider"
	"github.com/oranjParker/Pawmap/internal/place"
	"go.uber.org/zap"
)

// Direct is the synchronous LLM stage: one provider call per place, spread
// over a small worker pool.
type Direct struct {
	Provider llm_provider.Provider
	Builder  *Builder
	Images   ImagePreparer
	Workers  int
	Policy   core.RetryPolicy
	logger   *zap.Logger
}

func NewDirect(provider llm_provider.Provider, builder *Builder, images ImagePreparer, workers int, policy core.RetryPolicy, logger *zap.Logger) *Direct {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Direct{
		Provider: provider,
		Builder:  builder,
		Images:   images,
		Workers:  workers,
		Policy:   policy,
		logger:   logger.Named("llm"),
	}
}

func (d *Direct) Name() string { return "llm" }

func (d *Direct) Run(ctx context.Context, records []core.Record) ([]core.Record, error) {
	start := time.Now()
	out := core.RunPool(ctx, d.Workers, records, func(ctx context.Context, rec core.Record) (core.Record, bool) {
		id := rec.ID()
		if id == "" {
			return nil, false
		}
		res, err := d.extract(ctx, rec)
		if err != nil {
			batchRequests.WithLabelValues("direct", "failed").Inc()
			d.logger.Warn("extraction failed", zap.String("id", id), zap.Error(err))
			return nil, false
		}
		batchRequests.WithLabelValues("direct", "ok").Inc()
		return res, true
	})
	d.logger.Info("direct extraction finished",
		zap.Int("places", len(records)),
		zap.Int("extracted", len(out)),
		zap.Duration("took", time.Since(start)),
	)
	return out, ctx.Err()
}

func (d *Direct) extract(ctx context.Context, rec core.Record) (core.Record, error) {
	id := rec.ID()
	var images []imaging.Image
	if d.Images != nil {
		images = d.Images.PrepareAll(ctx, id, place.MenuImageURLs(rec))
		defer func() {
			if err := d.Images.Cleanup(id); err != nil {
				d.logger.Warn("image cleanup failed", zap.String("id", id), zap.Error(err))
			}
		}()
	}

	req, err := d.Builder.ProviderRequest(rec, images)
	if err != nil {
		return nil, err
	}

	var result core.Record
	err = d.Policy.Do(ctx, func(ctx context.Context, _ int) error {
		answer, err := d.Provider.Generate(ctx, req)
		if err != nil {
			return err
		}
		result, err = DecodeAnswer(id, answer)
		return err
	})
	return result, err
}
