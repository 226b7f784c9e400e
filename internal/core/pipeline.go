package core

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RunPool feeds inputs to a fixed number of workers and collects every ok result.
// Results arrive in completion order. Workers stop taking new inputs once ctx is
// done; inputs already started run to the end of fn.
func RunPool[In any, Out any](ctx context.Context, workers int, inputs []In, fn func(ctx context.Context, in In) (Out, bool)) []Out {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	jobs := make(chan In)
	results := make(chan Out, len(inputs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for in := range jobs {
				if out, ok := fn(ctx, in); ok {
					results <- out
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, in := range inputs {
			select {
			case jobs <- in:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(results)

	out := make([]Out, 0, len(results))
	for r := range results {
		out = append(out, r)
	}
	return out
}

type StageRunner struct {
	Name   string
	Key    string
	steps  []step
	logger *zap.Logger
}

// step is either a Stage whose results are merged or a filter over the
// accumulated records.
type step struct {
	stage Stage
	name  string
	keep  func(Record) bool
}

func NewStageRunner(name string, logger *zap.Logger) *StageRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StageRunner{
		Name:   name,
		Key:    KeyID,
		logger: logger.Named("pipeline"),
	}
}

func (r *StageRunner) AddStage(s Stage) {
	r.steps = append(r.steps, step{stage: s, name: s.Name()})
}

// AddFilter drops accumulated records for which keep returns false.
func (r *StageRunner) AddFilter(name string, keep func(Record) bool) {
	r.steps = append(r.steps, step{name: name, keep: keep})
}

func (r *StageRunner) Stages() []string {
	names := make([]string, 0, len(r.steps))
	for _, s := range r.steps {
		names = append(names, s.name)
	}
	return names
}

// Run executes every stage in order. Each stage sees the records accumulated so
// far and its results are merged back by key before the next stage starts.
func (r *StageRunner) Run(ctx context.Context, records []Record) ([]Record, error) {
	acc := records
	for _, s := range r.steps {
		if err := ctx.Err(); err != nil {
			return acc, eris.Wrapf(err, "pipeline [%s] interrupted before %s", r.Name, s.name)
		}

		if s.keep != nil {
			kept := make([]Record, 0, len(acc))
			for _, rec := range acc {
				if s.keep(rec) {
					kept = append(kept, rec)
				}
			}
			r.logger.Info("filter applied",
				zap.String("pipeline", r.Name),
				zap.String("filter", s.name),
				zap.Int("dropped", len(acc)-len(kept)),
				zap.Int("records", len(kept)),
			)
			acc = kept
			continue
		}

		start := time.Now()
		results, err := s.stage.Run(ctx, acc)
		if err != nil {
			return acc, eris.Wrapf(err, "pipeline [%s] stage %s", r.Name, s.name)
		}

		acc = MergeByKey(r.Key, acc, results)
		r.logger.Info("stage finished",
			zap.String("pipeline", r.Name),
			zap.String("stage", s.name),
			zap.Int("results", len(results)),
			zap.Int("records", len(acc)),
			zap.Duration("took", time.Since(start)),
		)
	}
	return acc, nil
}
