package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/oranjParker/Pawmap/internal/enrich"
	"github.com/oranjParker/Pawmap/internal/place"
	"github.com/oranjParker/Pawmap/internal/sink"
	"github.com/oranjParker/Pawmap/internal/storage"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// OutputKeys are the fields kept in the written file, in column order.
var OutputKeys = []string{
	core.KeyID,
	place.KeyName,
	place.KeyTel,
	place.KeyAddress,
	storage.KeyThumbnailS3Key,
	storage.KeyMenuImageS3Keys,
	place.KeyRoadAddress,
	place.KeyLat,
	place.KeyLng,
	place.KeyBusinessHours,
	place.KeyMenus,
	place.KeyReviewCounts,
	place.KeyLinks,
	enrich.KeyCategories,
	enrich.KeyServices,
}

type Searcher interface {
	Search(ctx context.Context, location string, keywords []string) ([]core.Record, error)
}

// StageFactory builds a stage bound to one run's location.
type StageFactory func(location string) core.Stage

// SinkFactory opens a record sink for one run's location.
type SinkFactory func(location string) (core.Sink[core.Record], error)

// App runs one collection for a location: search, detail, content, images,
// LLM extraction, projection and output. Nil stages are skipped.
type App struct {
	Searcher Searcher
	Keywords []string
	Detail   core.Stage
	Content  core.Stage
	Images   StageFactory
	LLM      core.Stage
	Writer   sink.FileWriter
	Sinks    []SinkFactory
	logger   *zap.Logger
}

type Result struct {
	RunID   string
	Path    string
	Records []core.Record
	Took    time.Duration
}

func New(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{logger: logger.Named("app")}
}

func (a *App) Run(ctx context.Context, location string) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := a.logger.With(zap.String("run_id", runID), zap.String("location", location))

	places, err := a.Searcher.Search(ctx, location, a.Keywords)
	if err != nil {
		return nil, eris.Wrap(err, "search places")
	}
	logger.Info("places found", zap.Int("places", len(places)))

	records, err := a.Pipeline(location).Run(ctx, places)
	if err != nil {
		return nil, err
	}

	out := Project(records)
	path, err := a.Writer.WriteFile(ctx, location, out)
	if err != nil {
		return nil, eris.Wrap(err, "write output")
	}

	for _, open := range a.Sinks {
		s, err := open(location)
		if err != nil {
			logger.Error("sink unavailable", zap.Error(err))
			continue
		}
		n, err := sink.WriteAll(ctx, s, out)
		if err != nil {
			logger.Error("sink write incomplete", zap.Int("written", n), zap.Error(err))
			continue
		}
		logger.Info("sink written", zap.Int("written", n))
	}

	took := time.Since(start)
	logger.Info("run finished", zap.Int("places", len(out)), zap.String("path", path), zap.Duration("took", took))
	return &Result{RunID: runID, Path: path, Records: out, Took: took}, nil
}

// Pipeline lays out the enrichment stages for location. Places the detail
// stage could not read are dropped before anything else runs.
func (a *App) Pipeline(location string) *core.StageRunner {
	r := core.NewStageRunner("pawmap", a.logger)
	if a.Detail != nil {
		r.AddStage(a.Detail)
		r.AddFilter("has_detail", HasDetail)
	}
	if a.Content != nil {
		r.AddStage(a.Content)
	}
	if a.Images != nil {
		r.AddStage(a.Images(location))
	}
	if a.LLM != nil {
		r.AddStage(a.LLM)
	}
	return r
}

// HasDetail reports whether the detail stage contributed to r.
func HasDetail(r core.Record) bool {
	_, ok := r[place.KeyMapLink]
	return ok
}

func Project(records []core.Record) []core.Record {
	out := make([]core.Record, 0, len(records))
	for _, r := range records {
		out = append(out, core.PickFields(r, OutputKeys...))
	}
	return out
}
