package app

import (
	"context"
	"net/http"
	"time"

	"github.com/oranjParker/Pawmap/internal/browser"
	"github.com/oranjParker/Pawmap/internal/cache"
	"github.com/oranjParker/Pawmap/internal/config"
	"github.com/oranjParker/Pawmap/internal/content"
	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/oranjParker/Pawmap/internal/database"
	"github.com/oranjParker/Pawmap/internal/enrich"
	"github.com/oranjParker/Pawmap/internal/fetch"
	"github.com/oranjParker/Pawmap/internal/imaging"
	"github.com/oranjParker/Pawmap/internal/llm_provider"
	"github.com/oranjParker/Pawmap/internal/place"
	"github.com/oranjParker/Pawmap/internal/scraper"
	"github.com/oranjParker/Pawmap/internal/sink"
	"github.com/oranjParker/Pawmap/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const streamName = "PLACES"

// Resources holds the connections an App was built with.
type Resources struct {
	closers []func()
}

func (r *Resources) add(fn func()) {
	r.closers = append(r.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (r *Resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// RegisterMetrics adds every collector of the pipeline to reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, register := range []func(prometheus.Registerer) error{
		scraper.Register,
		storage.Register,
		enrich.Register,
	} {
		if err := register(reg); err != nil {
			return err
		}
	}
	return nil
}

// Build wires an App from cfg. Optional collaborators (Redis, S3, sinks) are
// only connected when configured.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, *Resources, error) {
	res := &Resources{}
	a := New(logger)
	a.Keywords = cfg.Search.Keywords

	policy := core.RetryPolicy{MaxRetries: cfg.Scraper.MaxRetries, Backoff: core.Exponential(cfg.Scraper.BaseDelay)}
	workers := core.OptimalWorkers(cfg.Scraper.WorkerMultiplier, cfg.Scraper.MinWorkers, cfg.Scraper.MaxWorkers)
	logger.Info("scraper workers", zap.Int("workers", workers))

	pages := fetch.New(fetch.Options{
		UserAgent:       cfg.Scraper.UserAgent,
		Timeout:         cfg.Scraper.Timeout,
		FollowRedirects: true,
		AllowInternal:   cfg.Scraper.AllowInternal,
	})

	store, err := openCache(ctx, cfg.Cache, res)
	if err != nil {
		res.Close()
		return nil, nil, err
	}

	searchFetcher := fetch.New(fetch.Options{
		UserAgent:       cfg.Scraper.UserAgent,
		Timeout:         cfg.Scraper.Timeout,
		FollowRedirects: true,
		AllowInternal:   cfg.Scraper.AllowInternal,
		Header:          http.Header{"Referer": {cfg.Search.Referer}},
	})
	a.Searcher = place.NewSearchClient(searchFetcher, cfg.Search.Endpoint, cfg.Search.QueriesPerSec, policy, logger)

	a.Detail = detailStage(cfg, pages, store, workers, policy, logger)

	if cfg.Content.Enabled {
		a.Content = contentStage(cfg, pages, store, workers, policy, logger)
	}

	imageFetcher := fetch.New(fetch.Options{
		UserAgent:       cfg.Scraper.UserAgent,
		Timeout:         cfg.Scraper.Timeout,
		FollowRedirects: true,
		AllowInternal:   cfg.Scraper.AllowInternal,
	})
	if cfg.Images.MaxBytes > 0 {
		imageFetcher.MaxBody = cfg.Images.MaxBytes
	}

	if cfg.S3.Bucket != "" {
		client, err := storage.NewS3Client(ctx, cfg.S3)
		if err != nil {
			res.Close()
			return nil, nil, err
		}
		uploader := storage.NewUploader(client, cfg.S3.Bucket, cfg.S3.PartSize, logger)
		a.Images = func(location string) core.Stage {
			return storage.NewImageStage(imageFetcher, uploader, location, int(cfg.S3.Concurrency), policy, logger)
		}
	} else {
		logger.Info("s3.bucket not set, image upload disabled")
	}

	optimizer := imaging.NewOptimizer(imageFetcher, cfg.Images.MaxDimension, cfg.Images.JPEGQuality, cfg.Images.TempDir, logger)
	a.LLM, err = llmStage(ctx, cfg, optimizer, logger, res)
	if err != nil {
		res.Close()
		return nil, nil, err
	}

	switch cfg.Output.Format {
	case "xlsx":
		a.Writer = sink.NewXLSXWriter(cfg.Output.Dir, OutputKeys, logger)
	default:
		a.Writer = sink.NewJSONWriter(cfg.Output.Dir, OutputKeys, logger)
	}

	if err := openSinks(ctx, a, cfg.Sinks, logger, res); err != nil {
		res.Close()
		return nil, nil, err
	}
	return a, res, nil
}

func openCache(ctx context.Context, cfg config.CacheConfig, res *Resources) (cache.Cache, error) {
	if cfg.RedisURL == "" {
		return cache.NewMemory(), nil
	}
	client, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, eris.Wrap(err, "redis init")
	}
	res.add(func() { client.Close() })
	return cache.NewRedis(client, "pawmap:"), nil
}

func detailStage(cfg *config.Config, pages *fetch.Fetcher, store cache.Cache, workers int, policy core.RetryPolicy, logger *zap.Logger) core.Stage {
	if cfg.Browser.Enabled {
		opts := browser.Options{
			Headless:  cfg.Browser.Headless,
			UserAgent: cfg.Scraper.UserAgent,
			Timeout:   cfg.Browser.Timeout,
		}
		sessions := core.OptimalWorkers(cfg.Browser.WorkerMultiplier, cfg.Browser.MinWorkers, cfg.Browser.MaxWorkers)
		return browser.NewBatchCrawler(func(ctx context.Context) (browser.PlaceCrawler, error) {
			return browser.NewCrawler(ctx, opts)
		}, sessions, cfg.Browser.MaxRetries, cfg.Browser.RetryDelay, logger)
	}
	batch := scraper.NewBatch[*place.Detail]("detail", pages, workers, policy, logger)
	return place.NewDetailScraper(batch, store, cfg.Scraper.DetailURL, cfg.Cache.TTL, logger)
}

func contentStage(cfg *config.Config, pages *fetch.Fetcher, store cache.Cache, workers int, policy core.RetryPolicy, logger *zap.Logger) core.Stage {
	// redirects are followed hop by hop by the link extractor
	seeds := fetch.New(fetch.Options{
		UserAgent:     cfg.Scraper.UserAgent,
		Timeout:       cfg.Scraper.Timeout,
		AllowInternal: cfg.Scraper.AllowInternal,
	})
	links := content.NewLinkExtractor(seeds, cfg.Content.MaxRedirectHops, logger)

	var robots *content.RobotsGuard
	if cfg.Content.RespectRobots {
		robots = content.NewRobotsGuard(pages, store, cfg.Scraper.UserAgent, logger)
	}
	batch := scraper.NewBatch[[]string]("content", pages, workers, policy, logger)
	return content.NewScraper(links, batch, robots, place.LinkURLs, cfg.Content.MaxPages, logger)
}

func llmStage(ctx context.Context, cfg *config.Config, images enrich.ImagePreparer, logger *zap.Logger, res *Resources) (core.Stage, error) {
	if cfg.LLM.Mode == "off" {
		logger.Info("llm.mode is off, extraction disabled")
		return nil, nil
	}
	system, err := enrich.SystemMessages(cfg.LLM.PromptFile)
	if err != nil {
		return nil, err
	}
	builder := &enrich.Builder{Model: cfg.LLM.Model, MaxTokens: cfg.LLM.MaxTokens, System: system}
	policy := core.RetryPolicy{MaxRetries: 3, Backoff: core.Exponential(2 * time.Second)}

	if cfg.LLM.Mode == "batch" {
		return NewBatchRunner(cfg, builder, images, logger), nil
	}

	var provider llm_provider.Provider
	switch cfg.LLM.Provider {
	case "gemini":
		if cfg.LLM.GeminiAPIKey == "" {
			return nil, eris.New("llm.provider gemini needs GEMINI_API_KEY")
		}
		g, err := llm_provider.NewGeminiProvider(ctx, cfg.LLM.GeminiAPIKey, cfg.LLM.GeminiModel, logger)
		if err != nil {
			return nil, err
		}
		res.add(func() { g.Close() })
		provider = g
	case "ollama":
		provider = llm_provider.NewOllamaProvider(cfg.LLM.OllamaURL, cfg.LLM.OllamaModel, logger)
	default:
		logger.Warn("using the mock LLM provider")
		provider = &llm_provider.MockProvider{}
	}
	return enrich.NewDirect(provider, builder, images, cfg.LLM.Workers, policy, logger), nil
}

// NewBatchRunner builds the batch mode runner; the CLI also uses it for the
// status and cancel commands.
func NewBatchRunner(cfg *config.Config, builder *enrich.Builder, images enrich.ImagePreparer, logger *zap.Logger) *enrich.Runner {
	client := llm_provider.NewBatchClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, logger)
	return enrich.NewRunner(client, builder, images, enrich.RunnerOptions{
		PollInterval: cfg.LLM.PollInterval,
		Chunks:       cfg.LLM.Chunks,
		ChunkDelay:   cfg.LLM.ChunkDelay,
		QuotaWait:    cfg.LLM.QuotaWait,
		WorkDir:      cfg.LLM.WorkDir,
	}, core.RetryPolicy{MaxRetries: 3, Backoff: core.Exponential(2 * time.Second)}, logger)
}

func openSinks(ctx context.Context, a *App, cfg config.SinksConfig, logger *zap.Logger, res *Resources) error {
	if cfg.PostgresURL != "" {
		pool, err := database.NewPool(ctx, cfg.PostgresURL)
		if err != nil {
			return eris.Wrap(err, "postgres init")
		}
		res.add(pool.Close)
		a.Sinks = append(a.Sinks, func(location string) (core.Sink[core.Record], error) {
			return sink.NewPostgresSink(pool, location, sink.DefaultBatchSize, sink.DefaultFlushTimeout, logger), nil
		})
	}
	if cfg.NatsURL != "" {
		nc, err := database.NewNatsConnection(cfg.NatsURL)
		if err != nil {
			return eris.Wrap(err, "nats init")
		}
		res.add(nc.Close)
		if err := nc.EnsureStream(streamName, cfg.NatsSubject); err != nil {
			logger.Warn("nats stream setup", zap.Error(err))
		}
		a.Sinks = append(a.Sinks, func(string) (core.Sink[core.Record], error) {
			return sink.NewNatsSink(nc.JS, cfg.NatsSubject), nil
		})
	}
	return nil
}
