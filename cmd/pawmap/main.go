package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/oranjParker/Pawmap/internal/app"
	"github.com/oranjParker/Pawmap/internal/config"
	"github.com/oranjParker/Pawmap/internal/enrich"
	"github.com/oranjParker/Pawmap/internal/llm_provider"
	"github.com/oranjParker/Pawmap/internal/logging"
	"github.com/oranjParker/Pawmap/internal/sink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const locationPrompt = "검색할 지역을 입력하세요: "

type Globals struct {
	Config string `help:"Path to a YAML config file." short:"c" type:"path"`
}

type CLI struct {
	Globals

	Run   RunCmd   `cmd:"" default:"withargs" help:"Collect pet care places for a location."`
	Batch BatchCmd `cmd:"" help:"Inspect or cancel an LLM batch job."`
}

type RunCmd struct {
	Location string `arg:"" optional:"" help:"Location to search, e.g. 서초구. Asked for when empty."`
}

type BatchCmd struct {
	Status  BatchStatusCmd  `cmd:"" help:"Show the state of a batch."`
	Cancel  BatchCancelCmd  `cmd:"" help:"Cancel a running batch."`
	Results BatchResultsCmd `cmd:"" help:"Download the extractions of a completed batch."`
}

type BatchStatusCmd struct {
	ID string `arg:"" help:"Batch id."`
}

type BatchCancelCmd struct {
	ID string `arg:"" help:"Batch id."`
}

type BatchResultsCmd struct {
	ID   string `arg:"" help:"Batch id."`
	Name string `help:"Output file name, without extension." default:"batch_results"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("pawmap"),
		kong.Description("Collects pet care places from Naver Map."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err := kctx.Run(&cli.Globals); err != nil {
		fmt.Fprintln(os.Stderr, eris.ToString(err, false))
		os.Exit(1)
	}
}

func setup(g *Globals) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func (c *RunCmd) Run(ctx context.Context, g *Globals) error {
	cfg, logger, err := setup(g)
	if err != nil {
		return err
	}
	defer logger.Sync()

	location := strings.TrimSpace(c.Location)
	if location == "" {
		location, err = readLocation(os.Stdin, os.Stdout)
		if err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	if err := app.RegisterMetrics(reg); err != nil {
		return err
	}
	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	a, res, err := app.Build(initCtx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}
	defer res.Close()

	result, err := a.Run(ctx, location)
	if err != nil {
		return err
	}
	fmt.Printf("%d places written to %s\n", len(result.Records), result.Path)
	return nil
}

// readLocation asks until a non-empty location is entered.
func readLocation(in io.Reader, out io.Writer) (string, error) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, locationPrompt)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", eris.Wrap(err, "read location")
			}
			return "", eris.New("no location entered")
		}
		if loc := strings.TrimSpace(scanner.Text()); loc != "" {
			return loc, nil
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}

func batchRunner(g *Globals) (*enrich.Runner, *config.Config, *zap.Logger, error) {
	cfg, logger, err := setup(g)
	if err != nil {
		return nil, nil, nil, err
	}
	builder := &enrich.Builder{Model: cfg.LLM.Model, MaxTokens: cfg.LLM.MaxTokens}
	return app.NewBatchRunner(cfg, builder, nil, logger), cfg, logger, nil
}

func printBatch(b *llm_provider.Batch) {
	fmt.Printf("batch %s: %s (%d/%d completed, %d failed)\n",
		b.ID, b.Status, b.RequestCounts.Completed, b.RequestCounts.Total, b.RequestCounts.Failed)
}

func (c *BatchStatusCmd) Run(ctx context.Context, g *Globals) error {
	runner, _, logger, err := batchRunner(g)
	if err != nil {
		return err
	}
	defer logger.Sync()

	b, err := runner.Status(ctx, c.ID)
	if err != nil {
		return err
	}
	printBatch(b)
	return nil
}

func (c *BatchCancelCmd) Run(ctx context.Context, g *Globals) error {
	runner, _, logger, err := batchRunner(g)
	if err != nil {
		return err
	}
	defer logger.Sync()

	b, err := runner.Cancel(ctx, c.ID)
	if err != nil {
		return err
	}
	printBatch(b)
	return nil
}

func (c *BatchResultsCmd) Run(ctx context.Context, g *Globals) error {
	runner, cfg, logger, err := batchRunner(g)
	if err != nil {
		return err
	}
	defer logger.Sync()

	b, err := runner.Status(ctx, c.ID)
	if err != nil {
		return err
	}
	if b.Status != llm_provider.BatchCompleted {
		printBatch(b)
		return eris.Errorf("batch %s is %s, not completed", b.ID, b.Status)
	}
	records, err := runner.Results(ctx, b)
	if err != nil {
		return err
	}
	path, err := sink.NewJSONWriter(cfg.Output.Dir, nil, logger).WriteFile(ctx, c.Name, records)
	if err != nil {
		return err
	}
	fmt.Printf("%d extractions written to %s\n", len(records), path)
	return nil
}
