package enrich

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/oranjParker/Pawmap/internal/imaging"
	"github.com/oranjParker/Pawmap/internal/llm_provider"
	"github.com/oranjParker/Pawmap/internal/place"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var batchRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pawmap",
	Subsystem: "llm",
	Name:      "requests_total",
	Help:      "Places sent to the model, by mode and outcome.",
}, []string{"mode", "outcome"})

func Register(reg prometheus.Registerer) error {
	return reg.Register(batchRequests)
}

// BatchAPI is the subset of llm_provider.BatchClient the runner drives.
type BatchAPI interface {
	UploadFile(ctx context.Context, name string, content io.Reader) (string, error)
	CreateBatch(ctx context.Context, inputFileID string, metadata map[string]string) (*llm_provider.Batch, error)
	GetBatch(ctx context.Context, id string) (*llm_provider.Batch, error)
	CancelBatch(ctx context.Context, id string) (*llm_provider.Batch, error)
	FileContent(ctx context.Context, fileID string) ([]byte, error)
}

// ImagePreparer turns the menu images of a place into optimized payloads.
type ImagePreparer interface {
	PrepareAll(ctx context.Context, id string, urls []string) []imaging.Image
	Cleanup(id string) error
}

type RunnerOptions struct {
	PollInterval time.Duration
	Chunks       int
	ChunkDelay   time.Duration
	QuotaWait    time.Duration
	WorkDir      string
}

// Runner is the batch mode LLM stage.
type Runner struct {
	API     BatchAPI
	Builder *Builder
	Images  ImagePreparer
	Opts    RunnerOptions
	Policy  core.RetryPolicy
	// Sleep paces polling and chunks; tests replace it.
	Sleep  func(ctx context.Context, d time.Duration) error
	logger *zap.Logger
}

func NewRunner(api BatchAPI, builder *Builder, images ImagePreparer, opts RunnerOptions, policy core.RetryPolicy, logger *zap.Logger) *Runner {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.Chunks <= 0 {
		opts.Chunks = 1
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if policy.Retryable == nil {
		policy.Retryable = llm_provider.IsRetryable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		API:     api,
		Builder: builder,
		Images:  images,
		Opts:    opts,
		Policy:  policy,
		Sleep:   core.SleepContext,
		logger:  logger.Named("llm"),
	}
}

func (r *Runner) Name() string { return "llm" }

func (r *Runner) Run(ctx context.Context, records []core.Record) ([]core.Record, error) {
	return r.RunChunked(ctx, records, r.Opts.Chunks)
}

// RunChunked submits records as n sequential batches, waiting ChunkDelay
// between them. A chunk that hits the token quota is skipped after waiting
// QuotaWait; any other failure stops the run.
func (r *Runner) RunChunked(ctx context.Context, records []core.Record, n int) ([]core.Record, error) {
	var out []core.Record
	chunks := Chunk(records, n)
	for i, chunk := range chunks {
		if i > 0 && r.Opts.ChunkDelay > 0 {
			r.logger.Info("waiting for token release", zap.Duration("delay", r.Opts.ChunkDelay))
			if err := r.Sleep(ctx, r.Opts.ChunkDelay); err != nil {
				return out, err
			}
		}
		r.logger.Info("processing chunk", zap.Int("chunk", i+1), zap.Int("chunks", len(chunks)), zap.Int("places", len(chunk)))

		results, err := r.RunOnce(ctx, chunk)
		if errors.Is(err, core.ErrQuotaExceeded) {
			batchRequests.WithLabelValues("batch", "quota").Add(float64(len(chunk)))
			r.logger.Warn("token quota exceeded, skipping chunk", zap.Int("chunk", i+1), zap.Duration("wait", r.Opts.QuotaWait), zap.Error(err))
			if serr := r.Sleep(ctx, r.Opts.QuotaWait); serr != nil {
				return out, serr
			}
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, results...)
	}
	return out, nil
}

// Chunk splits records into n slices of len/n records; the last slice takes
// the remainder. Empty slices are dropped.
func Chunk(records []core.Record, n int) [][]core.Record {
	if n <= 0 {
		n = 1
	}
	if n > len(records) {
		n = len(records)
	}
	out := make([][]core.Record, 0, n)
	if n == 0 {
		return out
	}
	per := len(records) / n
	for i := 0; i < n; i++ {
		end := (i + 1) * per
		if i == n-1 {
			end = len(records)
		}
		out = append(out, records[i*per:end])
	}
	return out
}

// RunOnce submits one batch, waits for it and decodes its output.
func (r *Runner) RunOnce(ctx context.Context, records []core.Record) ([]core.Record, error) {
	id, err := r.Submit(ctx, records)
	if err != nil {
		return nil, err
	}
	b, err := r.Wait(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.Results(ctx, b)
}

// Submit writes the request file, uploads it and creates the batch job.
func (r *Runner) Submit(ctx context.Context, records []core.Record) (string, error) {
	lines := r.buildLines(ctx, records)
	if len(lines) == 0 {
		return "", eris.Wrap(core.ErrEmptyResult, "no places to submit")
	}

	var buf bytes.Buffer
	if err := WriteJSONL(&buf, lines); err != nil {
		return "", err
	}

	if err := os.MkdirAll(r.Opts.WorkDir, 0o755); err != nil {
		return "", eris.Wrap(err, "create batch work dir")
	}
	name := "batchinput_" + uuid.NewString() + ".jsonl"
	path := filepath.Join(r.Opts.WorkDir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", eris.Wrapf(err, "write %s", path)
	}
	defer os.Remove(path)

	var fileID string
	err := r.Policy.Do(ctx, func(ctx context.Context, _ int) error {
		f, err := os.Open(path)
		if err != nil {
			return eris.Wrapf(err, "open %s", path)
		}
		defer f.Close()
		fileID, err = r.API.UploadFile(ctx, name, f)
		return err
	})
	if err != nil {
		return "", err
	}

	var b *llm_provider.Batch
	err = r.Policy.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		b, err = r.API.CreateBatch(ctx, fileID, map[string]string{"description": "place service extraction"})
		return err
	})
	if err != nil {
		return "", err
	}
	batchRequests.WithLabelValues("batch", "submitted").Add(float64(len(lines)))
	r.logger.Info("batch submitted", zap.String("batch_id", b.ID), zap.Int("requests", len(lines)))
	return b.ID, nil
}

func (r *Runner) buildLines(ctx context.Context, records []core.Record) []RequestLine {
	lines := make([]RequestLine, 0, len(records))
	for _, rec := range records {
		id := rec.ID()
		if id == "" || ctx.Err() != nil {
			continue
		}
		var images []imaging.Image
		if r.Images != nil {
			images = r.Images.PrepareAll(ctx, id, place.MenuImageURLs(rec))
		}
		line, err := r.Builder.BuildRequest(rec, images)
		if r.Images != nil {
			if cerr := r.Images.Cleanup(id); cerr != nil {
				r.logger.Warn("image cleanup failed", zap.String("id", id), zap.Error(cerr))
			}
		}
		if err != nil {
			r.logger.Warn("request skipped", zap.String("id", id), zap.Error(err))
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// Wait polls the job every PollInterval until it reaches a terminal status.
func (r *Runner) Wait(ctx context.Context, id string) (*llm_provider.Batch, error) {
	for {
		b, err := r.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		r.logger.Info("batch status", zap.String("batch_id", id), zap.String("status", b.Status))

		switch b.Status {
		case llm_provider.BatchCompleted:
			return b, nil
		case llm_provider.BatchFailed, llm_provider.BatchExpired, llm_provider.BatchCancelled:
			return nil, b.Failure()
		}
		if err := r.Sleep(ctx, r.Opts.PollInterval); err != nil {
			return nil, err
		}
	}
}

func (r *Runner) Status(ctx context.Context, id string) (*llm_provider.Batch, error) {
	var b *llm_provider.Batch
	err := r.Policy.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		b, err = r.API.GetBatch(ctx, id)
		return err
	})
	return b, err
}

func (r *Runner) Cancel(ctx context.Context, id string) (*llm_provider.Batch, error) {
	b, err := r.API.CancelBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	r.logger.Info("batch cancel requested", zap.String("batch_id", id), zap.String("status", b.Status))
	return b, nil
}

// Results downloads and decodes the output of a completed job. Lines that do
// not decode are logged and left out.
func (r *Runner) Results(ctx context.Context, b *llm_provider.Batch) ([]core.Record, error) {
	if b.OutputFileID == "" {
		return nil, eris.Wrapf(core.ErrBatchFailed, "batch %s completed without output", b.ID)
	}
	var data []byte
	err := r.Policy.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		data, err = r.API.FileContent(ctx, b.OutputFileID)
		return err
	})
	if err != nil {
		return nil, err
	}

	records, errs := DecodeOutput(data)
	for _, err := range errs {
		r.logger.Warn("output line skipped", zap.String("batch_id", b.ID), zap.Error(err))
	}
	batchRequests.WithLabelValues("batch", "ok").Add(float64(len(records)))
	batchRequests.WithLabelValues("batch", "failed").Add(float64(len(errs)))
	return records, nil
}
