package sink

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize    = 50
	DefaultFlushTimeout = 5 * time.Second
)

const upsertPlace = `
	INSERT INTO places (id, location, data, collected_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (id) DO UPDATE SET
	    location = EXCLUDED.location,
	    data = EXCLUDED.data,
	    collected_at = NOW()
`

// BatchSender is satisfied by *pgxpool.Pool.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresSink buffers records and upserts them as JSONB in batches, flushed
// by a background worker on size, on a ticker and on Close.
type PostgresSink struct {
	db           BatchSender
	location     string
	batchSize    int
	flushTimeout time.Duration
	logger       *zap.Logger

	buffer []core.Record
	mu     sync.Mutex
	failed int

	flushChan chan struct{}
	closeChan chan struct{}
	wg        sync.WaitGroup
}

func NewPostgresSink(db BatchSender, location string, batchSize int, timeout time.Duration, logger *zap.Logger) *PostgresSink {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if timeout <= 0 {
		timeout = DefaultFlushTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &PostgresSink{
		db:           db,
		location:     location,
		batchSize:    batchSize,
		flushTimeout: timeout,
		logger:       logger.Named("postgres_sink"),
		buffer:       make([]core.Record, 0, batchSize),
		flushChan:    make(chan struct{}, 1),
		closeChan:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.worker()

	return s
}

func (s *PostgresSink) Write(ctx context.Context, r core.Record) error {
	if r.ID() == "" {
		return eris.New("record without id")
	}
	s.mu.Lock()
	s.buffer = append(s.buffer, r)
	shouldFlush := len(s.buffer) >= s.batchSize
	s.mu.Unlock()

	if shouldFlush {
		select {
		case s.flushChan <- struct{}{}:
		default:
		}
	}
	return nil
}

func (s *PostgresSink) worker() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flushTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-s.closeChan:
			s.flush(context.Background())
			return
		case <-s.flushChan:
			s.flush(context.Background())
		case <-ticker.C:
			s.flush(context.Background())
		}
	}
}

func (s *PostgresSink) flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	items := s.buffer
	s.buffer = make([]core.Record, 0, s.batchSize)
	s.mu.Unlock()

	batch := &pgx.Batch{}
	queued := 0
	for _, r := range items {
		data, err := json.Marshal(r)
		if err != nil {
			s.recordFailure(r.ID(), err)
			continue
		}
		batch.Queue(upsertPlace, r.ID(), s.location, data)
		queued++
	}
	if queued == 0 {
		return
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			s.recordFailure("", err)
		}
	}
	s.logger.Debug("batch flushed", zap.Int("records", queued))
}

func (s *PostgresSink) recordFailure(id string, err error) {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
	s.logger.Error("upsert failed", zap.String("id", id), zap.Error(err))
}

// Close flushes what is buffered and reports how many rows failed.
func (s *PostgresSink) Close() error {
	close(s.closeChan)
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed > 0 {
		return eris.Errorf("%d places could not be stored", s.failed)
	}
	return nil
}
