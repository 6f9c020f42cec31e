package usecase

import (
	"context"
	"sync"
	"time"

	"FinWatch/internal/domain/models"
	domrepo "FinWatch/internal/domain/repository"
	"FinWatch/pkg/logger"
	"FinWatch/pkg/metrics"
)

// ArchiverConfig sizes the archival buffer and batches.
type ArchiverConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	BufferSize   int
	MaxAttempts  int
}

// CandleArchiver batches finalized candles into the archive off the hot path.
// When the buffer is full new candles are dropped and counted.
type CandleArchiver struct {
	cfg     ArchiverConfig
	archive domrepo.CandleArchive
	metrics domrepo.Metrics
	l       *logger.Logger

	buf      chan models.CandleRecord
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
}

func NewCandleArchiver(cfg ArchiverConfig, archive domrepo.CandleArchive, m domrepo.Metrics, l *logger.Logger) *CandleArchiver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 5 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = logger.Nop()
	}
	return &CandleArchiver{
		cfg:     cfg,
		archive: archive,
		metrics: m,
		l:       l.With("candle_archiver"),
		buf:     make(chan models.CandleRecord, cfg.BufferSize),
		stopCh:  make(chan struct{}),
	}
}

// Enqueue buffers rec without blocking.
func (a *CandleArchiver) Enqueue(rec models.CandleRecord) {
	select {
	case a.buf <- rec:
	default:
		a.metrics.RecordError("archive_buffer_full")
	}
}

// Start launches the batching loop.
func (a *CandleArchiver) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return
	}
	a.started = true
	a.wg.Add(1)
	go a.run(context.WithoutCancel(ctx))
}

// Stop flushes what is buffered and waits for the loop to exit.
func (a *CandleArchiver) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.stopCh) })
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *CandleArchiver) run(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.BatchTimeout)
	defer ticker.Stop()

	batch := make([]models.CandleRecord, 0, a.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		a.store(ctx, batch)
		batch = make([]models.CandleRecord, 0, a.cfg.BatchSize)
	}

	for {
		select {
		case rec := <-a.buf:
			batch = append(batch, rec)
			if len(batch) >= a.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-a.stopCh:
			for {
				select {
				case rec := <-a.buf:
					batch = append(batch, rec)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (a *CandleArchiver) store(ctx context.Context, batch []models.CandleRecord) {
	start := time.Now()
	backoff := 50 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err := a.archive.StoreBatch(ctx, batch)
		if err == nil {
			a.metrics.RecordLatency("archive_store", time.Since(start).Seconds())
			a.l.Debug("archived candles", logger.Int("count", len(batch)))
			return
		}
		a.metrics.RecordError("archive_store")
		if attempt >= a.cfg.MaxAttempts {
			a.l.Error("archive batch dropped", logger.Int("count", len(batch)), logger.Int("attempts", attempt), logger.Error(err))
			return
		}
		a.l.Warn("archive batch failed, retrying", logger.Int("attempt", attempt), logger.Error(err))
		select {
		case <-time.After(backoff):
		case <-a.stopCh:
			// stopping: retry without waiting
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
}
