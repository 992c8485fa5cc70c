package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/upb/permission-engine/config"
	"go.uber.org/zap"
)

// Recorder persists a single record
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Dispatcher records audits on background workers so the response path never
// waits for the audit store. A record that cannot be queued is recorded inline
// instead, so every submitted record is attempted exactly once.
type Dispatcher struct {
	recorder    Recorder
	logger      *zap.Logger
	queue       chan Record
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool

	processed atomic.Uint64
	failed    atomic.Uint64
	inline    atomic.Uint64
}

// DispatcherStats represents dispatcher statistics
type DispatcherStats struct {
	BufferSize    int    `json:"bufferSize"`
	PendingEvents int    `json:"pendingEvents"`
	WorkerCount   int    `json:"workerCount"`
	Started       bool   `json:"started"`
	Processed     uint64 `json:"processed"`
	Failed        uint64 `json:"failed"`
	Inline        uint64 `json:"inline"`
}

// NewDispatcher creates a Dispatcher. It must be started before records are queued.
func NewDispatcher(recorder Recorder, cfg config.AuditConfig, logger *zap.Logger) *Dispatcher {
	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	buffer := cfg.BufferSize
	if buffer < 0 {
		buffer = 0
	}
	return &Dispatcher{
		recorder:    recorder,
		logger:      logger,
		queue:       make(chan Record, buffer),
		workerCount: workers,
		bufferSize:  buffer,
	}
}

// Start starts the background workers
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return fmt.Errorf("audit dispatcher already started")
	}
	if d.stopped {
		return fmt.Errorf("audit dispatcher already stopped")
	}

	for i := 0; i < d.workerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	d.started = true
	d.logger.Info("started audit dispatcher",
		zap.Int("worker_count", d.workerCount),
		zap.Int("buffer_size", d.bufferSize))
	return nil
}

// Stop stops accepting records and waits for queued ones to be written
func (d *Dispatcher) Stop(timeout time.Duration) error {
	d.mu.Lock()
	if !d.started || d.stopped {
		d.mu.Unlock()
		return fmt.Errorf("audit dispatcher not running")
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.logger.Info("stopping audit dispatcher", zap.Int("pending_events", len(d.queue)))

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("audit dispatcher stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit dispatcher stop timeout after %v", timeout)
	}
}

// Submit queues rec without blocking. When the dispatcher is not running or
// its buffer is full the record is written on the caller's goroutine and the
// write error, if any, is returned.
func (d *Dispatcher) Submit(ctx context.Context, rec Record) error {
	d.mu.RLock()
	if d.started && !d.stopped {
		select {
		case d.queue <- rec:
			d.mu.RUnlock()
			return nil
		default:
		}
	}
	running := d.started && !d.stopped
	d.mu.RUnlock()

	if running {
		d.logger.Warn("audit queue full, recording inline", zap.String("user_id", rec.Request.UserID))
	}
	d.inline.Add(1)
	return d.record(context.WithoutCancel(ctx), rec)
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	d.logger.Debug("audit worker started", zap.Int("worker_id", id))
	for rec := range d.queue {
		if err := d.record(context.Background(), rec); err != nil {
			d.logger.Warn("audit record not persisted",
				zap.Int("worker_id", id),
				zap.String("user_id", rec.Request.UserID),
				zap.String("action", string(rec.Request.Action)),
				zap.Bool("allowed", rec.Decision.Allowed),
				zap.Error(err))
		}
	}
	d.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (d *Dispatcher) record(ctx context.Context, rec Record) error {
	err := d.recorder.Record(ctx, rec)
	if err != nil {
		d.failed.Add(1)
		return err
	}
	d.processed.Add(1)
	return nil
}

// Stats returns dispatcher statistics
func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return DispatcherStats{
		BufferSize:    d.bufferSize,
		PendingEvents: len(d.queue),
		WorkerCount:   d.workerCount,
		Started:       d.started && !d.stopped,
		Processed:     d.processed.Load(),
		Failed:        d.failed.Load(),
		Inline:        d.inline.Load(),
	}
}
