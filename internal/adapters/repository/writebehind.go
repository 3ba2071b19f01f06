package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/guardline/internal/domain/escalation"
	"github.com/okian/guardline/internal/domain/model"
	"github.com/okian/guardline/pkg/logger"
	"github.com/okian/guardline/pkg/metrics"
)

const (
	defaultBufferSize   = 4096
	defaultWriteTimeout = 2 * time.Second
)

// WriteBehind buffers audit records and writes them to a Sink from a single
// goroutine. Recording never blocks: when the buffer is full the record is
// dropped and counted.
type WriteBehind struct {
	sink      Sink
	name      string
	records   chan Record
	timeout   time.Duration
	logger    logger.Logger
	mu        sync.RWMutex
	closed    bool
	stopOnce  sync.Once
	closeOnce sync.Once
}

// WriteBehindOption configures a WriteBehind.
type WriteBehindOption func(*WriteBehind)

// WithBufferSize sets how many records may wait for the sink.
func WithBufferSize(n int) WriteBehindOption {
	return func(w *WriteBehind) {
		if n > 0 {
			w.records = make(chan Record, n)
		}
	}
}

// WithWriteTimeout bounds each sink write.
func WithWriteTimeout(d time.Duration) WriteBehindOption {
	return func(w *WriteBehind) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithSinkName labels write metrics.
func WithSinkName(name string) WriteBehindOption {
	return func(w *WriteBehind) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) WriteBehindOption {
	return func(w *WriteBehind) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWriteBehind creates a writer in front of sink. Call Serve to start it.
func NewWriteBehind(sink Sink, opts ...WriteBehindOption) *WriteBehind {
	w := &WriteBehind{
		sink:    sink,
		name:    "memory",
		records: make(chan Record, defaultBufferSize),
		timeout: defaultWriteTimeout,
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Record enqueues r. It reports false when r was dropped.
func (w *WriteBehind) Record(_ context.Context, r Record) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		metrics.RecordAuditDropped()
		return false
	}
	select {
	case w.records <- r:
		return true
	default:
		metrics.RecordAuditDropped()
		return false
	}
}

// RecordTransition records an escalation transition.
func (w *WriteBehind) RecordTransition(ctx context.Context, t escalation.Transition) {
	w.Record(ctx, Record{
		Kind:      KindTransition,
		SubjectID: t.SubjectID,
		RunID:     t.RunID,
		From:      string(t.From),
		To:        string(t.To),
		Score:     t.Score,
		Manual:    t.Manual,
		Reason:    t.Reason,
		At:        t.At,
	})
}

// RecordAssessment records the outcome of scoring one event.
func (w *WriteBehind) RecordAssessment(ctx context.Context, subjectID string, e model.Event, a model.ThreatAssessment, at time.Time) {
	w.Record(ctx, Record{
		Kind:      KindAssessment,
		SubjectID: subjectID,
		EventID:   e.ID,
		EventKind: string(e.Kind),
		Score:     a.Score,
		Level:     string(a.Level),
		Pattern:   string(a.Pattern),
		At:        at,
	})
}

// Pending returns the number of buffered records.
func (w *WriteBehind) Pending() int { return len(w.records) }

// Serve writes buffered records until ctx is done, then flushes what is left
// and closes the sink. It satisfies suture.Service.
func (w *WriteBehind) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.stop()
			w.flush()
			return ctx.Err()
		case r, ok := <-w.records:
			if !ok {
				return nil
			}
			w.write(ctx, r)
		}
	}
}

// Close stops accepting records and flushes the buffer synchronously. It is
// used when the writer is not running under Serve.
func (w *WriteBehind) Close() error {
	w.stop()
	w.flush()
	return nil
}

func (w *WriteBehind) stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.records)
		w.mu.Unlock()
	})
}

func (w *WriteBehind) flush() {
	for r := range w.records {
		w.write(context.Background(), r)
	}
	w.closeOnce.Do(func() {
		if err := w.sink.Close(); err != nil {
			w.logger.Warn(context.Background(), "audit sink close failed", logger.Error(err))
		}
	})
}

func (w *WriteBehind) write(ctx context.Context, r Record) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()

	start := time.Now()
	err := w.sink.Write(wctx, r)
	latency := float64(time.Since(start).Milliseconds())
	if err == nil {
		metrics.RecordAuditWrite(w.name, "ok")
		metrics.RecordAuditWriteLatency(w.name, "ok", latency)
		return
	}
	result := "error"
	if errors.Is(err, ErrSinkClosed) {
		result = "closed"
	} else if isBreakerOpen(err) {
		result = "breaker_open"
	}
	metrics.RecordAuditWrite(w.name, result)
	metrics.RecordAuditWriteLatency(w.name, result, latency)
	metrics.RecordErrorLatency("audit", result, latency)
	w.logger.Debug(ctx, "audit write failed",
		logger.String("kind", r.Kind),
		logger.String("subject", r.SubjectID),
		logger.Error(err))
}
