package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/okian/guardline/pkg/metrics"
)

const (
	defaultHTTPShutdown       = 10 * time.Second
	defaultMetricsInterval    = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// HTTPServer is the subset of *http.Server the HTTP service drives.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService runs an HTTP server until its context is cancelled and then
// shuts it down gracefully.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPService wraps server.
func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultHTTPShutdown
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPService) String() string { return "http-server" }

// SystemMetrics samples runtime memory, goroutine and GC figures into the
// metrics registry.
type SystemMetrics struct {
	interval time.Duration
}

// NewSystemMetrics samples every interval.
func NewSystemMetrics(interval time.Duration) *SystemMetrics {
	if interval <= 0 {
		interval = defaultMetricsInterval
	}
	return &SystemMetrics{interval: interval}
}

// Serve implements suture.Service.
func (s *SystemMetrics) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			Sample()
		}
	}
}

func (s *SystemMetrics) String() string { return "system-metrics" }

// Sample records one reading of the runtime figures.
func Sample() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// Named gives svc a name in supervisor logs.
func Named(name string, svc interface{ Serve(context.Context) error }) *NamedService {
	return &NamedService{name: name, svc: svc}
}

// NamedService decorates a service with a String method.
type NamedService struct {
	name string
	svc  interface{ Serve(context.Context) error }
}

// Serve implements suture.Service.
func (n *NamedService) Serve(ctx context.Context) error { return n.svc.Serve(ctx) }

func (n *NamedService) String() string { return n.name }
