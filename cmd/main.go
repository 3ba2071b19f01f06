package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/guardline/internal/adapters/http/api"
	"github.com/okian/guardline/internal/adapters/repository"
	"github.com/okian/guardline/internal/adapters/validation"
	"github.com/okian/guardline/internal/adapters/ws"
	app "github.com/okian/guardline/internal/app"
	"github.com/okian/guardline/internal/config"
	"github.com/okian/guardline/internal/supervisor"
	"github.com/okian/guardline/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	redisDialTimeout      = 5 * time.Second
	systemMetricsInterval = 10 * time.Second
	memoryAuditLimit      = 10_000
)

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use fmt for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg); err != nil {
		loggerInstance.Error(ctx, "guardline stopped with error", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// run serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	audit, sinkName, err := newAuditWriter(ctx, cfg)
	if err != nil {
		return err
	}

	svc, err := newService(cfg, audit)
	if err != nil {
		return err
	}
	// The worker pool outlives the signal: svc.Stop drains it once the edge
	// layer has stopped accepting requests.
	if err := svc.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	handler, wsServer := newHandler(cfg, svc)
	srv := newHTTPServer(cfg.Addr, handler)
	srv.RegisterOnShutdown(wsServer.Close)

	tree := supervisor.NewTree(logger.Slog(), supervisor.DefaultTreeConfig())
	tree.AddCore(supervisor.Named("audit-writer", audit))
	tree.AddCore(supervisor.Named("heartbeat", svc))
	tree.AddEdge(supervisor.NewHTTPService(srv, shutdownTimeout))
	tree.AddEdge(supervisor.NewSystemMetrics(systemMetricsInterval))

	log.Info(ctx, "starting guardline",
		logger.String("addr", cfg.Addr),
		logger.String("audit_sink", sinkName),
		logger.Int("workers", cfg.WorkerCount),
		logger.Int("threshold", cfg.EscalationThreshold))

	serveErr := tree.Serve(ctx)
	log.Info(ctx, "shutting down guardline")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Stop(stopCtx); err != nil {
		log.Error(stopCtx, "service stop failed", logger.Error(err))
	}
	wsServer.Wait()
	if err := audit.Close(); err != nil {
		log.Warn(stopCtx, "audit sink close failed", logger.Error(err))
	}
	log.Info(stopCtx, "guardline stopped")

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return nil
}

// newAuditWriter builds the write-behind audit pipeline over Redis Streams
// when redis_addr is set and an in-memory ring otherwise.
func newAuditWriter(ctx context.Context, cfg *config.Config) (*repository.WriteBehind, string, error) {
	log := logger.Get()

	var (
		sink repository.Sink
		name string
	)
	if cfg.RedisAddr != "" {
		client, err := repository.NewRedisClient(ctx, cfg.RedisAddr, redisDialTimeout)
		if err != nil {
			return nil, "", err
		}
		rs, err := repository.NewRedisSink(client,
			repository.WithStream(cfg.RedisStream),
			repository.WithMaxLen(cfg.RedisMaxLen),
		)
		if err != nil {
			return nil, "", err
		}
		sink, name = rs, "redis"
	} else {
		sink, name = repository.NewMemorySink(memoryAuditLimit), "memory"
	}

	bc := repository.DefaultBreakerConfig()
	bc.FailureThreshold = uint32(cfg.BreakerFailureThreshold) //nolint:gosec // validated positive
	bc.Timeout = cfg.BreakerTimeout()

	wb := repository.NewWriteBehind(
		repository.NewBreakerSink(sink, bc, log.Named("audit-breaker")),
		repository.WithBufferSize(cfg.AuditBufferSize),
		repository.WithSinkName(name),
		repository.WithLogger(log.Named("audit")),
	)
	return wb, name, nil
}

func newService(cfg *config.Config, audit app.Auditor) (*app.Service, error) {
	opts, err := app.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		app.WithAuditor(audit),
		app.WithLogger(logger.Get()),
	)
	return app.New(opts...), nil
}

// newHandler wires the WebSocket transport and the HTTP API onto one router.
func newHandler(cfg *config.Config, svc *app.Service) (http.Handler, *ws.Server) {
	v := validation.New()
	wsServer := ws.NewServer(svc, v,
		ws.WithRateLimit(cfg.ClientRateLimit, cfg.ClientRateBurst),
		ws.WithLogger(logger.Get().Named("ws")),
	)
	apiServer := api.NewServer(svc, svc, v,
		api.WithWebSocket(wsServer),
		api.WithLogger(logger.Get().Named("api")),
	)
	return apiServer.Routes(), wsServer
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
