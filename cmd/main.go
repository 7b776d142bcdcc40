package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/facetally/internal/adapters/faceclient"
	"github.com/okian/facetally/internal/adapters/http/api"
	"github.com/okian/facetally/internal/adapters/http/swagger"
	"github.com/okian/facetally/internal/adapters/ledger"
	"github.com/okian/facetally/internal/adapters/registrystore"
	service "github.com/okian/facetally/internal/app"
	"github.com/okian/facetally/internal/config"
	"github.com/okian/facetally/internal/domain/consensus"
	"github.com/okian/facetally/internal/domain/registry"
	"github.com/okian/facetally/pkg/logger"
	"github.com/okian/facetally/pkg/metrics"
)

// HTTP server timeout constants. Writes are generous because a session
// makes two face service calls per frame.
const (
	readTimeout               = 30 * time.Second
	writeTimeout              = 2 * time.Minute
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// application holds the wired components of the server.
type application struct {
	svc     *service.Service
	handler http.Handler
}

func main() {
	if err := logger.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "facetally stopped", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if cfg.LogFormat != "text" {
		if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
			return err
		}
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := a.svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	go startSystemMetricsUpdater(ctx, metrics.RefreshInterval())
	go startServiceMetricsUpdater(ctx, a.svc, metrics.RefreshInterval())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			_ = a.svc.Stop(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := a.svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// build wires store, registry, face client, engine, ledger and service, and
// registers the HTTP routes. The service is returned unstarted.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (*application, error) {
	store, err := registrystore.New(cfg.RegistryPath, registrystore.WithLogger(log))
	if err != nil {
		return nil, err
	}

	reg := registry.New(registry.WithLogger(log))
	if _, err := reg.Reload(ctx, store); err != nil {
		if !errors.Is(err, registry.ErrEmptyRegistry) {
			return nil, err
		}
		log.Warn(ctx, "no enrolled identities; every session will be Unknown", logger.String("registry_path", cfg.RegistryPath))
	}

	faces := faceclient.New(cfg.EmbedderURL,
		faceclient.WithTimeout(cfg.EmbedderTimeout()),
		faceclient.WithFaceSize(cfg.FaceSize),
		faceclient.WithMinFaceSize(cfg.MinFaceSize),
		faceclient.WithLogger(log),
	)

	engine, err := consensus.NewEngine(faces, faces, reg,
		consensus.WithPolicy(consensus.Policy{
			PerFrameSim:      cfg.PerFrameSim,
			ConsensusFrames:  cfg.ConsensusFrames,
			InstantSim:       cfg.InstantSim,
			MaxUnknownFrames: cfg.MaxUnknownFrames,
		}),
		consensus.WithMaxFrames(cfg.MaxFramesPerSession),
		consensus.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	book, err := ledger.New(cfg.LedgerDir, ledger.WithLogger(log))
	if err != nil {
		return nil, err
	}

	svc := service.New(engine, book, reg,
		service.WithLogger(log),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithOncePerDay(cfg.LedgerOncePerDay),
		service.WithLoader(store),
	)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, api.WithLogger(log)).Register(ctx, mux)

	return &application{svc: svc, handler: mux}, nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics copies the service stats into gauges.
func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if identities, ok := stats["identities"].(int); ok {
		metrics.UpdateRegistryIdentities(identities)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
}
