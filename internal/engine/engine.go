// Package engine wires the job engine's components — pool registry,
// scheduler, snapshot store, training store, logging, metrics and tracing —
// behind a single New/Close entry point.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/OCR4all/ocr4all-app-sub002/internal/config"
	"github.com/OCR4all/ocr4all-app-sub002/internal/pool"
	"github.com/OCR4all/ocr4all-app-sub002/internal/scheduler"
	"github.com/OCR4all/ocr4all-app-sub002/internal/snapshot"
	"github.com/OCR4all/ocr4all-app-sub002/internal/snapshotstore/memory"
	"github.com/OCR4all/ocr4all-app-sub002/internal/snapshotstore/sqlite"
	"github.com/OCR4all/ocr4all-app-sub002/internal/telemetry/log"
	"github.com/OCR4all/ocr4all-app-sub002/internal/telemetry/tracing"
	"github.com/OCR4all/ocr4all-app-sub002/internal/training"
)

// Options configures Engine construction.
type Options struct {
	// ConfigPath is the YAML pool configuration file. Required.
	ConfigPath string
	// WatchConfig enables live pool resize on file writes (spec.md §4.4).
	WatchConfig bool

	// SnapshotDSN selects the reference SnapshotStore backing this engine.
	// Empty or "memory" uses the in-memory store; "sqlite:<path>" opens a
	// modernc.org/sqlite-backed store at <path> (":memory:" for ephemeral).
	SnapshotDSN string

	// Logging controls the slog wrapper. Zero value defers to log.FromEnv().
	Logging log.Config
	// UseLoggingConfig, when true, uses Logging verbatim instead of
	// log.FromEnv().
	UseLoggingConfig bool

	// Tracing, when true, wires a stdout span exporter for local debugging
	// (spec.md's REST/collector surface remains out of scope).
	Tracing bool
}

// Engine bundles the constructed components an operator (CLI, tests,
// eventually a REST layer) drives the job lifecycle through.
type Engine struct {
	Logger        *slog.Logger
	Pools         *pool.Registry
	Scheduler     *scheduler.Scheduler
	SnapshotStore snapshot.Store
	TrainingStore training.Store

	cfg           *config.Config
	configWatcher *config.Watcher
	tracerProvider *trace.TracerProvider
	closeStore    func() error
}

// New loads configuration, constructs the pool registry, scheduler and
// snapshot store, and starts the optional config watcher/tracer.
func New(opts Options) (*Engine, error) {
	logger := log.New(opts.Logging)
	if !opts.UseLoggingConfig {
		logger = log.New(log.FromEnv())
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading engine config: %w", err)
	}

	pools := pool.NewRegistry(cfg)
	sched := scheduler.New(pools)

	store, closeStore, err := openSnapshotStore(opts.SnapshotDSN)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store: %w", err)
	}

	e := &Engine{
		Logger:        logger,
		Pools:         pools,
		Scheduler:     sched,
		SnapshotStore: store,
		TrainingStore: training.NewMemoryStore(),
		cfg:           cfg,
		closeStore:    closeStore,
	}

	if opts.WatchConfig {
		watcher, err := config.Watch(opts.ConfigPath, e.onConfigChange)
		if err != nil {
			logger.Warn("config watch disabled", "error", err)
		} else {
			e.configWatcher = watcher
		}
	}

	if opts.Tracing {
		tp, err := tracing.NewStdoutProvider(logWriter{logger})
		if err != nil {
			logger.Warn("tracing disabled", "error", err)
		} else {
			e.tracerProvider = tp
			otel.SetTracerProvider(tp)
		}
	}

	logger.Info("engine started", "pool_count", len(cfg.Pools)+len(cfg.WorkspacePools))
	return e, nil
}

// onConfigChange applies a reloaded pool configuration to the registry, the
// "callback registered with the configuration service" spec.md §4.4
// requires for dynamic workspace.<name> pool resize.
func (e *Engine) onConfigChange(cfg *config.Config, err error) {
	if err != nil {
		e.Logger.Warn("config reload failed", "error", err)
		return
	}
	e.cfg = cfg
	e.Pools.ApplyConfig(cfg)
	e.Logger.Info("config reloaded", "pools", len(cfg.Pools)+len(cfg.WorkspacePools))
}

// Close drains the scheduler, shuts down the tracer, and closes the config
// watcher and snapshot store, in drain-then-teardown order.
func (e *Engine) Close(ctx context.Context, drainTimeout time.Duration) error {
	e.Scheduler.StartDraining()
	if err := e.Scheduler.WaitForDrain(ctx, drainTimeout); err != nil {
		e.Logger.Warn("drain timeout exceeded", "error", err)
	}

	if e.configWatcher != nil {
		if err := e.configWatcher.Close(); err != nil {
			e.Logger.Error("config watcher close error", "error", err)
		}
	}

	if e.tracerProvider != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx, e.tracerProvider); err != nil {
			e.Logger.Error("tracer shutdown error", "error", err)
		}
	}

	if e.closeStore != nil {
		if err := e.closeStore(); err != nil {
			e.Logger.Error("snapshot store close error", "error", err)
		}
	}

	e.Logger.Info("engine stopped")
	return nil
}

func openSnapshotStore(dsn string) (snapshot.Store, func() error, error) {
	switch {
	case dsn == "" || dsn == "memory":
		return memory.New(), nil, nil
	case len(dsn) > len("sqlite:") && dsn[:len("sqlite:")] == "sqlite:":
		path := dsn[len("sqlite:"):]
		st, err := sqlite.Open(sqlite.Config{Path: path, WAL: true})
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unrecognized snapshot dsn %q", dsn)
	}
}

// logWriter adapts a *slog.Logger to io.Writer for the stdout trace exporter.
type logWriter struct {
	logger *slog.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	w.logger.Debug(string(p))
	return len(p), nil
}
