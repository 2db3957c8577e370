// Package app composes configuration, storage, caches, the chain bridge and
// the serving/settlement surfaces into one runnable process. The mode setting
// decides which surfaces run: "api" serves HTTP and websockets, "settle" runs
// the background pipeline, "full" runs both.
package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/madschristensen99/rushTrade/internal/config"
)

// App owns the process lifecycle. New builds it, Run wires dependencies and
// drives the configured mode until the context ends, Close releases whatever
// Run wired. Close is safe to call more than once.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	mu      sync.Mutex
	cleanup func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires the dependency graph and blocks in the configured mode. A
// context cancellation is a clean shutdown and returns nil.
func (a *App) Run(ctx context.Context) error {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.cleanup = cleanup
	a.mu.Unlock()

	a.logger.Info("dependencies wired",
		slog.String("mode", a.cfg.Mode),
		slog.Bool("kafka", deps.FillStream != nil),
		slog.Bool("archive", deps.Archiver != nil),
		slog.Bool("notify", deps.Notifier != nil),
	)

	switch a.cfg.Mode {
	case "api":
		return a.runAPI(ctx, deps)
	case "settle":
		return a.runSettle(ctx, deps)
	default:
		return a.runFull(ctx, deps)
	}
}

// Close releases the resources Run wired. It is a no-op before Run or after
// a previous Close.
func (a *App) Close() {
	a.mu.Lock()
	cleanup := a.cleanup
	a.cleanup = nil
	a.mu.Unlock()

	if cleanup != nil {
		cleanup()
		a.logger.Info("dependencies released")
	}
}
