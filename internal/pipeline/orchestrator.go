// Package pipeline runs the exchange's background loops: settlement of
// pending fills, order expiry, market sync, stats refresh and cold-storage
// archival.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// publisher is the outbound half of the signal bus.
type publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// auditLogger is the append half of the audit store.
type auditLogger interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}

// Orchestrator supervises the pipeline goroutines. Nil components are
// skipped, so a deployment can run any subset.
type Orchestrator struct {
	settler  *Settler
	sweeper  *Sweeper
	syncer   *Syncer
	stats    *StatsUpdater
	archiver *ArchiveRunner
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator over the given components.
func NewOrchestrator(
	settler *Settler,
	sweeper *Sweeper,
	syncer *Syncer,
	stats *StatsUpdater,
	archiver *ArchiveRunner,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		settler:  settler,
		sweeper:  sweeper,
		syncer:   syncer,
		stats:    stats,
		archiver: archiver,
		logger:   logger,
	}
}

// Run starts every configured component and blocks until the context is
// cancelled or one of them fails. If a component returns a non-context
// error, the errgroup cancels the shared context and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline starting")

	g, ctx := errgroup.WithContext(ctx)

	run := func(name string, fn func(context.Context) error) {
		g.Go(func() error {
			o.logger.Info("component started", slog.String("component", name))
			err := fn(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("%s: %w", name, err)
		})
	}

	if o.settler != nil {
		run("settler", o.settler.Run)
	}
	if o.sweeper != nil {
		run("sweeper", o.sweeper.Run)
	}
	if o.syncer != nil {
		run("syncer", o.syncer.Run)
	}
	if o.stats != nil {
		run("stats", o.stats.Run)
	}
	if o.archiver != nil {
		run("archiver", o.archiver.Run)
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline stopped cleanly")
	return nil
}
