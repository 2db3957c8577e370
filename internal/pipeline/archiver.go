package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// ArchiveRunner moves terminal orders and fills older than the retention
// window out of Postgres into cold storage. Unlike the other components it
// waits a full interval before the first run, so a fresh deployment never
// archives on boot.
type ArchiveRunner struct {
	archiver      domain.Archiver
	interval      time.Duration
	retentionDays int
	logger        *slog.Logger
}

// NewArchiveRunner creates an ArchiveRunner.
func NewArchiveRunner(archiver domain.Archiver, interval time.Duration, retentionDays int, logger *slog.Logger) *ArchiveRunner {
	return &ArchiveRunner{
		archiver:      archiver,
		interval:      interval,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Run archives on every interval until the context is cancelled.
func (r *ArchiveRunner) Run(ctx context.Context) error {
	r.logger.Info("archiver started",
		slog.Duration("interval", r.interval),
		slog.Int("retention_days", r.retentionDays))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.archive(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *ArchiveRunner) archive(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -r.retentionDays)

	fills, err := r.archiver.ArchiveFills(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiver: fills before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	orders, err := r.archiver.ArchiveOrders(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiver: orders before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	if fills > 0 || orders > 0 {
		r.logger.InfoContext(ctx, "archive run complete",
			slog.Int("fills", fills),
			slog.Int("orders", orders),
			slog.String("cutoff", cutoff.Format(time.RFC3339)))
	}
	return nil
}
