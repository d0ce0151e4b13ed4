// Package scheduler drives periodic synchronization runs when the server is
// configured with an interval and a competitor list source.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/brightline/vantage/internal/syncer"
)

// Runner triggers one synchronization run. Implemented by syncer.Syncer.
type Runner interface {
	Run(ctx context.Context, names []string) (*syncer.Report, error)
}

// NamesSource supplies the competitor names for a scheduled run. It is
// called fresh on every tick so edits to the underlying list apply without
// a restart.
type NamesSource func() ([]string, error)

// Coordinator runs the sync pipeline on a fixed interval.
type Coordinator struct {
	runner   Runner
	names    NamesSource
	interval time.Duration
}

// New creates a scheduled-sync coordinator.
func New(runner Runner, names NamesSource, interval time.Duration) *Coordinator {
	return &Coordinator{
		runner:   runner,
		names:    names,
		interval: interval,
	}
}

// Run starts the coordinator loop. It blocks until ctx is cancelled.
//
// The first run waits a full interval rather than firing at startup: runs
// hit two rate-limited external services, and an operator restarting the
// server repeatedly should not burn the day's call budget on boot.
func (c *Coordinator) Run(ctx context.Context) {
	slog.Info("sync coordinator started",
		"component", "scheduler",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync coordinator stopped",
				"component", "scheduler",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.runOnce(ctx)
		}
	}
}

func (c *Coordinator) runOnce(ctx context.Context) {
	names, err := c.names()
	if err != nil {
		slog.Error("scheduled sync skipped",
			"component", "scheduler",
			"error", err,
		)
		return
	}
	if len(names) == 0 {
		slog.Warn("scheduled sync skipped",
			"component", "scheduler",
			"reason", "empty_names",
		)
		return
	}

	report, err := c.runner.Run(ctx, names)
	if err != nil {
		slog.Error("scheduled sync run failed",
			"component", "scheduler",
			"error", err,
		)
		return
	}

	counts := report.Counts()
	slog.Info("scheduled sync run finished",
		"component", "scheduler",
		"run_id", report.RunID,
		"created", counts[syncer.OutcomeCreated],
		"updated", counts[syncer.OutcomeUpdated],
		"unchanged", counts[syncer.OutcomeUnchanged],
		"failed", counts[syncer.OutcomeFailed],
	)
}
