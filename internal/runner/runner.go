// Package runner owns the process lifecycle: one batch cycle, or an
// initial cycle followed by watch-triggered cycles until shutdown.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vmunix/nfosync/internal/events"
	"github.com/vmunix/nfosync/internal/lock"
	"github.com/vmunix/nfosync/internal/syncer"
	"github.com/vmunix/nfosync/internal/watch"
)

// TriggerBatch labels the single cycle of batch mode.
const TriggerBatch = "batch"

// pruneInterval is how often the event log is trimmed in watch mode.
const pruneInterval = time.Hour

// Syncer runs sync cycles.
type Syncer interface {
	RunOnce(ctx context.Context, trigger string) (*syncer.Report, error)
	Cycle(ctx context.Context, trigger string) error
	Roots(ctx context.Context) ([]string, error)
}

// Pruner trims persisted events.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Config for the runner.
type Config struct {
	Watch     bool
	Debounce  time.Duration
	Lock      lock.TryLocker // single-flight lock for watch cycles
	Retention time.Duration  // event log retention, 0 keeps everything
}

// Runner manages the sync components.
type Runner struct {
	syncer Syncer
	bus    *events.Bus
	pruner Pruner
	config Config
	logger *slog.Logger
}

// New creates a runner. bus and pruner may be nil.
func New(s Syncer, bus *events.Bus, pruner Pruner, cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		syncer: s,
		bus:    bus,
		pruner: pruner,
		config: cfg,
		logger: logger.With("component", "runner"),
	}
}

// Run blocks until the work is done (batch) or ctx is canceled (watch).
// A canceled context is not an error.
func (r *Runner) Run(ctx context.Context) error {
	if !r.config.Watch {
		_, err := r.syncer.RunOnce(ctx, TriggerBatch)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	roots, err := r.syncer.Roots(ctx)
	if err != nil {
		return err
	}

	coord := watch.New(watch.Options{
		Roots:    roots,
		Debounce: r.config.Debounce,
		Lock:     r.config.Lock,
		Events:   r.bus,
	}, r.syncer.Cycle, r.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coord.Run(ctx)
	})
	if r.pruner != nil && r.config.Retention > 0 {
		g.Go(func() error {
			r.prune(ctx)
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runner) prune(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		n, err := r.pruner.Prune(ctx, r.config.Retention)
		if err != nil && ctx.Err() == nil {
			r.logger.Warn("failed to prune event log", "error", err)
		} else if n > 0 {
			r.logger.Debug("pruned event log", "removed", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
