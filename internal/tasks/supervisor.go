package tasks

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"ledgermeta/internal/config"
	"ledgermeta/internal/metrics"
)

// Plan lists the tasks to run for cfg
func Plan(cfg *config.Config) []string {
	plan := []string{Snapshot, Sync}
	if cfg.Backfill.Enabled {
		plan = append(plan, Backfill)
	}
	return plan
}

// Supervisor runs the snapshot task to completion, then every other task
// concurrently. The first failure cancels the rest, except for detached
// tasks: a failed backfill is logged and leaves sync running.
type Supervisor struct {
	registry Registry
	tc       *Context
	detached map[string]bool
}

// NewSupervisor creates a supervisor building tasks from registry
func NewSupervisor(registry Registry, tc *Context) *Supervisor {
	return &Supervisor{
		registry: registry,
		tc:       tc,
		detached: map[string]bool{Backfill: true},
	}
}

// Run executes the named tasks
func (s *Supervisor) Run(ctx context.Context, names []string) error {
	var rest []string
	for _, name := range names {
		if name == Snapshot {
			if err := s.runOne(ctx, name); err != nil {
				return err
			}
			continue
		}
		rest = append(rest, name)
	}
	if len(rest) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range rest {
		g.Go(func() error {
			err := s.runOne(ctx, name)
			if err != nil && s.detached[name] && ctx.Err() == nil {
				metrics.ErrorsTotal.WithLabelValues(name).Inc()
				slog.Warn("⚠️ Detached task failed, others keep running", "task", name, "error", err)
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

func (s *Supervisor) runOne(ctx context.Context, name string) (err error) {
	task, err := s.registry.Build(ctx, name, s.tc)
	if err != nil {
		return err
	}
	defer func() {
		if terr := task.Terminate(); terr != nil {
			slog.Error("Failed to terminate task", "task", name, "error", terr)
			err = errors.Join(err, terr)
		}
	}()

	slog.Info("▶️ Task started", "task", name)
	err = task.Run(ctx)
	switch {
	case err == nil:
		slog.Info("⏹️ Task finished", "task", name)
	case errors.Is(err, context.Canceled):
		slog.Info("⏹️ Task stopped", "task", name)
	default:
		slog.Error("Task failed", "task", name, "error", err)
	}
	return err
}
