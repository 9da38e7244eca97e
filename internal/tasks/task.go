// Package tasks wires the snapshot, sync and backfill engines into
// runnable tasks and supervises them.
package tasks

import (
	"context"
	"fmt"
	"sort"

	"ledgermeta/internal/config"
	"ledgermeta/internal/ledger/retry"
	"ledgermeta/internal/storage"
	"ledgermeta/internal/xrpl"
)

// Task names
const (
	Snapshot = "snapshot"
	Sync     = "sync"
	Backfill = "backfill"
)

// Task is one long-running unit of work. Terminate is always called once
// Run has returned.
type Task interface {
	Run(ctx context.Context) error
	Terminate() error
}

// Context carries the shared resources tasks are built from
type Context struct {
	Config     *config.Config
	Pool       *xrpl.Pool
	DB         *storage.DB
	Repository *storage.PostgresRepository
	Retry      retry.Strategy
}

// Constructor builds a task
type Constructor func(ctx context.Context, tc *Context) (Task, error)

// Registry resolves task names to constructors
type Registry map[string]Constructor

// DefaultRegistry returns the built-in tasks
func DefaultRegistry() Registry {
	return Registry{
		Snapshot: NewSnapshotTask,
		Sync:     NewSyncTask,
		Backfill: NewBackfillTask,
	}
}

// Build constructs the named task
func (r Registry) Build(ctx context.Context, name string, tc *Context) (Task, error) {
	constructor, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("unknown task %q (known: %v)", name, r.Names())
	}
	task, err := constructor(ctx, tc)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s task: %w", name, err)
	}
	return task, nil
}

// Names lists the registered task names
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
