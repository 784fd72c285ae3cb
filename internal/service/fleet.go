package service

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/taskfleet/taskfleet/internal/worker"
)

// Fleet owns the worker pool and drives its lifecycle as a unit.
type Fleet struct {
	workers []*worker.Worker
}

// NewFleet creates a fleet over the given workers.
func NewFleet(workers ...*worker.Worker) *Fleet {
	return &Fleet{workers: workers}
}

// StartAll starts every worker. Workers whose circuit is open stay
// stopped; that is visible through Statuses, not an error here.
func (f *Fleet) StartAll(ctx context.Context) {
	for _, w := range f.workers {
		w.Start(ctx)
	}
	slog.Info("fleet started", "workers", len(f.workers))
}

// StopAll drains every worker concurrently and waits for all of them.
func (f *Fleet) StopAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range f.workers {
		g.Go(func() error {
			return w.Stop(gctx)
		})
	}
	err := g.Wait()
	slog.Info("fleet stopped", "workers", len(f.workers))
	return err
}

// Ready reports whether every worker is running.
func (f *Fleet) Ready() bool {
	for _, w := range f.workers {
		if !w.Status().IsRunning {
			return false
		}
	}
	return true
}

// Statuses returns every worker's lifecycle and circuit snapshot.
func (f *Fleet) Statuses() []worker.Status {
	out := make([]worker.Status, 0, len(f.workers))
	for _, w := range f.workers {
		out = append(out, w.Status())
	}
	return out
}

// Metrics returns every worker's cumulative counters keyed by name.
func (f *Fleet) Metrics() map[string]worker.MetricsSnapshot {
	out := make(map[string]worker.MetricsSnapshot, len(f.workers))
	for _, w := range f.workers {
		out[w.Name()] = w.Metrics()
	}
	return out
}
