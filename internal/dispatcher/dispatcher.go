// Package dispatcher accepts cycle requests, records them, and feeds the
// single worker. It can also request cycles on a fixed interval.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
	"github.com/JakeFAU/catalog-alerts/internal/worker"
)

// Config controls scheduling.
type Config struct {
	// Interval requests a cycle on every tick when positive.
	Interval time.Duration
}

// Dispatcher owns the queue producer side and the worker lifecycle.
type Dispatcher struct {
	queue  alert.Queue
	cycles alert.CycleStore
	ids    alert.IDGenerator
	clock  alert.Clock
	worker *worker.Worker
	cfg    Config
	logger *zap.Logger
}

// New creates a Dispatcher.
func New(
	queue alert.Queue,
	cycles alert.CycleStore,
	ids alert.IDGenerator,
	clock alert.Clock,
	w *worker.Worker,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:  queue,
		cycles: cycles,
		ids:    ids,
		clock:  clock,
		worker: w,
		cfg:    cfg,
		logger: logger,
	}
}

// Run starts the worker and scheduler and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	if d.worker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker.Run(ctx)
		}()
	}
	if d.cfg.Interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.schedule(ctx)
		}()
	}
	<-ctx.Done()
	wg.Wait()
}

// Submit records a queued cycle and enqueues it.
func (d *Dispatcher) Submit(ctx context.Context) (alert.Cycle, error) {
	id, err := d.ids.NewID()
	if err != nil {
		return alert.Cycle{}, fmt.Errorf("generate cycle id: %w", err)
	}
	cycle := alert.Cycle{
		ID:        id,
		Status:    alert.CycleStatusQueued,
		Submitted: d.clock.Now(),
	}
	if err := d.cycles.CreateCycle(ctx, cycle); err != nil {
		return alert.Cycle{}, fmt.Errorf("create cycle: %w", err)
	}
	item := alert.QueueItem{CycleID: id, Submitted: cycle.Submitted.Unix()}
	if err := d.queue.Enqueue(ctx, item); err != nil {
		if updErr := d.cycles.UpdateCycleStatus(ctx, id, alert.CycleStatusFailed, "not queued: "+err.Error(), nil); updErr != nil {
			d.logger.Error("mark unqueued cycle failed", zap.String("cycle_id", id), zap.Error(updErr))
		}
		return alert.Cycle{}, fmt.Errorf("queue enqueue: %w", err)
	}
	d.logger.Debug("cycle queued", zap.String("cycle_id", id))
	return cycle, nil
}

func (d *Dispatcher) schedule(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Submit(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				d.logger.Warn("scheduled cycle not queued", zap.Error(err))
			}
		}
	}
}
