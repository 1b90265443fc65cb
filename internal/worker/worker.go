// Package worker runs queued poll cycles one at a time.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

// CycleRunner executes one poll cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context, cycleID string) (alert.CycleReport, error)
}

// Worker consumes queue items and executes cycles. Exactly one Worker per
// queue keeps cycles from overlapping.
type Worker struct {
	queue  alert.Queue
	cycles alert.CycleStore
	runner CycleRunner
	logger *zap.Logger
}

// New constructs a Worker.
func New(queue alert.Queue, cycles alert.CycleStore, runner CycleRunner, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:  queue,
		cycles: cycles,
		runner: runner,
		logger: logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, alert.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued cycle", zap.String("cycle_id", item.CycleID))
		w.processCycle(ctx, item)
	}
}

func (w *Worker) processCycle(ctx context.Context, item alert.QueueItem) {
	if w.runner == nil {
		w.logger.Error("no cycle runner configured", zap.String("cycle_id", item.CycleID))
		w.updateStatus(ctx, item.CycleID, alert.CycleStatusFailed, "no cycle runner configured", nil)
		return
	}
	if err := w.cycles.UpdateCycleStatus(ctx, item.CycleID, alert.CycleStatusRunning, "", nil); err != nil {
		w.logger.Error("update cycle status failed", zap.String("cycle_id", item.CycleID), zap.Error(err))
		return
	}

	report, err := w.runner.RunCycle(ctx, item.CycleID)
	status, errText := alert.CycleStatusSucceeded, ""
	if err != nil {
		status, errText = alert.CycleStatusFailed, err.Error()
	}
	// Record the outcome even when shutdown cancelled the cycle.
	w.updateStatus(context.WithoutCancel(ctx), item.CycleID, status, errText, &report)
}

func (w *Worker) updateStatus(
	ctx context.Context,
	cycleID string,
	status alert.CycleStatus,
	errText string,
	report *alert.CycleReport,
) {
	if err := w.cycles.UpdateCycleStatus(ctx, cycleID, status, errText, report); err != nil {
		w.logger.Error("final cycle status update failed", zap.String("cycle_id", cycleID), zap.Error(err))
	}
}
