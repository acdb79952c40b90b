package orchestrator

import (
	"context"
	"time"

	"github.com/assistanttechnology55/hackathon-phase3-backend/app/core/tools"
)

// batchRunner executes one turn's tool calls as an ordered queue with a
// single worker. Order is the oracle's order; later calls may depend on
// earlier effects, so there is no parallel fan-out and no reordering.
type batchRunner struct {
	registry  *tools.Registry
	retryWait time.Duration
}

type batchReport struct {
	Outcomes []tools.Outcome
	Retried  int
	Aborted  int
}

func newBatchRunner(registry *tools.Registry, retryWait time.Duration) *batchRunner {
	if retryWait <= 0 {
		retryWait = 200 * time.Millisecond
	}
	return &batchRunner{registry: registry, retryWait: retryWait}
}

// run executes every call and always returns one outcome per call. A failed
// call does not stop the batch; only store unavailability does, after one
// bounded retry, with the remainder marked aborted instead of retried
// indefinitely.
func (r *batchRunner) run(ctx context.Context, userID string, calls []tools.Call) batchReport {
	report := batchReport{Outcomes: make([]tools.Outcome, 0, len(calls))}
	storeDown := false

	for _, call := range calls {
		if storeDown || ctx.Err() != nil {
			reason := "aborted: task store unavailable earlier in the batch"
			if !storeDown {
				reason = "aborted: turn canceled before execution"
			}
			report.Aborted++
			report.Outcomes = append(report.Outcomes, tools.Outcome{
				CallID:    call.ID,
				Tool:      call.Name,
				Arguments: call.Arguments,
				Status:    tools.StatusAborted,
				Error:     reason,
			})
			continue
		}

		outcome := r.registry.Execute(ctx, userID, call)
		if outcome.Status == tools.StatusStoreUnavailable {
			if waitErr := sleepCtx(ctx, r.retryWait); waitErr == nil {
				report.Retried++
				outcome = r.registry.Execute(ctx, userID, call)
			}
			if outcome.Status == tools.StatusStoreUnavailable {
				storeDown = true
			}
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	return report
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
