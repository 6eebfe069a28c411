package batch

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kymoh/elimu/core"
)

var nowFunc = time.Now // mockable

// runTracker accumulates counters and timing/memory metrics for one run.
type runTracker struct {
	sum        RunSummary
	startAlloc uint64
}

func startRun(jobName string) *runTracker {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return &runTracker{
		sum: RunSummary{
			RunID:     uuid.New().String(),
			Job:       jobName,
			StartedAt: nowFunc(),
			Context:   make(map[string]string),
		},
		startAlloc: ms.TotalAlloc,
	}
}

func (t *runTracker) finish() RunSummary {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.TotalAlloc >= t.startAlloc {
		t.sum.MemoryUsed = ms.TotalAlloc - t.startAlloc
	}
	t.sum.Elapsed = nowFunc().Sub(t.sum.StartedAt)
	return t.sum
}

// Runner executes per-item batch operations against the failure ledger.
type Runner struct {
	ledger *Ledger
	logger core.Logger
}

func NewRunner(ledger *Ledger, logger core.Logger) *Runner {
	return &Runner{ledger: ledger, logger: logger}
}

// Retry re-attempts every retryable ledger record for the job, in ledger
// order. A successful item is cleared from the ledger; a failed item has its
// attempt count incremented. One item's failure never aborts the loop.
// Failure to list the ledger is job-level: recorded under JobLevelItem and
// returned to the caller.
func (r *Runner) Retry(ctx context.Context, job Job) (RunSummary, error) {
	run := startRun(job.Kind.String())

	recs, err := r.ledger.Retryable(ctx, job.Kind, job.MaxAttempts)
	if err != nil {
		err = errors.Wrap(err, "listing retryable failures")
		r.logger.Error(err.Error(), err)
		r.ledger.Record(ctx, job.Kind, JobLevelItem, err)
		return run.finish(), err
	}

	for _, rec := range recs {
		if itemErr := r.runItem(ctx, job, rec.ItemID); itemErr != nil {
			run.sum.Failed++
			r.logger.Warn(fmt.Sprintf("%s: retry failed for item %d: %v", job.Kind, rec.ItemID, itemErr), itemErr)
			r.ledger.Record(ctx, job.Kind, rec.ItemID, itemErr)
			continue
		}
		run.sum.Succeeded++
		if clearErr := r.ledger.Clear(ctx, job.Kind, rec.ItemID); clearErr != nil {
			r.logger.Warn(fmt.Sprintf("%s: clearing ledger record for item %d: %v", job.Kind, rec.ItemID, clearErr), clearErr)
		}
	}

	return run.finish(), nil
}

// Process runs the job's operation over an explicit item set, recording each
// failure in the ledger. Used for full batch passes (e.g. student sync).
func (r *Runner) Process(ctx context.Context, job Job, items []int) (RunSummary, error) {
	run := startRun(job.Kind.String())

	for _, itemID := range items {
		if itemErr := r.runItem(ctx, job, itemID); itemErr != nil {
			run.sum.Failed++
			r.logger.Warn(fmt.Sprintf("%s: processing item %d: %v", job.Kind, itemID, itemErr), itemErr)
			r.ledger.Record(ctx, job.Kind, itemID, itemErr)
			continue
		}
		run.sum.Succeeded++
	}

	return run.finish(), nil
}

// runItem isolates one item: a panic inside the operation becomes an
// ordinary item failure.
func (r *Runner) runItem(ctx context.Context, job Job, itemID int) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Errorf("panic: %v", rec)
		}
	}()
	return job.Op(ctx, itemID)
}
