package batch

import (
	"context"
	"fmt"

	"github.com/kymoh/elimu/core"
)

type (
	// Repository persists the failure ledger. At most one live record exists
	// per (job name, item) pair.
	Repository interface {
		// RecordFailure inserts a record for the pair, or increments its
		// attempt count and overwrites the last error if one exists.
		RecordFailure(ctx context.Context, jobName string, itemID int, cause string) error
		// QueryRetryable returns records with attempts below maxAttempts,
		// oldest first.
		QueryRetryable(ctx context.Context, jobName string, maxAttempts int) ([]FailureRecord, error)
		// QueryFailures returns all records, optionally restricted to one
		// job name ("" matches all), oldest first.
		QueryFailures(ctx context.Context, jobName string) ([]FailureRecord, error)
		ClearFailure(ctx context.Context, jobName string, itemID int) error
	}

	// Ledger is the bookkeeping facade used by runners and notifiers.
	Ledger struct {
		repo   Repository
		logger core.Logger
	}
)

func NewLedger(repo Repository, logger core.Logger) *Ledger {
	return &Ledger{repo: repo, logger: logger}
}

// Record writes the failure best-effort: a ledger write error is logged and
// swallowed so it never masks the failure being recorded.
func (l *Ledger) Record(ctx context.Context, kind Kind, itemID int, cause error) {
	if err := l.repo.RecordFailure(ctx, kind.String(), itemID, cause.Error()); err != nil {
		l.logger.Error(fmt.Sprintf("recording failure %s/%d: %v", kind, itemID, err), err)
	}
}

func (l *Ledger) Retryable(ctx context.Context, kind Kind, maxAttempts int) ([]FailureRecord, error) {
	return l.repo.QueryRetryable(ctx, kind.String(), maxAttempts)
}

func (l *Ledger) Clear(ctx context.Context, kind Kind, itemID int) error {
	return l.repo.ClearFailure(ctx, kind.String(), itemID)
}

// Failures lists ledger records for operator inspection.
func (l *Ledger) Failures(ctx context.Context, jobName string) ([]FailureRecord, error) {
	return l.repo.QueryFailures(ctx, jobName)
}
