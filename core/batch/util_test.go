package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/kymoh/elimu/core"
)

// testLogger satisfies core.Logger and funnels everything to t.Logf.
type testLogger struct {
	t *testing.T
}

func (l testLogger) Debug(msg string, args ...interface{}) { l.t.Logf("DEBUG %s %v", msg, args) }
func (l testLogger) Info(msg string, args ...interface{})  { l.t.Logf("INFO %s %v", msg, args) }
func (l testLogger) Warn(msg string, args ...interface{})  { l.t.Logf("WARN %s %v", msg, args) }
func (l testLogger) Error(msg string, args ...interface{}) { l.t.Logf("ERROR %s %v", msg, args) }
func (l testLogger) Fatal(msg string, args ...interface{}) { l.t.Fatalf("FATAL %s %v", msg, args) }

// fakeLedgerRepo is an in-memory batch.Repository.
type fakeLedgerRepo struct {
	mu   sync.Mutex
	seq  int
	recs []*FailureRecord

	recordErr error
	queryErr  error
}

var _ Repository = (*fakeLedgerRepo)(nil) // interface compliance check

func (f *fakeLedgerRepo) RecordFailure(_ context.Context, jobName string, itemID int, cause string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.recordErr != nil {
		return f.recordErr
	}
	now := time.Now().UTC()
	for _, rec := range f.recs {
		if rec.JobName == jobName && rec.ItemID == itemID {
			rec.Attempts++
			rec.LastError = cause
			rec.UpdatedAt = now
			return nil
		}
	}
	f.seq++
	f.recs = append(f.recs, &FailureRecord{
		ID:        f.seq,
		JobName:   jobName,
		ItemID:    itemID,
		Attempts:  1,
		LastError: cause,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return nil
}

func (f *fakeLedgerRepo) QueryRetryable(_ context.Context, jobName string, maxAttempts int) ([]FailureRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := make([]FailureRecord, 0, len(f.recs))
	for _, rec := range f.recs {
		if rec.JobName == jobName && rec.Attempts < maxAttempts {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeLedgerRepo) QueryFailures(_ context.Context, jobName string) ([]FailureRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]FailureRecord, 0, len(f.recs))
	for _, rec := range f.recs {
		if jobName == "" || rec.JobName == jobName {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeLedgerRepo) ClearFailure(_ context.Context, jobName string, itemID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, rec := range f.recs {
		if rec.JobName == jobName && rec.ItemID == itemID {
			f.recs = append(f.recs[:i], f.recs[i+1:]...)
			return nil
		}
	}
	return nil
}

// get returns the live record for the pair, if any.
func (f *fakeLedgerRepo) get(jobName string, itemID int) (FailureRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, rec := range f.recs {
		if rec.JobName == jobName && rec.ItemID == itemID {
			return *rec, true
		}
	}
	return FailureRecord{}, false
}

func (f *fakeLedgerRepo) seed(t *testing.T, jobName string, itemID, attempts int) {
	t.Helper()
	f.seq++
	f.recs = append(f.recs, &FailureRecord{
		ID:       f.seq,
		JobName:  jobName,
		ItemID:   itemID,
		Attempts: attempts,
	})
}

// fakeEmailService captures sent messages; failFunc can inject per-message
// transport errors.
type fakeEmailService struct {
	mu       sync.Mutex
	sent     []core.EmailMessage
	failFunc func(msg *core.EmailMessage) error
}

var _ core.EmailService = (*fakeEmailService)(nil)

func (f *fakeEmailService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		_ = f.SendMessage(msg)
	}
}

func (f *fakeEmailService) SendMessage(msg *core.EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failFunc != nil {
		if err := f.failFunc(msg); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, *msg)
	return nil
}

func (f *fakeEmailService) sentByTemplate(name string) []core.EmailMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]core.EmailMessage, 0, len(f.sent))
	for _, msg := range f.sent {
		if msg.TemplateName == name {
			out = append(out, msg)
		}
	}
	return out
}

// fakeAudit records AddNote calls.
type fakeAudit struct {
	mu    sync.Mutex
	notes map[int][]string
	err   error
}

func newFakeAudit() *fakeAudit {
	return &fakeAudit{notes: make(map[int][]string)}
}

func (f *fakeAudit) AddNote(_ context.Context, userID int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.notes[userID] = append(f.notes[userID], body)
	return nil
}

// fakeCandidateRepo serves a fixed candidate set.
type fakeCandidateRepo struct {
	cands    []Candidate
	queryErr error

	// byStudent backs QueryStudentCandidates; a missing key is an unknown
	// student.
	byStudent map[int][]Candidate
}

var _ CandidateRepository = (*fakeCandidateRepo)(nil)

func (f *fakeCandidateRepo) QueryInactiveCandidates(context.Context, Window) ([]Candidate, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.cands, nil
}

func (f *fakeCandidateRepo) QueryStudentCandidates(_ context.Context, studentID int) ([]Candidate, error) {
	cands, ok := f.byStudent[studentID]
	if !ok {
		return nil, errors.Errorf("student %d not found", studentID)
	}
	return cands, nil
}
