package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/kymoh/elimu/core/batch"
	"github.com/kymoh/elimu/core/user"
)

type batchRepository struct {
	failures *failureTable
	users    *userTable
	courses  *courseTable
	enrols   *enrolTable
}

var (
	_ batch.Repository          = (*batchRepository)(nil) // interface compliance checks
	_ batch.CandidateRepository = (*batchRepository)(nil)
)

func NewBatchRepository(db *DB) *batchRepository {
	return &batchRepository{
		failures: db.failure,
		users:    db.user,
		courses:  db.course,
		enrols:   db.enrol,
	}
}

func (repo *batchRepository) RecordFailure(_ context.Context, jobName string, itemID int, cause string) error {
	repo.failures.Lock()
	defer repo.failures.Unlock()

	now := time.Now().UTC()
	for _, rec := range repo.failures.table {
		if rec.JobName == jobName && rec.ItemID == itemID {
			rec.Attempts++
			rec.LastError = cause
			rec.UpdatedAt = now
			return nil
		}
	}
	repo.failures.pk++
	rec := &batch.FailureRecord{
		ID:        repo.failures.pk,
		JobName:   jobName,
		ItemID:    itemID,
		Attempts:  1,
		LastError: cause,
		CreatedAt: now,
		UpdatedAt: now,
	}
	repo.failures.table[rec.ID] = rec
	return nil
}

func (repo *batchRepository) queryFailures(jobName string) []batch.FailureRecord {
	recs := make([]batch.FailureRecord, 0, len(repo.failures.table))
	for _, rec := range repo.failures.table {
		if jobName == "" || rec.JobName == jobName {
			recs = append(recs, *rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs
}

func (repo *batchRepository) QueryRetryable(_ context.Context, jobName string, maxAttempts int) ([]batch.FailureRecord, error) {
	repo.failures.RLock()
	defer repo.failures.RUnlock()

	recs := repo.queryFailures(jobName)
	retryable := make([]batch.FailureRecord, 0, len(recs))
	for _, rec := range recs {
		if rec.Attempts < maxAttempts {
			retryable = append(retryable, rec)
		}
	}
	return retryable, nil
}

func (repo *batchRepository) QueryFailures(_ context.Context, jobName string) ([]batch.FailureRecord, error) {
	repo.failures.RLock()
	defer repo.failures.RUnlock()
	return repo.queryFailures(jobName), nil
}

func (repo *batchRepository) ClearFailure(_ context.Context, jobName string, itemID int) error {
	repo.failures.Lock()
	defer repo.failures.Unlock()

	for id, rec := range repo.failures.table {
		if rec.JobName == jobName && rec.ItemID == itemID {
			delete(repo.failures.table, id)
			return nil
		}
	}
	return nil
}

// candidates walks the joined tables under all read locks. keep must be
// given the student; it decides window membership.
func (repo *batchRepository) candidates(keep func(stu user.User) bool, now time.Time) []batch.Candidate {
	repo.users.RLock()
	defer repo.users.RUnlock()
	repo.courses.RLock()
	defer repo.courses.RUnlock()
	repo.enrols.RLock()
	defer repo.enrols.RUnlock()

	var cands []batch.Candidate
	for _, enr := range repo.enrols.table {
		if !enr.IsActive || enr.Deleted() || enr.Complete() {
			continue
		}
		stu, ok := repo.users.table[enr.UserID]
		if !ok || !stu.IsActive || !keep(*stu) {
			continue
		}
		crs, ok := repo.courses.table[enr.CourseID]
		if !ok || !crs.IsActive || crs.StartDate.After(now) {
			continue
		}

		cand := batch.Candidate{Student: *stu, Enrolment: *enr, Course: *crs}
		if stu.LeaderID.Valid {
			if leader, ok := repo.users.table[stu.LeaderID.Int]; ok {
				l := *leader
				cand.Leader = &l
			}
		}
		cands = append(cands, cand)
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Student.ID != cands[j].Student.ID {
			return cands[i].Student.ID < cands[j].Student.ID
		}
		return cands[i].Enrolment.ID < cands[j].Enrolment.ID
	})
	return cands
}

func (repo *batchRepository) QueryInactiveCandidates(_ context.Context, win batch.Window) ([]batch.Candidate, error) {
	now := time.Now().UTC()
	cands := repo.candidates(func(stu user.User) bool {
		return win.Contains(stu.LastLogin)
	}, now)

	// drop enrolments on courses that ended before the window opened
	kept := cands[:0]
	for _, cand := range cands {
		if !cand.Course.EndDate.Before(win.Start) {
			kept = append(kept, cand)
		}
	}
	return kept, nil
}

func (repo *batchRepository) QueryStudentCandidates(_ context.Context, studentID int) ([]batch.Candidate, error) {
	repo.users.RLock()
	_, ok := repo.users.table[studentID]
	repo.users.RUnlock()
	if !ok {
		return nil, user.ErrNotFound
	}

	now := time.Now().UTC()
	cands := repo.candidates(func(stu user.User) bool {
		return stu.ID == studentID
	}, now)

	kept := cands[:0]
	for _, cand := range cands {
		if !cand.Course.EndDate.Before(now) {
			kept = append(kept, cand)
		}
	}
	return kept, nil
}
