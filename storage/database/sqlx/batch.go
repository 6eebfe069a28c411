package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/kymoh/elimu/core"
	"github.com/kymoh/elimu/core/batch"
	"github.com/kymoh/elimu/core/course"
	"github.com/kymoh/elimu/core/user"
)

type batchRepository struct {
	exec core.DBExecutor
}

var (
	_ batch.Repository          = (*batchRepository)(nil) // interface compliance checks
	_ batch.CandidateRepository = (*batchRepository)(nil)
)

func NewBatchRepository(exec core.DBExecutor) *batchRepository {
	return &batchRepository{exec: exec}
}

func (repo batchRepository) RecordFailure(ctx context.Context, jobName string, itemID int, cause string) error {
	now := time.Now().UTC()
	query, args, err := psql.Insert("batch_failures").
		Columns("job_name", "item_id", "attempts", "last_error", "created_at", "updated_at").
		Values(jobName, itemID, 1, cause, now, now).
		Suffix("ON CONFLICT (job_name, item_id) DO UPDATE SET attempts = batch_failures.attempts + 1, last_error = EXCLUDED.last_error, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building failure upsert")
	}
	if _, err = repo.exec.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "recording failure")
	}
	return nil
}

func (repo batchRepository) queryFailures(ctx context.Context, qb sq.SelectBuilder) ([]batch.FailureRecord, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building failures query")
	}
	rows, err := repo.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying failures")
	}

	var recs []batch.FailureRecord
	if err = sqlx.StructScan(rows, &recs); err != nil {
		return nil, errors.Wrap(err, "scanning failures")
	}
	return recs, nil
}

func (repo batchRepository) QueryRetryable(ctx context.Context, jobName string, maxAttempts int) ([]batch.FailureRecord, error) {
	return repo.queryFailures(ctx, psql.
		Select("id", "job_name", "item_id", "attempts", "last_error", "created_at", "updated_at").
		From("batch_failures").
		Where(sq.Eq{"job_name": jobName}).
		Where(sq.Lt{"attempts": maxAttempts}).
		OrderBy("created_at ASC", "id ASC"))
}

func (repo batchRepository) QueryFailures(ctx context.Context, jobName string) ([]batch.FailureRecord, error) {
	qb := psql.
		Select("id", "job_name", "item_id", "attempts", "last_error", "created_at", "updated_at").
		From("batch_failures").
		OrderBy("created_at ASC", "id ASC")
	if jobName != "" {
		qb = qb.Where(sq.Eq{"job_name": jobName})
	}
	return repo.queryFailures(ctx, qb)
}

func (repo batchRepository) ClearFailure(ctx context.Context, jobName string, itemID int) error {
	query, args, err := psql.Delete("batch_failures").
		Where(sq.Eq{"job_name": jobName, "item_id": itemID}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building failure delete")
	}
	if _, err = repo.exec.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "clearing failure")
	}
	return nil
}

// candidateRow flattens the student/leader/enrolment/course join.
type candidateRow struct {
	StudentID        int         `db:"student_id"`
	StudentName      string      `db:"student_name"`
	StudentEmail     string      `db:"student_email"`
	StudentLastLogin time.Time   `db:"student_last_login"`
	LeaderID         null.Int    `db:"leader_id"`
	LeaderName       null.String `db:"leader_name"`
	LeaderEmail      null.String `db:"leader_email"`
	EnrolmentID      int         `db:"enrolment_id"`
	Progress         int         `db:"progress"`
	CourseID         int         `db:"course_id"`
	CourseTitle      string      `db:"course_title"`
}

func (r candidateRow) toCandidate() batch.Candidate {
	cand := batch.Candidate{
		Student: user.User{
			ID:        r.StudentID,
			Name:      r.StudentName,
			Email:     r.StudentEmail,
			LastLogin: r.StudentLastLogin,
		},
		Enrolment: course.Enrolment{
			ID:       r.EnrolmentID,
			UserID:   r.StudentID,
			CourseID: r.CourseID,
			Progress: r.Progress,
		},
		Course: course.Course{
			ID:    r.CourseID,
			Title: r.CourseTitle,
		},
	}
	if r.LeaderID.Valid {
		cand.Leader = &user.User{
			ID:    r.LeaderID.Int,
			Name:  r.LeaderName.String,
			Email: r.LeaderEmail.String,
		}
	}
	return cand
}

func (repo batchRepository) candidateSelect() sq.SelectBuilder {
	return psql.Select(
		"s.id AS student_id",
		"s.name AS student_name",
		"s.email AS student_email",
		"s.last_login AS student_last_login",
		"l.id AS leader_id",
		"l.name AS leader_name",
		"l.email AS leader_email",
		"e.id AS enrolment_id",
		"e.progress AS progress",
		"c.id AS course_id",
		"c.title AS course_title",
	).
		From("users s").
		LeftJoin("users l ON l.id = s.leader_id").
		Join("enrolments e ON e.user_id = s.id").
		Join("courses c ON c.id = e.course_id").
		Where(sq.Eq{"s.is_active": true}).
		Where(sq.Eq{"e.is_active": true}).
		Where(sq.Eq{"e.deleted_at": nil}).
		Where(sq.NotEq{"e.progress": 100}).
		Where(sq.Eq{"c.is_active": true}).
		OrderBy("s.id ASC", "e.id ASC")
}

func (repo batchRepository) queryCandidates(ctx context.Context, qb sq.SelectBuilder) ([]batch.Candidate, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building candidates query")
	}
	rows, err := repo.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying candidates")
	}

	var found []candidateRow
	if err = sqlx.StructScan(rows, &found); err != nil {
		return nil, errors.Wrap(err, "scanning candidates")
	}
	cands := make([]batch.Candidate, 0, len(found))
	for _, r := range found {
		cands = append(cands, r.toCandidate())
	}
	return cands, nil
}

func (repo batchRepository) QueryInactiveCandidates(ctx context.Context, win batch.Window) ([]batch.Candidate, error) {
	now := time.Now().UTC()
	return repo.queryCandidates(ctx, repo.candidateSelect().
		Where(sq.GtOrEq{"s.last_login": win.Start.UTC()}).
		Where(sq.LtOrEq{"s.last_login": win.End.UTC()}).
		Where(sq.LtOrEq{"c.start_date": now}).
		Where(sq.GtOrEq{"c.end_date": win.Start.UTC()}))
}

func (repo batchRepository) QueryStudentCandidates(ctx context.Context, studentID int) ([]batch.Candidate, error) {
	// the student must exist; a stale ledger item is a failure, not a no-op
	query, args, err := psql.Select("true").From("users").Where(sq.Eq{"id": studentID}).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building student check")
	}
	var exists bool
	if err = repo.exec.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return nil, trapUserNoRowsErr(err, "checking student")
	}

	now := time.Now().UTC()
	return repo.queryCandidates(ctx, repo.candidateSelect().
		Where(sq.Eq{"s.id": studentID}).
		Where(sq.LtOrEq{"c.start_date": now}).
		Where(sq.GtOrEq{"c.end_date": now}))
}
