package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/kymoh/elimu/core"
	"github.com/kymoh/elimu/core/course"
)

var courseColumns = []string{
	"id", "title", "code", "is_active", "start_date", "end_date", "created_at", "updated_at",
}

var enrolmentColumns = []string{
	"id", "user_id", "course_id", "is_active", "progress", "deleted_at", "created_at", "updated_at",
}

type courseRow struct {
	ID        int       `db:"id"`
	Title     string    `db:"title"`
	Code      string    `db:"code"`
	IsActive  bool      `db:"is_active"`
	StartDate time.Time `db:"start_date"`
	EndDate   time.Time `db:"end_date"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r courseRow) toCourse() course.Course {
	return course.Course{
		ID:        r.ID,
		Title:     r.Title,
		Code:      r.Code,
		IsActive:  r.IsActive,
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type enrolmentRow struct {
	ID        int       `db:"id"`
	UserID    int       `db:"user_id"`
	CourseID  int       `db:"course_id"`
	IsActive  bool      `db:"is_active"`
	Progress  int       `db:"progress"`
	DeletedAt null.Time `db:"deleted_at"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r enrolmentRow) toEnrolment() course.Enrolment {
	return course.Enrolment{
		ID:        r.ID,
		UserID:    r.UserID,
		CourseID:  r.CourseID,
		IsActive:  r.IsActive,
		Progress:  r.Progress,
		DeletedAt: r.DeletedAt,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type courseRepository struct {
	exec core.DBExecutor
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(exec core.DBExecutor) *courseRepository {
	return &courseRepository{exec: exec}
}

func (repo courseRepository) CheckCodeUniqueness(ctx context.Context, code string, excludedCourses ...course.Course) error {
	qb := psql.Select("true").From("courses").Where(sq.Eq{"code": code})
	if len(excludedCourses) > 0 {
		ids := make([]int, 0, len(excludedCourses))
		for _, c := range excludedCourses {
			ids = append(ids, c.ID)
		}
		qb = qb.Where(sq.NotEq{"id": ids})
	}
	query, args, err := qb.Limit(1).ToSql()
	if err != nil {
		return errors.Wrap(err, "building code uniqueness query")
	}

	var exists bool
	if err = repo.exec.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return errors.Wrap(err, "checking code uniqueness")
	}
	return course.ErrCodeExists
}

func (repo courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	query, args, err := psql.Insert("courses").
		Columns("title", "code", "is_active", "start_date", "end_date", "created_at", "updated_at").
		Values(crs.Title, crs.Code, crs.IsActive, crs.StartDate, crs.EndDate, crs.CreatedAt, crs.UpdatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building course insert")
	}
	if err = repo.exec.QueryRowContext(ctx, query, args...).Scan(&crs.ID); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return crs, nil
}

func (repo courseRepository) GetCourseByID(ctx context.Context, id int) (course.Course, error) {
	query, args, err := psql.Select(courseColumns...).
		From("courses").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building course query")
	}
	rows, err := repo.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "querying course")
	}

	var found []courseRow
	if err = sqlx.StructScan(rows, &found); err != nil {
		return course.Course{}, errors.Wrap(err, "scanning course")
	}
	if len(found) == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return found[0].toCourse(), nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering ...core.DBOrdering) ([]course.Course, error) {
	qb := psql.Select(courseColumns...).From("courses")

	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			qb = qb.Where(sq.Or{
				sq.Expr("title ILIKE ?", val),
				sq.Expr("code ILIKE ?", val),
			})
		}
		if filter.IsActive != nil {
			qb = qb.Where(sq.Eq{"is_active": *filter.IsActive})
		}
		if !filter.OpenAt.IsZero() {
			qb = qb.Where(sq.LtOrEq{"start_date": filter.OpenAt}).
				Where(sq.GtOrEq{"end_date": filter.OpenAt}).
				Where(sq.Eq{"is_active": true})
		}
	}

	for _, ord := range core.DefaultOrdering(ordering, "start_date") {
		qb = qb.OrderBy(ord.String())
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building courses query")
	}
	rows, err := repo.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}

	var found []courseRow
	if err = sqlx.StructScan(rows, &found); err != nil {
		return nil, errors.Wrap(err, "scanning courses")
	}
	courses := make([]course.Course, 0, len(found))
	for _, r := range found {
		courses = append(courses, r.toCourse())
	}
	return courses, nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, crs course.Course, isActive *bool) (course.Course, error) {
	qb := psql.Update("courses").
		Set("updated_at", crs.UpdatedAt).
		Where(sq.Eq{"id": crs.ID})

	if crs.Title != "" {
		qb = qb.Set("title", crs.Title)
	}
	if crs.Code != "" {
		qb = qb.Set("code", crs.Code)
	}
	if !crs.StartDate.IsZero() {
		qb = qb.Set("start_date", crs.StartDate)
	}
	if !crs.EndDate.IsZero() {
		qb = qb.Set("end_date", crs.EndDate)
	}
	if isActive != nil {
		qb = qb.Set("is_active", *isActive)
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building course update")
	}
	res, err := repo.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return repo.GetCourseByID(ctx, crs.ID)
}

func (repo courseRepository) DeleteCoursesByID(ctx context.Context, ids ...int) error {
	query, args, err := psql.Delete("courses").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building courses delete")
	}
	if _, err = repo.exec.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "deleting courses")
	}
	return nil
}

func (repo courseRepository) CreateEnrolment(ctx context.Context, enr course.Enrolment) (course.Enrolment, error) {
	query, args, err := psql.Insert("enrolments").
		Columns("user_id", "course_id", "is_active", "progress", "deleted_at", "created_at", "updated_at").
		Values(enr.UserID, enr.CourseID, enr.IsActive, enr.Progress, enr.DeletedAt, enr.CreatedAt, enr.UpdatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return course.Enrolment{}, errors.Wrap(err, "building enrolment insert")
	}
	if err = repo.exec.QueryRowContext(ctx, query, args...).Scan(&enr.ID); err != nil {
		return course.Enrolment{}, errors.Wrap(err, "inserting enrolment")
	}
	return enr, nil
}

func (repo courseRepository) GetEnrolmentByID(ctx context.Context, id int) (course.Enrolment, error) {
	query, args, err := psql.Select(enrolmentColumns...).
		From("enrolments").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return course.Enrolment{}, errors.Wrap(err, "building enrolment query")
	}
	rows, err := repo.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return course.Enrolment{}, errors.Wrap(err, "querying enrolment")
	}

	var found []enrolmentRow
	if err = sqlx.StructScan(rows, &found); err != nil {
		return course.Enrolment{}, errors.Wrap(err, "scanning enrolment")
	}
	if len(found) == 0 {
		return course.Enrolment{}, course.ErrEnrolmentNotFound
	}
	return found[0].toEnrolment(), nil
}

func (repo courseRepository) QueryEnrolments(ctx context.Context, filter *course.EnrolmentFilter) ([]course.Enrolment, error) {
	qb := psql.Select(enrolmentColumns...).From("enrolments")

	if filter != nil {
		if filter.UserID != 0 {
			qb = qb.Where(sq.Eq{"user_id": filter.UserID})
		}
		if filter.CourseID != 0 {
			qb = qb.Where(sq.Eq{"course_id": filter.CourseID})
		}
		if filter.IsActive != nil {
			qb = qb.Where(sq.Eq{"is_active": *filter.IsActive})
		}
		if filter.Incomplete {
			qb = qb.Where(sq.NotEq{"progress": 100})
		}
		if !filter.IncludeDeleted {
			qb = qb.Where(sq.Eq{"deleted_at": nil})
		}
	} else {
		qb = qb.Where(sq.Eq{"deleted_at": nil})
	}

	query, args, err := qb.OrderBy("id ASC").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building enrolments query")
	}
	rows, err := repo.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrolments")
	}

	var found []enrolmentRow
	if err = sqlx.StructScan(rows, &found); err != nil {
		return nil, errors.Wrap(err, "scanning enrolments")
	}
	enrolments := make([]course.Enrolment, 0, len(found))
	for _, r := range found {
		enrolments = append(enrolments, r.toEnrolment())
	}
	return enrolments, nil
}

func (repo courseRepository) UpdateEnrolmentProgress(ctx context.Context, id, progress int) (course.Enrolment, error) {
	query, args, err := psql.Update("enrolments").
		Set("progress", progress).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return course.Enrolment{}, errors.Wrap(err, "building progress update")
	}
	res, err := repo.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return course.Enrolment{}, errors.Wrap(err, "updating progress")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.Enrolment{}, course.ErrEnrolmentNotFound
	}
	return repo.GetEnrolmentByID(ctx, id)
}

func (repo courseRepository) SoftDeleteEnrolment(ctx context.Context, id int, at time.Time) error {
	query, args, err := psql.Update("enrolments").
		Set("deleted_at", at).
		Set("is_active", false).
		Set("updated_at", at).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building enrolment delete")
	}
	res, err := repo.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "deleting enrolment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.ErrEnrolmentNotFound
	}
	return nil
}
