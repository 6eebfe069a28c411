package course

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/kymoh/elimu/core"
)

var (
	// errors
	ErrNotFound          = errors.New("course not found")
	ErrEnrolmentNotFound = errors.New("enrolment not found")
	ErrCodeExists        = errors.New("a course with this code already exists")
	ErrAlreadyEnrolled   = errors.New("student is already enrolled in this course")
)

type (
	Repository interface {
		CheckCodeUniqueness(ctx context.Context, code string, excludedCourses ...Course) error
		CreateCourse(ctx context.Context, crs Course) (Course, error)
		GetCourseByID(ctx context.Context, id int) (Course, error)
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Course, error)
		UpdateCourse(ctx context.Context, crs Course, isActive *bool) (Course, error)
		DeleteCoursesByID(ctx context.Context, ids ...int) error

		CreateEnrolment(ctx context.Context, enr Enrolment) (Enrolment, error)
		GetEnrolmentByID(ctx context.Context, id int) (Enrolment, error)
		QueryEnrolments(ctx context.Context, filter *EnrolmentFilter) ([]Enrolment, error)
		UpdateEnrolmentProgress(ctx context.Context, id, progress int) (Enrolment, error)
		SoftDeleteEnrolment(ctx context.Context, id int, at time.Time) error
	}

	Service struct {
		db   core.DB
		repo Repository
	}
)

func NewService(db core.DB, repo Repository) *Service {
	return &Service{db: db, repo: repo}
}

func (svc *Service) checkCodeUniqueness(ctx context.Context, code string, excl ...Course) error {
	if err := svc.repo.CheckCodeUniqueness(ctx, code, excl...); err != nil {
		if errors.Cause(err) == ErrCodeExists {
			return core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	if err := svc.checkCodeUniqueness(ctx, nc.Code); err != nil {
		return Course{}, err
	}
	now := time.Now().UTC()
	crs := Course{
		Title:     core.CleanString(nc.Title),
		Code:      core.CleanString(nc.Code, true /* lower */),
		IsActive:  true,
		StartDate: nc.StartDate.UTC(),
		EndDate:   nc.EndDate.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateCourse(ctx, crs)
}

func (svc *Service) GetByID(ctx context.Context, id int) (Course, error) {
	return svc.repo.GetCourseByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, filter, ordering...)
}

func (svc *Service) Update(ctx context.Context, id int, uc UpdateCourse) (Course, error) {
	if uc.Code != "" {
		if err := svc.checkCodeUniqueness(ctx, core.CleanString(uc.Code, true /* lower */), Course{ID: id}); err != nil {
			return Course{}, err
		}
	}
	crs := Course{
		ID:        id,
		Title:     core.CleanString(uc.Title),
		Code:      core.CleanString(uc.Code, true /* lower */),
		StartDate: uc.StartDate,
		EndDate:   uc.EndDate,
		UpdatedAt: time.Now().UTC(),
	}
	return svc.repo.UpdateCourse(ctx, crs, uc.IsActive)
}

func (svc *Service) Delete(ctx context.Context, ids ...int) error {
	return svc.repo.DeleteCoursesByID(ctx, ids...)
}

// Enrol registers a student on a course with zero progress.
func (svc *Service) Enrol(ctx context.Context, ne NewEnrolment) (Enrolment, error) {
	existing, err := svc.repo.QueryEnrolments(ctx, &EnrolmentFilter{UserID: ne.UserID, CourseID: ne.CourseID})
	if err != nil {
		return Enrolment{}, errors.Wrap(err, "checking existing enrolment")
	}
	if len(existing) > 0 {
		return Enrolment{}, core.NewValidationError(ErrAlreadyEnrolled,
			core.FieldError{Field: "course_id", Error: ErrAlreadyEnrolled.Error()})
	}

	now := time.Now().UTC()
	enr := Enrolment{
		UserID:    ne.UserID,
		CourseID:  ne.CourseID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateEnrolment(ctx, enr)
}

func (svc *Service) GetEnrolment(ctx context.Context, id int) (Enrolment, error) {
	return svc.repo.GetEnrolmentByID(ctx, id)
}

func (svc *Service) QueryEnrolments(ctx context.Context, filter *EnrolmentFilter) ([]Enrolment, error) {
	return svc.repo.QueryEnrolments(ctx, filter)
}

func (svc *Service) SetProgress(ctx context.Context, id int, up UpdateProgress) (Enrolment, error) {
	return svc.repo.UpdateEnrolmentProgress(ctx, id, up.Progress)
}

// Withdraw soft-deletes an enrolment; the row is kept for reporting.
func (svc *Service) Withdraw(ctx context.Context, id int) error {
	return svc.repo.SoftDeleteEnrolment(ctx, id, time.Now().UTC())
}
