package course

import (
	"time"

	"github.com/volatiletech/null/v8"
)

type Course struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Code      string    `json:"code"`
	IsActive  bool      `json:"is_active"`
	StartDate time.Time `json:"start_date"` // UTC
	EndDate   time.Time `json:"end_date"`   // UTC
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Open reports whether the course is running at the given time.
func (c Course) Open(at time.Time) bool {
	return c.IsActive && !c.StartDate.After(at) && !c.EndDate.Before(at)
}

// Enrolment links a student to a course with a completion percentage.
type Enrolment struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	CourseID  int       `json:"course_id"`
	IsActive  bool      `json:"is_active"`
	Progress  int       `json:"progress"` // completion percentage, 0-100
	DeletedAt null.Time `json:"deleted_at"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

func (e Enrolment) Complete() bool { return e.Progress == 100 }
func (e Enrolment) Deleted() bool  { return e.DeletedAt.Valid }

type NewCourse struct {
	Title     string    `json:"title" validate:"required"`
	Code      string    `json:"code" validate:"required,alphanum_"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
}

type UpdateCourse struct {
	Title     string    `json:"title"`
	Code      string    `json:"code" validate:"omitempty,alphanum_"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	IsActive  *bool     `json:"is_active"`
}

type NewEnrolment struct {
	UserID   int `json:"user_id" validate:"required"`
	CourseID int `json:"course_id" validate:"required"`
}

type UpdateProgress struct {
	Progress int `json:"progress" validate:"min=0,max=100"`
}

// QueryFilter applies AND operation on available fields.
type QueryFilter struct {
	Search   string    `json:"search" query:"search"` // matches Title or Code
	IsActive *bool     `json:"is_active" query:"is_active"`
	OpenAt   time.Time `json:"-" query:"-"`
}

// EnrolmentFilter applies AND operation on available fields.
type EnrolmentFilter struct {
	UserID         int   `json:"user_id" query:"user_id"`
	CourseID       int   `json:"course_id" query:"course_id"`
	IsActive       *bool `json:"is_active" query:"is_active"`
	Incomplete     bool  `json:"incomplete" query:"incomplete"`
	IncludeDeleted bool  `json:"include_deleted" query:"include_deleted"`
}
