package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/kymoh/elimu/core"
	"github.com/kymoh/elimu/core/course"
)

type courseRepository struct {
	courses *courseTable
	enrols  *enrolTable
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{courses: db.course, enrols: db.enrol}
}

func (repo *courseRepository) queryCourses() []course.Course {
	courses := make([]course.Course, 0, len(repo.courses.table))
	for _, c := range repo.courses.table {
		courses = append(courses, *c)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].ID < courses[j].ID })
	return courses
}

func (repo *courseRepository) queryEnrols() []course.Enrolment {
	enrols := make([]course.Enrolment, 0, len(repo.enrols.table))
	for _, e := range repo.enrols.table {
		enrols = append(enrols, *e)
	}
	sort.Slice(enrols, func(i, j int) bool { return enrols[i].ID < enrols[j].ID })
	return enrols
}

func (repo *courseRepository) CheckCodeUniqueness(_ context.Context, code string, excludedCourses ...course.Course) error {
	repo.courses.RLock()
	defer repo.courses.RUnlock()

outer:
	for _, crs := range repo.queryCourses() {
		if crs.Code != code {
			continue
		}
		for _, excl := range excludedCourses {
			if excl.ID == crs.ID {
				continue outer
			}
		}
		return course.ErrCodeExists
	}
	return nil
}

func (repo *courseRepository) CreateCourse(_ context.Context, crs course.Course) (course.Course, error) {
	repo.courses.Lock()
	defer repo.courses.Unlock()

	repo.courses.pk++
	crs.ID = repo.courses.pk
	repo.courses.table[crs.ID] = &crs
	return crs, nil
}

func (repo *courseRepository) GetCourseByID(_ context.Context, id int) (course.Course, error) {
	repo.courses.RLock()
	defer repo.courses.RUnlock()

	if crs, ok := repo.courses.table[id]; ok {
		return *crs, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter *course.QueryFilter, ordering ...core.DBOrdering) ([]course.Course, error) {
	repo.courses.RLock()
	defer repo.courses.RUnlock()

	courses := repo.queryCourses()
	if filter == nil {
		return courses, nil
	}

	filtered := make([]course.Course, 0, len(courses))
	for _, crs := range courses {
		if filter.Search != "" {
			search := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(crs.Title), search) &&
				!strings.Contains(strings.ToLower(crs.Code), search) {
				continue
			}
		}
		if filter.IsActive != nil && crs.IsActive != *filter.IsActive {
			continue
		}
		if !filter.OpenAt.IsZero() && !crs.Open(filter.OpenAt) {
			continue
		}
		filtered = append(filtered, crs)
	}
	return filtered, nil
}

func (repo *courseRepository) UpdateCourse(_ context.Context, crs course.Course, isActive *bool) (course.Course, error) {
	repo.courses.Lock()
	defer repo.courses.Unlock()

	existing, ok := repo.courses.table[crs.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}

	if crs.Title != "" {
		existing.Title = crs.Title
	}
	if crs.Code != "" {
		existing.Code = crs.Code
	}
	if !crs.StartDate.IsZero() {
		existing.StartDate = crs.StartDate
	}
	if !crs.EndDate.IsZero() {
		existing.EndDate = crs.EndDate
	}
	if isActive != nil {
		existing.IsActive = *isActive
	}
	existing.UpdatedAt = crs.UpdatedAt
	return *existing, nil
}

func (repo *courseRepository) DeleteCoursesByID(_ context.Context, ids ...int) error {
	repo.courses.Lock()
	defer repo.courses.Unlock()

	for _, id := range ids {
		delete(repo.courses.table, id)
	}
	return nil
}

func (repo *courseRepository) CreateEnrolment(_ context.Context, enr course.Enrolment) (course.Enrolment, error) {
	repo.enrols.Lock()
	defer repo.enrols.Unlock()

	repo.enrols.pk++
	enr.ID = repo.enrols.pk
	repo.enrols.table[enr.ID] = &enr
	return enr, nil
}

func (repo *courseRepository) GetEnrolmentByID(_ context.Context, id int) (course.Enrolment, error) {
	repo.enrols.RLock()
	defer repo.enrols.RUnlock()

	if enr, ok := repo.enrols.table[id]; ok {
		return *enr, nil
	}
	return course.Enrolment{}, course.ErrEnrolmentNotFound
}

func (repo *courseRepository) QueryEnrolments(_ context.Context, filter *course.EnrolmentFilter) ([]course.Enrolment, error) {
	repo.enrols.RLock()
	defer repo.enrols.RUnlock()

	enrols := repo.queryEnrols()
	filtered := make([]course.Enrolment, 0, len(enrols))
	for _, enr := range enrols {
		if filter != nil {
			if filter.UserID != 0 && enr.UserID != filter.UserID {
				continue
			}
			if filter.CourseID != 0 && enr.CourseID != filter.CourseID {
				continue
			}
			if filter.IsActive != nil && enr.IsActive != *filter.IsActive {
				continue
			}
			if filter.Incomplete && enr.Complete() {
				continue
			}
			if !filter.IncludeDeleted && enr.Deleted() {
				continue
			}
		} else if enr.Deleted() {
			continue
		}
		filtered = append(filtered, enr)
	}
	return filtered, nil
}

func (repo *courseRepository) UpdateEnrolmentProgress(_ context.Context, id, progress int) (course.Enrolment, error) {
	repo.enrols.Lock()
	defer repo.enrols.Unlock()

	enr, ok := repo.enrols.table[id]
	if !ok {
		return course.Enrolment{}, course.ErrEnrolmentNotFound
	}
	enr.Progress = progress
	enr.UpdatedAt = time.Now().UTC()
	return *enr, nil
}

func (repo *courseRepository) SoftDeleteEnrolment(_ context.Context, id int, at time.Time) error {
	repo.enrols.Lock()
	defer repo.enrols.Unlock()

	enr, ok := repo.enrols.table[id]
	if !ok {
		return course.ErrEnrolmentNotFound
	}
	enr.DeletedAt = null.TimeFrom(at)
	enr.IsActive = false
	enr.UpdatedAt = at
	return nil
}
