package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/kymoh/elimu/core/course"
	"github.com/kymoh/elimu/core/user"
)

func seedCourse(t *testing.T, repo course.Repository, title, code string, isActive bool) course.Course {
	t.Helper()

	tstamp := time.Now().UTC()
	crs, err := repo.CreateCourse(context.Background(), course.Course{
		Title:     title,
		Code:      code,
		IsActive:  isActive,
		StartDate: tstamp.AddDate(0, -1, 0),
		EndDate:   tstamp.AddDate(0, 2, 0),
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("seedCourse() failed: %v", err)
	}
	return crs
}

func TestCourseApi(t *testing.T) {
	app := setup(t)

	var (
		admin   = createUser(t, app.usrRepo, "Admin", "admin", "admin@test.elimu", "Sup3rS3cret", []string{user.RoleAdmin}, true)
		student = createUser(t, app.usrRepo, "Ada Lovelace", "ada", "ada@test.elimu", "Sup3rS3cret", []string{user.RoleStudent}, true)

		goCrs  = seedCourse(t, app.crsRepo, "Intro to Go", "go101", true)
		dbCrs  = seedCourse(t, app.crsRepo, "Databases", "db201", true)
		oldCrs = seedCourse(t, app.crsRepo, "Retired Pascal", "pas99", false)
		binCrs = seedCourse(t, app.crsRepo, "Bin Me", "bin1", true)
	)

	enr, err := app.crsRepo.CreateEnrolment(context.Background(), course.Enrolment{
		UserID:    student.ID,
		CourseID:  goCrs.ID,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seeding enrolment failed: %v", err)
	}

	var (
		adminToken   = getToken(t, app.conf, admin)
		studentToken = getToken(t, app.conf, student)
	)

	var (
		forbiddenResp = marchallObj(t, httpErr{Error: "permission denied"})
		notFoundResp  = marchallObj(t, httpErr{Error: "not found"})
		allCourses    = marchallObj(t, []course.Course{goCrs, dbCrs, oldCrs, binCrs})
		goCrsResp     = marchallObj(t, goCrs)
	)

	tests := []httpTest{
		{name: "courses, anonymous", method: http.MethodGet, path: "/v1/courses",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "courses, any authed user", method: http.MethodGet, path: "/v1/courses", token: studentToken,
			wantCode: http.StatusOK, wantData: allCourses},
		{name: "courses, search filter", method: http.MethodGet, path: "/v1/courses?search=GO101", token: studentToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, []course.Course{goCrs})},
		{name: "courses, is_active filter", method: http.MethodGet, path: "/v1/courses?is_active=false", token: adminToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, []course.Course{oldCrs})},

		{name: "course detail", method: http.MethodGet, path: fmt.Sprintf("/v1/courses/%d", goCrs.ID), token: studentToken,
			wantCode: http.StatusOK, wantData: goCrsResp},
		{name: "course detail, unknown id", method: http.MethodGet, path: "/v1/courses/999", token: studentToken,
			wantCode: http.StatusNotFound, wantData: notFoundResp},
		{name: "course detail, malformed id", method: http.MethodGet, path: "/v1/courses/nah", token: studentToken,
			wantCode: http.StatusNotFound, wantData: notFoundResp},

		{name: "course create, non-admin", method: http.MethodPost, path: "/v1/courses", token: studentToken,
			body:     []byte(`{"title": "Hacking", "code": "HAX1", "start_date": "2026-01-01T00:00:00Z", "end_date": "2026-06-01T00:00:00Z"}`),
			wantCode: http.StatusForbidden, wantData: forbiddenResp},
		{name: "course create, missing fields", method: http.MethodPost, path: "/v1/courses", token: adminToken,
			body:     []byte(`{"title": "No Dates"}`),
			wantCode: http.StatusBadRequest},
		{name: "course create, duplicate code", method: http.MethodPost, path: "/v1/courses", token: adminToken,
			body:     []byte(`{"title": "Go Again", "code": "GO101", "start_date": "2026-01-01T00:00:00Z", "end_date": "2026-06-01T00:00:00Z"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"code": "a course with this code already exists"})},
		{name: "course create, admin ok", method: http.MethodPost, path: "/v1/courses", token: adminToken,
			body:     []byte(`{"title": "Networking", "code": "NET301", "start_date": "2026-01-01T00:00:00Z", "end_date": "2026-06-01T00:00:00Z"}`),
			wantCode: http.StatusCreated},

		{name: "course update, non-admin", method: http.MethodPut, path: fmt.Sprintf("/v1/courses/%d", goCrs.ID), token: studentToken,
			body: []byte(`{"title": "Mine Now"}`), wantCode: http.StatusForbidden, wantData: forbiddenResp},
		{name: "course update, admin ok", method: http.MethodPut, path: fmt.Sprintf("/v1/courses/%d", dbCrs.ID), token: adminToken,
			body: []byte(`{"title": "Databases II"}`), wantCode: http.StatusOK},
		{name: "course update, unknown id", method: http.MethodPut, path: "/v1/courses/999", token: adminToken,
			body: []byte(`{"title": "Ghost"}`), wantCode: http.StatusNotFound, wantData: notFoundResp},

		{name: "course delete, non-admin", method: http.MethodDelete, path: fmt.Sprintf("/v1/courses/%d", binCrs.ID), token: studentToken,
			wantCode: http.StatusForbidden, wantData: forbiddenResp},
		{name: "course delete, admin ok", method: http.MethodDelete, path: fmt.Sprintf("/v1/courses/%d", binCrs.ID), token: adminToken,
			wantCode: http.StatusNoContent},

		{name: "enrolments, non-admin", method: http.MethodGet, path: "/v1/enrolments", token: studentToken,
			wantCode: http.StatusForbidden, wantData: forbiddenResp},
		{name: "enrolments, admin", method: http.MethodGet, path: "/v1/enrolments", token: adminToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, []course.Enrolment{enr})},
		{name: "enrolments, user filter miss", method: http.MethodGet, path: fmt.Sprintf("/v1/enrolments?user_id=%d", admin.ID), token: adminToken,
			wantCode: http.StatusOK, wantData: []byte("[]")},

		{name: "enrol, missing course", method: http.MethodPost, path: "/v1/enrolments", token: adminToken,
			body:     []byte(fmt.Sprintf(`{"user_id": %d}`, student.ID)),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"course_id": "this field is required"})},
		{name: "enrol, admin ok", method: http.MethodPost, path: "/v1/enrolments", token: adminToken,
			body:     []byte(fmt.Sprintf(`{"user_id": %d, "course_id": %d}`, student.ID, dbCrs.ID)),
			wantCode: http.StatusCreated},

		{name: "progress, out of range", method: http.MethodPut, path: fmt.Sprintf("/v1/enrolments/%d/progress", enr.ID), token: adminToken,
			body:     []byte(`{"progress": 120}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"progress": "progress must be 100 or less"})},
		{name: "progress, admin ok", method: http.MethodPut, path: fmt.Sprintf("/v1/enrolments/%d/progress", enr.ID), token: adminToken,
			body: []byte(`{"progress": 40}`), wantCode: http.StatusOK},
		{name: "progress, unknown enrolment", method: http.MethodPut, path: "/v1/enrolments/999/progress", token: adminToken,
			body: []byte(`{"progress": 40}`), wantCode: http.StatusNotFound, wantData: notFoundResp},

		{name: "withdraw, non-admin", method: http.MethodDelete, path: fmt.Sprintf("/v1/enrolments/%d", enr.ID), token: studentToken,
			wantCode: http.StatusForbidden, wantData: forbiddenResp},
		{name: "withdraw, admin ok", method: http.MethodDelete, path: fmt.Sprintf("/v1/enrolments/%d", enr.ID), token: adminToken,
			wantCode: http.StatusNoContent},
		{name: "withdraw, unknown enrolment", method: http.MethodDelete, path: "/v1/enrolments/999", token: adminToken,
			wantCode: http.StatusNotFound, wantData: notFoundResp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
