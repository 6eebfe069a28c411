package dummydb

import (
	"context"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/kymoh/elimu/core/batch"
	"github.com/kymoh/elimu/core/course"
	"github.com/kymoh/elimu/core/user"
)

func seedUser(t *testing.T, db *DB, usr user.User) user.User {
	t.Helper()
	created, err := NewUserRepository(db).CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return created
}

func seedCourse(t *testing.T, db *DB, crs course.Course) course.Course {
	t.Helper()
	created, err := NewCourseRepository(db).CreateCourse(context.Background(), crs)
	if err != nil {
		t.Fatalf("seeding course: %v", err)
	}
	return created
}

func seedEnrolment(t *testing.T, db *DB, enr course.Enrolment) course.Enrolment {
	t.Helper()
	created, err := NewCourseRepository(db).CreateEnrolment(context.Background(), enr)
	if err != nil {
		t.Fatalf("seeding enrolment: %v", err)
	}
	return created
}

func TestQueryInactiveCandidates(t *testing.T) {
	ctx := context.Background()

	// week of 2025-01-06, queried from well after it
	win := batch.Window{
		Start: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 12, 23, 59, 59, 0, time.UTC),
	}
	inWindow := time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	db, err := Open()
	if err != nil {
		t.Fatal(err)
	}

	crs := seedCourse(t, db, course.Course{
		Title:     "Intro to Welding",
		Code:      "WELD101",
		IsActive:  true,
		StartDate: now.AddDate(-1, 0, 0),
		EndDate:   now.AddDate(1, 0, 0),
	})
	endedCrs := seedCourse(t, db, course.Course{
		Title:     "Archived Course",
		Code:      "OLD100",
		IsActive:  true,
		StartDate: win.Start.AddDate(-2, 0, 0),
		EndDate:   win.Start.AddDate(0, 0, -1), // ended before the window opened
	})

	leader := seedUser(t, db, user.User{Name: "Lead Hand", Email: "lead@elimu.test", IsActive: true})

	// one complete and one incomplete enrolment: exactly one candidate
	ada := seedUser(t, db, user.User{
		Name: "Ada", Email: "ada@students.test", IsActive: true,
		LeaderID: null.IntFrom(leader.ID), LastLogin: inWindow,
	})
	seedEnrolment(t, db, course.Enrolment{UserID: ada.ID, CourseID: crs.ID, IsActive: true, Progress: 100})
	adaEnr := seedEnrolment(t, db, course.Enrolment{UserID: ada.ID, CourseID: crs.ID, IsActive: true, Progress: 87})

	// logged in outside the window
	bev := seedUser(t, db, user.User{
		Name: "Bev", Email: "bev@students.test", IsActive: true,
		LastLogin: win.End.Add(24 * time.Hour),
	})
	seedEnrolment(t, db, course.Enrolment{UserID: bev.ID, CourseID: crs.ID, IsActive: true, Progress: 10})

	// deactivated account
	cam := seedUser(t, db, user.User{
		Name: "Cam", Email: "cam@students.test", IsActive: false, LastLogin: inWindow,
	})
	seedEnrolment(t, db, course.Enrolment{UserID: cam.ID, CourseID: crs.ID, IsActive: true, Progress: 10})

	// withdrawn enrolment
	dee := seedUser(t, db, user.User{
		Name: "Dee", Email: "dee@students.test", IsActive: true, LastLogin: inWindow,
	})
	seedEnrolment(t, db, course.Enrolment{
		UserID: dee.ID, CourseID: crs.ID, IsActive: false, Progress: 10,
		DeletedAt: null.TimeFrom(now),
	})

	// enrolment on a course that ended before the window
	eli := seedUser(t, db, user.User{
		Name: "Eli", Email: "eli@students.test", IsActive: true, LastLogin: inWindow,
	})
	seedEnrolment(t, db, course.Enrolment{UserID: eli.ID, CourseID: endedCrs.ID, IsActive: true, Progress: 10})

	cands, err := NewBatchRepository(db).QueryInactiveCandidates(ctx, win)
	if err != nil {
		t.Fatalf("QueryInactiveCandidates() error = %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("candidates = %d, want 1", len(cands))
	}

	cand := cands[0]
	if cand.Student.ID != ada.ID {
		t.Errorf("candidate student = %d, want %d", cand.Student.ID, ada.ID)
	}
	if cand.Enrolment.ID != adaEnr.ID {
		t.Errorf("candidate enrolment = %d, want the incomplete one %d", cand.Enrolment.ID, adaEnr.ID)
	}
	if cand.Course.Title != "Intro to Welding" {
		t.Errorf("candidate course = %q", cand.Course.Title)
	}
	if cand.Leader == nil || cand.Leader.ID != leader.ID {
		t.Errorf("candidate leader = %+v, want user %d", cand.Leader, leader.ID)
	}
}

func TestQueryStudentCandidates(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	db, err := Open()
	if err != nil {
		t.Fatal(err)
	}
	repo := NewBatchRepository(db)

	crs := seedCourse(t, db, course.Course{
		Title: "Forklift Safety", Code: "FORK200", IsActive: true,
		StartDate: now.AddDate(0, -1, 0), EndDate: now.AddDate(0, 1, 0),
	})
	ada := seedUser(t, db, user.User{Name: "Ada", Email: "ada@students.test", IsActive: true})
	seedEnrolment(t, db, course.Enrolment{UserID: ada.ID, CourseID: crs.ID, IsActive: true, Progress: 20})

	t.Run("unknown student is an error", func(t *testing.T) {
		if _, err := repo.QueryStudentCandidates(ctx, 999); err == nil {
			t.Error("error = nil, want not found")
		}
	})

	t.Run("active incomplete enrolments are returned", func(t *testing.T) {
		cands, err := repo.QueryStudentCandidates(ctx, ada.ID)
		if err != nil {
			t.Fatalf("QueryStudentCandidates() error = %v", err)
		}
		if len(cands) != 1 || cands[0].Course.ID != crs.ID {
			t.Errorf("candidates = %+v, want one on course %d", cands, crs.ID)
		}
	})

	t.Run("completed since the failure yields no candidates", func(t *testing.T) {
		complete := seedUser(t, db, user.User{Name: "Fae", Email: "fae@students.test", IsActive: true})
		seedEnrolment(t, db, course.Enrolment{UserID: complete.ID, CourseID: crs.ID, IsActive: true, Progress: 100})

		cands, err := repo.QueryStudentCandidates(ctx, complete.ID)
		if err != nil {
			t.Fatalf("QueryStudentCandidates() error = %v", err)
		}
		if len(cands) != 0 {
			t.Errorf("candidates = %d, want 0", len(cands))
		}
	})
}

func TestFailureLedger(t *testing.T) {
	ctx := context.Background()

	db, err := Open()
	if err != nil {
		t.Fatal(err)
	}
	repo := NewBatchRepository(db)

	if err := repo.RecordFailure(ctx, "inactivity-email", 7, "smtp timeout"); err != nil {
		t.Fatal(err)
	}
	// same pair again: attempts increment, not a second row
	if err := repo.RecordFailure(ctx, "inactivity-email", 7, "smtp refused"); err != nil {
		t.Fatal(err)
	}
	if err := repo.RecordFailure(ctx, "student-sync", 7, "410 gone"); err != nil {
		t.Fatal(err)
	}

	recs, err := repo.QueryFailures(ctx, "inactivity-email")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].Attempts != 2 || recs[0].LastError != "smtp refused" {
		t.Errorf("record = %+v, want attempts=2 with the latest error", recs[0])
	}

	all, err := repo.QueryFailures(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("all records = %d, want 2", len(all))
	}

	retryable, err := repo.QueryRetryable(ctx, "inactivity-email", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(retryable) != 0 {
		t.Errorf("retryable at cap = %d, want 0", len(retryable))
	}

	if err := repo.ClearFailure(ctx, "inactivity-email", 7); err != nil {
		t.Fatal(err)
	}
	if recs, _ := repo.QueryFailures(ctx, "inactivity-email"); len(recs) != 0 {
		t.Errorf("records after clear = %d, want 0", len(recs))
	}
}
