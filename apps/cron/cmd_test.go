package main

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"testing"
	"time"

	"github.com/kymoh/elimu/core"
	"github.com/kymoh/elimu/core/batch"
	"github.com/kymoh/elimu/core/course"
	"github.com/kymoh/elimu/core/user"
	emailsvc "github.com/kymoh/elimu/services/email"
	studentsyncsvc "github.com/kymoh/elimu/services/studentsync"
	dummydb "github.com/kymoh/elimu/storage/database/dummy"
)

type testLogger struct{}

func (testLogger) Debug(msg string, args ...interface{}) { log.Println(msg, args) }
func (testLogger) Info(msg string, args ...interface{})  { log.Println(msg, args) }
func (testLogger) Warn(msg string, args ...interface{})  { log.Println(msg, args) }
func (testLogger) Error(msg string, args ...interface{}) { log.Println(msg, args) }
func (testLogger) Fatal(msg string, args ...interface{}) { log.Fatalln(msg, args) }

type testDeps struct {
	cli     *commandLine
	conf    *core.Config
	usrRepo user.Repository
	crsRepo course.Repository
	ledger  *batch.Ledger
}

func setup(t *testing.T, syncURL string) *testDeps {
	t.Helper()

	conf := &core.Config{
		TestMode:         true,
		Env:              "TEST",
		AppName:          "Elimu",
		DefaultFromEmail: mail.Address{Address: "noreply@localhost"},
		Batch: core.BatchConfig{
			MaxAttempts:     4,
			Timezone:        "UTC",
			InactivityWeeks: 9,
			OperatorName:    "Course Admin",
			OperatorEmail:   "admin@test.elimu",
			SyncURL:         syncURL,
		},
	}

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	logger := testLogger{}
	mailSvc := emailsvc.NewConsoleServiceMock(conf)

	usrRepo := dummydb.NewUserRepository(db)
	crsRepo := dummydb.NewCourseRepository(db)
	batchRepo := dummydb.NewBatchRepository(db)
	ledger := batch.NewLedger(batchRepo, logger)
	usrSvc := user.NewService(nil, usrRepo, mailSvc, conf)

	cli := &commandLine{
		conf:     conf,
		logger:   logger,
		loc:      time.UTC,
		usrRepo:  usrRepo,
		ledger:   ledger,
		notifier: batch.NewNotifier(batchRepo, ledger, mailSvc, usrSvc, logger, time.UTC, conf.OperatorAddress()),
		runner:   batch.NewRunner(ledger, logger),
		reporter: batch.NewReporter(mailSvc, nil, logger, conf.OperatorAddress(), conf.AppName),
		syncSvc:  studentsyncsvc.NewService(conf),
	}
	return &testDeps{cli: cli, conf: conf, usrRepo: usrRepo, crsRepo: crsRepo, ledger: ledger}
}

func seedStudent(t *testing.T, repo user.Repository, name, uname string, isActive bool, lastLogin time.Time) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	usr, err := repo.CreateUser(context.Background(), user.User{
		Name:      name,
		Username:  uname,
		Email:     uname + "@test.elimu",
		Roles:     user.StudentRoles,
		IsActive:  isActive,
		LastLogin: lastLogin,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("seedStudent() failed: %v", err)
	}
	return usr
}

func seedEnrolment(t *testing.T, repo course.Repository, studentID int, progress int) course.Enrolment {
	t.Helper()

	tstamp := time.Now().UTC()
	crs, err := repo.CreateCourse(context.Background(), course.Course{
		Title:     "Intro to Go",
		Code:      "go101",
		IsActive:  true,
		StartDate: tstamp.AddDate(0, -6, 0),
		EndDate:   tstamp.AddDate(0, 6, 0),
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("seedEnrolment() failed: %v", err)
	}
	enr, err := repo.CreateEnrolment(context.Background(), course.Enrolment{
		UserID:    studentID,
		CourseID:  crs.ID,
		IsActive:  true,
		Progress:  progress,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("seedEnrolment() failed: %v", err)
	}
	return enr
}

func Test_commandLine_run(t *testing.T) {
	cli := setup(t, "").cli

	tests := []struct {
		name       string
		args       []string // without program name
		wantErr    error
		wantErrStr string
	}{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "retry: no job", args: []string{"retry"}, wantErr: errHelp},
		{name: "retry: unknown job", args: []string{"retry", "-job", "lol"}, wantErrStr: `unknown job "lol"`},
		{name: "sync: not configured", args: []string{"sync"}, wantErrStr: "student sync is not configured"},
		{name: "inactivity: empty window", args: []string{"inactivity"}},
	}
	for _, tt := range tests {
		args := append([]string{"cron"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_inactivity(t *testing.T) {
	deps := setup(t, "")
	ctx := context.Background()

	win := batch.WeekWindow(time.Now().UTC(), 9)
	ada := seedStudent(t, deps.usrRepo, "Ada Lovelace", "ada", true, win.Start.Add(2*time.Hour))
	seedEnrolment(t, deps.crsRepo, ada.ID, 40)
	// outside the window, must be left alone
	bev := seedStudent(t, deps.usrRepo, "Bev Blank", "bev", true, time.Now().UTC())
	seedEnrolment(t, deps.crsRepo, bev.ID, 10)

	if err := deps.cli.run([]string{"cron", "inactivity"}); err != nil {
		t.Fatalf("cli.run() failed: %v", err)
	}

	notes, err := deps.usrRepo.QueryNotes(ctx, ada.ID)
	if err != nil {
		t.Fatalf("QueryNotes() failed: %v", err)
	}
	if len(notes) != 1 {
		t.Errorf("got %d audit notes for the inactive student, want 1", len(notes))
	}
	if notes, _ := deps.usrRepo.QueryNotes(ctx, bev.ID); len(notes) != 0 {
		t.Errorf("got %d audit notes for the active student, want 0", len(notes))
	}

	recs, err := deps.ledger.Failures(ctx, "")
	if err != nil {
		t.Fatalf("Failures() failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d ledger records after a clean run, want 0", len(recs))
	}
}

func Test_commandLine_sync(t *testing.T) {
	t.Run("all students synced", func(t *testing.T) {
		var synced int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			synced++
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		deps := setup(t, srv.URL)
		seedStudent(t, deps.usrRepo, "Ada Lovelace", "ada", true, time.Now().UTC())
		seedStudent(t, deps.usrRepo, "Cam Gone", "cam", false, time.Now().UTC()) // inactive, skipped

		if err := deps.cli.run([]string{"cron", "sync"}); err != nil {
			t.Fatalf("cli.run() failed: %v", err)
		}
		if synced != 1 {
			t.Errorf("webhook received %d students, want 1", synced)
		}
		if recs, _ := deps.ledger.Failures(context.Background(), ""); len(recs) != 0 {
			t.Errorf("got %d ledger records after a clean run, want 0", len(recs))
		}
	})

	t.Run("endpoint failures are ledgered", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		deps := setup(t, srv.URL)
		ada := seedStudent(t, deps.usrRepo, "Ada Lovelace", "ada", true, time.Now().UTC())

		// item failures never abort the run
		if err := deps.cli.run([]string{"cron", "sync"}); err != nil {
			t.Fatalf("cli.run() failed: %v", err)
		}

		recs, err := deps.ledger.Failures(context.Background(), batch.KindStudentSync.String())
		if err != nil {
			t.Fatalf("Failures() failed: %v", err)
		}
		if len(recs) != 1 {
			t.Fatalf("got %d ledger records, want 1", len(recs))
		}
		if recs[0].ItemID != ada.ID {
			t.Errorf("ledgered item = %d, want %d", recs[0].ItemID, ada.ID)
		}
	})
}
