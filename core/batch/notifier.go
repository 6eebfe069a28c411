package batch

import (
	"context"
	"fmt"
	"net/mail"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/kymoh/elimu/core"
)

type (
	// CandidateRepository resolves inactivity candidates from storage.
	CandidateRepository interface {
		// QueryInactiveCandidates returns one Candidate per qualifying
		// (student, enrolment) pair: active student, active non-deleted
		// incomplete enrolment on an open course, last login inside win.
		// Ordered by student then enrolment primary key.
		QueryInactiveCandidates(ctx context.Context, win Window) ([]Candidate, error)
		// QueryStudentCandidates returns the student's currently active
		// incomplete enrolments regardless of login window. A missing
		// student is an error; no qualifying enrolments is an empty slice.
		QueryStudentCandidates(ctx context.Context, studentID int) ([]Candidate, error)
	}

	// AuditLogger appends a human-readable note to a student's record.
	AuditLogger interface {
		AddNote(ctx context.Context, userID int, body string) error
	}

	// Notifier finds inactive students and notifies them, their designated
	// leader and the operator.
	Notifier struct {
		repo     CandidateRepository
		ledger   *Ledger
		mailSvc  core.EmailService
		audit    AuditLogger
		logger   core.Logger
		loc      *time.Location
		operator mail.Address
	}
)

// NewNotifier wires an inactivity notifier. loc is the reference timezone the
// week window is computed in; operator receives the aggregate report.
func NewNotifier(
	repo CandidateRepository,
	ledger *Ledger,
	mailSvc core.EmailService,
	audit AuditLogger,
	logger core.Logger,
	loc *time.Location,
	operator mail.Address,
) *Notifier {
	return &Notifier{
		repo:     repo,
		ledger:   ledger,
		mailSvc:  mailSvc,
		audit:    audit,
		logger:   logger,
		loc:      loc,
		operator: operator,
	}
}

// Run notifies every student whose last login fell in the calendar week
// `weeks` weeks ago and whose enrolment is incomplete. Item failures are
// recorded in the ledger and never abort the loop; a candidate-query failure
// is job-level and returned. The aggregate operator report is attempted
// whenever at least one candidate existed, regardless of item outcomes.
func (n *Notifier) Run(ctx context.Context, weeks int) (RunSummary, error) {
	run := startRun(KindInactivityEmail.String())
	run.sum.Context["weeks"] = strconv.Itoa(weeks)

	win := WeekWindow(nowFunc().In(n.loc), weeks)
	run.sum.Context["window"] = fmt.Sprintf("%s to %s",
		win.Start.Format("2006-01-02"), win.End.Format("2006-01-02"))

	cands, err := n.repo.QueryInactiveCandidates(ctx, win)
	if err != nil {
		err = errors.Wrap(err, "querying inactivity candidates")
		n.logger.Error(err.Error(), err)
		n.ledger.Record(ctx, KindInactivityEmail, JobLevelItem, err)
		return run.finish(), err
	}

	for _, cand := range cands {
		if itemErr := n.notify(ctx, cand, weeks); itemErr != nil {
			run.sum.Failed++
			n.logger.Warn(fmt.Sprintf("notifying student %d: %v", cand.Student.ID, itemErr), itemErr)
			n.ledger.Record(ctx, KindInactivityEmail, cand.Student.ID, itemErr)
			continue
		}
		run.sum.Succeeded++
	}

	if len(cands) > 0 {
		// caught separately: a report failure never fails the run and is
		// not folded into the per-item counters
		if repErr := n.sendCandidateReport(cands, weeks, win); repErr != nil {
			n.logger.Error(fmt.Sprintf("sending candidate report: %v", repErr), repErr)
			run.sum.Context["report_error"] = repErr.Error()
		}
	}

	return run.finish(), nil
}

// RetryOp returns the per-item operation used by the retry runner: it
// re-resolves the student's active incomplete enrolments and re-sends.
func (n *Notifier) RetryOp(weeks int) ItemFunc {
	return func(ctx context.Context, studentID int) error {
		cands, err := n.repo.QueryStudentCandidates(ctx, studentID)
		if err != nil {
			return errors.Wrapf(err, "resolving student %d", studentID)
		}
		for _, cand := range cands {
			if err := n.notify(ctx, cand, weeks); err != nil {
				return err
			}
		}
		return nil
	}
}

func (n *Notifier) notify(ctx context.Context, cand Candidate, weeks int) error {
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: cand.Student.Name, Address: cand.Student.Email}},
		Subject:      fmt.Sprintf("We miss you in %s", cand.Course.Title),
		TemplateName: "inactivity-email",
		TemplateData: struct {
			StudentName string
			CourseTitle string
			Weeks       int
			Progress    int
		}{cand.Student.Name, cand.Course.Title, weeks, cand.Enrolment.Progress},
	}
	if cand.Leader != nil && cand.Leader.Email != "" {
		msg.Cc = []mail.Address{{Name: cand.Leader.Name, Address: cand.Leader.Email}}
	}

	if err := n.mailSvc.SendMessage(msg); err != nil {
		return err
	}

	note := fmt.Sprintf("%d weeks inactivity notification sent for course: %s", weeks, cand.Course.Title)
	return n.audit.AddNote(ctx, cand.Student.ID, note)
}

func (n *Notifier) sendCandidateReport(cands []Candidate, weeks int, win Window) error {
	type reportRow struct {
		StudentName  string
		StudentEmail string
		CourseTitle  string
		Progress     int
		LastLogin    string
	}
	rows := make([]reportRow, 0, len(cands))
	for _, cand := range cands {
		rows = append(rows, reportRow{
			StudentName:  cand.Student.Name,
			StudentEmail: cand.Student.Email,
			CourseTitle:  cand.Course.Title,
			Progress:     cand.Enrolment.Progress,
			LastLogin:    cand.Student.LastLogin.In(n.loc).Format("2006-01-02 15:04"),
		})
	}

	return n.mailSvc.SendMessage(&core.EmailMessage{
		To:           []mail.Address{n.operator},
		Subject:      fmt.Sprintf("%d weeks inactivity report (%d students)", weeks, len(cands)),
		TemplateName: "inactivity-report",
		TemplateData: struct {
			Weeks       int
			WindowStart string
			WindowEnd   string
			Rows        []reportRow
		}{weeks, win.Start.Format("2006-01-02"), win.End.Format("2006-01-02"), rows},
	})
}
