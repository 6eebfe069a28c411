package batch

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/kymoh/elimu/core/course"
	"github.com/kymoh/elimu/core/user"
)

// JobLevelItem is the sentinel item key under which failures of a whole run
// (as opposed to a single item) are recorded.
const JobLevelItem = 0

// Kind identifies a batch job type. The string form is used only at the CLI
// and storage boundary.
type Kind uint8

const (
	KindInactivityEmail Kind = iota + 1
	KindStudentSync
)

var kindNames = map[Kind]string{
	KindInactivityEmail: "inactivity-email",
	KindStudentSync:     "student-sync",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// KindFromString maps a job name back to its Kind.
func KindFromString(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, errors.Errorf("unknown job %q", name)
}

// ItemFunc processes a single item; a nil return means success.
type ItemFunc func(ctx context.Context, itemID int) error

// Job pairs a Kind with its per-item operation and retry cap.
type Job struct {
	Kind        Kind
	MaxAttempts int
	Op          ItemFunc
}

// FailureRecord is one row of the failure ledger: the latest failure of a
// (job, item) pair and how many times it has been attempted.
type FailureRecord struct {
	ID        int       `json:"id" db:"id"`
	JobName   string    `json:"job_name" db:"job_name"`
	ItemID    int       `json:"item_id" db:"item_id"`
	Attempts  int       `json:"attempts" db:"attempts"`
	LastError string    `json:"last_error" db:"last_error"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// RunSummary is the outcome of one batch run.
type RunSummary struct {
	RunID      string            `json:"run_id"`
	Job        string            `json:"job"`
	Succeeded  int               `json:"succeeded"`
	Failed     int               `json:"failed"`
	StartedAt  time.Time         `json:"started_at"`
	Elapsed    time.Duration     `json:"elapsed"`
	MemoryUsed uint64            `json:"memory_used"` // bytes allocated during the run
	Context    map[string]string `json:"context"`
}

// Attempted is the number of items processed in the run.
func (s RunSummary) Attempted() int { return s.Succeeded + s.Failed }

// Candidate is a (student, enrolment) pair eligible for an inactivity
// notification. Leader is the student's designated contact, when set.
type Candidate struct {
	Student   user.User
	Leader    *user.User
	Enrolment course.Enrolment
	Course    course.Course
}
