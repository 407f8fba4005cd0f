package attempt

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/Virtual-Educator/SimLearning/core"
)

// Attempt statuses. Forward-only: draft -> submitted -> graded.
const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
	StatusGraded    = "graded"
)

// PrimaryResponseKey is the single logical response slot the player writes to.
const PrimaryResponseKey = "primary"

type (
	// Attempt is one student's work session against an activity. The stored status
	// is the authority for locking: a submitted attempt is read-only everywhere.
	Attempt struct {
		ID          string       `json:"id" db:"id"`
		ActivityID  string       `json:"activity_id" db:"activity_id"`
		StudentID   string       `json:"student_id" db:"student_id"`
		StudentName string       `json:"student_name" db:"student_name"`
		Status      string       `json:"status" db:"status"`
		AttemptNo   int          `json:"attempt_no" db:"attempt_no"`
		StartedAt   time.Time    `json:"started_at" db:"started_at"`
		SubmittedAt null.Time    `json:"submitted_at" db:"submitted_at"`
		UpdatedAt   null.Time    `json:"updated_at" db:"updated_at"`
		Grade       null.Float64 `json:"grade" db:"grade"`
		GradedAt    null.Time    `json:"graded_at" db:"graded_at"`
	}

	// Response is a draft answer, upserted by (attempt_id, response_key).
	Response struct {
		AttemptID    string    `json:"attempt_id" db:"attempt_id"`
		ResponseKey  string    `json:"response_key" db:"response_key"`
		ResponseText string    `json:"response_text" db:"response_text"`
		CreatedAt    time.Time `json:"created_at" db:"created_at"`
		UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
	}

	// Event is a durably recorded interaction. Rows are insert-only; history is
	// never rewritten.
	Event struct {
		ID         int64     `json:"id" db:"id"`
		AttemptID  string    `json:"attempt_id" db:"attempt_id"`
		EventType  string    `json:"event_type" db:"event_type"`
		Payload    null.JSON `json:"payload" db:"payload"`
		OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
	}

	// NewEvent is the insert form of an interaction record. Payload holds
	// already-encoded JSON, or nil for payload-less events.
	NewEvent struct {
		EventType  string
		Payload    []byte
		OccurredAt time.Time
	}

	// ExportBundle is the durable view of an attempt: exactly what the stores
	// hold, never what any in-memory buffer holds.
	ExportBundle struct {
		Attempt    Attempt    `json:"attempt"`
		Responses  []Response `json:"responses"`
		Events     []Event    `json:"events"`
		ExportedAt time.Time  `json:"exported_at"`
	}

	// DraftState is the durable context a resuming draft starts from.
	DraftState struct {
		ResponseText  string
		SavedAt       time.Time // zero when nothing was ever saved
		FlushedEvents int
	}

	// QueryFilter narrows instructor attempt listings.
	QueryFilter struct {
		Status    string `query:"status"`
		StudentID string `query:"student_id"`
	}

	// GradeAttempt carries an instructor's grade for a submitted attempt.
	GradeAttempt struct {
		Grade float64 `json:"grade" validate:"min=0,max=100"`
	}
)

func (a Attempt) Locked() bool { return a.Status != StatusDraft }

func (b ExportBundle) Filename() string {
	return fmt.Sprintf("attempt-%s-export.json", b.Attempt.ID)
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Status == "" && qf.StudentID == ""
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status, true)
	qf.StudentID = core.CleanString(qf.StudentID)
}

func (ga GradeAttempt) Validate(validate *validator.Validate) error {
	return validate.Struct(ga)
}
