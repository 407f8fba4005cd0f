package attempt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/Virtual-Educator/SimLearning/core"
)

var (
	// errors
	ErrNotFound         = errors.New("attempt not found")
	ErrAttemptLocked    = errors.New("attempt is no longer editable")
	ErrNotSubmitted     = errors.New("attempt has not been submitted")
	ErrDuplicateAttempt = errors.New("an attempt with this number already exists")
	ErrAuthRequired     = errors.New("sign-in is required to start an attempt")

	nowFunc = time.Now // mocked in tests
)

type (
	Repository interface {
		// GetDraftAttempt returns the student's open draft for an activity, if any.
		GetDraftAttempt(ctx context.Context, activityID, studentID string, exec ...core.DBExecutor) (Attempt, error)
		NextAttemptNumber(ctx context.Context, activityID, studentID string, exec ...core.DBExecutor) (int, error)
		// CreateAttempt returns ErrDuplicateAttempt when another session won the
		// (activity, student, attempt_no) slot first.
		CreateAttempt(ctx context.Context, att Attempt, exec ...core.DBExecutor) (Attempt, error)
		GetAttemptByID(ctx context.Context, id string, exec ...core.DBExecutor) (Attempt, error)
		// QueryAttempts applies AND operation on available QueryFilter fields.
		QueryAttempts(ctx context.Context, activityID string, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Attempt, error)
		// SubmitAttempt flips a draft to submitted and returns ErrAttemptLocked
		// when the row is no longer a draft.
		SubmitAttempt(ctx context.Context, id string, submittedAt time.Time, exec ...core.DBExecutor) (Attempt, error)
		GradeAttempt(ctx context.Context, id string, grade float64, gradedAt time.Time, exec ...core.DBExecutor) (Attempt, error)
		ListResponses(ctx context.Context, attemptID string, exec ...core.DBExecutor) ([]Response, error)
		UpsertResponse(ctx context.Context, attemptID, key, text string, exec ...core.DBExecutor) (Response, error)
		InsertEvents(ctx context.Context, attemptID string, events []NewEvent, exec ...core.DBExecutor) error
		// ListEvents returns events in insertion order.
		ListEvents(ctx context.Context, attemptID string, exec ...core.DBExecutor) ([]Event, error)
	}

	// ServiceInterface abstracts attempt workflows for transport layers and tests.
	ServiceInterface interface {
		FindOrCreateDraft(ctx context.Context, activityID string, student core.Principal) (Attempt, error)
		HydrateDraft(ctx context.Context, attemptID string) (DraftState, error)
		SaveDraft(ctx context.Context, attemptID, text string, events []NewEvent) (time.Time, error)
		Submit(ctx context.Context, att Attempt, student core.Principal, activityTitle, text string, events []NewEvent) (Attempt, error)
		Export(ctx context.Context, attemptID string) (ExportBundle, error)
		GetByID(ctx context.Context, id string) (Attempt, error)
		Query(ctx context.Context, activityID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Attempt, error)
		Grade(ctx context.Context, id string, ga GradeAttempt) (Attempt, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

var _ ServiceInterface = (*Service)(nil) // interface compliance check

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, conf: conf}
}

// FindOrCreateDraft returns the student's current draft for an activity, creating
// one with the next sequential attempt number when none exists. When creation
// loses the race against another session of the same student, the winner's draft
// is this student's current attempt and is returned instead.
func (svc *Service) FindOrCreateDraft(ctx context.Context, activityID string, student core.Principal) (Attempt, error) {
	if student.ID == "" {
		return Attempt{}, ErrAuthRequired
	}

	att, err := svc.repo.GetDraftAttempt(ctx, activityID, student.ID)
	if err == nil {
		return att, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return Attempt{}, err
	}

	number, err := svc.repo.NextAttemptNumber(ctx, activityID, student.ID)
	if err != nil {
		return Attempt{}, err
	}
	att, err = svc.repo.CreateAttempt(ctx, Attempt{
		ActivityID:  activityID,
		StudentID:   student.ID,
		StudentName: student.Name,
		Status:      StatusDraft,
		AttemptNo:   number,
		StartedAt:   nowFunc().UTC(),
	})
	if err == nil {
		return att, nil
	}
	if errors.Cause(err) != ErrDuplicateAttempt {
		return Attempt{}, err
	}

	winner, ferr := svc.repo.GetDraftAttempt(ctx, activityID, student.ID)
	if ferr != nil {
		return Attempt{}, err // surface the duplicate, never create a second draft
	}
	return winner, nil
}

// HydrateDraft loads the durable state a resuming draft starts from. Previously
// flushed events are counted but never replayed into a live session.
func (svc *Service) HydrateDraft(ctx context.Context, attemptID string) (DraftState, error) {
	var state DraftState
	responses, err := svc.repo.ListResponses(ctx, attemptID)
	if err != nil {
		return state, err
	}
	for _, resp := range responses {
		if resp.ResponseKey == PrimaryResponseKey {
			state.ResponseText = resp.ResponseText
			state.SavedAt = resp.UpdatedAt
		}
	}
	events, err := svc.repo.ListEvents(ctx, attemptID)
	if err != nil {
		return state, err
	}
	state.FlushedEvents = len(events)
	return state, nil
}

// SaveDraft upserts the response text, then appends the event batch. The two
// writes are deliberately sequential and non-atomic: a failed event append
// surfaces as a save failure even though the text went through. Retrying the
// same batch is safe since the text upsert is idempotent.
// The returned time is the store's authoritative save timestamp.
func (svc *Service) SaveDraft(ctx context.Context, attemptID, text string, events []NewEvent) (time.Time, error) {
	att, err := svc.repo.GetAttemptByID(ctx, attemptID)
	if err != nil {
		return time.Time{}, err
	}
	if att.Locked() {
		return time.Time{}, ErrAttemptLocked
	}

	resp, err := svc.repo.UpsertResponse(ctx, attemptID, PrimaryResponseKey, text)
	if err != nil {
		return time.Time{}, err
	}
	if len(events) > 0 {
		if err = svc.repo.InsertEvents(ctx, attemptID, events); err != nil {
			return time.Time{}, err
		}
	}

	savedAt := resp.UpdatedAt
	if savedAt.IsZero() {
		savedAt = nowFunc().UTC()
	}
	return savedAt, nil
}

// Submit saves the draft one final time, then locks the attempt. A failed save
// aborts the submission and the attempt stays editable.
func (svc *Service) Submit(ctx context.Context, att Attempt, student core.Principal, activityTitle, text string, events []NewEvent) (Attempt, error) {
	if att.Locked() {
		return Attempt{}, ErrAttemptLocked
	}
	if _, err := svc.SaveDraft(ctx, att.ID, text, events); err != nil {
		return Attempt{}, err
	}
	submitted, err := svc.repo.SubmitAttempt(ctx, att.ID, nowFunc().UTC())
	if err != nil {
		return Attempt{}, err
	}
	svc.sendSubmissionReceipt(ctx, submitted, student, activityTitle)
	return submitted, nil
}

// Export assembles the attempt, its responses and its ordered events by
// re-querying the stores, so the bundle reflects exactly what was persisted
// rather than any in-memory view.
func (svc *Service) Export(ctx context.Context, attemptID string) (ExportBundle, error) {
	att, err := svc.repo.GetAttemptByID(ctx, attemptID)
	if err != nil {
		return ExportBundle{}, err
	}
	responses, err := svc.repo.ListResponses(ctx, attemptID)
	if err != nil {
		return ExportBundle{}, err
	}
	events, err := svc.repo.ListEvents(ctx, attemptID)
	if err != nil {
		return ExportBundle{}, err
	}
	if responses == nil {
		responses = make([]Response, 0)
	}
	if events == nil {
		events = make([]Event, 0)
	}
	return ExportBundle{
		Attempt:    att,
		Responses:  responses,
		Events:     events,
		ExportedAt: nowFunc().UTC(),
	}, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Attempt, error) {
	return svc.repo.GetAttemptByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, activityID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Attempt, error) {
	return svc.repo.QueryAttempts(ctx, activityID, filter, ordering)
}

// Grade records an instructor's grade on a submitted attempt. Drafts cannot be
// graded.
func (svc *Service) Grade(ctx context.Context, id string, ga GradeAttempt) (Attempt, error) {
	att, err := svc.repo.GetAttemptByID(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	if att.Status == StatusDraft {
		return Attempt{}, ErrNotSubmitted
	}
	return svc.repo.GradeAttempt(ctx, id, ga.Grade, nowFunc().UTC())
}

// sendSubmissionReceipt emails the student a receipt with the durable export
// attached. Delivery is best effort and never fails the submission.
func (svc *Service) sendSubmissionReceipt(ctx context.Context, att Attempt, student core.Principal, activityTitle string) {
	if student.Email == "" {
		return
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      fmt.Sprintf("Attempt #%d submitted: %s", att.AttemptNo, activityTitle),
		TemplateName: "attempt-submitted",
		TemplateData: submissionReceipt{
			StudentName:   student.Name,
			ActivityTitle: activityTitle,
			AttemptNo:     att.AttemptNo,
			SubmittedAt:   att.SubmittedAt.Time,
		},
	}
	if bundle, err := svc.Export(ctx, att.ID); err == nil {
		if data, merr := json.MarshalIndent(bundle, "", "  "); merr == nil {
			_ = msg.Attach(bytes.NewReader(data), bundle.Filename(), "application/json")
		}
	}
	svc.mailSvc.SendMessages(msg)
}

type submissionReceipt struct {
	StudentName   string
	ActivityTitle string
	AttemptNo     int
	SubmittedAt   time.Time
}
