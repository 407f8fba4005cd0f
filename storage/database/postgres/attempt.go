package postgresdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/strmangle"

	"github.com/Virtual-Educator/SimLearning/core"
	"github.com/Virtual-Educator/SimLearning/core/attempt"
)

const (
	attemptColumns  = "id, activity_id, student_id, student_name, status, attempt_no, started_at, submitted_at, updated_at, grade, graded_at"
	responseColumns = "attempt_id, response_key, response_text, created_at, updated_at"
	eventColumns    = "id, attempt_id, event_type, payload, occurred_at"
)

type attemptRepository struct {
	exec core.DBExecutor
}

var _ attempt.Repository = (*attemptRepository)(nil) // interface compliance check

func NewAttemptRepository(exec core.DBExecutor) *attemptRepository {
	return &attemptRepository{exec: exec}
}

func (repo attemptRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps psql "no rows" err to attempt.ErrNotFound
func (repo attemptRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return attempt.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo attemptRepository) GetDraftAttempt(ctx context.Context, activityID, studentID string, exec ...core.DBExecutor) (attempt.Attempt, error) {
	var att attempt.Attempt
	err := repo.getExec(exec).GetContext(ctx, &att,
		`SELECT `+attemptColumns+` FROM attempt
		WHERE activity_id = $1 AND student_id = $2 AND status = $3`,
		activityID, studentID, attempt.StatusDraft,
	)
	if err != nil {
		return attempt.Attempt{}, repo.trapNoRowsErr(err, "finding draft attempt")
	}
	return att, nil
}

func (repo attemptRepository) NextAttemptNumber(ctx context.Context, activityID, studentID string, exec ...core.DBExecutor) (int, error) {
	var number int
	err := repo.getExec(exec).GetContext(ctx, &number,
		`SELECT COALESCE(MAX(attempt_no), 0) + 1 FROM attempt
		WHERE activity_id = $1 AND student_id = $2`,
		activityID, studentID,
	)
	if err != nil {
		return 0, errors.Wrap(err, "counting attempts")
	}
	return number, nil
}

func (repo attemptRepository) CreateAttempt(ctx context.Context, att attempt.Attempt, exec ...core.DBExecutor) (attempt.Attempt, error) {
	att.ID = uuid.New().String()
	_, err := repo.getExec(exec).ExecContext(ctx,
		`INSERT INTO attempt (id, activity_id, student_id, student_name, status, attempt_no, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		att.ID, att.ActivityID, att.StudentID, att.StudentName, att.Status, att.AttemptNo, att.StartedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return attempt.Attempt{}, attempt.ErrDuplicateAttempt
		}
		return attempt.Attempt{}, errors.Wrap(err, "inserting attempt")
	}
	return att, nil
}

func (repo attemptRepository) GetAttemptByID(ctx context.Context, id string, exec ...core.DBExecutor) (attempt.Attempt, error) {
	if _, err := uuid.Parse(id); err != nil {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	var att attempt.Attempt
	err := repo.getExec(exec).GetContext(ctx, &att,
		`SELECT `+attemptColumns+` FROM attempt WHERE id = $1`, id)
	if err != nil {
		return attempt.Attempt{}, repo.trapNoRowsErr(err, "finding attempt by ID")
	}
	return att, nil
}

func (repo attemptRepository) QueryAttempts(ctx context.Context, activityID string, filter *attempt.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]attempt.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM attempt WHERE activity_id = $1`
	args := []interface{}{activityID}

	if filter != nil {
		filter.Clean()
		if filter.Status != "" {
			args = append(args, filter.Status)
			query += fmt.Sprintf(" AND status = $%d", len(args))
		}
		if filter.StudentID != "" {
			args = append(args, filter.StudentID)
			query += fmt.Sprintf(" AND student_id = $%d", len(args))
		}
	}

	if len(ordering) > 0 {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, ord.String())
		}
		query += " ORDER BY " + strings.Join(orderList, ", ")
	} else {
		query += " ORDER BY started_at DESC"
	}

	attempts := make([]attempt.Attempt, 0)
	if err := repo.getExec(exec).SelectContext(ctx, &attempts, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	return attempts, nil
}

// SubmitAttempt flips a draft to submitted. The status guard lives in the
// WHERE clause so a concurrent submit of the same attempt can never win twice.
func (repo attemptRepository) SubmitAttempt(ctx context.Context, id string, submittedAt time.Time, exec ...core.DBExecutor) (attempt.Attempt, error) {
	exe := repo.getExec(exec)
	var att attempt.Attempt
	err := exe.GetContext(ctx, &att,
		`UPDATE attempt SET status = $3, submitted_at = $2, updated_at = $2
		WHERE id = $1 AND status = $4
		RETURNING `+attemptColumns,
		id, submittedAt.UTC(), attempt.StatusSubmitted, attempt.StatusDraft,
	)
	if err == sql.ErrNoRows {
		// missing row vs. a row that is no longer a draft
		if _, gerr := repo.GetAttemptByID(ctx, id, exe); gerr != nil {
			return attempt.Attempt{}, gerr
		}
		return attempt.Attempt{}, attempt.ErrAttemptLocked
	}
	if err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "submitting attempt")
	}
	return att, nil
}

func (repo attemptRepository) GradeAttempt(ctx context.Context, id string, grade float64, gradedAt time.Time, exec ...core.DBExecutor) (attempt.Attempt, error) {
	var att attempt.Attempt
	err := repo.getExec(exec).GetContext(ctx, &att,
		`UPDATE attempt SET grade = $2, graded_at = $3, status = $4, updated_at = $3
		WHERE id = $1
		RETURNING `+attemptColumns,
		id, grade, gradedAt.UTC(), attempt.StatusGraded,
	)
	if err != nil {
		return attempt.Attempt{}, repo.trapNoRowsErr(err, "grading attempt")
	}
	return att, nil
}

func (repo attemptRepository) ListResponses(ctx context.Context, attemptID string, exec ...core.DBExecutor) ([]attempt.Response, error) {
	responses := make([]attempt.Response, 0)
	err := repo.getExec(exec).SelectContext(ctx, &responses,
		`SELECT `+responseColumns+` FROM response WHERE attempt_id = $1 ORDER BY response_key`,
		attemptID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying responses")
	}
	return responses, nil
}

// UpsertResponse writes the draft text and returns the row with its
// database-side updated_at, which the player reports as the save time.
func (repo attemptRepository) UpsertResponse(ctx context.Context, attemptID, key, text string, exec ...core.DBExecutor) (attempt.Response, error) {
	var resp attempt.Response
	err := repo.getExec(exec).GetContext(ctx, &resp,
		`INSERT INTO response (attempt_id, response_key, response_text, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (attempt_id, response_key)
		DO UPDATE SET response_text = EXCLUDED.response_text, updated_at = now()
		RETURNING `+responseColumns,
		attemptID, key, text,
	)
	if err != nil {
		return attempt.Response{}, errors.Wrap(err, "upserting response")
	}
	return resp, nil
}

// InsertEvents appends a flush batch in a single statement, preserving the
// batch order through the bigserial ids.
func (repo attemptRepository) InsertEvents(ctx context.Context, attemptID string, events []attempt.NewEvent, exec ...core.DBExecutor) error {
	if len(events) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(events)*4)
	for _, evt := range events {
		var payload interface{}
		if len(evt.Payload) > 0 {
			payload = []byte(evt.Payload)
		}
		args = append(args, attemptID, evt.EventType, payload, evt.OccurredAt.UTC())
	}
	query := `INSERT INTO event (attempt_id, event_type, payload, occurred_at) VALUES ` +
		strmangle.Placeholders(true, len(args), 1, 4)
	if _, err := repo.getExec(exec).ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "inserting events")
	}
	return nil
}

func (repo attemptRepository) ListEvents(ctx context.Context, attemptID string, exec ...core.DBExecutor) ([]attempt.Event, error) {
	events := make([]attempt.Event, 0)
	err := repo.getExec(exec).SelectContext(ctx, &events,
		`SELECT `+eventColumns+` FROM event WHERE attempt_id = $1 ORDER BY occurred_at, id`,
		attemptID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	return events, nil
}
