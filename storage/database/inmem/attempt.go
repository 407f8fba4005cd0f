package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/Virtual-Educator/SimLearning/core"
	"github.com/Virtual-Educator/SimLearning/core/attempt"
)

type attemptRepository struct {
	db *attemptTable
}

var _ attempt.Repository = (*attemptRepository)(nil) // interface compliance check

func NewAttemptRepository(db *DB) *attemptRepository {
	return &attemptRepository{db: db.attempt}
}

func (repo *attemptRepository) GetDraftAttempt(ctx context.Context, activityID, studentID string, exec ...core.DBExecutor) (attempt.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, att := range repo.db.attempts {
		if att.ActivityID == activityID && att.StudentID == studentID && att.Status == attempt.StatusDraft {
			return *att, nil
		}
	}
	return attempt.Attempt{}, attempt.ErrNotFound
}

func (repo *attemptRepository) NextAttemptNumber(ctx context.Context, activityID, studentID string, exec ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	max := 0
	for _, att := range repo.db.attempts {
		if att.ActivityID == activityID && att.StudentID == studentID && att.AttemptNo > max {
			max = att.AttemptNo
		}
	}
	return max + 1, nil
}

func (repo *attemptRepository) CreateAttempt(ctx context.Context, att attempt.Attempt, exec ...core.DBExecutor) (attempt.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.attempts {
		if existing.ActivityID == att.ActivityID && existing.StudentID == att.StudentID && existing.AttemptNo == att.AttemptNo {
			return attempt.Attempt{}, attempt.ErrDuplicateAttempt
		}
	}
	att.ID = uuid.New().String()
	repo.db.attempts[att.ID] = &att
	return att, nil
}

func (repo *attemptRepository) GetAttemptByID(ctx context.Context, id string, exec ...core.DBExecutor) (attempt.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if att, ok := repo.db.attempts[id]; ok {
		return *att, nil
	}
	return attempt.Attempt{}, attempt.ErrNotFound
}

func (repo *attemptRepository) QueryAttempts(ctx context.Context, activityID string, filter *attempt.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]attempt.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter != nil {
		filter.Clean()
	}
	attempts := make([]attempt.Attempt, 0, len(repo.db.attempts))
	for _, att := range repo.db.attempts {
		if att.ActivityID != activityID {
			continue
		}
		if filter != nil {
			if filter.Status != "" && att.Status != filter.Status {
				continue
			}
			if filter.StudentID != "" && att.StudentID != filter.StudentID {
				continue
			}
		}
		attempts = append(attempts, *att)
	}
	sortAttempts(attempts, ordering)
	return attempts, nil
}

func (repo *attemptRepository) SubmitAttempt(ctx context.Context, id string, submittedAt time.Time, exec ...core.DBExecutor) (attempt.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	att, ok := repo.db.attempts[id]
	if !ok {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	if att.Status != attempt.StatusDraft {
		return attempt.Attempt{}, attempt.ErrAttemptLocked
	}
	att.Status = attempt.StatusSubmitted
	att.SubmittedAt = null.TimeFrom(submittedAt.UTC())
	att.UpdatedAt = null.TimeFrom(submittedAt.UTC())
	return *att, nil
}

func (repo *attemptRepository) GradeAttempt(ctx context.Context, id string, grade float64, gradedAt time.Time, exec ...core.DBExecutor) (attempt.Attempt, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	att, ok := repo.db.attempts[id]
	if !ok {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	att.Grade = null.Float64From(grade)
	att.GradedAt = null.TimeFrom(gradedAt.UTC())
	att.Status = attempt.StatusGraded
	att.UpdatedAt = null.TimeFrom(gradedAt.UTC())
	return *att, nil
}

func (repo *attemptRepository) ListResponses(ctx context.Context, attemptID string, exec ...core.DBExecutor) ([]attempt.Response, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	responses := make([]attempt.Response, 0)
	for _, resp := range repo.db.responses {
		if resp.AttemptID == attemptID {
			responses = append(responses, *resp)
		}
	}
	sort.Slice(responses, func(i, j int) bool { return responses[i].ResponseKey < responses[j].ResponseKey })
	return responses, nil
}

func (repo *attemptRepository) UpsertResponse(ctx context.Context, attemptID, key, text string, exec ...core.DBExecutor) (attempt.Response, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	now := time.Now().UTC()
	mapKey := attemptID + "/" + key
	resp, ok := repo.db.responses[mapKey]
	if !ok {
		resp = &attempt.Response{AttemptID: attemptID, ResponseKey: key, CreatedAt: now}
		repo.db.responses[mapKey] = resp
	}
	resp.ResponseText = text
	resp.UpdatedAt = now
	return *resp, nil
}

func (repo *attemptRepository) InsertEvents(ctx context.Context, attemptID string, events []attempt.NewEvent, exec ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, evt := range events {
		repo.db.eventSeq++
		repo.db.events = append(repo.db.events, &attempt.Event{
			ID:         repo.db.eventSeq,
			AttemptID:  attemptID,
			EventType:  evt.EventType,
			Payload:    null.NewJSON(evt.Payload, len(evt.Payload) > 0),
			OccurredAt: evt.OccurredAt.UTC(),
		})
	}
	return nil
}

func (repo *attemptRepository) ListEvents(ctx context.Context, attemptID string, exec ...core.DBExecutor) ([]attempt.Event, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	events := make([]attempt.Event, 0)
	for _, evt := range repo.db.events {
		if evt.AttemptID == attemptID {
			events = append(events, *evt)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].OccurredAt.Equal(events[j].OccurredAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
	return events, nil
}

func sortAttempts(attempts []attempt.Attempt, ordering []core.DBOrdering) {
	less := func(i, j int) bool { return attempts[i].StartedAt.After(attempts[j].StartedAt) }
	if len(ordering) > 0 {
		ord := ordering[0]
		switch ord.Field {
		case "attempt_no":
			less = func(i, j int) bool {
				if ord.Ascending {
					return attempts[i].AttemptNo < attempts[j].AttemptNo
				}
				return attempts[i].AttemptNo > attempts[j].AttemptNo
			}
		case "student_name":
			less = func(i, j int) bool {
				if ord.Ascending {
					return attempts[i].StudentName < attempts[j].StudentName
				}
				return attempts[i].StudentName > attempts[j].StudentName
			}
		case "started_at":
			less = func(i, j int) bool {
				if ord.Ascending {
					return attempts[i].StartedAt.Before(attempts[j].StartedAt)
				}
				return attempts[i].StartedAt.After(attempts[j].StartedAt)
			}
		}
	}
	sort.Slice(attempts, less)
}
