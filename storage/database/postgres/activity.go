package postgresdb

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/Virtual-Educator/SimLearning/core"
	"github.com/Virtual-Educator/SimLearning/core/simulation"
)

// uniqueViolation is the postgres error code raised by duplicate keys.
const uniqueViolation = pq.ErrorCode("23505")

func isUniqueViolation(err error) bool {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		return pqErr.Code == uniqueViolation
	}
	return false
}

const activityColumns = "id, slug, title, manifest, is_published, created_at, updated_at"

type activityRepository struct {
	exec core.DBExecutor
}

var _ simulation.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(exec core.DBExecutor) *activityRepository {
	return &activityRepository{exec: exec}
}

func (repo activityRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps psql "no rows" err to simulation.ErrNotFound
func (repo activityRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return simulation.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo activityRepository) CreateActivity(ctx context.Context, act simulation.Activity, exec ...core.DBExecutor) (simulation.Activity, error) {
	act.ID = uuid.New().String()
	_, err := repo.getExec(exec).ExecContext(ctx,
		`INSERT INTO activity (`+activityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		act.ID, act.Slug, act.Title, act.Manifest, act.IsPublished, act.CreatedAt, act.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return simulation.Activity{}, simulation.ErrSlugExists
		}
		return simulation.Activity{}, errors.Wrap(err, "inserting activity")
	}
	return act, nil
}

func (repo activityRepository) GetActivityByID(ctx context.Context, id string, exec ...core.DBExecutor) (simulation.Activity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return simulation.Activity{}, simulation.ErrNotFound
	}
	var act simulation.Activity
	err := repo.getExec(exec).GetContext(ctx, &act,
		`SELECT `+activityColumns+` FROM activity WHERE id = $1`, id)
	if err != nil {
		return simulation.Activity{}, repo.trapNoRowsErr(err, "finding activity by ID")
	}
	return act, nil
}

func (repo activityRepository) GetActivityBySlug(ctx context.Context, slug string, exec ...core.DBExecutor) (simulation.Activity, error) {
	var act simulation.Activity
	err := repo.getExec(exec).GetContext(ctx, &act,
		`SELECT `+activityColumns+` FROM activity WHERE slug = $1`, slug)
	if err != nil {
		return simulation.Activity{}, repo.trapNoRowsErr(err, "finding activity by slug")
	}
	return act, nil
}

func (repo activityRepository) QueryAllActivities(ctx context.Context, exec ...core.DBExecutor) ([]simulation.Activity, error) {
	activities := make([]simulation.Activity, 0)
	err := repo.getExec(exec).SelectContext(ctx, &activities,
		`SELECT `+activityColumns+` FROM activity ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "querying activities")
	}
	return activities, nil
}
