package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/Virtual-Educator/SimLearning/core"
	"github.com/Virtual-Educator/SimLearning/core/simulation"
)

type activityRepository struct {
	db *activityTable
}

var _ simulation.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(db *DB) *activityRepository {
	return &activityRepository{db: db.activity}
}

func (repo *activityRepository) CreateActivity(ctx context.Context, act simulation.Activity, exec ...core.DBExecutor) (simulation.Activity, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.table {
		if existing.Slug == act.Slug {
			return simulation.Activity{}, simulation.ErrSlugExists
		}
	}
	act.ID = uuid.New().String()
	repo.db.table[act.ID] = &act
	return act, nil
}

func (repo *activityRepository) GetActivityByID(ctx context.Context, id string, exec ...core.DBExecutor) (simulation.Activity, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if act, ok := repo.db.table[id]; ok {
		return *act, nil
	}
	return simulation.Activity{}, simulation.ErrNotFound
}

func (repo *activityRepository) GetActivityBySlug(ctx context.Context, slug string, exec ...core.DBExecutor) (simulation.Activity, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, act := range repo.db.table {
		if act.Slug == slug {
			return *act, nil
		}
	}
	return simulation.Activity{}, simulation.ErrNotFound
}

func (repo *activityRepository) QueryAllActivities(ctx context.Context, exec ...core.DBExecutor) ([]simulation.Activity, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	activities := make([]simulation.Activity, 0, len(repo.db.table))
	for _, act := range repo.db.table {
		activities = append(activities, *act)
	}
	sort.Slice(activities, func(i, j int) bool { return activities[i].CreatedAt.After(activities[j].CreatedAt) })
	return activities, nil
}
