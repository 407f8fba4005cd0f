package simulation

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/Virtual-Educator/SimLearning/core"
)

var (
	// errors
	ErrNotFound   = errors.New("activity not found")
	ErrSlugExists = errors.New("an activity with this slug already exists")

	nowFunc = time.Now // mocked in tests
)

type (
	Repository interface {
		// CreateActivity returns ErrSlugExists when the slug is taken.
		CreateActivity(ctx context.Context, act Activity, exec ...core.DBExecutor) (Activity, error)
		GetActivityByID(ctx context.Context, id string, exec ...core.DBExecutor) (Activity, error)
		GetActivityBySlug(ctx context.Context, slug string, exec ...core.DBExecutor) (Activity, error)
		QueryAllActivities(ctx context.Context, exec ...core.DBExecutor) ([]Activity, error)
	}

	// ServiceInterface abstracts activity lookups for transport layers and tests.
	ServiceInterface interface {
		GetBySlug(ctx context.Context, slug string) (Activity, error)
		GetByID(ctx context.Context, id string) (Activity, error)
		QueryAll(ctx context.Context) ([]Activity, error)
		Create(ctx context.Context, na NewActivity) (Activity, error)
	}

	Service struct {
		repo Repository
	}
)

var _ ServiceInterface = (*Service)(nil) // interface compliance check

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetBySlug returns a published activity for the player. Unpublished activities
// are invisible to students.
func (svc *Service) GetBySlug(ctx context.Context, slug string) (Activity, error) {
	act, err := svc.repo.GetActivityBySlug(ctx, core.CleanString(slug, true))
	if err != nil {
		return Activity{}, err
	}
	if !act.IsPublished {
		return Activity{}, ErrNotFound
	}
	return act, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Activity, error) {
	return svc.repo.GetActivityByID(ctx, id)
}

func (svc *Service) QueryAll(ctx context.Context) ([]Activity, error) {
	return svc.repo.QueryAllActivities(ctx)
}

func (svc *Service) Create(ctx context.Context, na NewActivity) (Activity, error) {
	now := nowFunc().UTC()
	return svc.repo.CreateActivity(ctx, Activity{
		Slug:        na.Slug,
		Title:       na.Title,
		Manifest:    na.Manifest,
		IsPublished: na.IsPublished,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}
