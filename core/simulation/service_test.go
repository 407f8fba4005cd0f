package simulation

import (
	"context"
	"fmt"
	"testing"

	"github.com/Virtual-Educator/SimLearning/core"
	"github.com/Virtual-Educator/SimLearning/core/scene"
)

type fakeActivityRepository struct {
	activities map[string]Activity
	lastID     int
}

var _ Repository = (*fakeActivityRepository)(nil)

func newFakeActivityRepository() *fakeActivityRepository {
	return &fakeActivityRepository{activities: make(map[string]Activity)}
}

func (r *fakeActivityRepository) CreateActivity(ctx context.Context, act Activity, exec ...core.DBExecutor) (Activity, error) {
	for _, existing := range r.activities {
		if existing.Slug == act.Slug {
			return Activity{}, ErrSlugExists
		}
	}
	r.lastID++
	act.ID = fmt.Sprintf("act%03d", r.lastID)
	r.activities[act.ID] = act
	return act, nil
}

func (r *fakeActivityRepository) GetActivityByID(ctx context.Context, id string, exec ...core.DBExecutor) (Activity, error) {
	act, ok := r.activities[id]
	if !ok {
		return Activity{}, ErrNotFound
	}
	return act, nil
}

func (r *fakeActivityRepository) GetActivityBySlug(ctx context.Context, slug string, exec ...core.DBExecutor) (Activity, error) {
	for _, act := range r.activities {
		if act.Slug == slug {
			return act, nil
		}
	}
	return Activity{}, ErrNotFound
}

func (r *fakeActivityRepository) QueryAllActivities(ctx context.Context, exec ...core.DBExecutor) ([]Activity, error) {
	all := make([]Activity, 0, len(r.activities))
	for _, act := range r.activities {
		all = append(all, act)
	}
	return all, nil
}

func validManifest() Manifest {
	return Manifest{
		Scene: Scene{Type: SceneTypeImage, ImagePath: "rocks/sediment.png"},
		Task:  Task{Prompt: "Describe the layers you observe."},
		Tools: scene.ToolConfig{Grid: true, Pins: true},
	}
}

func TestGetBySlug(t *testing.T) {
	ctx := context.Background()
	repo := newFakeActivityRepository()
	svc := NewService(repo)

	published, err := svc.Create(ctx, NewActivity{Slug: "sediment-layers", Title: "Sediment Layers", Manifest: validManifest(), IsPublished: true})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err = svc.Create(ctx, NewActivity{Slug: "wip-volcano", Title: "Volcano", Manifest: validManifest()}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		name    string
		slug    string
		wantID  string
		wantErr error
	}{
		{name: "published activity", slug: "sediment-layers", wantID: published.ID},
		{name: "slug is cleaned", slug: "  Sediment-Layers ", wantID: published.ID},
		{name: "unpublished is invisible", slug: "wip-volcano", wantErr: ErrNotFound},
		{name: "unknown slug", slug: "nope", wantErr: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act, err := svc.GetBySlug(ctx, tt.slug)
			if err != tt.wantErr {
				t.Fatalf("GetBySlug() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && act.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", act.ID, tt.wantID)
			}
		})
	}
}

func TestCreateDuplicateSlug(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeActivityRepository())

	if _, err := svc.Create(ctx, NewActivity{Slug: "sediment-layers", Title: "Sediment Layers", Manifest: validManifest()}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Create(ctx, NewActivity{Slug: "sediment-layers", Title: "Again", Manifest: validManifest()}); err != ErrSlugExists {
		t.Errorf("Create() error = %v, want %v", err, ErrSlugExists)
	}
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Manifest)
		wantFields []string
	}{
		{name: "valid", mutate: func(m *Manifest) {}},
		{name: "valid with public src only", mutate: func(m *Manifest) {
			m.Scene.ImagePath = ""
			m.Scene.Src = "https://cdn.example.org/rocks.png"
		}},
		{name: "unsupported scene type", mutate: func(m *Manifest) {
			m.Scene.Type = "video"
		}, wantFields: []string{"scene.type"}},
		{name: "no asset reference", mutate: func(m *Manifest) {
			m.Scene.ImagePath = ""
		}, wantFields: []string{"scene"}},
		{name: "blank prompt", mutate: func(m *Manifest) {
			m.Task.Prompt = "   "
		}, wantFields: []string{"task.prompt"}},
		{name: "everything wrong", mutate: func(m *Manifest) {
			*m = Manifest{}
		}, wantFields: []string{"scene.type", "scene", "task.prompt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validManifest()
			tt.mutate(&m)

			err := m.Validate()
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			vErr, ok := err.(*core.ValidationError)
			if !ok {
				t.Fatalf("Validate() error = %T, want *core.ValidationError", err)
			}
			if len(vErr.Fields) != len(tt.wantFields) {
				t.Fatalf("fields = %+v, want %v", vErr.Fields, tt.wantFields)
			}
			for i, want := range tt.wantFields {
				if vErr.Fields[i].Field != want {
					t.Errorf("field[%d] = %q, want %q", i, vErr.Fields[i].Field, want)
				}
			}
		})
	}
}

func TestSceneAssetRef(t *testing.T) {
	tests := []struct {
		name       string
		sc         Scene
		wantRef    string
		wantSource string
	}{
		{name: "image path", sc: Scene{ImagePath: "a.png"}, wantRef: "a.png", wantSource: AssetSourceStorage},
		{name: "entry fallback", sc: Scene{Entry: "b.png"}, wantRef: "b.png", wantSource: AssetSourceStorage},
		{name: "image path wins over entry", sc: Scene{ImagePath: "a.png", Entry: "b.png"}, wantRef: "a.png", wantSource: AssetSourceStorage},
		{name: "storage wins over src", sc: Scene{Entry: "b.png", Src: "https://cdn/c.png"}, wantRef: "b.png", wantSource: AssetSourceStorage},
		{name: "public src", sc: Scene{Src: "https://cdn/c.png"}, wantRef: "https://cdn/c.png", wantSource: AssetSourcePublic},
		{name: "nothing configured", sc: Scene{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, source := tt.sc.AssetRef()
			if ref != tt.wantRef || source != tt.wantSource {
				t.Errorf("AssetRef() = (%q, %q), want (%q, %q)", ref, source, tt.wantRef, tt.wantSource)
			}
		})
	}
}
