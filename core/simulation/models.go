package simulation

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/Virtual-Educator/SimLearning/core"
	"github.com/Virtual-Educator/SimLearning/core/scene"
)

// SceneTypeImage is the only scene renderer the player ships with.
const SceneTypeImage = "image"

// Asset sources
const (
	AssetSourceStorage = "storage"
	AssetSourcePublic  = "public"
)

type (
	// Scene locates the visual asset an activity renders. Exactly one reference
	// must be usable: a storage path (image_path or entry) or a public src URL.
	Scene struct {
		Type      string `json:"type"`
		Src       string `json:"src,omitempty"`
		ImagePath string `json:"image_path,omitempty"`
		Entry     string `json:"entry,omitempty"`
		Storage   string `json:"storage,omitempty"`
	}

	// Task is the student-facing prompt shown beside the scene.
	Task struct {
		Prompt    string   `json:"prompt"`
		Checklist []string `json:"checklist,omitempty"`
	}

	// Manifest is the activity configuration document, stored as a JSONB column.
	// The player refuses to load an invalid one.
	Manifest struct {
		Scene Scene            `json:"scene"`
		Task  Task             `json:"task"`
		Tools scene.ToolConfig `json:"tools"`
	}

	// Activity is a playable simulation registered on the platform.
	Activity struct {
		ID          string    `json:"id" db:"id"`
		Slug        string    `json:"slug" db:"slug"`
		Title       string    `json:"title" db:"title"`
		Manifest    Manifest  `json:"manifest" db:"manifest"`
		IsPublished bool      `json:"is_published" db:"is_published"`
		CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC
		UpdatedAt   time.Time `json:"updated_at" db:"updated_at"` // UTC
	}

	// NewActivity contains information needed to register an Activity.
	NewActivity struct {
		Slug        string   `json:"slug" validate:"required,slug"`
		Title       string   `json:"title" validate:"required"`
		Manifest    Manifest `json:"manifest"`
		IsPublished bool     `json:"is_published"`
	}

	// ResolvedAsset is a displayable URL for a scene, tagged with where it came
	// from. Storage URLs are signed and expire; public URLs pass through as-is.
	ResolvedAsset struct {
		URL    string `json:"url"`
		Source string `json:"source"`
	}
)

func (m Manifest) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *Manifest) Scan(src interface{}) error {
	switch data := src.(type) {
	case []byte:
		return json.Unmarshal(data, m)
	case string:
		return json.Unmarshal([]byte(data), m)
	case nil:
		return nil
	}
	return errors.Errorf("unsupported manifest source %T", src)
}

// Validate checks that the manifest can drive the player at all. Violations are
// configuration errors: admins still see the activity but the player refuses it.
func (m Manifest) Validate() error {
	var fields []core.FieldError
	if m.Scene.Type != SceneTypeImage {
		fields = append(fields, core.FieldError{Field: "scene.type", Error: "unsupported scene type"})
	}
	if ref, _ := m.Scene.AssetRef(); ref == "" {
		fields = append(fields, core.FieldError{Field: "scene", Error: "no displayable asset reference"})
	}
	if core.CleanString(m.Task.Prompt) == "" {
		fields = append(fields, core.FieldError{Field: "task.prompt", Error: "prompt is required"})
	}
	if len(fields) > 0 {
		return core.NewValidationError(errors.New("invalid activity manifest"), fields...)
	}
	return nil
}

// AssetRef returns the configured asset reference and its source kind. Storage
// paths win over a public src when both are set.
func (s Scene) AssetRef() (string, string) {
	if s.ImagePath != "" {
		return s.ImagePath, AssetSourceStorage
	}
	if s.Entry != "" {
		return s.Entry, AssetSourceStorage
	}
	if s.Src != "" {
		return s.Src, AssetSourcePublic
	}
	return "", ""
}

func (na *NewActivity) Validate(validate *validator.Validate) error {
	na.Slug = core.CleanString(na.Slug, true)
	na.Title = core.CleanString(na.Title)

	if err := validate.Struct(na); err != nil {
		return err
	}
	return na.Manifest.Validate()
}
