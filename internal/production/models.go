package production

import (
	"strings"
	"time"
)

// Step is the editor cursor through the production workflow.
type Step string

const (
	StepInput      Step = "input"
	StepScenes     Step = "scenes"
	StepProduction Step = "production"
	StepReview     Step = "review"
)

var allSteps = []Step{StepInput, StepScenes, StepProduction, StepReview}

// ParseStep converts a string into a known Step.
func ParseStep(value string) (Step, bool) {
	normalized := Step(strings.ToLower(strings.TrimSpace(value)))
	for _, step := range allSteps {
		if step == normalized {
			return step, true
		}
	}
	return "", false
}

const (
	MinSceneDuration     = 3
	MaxSceneDuration     = 8
	DefaultSceneDuration = 5

	defaultCameraMovement = "Static"
	defaultMood           = "Upbeat"
	newSceneDescription   = "New scene"
)

// Settings carries per-production generation parameters.
type Settings struct {
	AspectRatio     string `json:"aspect_ratio" yaml:"aspect_ratio" validate:"omitempty,oneof=1:1 16:9 9:16"`
	ImageResolution string `json:"image_resolution" yaml:"image_resolution"`
	VideoResolution string `json:"video_resolution" yaml:"video_resolution"`
	ImageMode       string `json:"image_mode,omitempty" yaml:"image_mode,omitempty"`
}

// Scene is one shot with its prompts, generation status, and resulting assets.
type Scene struct {
	ID                string    `json:"id" yaml:"id" validate:"required"`
	Number            int       `json:"number" yaml:"number" validate:"gte=1"`
	Duration          int       `json:"duration" yaml:"duration" validate:"gte=3,lte=8"`
	Description       string    `json:"description" yaml:"description"`
	VisualPrompt      string    `json:"visual_prompt" yaml:"visual_prompt"`
	VideoPrompt       string    `json:"video_prompt,omitempty" yaml:"video_prompt,omitempty"`
	CameraMovement    string    `json:"camera_movement,omitempty" yaml:"camera_movement,omitempty"`
	Mood              string    `json:"mood,omitempty" yaml:"mood,omitempty"`
	Dialogue          string    `json:"dialogue,omitempty" yaml:"dialogue,omitempty"`
	ReferenceAssetIDs []string  `json:"reference_asset_ids" yaml:"reference_asset_ids"`
	GeneratedImageURL string    `json:"generated_image_url,omitempty" yaml:"generated_image_url,omitempty" validate:"omitempty,uri"`
	GeneratedVideoURL string    `json:"generated_video_url,omitempty" yaml:"generated_video_url,omitempty" validate:"omitempty,uri"`
	Error             string    `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind         ErrorKind `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	ErrorCauses       []string  `json:"error_causes,omitempty" yaml:"error_causes,omitempty"`
	Status            Status    `json:"status" yaml:"status" validate:"required"`
}

// Production is the unit of work: an ordered list of scenes plus metadata.
type Production struct {
	// ID is empty until the durable store allocates one.
	ID          string     `json:"id,omitempty" yaml:"id,omitempty"`
	Title       string     `json:"title" yaml:"title"`
	Step        Step       `json:"step" yaml:"step"`
	Scenes      []Scene    `json:"scenes" yaml:"scenes" validate:"dive"`
	Settings    Settings   `json:"settings" yaml:"settings"`
	LastSavedAt *time.Time `json:"last_saved_at,omitempty" yaml:"-"`
	Dirty       bool       `json:"dirty" yaml:"-"`
	CreatedAt   time.Time  `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt   time.Time  `json:"updated_at,omitempty" yaml:"-"`
}

// New returns an empty production at the input step.
func New(title string) *Production {
	return &Production{
		Title:  strings.TrimSpace(title),
		Step:   StepInput,
		Scenes: []Scene{},
	}
}

// NewScene returns a pending scene with editor defaults and a fresh id.
func NewScene(description string) Scene {
	description = strings.TrimSpace(description)
	if description == "" {
		description = newSceneDescription
	}
	return Scene{
		ID:                newSceneID(),
		Duration:          DefaultSceneDuration,
		Description:       description,
		CameraMovement:    defaultCameraMovement,
		Mood:              defaultMood,
		ReferenceAssetIDs: []string{},
		Status:            StatusPending,
	}
}

// ScenePatch carries user-editable fields; nil pointers leave a field unchanged.
type ScenePatch struct {
	Description       *string  `json:"description,omitempty"`
	VisualPrompt      *string  `json:"visual_prompt,omitempty"`
	VideoPrompt       *string  `json:"video_prompt,omitempty"`
	CameraMovement    *string  `json:"camera_movement,omitempty"`
	Mood              *string  `json:"mood,omitempty"`
	Dialogue          *string  `json:"dialogue,omitempty"`
	Duration          *int     `json:"duration,omitempty"`
	ReferenceAssetIDs []string `json:"reference_asset_ids,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ScenePatch) Empty() bool {
	return p.Description == nil && p.VisualPrompt == nil && p.VideoPrompt == nil &&
		p.CameraMovement == nil && p.Mood == nil && p.Dialogue == nil &&
		p.Duration == nil && p.ReferenceAssetIDs == nil
}

// Progress is the orchestrator-owned slice of a scene. Applying it never
// touches the user-editable fields.
type Progress struct {
	Status            Status
	GeneratedImageURL string
	GeneratedVideoURL string
	Error             string
	ErrorKind         ErrorKind
	ErrorCauses       []string
}

// ProgressOf extracts the orchestrator-owned fields of scene.
func ProgressOf(scene Scene) Progress {
	return Progress{
		Status:            scene.Status,
		GeneratedImageURL: scene.GeneratedImageURL,
		GeneratedVideoURL: scene.GeneratedVideoURL,
		Error:             scene.Error,
		ErrorKind:         scene.ErrorKind,
		ErrorCauses:       append([]string(nil), scene.ErrorCauses...),
	}
}

// TotalDuration sums the target durations of every scene in seconds.
func (p *Production) TotalDuration() int {
	total := 0
	for _, scene := range p.Scenes {
		total += scene.Duration
	}
	return total
}

// StatusCounts tallies scenes per status.
func (p *Production) StatusCounts() map[Status]int {
	counts := make(map[Status]int, len(allStatuses))
	for _, scene := range p.Scenes {
		counts[scene.Status]++
	}
	return counts
}

// Complete reports whether every scene has a finished video.
func (p *Production) Complete() bool {
	if len(p.Scenes) == 0 {
		return false
	}
	for _, scene := range p.Scenes {
		if scene.Status != StatusVideoReady {
			return false
		}
	}
	return true
}
