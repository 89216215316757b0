package persistence

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"sceneforge/internal/fileutil"
	"sceneforge/internal/production"
	"sceneforge/internal/textutil"
)

// Plan is the scene breakdown an upstream planning step hands to the editor.
// Plans are YAML; JSON documents parse too.
type Plan struct {
	Title    string              `yaml:"title"`
	Settings production.Settings `yaml:"settings"`
	Scenes   []PlanScene         `yaml:"scenes"`
}

// PlanScene is one planned shot.
type PlanScene struct {
	Description       string   `yaml:"description"`
	VisualPrompt      string   `yaml:"visual_prompt"`
	VideoPrompt       string   `yaml:"video_prompt"`
	CameraMovement    string   `yaml:"camera_movement"`
	Mood              string   `yaml:"mood"`
	Dialogue          string   `yaml:"dialogue"`
	Duration          int      `yaml:"duration"`
	ReferenceAssetIDs []string `yaml:"reference_asset_ids"`
}

// ParsePlan decodes a plan document.
func ParsePlan(data []byte) (Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return Plan{}, fmt.Errorf("parse plan: %w", err)
	}
	if len(plan.Scenes) == 0 {
		return Plan{}, errors.New("plan has no scenes")
	}
	return plan, nil
}

// Production builds a fresh, unsaved production from the plan at the scenes step.
func (p Plan) Production() *production.Production {
	out := production.New(textutil.NormalizeTitle(p.Title))
	out.Step = production.StepScenes
	out.Settings = p.Settings
	for _, planned := range p.Scenes {
		scene := production.NewScene(planned.Description)
		scene.VisualPrompt = strings.TrimSpace(planned.VisualPrompt)
		scene.VideoPrompt = strings.TrimSpace(planned.VideoPrompt)
		if planned.CameraMovement != "" {
			scene.CameraMovement = textutil.NormalizeTag(planned.CameraMovement)
		}
		if planned.Mood != "" {
			scene.Mood = textutil.NormalizeTag(planned.Mood)
		}
		scene.Dialogue = strings.TrimSpace(planned.Dialogue)
		if planned.Duration != 0 {
			scene.Duration = production.ClampDuration(planned.Duration)
		}
		if planned.ReferenceAssetIDs != nil {
			scene.ReferenceAssetIDs = append([]string{}, planned.ReferenceAssetIDs...)
		}
		out.AppendScene(scene)
	}
	return out
}

// Handoff is a one-shot plan file consumed on load.
type Handoff struct {
	path string
}

// NewHandoff watches path for a pending plan. An empty path disables handoff.
func NewHandoff(path string) *Handoff {
	return &Handoff{path: path}
}

// Write stores plan for the next Consume.
func (h *Handoff) Write(plan Plan) error {
	if h.path == "" {
		return errors.New("handoff path not configured")
	}
	data, err := yaml.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return fileutil.WriteFileAtomic(h.path, data, 0o644)
}

// Consume reads and removes the pending plan. It reports false when none is waiting.
func (h *Handoff) Consume() (Plan, bool, error) {
	if h.path == "" {
		return Plan{}, false, nil
	}
	data, err := os.ReadFile(h.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Plan{}, false, nil
	}
	if err != nil {
		return Plan{}, false, fmt.Errorf("read handoff: %w", err)
	}
	if err := fileutil.RemoveIfExists(h.path); err != nil {
		return Plan{}, false, fmt.Errorf("clear handoff: %w", err)
	}
	plan, err := ParsePlan(data)
	if err != nil {
		return Plan{}, false, err
	}
	return plan, true, nil
}
