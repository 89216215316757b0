package production

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field bounds, status values, scene numbering, and the
// image-before-video invariant.
func (p *Production) Validate() error {
	if p == nil {
		return errors.New("production is nil")
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("validate production: %w", err)
	}
	seen := make(map[string]struct{}, len(p.Scenes))
	var problems []string
	for i, scene := range p.Scenes {
		if scene.Number != i+1 {
			problems = append(problems, fmt.Sprintf("scene %s numbered %d at position %d", scene.ID, scene.Number, i+1))
		}
		if _, dup := seen[scene.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate scene id %s", scene.ID))
		}
		seen[scene.ID] = struct{}{}
		if _, ok := statusSet[scene.Status]; !ok {
			problems = append(problems, fmt.Sprintf("scene %s has unknown status %q", scene.ID, scene.Status))
		}
		if scene.GeneratedVideoURL != "" && scene.GeneratedImageURL == "" {
			problems = append(problems, fmt.Sprintf("scene %s has a video without an image", scene.ID))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid production: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Normalize repairs recoverable drift in a loaded production: numbering,
// missing ids, out-of-range durations, and nil reference lists.
func (p *Production) Normalize() {
	if p == nil {
		return
	}
	if p.Scenes == nil {
		p.Scenes = []Scene{}
	}
	if _, ok := ParseStep(string(p.Step)); !ok {
		p.Step = StepInput
	}
	for i := range p.Scenes {
		scene := &p.Scenes[i]
		if strings.TrimSpace(scene.ID) == "" {
			scene.ID = newSceneID()
		}
		if scene.Duration == 0 {
			scene.Duration = DefaultSceneDuration
		}
		scene.Duration = ClampDuration(scene.Duration)
		if scene.ReferenceAssetIDs == nil {
			scene.ReferenceAssetIDs = []string{}
		}
		if status, ok := ParseStatus(string(scene.Status)); ok {
			scene.Status = status
		} else {
			scene.Status = StatusPending
		}
		if scene.GeneratedImageURL == "" {
			scene.GeneratedVideoURL = ""
		}
	}
	p.Renumber()
}
