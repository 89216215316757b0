package production

import (
	"fmt"
	"strings"

	"sceneforge/internal/textutil"
)

// BuildImagePrompt assembles the image-generation prompt for scene from its
// visual prompt (or description) plus mood, camera, and dialogue context.
func BuildImagePrompt(scene Scene) string {
	base := firstNonEmpty(scene.VisualPrompt, scene.Description)
	parts := []string{strings.TrimSpace(base)}
	if mood := textutil.NormalizeTag(scene.Mood); mood != "" {
		parts = append(parts, fmt.Sprintf("Mood: %s.", mood))
	}
	if camera := textutil.NormalizeTag(scene.CameraMovement); camera != "" {
		parts = append(parts, fmt.Sprintf("Framing suited to a %s shot.", strings.ToLower(camera)))
	}
	if line := strings.TrimSpace(scene.Dialogue); line != "" {
		parts = append(parts, fmt.Sprintf("The subject is speaking: %q.", line))
	}
	return joinSentences(parts)
}

// BuildMotionPrompt returns the scene's video prompt, or derives one from the
// visual prompt plus camera and mood metadata.
func BuildMotionPrompt(scene Scene) string {
	if explicit := strings.TrimSpace(scene.VideoPrompt); explicit != "" {
		return explicit
	}
	parts := make([]string, 0, 4)
	if camera := textutil.NormalizeTag(scene.CameraMovement); camera != "" {
		parts = append(parts, fmt.Sprintf("Camera: %s.", camera))
	}
	if action := firstNonEmpty(scene.VisualPrompt, scene.Description); action != "" {
		parts = append(parts, strings.TrimSpace(action))
	}
	if mood := textutil.NormalizeTag(scene.Mood); mood != "" {
		parts = append(parts, fmt.Sprintf("%s atmosphere, smooth natural motion.", mood))
	}
	if line := strings.TrimSpace(scene.Dialogue); line != "" {
		parts = append(parts, fmt.Sprintf("Character says: %q.", line))
	}
	return joinSentences(parts)
}

func joinSentences(parts []string) string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
