package production

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

var newSceneID = uuid.NewString

// FindScene returns the index of the scene with id, or -1.
func (p *Production) FindScene(id string) int {
	if p == nil {
		return -1
	}
	for i := range p.Scenes {
		if p.Scenes[i].ID == id {
			return i
		}
	}
	return -1
}

// Scene returns a copy of the scene with id.
func (p *Production) Scene(id string) (Scene, bool) {
	idx := p.FindScene(id)
	if idx < 0 {
		return Scene{}, false
	}
	return cloneScene(p.Scenes[idx]), true
}

// Renumber rewrites scene numbers as 1..n in list order.
func (p *Production) Renumber() {
	for i := range p.Scenes {
		p.Scenes[i].Number = i + 1
	}
}

// UpdateScene applies the user-editable fields of patch to the scene with id.
// Unknown ids are a no-op. Durations are clamped into the supported range.
func (p *Production) UpdateScene(id string, patch ScenePatch) bool {
	idx := p.FindScene(id)
	if idx < 0 || patch.Empty() {
		return false
	}
	scene := &p.Scenes[idx]
	before := cloneScene(*scene)
	assign := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	assign(&scene.Description, patch.Description)
	assign(&scene.VisualPrompt, patch.VisualPrompt)
	assign(&scene.VideoPrompt, patch.VideoPrompt)
	assign(&scene.CameraMovement, patch.CameraMovement)
	assign(&scene.Mood, patch.Mood)
	assign(&scene.Dialogue, patch.Dialogue)
	if patch.Duration != nil {
		scene.Duration = ClampDuration(*patch.Duration)
	}
	if patch.ReferenceAssetIDs != nil {
		scene.ReferenceAssetIDs = dedupeIDs(patch.ReferenceAssetIDs)
	}
	return !sceneEqual(before, *scene)
}

// DeleteScene removes the scene with id and renumbers the remainder.
func (p *Production) DeleteScene(id string) bool {
	idx := p.FindScene(id)
	if idx < 0 {
		return false
	}
	p.Scenes = slices.Delete(p.Scenes, idx, idx+1)
	p.Renumber()
	return true
}

// InsertSceneAfter inserts a fresh pending scene after the scene numbered
// number. Zero inserts at the front. Unknown numbers are a no-op.
func (p *Production) InsertSceneAfter(number int) (Scene, bool) {
	if p == nil || number < 0 || number > len(p.Scenes) {
		return Scene{}, false
	}
	scene := NewScene("")
	p.Scenes = slices.Insert(p.Scenes, number, scene)
	p.Renumber()
	return cloneScene(p.Scenes[number]), true
}

// AppendScene adds scene at the end, assigning an id when missing.
func (p *Production) AppendScene(scene Scene) Scene {
	if strings.TrimSpace(scene.ID) == "" {
		scene.ID = newSceneID()
	}
	if scene.Status == "" {
		scene.Status = StatusPending
	}
	if scene.Duration == 0 {
		scene.Duration = DefaultSceneDuration
	}
	scene.Duration = ClampDuration(scene.Duration)
	if scene.ReferenceAssetIDs == nil {
		scene.ReferenceAssetIDs = []string{}
	}
	p.Scenes = append(p.Scenes, scene)
	p.Renumber()
	return cloneScene(p.Scenes[len(p.Scenes)-1])
}

// Reorder moves the scene at index from to index to and renumbers.
// Out-of-range indices are a no-op.
func (p *Production) Reorder(from, to int) bool {
	n := len(p.Scenes)
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		return false
	}
	moved := p.Scenes[from]
	p.Scenes = slices.Delete(p.Scenes, from, from+1)
	p.Scenes = slices.Insert(p.Scenes, to, moved)
	p.Renumber()
	return true
}

// ToggleReference adds assetID to the scene's references or removes it when
// already present.
func (p *Production) ToggleReference(sceneID, assetID string) bool {
	assetID = strings.TrimSpace(assetID)
	idx := p.FindScene(sceneID)
	if idx < 0 || assetID == "" {
		return false
	}
	scene := &p.Scenes[idx]
	if pos := slices.Index(scene.ReferenceAssetIDs, assetID); pos >= 0 {
		scene.ReferenceAssetIDs = slices.Delete(scene.ReferenceAssetIDs, pos, pos+1)
		return true
	}
	scene.ReferenceAssetIDs = append(scene.ReferenceAssetIDs, assetID)
	return true
}

// ApplyProgress writes orchestrator-owned fields onto the scene with id and
// leaves user-edited fields alone. A deleted scene drops the write.
func (p *Production) ApplyProgress(id string, progress Progress) bool {
	idx := p.FindScene(id)
	if idx < 0 {
		return false
	}
	scene := &p.Scenes[idx]
	if progress.GeneratedVideoURL != "" && progress.GeneratedImageURL == "" {
		return false
	}
	scene.Status = progress.Status
	scene.GeneratedImageURL = progress.GeneratedImageURL
	scene.GeneratedVideoURL = progress.GeneratedVideoURL
	scene.Error = progress.Error
	scene.ErrorKind = progress.ErrorKind
	scene.ErrorCauses = append([]string(nil), progress.ErrorCauses...)
	return true
}

// Clone returns a deep copy sharing no slices with p.
func (p *Production) Clone() *Production {
	if p == nil {
		return nil
	}
	cp := *p
	if p.LastSavedAt != nil {
		saved := *p.LastSavedAt
		cp.LastSavedAt = &saved
	}
	cp.Scenes = make([]Scene, len(p.Scenes))
	for i, scene := range p.Scenes {
		cp.Scenes[i] = cloneScene(scene)
	}
	return &cp
}

// ClampDuration bounds seconds into [MinSceneDuration, MaxSceneDuration].
func ClampDuration(seconds int) int {
	return min(max(seconds, MinSceneDuration), MaxSceneDuration)
}

func cloneScene(scene Scene) Scene {
	cp := scene
	cp.ReferenceAssetIDs = append([]string{}, scene.ReferenceAssetIDs...)
	if scene.ErrorCauses != nil {
		cp.ErrorCauses = append([]string{}, scene.ErrorCauses...)
	}
	return cp
}

func sceneEqual(a, b Scene) bool {
	return a.Description == b.Description &&
		a.VisualPrompt == b.VisualPrompt &&
		a.VideoPrompt == b.VideoPrompt &&
		a.CameraMovement == b.CameraMovement &&
		a.Mood == b.Mood &&
		a.Dialogue == b.Dialogue &&
		a.Duration == b.Duration &&
		slices.Equal(a.ReferenceAssetIDs, b.ReferenceAssetIDs)
}

func dedupeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
