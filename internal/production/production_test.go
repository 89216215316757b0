package production

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"reflect"
	"strings"
	"testing"
	"time"
)

func seeded(n int) *Production {
	p := New("Launch teaser")
	for i := 0; i < n; i++ {
		p.AppendScene(Scene{Description: "scene", VisualPrompt: "a red kite over dunes"})
	}
	return p
}

func assertContiguous(t *testing.T, p *Production) {
	t.Helper()
	for i, scene := range p.Scenes {
		if scene.Number != i+1 {
			t.Fatalf("scene at %d numbered %d: %#v", i, scene.Number, p.Scenes)
		}
	}
}

func TestMutationsKeepNumbersContiguous(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	p := seeded(3)
	for step := 0; step < 500; step++ {
		n := len(p.Scenes)
		switch rng.IntN(3) {
		case 0:
			p.InsertSceneAfter(rng.IntN(n + 2))
		case 1:
			if n > 0 {
				p.DeleteScene(p.Scenes[rng.IntN(n)].ID)
			} else {
				p.DeleteScene("missing")
			}
		case 2:
			p.Reorder(rng.IntN(n+2)-1, rng.IntN(n+2)-1)
		}
		assertContiguous(t, p)
		if err := p.Validate(); err != nil {
			t.Fatalf("step %d produced invalid production: %v", step, err)
		}
	}
}

func TestInvalidMutationsAreNoOps(t *testing.T) {
	p := seeded(2)
	before := p.Clone()

	if p.UpdateScene("missing", ScenePatch{Description: ptr("x")}) {
		t.Fatal("expected update of unknown id to report no change")
	}
	if p.DeleteScene("missing") {
		t.Fatal("expected delete of unknown id to report no change")
	}
	if _, ok := p.InsertSceneAfter(5); ok {
		t.Fatal("expected insert after unknown number to be rejected")
	}
	if p.Reorder(0, 9) || p.Reorder(-1, 0) || p.Reorder(1, 1) {
		t.Fatal("expected out-of-range reorder to be rejected")
	}
	if p.ToggleReference("missing", "asset") {
		t.Fatal("expected toggle on unknown scene to be rejected")
	}
	if !reflect.DeepEqual(before, p) {
		t.Fatalf("production mutated by no-op calls:\n%#v\n%#v", before, p)
	}
}

func TestInsertSceneAfterUsesDefaults(t *testing.T) {
	p := seeded(2)
	scene, ok := p.InsertSceneAfter(1)
	if !ok {
		t.Fatal("expected insert to succeed")
	}
	if scene.Number != 2 || p.Scenes[1].ID != scene.ID {
		t.Fatalf("expected new scene at position 2, got %#v", scene)
	}
	if scene.Description != "New scene" || scene.Duration != 5 || scene.CameraMovement != "Static" || scene.Mood != "Upbeat" {
		t.Fatalf("unexpected defaults: %#v", scene)
	}
	if scene.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", scene.Status)
	}

	front, ok := p.InsertSceneAfter(0)
	if !ok || front.Number != 1 || p.Scenes[0].ID != front.ID {
		t.Fatalf("expected insert at front, got %#v", front)
	}
}

func TestReorderMovesScene(t *testing.T) {
	p := seeded(3)
	ids := []string{p.Scenes[0].ID, p.Scenes[1].ID, p.Scenes[2].ID}
	if !p.Reorder(0, 2) {
		t.Fatal("expected reorder to succeed")
	}
	got := []string{p.Scenes[0].ID, p.Scenes[1].ID, p.Scenes[2].ID}
	want := []string{ids[1], ids[2], ids[0]}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected order %v, want %v", got, want)
	}
	assertContiguous(t, p)
}

func TestUpdateSceneClampsDurationAndReportsChange(t *testing.T) {
	p := seeded(1)
	id := p.Scenes[0].ID
	if !p.UpdateScene(id, ScenePatch{Duration: ptr(30)}) {
		t.Fatal("expected change")
	}
	if p.Scenes[0].Duration != MaxSceneDuration {
		t.Fatalf("expected clamp to %d, got %d", MaxSceneDuration, p.Scenes[0].Duration)
	}
	if p.UpdateScene(id, ScenePatch{Duration: ptr(12)}) {
		t.Fatal("expected identical clamped value to report no change")
	}
	p.UpdateScene(id, ScenePatch{ReferenceAssetIDs: []string{"a", " a ", "b", ""}})
	if !reflect.DeepEqual(p.Scenes[0].ReferenceAssetIDs, []string{"a", "b"}) {
		t.Fatalf("expected deduped references, got %v", p.Scenes[0].ReferenceAssetIDs)
	}
}

func TestToggleReference(t *testing.T) {
	p := seeded(1)
	id := p.Scenes[0].ID
	p.ToggleReference(id, "logo")
	p.ToggleReference(id, "mascot")
	p.ToggleReference(id, "logo")
	if !reflect.DeepEqual(p.Scenes[0].ReferenceAssetIDs, []string{"mascot"}) {
		t.Fatalf("unexpected references %v", p.Scenes[0].ReferenceAssetIDs)
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := seeded(1)
	p.Scenes[0].ReferenceAssetIDs = []string{"a"}
	saved := time.Unix(100, 0)
	p.LastSavedAt = &saved

	cp := p.Clone()
	cp.Scenes[0].ReferenceAssetIDs[0] = "mutated"
	cp.Scenes[0].Description = "changed"
	*cp.LastSavedAt = time.Unix(200, 0)

	if p.Scenes[0].ReferenceAssetIDs[0] != "a" || p.Scenes[0].Description != "scene" {
		t.Fatalf("clone shares scene data: %#v", p.Scenes[0])
	}
	if !p.LastSavedAt.Equal(time.Unix(100, 0)) {
		t.Fatal("clone shares LastSavedAt")
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to Status
		image    string
		wantErr  error
	}{
		{StatusPending, StatusImageGenerating, "", nil},
		{StatusPending, StatusVideoGenerating, "https://cdn/x.png", ErrInvalidTransition},
		{StatusImageGenerating, StatusImageReady, "https://cdn/x.png", nil},
		{StatusImageGenerating, StatusImageReady, "", ErrImageRequired},
		{StatusImageReady, StatusVideoGenerating, "https://cdn/x.png", nil},
		{StatusVideoGenerating, StatusVideoReady, "https://cdn/x.png", nil},
		{StatusVideoReady, StatusPending, "https://cdn/x.png", ErrInvalidTransition},
		{StatusError, StatusVideoGenerating, "", ErrImageRequired},
		{StatusError, StatusImageReady, "https://cdn/x.png", nil},
		{StatusError, StatusImageGenerating, "", nil},
		{StatusVideoGenerating, StatusError, "", nil},
	}
	for _, tt := range tests {
		scene := Scene{Status: tt.from, GeneratedImageURL: tt.image}
		err := Transition(&scene, tt.to)
		if tt.wantErr == nil {
			if err != nil {
				t.Errorf("%s -> %s: unexpected error %v", tt.from, tt.to, err)
			} else if scene.Status != tt.to {
				t.Errorf("%s -> %s: status not applied", tt.from, tt.to)
			}
			continue
		}
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.wantErr, err)
		}
		if scene.Status != tt.from {
			t.Errorf("%s -> %s: status changed on failure", tt.from, tt.to)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := ParseStatus(" Video_Ready "); !ok || s != StatusVideoReady {
		t.Fatalf("unexpected parse result %q %v", s, ok)
	}
	if _, ok := ParseStatus("done"); ok {
		t.Fatal("expected unknown status to fail")
	}
	if !StatusImageGenerating.IsGenerating() || StatusImageReady.IsGenerating() {
		t.Fatal("unexpected IsGenerating")
	}
	if !StatusError.IsTerminal() || !StatusVideoReady.IsTerminal() || StatusImageReady.IsTerminal() {
		t.Fatal("unexpected IsTerminal")
	}
}

func TestReclaimStale(t *testing.T) {
	p := seeded(3)
	p.Scenes[0].Status = StatusImageGenerating
	p.Scenes[1].Status = StatusImageGenerating
	p.Scenes[1].GeneratedImageURL = "https://cdn/old.png"
	p.Scenes[2].Status = StatusVideoGenerating
	p.Scenes[2].GeneratedImageURL = "https://cdn/2.png"

	if got := ReclaimStale(p); got != 3 {
		t.Fatalf("expected 3 reclaimed, got %d", got)
	}
	want := []Status{StatusPending, StatusImageReady, StatusImageReady}
	for i, status := range want {
		if p.Scenes[i].Status != status {
			t.Fatalf("scene %d: expected %s, got %s", i, status, p.Scenes[i].Status)
		}
	}
}

func TestApplyProgressKeepsVideoBehindImage(t *testing.T) {
	p := seeded(1)
	id := p.Scenes[0].ID
	p.UpdateScene(id, ScenePatch{Description: ptr("edited mid-flight")})

	if p.ApplyProgress(id, Progress{Status: StatusVideoReady, GeneratedVideoURL: "https://cdn/v.mp4"}) {
		t.Fatal("expected video without image to be refused")
	}
	ok := p.ApplyProgress(id, Progress{
		Status:            StatusVideoReady,
		GeneratedImageURL: "https://cdn/i.png",
		GeneratedVideoURL: "https://cdn/v.mp4",
	})
	if !ok {
		t.Fatal("expected progress to apply")
	}
	if p.Scenes[0].Description != "edited mid-flight" {
		t.Fatalf("progress overwrote user field: %#v", p.Scenes[0])
	}
	if p.ApplyProgress("deleted", Progress{Status: StatusError}) {
		t.Fatal("expected write-back to deleted scene to be dropped")
	}
}

func TestValidateRejectsVideoWithoutImage(t *testing.T) {
	p := seeded(1)
	p.Scenes[0].GeneratedVideoURL = "https://cdn/v.mp4"
	if err := p.Validate(); err == nil || !strings.Contains(err.Error(), "video without an image") {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

func TestNormalizeRepairsLoadedProduction(t *testing.T) {
	p := &Production{Step: "bogus", Scenes: []Scene{
		{Number: 4, Duration: 1, Status: "weird", GeneratedVideoURL: "https://cdn/v.mp4"},
		{ID: "b", Number: 9, Duration: 6, Status: StatusImageReady, GeneratedImageURL: "https://cdn/i.png"},
	}}
	p.Normalize()
	if p.Step != StepInput {
		t.Fatalf("expected step reset, got %s", p.Step)
	}
	if p.Scenes[0].ID == "" || p.Scenes[0].Duration != MinSceneDuration || p.Scenes[0].Status != StatusPending {
		t.Fatalf("unexpected repaired scene %#v", p.Scenes[0])
	}
	if p.Scenes[0].GeneratedVideoURL != "" {
		t.Fatal("expected orphan video url cleared")
	}
	assertContiguous(t, p)
	if err := p.Validate(); err != nil {
		t.Fatalf("expected normalized production to validate: %v", err)
	}
}

func TestBuildMotionPromptDerivesFromMetadata(t *testing.T) {
	scene := Scene{VisualPrompt: "A lighthouse at dusk", CameraMovement: "slow dolly_in", Mood: "calm"}
	got := BuildMotionPrompt(scene)
	for _, fragment := range []string{"Camera: Slow Dolly In.", "A lighthouse at dusk", "Calm atmosphere"} {
		if !strings.Contains(got, fragment) {
			t.Fatalf("expected %q in %q", fragment, got)
		}
	}
	scene.VideoPrompt = "  explicit motion  "
	if BuildMotionPrompt(scene) != "explicit motion" {
		t.Fatal("expected explicit video prompt to win")
	}
}

func TestBuildImagePromptFallsBackToDescription(t *testing.T) {
	got := BuildImagePrompt(Scene{Description: "Founder at desk", Mood: "upbeat", Dialogue: "We ship today"})
	if !strings.HasPrefix(got, "Founder at desk") || !strings.Contains(got, "Mood: Upbeat.") || !strings.Contains(got, `"We ship today"`) {
		t.Fatalf("unexpected prompt %q", got)
	}
}

func TestExportJSONAndCSV(t *testing.T) {
	p := seeded(2)
	p.Scenes[1].Duration = 7
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	var buf bytes.Buffer
	if err := Export(&buf, p, ExportJSON, now); err != nil {
		t.Fatalf("export json: %v", err)
	}
	var doc ExportDocument
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if doc.TotalDuration != 12 || len(doc.Scenes) != 2 || !doc.ExportedAt.Equal(now) {
		t.Fatalf("unexpected export document %#v", doc)
	}

	buf.Reset()
	if err := Export(&buf, p, ExportCSV, now); err != nil {
		t.Fatalf("export csv: %v", err)
	}
	r := csv.NewReader(&buf)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 4 || rows[0][0] != "number" || rows[3][0] != "total" || rows[3][1] != "12" {
		t.Fatalf("unexpected csv rows %v", rows)
	}

	if _, err := ParseExportFormat("pdf"); err == nil {
		t.Fatal("expected pdf to be unsupported")
	}
}

func ptr[T any](v T) *T { return &v }

func TestExportFileName(t *testing.T) {
	p := seeded(1)
	if got := ExportFileName(p, ExportCSV); got != "launch-teaser.csv" {
		t.Fatalf("unsaved name = %q", got)
	}
	p.ID = "42"
	p.Title = "Café at night!"
	if got := ExportFileName(p, ExportJSON); got != "cafe-at-night-42.json" {
		t.Fatalf("saved name = %q", got)
	}
}
