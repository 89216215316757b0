package main

import (
	"encoding/json"
	"testing"

	"sceneforge/internal/orchestrator"
	"sceneforge/internal/production"
)

func TestProduceCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	id := env.createProduction(t, "Batch", "One", "Two", "Three")

	out := env.mustRun(t, "produce", id, "--json")
	var report orchestrator.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if report.Ready != 3 || report.Failed != 0 || report.Interrupted {
		t.Fatalf("unexpected report: %+v", report)
	}
	for _, scene := range sceneList(t, env, id) {
		if scene.Status != production.StatusVideoReady {
			t.Fatalf("scene %d status = %s", scene.Number, scene.Status)
		}
	}

	out = env.mustRun(t, "produce", id)
	requireContains(t, out, "Ready: 0  Failed: 0  Skipped: 3")
	if env.images.Load() != 3 || env.videos.Load() != 3 {
		t.Fatalf("second run regenerated: images=%d videos=%d", env.images.Load(), env.videos.Load())
	}
}
