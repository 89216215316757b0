package editor_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"sceneforge/internal/editor"
	"sceneforge/internal/persistence"
	"sceneforge/internal/production"
	"sceneforge/internal/services"
	"sceneforge/internal/store"
	"sceneforge/internal/testsupport"
)

type fixture struct {
	workspace *editor.Workspace
	adapter   *persistence.Adapter
	cache     *persistence.LocalCache
	handoff   *persistence.Handoff
	store     store.ProductionStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	cache := persistence.NewLocalCache(cfg.CachePath(), nil)
	handoff := persistence.NewHandoff(cfg.Paths.HandoffFile)
	adapter := persistence.NewAdapter(st, cache, handoff, time.Hour, nil)
	return fixture{
		workspace: editor.NewWorkspace(adapter, 10, nil),
		adapter:   adapter,
		cache:     cache,
		handoff:   handoff,
		store:     st,
	}
}

func TestCreateAllocatesIDAndSaves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.workspace.Create(ctx, testsupport.NewProduction("Launch", "a", "b"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID() == "" || s.Dirty() {
		t.Fatalf("expected saved production with id, dirty=%v", s.Dirty())
	}
	stored, err := f.store.Get(ctx, s.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(stored.Scenes) != 2 || stored.Title != "Launch" {
		t.Fatalf("unexpected stored production %#v", stored)
	}
	again, err := f.workspace.Open(ctx, s.ID())
	if err != nil || again != s {
		t.Fatalf("expected Open to return the live session, got %p vs %p (%v)", again, s, err)
	}
}

func TestEditsMirrorAndScheduleSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.workspace.Create(ctx, testsupport.NewProduction("Launch", "a"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	desc := "a red kite"
	if !s.UpdateScene(s.Snapshot().Scenes[0].ID, production.ScenePatch{Description: &desc}) {
		t.Fatal("expected update to apply")
	}
	if !s.Dirty() || !f.adapter.HasPending() {
		t.Fatal("expected dirty session with a pending durable save")
	}
	entry, found, err := f.cache.Load()
	if err != nil || !found || entry.Production.Scenes[0].Description != desc {
		t.Fatalf("expected cache mirror of the edit, got %#v (%v)", entry, err)
	}

	f.adapter.FlushPending()
	if s.Dirty() {
		t.Fatal("expected flush to clear dirty")
	}
	stored, _ := f.store.Get(ctx, s.ID())
	if stored.Scenes[0].Description != desc {
		t.Fatalf("expected durable copy updated, got %q", stored.Scenes[0].Description)
	}
}

func TestNoopEditLeavesNoHistory(t *testing.T) {
	f := newFixture(t)
	s, _ := f.workspace.Create(context.Background(), testsupport.NewProduction("Launch", "a"))
	if s.DeleteScene("missing") || s.Reorder(0, 5) {
		t.Fatal("expected no-op edits")
	}
	if s.History().CanUndo {
		t.Fatal("expected no history for no-op edits")
	}
}

func TestUndoRedoThreeEdits(t *testing.T) {
	f := newFixture(t)
	s, _ := f.workspace.Create(context.Background(), testsupport.NewProduction("Launch", "a", "b"))
	start := s.Snapshot().Scenes
	id := start[0].ID

	states := [][]production.Scene{start}
	for _, text := range []string{"one", "two", "three"} {
		desc := text
		s.UpdateScene(id, production.ScenePatch{Description: &desc})
		states = append(states, s.Snapshot().Scenes)
	}
	if got := s.History(); !got.CanUndo || got.PreviousAction != "edit scene" {
		t.Fatalf("unexpected history %#v", got)
	}
	for i := 2; i >= 0; i-- {
		if _, ok := s.Undo(); !ok {
			t.Fatalf("undo failed at %d", i)
		}
		if !reflect.DeepEqual(s.Snapshot().Scenes, states[i]) {
			t.Fatalf("undo %d restored wrong scenes", i)
		}
	}
	if _, ok := s.Undo(); ok {
		t.Fatal("expected empty undo stack")
	}
	if _, ok := s.Redo(); !ok || !reflect.DeepEqual(s.Snapshot().Scenes, states[1]) {
		t.Fatal("expected redo to restore the first edit")
	}
}

func TestUndoKeepsGenerationResults(t *testing.T) {
	f := newFixture(t)
	s, _ := f.workspace.Create(context.Background(), testsupport.NewProduction("Launch", "a"))
	id := s.Snapshot().Scenes[0].ID
	desc := "edited"
	s.UpdateScene(id, production.ScenePatch{Description: &desc})

	if !s.ApplyProgress(id, production.Progress{Status: production.StatusImageReady, GeneratedImageURL: "https://cdn/a.png"}) {
		t.Fatal("expected progress to apply")
	}
	if _, ok := s.Undo(); !ok {
		t.Fatal("undo failed")
	}
	scene := s.Snapshot().Scenes[0]
	if scene.Description != "a" {
		t.Fatalf("expected description reverted, got %q", scene.Description)
	}
	if scene.GeneratedImageURL != "https://cdn/a.png" || scene.Status != production.StatusImageReady {
		t.Fatalf("expected generated image kept, got %#v", scene)
	}
}

func TestApplyProgressIsNotUndoable(t *testing.T) {
	f := newFixture(t)
	s, _ := f.workspace.Create(context.Background(), testsupport.NewProduction("Launch", "a"))
	id := s.Snapshot().Scenes[0].ID
	s.ApplyProgress(id, production.Progress{Status: production.StatusImageGenerating})
	if s.History().CanUndo {
		t.Fatal("orchestrator write-backs must not enter history")
	}
	s.DeleteScene(id)
	if s.ApplyProgress(id, production.Progress{Status: production.StatusImageReady, GeneratedImageURL: "x"}) {
		t.Fatal("expected write to a deleted scene to be dropped")
	}
}

func TestInsertAndSettings(t *testing.T) {
	f := newFixture(t)
	s, _ := f.workspace.Create(context.Background(), testsupport.NewProduction("Launch", "a"))
	scene, ok := s.InsertSceneAfter(0)
	if !ok || scene.Number != 1 || s.Snapshot().Scenes[1].Number != 2 {
		t.Fatalf("unexpected insert %#v", scene)
	}
	settings := s.Snapshot().Settings
	settings.AspectRatio = "4:3"
	if err := s.UpdateSettings(settings); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	settings.AspectRatio = "16:9"
	if err := s.UpdateSettings(settings); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if !s.Rename("Launch v2") || s.Rename("Launch v2") {
		t.Fatal("expected rename to apply once")
	}
}

func TestRestoreFromHandoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := persistence.Plan{Title: "Planned", Scenes: []persistence.PlanScene{{Description: "one"}, {Description: "two"}}}
	if err := f.handoff.Write(plan); err != nil {
		t.Fatalf("Write: %v", err)
	}
	s, source, err := f.workspace.Restore(ctx)
	if err != nil || source != persistence.SourceHandoff {
		t.Fatalf("unexpected restore %v %v", source, err)
	}
	if s.ID() == "" {
		t.Fatal("expected handoff production saved with an id")
	}
	if _, err := f.store.Get(ctx, s.ID()); err != nil {
		t.Fatalf("expected durable copy: %v", err)
	}

	other := editor.NewWorkspace(f.adapter, 10, nil)
	again, source, err := other.Restore(ctx)
	if err != nil || source != persistence.SourceDurable || again.ID() != s.ID() {
		t.Fatalf("expected durable restore of %s, got %v %v", s.ID(), source, err)
	}
}

func TestDeleteAndFlushAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	keep, _ := f.workspace.Create(ctx, testsupport.NewProduction("Keep", "a"))
	drop, _ := f.workspace.Create(ctx, testsupport.NewProduction("Drop", "a"))

	keep.Rename("Kept")
	drop.Rename("Dropped")
	if err := f.workspace.Delete(ctx, drop.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := f.workspace.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	f.adapter.FlushPending()

	if _, err := f.store.Get(ctx, drop.ID()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected deleted production gone, got %v", err)
	}
	rows, err := f.workspace.List(ctx)
	if err != nil || len(rows) != 1 || rows[0].Title != "Kept" {
		t.Fatalf("unexpected listing %#v (%v)", rows, err)
	}
	if len(f.workspace.Sessions()) != 1 {
		t.Fatal("expected one open session")
	}
}

func TestDeletedSessionDropsLateWriteBacks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.workspace.Create(ctx, testsupport.NewProduction("Doomed", "a"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sceneID := s.Snapshot().Scenes[0].ID
	if err := f.workspace.Delete(ctx, s.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if s.ApplyProgress(sceneID, production.Progress{Status: production.StatusImageReady, GeneratedImageURL: "https://cdn/a.png"}) {
		t.Fatal("expected write-back to a deleted production to be dropped")
	}
	if err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if s.Rename("Revived") {
		t.Fatal("expected edits on a deleted production to be refused")
	}
	if f.adapter.HasPending() {
		t.Fatal("expected no pending save after delete")
	}
	f.adapter.FlushPending()

	if _, found, _ := f.cache.Load(); found {
		t.Fatal("expected local cache to stay clear")
	}
	p, source, err := f.adapter.Load(ctx)
	if err != nil || source != persistence.SourceNew {
		t.Fatalf("expected a fresh production, got %v %q (%v)", source, p.Title, err)
	}
}

func TestFlushCancelsPendingSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.workspace.Create(ctx, testsupport.NewProduction("Launch", "a"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.Rename("Relaunch")
	if !f.adapter.HasPending() {
		t.Fatal("expected a pending save after an edit")
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if f.adapter.HasPending() {
		t.Fatal("expected flush to drop the pending save")
	}
	stored, err := f.store.Get(ctx, s.ID())
	if err != nil || stored.Title != "Relaunch" {
		t.Fatalf("unexpected stored production %#v (%v)", stored, err)
	}
}
