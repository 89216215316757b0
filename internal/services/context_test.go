package services_test

import (
	"context"
	"testing"

	"sceneforge/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithProductionID(ctx, "prod-1")
	ctx = services.WithSceneID(ctx, "scene-7")
	ctx = services.WithPhase(ctx, "video")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.ProductionIDFromContext(ctx); !ok || id != "prod-1" {
		t.Fatalf("unexpected production id: %v %v", id, ok)
	}
	if id, ok := services.SceneIDFromContext(ctx); !ok || id != "scene-7" {
		t.Fatalf("unexpected scene id: %v %v", id, ok)
	}
	if phase, ok := services.PhaseFromContext(ctx); !ok || phase != "video" {
		t.Fatalf("unexpected phase: %v %v", phase, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithPhase(ctx, "")
	ctx = services.WithSceneID(ctx, "")
	if _, ok := services.PhaseFromContext(ctx); ok {
		t.Fatal("expected no phase value")
	}
	if _, ok := services.SceneIDFromContext(ctx); ok {
		t.Fatal("expected no scene value")
	}
}
