package testsupport

import (
	"context"
	"testing"

	"sceneforge/internal/config"
	"sceneforge/internal/production"
	"sceneforge/internal/store"
)

// MustOpenStore opens a SQLite store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.SQLiteStore {
	t.Helper()

	st, err := store.OpenSQLite(cfg)
	if err != nil {
		t.Fatalf("store.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewProduction builds a production with one pending scene per prompt.
func NewProduction(title string, prompts ...string) *production.Production {
	p := production.New(title)
	for _, prompt := range prompts {
		p.AppendScene(production.Scene{Description: prompt, VisualPrompt: prompt})
	}
	return p
}

// MustCreate persists p in st and returns the stored copy.
func MustCreate(t testing.TB, st store.ProductionStore, p *production.Production) *production.Production {
	t.Helper()

	created, err := st.Create(context.Background(), p)
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return created
}
