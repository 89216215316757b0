package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"sceneforge/internal/production"
	"sceneforge/internal/services"
	"sceneforge/internal/store"
	"sceneforge/internal/testsupport"
)

func TestSQLiteRoundTripPreservesScenes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	p := testsupport.NewProduction("Launch teaser", "desk at dawn", "city at night")
	p.Scenes[0].Status = production.StatusVideoReady
	p.Scenes[0].GeneratedImageURL = "https://cdn.example/1.png"
	p.Scenes[0].GeneratedVideoURL = "https://cdn.example/1.mp4"
	p.Scenes[1].Status = production.StatusError
	p.Scenes[1].Error = "video rejected"
	p.Scenes[1].ErrorKind = production.ErrorKindVideoRejected
	p.Scenes[1].ErrorCauses = []string{"policy"}
	p.Settings = production.Settings{AspectRatio: "9:16", ImageResolution: "1K", VideoResolution: "1080p"}

	created, err := st.Create(ctx, p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("expected allocated id and timestamps, got %#v", created)
	}
	if p.ID != "" {
		t.Fatal("Create must not mutate the caller's production")
	}

	loaded, err := st.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(loaded.Scenes, created.Scenes) {
		t.Fatalf("scenes differ after round trip:\n%#v\n%#v", loaded.Scenes, created.Scenes)
	}
	if loaded.Title != created.Title || loaded.Settings != created.Settings || !loaded.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("metadata differs: %#v vs %#v", loaded, created)
	}
}

func TestSQLiteUpdateListDelete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	created := testsupport.MustCreate(t, st, testsupport.NewProduction("One", "a"))
	created.Title = "Renamed"
	created.AppendScene(production.Scene{Description: "b"})
	if _, err := st.Update(ctx, created); err != nil {
		t.Fatalf("Update: %v", err)
	}

	summaries, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Title != "Renamed" || summaries[0].SceneCount != 2 {
		t.Fatalf("unexpected summaries %#v", summaries)
	}
	if summaries[0].StatusCounts[production.StatusPending] != 2 {
		t.Fatalf("expected two pending scenes, got %#v", summaries[0].StatusCounts)
	}

	if err := st.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Get(ctx, created.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := st.Delete(ctx, created.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestSQLiteUpdateUnknownID(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	p := testsupport.NewProduction("ghost", "a")
	p.ID = "does-not-exist"
	if _, err := st.Update(context.Background(), p); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWriteRejectsInvalidProduction(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	p := testsupport.NewProduction("bad", "a")
	p.Scenes[0].GeneratedVideoURL = "https://cdn.example/orphan.mp4"
	if _, err := st.Create(context.Background(), p); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := store.OpenSQLite(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	created := testsupport.MustCreate(t, first, testsupport.NewProduction("Persisted", "a"))
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := testsupport.MustOpenStore(t, cfg)
	if _, err := second.Get(context.Background(), created.ID); err != nil {
		t.Fatalf("expected production after reopen: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Store.Driver = "mongo"
	if _, err := store.Open(cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

// contractServer serves the /productions contract backed by a SQLite store.
func contractServer(t *testing.T, backing store.ProductionStore) *httptest.Server {
	t.Helper()
	writeErr := func(w http.ResponseWriter, err error) {
		w.WriteHeader(services.HTTPStatus(err))
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /productions", func(w http.ResponseWriter, r *http.Request) {
		list, err := backing.List(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"productions": list})
	})
	mux.HandleFunc("POST /productions", func(w http.ResponseWriter, r *http.Request) {
		var p production.Production
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeErr(w, services.Wrap(services.ErrValidation, "test", "decode", "", err))
			return
		}
		created, err := backing.Create(r.Context(), &p)
		if err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(created)
	})
	mux.HandleFunc("GET /productions/{id}", func(w http.ResponseWriter, r *http.Request) {
		p, err := backing.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(p)
	})
	mux.HandleFunc("PUT /productions/{id}", func(w http.ResponseWriter, r *http.Request) {
		var p production.Production
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeErr(w, services.Wrap(services.ErrValidation, "test", "decode", "", err))
			return
		}
		p.ID = r.PathValue("id")
		updated, err := backing.Update(r.Context(), &p)
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(updated)
	})
	mux.HandleFunc("DELETE /productions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := backing.Delete(r.Context(), r.PathValue("id")); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteStoreSpeaksContract(t *testing.T) {
	backing := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	srv := contractServer(t, backing)

	remote, err := store.NewRemote(srv.URL + "/")
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	ctx := context.Background()

	p := testsupport.NewProduction("Remote", "a", "b")
	created, err := remote.Create(ctx, p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected id allocated by remote store")
	}

	created.Scenes[1].Status = production.StatusImageReady
	created.Scenes[1].GeneratedImageURL = "https://cdn.example/b.png"
	if _, err := remote.Update(ctx, created); err != nil {
		t.Fatalf("Update: %v", err)
	}

	loaded, err := remote.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(loaded.Scenes, created.Scenes) {
		t.Fatalf("scenes differ:\n%#v\n%#v", loaded.Scenes, created.Scenes)
	}

	list, err := remote.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %v (%d)", err, len(list))
	}

	if err := remote.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := remote.Get(ctx, created.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoteStoreUnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	remote, err := store.NewRemote(url)
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	if _, err := remote.Get(context.Background(), "x"); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
