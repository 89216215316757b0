package editor

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"sceneforge/internal/logging"
	"sceneforge/internal/persistence"
	"sceneforge/internal/production"
	"sceneforge/internal/store"
)

// Workspace holds the open sessions of a process, keyed by production id.
type Workspace struct {
	adapter *persistence.Adapter
	depth   int
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewWorkspace returns an empty workspace saving through adapter.
func NewWorkspace(adapter *persistence.Adapter, historyDepth int, logger *slog.Logger) *Workspace {
	return &Workspace{
		adapter:  adapter,
		depth:    historyDepth,
		logger:   logging.NewComponentLogger(logger, "workspace"),
		sessions: make(map[string]*Session),
	}
}

// Adapter returns the persistence adapter shared by every session.
func (w *Workspace) Adapter() *persistence.Adapter { return w.adapter }

// Open returns the session for id, loading it from the durable store on
// first use.
func (w *Workspace) Open(ctx context.Context, id string) (*Session, error) {
	w.mu.Lock()
	if s, ok := w.sessions[id]; ok {
		w.mu.Unlock()
		return s, nil
	}
	w.mu.Unlock()

	p, err := w.adapter.LoadByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return w.register(NewSession(p, w.adapter, w.depth, w.logger)), nil
}

// Create saves p as a new production and opens it.
func (w *Workspace) Create(ctx context.Context, p *production.Production) (*Session, error) {
	cp := p.Clone()
	cp.ID = ""
	cp.Normalize()
	s := NewSession(cp, w.adapter, w.depth, w.logger)
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	w.logger.Info("production created",
		logging.String(logging.FieldProductionID, s.ID()),
		logging.Int("scene_count", len(cp.Scenes)))
	return w.register(s), nil
}

// Restore opens the working production chosen by the adapter's load
// precedence. A restored production without an id is saved first so it can
// be addressed.
func (w *Workspace) Restore(ctx context.Context) (*Session, persistence.Source, error) {
	p, source, err := w.adapter.Load(ctx)
	if err != nil {
		return nil, source, err
	}
	s := NewSession(p, w.adapter, w.depth, w.logger)
	if p.ID == "" {
		if len(p.Scenes) == 0 {
			return s, source, nil
		}
		if err := s.Flush(ctx); err != nil {
			return nil, source, err
		}
	}
	w.logger.Info("working production restored",
		logging.String(logging.FieldProductionID, s.ID()),
		logging.String("source", string(source)))
	return w.register(s), source, nil
}

// register keeps the first session for an id if two loads race.
func (w *Workspace) register(s *Session) *Session {
	id := s.ID()
	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.sessions[id]; ok {
		return existing
	}
	w.sessions[id] = s
	return s
}

// Lookup returns an already open session.
func (w *Workspace) Lookup(id string) (*Session, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sessions[id]
	return s, ok
}

// Sessions lists open sessions ordered by id.
func (w *Workspace) Sessions() []*Session {
	w.mu.Lock()
	out := make([]*Session, 0, len(w.sessions))
	ids := make([]string, 0, len(w.sessions))
	for id := range w.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, w.sessions[id])
	}
	w.mu.Unlock()
	return out
}

// List returns durable summaries with open sessions' live state overlaid.
func (w *Workspace) List(ctx context.Context) ([]store.Summary, error) {
	rows, err := w.adapter.Store().List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if s, ok := w.Lookup(rows[i].ID); ok {
			rows[i] = store.Summarize(s.Snapshot())
		}
	}
	return rows, nil
}

// Close flushes and forgets the session for id.
func (w *Workspace) Close(ctx context.Context, id string) error {
	w.mu.Lock()
	s, ok := w.sessions[id]
	delete(w.sessions, id)
	w.mu.Unlock()
	if !ok {
		return nil
	}
	defer s.close()
	if !s.Dirty() {
		return nil
	}
	return s.Flush(ctx)
}

// Delete removes the production everywhere and drops any pending autosave.
func (w *Workspace) Delete(ctx context.Context, id string) error {
	w.mu.Lock()
	s, ok := w.sessions[id]
	delete(w.sessions, id)
	w.mu.Unlock()
	if ok {
		s.close()
	}
	return w.adapter.Delete(ctx, id)
}

// FlushAll saves every dirty session and returns the joined failures.
func (w *Workspace) FlushAll(ctx context.Context) error {
	var errs []error
	for _, s := range w.Sessions() {
		if !s.Dirty() {
			continue
		}
		if err := s.Flush(ctx); err != nil {
			logging.WarnWithContext(w.logger, "flush failed", "flush_failed",
				logging.String(logging.FieldProductionID, s.ID()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "changes kept in local cache"))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
