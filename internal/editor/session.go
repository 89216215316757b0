package editor

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sceneforge/internal/logging"
	"sceneforge/internal/persistence"
	"sceneforge/internal/production"
	"sceneforge/internal/services"
)

const backgroundSaveTimeout = 30 * time.Second

// HistoryState describes what Undo and Redo would do next.
type HistoryState struct {
	CanUndo        bool   `json:"can_undo"`
	CanRedo        bool   `json:"can_redo"`
	PreviousAction string `json:"previous_action,omitempty"`
	NextAction     string `json:"next_action,omitempty"`
}

// Session is one open production. User edits are recorded in history;
// orchestrator write-backs are not. Every change is mirrored to the local
// cache at once and scheduled for a debounced durable save.
type Session struct {
	mu       sync.Mutex
	prod     *production.Production
	revision uint64
	// closed is set once the workspace lets go of the session. Late
	// write-backs are dropped and nothing is saved or mirrored after it.
	closed bool

	key     string
	history *persistence.History
	adapter *persistence.Adapter
	logger  *slog.Logger
	now     func() time.Time

	saveMu sync.Mutex
}

// NewSession opens p for editing. The session owns p from here on.
func NewSession(p *production.Production, adapter *persistence.Adapter, historyDepth int, logger *slog.Logger) *Session {
	if p == nil {
		p = production.New("")
	}
	key := p.ID
	if key == "" {
		key = "unsaved-" + uuid.NewString()
	}
	return &Session{
		prod:    p,
		key:     key,
		history: persistence.NewHistory(historyDepth),
		adapter: adapter,
		logger:  logging.NewComponentLogger(logger, "editor"),
		now:     time.Now,
	}
}

// ID returns the production id, empty until the first durable save.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prod.ID
}

// Snapshot returns a deep copy of the current production.
func (s *Session) Snapshot() *production.Production {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prod.Clone()
}

// Dirty reports whether there are changes the durable store has not seen.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prod.Dirty
}

// History reports the undo/redo state.
func (s *Session) History() HistoryState {
	return HistoryState{
		CanUndo:        s.history.CanUndo(),
		CanRedo:        s.history.CanRedo(),
		PreviousAction: s.history.PreviousAction(),
		NextAction:     s.history.NextAction(),
	}
}

// Edit applies fn as a user edit labelled action. fn reports whether it
// changed anything; unchanged edits leave no history entry.
func (s *Session) Edit(action string, fn func(p *production.Production) bool) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	before := s.prod.Clone()
	if !fn(s.prod) {
		s.mu.Unlock()
		return false
	}
	s.history.Record(before, action)
	s.touchLocked()
	s.mu.Unlock()
	s.changed()
	return true
}

func (s *Session) UpdateScene(id string, patch production.ScenePatch) bool {
	return s.Edit("edit scene", func(p *production.Production) bool { return p.UpdateScene(id, patch) })
}

func (s *Session) DeleteScene(id string) bool {
	return s.Edit("delete scene", func(p *production.Production) bool { return p.DeleteScene(id) })
}

// InsertSceneAfter adds a default scene after number; 0 inserts at the top.
func (s *Session) InsertSceneAfter(number int) (production.Scene, bool) {
	var inserted production.Scene
	ok := s.Edit("insert scene", func(p *production.Production) bool {
		scene, ok := p.InsertSceneAfter(number)
		inserted = scene
		return ok
	})
	return inserted, ok
}

// AppendScene adds scene at the end and returns it as stored.
func (s *Session) AppendScene(scene production.Scene) production.Scene {
	var added production.Scene
	s.Edit("add scene", func(p *production.Production) bool {
		added = p.AppendScene(scene)
		return true
	})
	return added
}

func (s *Session) Reorder(from, to int) bool {
	return s.Edit("reorder scenes", func(p *production.Production) bool { return p.Reorder(from, to) })
}

func (s *Session) ToggleReference(sceneID, assetID string) bool {
	return s.Edit("toggle reference", func(p *production.Production) bool { return p.ToggleReference(sceneID, assetID) })
}

// Rename sets the production title.
func (s *Session) Rename(title string) bool {
	title = strings.TrimSpace(title)
	return s.Edit("rename", func(p *production.Production) bool {
		if p.Title == title {
			return false
		}
		p.Title = title
		return true
	})
}

// SetStep moves the production to a workflow step.
func (s *Session) SetStep(step production.Step) bool {
	return s.Edit("change step", func(p *production.Production) bool {
		if p.Step == step {
			return false
		}
		p.Step = step
		return true
	})
}

// UpdateSettings replaces the generation settings after validating them.
func (s *Session) UpdateSettings(settings production.Settings) error {
	probe := s.Snapshot()
	probe.Settings = settings
	if err := probe.Validate(); err != nil {
		return services.Wrap(services.ErrValidation, "editor", "settings", "invalid settings", err)
	}
	s.Edit("change settings", func(p *production.Production) bool {
		if p.Settings == settings {
			return false
		}
		p.Settings = settings
		return true
	})
	return nil
}

// Replace swaps in a whole production, as an API PUT does. The id is kept.
func (s *Session) Replace(next *production.Production) error {
	if next == nil {
		return services.Wrap(services.ErrValidation, "editor", "replace", "production is nil", nil)
	}
	cp := next.Clone()
	cp.Normalize()
	if err := cp.Validate(); err != nil {
		return services.Wrap(services.ErrValidation, "editor", "replace", "invalid production", err)
	}
	s.Edit("replace production", func(p *production.Production) bool {
		cp.ID = p.ID
		cp.CreatedAt = p.CreatedAt
		cp.LastSavedAt = p.LastSavedAt
		*p = *cp
		return true
	})
	return nil
}

// ApplyProgress writes an orchestrator result onto a scene. It is not an
// undoable edit. A deleted scene or a closed session drops the write.
func (s *Session) ApplyProgress(sceneID string, progress production.Progress) bool {
	s.mu.Lock()
	ok := !s.closed && s.prod.ApplyProgress(sceneID, progress)
	if ok {
		s.touchLocked()
	}
	s.mu.Unlock()
	if ok {
		s.changed()
	}
	return ok
}

// Persist saves immediately.
func (s *Session) Persist(ctx context.Context) error {
	return s.Flush(ctx)
}

// Undo reverts the most recent user edit. Generation results that landed
// after the edit are kept on scenes that still exist.
func (s *Session) Undo() (string, bool) {
	return s.step(s.history.Undo)
}

// Redo reapplies the most recently undone edit.
func (s *Session) Redo() (string, bool) {
	return s.step(s.history.Redo)
}

func (s *Session) step(move func(*production.Production) (*production.Production, string, bool)) (string, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", false
	}
	restored, action, ok := move(s.prod)
	if !ok {
		s.mu.Unlock()
		return "", false
	}
	carryProgress(restored, s.prod)
	restored.ID = s.prod.ID
	restored.CreatedAt = s.prod.CreatedAt
	restored.LastSavedAt = s.prod.LastSavedAt
	s.prod = restored
	s.touchLocked()
	s.mu.Unlock()
	s.changed()
	s.logger.Debug("history step applied",
		logging.String(logging.FieldProductionID, restored.ID),
		logging.String("action", action))
	return action, true
}

// carryProgress copies orchestrator-owned fields from current onto restored
// for every scene present in both.
func carryProgress(restored, current *production.Production) {
	for i := range restored.Scenes {
		scene, ok := current.Scene(restored.Scenes[i].ID)
		if !ok {
			continue
		}
		restored.ApplyProgress(scene.ID, production.ProgressOf(scene))
	}
}

// Flush writes the production to the durable store now, adopting the id the
// store allocates on first save, and cancels any pending debounced save.
// A closed session does nothing.
func (s *Session) Flush(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.adapter.Discard(s.key)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	snap := s.prod.Clone()
	rev := s.revision
	s.mu.Unlock()

	saved, err := s.adapter.Save(ctx, snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.prod.ID == "" {
		s.prod.ID = saved.ID
	}
	s.prod.LastSavedAt = saved.LastSavedAt
	if s.prod.CreatedAt.IsZero() {
		s.prod.CreatedAt = saved.CreatedAt
	}
	if s.revision == rev {
		s.prod.Dirty = false
	}
	closed := s.closed
	current := s.prod.Clone()
	s.mu.Unlock()

	if !closed {
		s.adapter.Mirror(current)
	}
	return nil
}

// close detaches the session and waits out any save already in flight.
func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.saveMu.Lock()
	s.saveMu.Unlock()
	s.adapter.Discard(s.key)
}

func (s *Session) touchLocked() {
	s.revision++
	s.prod.Dirty = true
	s.prod.UpdatedAt = s.now().UTC()
}

func (s *Session) changed() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	snap := s.prod.Clone()
	s.mu.Unlock()
	s.adapter.Mirror(snap)
	s.adapter.Schedule(s.key, s.backgroundSave)
}

func (s *Session) backgroundSave() {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundSaveTimeout)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		logging.WarnWithContext(s.logger, "autosave failed", "autosave_failed",
			logging.String(logging.FieldProductionID, s.ID()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "changes kept in local cache"),
			logging.String(logging.FieldErrorHint, "check the production store"),
		)
	}
}
