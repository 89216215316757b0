package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"

	"sceneforge/internal/logging"
	"sceneforge/internal/production"
	"sceneforge/internal/services"
	"sceneforge/internal/store"
)

// Source names where Load found the production.
type Source string

const (
	SourceHandoff Source = "handoff"
	SourceDurable Source = "durable"
	SourceCache   Source = "cache"
	SourceNew     Source = "new"
)

// Adapter orders the two write paths for a production: the synchronous local
// cache mirror and the debounced durable save.
type Adapter struct {
	store   store.ProductionStore
	cache   *LocalCache
	handoff *Handoff
	logger  *slog.Logger
	now     func() time.Time

	delay      time.Duration
	mu         sync.Mutex
	debouncers map[string]func(func())
	pending    map[string]func()
}

// NewAdapter wires the durable store, local cache, and optional handoff.
// Durable saves scheduled through Schedule fire after delay of quiet.
func NewAdapter(st store.ProductionStore, cache *LocalCache, handoff *Handoff, delay time.Duration, logger *slog.Logger) *Adapter {
	if cache == nil {
		cache = NewLocalCache("", logger)
	}
	if handoff == nil {
		handoff = NewHandoff("")
	}
	if delay <= 0 {
		delay = 10 * time.Second
	}
	return &Adapter{
		store:      st,
		cache:      cache,
		handoff:    handoff,
		logger:     logging.NewComponentLogger(logger, "persistence"),
		now:        time.Now,
		delay:      delay,
		debouncers: make(map[string]func(func())),
		pending:    make(map[string]func()),
	}
}

// Mirror writes p to the local cache immediately.
func (a *Adapter) Mirror(p *production.Production) {
	if err := a.cache.Save(p); err != nil {
		logging.WarnWithContext(a.logger, "local cache write failed", "cache_write_failed",
			logging.Error(err),
			logging.String(logging.FieldProductionID, p.ID),
			logging.String(logging.FieldErrorHint, "check state directory permissions"),
			logging.String(logging.FieldImpact, "unsaved edits may be lost on restart"))
	}
}

// Schedule arranges for save to run once key has seen no further Schedule
// calls for the debounce delay. Each call replaces the pending save for key;
// different keys debounce independently.
func (a *Adapter) Schedule(key string, save func()) {
	a.mu.Lock()
	a.pending[key] = save
	debounced, ok := a.debouncers[key]
	if !ok {
		debounced = debounce.New(a.delay)
		a.debouncers[key] = debounced
	}
	a.mu.Unlock()
	debounced(func() { a.runPending(key) })
}

// FlushPending runs every scheduled save now.
func (a *Adapter) FlushPending() {
	a.mu.Lock()
	keys := make([]string, 0, len(a.pending))
	for key := range a.pending {
		keys = append(keys, key)
	}
	a.mu.Unlock()
	for _, key := range keys {
		a.runPending(key)
	}
}

// FlushKey runs the scheduled save for key now, if one is waiting.
func (a *Adapter) FlushKey(key string) {
	a.runPending(key)
}

// Discard drops the scheduled save for key without running it.
func (a *Adapter) Discard(key string) {
	a.mu.Lock()
	delete(a.pending, key)
	a.mu.Unlock()
}

func (a *Adapter) runPending(key string) {
	a.mu.Lock()
	fn := a.pending[key]
	delete(a.pending, key)
	a.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// HasPending reports whether any durable save is waiting on the debounce.
func (a *Adapter) HasPending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending) > 0
}

// Save writes p to the durable store, creating it when it has no id, then
// mirrors the saved copy locally. The returned production carries the
// allocated id and save timestamp.
func (a *Adapter) Save(ctx context.Context, p *production.Production) (*production.Production, error) {
	if p == nil {
		return nil, errors.New("save: production is nil")
	}
	var (
		saved *production.Production
		err   error
	)
	if p.ID == "" {
		saved, err = a.store.Create(ctx, p)
	} else {
		saved, err = a.store.Update(ctx, p)
	}
	if err != nil {
		return nil, fmt.Errorf("durable save: %w", err)
	}
	savedAt := a.now().UTC()
	saved.LastSavedAt = &savedAt
	saved.Dirty = false
	a.Mirror(saved)
	a.logger.Debug("production saved",
		logging.String(logging.FieldProductionID, saved.ID),
		logging.Int("scene_count", len(saved.Scenes)))
	return saved, nil
}

// Load restores the working production. Precedence: a pending handoff plan,
// then the durable copy of the cached production id, then the cached scenes,
// then a fresh empty production.
func (a *Adapter) Load(ctx context.Context) (*production.Production, Source, error) {
	plan, ok, err := a.handoff.Consume()
	if err != nil {
		logging.WarnWithContext(a.logger, "handoff plan unreadable", "handoff_invalid",
			logging.Error(err),
			logging.String(logging.FieldImpact, "falling back to cached production"))
	}
	if ok {
		p := plan.Production()
		p.Dirty = true
		a.Mirror(p)
		a.logger.Info("loaded production from handoff plan", logging.Int("scene_count", len(p.Scenes)))
		return p, SourceHandoff, nil
	}

	entry, found, err := a.cache.Load()
	if err != nil {
		logging.WarnWithContext(a.logger, "local cache unreadable", "cache_read_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "starting with an empty production"))
	}
	if !found {
		return production.New(""), SourceNew, nil
	}

	if entry.ProductionID != "" {
		durable, err := a.store.Get(ctx, entry.ProductionID)
		if err == nil {
			a.reclaim(durable)
			return durable, SourceDurable, nil
		}
		logging.WarnWithContext(a.logger, "durable fetch failed; using cached scenes", "durable_fetch_failed",
			logging.Error(err),
			logging.String(logging.FieldProductionID, entry.ProductionID),
			logging.String(logging.FieldImpact, "edits since the last durable save are restored from cache"))
	}
	p := entry.Production
	a.reclaim(p)
	return p, SourceCache, nil
}

// LoadByID fetches a production from the durable store and makes it the
// cached working copy.
func (a *Adapter) LoadByID(ctx context.Context, id string) (*production.Production, error) {
	p, err := a.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	a.reclaim(p)
	a.Mirror(p)
	return p, nil
}

// Delete removes the production from the durable store and clears the local
// cache when it holds the same production.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	if err := a.store.Delete(ctx, id); err != nil && !errors.Is(err, services.ErrNotFound) {
		return err
	}
	entry, found, _ := a.cache.Load()
	if found && entry.ProductionID == id {
		if err := a.cache.Clear(); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
	}
	return nil
}

// Store exposes the durable store for listings.
func (a *Adapter) Store() store.ProductionStore { return a.store }

func (a *Adapter) reclaim(p *production.Production) {
	p.Normalize()
	if n := production.ReclaimStale(p); n > 0 {
		a.logger.Info("reset scenes interrupted mid-generation",
			logging.String(logging.FieldProductionID, p.ID),
			logging.Int("scene_count", n))
	}
}
