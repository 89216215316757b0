package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"sceneforge/internal/fileutil"
	"sceneforge/internal/logging"
	"sceneforge/internal/production"
)

// CacheEntry is the fast-path record of the production being edited.
type CacheEntry struct {
	ProductionID string                 `json:"production_id,omitempty"`
	Production   *production.Production `json:"production"`
	SavedAt      time.Time              `json:"saved_at"`
}

// LocalCache mirrors the working production to a JSON file on every change.
// A file lock serializes writers across processes.
type LocalCache struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger
	mu     sync.Mutex
	now    func() time.Time
}

// NewLocalCache creates a cache at path. An empty path disables the cache.
func NewLocalCache(path string, logger *slog.Logger) *LocalCache {
	c := &LocalCache{
		path:   path,
		logger: logging.NewComponentLogger(logger, "local-cache"),
		now:    time.Now,
	}
	if path != "" {
		c.lock = flock.New(path + ".lock")
	}
	return c
}

// Path returns the cache file location.
func (c *LocalCache) Path() string { return c.path }

// Save replaces the cached copy with p.
func (c *LocalCache) Save(p *production.Production) error {
	if c.path == "" || p == nil {
		return nil
	}
	entry := CacheEntry{ProductionID: p.ID, Production: p.Clone(), SavedAt: c.now().UTC()}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	return c.withLock(func() error {
		if err := fileutil.WriteFileAtomic(c.path, data, 0o644); err != nil {
			return fmt.Errorf("write cache: %w", err)
		}
		return nil
	})
}

// Load returns the cached entry. A missing file reports false without error.
func (c *LocalCache) Load() (CacheEntry, bool, error) {
	if c.path == "" {
		return CacheEntry{}, false, nil
	}
	var (
		entry CacheEntry
		found bool
	)
	err := c.withLock(func() error {
		data, err := os.ReadFile(c.path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read cache: %w", err)
		}
		if len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			return fmt.Errorf("parse cache: %w", err)
		}
		found = entry.Production != nil
		return nil
	})
	if err != nil {
		return CacheEntry{}, false, err
	}
	if found {
		entry.Production.Normalize()
		c.logger.Debug("loaded production from local cache",
			logging.String(logging.FieldProductionID, entry.ProductionID),
			logging.Int("scene_count", len(entry.Production.Scenes)))
	}
	return entry, found, nil
}

// Clear removes the cache file.
func (c *LocalCache) Clear() error {
	if c.path == "" {
		return nil
	}
	return c.withLock(func() error {
		return fileutil.RemoveIfExists(c.path)
	})
}

func (c *LocalCache) withLock(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.lock.Lock(); err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	defer func() { _ = c.lock.Unlock() }()
	return fn()
}
