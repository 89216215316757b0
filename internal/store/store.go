package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sceneforge/internal/config"
	"sceneforge/internal/production"
	"sceneforge/internal/services"
)

// ProductionStore is the durable home of productions, keyed by id.
type ProductionStore interface {
	// Get loads the production with id. Missing ids wrap services.ErrNotFound.
	Get(ctx context.Context, id string) (*production.Production, error)
	// Create persists a production without an id and returns it with the
	// allocated id and timestamps.
	Create(ctx context.Context, p *production.Production) (*production.Production, error)
	// Update replaces the stored copy of p.
	Update(ctx context.Context, p *production.Production) (*production.Production, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Summary, error)
	Close() error
}

// Summary is a listing row for a stored production.
type Summary struct {
	ID            string                    `json:"id"`
	Title         string                    `json:"title"`
	Step          production.Step           `json:"step"`
	SceneCount    int                       `json:"scene_count"`
	TotalDuration int                       `json:"total_duration"`
	StatusCounts  map[production.Status]int `json:"status_counts"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

// Summarize builds the listing row for p.
func Summarize(p *production.Production) Summary {
	return Summary{
		ID:            p.ID,
		Title:         p.Title,
		Step:          p.Step,
		SceneCount:    len(p.Scenes),
		TotalDuration: p.TotalDuration(),
		StatusCounts:  p.StatusCounts(),
		UpdatedAt:     p.UpdatedAt,
	}
}

// Open returns the store selected by cfg.Store.Driver.
func Open(cfg *config.Config) (ProductionStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Driver)) {
	case "", DriverSQLite:
		return OpenSQLite(cfg)
	case DriverPostgres:
		return OpenPostgres(cfg.Store.DSN)
	case DriverRemote:
		return NewRemote(cfg.Store.URL, WithRemoteTimeout(time.Duration(cfg.Store.TimeoutSeconds)*time.Second))
	default:
		return nil, services.Wrap(services.ErrConfiguration, "store", "open", fmt.Sprintf("unknown driver %q", cfg.Store.Driver), nil)
	}
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRemote   = "remote"
)

func notFound(id string) error {
	return services.Wrap(services.ErrNotFound, "store", "get", fmt.Sprintf("production %s not found", id), nil)
}

func prepareForCreate(p *production.Production, id string, now time.Time) *production.Production {
	cp := p.Clone()
	cp.ID = id
	cp.CreatedAt = now
	cp.UpdatedAt = now
	cp.Dirty = false
	return cp
}

func validateForWrite(p *production.Production) error {
	if p == nil {
		return services.Wrap(services.ErrValidation, "store", "write", "production is nil", nil)
	}
	if err := p.Validate(); err != nil {
		return services.Wrap(services.ErrValidation, "store", "write", "invalid production", err)
	}
	return nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
