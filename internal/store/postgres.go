package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sceneforge/internal/production"
	"sceneforge/internal/services"
)

// productionRecord is the gorm model behind PostgresStore.
type productionRecord struct {
	ID         string `gorm:"primaryKey;type:uuid"`
	Title      string `gorm:"not null;default:''"`
	Step       string `gorm:"not null;default:'input'"`
	SceneCount int    `gorm:"not null;default:0"`
	Payload    []byte `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time `gorm:"index"`
}

func (productionRecord) TableName() string { return "productions" }

// PostgresStore persists productions through gorm on PostgreSQL.
type PostgresStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenPostgres connects to dsn and migrates the productions table.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, services.Wrap(services.ErrConfiguration, "store", "open postgres", "dsn is empty", nil)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewPostgresStore(db)
}

// NewPostgresStore wraps an existing gorm handle.
func NewPostgresStore(db *gorm.DB) (*PostgresStore, error) {
	if err := db.AutoMigrate(&productionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate productions: %w", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(2)
	}
	return &PostgresStore{db: db, now: time.Now}, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*production.Production, error) {
	var rec productionRecord
	err := s.db.WithContext(ensureContext(ctx)).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get production %s: %w", id, err)
	}
	return recordToProduction(rec)
}

func (s *PostgresStore) Create(ctx context.Context, p *production.Production) (*production.Production, error) {
	if err := validateForWrite(p); err != nil {
		return nil, err
	}
	if p.ID != "" {
		return s.Update(ctx, p)
	}
	created := prepareForCreate(p, uuid.NewString(), s.now().UTC())
	rec, err := productionToRecord(created)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ensureContext(ctx)).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("insert production: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) Update(ctx context.Context, p *production.Production) (*production.Production, error) {
	if err := validateForWrite(p); err != nil {
		return nil, err
	}
	updated := p.Clone()
	updated.UpdatedAt = s.now().UTC()
	updated.Dirty = false
	body, err := encodePayload(updated)
	if err != nil {
		return nil, err
	}
	res := s.db.WithContext(ensureContext(ctx)).Model(&productionRecord{}).
		Where("id = ?", updated.ID).
		Updates(map[string]any{
			"title":       updated.Title,
			"step":        string(updated.Step),
			"scene_count": len(updated.Scenes),
			"payload":     body,
			"updated_at":  updated.UpdatedAt,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("update production: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, notFound(updated.ID)
	}
	return updated, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ensureContext(ctx)).Where("id = ?", id).Delete(&productionRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete production: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(id)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Summary, error) {
	var recs []productionRecord
	if err := s.db.WithContext(ensureContext(ctx)).Order("updated_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list productions: %w", err)
	}
	out := make([]Summary, 0, len(recs))
	for _, rec := range recs {
		p, err := recordToProduction(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, Summarize(p))
	}
	return out, nil
}

func productionToRecord(p *production.Production) (productionRecord, error) {
	body, err := encodePayload(p)
	if err != nil {
		return productionRecord{}, err
	}
	return productionRecord{
		ID:         p.ID,
		Title:      p.Title,
		Step:       string(p.Step),
		SceneCount: len(p.Scenes),
		Payload:    body,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}, nil
}

func recordToProduction(rec productionRecord) (*production.Production, error) {
	p := &production.Production{ID: rec.ID, CreatedAt: rec.CreatedAt.UTC(), UpdatedAt: rec.UpdatedAt.UTC()}
	if err := decodePayload(rec.Payload, p); err != nil {
		return nil, err
	}
	return p, nil
}
