package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"sceneforge/internal/config"
	"sceneforge/internal/production"
)

// SQLiteStore persists productions in an embedded SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// OpenSQLite initializes or connects to the production database in the state directory.
func OpenSQLite(cfg *config.Config) (*SQLiteStore, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenSQLitePath(cfg.DatabasePath())
}

// OpenSQLitePath opens the database at dbPath.
func OpenSQLitePath(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*production.Production, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT id, payload, created_at, updated_at FROM productions WHERE id = ?", id)
	p, err := scanProduction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get production %s: %w", id, err)
	}
	return p, nil
}

func (s *SQLiteStore) Create(ctx context.Context, p *production.Production) (*production.Production, error) {
	if err := validateForWrite(p); err != nil {
		return nil, err
	}
	if p.ID != "" {
		return s.Update(ctx, p)
	}
	created := prepareForCreate(p, uuid.NewString(), s.now().UTC())
	body, err := encodePayload(created)
	if err != nil {
		return nil, err
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO productions (id, title, step, scene_count, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.Title, string(created.Step), len(created.Scenes), string(body),
		formatTime(created.CreatedAt), formatTime(created.UpdatedAt),
	); err != nil {
		return nil, fmt.Errorf("insert production: %w", err)
	}
	return created, nil
}

func (s *SQLiteStore) Update(ctx context.Context, p *production.Production) (*production.Production, error) {
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
	res, err := s.execWithRetry(ctx,
		`UPDATE productions SET title = ?, step = ?, scene_count = ?, payload = ?, updated_at = ? WHERE id = ?`,
		updated.Title, string(updated.Step), len(updated.Scenes), string(body), formatTime(updated.UpdatedAt), updated.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update production: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, notFound(updated.ID)
	}
	if stored, err := s.Get(ctx, updated.ID); err == nil {
		updated.CreatedAt = stored.CreatedAt
	}
	return updated, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, "DELETE FROM productions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete production: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(id)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, payload, created_at, updated_at FROM productions ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list productions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		p, err := scanProduction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, Summarize(p))
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduction(row rowScanner) (*production.Production, error) {
	var (
		id, body, created, updated string
	)
	if err := row.Scan(&id, &body, &created, &updated); err != nil {
		return nil, err
	}
	p := &production.Production{ID: id}
	if err := decodePayload([]byte(body), p); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
