package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"schedbot/internal/schedule"
	"schedbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsSQL string

const fingerprintKey = "fingerprint"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes every write without extra locking.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := newSQLiteStore(db, log)
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	st.log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func newSQLiteStore(db *sql.DB, log logx.Logger) *sqliteStore {
	return &sqliteStore{
		db:  db,
		log: log.With(logx.String("driver", DriverSQLite)),
		now: time.Now,
	}
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migrationsSQL)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) stamp() string { return s.now().UTC().Format(time.RFC3339Nano) }

func (s *sqliteStore) ListSubscribers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM subscribers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return ids, nil
}

func (s *sqliteStore) HasSubscriber(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM subscribers WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup subscriber: %w", err)
	}
	return true, nil
}

func (s *sqliteStore) AddSubscriber(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrInvalidID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers(id, created_at) VALUES(?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("add subscriber: %w", err)
	}
	return nil
}

func (s *sqliteStore) RemoveSubscriber(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove subscriber: %w", err)
	}
	return nil
}

func (s *sqliteStore) LoadFingerprint(ctx context.Context) (schedule.Fingerprint, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, fingerprintKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load state: %w", err)
	}
	fp := schedule.Fingerprint(strings.TrimSpace(v))
	if fp.IsZero() {
		return "", false, nil
	}
	return fp, true, nil
}

func (s *sqliteStore) SaveFingerprint(ctx context.Context, fp schedule.Fingerprint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO state(key, value, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		fingerprintKey, fp.String(), s.stamp(),
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("save state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
