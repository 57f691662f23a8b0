// Package sqlite disponibiliza um storage persistente em arquivo, para instâncias únicas.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/michael-harrison/graph-attack/internal/core/domain"
	"github.com/michael-harrison/graph-attack/internal/core/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS rate_limit_hits (
	id TEXT PRIMARY KEY,
	counter_key TEXT NOT NULL,
	hit_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rate_limit_hits_key_time ON rate_limit_hits(counter_key, hit_at);
CREATE TABLE IF NOT EXISTS rate_limit_windows (
	counter_key TEXT PRIMARY KEY,
	window_us INTEGER NOT NULL
);
`

type Storage struct {
	db        *sql.DB
	namespace string
	now       func() time.Time
}

var _ ports.CounterStore = (*Storage)(nil)

type Config struct {
	Path        string
	Namespace   string
	BusyTimeout time.Duration
	// Now substitui time.Now; usado em testes.
	Now func() time.Time
}

func New(cfg Config) (*Storage, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports single writer
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	namespace := strings.TrimSpace(cfg.Namespace)
	if namespace == "" {
		namespace = domain.DefaultNamespace
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Storage{db: db, namespace: namespace, now: now}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) Increment(ctx context.Context, key string, interval time.Duration) error {
	k := s.key(key)
	now := s.now().UnixMicro()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	window, err := widenWindow(ctx, tx, k, interval)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rate_limit_hits WHERE counter_key = ? AND hit_at < ?`, k, now-window); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rate_limit_hits (id, counter_key, hit_at) VALUES (?, ?, ?)`,
		uuid.NewString(), k, now); err != nil {
		return err
	}
	return tx.Commit()
}

// Exceeded conta os hits dentro de interval. A poda usa a maior janela já vista
// para a chave, então uma checagem curta não apaga hits de uma janela longa.
func (s *Storage) Exceeded(ctx context.Context, key string, threshold int, interval time.Duration) (bool, error) {
	k := s.key(key)
	now := s.now().UnixMicro()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	window, err := widenWindow(ctx, tx, k, interval)
	if err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rate_limit_hits WHERE counter_key = ? AND hit_at < ?`, k, now-window); err != nil {
		return false, err
	}

	var count int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rate_limit_hits WHERE counter_key = ? AND hit_at >= ?`,
		k, now-interval.Microseconds()).Scan(&count); err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM rate_limit_windows WHERE counter_key = ? AND NOT EXISTS (SELECT 1 FROM rate_limit_hits WHERE counter_key = ?)`,
		k, k); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return count > int64(threshold), nil
}

// widenWindow grava max(janela atual, interval) e devolve o resultado em microssegundos.
func widenWindow(ctx context.Context, tx *sql.Tx, key string, interval time.Duration) (int64, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rate_limit_windows (counter_key, window_us) VALUES (?, ?)
		ON CONFLICT(counter_key) DO UPDATE SET window_us = MAX(window_us, excluded.window_us)`,
		key, interval.Microseconds()); err != nil {
		return 0, err
	}

	var window int64
	err := tx.QueryRowContext(ctx, `SELECT window_us FROM rate_limit_windows WHERE counter_key = ?`, key).Scan(&window)
	return window, err
}

// Count devolve quantos hits estão gravados para a chave, sem podar.
func (s *Storage) Count(ctx context.Context, key string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rate_limit_hits WHERE counter_key = ?`, s.key(key)).Scan(&count)
	return count, err
}

func (s *Storage) key(key string) string {
	return s.namespace + ":" + key
}
