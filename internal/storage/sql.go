package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const mappingSchema = `
	CREATE TABLE IF NOT EXISTS impact_mappings (
		branch TEXT PRIMARY KEY,
		base_revision TEXT NOT NULL,
		payload TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)
`

// SQLBackend stores mappings in a SQL table, one row per branch. It serves
// SQLite for local use and PostgreSQL for a store shared across CI agents.
type SQLBackend struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewSQLiteBackend opens (or creates) a SQLite database at path
func NewSQLiteBackend(path string, logger *logrus.Logger) (*SQLBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	// WAL lets readers proceed during a commit
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.WithError(err).Warn("failed to enable WAL mode")
	}
	db.SetMaxOpenConns(1)

	return newSQLBackend(db, logger)
}

// NewPostgresBackend connects through the pgx stdlib driver
func NewPostgresBackend(dsn string, logger *logrus.Logger) (*SQLBackend, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLBackend(db, logger)
}

func newSQLBackend(db *sqlx.DB, logger *logrus.Logger) (*SQLBackend, error) {
	if _, err := db.Exec(mappingSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	logger.WithField("driver", db.DriverName()).Debug("opened sql impact store")
	return &SQLBackend{db: db, logger: logger}, nil
}

// Read implements Backend
func (s *SQLBackend) Read(ctx context.Context, branch string) ([]byte, error) {
	var payload string
	query := s.db.Rebind(`SELECT payload FROM impact_mappings WHERE branch = ?`)

	err := s.db.GetContext(ctx, &payload, query, branch)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read mapping %s: %w", branch, err)
	}
	return []byte(payload), nil
}

// Replace implements Backend
func (s *SQLBackend) Replace(ctx context.Context, branch string, payload []byte, revision string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := tx.Rebind(`
		INSERT INTO impact_mappings (branch, base_revision, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (branch) DO UPDATE SET
			base_revision = excluded.base_revision,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`)
	if _, err := tx.ExecContext(ctx, query, branch, revision, string(payload), time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert mapping %s: %w", branch, err)
	}

	return tx.Commit()
}

// Branches implements Backend
func (s *SQLBackend) Branches(ctx context.Context) ([]string, error) {
	var branches []string
	err := s.db.SelectContext(ctx, &branches, `SELECT branch FROM impact_mappings ORDER BY branch`)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return branches, nil
}

// Revision implements Backend
func (s *SQLBackend) Revision(ctx context.Context, branch string) (string, error) {
	var rev string
	query := s.db.Rebind(`SELECT base_revision FROM impact_mappings WHERE branch = ?`)

	err := s.db.GetContext(ctx, &rev, query, branch)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read revision %s: %w", branch, err)
	}
	return rev, nil
}

// Close implements Backend
func (s *SQLBackend) Close() error {
	return s.db.Close()
}
