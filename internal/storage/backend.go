package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/timpact/internal/config"
)

// Common errors
var (
	ErrClosed = errors.New("storage closed")
)

// Backend persists one opaque payload per branch. Implementations must make
// Replace atomic: a concurrent or later Read sees either the old or the new
// payload, never a mix.
type Backend interface {
	// Read returns the payload of branch, or nil, nil if none was ever written
	Read(ctx context.Context, branch string) ([]byte, error)

	// Replace swaps the payload of branch in a single transaction
	Replace(ctx context.Context, branch string, payload []byte, revision string) error

	// Branches lists every branch with a stored payload
	Branches(ctx context.Context) ([]string, error)

	// Revision returns the base revision last written for branch, or "" if
	// none was ever written
	Revision(ctx context.Context, branch string) (string, error)

	// Close releases the underlying database
	Close() error
}

// Open creates the backend selected by cfg
func Open(cfg config.StorageConfig, logger *logrus.Logger) (Backend, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "bolt":
		return NewBoltBackend(cfg.LocalPath, logger)
	case "sqlite":
		return NewSQLiteBackend(cfg.LocalPath, logger)
	case "postgres":
		return NewPostgresBackend(cfg.PostgresDSN, logger)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
