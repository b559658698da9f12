package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/timpact/internal/errors"
	"github.com/rohankatakam/timpact/internal/models"
)

// FormatVersion is bumped whenever the payload layout changes; older payloads
// are treated as corrupt, which means a cold start
const FormatVersion = 1

type payloadEnvelope struct {
	FormatVersion int                   `json:"format_version"`
	Mapping       *models.StoredMapping `json:"mapping"`
}

// ImpactStore is the branch-scoped view of a Backend. It keeps the last
// loaded or committed mapping so readers never observe a half-applied commit.
type ImpactStore struct {
	backend Backend
	branch  string
	logger  logrus.FieldLogger

	mu      sync.RWMutex
	current *models.StoredMapping
	closed  bool
}

// NewImpactStore binds backend to branch
func NewImpactStore(backend Backend, branch string, logger logrus.FieldLogger) *ImpactStore {
	return &ImpactStore{
		backend: backend,
		branch:  branch,
		logger:  logger.WithField("branch", branch),
		current: models.NewStoredMapping(branch),
	}
}

// Branch returns the branch this store is bound to
func (s *ImpactStore) Branch() string {
	return s.branch
}

// Load reads the persisted mapping. A missing mapping yields a cold one. A
// payload that cannot be decoded yields a StoreCorruptError and resets the
// in-memory view to cold; callers continue as on a cold start.
func (s *ImpactStore) Load(ctx context.Context) (*models.StoredMapping, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	data, err := s.backend.Read(ctx, s.branch)
	if err != nil {
		return nil, fmt.Errorf("load mapping: %w", err)
	}

	mapping := models.NewStoredMapping(s.branch)
	if data != nil {
		mapping, err = decodeMapping(data, s.branch)
		if err != nil {
			s.setCurrent(models.NewStoredMapping(s.branch))
			return nil, errors.StoreCorruptError(err, s.branch)
		}
	}

	s.setCurrent(mapping)
	s.logger.WithFields(logrus.Fields{
		"base_revision": mapping.BaseRevision,
		"suites":        len(mapping.Suites),
	}).Debug("loaded impact mapping")
	return mapping.Clone(), nil
}

// Snapshot returns a private copy of the last loaded or committed mapping
func (s *ImpactStore) Snapshot() *models.StoredMapping {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Commit persists mapping as valid for newBaseRevision. The in-memory view is
// swapped only after the backend accepted the payload, so a failed commit
// leaves both the persisted and the in-memory state untouched. There is no
// retry: the caller decides.
func (s *ImpactStore) Commit(ctx context.Context, mapping *models.StoredMapping, newBaseRevision string) error {
	if s.isClosed() {
		return ErrClosed
	}
	if newBaseRevision == "" {
		return errors.ValidationErrorf("commit of branch %s needs a base revision", s.branch)
	}

	next := mapping.Clone()
	if next == nil {
		next = models.NewStoredMapping(s.branch)
	}
	next.Branch = s.branch
	next.BaseRevision = newBaseRevision
	next.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(payloadEnvelope{FormatVersion: FormatVersion, Mapping: next})
	if err != nil {
		return errors.StoreCommitError(err, s.branch)
	}

	if err := s.backend.Replace(ctx, s.branch, data, newBaseRevision); err != nil {
		return errors.StoreCommitError(err, s.branch)
	}

	s.setCurrent(next)
	s.logger.WithFields(logrus.Fields{
		"base_revision": newBaseRevision,
		"suites":        len(next.Suites),
		"bytes":         len(data),
	}).Info("committed impact mapping")
	return nil
}

// Close releases the backend; later loads and commits fail with ErrClosed
func (s *ImpactStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.backend.Close()
}

func (s *ImpactStore) setCurrent(m *models.StoredMapping) {
	s.mu.Lock()
	s.current = m
	s.mu.Unlock()
}

func (s *ImpactStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func decodeMapping(data []byte, branch string) (*models.StoredMapping, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unsupported format version %d", env.FormatVersion)
	}
	if env.Mapping == nil {
		return nil, fmt.Errorf("payload has no mapping")
	}

	m := env.Mapping
	m.Branch = branch
	if m.Suites == nil {
		m.Suites = make(map[string]*models.TestSuiteRecord)
	}
	if m.Classes == nil {
		m.Classes = make(map[string]*models.ClassCatalog)
	}
	for name, suite := range m.Suites {
		if suite == nil {
			return nil, fmt.Errorf("suite %s has no record", name)
		}
	}
	for name, class := range m.Classes {
		if class == nil {
			return nil, fmt.Errorf("class %s has no catalog", name)
		}
	}
	return m, nil
}
