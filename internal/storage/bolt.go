package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var (
	mappingsBucket  = []byte("mappings")
	revisionsBucket = []byte("revisions")
)

// BoltBackend stores mappings in a local bbolt file, one key per branch
type BoltBackend struct {
	db     *bolt.DB
	logger *logrus.Logger
}

// NewBoltBackend opens (or creates) the database at path
func NewBoltBackend(path string, logger *logrus.Logger) (*BoltBackend, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{mappingsBucket, revisionsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	logger.WithField("path", path).Debug("opened bolt impact store")
	return &BoltBackend{db: db, logger: logger}, nil
}

// Read implements Backend
func (b *BoltBackend) Read(ctx context.Context, branch string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var payload []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(mappingsBucket)
		if bucket == nil {
			return nil
		}
		if data := bucket.Get([]byte(branch)); data != nil {
			// bolt memory is only valid inside the transaction
			payload = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read mapping %s: %w", branch, err)
	}
	return payload, nil
}

// Replace implements Backend
func (b *BoltBackend) Replace(ctx context.Context, branch string, payload []byte, revision string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		mappings, err := tx.CreateBucketIfNotExists(mappingsBucket)
		if err != nil {
			return err
		}
		revisions, err := tx.CreateBucketIfNotExists(revisionsBucket)
		if err != nil {
			return err
		}
		if err := mappings.Put([]byte(branch), payload); err != nil {
			return err
		}
		return revisions.Put([]byte(branch), []byte(revision))
	})
}

// Branches implements Backend
func (b *BoltBackend) Branches(ctx context.Context) ([]string, error) {
	var branches []string
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(mappingsBucket)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, _ []byte) error {
			branches = append(branches, string(k))
			return nil
		})
	})
	sort.Strings(branches)
	return branches, err
}

// Revision implements Backend
func (b *BoltBackend) Revision(ctx context.Context, branch string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var rev string
	err := b.db.View(func(tx *bolt.Tx) error {
		if bucket := tx.Bucket(revisionsBucket); bucket != nil {
			rev = string(bucket.Get([]byte(branch)))
		}
		return nil
	})
	return rev, err
}

// Close implements Backend
func (b *BoltBackend) Close() error {
	return b.db.Close()
}
