package kv

import (
	"bytes"
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/vectra-db/vectra/internal/shared"
)

// bucketName holds the single flat keyspace for access-control records.
var bucketName = []byte("rbac")

// Store wraps the embedded key-value engine. It provides snapshot reads
// and atomic multi-key writes; writers are serialized by the engine.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the store file and ensures the keyspace bucket.
func Open(path string, timeout time.Duration) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", shared.ErrStorage, path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: init keyspace: %v", shared.ErrStorage, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", shared.ErrStorage, err)
	}
	return nil
}

// Tx exposes the keyspace within a transaction. Values returned by Get
// are only valid for the duration of the transaction.
type Tx struct {
	bucket   *bolt.Bucket
	writable bool
}

// Get returns the value for key, or nil when absent.
func (t Tx) Get(key []byte) []byte {
	return t.bucket.Get(key)
}

// Put stores value under key.
func (t Tx) Put(key, value []byte) error {
	if err := t.bucket.Put(key, value); err != nil {
		return fmt.Errorf("%w: put %q: %v", shared.ErrStorage, key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (t Tx) Delete(key []byte) error {
	if err := t.bucket.Delete(key); err != nil {
		return fmt.Errorf("%w: delete %q: %v", shared.ErrStorage, key, err)
	}
	return nil
}

// Scan iterates all keys beginning with prefix in ascending key order.
func (t Tx) Scan(prefix []byte, fn func(key, value []byte) error) error {
	c := t.bucket.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

// View runs fn against a read-only snapshot of the keyspace.
func (s *Store) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(Tx{bucket: tx.Bucket(bucketName)})
	})
}

// Update runs fn inside a single write transaction. Every key written by
// fn commits atomically; any error rolls the whole transaction back.
func (s *Store) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(Tx{bucket: tx.Bucket(bucketName), writable: true})
	})
}
