// Package store provides the durable key-value snapshot store backing the
// smart cache, the error history, and the preferred-proxy map. Values are
// JSON-encoded into BoltDB buckets; with an empty path the store runs
// memory-only, which is what the tests use.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	BucketCache     = "cache_snapshot"
	BucketHistory   = "error_history"
	BucketPreferred = "preferred_proxies"
)

var allBuckets = []string{BucketCache, BucketHistory, BucketPreferred}

// SnapshotStore is a small JSON-over-BoltDB key-value store.
// It is safe for concurrent use; persistence writes are serialized by
// BoltDB's single-writer transaction model.
type SnapshotStore struct {
	db *bolt.DB

	mu  sync.RWMutex
	mem map[string][]byte // memory-only mode when db == nil
}

// Open opens (or creates) the snapshot database at path. An empty path
// returns a memory-only store with no persistence.
func Open(path string) (*SnapshotStore, error) {
	if path == "" {
		return &SnapshotStore{mem: make(map[string][]byte)}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshot buckets: %w", err)
	}

	return &SnapshotStore{db: db, mem: make(map[string][]byte)}, nil
}

// Close closes the underlying database.
func (s *SnapshotStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get unmarshals the value stored under (bucket, key) into dest.
// Returns false when the key is absent. A stored value that no longer
// unmarshals is treated as absent: corrupt snapshots never block startup.
func (s *SnapshotStore) Get(bucket, key string, dest interface{}) (bool, error) {
	data, ok := s.raw(bucket, key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, nil
	}
	return true, nil
}

// Put marshals value and stores it under (bucket, key).
func (s *SnapshotStore) Put(bucket, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal snapshot value: %w", err)
	}

	if s.db == nil {
		s.mu.Lock()
		s.mem[bucket+":"+key] = data
		s.mu.Unlock()
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %q missing", bucket)
		}
		return b.Put([]byte(key), data)
	})
}

// Delete removes the value stored under (bucket, key). Missing keys are a no-op.
func (s *SnapshotStore) Delete(bucket, key string) error {
	if s.db == nil {
		s.mu.Lock()
		delete(s.mem, bucket+":"+key)
		s.mu.Unlock()
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func (s *SnapshotStore) raw(bucket, key string) ([]byte, bool) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		data, ok := s.mem[bucket+":"+key]
		return data, ok
	}

	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	return data, data != nil
}

// PutRaw stores a raw byte value. Used by tests to simulate corrupt snapshots.
func (s *SnapshotStore) PutRaw(bucket, key string, data []byte) error {
	if s.db == nil {
		s.mu.Lock()
		s.mem[bucket+":"+key] = data
		s.mu.Unlock()
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %q missing", bucket)
		}
		return b.Put([]byte(key), data)
	})
}
