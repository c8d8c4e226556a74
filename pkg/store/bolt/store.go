// Package bolt provides a BoltDB-backed persistence port. Cell payloads live
// in a single bucket keyed by the cell's storage key.
package bolt

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/thedude61636/states-rebuilder/pkg/store"
)

const cellBucket = "cells"

func init() {
	store.Register("bolt", func(path string) (store.Store, error) {
		return Open(path)
	})
}

// Store persists cell state in a BoltDB file.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, store.WrapPersist("open", "", err)
	}
	return &Store{db: db}, nil
}

// Init creates the cell bucket when missing.
func (s *Store) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return store.WrapPersist("init", "", err)
	}
	if s == nil || s.db == nil {
		return store.WrapPersist("init", "", fmt.Errorf("storage is not configured"))
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(cellBucket))
		return err
	})
	return store.WrapPersist("init", "", err)
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Read(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, store.WrapPersist("read", key, err)
	}
	if s == nil || s.db == nil {
		return "", false, store.WrapPersist("read", key, fmt.Errorf("storage is not configured"))
	}

	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(cellBucket))
		if bucket == nil {
			return nil
		}
		if value := bucket.Get([]byte(key)); value != nil {
			raw = append([]byte(nil), value...)
		}
		return nil
	})
	if err != nil {
		return "", false, store.WrapPersist("read", key, err)
	}
	if raw == nil {
		return "", false, nil
	}
	return string(raw), true, nil
}

func (s *Store) Write(ctx context.Context, key, raw string) error {
	if err := ctx.Err(); err != nil {
		return store.WrapPersist("write", key, err)
	}
	if s == nil || s.db == nil {
		return store.WrapPersist("write", key, fmt.Errorf("storage is not configured"))
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(cellBucket))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), []byte(raw))
	})
	return store.WrapPersist("write", key, err)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return store.WrapPersist("delete", key, err)
	}
	if s == nil || s.db == nil {
		return store.WrapPersist("delete", key, fmt.Errorf("storage is not configured"))
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(cellBucket))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
	return store.WrapPersist("delete", key, err)
}

func (s *Store) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return store.WrapPersist("delete_all", "", err)
	}
	if s == nil || s.db == nil {
		return store.WrapPersist("delete_all", "", fmt.Errorf("storage is not configured"))
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(cellBucket)) == nil {
			return nil
		}
		if err := tx.DeleteBucket([]byte(cellBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(cellBucket))
		return err
	})
	return store.WrapPersist("delete_all", "", err)
}
