// Package bolt provides a BBolt-backed implementation of cache.Store for
// single-node deployments that run without Redis. TTLs are enforced by
// storing an absolute expiry alongside each value and checking it on read;
// SetNX is atomic because it runs inside a single bbolt update transaction.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/pgxcyu/ledgerd/cache"
)

var bucketName = []byte("ledgerd_cache")

// Store implements cache.Store backed by a BBolt database.
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

type record struct {
	Value     string `json:"v"`
	ExpiresAt int64  `json:"exp,omitempty"` // unix seconds, 0 = no expiry
}

var _ cache.Store = (*Store)(nil)

// NewStore returns a Store backed by the given BBolt database.
func NewStore(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating cache bucket: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// NewStoreFromFile opens a BBolt database at the given path and returns a
// new Store.
func NewStoreFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewStore(db)
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// liveRecord decodes raw and reports whether it is still within its TTL.
func (s *Store) liveRecord(raw []byte) (record, bool) {
	var rec record
	if raw == nil {
		return rec, false
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, false
	}
	if rec.ExpiresAt != 0 && s.now().Unix() >= rec.ExpiresAt {
		return rec, false
	}
	return rec, true
}

func (s *Store) expiry(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.now().Add(ttl).Unix()
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bbolt.Tx) error {
		rec, ok := s.liveRecord(tx.Bucket(bucketName).Get([]byte(key)))
		if !ok {
			return cache.ErrNotFound
		}
		value = rec.Value
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(record{Value: value, ExpiresAt: s.expiry(ttl)})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketName).Put([]byte(key), data)
	})
}

func (s *Store) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	created := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if _, ok := s.liveRecord(b.Get([]byte(key))); ok {
			return nil
		}
		data, err := json.Marshal(record{Value: value, ExpiresAt: s.expiry(ttl)})
		if err != nil {
			return err
		}
		if err := b.Put([]byte(key), data); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		rec, ok := s.liveRecord(b.Get([]byte(key)))
		if !ok {
			return nil
		}
		rec.ExpiresAt = s.expiry(ttl)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}
