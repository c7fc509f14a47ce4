package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStorage keeps every cache store as a top-level bucket of one Bolt file.
// It is safe for concurrent use by multiple goroutines.
type BoltStorage struct {
	db  *bolt.DB
	now func() time.Time
}

type Options struct {
	// Timeout bounds how long Open waits for the file lock.
	Timeout time.Duration
	// ReadOnly opens the file without write access, for inspection.
	ReadOnly bool
}

var _ Storage = (*BoltStorage)(nil)

// OpenBolt initializes or opens the storage file at path.
func OpenBolt(path string, opts Options) (*BoltStorage, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 1 * time.Second
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout, ReadOnly: opts.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	return &BoltStorage{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *BoltStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStorage) Open(name string) (Cache, error) {
	if name == "" {
		return nil, errors.New("cache: empty store name")
	}
	if !s.db.IsReadOnly() {
		if err := s.db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists([]byte(name))
			return err
		}); err != nil {
			return nil, err
		}
	}
	return &boltCache{s: s, name: []byte(name)}, nil
}

// OpenExisting is Open without creating the store; it returns
// ErrCacheDeleted when no store has that name.
func (s *BoltStorage) OpenExisting(name string) (Cache, error) {
	ok, err := s.Has(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCacheDeleted
	}
	// Every later operation re-checks the bucket in its own transaction.
	return &boltCache{s: s, name: []byte(name)}, nil
}

func (s *BoltStorage) Has(name string) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket([]byte(name)) != nil
		return nil
	})
	return ok, err
}

func (s *BoltStorage) Delete(name string) (bool, error) {
	deleted := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(name))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// Keys returns the store names in sorted order.
func (s *BoltStorage) Keys() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	sort.Strings(names)
	return names, err
}

type boltCache struct {
	s    *BoltStorage
	name []byte
}

func (c *boltCache) Name() string { return string(c.name) }

func (c *boltCache) bucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	b := tx.Bucket(c.name)
	if b == nil {
		return nil, ErrCacheDeleted
	}
	return b, nil
}

func (c *boltCache) Match(key Key) (*Response, error) {
	var out *Response
	err := c.s.db.View(func(tx *bolt.Tx) error {
		b, err := c.bucket(tx)
		if err != nil {
			return err
		}
		v := b.Get([]byte(key.String()))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid inside the transaction; Unmarshal copies it out.
		var resp Response
		if err := json.Unmarshal(v, &resp); err != nil {
			return fmt.Errorf("cache: decode %s: %w", key, err)
		}
		out = &resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *boltCache) Put(key Key, resp *Response) error {
	return c.PutAll([]Entry{{Key: key, Response: resp}})
}

func (c *boltCache) PutAll(entries []Entry) error {
	encoded := make([][]byte, len(entries))
	now := c.s.now().UTC()
	for i, e := range entries {
		if err := checkPut(e.Key, e.Response); err != nil {
			return fmt.Errorf("%w: %s", err, e.Key)
		}
		stored := *e.Response
		stored.StoredAt = now
		buf, err := json.Marshal(&stored)
		if err != nil {
			return err
		}
		encoded[i] = buf
	}
	return c.s.db.Update(func(tx *bolt.Tx) error {
		b, err := c.bucket(tx)
		if err != nil {
			return err
		}
		for i, e := range entries {
			if err := b.Put([]byte(e.Key.String()), encoded[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *boltCache) Keys() ([]Key, error) {
	var keys []Key
	err := c.s.db.View(func(tx *bolt.Tx) error {
		b, err := c.bucket(tx)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, _ []byte) error {
			key, err := ParseKey(string(k))
			if err != nil {
				return err
			}
			keys = append(keys, key)
			return nil
		})
	})
	return keys, err
}
