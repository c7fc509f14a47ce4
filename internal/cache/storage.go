package cache

import "errors"

var (
	ErrNotFound         = errors.New("cache: not found")
	ErrCacheDeleted     = errors.New("cache: store deleted")
	ErrMethodNotAllowed = errors.New("cache: only GET requests can be stored")
)

// Storage is the set of named cache stores, one per cache generation.
// Implementations must be safe for concurrent use by multiple goroutines.
type Storage interface {
	// Open returns the store called name, creating it if needed.
	Open(name string) (Cache, error)
	Has(name string) (bool, error)
	// Delete removes the store and every entry in it. It reports whether the store existed.
	Delete(name string) (bool, error)
	Keys() ([]string, error)
	Close() error
}

// Cache is a single named store mapping request keys to responses.
type Cache interface {
	Name() string
	// Match returns a copy of the stored response or ErrNotFound.
	Match(key Key) (*Response, error)
	// Put overwrites whatever is stored under key.
	Put(key Key, resp *Response) error
	// PutAll stores every entry or none of them.
	PutAll(entries []Entry) error
	Keys() ([]Key, error)
}

func checkPut(key Key, resp *Response) error {
	if key.Method != "GET" {
		return ErrMethodNotAllowed
	}
	if resp == nil {
		return errors.New("cache: nil response")
	}
	return nil
}
