package cache

import (
	"fmt"
	"strings"
)

// Simple JSON protocol for the cache daemon over a Unix domain socket.
// One call -> one reply using json.Encoder/Decoder per connection.

const (
	OpOpen      = "open"
	OpHas       = "has"
	OpDelete    = "delete"
	OpKeys      = "keys"
	OpMatch     = "match"
	OpPutAll    = "put_all"
	OpCacheKeys = "cache_keys"
)

type Call struct {
	Op      string  `json:"op"`
	Cache   string  `json:"cache,omitempty"`
	Key     *Key    `json:"key,omitempty"`
	Entries []Entry `json:"entries,omitempty"`
}

type Reply struct {
	OK    bool      `json:"ok"`
	Found bool      `json:"found,omitempty"`
	Names []string  `json:"names,omitempty"`
	Keys  []Key     `json:"keys,omitempty"`
	Entry *Response `json:"entry,omitempty"`
	Error string    `json:"error,omitempty"`
}

var sentinels = []error{ErrNotFound, ErrCacheDeleted, ErrMethodNotAllowed}

// errorFromWire maps an error string back to its sentinel so errors.Is works
// on the client side.
func errorFromWire(msg string) error {
	for _, s := range sentinels {
		if msg == s.Error() {
			return s
		}
		if rest, ok := strings.CutPrefix(msg, s.Error()); ok {
			return fmt.Errorf("%w%s", s, rest)
		}
	}
	return &remoteError{s: msg}
}

type remoteError struct{ s string }

func (e *remoteError) Error() string { return e.s }
