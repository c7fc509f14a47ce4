package cache

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Response types, mirroring what a fetch reports about where a response came from.
const (
	TypeBasic  = "basic"
	TypeCORS   = "cors"
	TypeOpaque = "opaque"
	TypeError  = "error"
)

// Key identifies a cache entry by request method and URL. Headers are not part of it.
type Key struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// NewKey builds a Key for method and rawURL. The URL fragment is dropped.
func NewKey(method, rawURL string) (Key, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Key{}, fmt.Errorf("cache: invalid url %q: %w", rawURL, err)
	}
	u.Fragment = ""
	u.RawFragment = ""
	if method == "" {
		method = http.MethodGet
	}
	return Key{Method: strings.ToUpper(method), URL: u.String()}, nil
}

// String returns the storage form "<METHOD> <URL>".
func (k Key) String() string { return k.Method + " " + k.URL }

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	method, rawURL, ok := strings.Cut(s, " ")
	if !ok || method == "" || rawURL == "" {
		return Key{}, fmt.Errorf("cache: malformed key %q", s)
	}
	return Key{Method: method, URL: rawURL}, nil
}

// Response is a captured response snapshot.
type Response struct {
	Status     int         `json:"status"`
	StatusText string      `json:"status_text,omitempty"`
	Type       string      `json:"type"`
	URL        string      `json:"url,omitempty"`
	Redirected bool        `json:"redirected,omitempty"`
	Header     http.Header `json:"header,omitempty"`
	Body       []byte      `json:"body,omitempty"`
	// StoredAt is set by the storage when the entry is written.
	StoredAt time.Time `json:"stored_at"`
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool { return r != nil && r.Status >= 200 && r.Status < 300 }

// Clone returns a deep copy so the body can be consumed twice.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := *r
	out.Header = r.Header.Clone()
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return &out
}

// Entry pairs a key with the response stored under it.
type Entry struct {
	Key      Key       `json:"key"`
	Response *Response `json:"response"`
}
