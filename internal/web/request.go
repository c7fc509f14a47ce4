package web

import (
	"net/http"
	"net/url"
)

// Request modes as reported by the Sec-Fetch-Mode header.
const (
	ModeNavigate   = "navigate"
	ModeSameOrigin = "same-origin"
	ModeNoCORS     = "no-cors"
	ModeCORS       = "cors"
)

// Redirect modes. The zero value behaves as RedirectManual.
const (
	RedirectManual = "manual"
	RedirectFollow = "follow"
)

// Request describes an outgoing request seen by the gateway.
type Request struct {
	Method   string
	URL      *url.URL
	Mode     string
	Redirect string
	Header   http.Header
}

// Credentialed reports whether the request carries user credentials.
func (r *Request) Credentialed() bool {
	return r.Header.Get("Cookie") != "" || r.Header.Get("Authorization") != ""
}

// IsNavigation reports whether the request loads a new document.
func (r *Request) IsNavigation() bool { return r.Mode == ModeNavigate }

// Clone returns a deep copy of r.
func (r *Request) Clone() *Request {
	out := *r
	if r.URL != nil {
		u := *r.URL
		if r.URL.User != nil {
			user := *r.URL.User
			u.User = &user
		}
		out.URL = &u
	}
	out.Header = r.Header.Clone()
	return &out
}
