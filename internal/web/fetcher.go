package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/unishare/unishare-sw/internal/cache"
)

const (
	RequestTimeout  = 20 * time.Second
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
	DefaultAgent    = "unishare-sw/1.0"
)

// Headers that describe a single connection and must not be forwarded or stored.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ErrBodyTooLarge is returned when a response body exceeds Options.MaxBodySize.
var ErrBodyTooLarge = errors.New("web: response body too large")

type Options struct {
	Timeout     time.Duration
	MaxBodySize int
	Parallelism int
	UserAgent   string
}

// Fetcher performs network requests on behalf of the worker. Redirects are
// returned to the caller unless the request asks to follow them.
type Fetcher struct {
	manual  *colly.Collector
	follow  *colly.Collector
	origin  *url.URL
	maxBody int
}

func NewFetcher(origin *url.URL, opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = RequestTimeout
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = MaxResponseSize
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 8
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultAgent
	}
	manual := newCollector(opts)
	manual.SetRedirectHandler(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})
	return &Fetcher{
		manual:  manual,
		follow:  newCollector(opts),
		origin:  origin,
		maxBody: opts.MaxBodySize,
	}
}

func newCollector(opts Options) *colly.Collector {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.Async(false),
		colly.ParseHTTPErrorResponse(),
		// One byte over the limit tells a complete body from a cut one.
		colly.MaxBodySize(opts.MaxBodySize+1),
		colly.UserAgent(opts.UserAgent),
	)
	_ = c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: opts.Parallelism,
	})
	c.SetRequestTimeout(opts.Timeout)
	// Responses are shared between clients; no cookie may carry over.
	c.DisableCookies()
	return c
}

// Origin returns the origin responses are classified against.
func (f *Fetcher) Origin() *url.URL { return f.origin }

// Fetch issues req and captures the response. Any HTTP status is a response;
// only transport failures, oversized bodies and cancellation are errors.
func (f *Fetcher) Fetch(ctx context.Context, req *Request) (*cache.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if req == nil || req.URL == nil {
		return nil, errors.New("web: request without url")
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return nil, fmt.Errorf("web: unsupported scheme %q", req.URL.Scheme)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	// Callbacks are per collector; a clone keeps concurrent fetches apart
	// while sharing the transport and limits.
	base := f.manual
	if req.Redirect == RedirectFollow {
		base = f.follow
	}
	c := base.Clone()
	c.Context = ctx

	// colly transcodes bodies to UTF-8 by the declared charset. Hiding
	// Content-Type until the body is read keeps it byte-identical.
	var contentType []string
	c.OnResponseHeaders(func(r *colly.Response) {
		if r.Headers == nil {
			return
		}
		contentType = r.Headers.Values("Content-Type")
		r.Headers.Del("Content-Type")
	})

	var out *cache.Response
	var tooLarge bool
	c.OnResponse(func(r *colly.Response) {
		if len(r.Body) > f.maxBody {
			tooLarge = true
			return
		}
		final := r.Request.URL
		header := http.Header{}
		if r.Headers != nil {
			header = r.Headers.Clone()
		}
		if len(contentType) > 0 {
			header["Content-Type"] = contentType
		}
		stripHeaders(header)
		// The body has already been decoded and is re-measured on write.
		header.Del("Content-Encoding")
		header.Del("Content-Length")
		out = &cache.Response{
			Status:     r.StatusCode,
			StatusText: http.StatusText(r.StatusCode),
			Type:       f.responseType(req, final, header),
			URL:        final.String(),
			Redirected: final.String() != req.URL.String(),
			Header:     header,
			Body:       append([]byte(nil), r.Body...),
		}
	})

	if err := c.Request(method, req.URL.String(), nil, nil, forwardHeaders(req.Header)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("web: fetch %s: %w", req.URL, err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if tooLarge {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrBodyTooLarge, req.URL, f.maxBody)
	}
	if out == nil {
		return nil, fmt.Errorf("web: fetch %s: no response", req.URL)
	}
	return out, nil
}

func (f *Fetcher) responseType(req *Request, final *url.URL, header http.Header) string {
	if SameOrigin(f.origin, final) {
		return cache.TypeBasic
	}
	if req.Mode == ModeCORS && header.Get("Access-Control-Allow-Origin") != "" {
		return cache.TypeCORS
	}
	return cache.TypeOpaque
}

// SameOrigin compares scheme, host and port.
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		strings.EqualFold(a.Hostname(), b.Hostname()) &&
		port(a) == port(b)
}

func port(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

func forwardHeaders(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = http.Header{}
	}
	stripHeaders(out)
	// Let the transport negotiate compression so stored bodies are plain.
	out.Del("Accept-Encoding")
	out.Del("Content-Length")
	return out
}

func stripHeaders(h http.Header) {
	for _, f := range h["Connection"] {
		for _, name := range strings.Split(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
