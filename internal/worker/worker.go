// Package worker runs the offline shell lifecycle: install seeds the current
// cache generation with the application shell, activate drops older
// generations and takes over clients, and fetch answers requests cache-first.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/unishare/unishare-sw/internal/cache"
	"github.com/unishare/unishare-sw/internal/logger"
	"github.com/unishare/unishare-sw/internal/web"
)

var (
	// ErrBypass is returned by Fetch for requests the worker leaves to the network.
	ErrBypass        = errors.New("worker: request not intercepted")
	ErrInstallFailed = errors.New("worker: install failed")
	ErrInvalidState  = errors.New("worker: invalid state")
)

type State int32

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Source tells where a fetch result came from.
type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
	SourceOffline Source = "offline"
)

// Network performs the requests the cache cannot answer.
type Network interface {
	Fetch(ctx context.Context, req *web.Request) (*cache.Response, error)
}

// Clients hands control of open clients to a freshly activated worker.
type Clients interface {
	Claim(w *Worker)
}

type Config struct {
	// Version is the cache generation name; defaults to CacheVersion.
	Version string
	// Origin resolves manifest paths.
	Origin *url.URL
	// Manifest defaults to ShellManifest.
	Manifest []string
	// OfflinePath defaults to OfflinePath and should be part of Manifest.
	OfflinePath string
}

// Result is the answer to an intercepted request. Response is nil when the
// network produced nothing.
type Result struct {
	Response *cache.Response
	Source   Source
}

type Worker struct {
	version  string
	origin   *url.URL
	manifest []string
	offline  cache.Key
	storage  cache.Storage
	network  Network

	state   atomic.Int32
	store   cache.Cache // set during install, read only once activated
	pending sync.WaitGroup
}

func New(storage cache.Storage, network Network, cfg Config) (*Worker, error) {
	if storage == nil || network == nil {
		return nil, errors.New("worker: storage and network are required")
	}
	if cfg.Origin == nil || (cfg.Origin.Scheme != "http" && cfg.Origin.Scheme != "https") || cfg.Origin.Host == "" {
		return nil, fmt.Errorf("worker: origin must be an absolute http(s) url, got %v", cfg.Origin)
	}
	if cfg.Version == "" {
		cfg.Version = CacheVersion
	}
	if cfg.Manifest == nil {
		cfg.Manifest = ShellManifest
	}
	if cfg.OfflinePath == "" {
		cfg.OfflinePath = OfflinePath
	}
	w := &Worker{
		version:  cfg.Version,
		origin:   cfg.Origin,
		manifest: append([]string(nil), cfg.Manifest...),
		storage:  storage,
		network:  network,
	}
	offline, err := w.resolve(cfg.OfflinePath)
	if err != nil {
		return nil, err
	}
	if w.offline, err = cache.NewKey(http.MethodGet, offline.String()); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Worker) Version() string { return w.version }

func (w *Worker) State() State { return State(w.state.Load()) }

func (w *Worker) transition(from, to State) bool {
	return w.state.CompareAndSwap(int32(from), int32(to))
}

func (w *Worker) setState(s State) { w.state.Store(int32(s)) }

func (w *Worker) resolve(p string) (*url.URL, error) {
	ref, err := url.Parse(p)
	if err != nil {
		return nil, fmt.Errorf("worker: invalid path %q: %w", p, err)
	}
	return w.origin.ResolveReference(ref), nil
}

// Install fetches every manifest URL and stores them in the current
// generation in one batch. If any fetch fails or returns a non-2xx status
// nothing is stored and the worker becomes redundant. A successful install
// does not wait for older workers to release their clients.
func (w *Worker) Install(ctx context.Context) error {
	if !w.transition(StateParsed, StateInstalling) {
		return fmt.Errorf("%w: install while %s", ErrInvalidState, w.State())
	}
	logger.Infof("installing cache generation %s (%d shell urls)", w.version, len(w.manifest))
	if err := w.precache(ctx); err != nil {
		w.setState(StateRedundant)
		logger.Errorf("install of %s failed: %v", w.version, err)
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}
	w.setState(StateInstalled)
	logger.Infof("installed cache generation %s", w.version)
	return nil
}

func (w *Worker) precache(ctx context.Context) error {
	c, err := w.storage.Open(w.version)
	if err != nil {
		return fmt.Errorf("open %s: %w", w.version, err)
	}
	entries := make([]cache.Entry, len(w.manifest))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range w.manifest {
		g.Go(func() error {
			u, err := w.resolve(p)
			if err != nil {
				return err
			}
			key, err := cache.NewKey(http.MethodGet, u.String())
			if err != nil {
				return err
			}
			req := &web.Request{
				Method:   http.MethodGet,
				URL:      u,
				Mode:     web.ModeSameOrigin,
				Redirect: web.RedirectFollow,
				Header:   http.Header{},
			}
			resp, err := w.network.Fetch(gctx, req)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", u, err)
			}
			if !resp.OK() {
				return fmt.Errorf("fetch %s: status %d", u, resp.Status)
			}
			entries[i] = cache.Entry{Key: key, Response: storable(resp)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := c.PutAll(entries); err != nil {
		return fmt.Errorf("store shell: %w", err)
	}
	w.store = c
	return nil
}

// Activate deletes every cache generation other than the current one and
// then hands clients to this worker. Deletions run concurrently and a
// failed deletion does not stop the others.
func (w *Worker) Activate(ctx context.Context, clients Clients) error {
	if !w.transition(StateInstalled, StateActivating) {
		return fmt.Errorf("%w: activate while %s", ErrInvalidState, w.State())
	}
	names, err := w.storage.Keys()
	if err != nil {
		logger.Warnf("activate %s: list caches: %v", w.version, err)
	}
	var g errgroup.Group
	for _, name := range names {
		if name == w.version {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if _, err := w.storage.Delete(name); err != nil {
				logger.Warnf("activate %s: delete stale cache %s: %v", w.version, name, err)
				return nil
			}
			logger.Infof("activate %s: deleted stale cache %s", w.version, name)
			return nil
		})
	}
	_ = g.Wait()

	w.setState(StateActivated)
	if clients != nil {
		clients.Claim(w)
	}
	logger.Infof("activated cache generation %s", w.version)
	return nil
}

// Intercepts reports whether Fetch would handle req. Only activated workers
// intercept, and only GET requests over http(s) outside /api/.
func (w *Worker) Intercepts(req *web.Request) bool {
	if w.State() != StateActivated || req == nil || req.URL == nil {
		return false
	}
	if req.Method != http.MethodGet {
		return false
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return false
	}
	return !strings.Contains(req.URL.Path, "/api/")
}

// Fetch answers req from the cache, falling back to the network. Only 200
// basic responses to requests without credentials are cached, and the write
// does not delay the result. A failed navigation is answered with the
// offline page.
func (w *Worker) Fetch(ctx context.Context, req *web.Request) (*Result, error) {
	if !w.Intercepts(req) {
		return nil, ErrBypass
	}
	key, err := cache.NewKey(req.Method, req.URL.String())
	if err != nil {
		return nil, err
	}

	if resp, err := w.store.Match(key); err == nil {
		return &Result{Response: resp, Source: SourceCache}, nil
	} else if !errors.Is(err, cache.ErrNotFound) {
		logger.Warnf("cache match %s: %v", key, err)
	}

	resp, err := w.network.Fetch(ctx, req.Clone())
	if err != nil {
		if req.IsNavigation() {
			if page, ferr := w.store.Match(w.offline); ferr == nil {
				logger.Infof("serving offline page for %s: %v", req.URL, err)
				return &Result{Response: page, Source: SourceOffline}, nil
			}
		}
		return nil, err
	}
	if cacheable(req, resp) {
		w.put(key, storable(resp))
	}
	return &Result{Response: resp, Source: SourceNetwork}, nil
}

func cacheable(req *web.Request, resp *cache.Response) bool {
	return resp != nil && resp.Status == http.StatusOK && resp.Type == cache.TypeBasic && !req.Credentialed()
}

// storable returns the copy of resp that may be replayed to any client.
func storable(resp *cache.Response) *cache.Response {
	out := resp.Clone()
	out.Header.Del("Set-Cookie")
	out.Header.Del("Set-Cookie2")
	return out
}

func (w *Worker) put(key cache.Key, resp *cache.Response) {
	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		if err := w.store.Put(key, resp); err != nil {
			logger.Warnf("cache put %s: %v", key, err)
		}
	}()
}

// Wait blocks until background cache writes have finished.
func (w *Worker) Wait() { w.pending.Wait() }
