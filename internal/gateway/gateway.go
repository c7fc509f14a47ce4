// Package gateway is the HTTP surface in front of the UniShare origin. Requests
// the active worker intercepts are answered by it; everything else is proxied
// to the origin untouched.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unishare/unishare-sw/internal/cache"
	"github.com/unishare/unishare-sw/internal/logger"
	"github.com/unishare/unishare-sw/internal/web"
	"github.com/unishare/unishare-sw/internal/worker"
)

// StatusPath reports the controlling worker. It is never forwarded.
const StatusPath = "/__sw/status"

type Handler struct {
	origin  *url.URL
	reg     *worker.Registration
	storage cache.Storage
	proxy   *httputil.ReverseProxy
}

func New(origin *url.URL, reg *worker.Registration, storage cache.Storage) *Handler {
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(origin)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warnf("proxy %s %s: %v", r.Method, r.URL.RequestURI(), err)
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		},
	}
	return &Handler{origin: origin, reg: reg, storage: storage, proxy: proxy}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get("X-Request-Id")
	if reqID == "" {
		reqID = uuid.NewString()
		r.Header.Set("X-Request-Id", reqID)
	}
	w.Header().Set("X-Request-Id", reqID)
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	defer func() {
		logger.Infof("%s %s %s %d %s", reqID, r.Method, r.URL.RequestURI(), rec.status, time.Since(start))
	}()

	if r.URL.Path == StatusPath {
		h.serveStatus(rec)
		return
	}
	req := h.toRequest(r)
	if active := h.reg.Active(); active != nil && active.Intercepts(req) {
		h.serveWorker(rec, r, active, req)
		return
	}
	h.proxy.ServeHTTP(rec, r)
}

func (h *Handler) toRequest(r *http.Request) *web.Request {
	u := h.origin.ResolveReference(&url.URL{
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	})
	return &web.Request{
		Method: r.Method,
		URL:    u,
		Mode:   requestMode(r),
		Header: r.Header.Clone(),
	}
}

// requestMode trusts Sec-Fetch-Mode and otherwise treats a GET for HTML as a navigation.
func requestMode(r *http.Request) string {
	if m := r.Header.Get("Sec-Fetch-Mode"); m != "" {
		return m
	}
	if r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html") {
		return web.ModeNavigate
	}
	return web.ModeNoCORS
}

func (h *Handler) serveWorker(w http.ResponseWriter, r *http.Request, active *worker.Worker, req *web.Request) {
	res, err := active.Fetch(r.Context(), req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Warnf("fetch %s: %v", req.URL, err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	if res.Response == nil {
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	writeResponse(w, res)
}

func writeResponse(w http.ResponseWriter, res *worker.Result) {
	resp := res.Response
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	switch res.Source {
	case worker.SourceCache:
		w.Header().Set("X-Cache", "HIT")
	case worker.SourceOffline:
		w.Header().Set("X-Cache", "OFFLINE")
	default:
		w.Header().Set("X-Cache", "MISS")
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	status := resp.Status
	if status == 0 {
		status = http.StatusBadGateway
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

type status struct {
	Version     string   `json:"version,omitempty"`
	State       string   `json:"state"`
	Generations []string `json:"generations"`
}

func (h *Handler) serveStatus(w http.ResponseWriter) {
	st := status{State: "none", Generations: []string{}}
	if active := h.reg.Active(); active != nil {
		st.Version = active.Version()
		st.State = active.State().String()
	}
	if h.storage != nil {
		names, err := h.storage.Keys()
		if err != nil {
			logger.Warnf("status: list caches: %v", err)
		} else if names != nil {
			st.Generations = names
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(st)
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }
