package web

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unishare/unishare-sw/internal/cache"
)

// "café" in ISO-8859-1.
var latin1Page = []byte{'c', 'a', 'f', 0xe9}

func newOrigin(t *testing.T) (*httptest.Server, *url.URL) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Seen-Request-Id", r.Header.Get("X-Request-Id"))
		w.Header().Set("X-Seen-Proxy-Auth", r.Header.Get("Proxy-Authorization"))
		_, _ = w.Write([]byte("<html>dashboard</html>"))
	})
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("a"), 2048))
	})
	mux.HandleFunc("/latin1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write(latin1Page)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Set-Cookie", "session=fresh")
		w.Header().Set("X-Seen-Cookie", r.Header.Get("Cookie"))
		_, _ = w.Write([]byte("<html>login</html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return srv, u
}

func request(t *testing.T, rawURL, mode string) *Request {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return &Request{Method: http.MethodGet, URL: u, Mode: mode, Header: http.Header{}}
}

func TestFetcher_SameOriginIsBasic(t *testing.T) {
	srv, origin := newOrigin(t)
	f := NewFetcher(origin, Options{})

	req := request(t, srv.URL+"/dashboard", ModeNavigate)
	req.Header.Set("X-Request-Id", "req-1")
	req.Header.Set("Proxy-Authorization", "secret")
	resp, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, cache.TypeBasic, resp.Type)
	assert.False(t, resp.Redirected)
	assert.Equal(t, "<html>dashboard</html>", string(resp.Body))
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Get("Content-Length"))
	assert.Equal(t, "req-1", resp.Header.Get("X-Seen-Request-Id"))
	assert.Empty(t, resp.Header.Get("X-Seen-Proxy-Auth"))
}

func TestFetcher_ErrorStatusIsAResponse(t *testing.T) {
	srv, origin := newOrigin(t)
	f := NewFetcher(origin, Options{})

	resp, err := f.Fetch(context.Background(), request(t, srv.URL+"/missing", ModeNoCORS))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.False(t, resp.OK())
}

func TestFetcher_DoesNotFollowRedirects(t *testing.T) {
	srv, origin := newOrigin(t)
	f := NewFetcher(origin, Options{})

	resp, err := f.Fetch(context.Background(), request(t, srv.URL+"/old", ModeNavigate))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.Status)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestFetcher_FollowsRedirectsWhenAsked(t *testing.T) {
	srv, origin := newOrigin(t)
	f := NewFetcher(origin, Options{})

	req := request(t, srv.URL+"/old", ModeSameOrigin)
	req.Redirect = RedirectFollow
	resp, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Redirected)
	assert.Equal(t, srv.URL+"/dashboard", resp.URL)
	assert.Equal(t, cache.TypeBasic, resp.Type)
	assert.Equal(t, "<html>dashboard</html>", string(resp.Body))
}

func TestFetcher_OversizedBodyIsAnError(t *testing.T) {
	srv, origin := newOrigin(t)

	_, err := NewFetcher(origin, Options{MaxBodySize: 1024}).
		Fetch(context.Background(), request(t, srv.URL+"/big", ModeNoCORS))
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	resp, err := NewFetcher(origin, Options{MaxBodySize: 2048}).
		Fetch(context.Background(), request(t, srv.URL+"/big", ModeNoCORS))
	require.NoError(t, err)
	assert.Len(t, resp.Body, 2048)
}

func TestFetcher_KeepsBodyBytes(t *testing.T) {
	srv, origin := newOrigin(t)
	f := NewFetcher(origin, Options{})

	resp, err := f.Fetch(context.Background(), request(t, srv.URL+"/latin1", ModeNavigate))
	require.NoError(t, err)
	assert.Equal(t, latin1Page, resp.Body)
	assert.Equal(t, "text/html; charset=iso-8859-1", resp.Header.Get("Content-Type"))
}

func TestFetcher_DoesNotKeepCookies(t *testing.T) {
	srv, origin := newOrigin(t)
	f := NewFetcher(origin, Options{})

	alice := request(t, srv.URL+"/login", ModeNavigate)
	alice.Header.Set("Cookie", "session=ALICE")
	resp, err := f.Fetch(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, "session=ALICE", resp.Header.Get("X-Seen-Cookie"))
	assert.Equal(t, "session=fresh", resp.Header.Get("Set-Cookie"))

	resp, err = f.Fetch(context.Background(), request(t, srv.URL+"/login", ModeNavigate))
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("X-Seen-Cookie"))
}

func TestRequestCredentialed(t *testing.T) {
	req := request(t, "https://unishare.test/notes", ModeNavigate)
	assert.False(t, req.Credentialed())
	req.Header.Set("Authorization", "Bearer x")
	assert.True(t, req.Credentialed())
}

func TestFetcher_CrossOrigin(t *testing.T) {
	_, origin := newOrigin(t)
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cors" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		_, _ = w.Write([]byte("asset"))
	}))
	t.Cleanup(other.Close)
	f := NewFetcher(origin, Options{})

	resp, err := f.Fetch(context.Background(), request(t, other.URL+"/img.png", ModeNoCORS))
	require.NoError(t, err)
	assert.Equal(t, cache.TypeOpaque, resp.Type)

	resp, err = f.Fetch(context.Background(), request(t, other.URL+"/cors", ModeCORS))
	require.NoError(t, err)
	assert.Equal(t, cache.TypeCORS, resp.Type)
}

func TestFetcher_NetworkFailure(t *testing.T) {
	srv, origin := newOrigin(t)
	f := NewFetcher(origin, Options{})
	target := srv.URL + "/dashboard"
	srv.Close()

	_, err := f.Fetch(context.Background(), request(t, target, ModeNavigate))
	assert.Error(t, err)
}

func TestFetcher_CanceledContext(t *testing.T) {
	srv, origin := newOrigin(t)
	f := NewFetcher(origin, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, request(t, srv.URL+"/dashboard", ModeNavigate))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetcher_RejectsNonHTTPScheme(t *testing.T) {
	_, origin := newOrigin(t)
	f := NewFetcher(origin, Options{})
	_, err := f.Fetch(context.Background(), request(t, "chrome-extension://abc/x.js", ModeNoCORS))
	assert.Error(t, err)
}

func TestSameOrigin(t *testing.T) {
	parse := func(s string) *url.URL {
		u, err := url.Parse(s)
		require.NoError(t, err)
		return u
	}
	assert.True(t, SameOrigin(parse("https://unishare.test"), parse("https://UniShare.test:443/x")))
	assert.False(t, SameOrigin(parse("https://unishare.test"), parse("http://unishare.test/x")))
	assert.False(t, SameOrigin(parse("https://unishare.test"), parse("https://cdn.unishare.test/x")))
	assert.False(t, SameOrigin(nil, parse("https://unishare.test")))
}

func TestRequestClone(t *testing.T) {
	req := request(t, "https://unishare.test/a", ModeNavigate)
	req.Header.Set("Accept", "text/html")
	cp := req.Clone()
	cp.URL.Path = "/b"
	cp.Header.Set("Accept", "*/*")
	assert.Equal(t, "/a", req.URL.Path)
	assert.Equal(t, "text/html", req.Header.Get("Accept"))
	assert.True(t, cp.IsNavigation())
}
