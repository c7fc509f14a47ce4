package cache

import (
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func socketPath(t *testing.T) string {
	t.Helper()
	// Unix socket paths are length-limited, so avoid the long t.TempDir path.
	dir, err := os.MkdirTemp("", "swc")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "c.sock")
}

func startDaemon(t *testing.T) *Client {
	t.Helper()
	sock := socketPath(t)
	l, err := net.Listen("unix", sock)
	require.NoError(t, err)
	s := openTestStorage(t)
	done := make(chan error, 1)
	go func() { done <- Serve(l, s) }()
	t.Cleanup(func() {
		_ = l.Close()
		assert.NoError(t, <-done)
	})
	require.NoError(t, Probe(sock, 0))
	return NewClient(sock)
}

func TestClient_RoundTrip(t *testing.T) {
	client := startDaemon(t)

	c, err := client.Open("v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", c.Name())
	key := mustKey(t, "https://unishare.test/offline")

	_, err = c.Match(key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Put(key, page("<html>offline</html>")))
	got, err := c.Match(key)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, got.Status)
	assert.Equal(t, "<html>offline</html>", string(got.Body))

	keys, err := c.Keys()
	require.NoError(t, err)
	assert.Equal(t, []Key{key}, keys)

	ok, err := client.Has("v1")
	require.NoError(t, err)
	assert.True(t, ok)
	names, err := client.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, names)
}

func TestClient_ErrorsMapToSentinels(t *testing.T) {
	client := startDaemon(t)
	c, err := client.Open("v1")
	require.NoError(t, err)

	post, err := NewKey(http.MethodPost, "https://unishare.test/api/x")
	require.NoError(t, err)
	assert.ErrorIs(t, c.Put(post, page("x")), ErrMethodNotAllowed)

	deleted, err := client.Delete("v1")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = c.Match(mustKey(t, "https://unishare.test/"))
	assert.ErrorIs(t, err, ErrCacheDeleted)
	ok, err := client.Has("v1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_StaleHandleDoesNotRecreate(t *testing.T) {
	client := startDaemon(t)
	c, err := client.Open("v1")
	require.NoError(t, err)
	_, err = client.Delete("v1")
	require.NoError(t, err)

	assert.ErrorIs(t, c.Put(mustKey(t, "https://unishare.test/"), page("late")), ErrCacheDeleted)
	names, err := client.Keys()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestClient_HungDaemonTimesOut(t *testing.T) {
	sock := socketPath(t)
	l, err := net.Listen("unix", sock)
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
		wg    sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = l.Close()
		wg.Wait()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})

	client := NewClient(sock)
	client.callTimeout = 50 * time.Millisecond
	start := time.Now()
	_, err = client.Has("v1")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
