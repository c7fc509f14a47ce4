package cache

import (
	"encoding/json"
	"net"
	"time"
)

// Client implements Storage over a Unix socket served by Serve.
type Client struct {
	socketPath string
	timeout    time.Duration
	// callTimeout bounds one request/reply exchange once connected.
	callTimeout time.Duration
}

var _ Storage = (*Client)(nil)

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: 500 * time.Millisecond, callTimeout: 10 * time.Second}
}

// Probe checks that a daemon is listening on the socket.
func Probe(socketPath string, timeout time.Duration) error {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (c *Client) do(call Call) (Reply, error) {
	var reply Reply
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return reply, err
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(c.callTimeout)); err != nil {
		return reply, err
	}
	if err := json.NewEncoder(conn).Encode(&call); err != nil {
		return reply, err
	}
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return reply, err
	}
	if !reply.OK {
		return reply, errorFromWire(reply.Error)
	}
	return reply, nil
}

func (c *Client) Open(name string) (Cache, error) {
	if _, err := c.do(Call{Op: OpOpen, Cache: name}); err != nil {
		return nil, err
	}
	return &remoteCache{c: c, name: name}, nil
}

func (c *Client) Has(name string) (bool, error) {
	reply, err := c.do(Call{Op: OpHas, Cache: name})
	return reply.Found, err
}

func (c *Client) Delete(name string) (bool, error) {
	reply, err := c.do(Call{Op: OpDelete, Cache: name})
	return reply.Found, err
}

func (c *Client) Keys() ([]string, error) {
	reply, err := c.do(Call{Op: OpKeys})
	return reply.Names, err
}

// Close is a no-op; every call uses its own connection.
func (c *Client) Close() error { return nil }

type remoteCache struct {
	c    *Client
	name string
}

func (r *remoteCache) Name() string { return r.name }

func (r *remoteCache) Match(key Key) (*Response, error) {
	reply, err := r.c.do(Call{Op: OpMatch, Cache: r.name, Key: &key})
	if err != nil {
		return nil, err
	}
	if reply.Entry == nil {
		return nil, ErrNotFound
	}
	return reply.Entry, nil
}

func (r *remoteCache) Put(key Key, resp *Response) error {
	return r.PutAll([]Entry{{Key: key, Response: resp}})
}

func (r *remoteCache) PutAll(entries []Entry) error {
	_, err := r.c.do(Call{Op: OpPutAll, Cache: r.name, Entries: entries})
	return err
}

func (r *remoteCache) Keys() ([]Key, error) {
	reply, err := r.c.do(Call{Op: OpCacheKeys, Cache: r.name})
	return reply.Keys, err
}
