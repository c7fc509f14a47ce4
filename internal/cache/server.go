package cache

import (
	"encoding/json"
	"errors"
	"net"
)

// Serve accepts connections on l and answers protocol calls against s until
// l is closed.
func Serve(l net.Listener, s Storage) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		go handleConn(conn, s)
	}
}

func handleConn(conn net.Conn, s Storage) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var call Call
		if err := dec.Decode(&call); err != nil {
			return
		}
		reply, err := dispatch(s, call)
		if err != nil {
			reply = Reply{OK: false, Error: err.Error()}
		} else {
			reply.OK = true
		}
		if err := enc.Encode(&reply); err != nil {
			return
		}
	}
}

// existingOpener is implemented by storages that can open a store without
// creating it.
type existingOpener interface {
	OpenExisting(name string) (Cache, error)
}

// openExisting never recreates a deleted generation.
func openExisting(s Storage, name string) (Cache, error) {
	if eo, ok := s.(existingOpener); ok {
		return eo.OpenExisting(name)
	}
	ok, err := s.Has(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCacheDeleted
	}
	return s.Open(name)
}

func dispatch(s Storage, call Call) (Reply, error) {
	switch call.Op {
	case OpOpen:
		_, err := s.Open(call.Cache)
		return Reply{}, err
	case OpHas:
		ok, err := s.Has(call.Cache)
		return Reply{Found: ok}, err
	case OpDelete:
		ok, err := s.Delete(call.Cache)
		return Reply{Found: ok}, err
	case OpKeys:
		names, err := s.Keys()
		return Reply{Names: names}, err
	}

	c, err := openExisting(s, call.Cache)
	if err != nil {
		return Reply{}, err
	}
	switch call.Op {
	case OpMatch:
		if call.Key == nil {
			return Reply{}, errors.New("cache: match without key")
		}
		resp, err := c.Match(*call.Key)
		if errors.Is(err, ErrNotFound) {
			return Reply{}, nil
		}
		return Reply{Found: resp != nil, Entry: resp}, err
	case OpPutAll:
		return Reply{}, c.PutAll(call.Entries)
	case OpCacheKeys:
		keys, err := c.Keys()
		return Reply{Keys: keys}, err
	default:
		return Reply{}, errors.New("unknown op")
	}
}
