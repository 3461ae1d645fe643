package libmemc

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Client is a handle to a pool of cache servers sharing one keyspace.
//
// A Client is not safe for concurrent use: every call performs a full
// blocking round trip on the selected server's single socket, and the
// per-server receive buffers are reused between calls.
type Client struct {
	codec  codec
	conns  []*conn
	picker Picker
	opts   *clientOptions
	stats  statsCollector
}

// codec turns store and fetch calls into wire traffic on a connection.
type codec interface {
	store(cn *conn, cmd StoreCommand, item *Item) error
	fetch(cn *conn, item *Item) error
}

// New creates a Client speaking the given protocol. Servers are added
// afterwards with AddServer; the protocol and the option set stay fixed
// for the Client's lifetime.
func New(protocol Protocol, opts ...ClientOption) (*Client, error) {
	options := newClientOptions()
	for _, o := range opts {
		o(options)
	}

	var cd codec
	switch protocol {
	case TextProtocol:
		cd = textCodec{}
	case BinaryProtocol:
		cd = binCodec{}
	default:
		return nil, errors.Wrapf(ErrInvalidProtocol, "%d", protocol)
	}

	return &Client{
		codec:  cd,
		picker: options.picker,
		opts:   options,
	}, nil
}

// AddServer resolves host:port through the system resolver and registers
// the server at the end of the routing list. The initial dial is a best
// effort: a server that is down is still registered and retried on first
// use. A resolution failure leaves the list untouched, so the pool may
// come up with fewer servers than were asked for.
func (c *Client) AddServer(host string, port int) error {
	addr, err := resolveAddr(host, port)
	if err != nil {
		return err
	}
	cn := newConn(addr, c.opts)
	if c.opts.newBreaker != nil {
		cn.breaker = c.opts.newBreaker(cn.peername)
	}
	_ = cn.connect()
	c.conns = append(c.conns, cn)
	return nil
}

// Store writes item under the given command semantics. A rejection by the
// server comes back as ErrNotStored.
func (c *Client) Store(cmd StoreCommand, item *Item) error {
	if !cmd.valid() {
		return errors.Wrapf(ErrInvalidCommand, "%d", cmd)
	}
	err := c.dispatch(item.Key, func(cn *conn) error {
		return c.codec.store(cn, cmd, item)
	})
	c.stats.recordStore(err)
	return err
}

// Add stores item only if its key is absent.
func (c *Client) Add(item *Item) error { return c.Store(Add, item) }

// Set stores item unconditionally.
func (c *Client) Set(item *Item) error { return c.Store(Set, item) }

// Replace stores item only if its key already exists.
func (c *Client) Replace(item *Item) error { return c.Store(Replace, item) }

// Get fetches the value stored under item.Key into item, reusing
// item.Data when its capacity is sufficient. An absent key is reported as
// ErrCacheMiss with the item left untouched.
func (c *Client) Get(item *Item) error {
	err := c.dispatch(item.Key, func(cn *conn) error {
		return c.codec.fetch(cn, item)
	})
	c.stats.recordGet(err)
	return err
}

// Stats returns a snapshot of the client's operation counters.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// Close disconnects every server and empties the routing list. The
// Client must not be used afterwards.
func (c *Client) Close() error {
	var merr *multierror.Error
	for _, cn := range c.conns {
		if cn.sock == nil {
			continue
		}
		if err := cn.sock.Close(); err != nil {
			merr = multierror.Append(merr, errors.Wrapf(err, "close %s", cn.peername))
		}
		cn.sock = nil
	}
	c.conns = nil
	return merr.ErrorOrNil()
}

// pick maps a key onto the server that owns it.
func (c *Client) pick(key []byte) (*conn, error) {
	switch len(c.conns) {
	case 0:
		return nil, ErrNoServers
	case 1:
		return c.conns[0], nil
	}
	i := c.picker.Pick(len(c.conns), key)
	if i < 0 || i >= len(c.conns) {
		return nil, errors.Errorf("picker chose %d of %d servers", i, len(c.conns))
	}
	return c.conns[i], nil
}

// dispatch selects the server owning key, makes sure it is connected and
// runs op, through the server's breaker when one is configured. One
// attempt only: a failure surfaces to the caller and reconnection
// happens on the next call that needs the server.
func (c *Client) dispatch(key []byte, op func(cn *conn) error) error {
	cn, err := c.pick(key)
	if err != nil {
		return err
	}

	attempt := func() error {
		if err := cn.ensureConnected(); err != nil {
			return err
		}
		return op(cn)
	}
	if cn.breaker == nil {
		return attempt()
	}

	// Misses and rejected stores are ordinary outcomes; only hard
	// failures are fed to the breaker.
	var result error
	ran := false
	err = cn.breaker.Execute(func() error {
		ran = true
		result = attempt()
		if errors.Is(result, ErrCacheMiss) || errors.Is(result, ErrNotStored) {
			return nil
		}
		return result
	})
	if !ran {
		return errors.Wrapf(err, "%s", cn.peername)
	}
	return result
}
