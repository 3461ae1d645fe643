package libmemc

import (
	"bytes"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// scratchSize is the capacity of the per-connection receive buffer. Any
// response, header and payload included, must fit in it.
const scratchSize = 64 * 1024

// conn owns the client's side of one cache server: the resolved address,
// at most one socket, and a scratch buffer reused for every response.
//
// A conn is either connected (sock != nil) or not. lastErr keeps the most
// recent failure for diagnostics; it is replaced on each new failure,
// never appended to.
type conn struct {
	addr     *net.TCPAddr
	peername string

	sock    net.Conn
	scratch []byte
	lastErr error

	breaker CircuitBreaker

	dialTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func newConn(addr *net.TCPAddr, opts *clientOptions) *conn {
	return &conn{
		addr:         addr,
		peername:     addr.String(),
		scratch:      make([]byte, scratchSize),
		dialTimeout:  opts.dialTimeout,
		readTimeout:  opts.readTimeout,
		writeTimeout: opts.writeTimeout,
	}
}

// connect dials the previously resolved address. Nagle's algorithm is
// switched off so small request frames leave immediately. On failure the
// error is recorded and the conn stays unconnected; nothing retries from
// here.
func (c *conn) connect() error {
	d := net.Dialer{Timeout: c.dialTimeout}
	sock, err := d.Dial("tcp", c.peername)
	if err != nil {
		werr := errors.Wrapf(ErrConnect, "%s: %v", c.peername, err)
		c.lastErr = werr
		return werr
	}
	if tc, ok := sock.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	c.sock = sock
	return nil
}

// disconnect is idempotent and keeps the scratch buffer for the next use.
func (c *conn) disconnect() {
	if c.sock != nil {
		_ = c.sock.Close()
		c.sock = nil
	}
}

func (c *conn) connected() bool { return c.sock != nil }

func (c *conn) ensureConnected() error {
	if c.sock != nil {
		return nil
	}
	return c.connect()
}

// fail records err as the conn's sticky last error, tears the socket down
// and hands err back. Every transport and protocol failure funnels
// through here so the next call starts from a clean, disconnected state.
func (c *conn) fail(err error) error {
	c.lastErr = err
	c.disconnect()
	return err
}

// retryable reports whether a transfer error may be retried in place
// without losing data.
func retryable(err error) bool {
	return errors.Is(err, syscall.EINTR)
}

// sendAll writes every byte range in bufs, in order, as one logical
// message. A short write re-issues the unsent suffix of the current
// range; an interrupted call is retried bare. The ranges go to the socket
// one by one and are never copied into a joined buffer.
func (c *conn) sendAll(bufs net.Buffers) error {
	if c.writeTimeout > 0 {
		_ = c.sock.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	for _, b := range bufs {
		for len(b) > 0 {
			n, err := c.sock.Write(b)
			b = b[n:]
			if err != nil {
				if retryable(err) {
					continue
				}
				return c.fail(errors.Wrapf(ErrIO, "send to %s: %v", c.peername, err))
			}
			if n == 0 {
				return c.fail(errors.Wrapf(ErrIO, "send to %s: transport accepted nothing", c.peername))
			}
		}
	}
	return nil
}

// receiveFull reads until p is completely filled, tolerating short reads
// and interrupted calls. The peer closing mid-fill is a transport
// failure.
func (c *conn) receiveFull(p []byte) error {
	if c.readTimeout > 0 {
		_ = c.sock.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	off := 0
	for off < len(p) {
		n, err := c.sock.Read(p[off:])
		off += n
		if err != nil {
			if retryable(err) {
				continue
			}
			if off == len(p) {
				break
			}
			if errors.Is(err, io.EOF) {
				return c.fail(errors.Wrapf(ErrIO, "read from %s: lost contact with server", c.peername))
			}
			return c.fail(errors.Wrapf(ErrIO, "read from %s: %v", c.peername, err))
		}
	}
	return nil
}

// receiveLine reads into the scratch buffer until a carriage return shows
// up in what has been received so far, returning the total byte count.
// Whatever arrived after the terminator in the final chunk stays in the
// buffer for the caller to account for. Filling the buffer without seeing
// a terminator means the peer is out of sync.
func (c *conn) receiveLine() (int, error) {
	if c.readTimeout > 0 {
		_ = c.sock.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	off := 0
	for {
		if off == len(c.scratch) {
			return off, c.fail(errors.Wrapf(ErrMalformedResponse,
				"read from %s: out of sync, no line terminator in %d bytes", c.peername, off))
		}
		n, err := c.sock.Read(c.scratch[off:])
		terminated := n > 0 && bytes.IndexByte(c.scratch[off:off+n], '\r') >= 0
		off += n
		if terminated {
			return off, nil
		}
		if err != nil {
			if retryable(err) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return off, c.fail(errors.Wrapf(ErrIO, "read from %s: lost contact with server", c.peername))
			}
			return off, c.fail(errors.Wrapf(ErrIO, "read from %s: %v", c.peername, err))
		}
	}
}

// completeLine finds the terminator among the first n buffered bytes and
// makes sure its line feed is buffered too, reading the one missing byte
// when the carriage return was the last byte received. It returns the
// whole line including CRLF and the updated buffered count.
func (c *conn) completeLine(n int) ([]byte, int, error) {
	cr := bytes.IndexByte(c.scratch[:n], '\r')
	if cr < 0 {
		return nil, n, c.fail(errors.Wrapf(ErrMalformedResponse, "%s: missing line terminator", c.peername))
	}
	if cr+1 == n {
		if n == len(c.scratch) {
			return nil, n, c.fail(errors.Wrapf(ErrMalformedResponse, "%s: line fills the whole buffer", c.peername))
		}
		if err := c.receiveFull(c.scratch[n : n+1]); err != nil {
			return nil, n, err
		}
		n++
	}
	if c.scratch[cr+1] != '\n' {
		return nil, n, c.fail(errors.Wrapf(ErrMalformedResponse, "%s: bare carriage return in reply", c.peername))
	}
	return c.scratch[:cr+2], n, nil
}

// drain reads and discards n bytes through the scratch buffer.
func (c *conn) drain(n int) error {
	for n > 0 {
		chunk := n
		if chunk > len(c.scratch) {
			chunk = len(c.scratch)
		}
		if err := c.receiveFull(c.scratch[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
