package libmemc

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trondn/libmemc/hash"
)

// fakeCache backs the in-test servers. One instance may be shared by any
// number of connections and both protocols.
type fakeCache struct {
	mu     sync.Mutex
	items  map[string]fakeItem
	casSeq uint64
}

type fakeItem struct {
	flags uint32
	data  []byte
	cas   uint64
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: make(map[string]fakeItem)}
}

func (fc *fakeCache) get(key string) (fakeItem, bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	it, ok := fc.items[key]
	return it, ok
}

func (fc *fakeCache) has(key string) bool {
	_, ok := fc.get(key)
	return ok
}

func (fc *fakeCache) store(verb, key string, flags uint32, data []byte) bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	_, exists := fc.items[key]
	if (verb == "add" && exists) || (verb == "replace" && !exists) {
		return false
	}
	fc.casSeq++
	fc.items[key] = fakeItem{flags: flags, data: data, cas: fc.casSeq}
	return true
}

// startTextServer runs a line protocol server on a loopback port. With
// maxPerConn > 0 each connection is closed after that many commands.
func startTextServer(t *testing.T, cache *fakeCache, maxPerConn int) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go serveText(c, cache, maxPerConn)
		}
	}()
	return "127.0.0.1", ln.Addr().(*net.TCPAddr).Port
}

func serveText(c net.Conn, cache *fakeCache, maxPerConn int) {
	defer func() { _ = c.Close() }()
	r := bufio.NewReader(c)
	for served := 0; maxPerConn == 0 || served < maxPerConn; served++ {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(strings.TrimSuffix(line, "\r\n"))
		switch {
		case len(fields) == 2 && fields[0] == "get":
			if it, ok := cache.get(fields[1]); ok {
				fmt.Fprintf(c, "VALUE %d %d\r\n", it.flags, len(it.data))
				_, _ = c.Write(it.data)
				_, _ = io.WriteString(c, "\r\nEND\r\n")
			} else {
				_, _ = io.WriteString(c, "END\r\n")
			}
		case len(fields) == 5:
			flags, _ := strconv.ParseUint(fields[2], 10, 32)
			size, _ := strconv.Atoi(fields[4])
			payload := make([]byte, size+2)
			if _, err := io.ReadFull(r, payload); err != nil {
				return
			}
			if cache.store(fields[0], fields[1], uint32(flags), payload[:size]) {
				_, _ = io.WriteString(c, "STORED\r\n")
			} else {
				_, _ = io.WriteString(c, "NOT_STORED\r\n")
			}
		default:
			_, _ = io.WriteString(c, "ERROR\r\n")
		}
	}
}

// startBinServer runs a binary protocol server on a loopback port.
func startBinServer(t *testing.T, cache *fakeCache) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go serveBinary(c, cache)
		}
	}()
	return "127.0.0.1", ln.Addr().(*net.TCPAddr).Port
}

func serveBinary(c net.Conn, cache *fakeCache) {
	defer func() { _ = c.Close() }()
	verbs := map[byte]string{binOpSet: "set", binOpAdd: "add", binOpReplace: "replace"}
	for {
		var hdr [binHeaderSize]byte
		if _, err := io.ReadFull(c, hdr[:]); err != nil {
			return
		}
		keylen := int(binary.BigEndian.Uint16(hdr[2:4]))
		extlen := int(hdr[4])
		body := make([]byte, binary.BigEndian.Uint32(hdr[8:12]))
		if _, err := io.ReadFull(c, body); err != nil {
			return
		}
		key := string(body[extlen : extlen+keylen])

		switch hdr[1] {
		case binOpGet:
			if it, ok := cache.get(key); ok {
				extras := make([]byte, 4)
				binary.BigEndian.PutUint32(extras, it.flags)
				_, _ = c.Write(buildBinResponse(binStatusOK, extras, it.data, it.cas))
			} else {
				_, _ = c.Write(buildBinResponse(binStatusKeyNotFound, nil, []byte("Not found"), 0))
			}
		case binOpSet, binOpAdd, binOpReplace:
			verb := verbs[hdr[1]]
			flags := binary.BigEndian.Uint32(body[0:4])
			if cache.store(verb, key, flags, body[extlen+keylen:]) {
				_, _ = c.Write(buildBinResponse(binStatusOK, nil, nil, 0))
			} else {
				status := uint16(binStatusKeyExists)
				if verb == "replace" {
					status = binStatusKeyNotFound
				}
				_, _ = c.Write(buildBinResponse(status, nil, []byte("Not stored."), 0))
			}
		default:
			_, _ = c.Write(buildBinResponse(0x0081, nil, []byte("Unknown command"), 0))
		}
	}
}

func Test_Client_TextProtocol(t *testing.T) {
	cache := newFakeCache()
	host, port := startTextServer(t, cache, 0)

	c, err := New(TextProtocol)
	require.NoError(t, err)
	require.NoError(t, c.AddServer(host, port))
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Set(&Item{
		Key:        []byte("greeting"),
		Data:       []byte("hello world"),
		Flags:      9,
		Expiration: 120,
	}))

	got := &Item{Key: []byte("greeting")}
	require.NoError(t, c.Get(got))
	assert.Equal(t, "hello world", string(got.Data))
	assert.Equal(t, uint32(9), got.Flags)

	assert.ErrorIs(t, c.Get(&Item{Key: []byte("absent")}), ErrCacheMiss)

	assert.ErrorIs(t, c.Add(&Item{Key: []byte("greeting"), Data: []byte("x")}), ErrNotStored)
	assert.ErrorIs(t, c.Replace(&Item{Key: []byte("absent"), Data: []byte("x")}), ErrNotStored)

	require.NoError(t, c.Add(&Item{Key: []byte("fresh"), Data: []byte("first")}))
	require.NoError(t, c.Replace(&Item{Key: []byte("fresh"), Data: []byte("second")}))

	got = &Item{Key: []byte("fresh")}
	require.NoError(t, c.Get(got))
	assert.Equal(t, "second", string(got.Data))

	assert.Equal(t, ClientStats{
		Gets:      3,
		GetHits:   2,
		GetMisses: 1,
		Stores:    5,
		NotStored: 2,
	}, c.Stats())
}

func Test_Client_BinaryProtocol(t *testing.T) {
	cache := newFakeCache()
	host, port := startBinServer(t, cache)

	c, err := New(BinaryProtocol)
	require.NoError(t, err)
	require.NoError(t, c.AddServer(host, port))
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Set(&Item{Key: []byte("greeting"), Data: []byte("hello world"), Flags: 9}))

	got := &Item{Key: []byte("greeting")}
	require.NoError(t, c.Get(got))
	assert.Equal(t, "hello world", string(got.Data))
	assert.Zero(t, got.Flags, "binary stores do not propagate flags")
	first := got.CAS
	assert.NotZero(t, first)

	assert.ErrorIs(t, c.Get(&Item{Key: []byte("absent")}), ErrCacheMiss)
	assert.ErrorIs(t, c.Add(&Item{Key: []byte("greeting"), Data: []byte("x")}), ErrNotStored)
	assert.ErrorIs(t, c.Replace(&Item{Key: []byte("absent"), Data: []byte("x")}), ErrNotStored)

	require.NoError(t, c.Set(&Item{Key: []byte("greeting"), Data: []byte("rewritten")}))
	require.NoError(t, c.Get(got))
	assert.Equal(t, "rewritten", string(got.Data))
	assert.Greater(t, got.CAS, first, "every store mints a new cas token")
}

func Test_Client_largeValues(t *testing.T) {
	t.Run("case1: text protocol up to the receive buffer", func(t *testing.T) {
		cache := newFakeCache()
		host, port := startTextServer(t, cache, 0)

		c, err := New(TextProtocol)
		require.NoError(t, err)
		require.NoError(t, c.AddServer(host, port))
		t.Cleanup(func() { _ = c.Close() })

		big := bytes.Repeat([]byte("x"), 60000)
		require.NoError(t, c.Set(&Item{Key: []byte("big"), Data: big}))

		got := &Item{Key: []byte("big")}
		require.NoError(t, c.Get(got))
		assert.True(t, bytes.Equal(big, got.Data))
	})

	t.Run("case2: binary protocol beyond the receive buffer", func(t *testing.T) {
		cache := newFakeCache()
		host, port := startBinServer(t, cache)

		c, err := New(BinaryProtocol)
		require.NoError(t, err)
		require.NoError(t, c.AddServer(host, port))
		t.Cleanup(func() { _ = c.Close() })

		big := bytes.Repeat([]byte("y"), scratchSize+4096)
		require.NoError(t, c.Set(&Item{Key: []byte("big"), Data: big}))

		got := &Item{Key: []byte("big")}
		require.NoError(t, c.Get(got))
		assert.True(t, bytes.Equal(big, got.Data))
	})
}

func Test_Client_reconnectsAfterServerClose(t *testing.T) {
	cache := newFakeCache()
	host, port := startTextServer(t, cache, 1)

	c, err := New(TextProtocol)
	require.NoError(t, err)
	require.NoError(t, c.AddServer(host, port))
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Set(&Item{Key: []byte("mykey"), Data: []byte("hello")}))

	// The server hung up after the store; the next call finds out.
	err = c.Get(&Item{Key: []byte("mykey")})
	assert.ErrorIs(t, err, ErrIO)
	assert.False(t, c.conns[0].connected())

	// The one after that dials a fresh connection and succeeds.
	got := &Item{Key: []byte("mykey")}
	require.NoError(t, c.Get(got))
	assert.Equal(t, "hello", string(got.Data))
}

func Test_Client_AddServer(t *testing.T) {
	t.Run("case1: unresolvable address is reported", func(t *testing.T) {
		c, err := New(TextProtocol)
		require.NoError(t, err)

		err = c.AddServer("127.0.0.1", -1)
		assert.ErrorIs(t, err, ErrInvalidAddress)
		assert.Empty(t, c.conns)
	})

	t.Run("case2: a down server is registered and dialed lazily", func(t *testing.T) {
		port := unusedPort(t)

		c, err := New(TextProtocol)
		require.NoError(t, err)
		require.NoError(t, c.AddServer("127.0.0.1", port))
		require.Len(t, c.conns, 1)
		assert.False(t, c.conns[0].connected())
		assert.ErrorIs(t, c.conns[0].lastErr, ErrConnect)

		err = c.Get(&Item{Key: []byte("mykey")})
		assert.ErrorIs(t, err, ErrConnect)
		assert.Equal(t, uint64(1), c.Stats().Errors)
	})
}

// unusedPort reserves a loopback port and releases it again, so a dial
// to it is refused.
func unusedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func Test_Client_invalidInputs(t *testing.T) {
	_, err := New(Protocol(99))
	assert.ErrorIs(t, err, ErrInvalidProtocol)

	c, err := New(TextProtocol)
	require.NoError(t, err)

	assert.ErrorIs(t, c.Get(&Item{Key: []byte("mykey")}), ErrNoServers)
	assert.ErrorIs(t, c.Set(&Item{Key: []byte("mykey")}), ErrNoServers)
	assert.ErrorIs(t, c.Store(StoreCommand(9), &Item{Key: []byte("mykey")}), ErrInvalidCommand)
}

func Test_Client_Close(t *testing.T) {
	cache := newFakeCache()
	host, port := startTextServer(t, cache, 0)

	c, err := New(TextProtocol)
	require.NoError(t, err)
	require.NoError(t, c.AddServer(host, port))
	require.NoError(t, c.Set(&Item{Key: []byte("mykey"), Data: []byte("v")}))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "closing twice is harmless")

	assert.ErrorIs(t, c.Get(&Item{Key: []byte("mykey")}), ErrNoServers)
}

func Test_Client_circuitBreaker(t *testing.T) {
	t.Run("case1: repeated connect failures open the circuit", func(t *testing.T) {
		port := unusedPort(t)

		c, err := New(TextProtocol,
			WithCircuitBreaker(NewBreakerConfig(1, time.Minute, time.Minute)))
		require.NoError(t, err)
		require.NoError(t, c.AddServer("127.0.0.1", port))

		for i := 0; i < 3; i++ {
			assert.ErrorIs(t, c.Get(&Item{Key: []byte("mykey")}), ErrConnect)
		}
		assert.ErrorIs(t, c.Get(&Item{Key: []byte("mykey")}), gobreaker.ErrOpenState)
	})

	t.Run("case2: misses never open the circuit", func(t *testing.T) {
		cache := newFakeCache()
		host, port := startTextServer(t, cache, 0)

		c, err := New(TextProtocol,
			WithCircuitBreaker(NewBreakerConfig(1, time.Minute, time.Minute)))
		require.NoError(t, err)
		require.NoError(t, c.AddServer(host, port))
		t.Cleanup(func() { _ = c.Close() })

		for i := 0; i < 5; i++ {
			assert.ErrorIs(t, c.Get(&Item{Key: []byte("absent")}), ErrCacheMiss)
		}

		require.NoError(t, c.Set(&Item{Key: []byte("mykey"), Data: []byte("v")}))
		require.NoError(t, c.Get(&Item{Key: []byte("mykey")}))
	})
}

func Test_Client_routesAcrossServers(t *testing.T) {
	c, err := New(TextProtocol)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	caches := make([]*fakeCache, 3)
	for i := range caches {
		caches[i] = newFakeCache()
		host, port := startTextServer(t, caches[i], 0)
		require.NoError(t, c.AddServer(host, port))
	}

	sh := hash.NewSimple()
	for i := 0; i < 30; i++ {
		key := fmt.Sprintf("mykey-%d", i)
		require.NoError(t, c.Set(&Item{Key: []byte(key), Data: []byte("payload")}))

		want := int(sh.Hash([]byte(key)) % 3)
		for s, cache := range caches {
			assert.Equal(t, s == want, cache.has(key), "key %s on server %d", key, s)
		}
	}

	// Every key is reachable again through the same routing.
	for i := 0; i < 30; i++ {
		got := &Item{Key: []byte(fmt.Sprintf("mykey-%d", i))}
		require.NoError(t, c.Get(got))
		assert.Equal(t, "payload", string(got.Data))
	}
}
