package main

import (
	"fmt"
	"io"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trondn/libmemc"
	"github.com/trondn/libmemc/hash"
)

type loadConfig struct {
	servers  []string
	protocol string
	hashName string

	items     int
	valueSize int
	ops       int
	workers   int
	getRatio  int

	withBreaker  bool
	dialTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (cfg *loadConfig) validate() error {
	if len(cfg.servers) == 0 {
		return errors.New("at least one server is required")
	}
	if cfg.items <= 0 {
		return errors.New("items must be positive")
	}
	if cfg.valueSize < 0 || cfg.ops < 0 {
		return errors.New("size and ops must not be negative")
	}
	if cfg.workers <= 0 {
		return errors.New("workers must be positive")
	}
	if cfg.getRatio < 0 || cfg.getRatio > 100 {
		return errors.New("get-ratio must be between 0 and 100")
	}
	return nil
}

func (cfg *loadConfig) proto() (libmemc.Protocol, error) {
	switch cfg.protocol {
	case "text":
		return libmemc.TextProtocol, nil
	case "binary":
		return libmemc.BinaryProtocol, nil
	}
	return 0, errors.Errorf("unknown protocol %q", cfg.protocol)
}

func (cfg *loadConfig) picker() (libmemc.Picker, error) {
	switch cfg.hashName {
	case "simple":
		return libmemc.NewHashPicker(hash.NewSimple()), nil
	case "crc32":
		return libmemc.NewHashPicker(hash.NewCRC32()), nil
	case "murmur3":
		return libmemc.NewHashPicker(hash.NewMurmur3(0)), nil
	case "xxh3":
		return libmemc.NewHashPicker(hash.NewXXH3()), nil
	}
	return nil, errors.Errorf("unknown hash %q", cfg.hashName)
}

// newClient builds one fully wired client. Every worker gets its own:
// the client is single-threaded by design.
func newClient(cfg *loadConfig) (*libmemc.Client, error) {
	protocol, err := cfg.proto()
	if err != nil {
		return nil, err
	}
	picker, err := cfg.picker()
	if err != nil {
		return nil, err
	}

	opts := []libmemc.ClientOption{
		libmemc.WithPicker(picker),
		libmemc.WithDialTimeout(cfg.dialTimeout),
		libmemc.WithReadTimeout(cfg.readTimeout),
		libmemc.WithWriteTimeout(cfg.writeTimeout),
	}
	if cfg.withBreaker {
		opts = append(opts,
			libmemc.WithCircuitBreaker(libmemc.NewBreakerConfig(1, 30*time.Second, 10*time.Second)))
	}

	client, err := libmemc.New(protocol, opts...)
	if err != nil {
		return nil, err
	}
	for _, s := range cfg.servers {
		host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
		if err != nil {
			_ = client.Close()
			return nil, errors.Wrapf(err, "server %q", s)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			_ = client.Close()
			return nil, errors.Wrapf(err, "server %q", s)
		}
		if err := client.AddServer(host, port); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return client, nil
}

func runLoad(w io.Writer, cfg *loadConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	fmt.Fprintf(w, "%d worker(s) against %s, %d item(s) of %d byte(s), %s protocol, %s hash\n",
		cfg.workers, strings.Join(cfg.servers, ","), cfg.items, cfg.valueSize, cfg.protocol, cfg.hashName)

	rep, err := runPhase(cfg, "populate", populateOps)
	if err != nil {
		return err
	}
	rep.print(w)

	if cfg.ops > 0 {
		rep, err = runPhase(cfg, "mixed", mixedOps)
		if err != nil {
			return err
		}
		rep.print(w)
	}
	return nil
}

// opsFunc drives one worker's share of a phase.
type opsFunc func(cfg *loadConfig, client *libmemc.Client, worker int, rec *recorder)

func runPhase(cfg *loadConfig, label string, run opsFunc) (*report, error) {
	clients := make([]*libmemc.Client, cfg.workers)
	defer func() {
		for _, c := range clients {
			if c != nil {
				_ = c.Close()
			}
		}
	}()
	for i := range clients {
		c, err := newClient(cfg)
		if err != nil {
			return nil, err
		}
		clients[i] = c
	}

	recs := make([]*recorder, cfg.workers)
	var wg sync.WaitGroup
	start := time.Now()
	for i := range clients {
		recs[i] = &recorder{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			run(cfg, clients[i], i, recs[i])
		}(i)
	}
	wg.Wait()

	rep := &report{label: label, elapsed: time.Since(start)}
	for _, rec := range recs {
		rep.absorb(rec)
	}
	for _, c := range clients {
		rep.addStats(c.Stats())
	}
	return rep, nil
}

// populateOps stores every n-th key of the working set, n being the
// worker's position, so the phase covers each key exactly once.
func populateOps(cfg *loadConfig, client *libmemc.Client, worker int, rec *recorder) {
	item := &libmemc.Item{Data: testPattern(cfg.valueSize)}
	var keyBuf []byte
	for n := worker; n < cfg.items; n += cfg.workers {
		keyBuf = keyName(keyBuf, n)
		item.Key = keyBuf
		start := time.Now()
		rec.record(start, client.Set(item))
	}
}

// mixedOps issues fetches and stores against random keys of the working
// set, in the configured ratio. Each worker runs its own deterministic
// random sequence.
func mixedOps(cfg *loadConfig, client *libmemc.Client, worker int, rec *recorder) {
	r := rand.New(rand.NewSource(int64(worker) + 1))
	setItem := &libmemc.Item{Data: testPattern(cfg.valueSize)}
	getItem := &libmemc.Item{Data: make([]byte, 0, cfg.valueSize)}
	var keyBuf []byte

	for i := 0; i < cfg.ops; i++ {
		keyBuf = keyName(keyBuf, r.Intn(cfg.items))
		start := time.Now()
		if r.Intn(100) < cfg.getRatio {
			getItem.Key = keyBuf
			rec.record(start, client.Get(getItem))
		} else {
			setItem.Key = keyBuf
			rec.record(start, client.Set(setItem))
		}
	}
}

// recorder accumulates one worker's timings. Misses and rejected stores
// count as completed operations, not failures.
type recorder struct {
	ops      int
	failures int
	lats     []time.Duration
}

func (r *recorder) record(start time.Time, err error) {
	r.lats = append(r.lats, time.Since(start))
	r.ops++
	if err != nil && !errors.Is(err, libmemc.ErrCacheMiss) && !errors.Is(err, libmemc.ErrNotStored) {
		r.failures++
	}
}

func keyName(buf []byte, n int) []byte {
	buf = append(buf[:0], "mykey-"...)
	return strconv.AppendInt(buf, int64(n), 10)
}

func testPattern(size int) []byte {
	v := make([]byte, size)
	for i := range v {
		v[i] = byte('a' + i%26)
	}
	return v
}
