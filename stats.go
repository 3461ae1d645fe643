package libmemc

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// ClientStats are cumulative operation counters for one Client. The
// counters are updated atomically, so a snapshot may be taken from
// another goroutine while the client is driven.
type ClientStats struct {
	Gets      uint64 // fetches issued
	GetHits   uint64 // fetches that found the key
	GetMisses uint64 // fetches answered with a miss
	Stores    uint64 // stores issued, all commands
	NotStored uint64 // stores the server rejected
	Errors    uint64 // hard failures across all operations
}

type statsCollector struct {
	stats ClientStats
}

func (s *statsCollector) recordGet(err error) {
	atomic.AddUint64(&s.stats.Gets, 1)
	switch {
	case err == nil:
		atomic.AddUint64(&s.stats.GetHits, 1)
	case errors.Is(err, ErrCacheMiss):
		atomic.AddUint64(&s.stats.GetMisses, 1)
	default:
		atomic.AddUint64(&s.stats.Errors, 1)
	}
}

func (s *statsCollector) recordStore(err error) {
	atomic.AddUint64(&s.stats.Stores, 1)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotStored):
		atomic.AddUint64(&s.stats.NotStored, 1)
	default:
		atomic.AddUint64(&s.stats.Errors, 1)
	}
}

func (s *statsCollector) snapshot() ClientStats {
	return ClientStats{
		Gets:      atomic.LoadUint64(&s.stats.Gets),
		GetHits:   atomic.LoadUint64(&s.stats.GetHits),
		GetMisses: atomic.LoadUint64(&s.stats.GetMisses),
		Stores:    atomic.LoadUint64(&s.stats.Stores),
		NotStored: atomic.LoadUint64(&s.stats.NotStored),
		Errors:    atomic.LoadUint64(&s.stats.Errors),
	}
}
