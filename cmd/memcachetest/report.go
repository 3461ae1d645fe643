package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/trondn/libmemc"
)

type report struct {
	label    string
	elapsed  time.Duration
	ops      int
	failures int
	lats     []time.Duration
	stats    libmemc.ClientStats
}

func (r *report) absorb(rec *recorder) {
	r.ops += rec.ops
	r.failures += rec.failures
	r.lats = append(r.lats, rec.lats...)
}

func (r *report) addStats(s libmemc.ClientStats) {
	r.stats.Gets += s.Gets
	r.stats.GetHits += s.GetHits
	r.stats.GetMisses += s.GetMisses
	r.stats.Stores += s.Stores
	r.stats.NotStored += s.NotStored
	r.stats.Errors += s.Errors
}

func (r *report) print(w io.Writer) {
	sort.Slice(r.lats, func(i, j int) bool { return r.lats[i] < r.lats[j] })

	rate := 0.0
	if r.elapsed > 0 {
		rate = float64(r.ops) / r.elapsed.Seconds()
	}
	fmt.Fprintf(w, "%-9s %9d ops %6d failed %12.0f ops/s in %v\n",
		r.label, r.ops, r.failures, rate, r.elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "          avg %v  p50 %v  p95 %v  p99 %v  max %v\n",
		round(average(r.lats)), round(percentile(r.lats, 50)), round(percentile(r.lats, 95)),
		round(percentile(r.lats, 99)), round(percentile(r.lats, 100)))
	fmt.Fprintf(w, "          hits %d  misses %d  rejected %d  errors %d\n",
		r.stats.GetHits, r.stats.GetMisses, r.stats.NotStored, r.stats.Errors)
}

func average(lats []time.Duration) time.Duration {
	if len(lats) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range lats {
		total += l
	}
	return total / time.Duration(len(lats))
}

// percentile reads from a sorted slice; p is in percent, 100 gives the
// maximum.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := int(float64(len(sorted)) * p / 100)
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Microsecond)
}
