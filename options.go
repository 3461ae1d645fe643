package libmemc

import (
	"time"

	"github.com/trondn/libmemc/hash"
)

// ClientOption adjusts a Client at construction time.
type ClientOption func(*clientOptions)

type clientOptions struct {
	picker Picker

	// dialTimeout bounds connection establishment. Zero keeps the
	// historical behavior: block until the kernel gives up.
	dialTimeout time.Duration

	// readTimeout and writeTimeout bound individual receive and send
	// calls. Zero means no deadline; a stalled peer blocks the caller.
	readTimeout  time.Duration
	writeTimeout time.Duration

	// newBreaker, when set, builds a circuit breaker for every server as
	// it is registered.
	newBreaker func(addr string) CircuitBreaker
}

func newClientOptions() *clientOptions {
	return &clientOptions{
		picker: NewHashPicker(hash.NewSimple()),
	}
}

// WithPicker replaces the default shift-and-add hash picker. A picker
// with a different hash re-routes most keys, so it has to be chosen
// before any data is stored.
func WithPicker(p Picker) ClientOption {
	return func(o *clientOptions) {
		if p == nil {
			return
		}
		o.picker = p
	}
}

// WithDialTimeout bounds connection establishment. Zero or negative keeps
// the unbounded default.
func WithDialTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.dialTimeout = timeout
		}
	}
}

// WithReadTimeout bounds every receive call. Zero or negative keeps the
// unbounded default.
func WithReadTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.readTimeout = timeout
		}
	}
}

// WithWriteTimeout bounds every send call. Zero or negative keeps the
// unbounded default.
func WithWriteTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.writeTimeout = timeout
		}
	}
}

// WithCircuitBreaker guards each server with its own breaker built by
// newBreaker from the server's address. Misses and rejected stores do not
// count as failures.
func WithCircuitBreaker(newBreaker func(addr string) CircuitBreaker) ClientOption {
	return func(o *clientOptions) {
		o.newBreaker = newBreaker
	}
}
