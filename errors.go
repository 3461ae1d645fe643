package libmemc

import (
	"github.com/pkg/errors"
)

var (
	// ErrNoServers is returned when an operation is attempted before any
	// server has been registered successfully.
	ErrNoServers = errors.New("no server available")

	// ErrCacheMiss is the fetch outcome for an absent key. It is an
	// ordinary result, not a transport or protocol fault.
	ErrCacheMiss = errors.New("cache miss")

	// ErrNotStored is the store outcome when the server rejects the
	// command, e.g. add on an existing key or replace on a missing one.
	ErrNotStored = errors.New("item not stored")

	ErrInvalidProtocol   = errors.New("invalid protocol")
	ErrInvalidCommand    = errors.New("invalid store command")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrConnect           = errors.New("connect failed")
	ErrIO                = errors.New("i/o failure")
	ErrMalformedResponse = errors.New("malformed response")
	ErrServerError       = errors.New("server error")
)
