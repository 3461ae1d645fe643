// Package libmemc implements a client for a distributed key-value cache
// speaking the memcached wire protocols over TCP.
//
// The client supports both the textual line protocol and the binary framed
// protocol, selected once at construction time, and the classic storage
// commands:
// - add/set/replace
// - get
//
// Servers are registered one by one and each key is routed to exactly one
// of them through a pluggable hash picker, so a pool of independent cache
// instances can be addressed as a single keyspace.
//
// Every call is a blocking, synchronous round trip on the owning server's
// single socket. A Client is NOT safe for concurrent use; callers that
// want parallelism run one Client per worker and share nothing.
package libmemc
