// Package hash provides the key distribution functions used to pick a
// cache server for a key.
package hash

// HashFunc maps a key to a 64-bit value. Implementations must be pure:
// the same key always hashes to the same value, with no hidden state, so
// that key routing stays deterministic for a fixed cluster size.
type HashFunc interface {
	Hash(key []byte) uint64
}
