package libmemc

import (
	"net"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trondn/libmemc/hash"
)

// Picker decides which of n registered servers owns a key. An
// implementation must be deterministic in (n, key) alone, so a key keeps
// routing to the same server for as long as the cluster size is stable.
// The zero-server and single-server cases never reach the picker.
type Picker interface {
	Pick(n int, key []byte) int
}

// hashPicker reduces a HashFunc modulo the server count.
type hashPicker struct {
	fn hash.HashFunc
}

// NewHashPicker builds a Picker on top of fn.
func NewHashPicker(fn hash.HashFunc) Picker {
	return hashPicker{fn: fn}
}

func (p hashPicker) Pick(n int, key []byte) int {
	return int(p.fn.Hash(key) % uint64(n))
}

// resolveAddr asks the system resolver for a connectable TCP address.
func resolveAddr(host string, port int) (*net.TCPAddr, error) {
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidAddress, "%s port %d: %v", host, port, err)
	}
	return addr, nil
}
