package hash

import "encoding/binary"

const (
	mixC1 = uint64(0x87c37b91114253d5)
	mixC2 = uint64(0x4cf5ad432745937f)
)

// Murmur3 is a 64-bit murmur3 variant, usable when keys need a better
// spread than Simple gives.
type Murmur3 struct {
	seed uint64
}

func NewMurmur3(seed uint64) *Murmur3 {
	return &Murmur3{seed: seed}
}

func (h *Murmur3) Hash(key []byte) uint64 {
	acc := h.seed

	rest := key
	for len(rest) >= 8 {
		k := binary.LittleEndian.Uint64(rest)
		rest = rest[8:]

		k *= mixC1
		k = k<<31 | k>>33
		k *= mixC2

		acc ^= k
		acc = acc<<27 | acc>>37
		acc = acc*5 + 0x52dce729
	}

	if len(rest) > 0 {
		var k uint64
		for i := len(rest) - 1; i >= 0; i-- {
			k = k<<8 | uint64(rest[i])
		}
		k *= mixC1
		k = k<<31 | k>>33
		k *= mixC2
		acc ^= k
	}

	acc ^= uint64(len(key))
	acc ^= acc >> 33
	acc *= 0xff51afd7ed558ccd
	acc ^= acc >> 33
	acc *= 0xc4ceb9fe1a85ec53
	acc ^= acc >> 33

	return acc
}
