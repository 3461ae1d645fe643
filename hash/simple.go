package hash

// Simple is the historical multiply/shift accumulate hash: fast,
// order-dependent and deliberately not uniform. The accumulator is seeded
// with the first key byte and then folds every byte, first byte included
// again, as h = h<<4 + b over 32 bits.
type Simple struct{}

func NewSimple() *Simple {
	return &Simple{}
}

func (h *Simple) Hash(key []byte) uint64 {
	if len(key) == 0 {
		return 0
	}

	acc := uint32(key[0])
	for _, b := range key {
		acc = acc<<4 + uint32(b)
	}
	return uint64(acc)
}
