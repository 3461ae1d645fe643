package hash

import "hash/crc32"

// CRC32 hashes keys with the IEEE polynomial.
type CRC32 struct {
	table *crc32.Table
}

func NewCRC32() *CRC32 {
	return &CRC32{table: crc32.MakeTable(crc32.IEEE)}
}

func (h *CRC32) Hash(key []byte) uint64 {
	return uint64(crc32.Checksum(key, h.table))
}
