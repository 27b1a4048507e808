package levelhash

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// DefaultHashFunc is the default caller-injectable HashFunc, used when
// Options.HashFn1/HashFn2 are left nil. xxhash/v2 exposes no seeded
// constructor, so the seed is folded in by writing it as an 8-byte
// little-endian prefix into a zero-seed digest before the key itself.
func DefaultHashFunc(seed uint64, data []byte) uint64 {
	var d xxhash.Digest
	d.Reset()
	var seedBuf [8]byte
	binary.LittleEndian.PutUint64(seedBuf[:], seed)
	_, _ = d.Write(seedBuf[:])
	_, _ = d.Write(data)
	return d.Sum64()
}
