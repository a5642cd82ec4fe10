package digest

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// XXH64DigestLen is the fixed XXH64 digest length (a packed 8-byte
// little-endian value, matching the on-wire width rsync uses for this
// checksum family).
const XXH64DigestLen = 8

// xxh64Digester wraps cespare/xxhash/v2's streaming implementation, the
// XXH64 package most represented across the retrieval corpus
// (hemzaz-freightliner, runZeroInc-sockstats go.mod both depend on it
// directly).
type xxh64Digester struct {
	h *xxhash.Digest
}

// NewXXH64 returns an XXH64 Digester seeded with seed, matching the
// upstream xxhash seeded-digest construction.
func NewXXH64(seed uint64) Digester {
	return &xxh64Digester{h: xxhash.NewWithSeed(seed)}
}

func (d *xxh64Digester) Update(p []byte) { d.h.Write(p) }

func (d *xxh64Digester) Finalize() []byte {
	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], d.h.Sum64())
	return out[:]
}

func (d *xxh64Digester) Clone() Digester {
	clone := *d.h
	return &xxh64Digester{h: &clone}
}
