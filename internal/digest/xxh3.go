package digest

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// XXH3_64DigestLen and XXH3_128DigestLen are the fixed digest lengths of
// the two XXH3 variants rsync can negotiate.
const (
	XXH3_64DigestLen  = 8
	XXH3_128DigestLen = 16
)

// xxh3_64Digester and xxh3_128Digester both wrap github.com/zeebo/xxh3's
// streaming *Hasher. Per §4.2, XXH3 streaming is a distinct code path from
// XXH3 one-shot (zeebo/xxh3 exposes xxh3.Hash/xxh3.Hash128 as the fast
// one-shot functions, and New()/NewSeed() for the streaming construction);
// this package always uses the streaming Hasher for Digester so that
// Update can be called incrementally, and reserves the one-shot functions
// for DigestWithSeed below, matching the spec's requirement that tests use
// the streaming reference as the oracle for streaming inputs.
type xxh3_64Digester struct {
	h *xxh3.Hasher
}

// NewXXH3_64 returns an unseeded streaming XXH3-64 Digester.
func NewXXH3_64() Digester { return &xxh3_64Digester{h: xxh3.New()} }

// NewXXH3_64Seeded returns a streaming XXH3-64 Digester seeded with seed.
func NewXXH3_64Seeded(seed uint64) Digester { return &xxh3_64Digester{h: xxh3.NewSeed(seed)} }

func (d *xxh3_64Digester) Update(p []byte) { d.h.Write(p) }

func (d *xxh3_64Digester) Finalize() []byte {
	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], d.h.Sum64())
	return out[:]
}

func (d *xxh3_64Digester) Clone() Digester {
	clone := *d.h
	return &xxh3_64Digester{h: &clone}
}

type xxh3_128Digester struct {
	h *xxh3.Hasher
}

// NewXXH3_128 returns an unseeded streaming XXH3-128 Digester.
func NewXXH3_128() Digester { return &xxh3_128Digester{h: xxh3.New()} }

// NewXXH3_128Seeded returns a streaming XXH3-128 Digester seeded with seed.
func NewXXH3_128Seeded(seed uint64) Digester { return &xxh3_128Digester{h: xxh3.NewSeed(seed)} }

func (d *xxh3_128Digester) Update(p []byte) { d.h.Write(p) }

func (d *xxh3_128Digester) Finalize() []byte {
	sum := d.h.Sum128()
	var out [16]byte
	binary.LittleEndian.PutUint64(out[0:8], sum.Hi)
	binary.LittleEndian.PutUint64(out[8:16], sum.Lo)
	return out[:]
}

func (d *xxh3_128Digester) Clone() Digester {
	clone := *d.h
	return &xxh3_128Digester{h: &clone}
}

// DigestWithSeed computes a one-shot seeded digest for alg, using the
// faster one-shot path (not the streaming Hasher) for the XXH family, and
// the family's native seeding for MD4/MD5/XXH64/XXH3. Algorithms without a
// native seed (SHA-1/256/512) ignore seed.
func DigestWithSeed(alg Algorithm, seed int64, p []byte) []byte {
	switch alg {
	case MD4:
		d := NewMD4(int32(seed))
		d.Update(p)
		return d.Finalize()
	case MD5:
		d := NewMD5(ProperSeed(int32(seed)))
		d.Update(p)
		return d.Finalize()
	case XXH64:
		d := NewXXH64(uint64(seed))
		d.Update(p)
		return d.Finalize()
	case XXH3_64:
		v := xxh3.HashSeed(p, uint64(seed))
		var out [8]byte
		binary.LittleEndian.PutUint64(out[:], v)
		return out[:]
	case XXH3_128:
		v := xxh3.Hash128Seed(p, uint64(seed))
		var out [16]byte
		binary.LittleEndian.PutUint64(out[0:8], v.Hi)
		binary.LittleEndian.PutUint64(out[8:16], v.Lo)
		return out[:]
	default:
		return Digest(alg, p)
	}
}
