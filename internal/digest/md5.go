package digest

import (
	"crypto/md5"
	"encoding/binary"
	"hash"
)

// MD5DigestLen is the fixed MD5 digest length.
const MD5DigestLen = 16

// Md5Seed captures the three seeding modes rsync uses for MD5 whole-file
// and block checksums, depending on whether the negotiated
// CHECKSUM_SEED_FIX compatibility flag is set:
//
//   - None: unseeded, equivalent to plain MD5.
//   - Proper(seed): the 4-byte little-endian seed is prepended to the
//     message (used when CHECKSUM_SEED_FIX is set).
//   - Legacy(seed): the 4-byte little-endian seed is appended to the
//     message (pre-CHECKSUM_SEED_FIX behavior).
//
// The mode is chosen by whoever constructs the Md5Seed. DigestWithSeed
// and the delta package always use ProperSeed, whether or not
// CHECKSUM_SEED_FIX was negotiated; nothing in the session layer
// selects LegacySeed.
type Md5Seed struct {
	mode  md5SeedMode
	value int32
}

type md5SeedMode int

const (
	md5SeedNone md5SeedMode = iota
	md5SeedProper
	md5SeedLegacy
)

// NoSeed returns the unseeded Md5Seed (equivalent to plain MD5).
func NoSeed() Md5Seed { return Md5Seed{mode: md5SeedNone} }

// ProperSeed returns an Md5Seed that prepends seed to the message, the
// canonical ordering selected by CHECKSUM_SEED_FIX.
func ProperSeed(seed int32) Md5Seed { return Md5Seed{mode: md5SeedProper, value: seed} }

// LegacySeed returns an Md5Seed that appends seed to the message, matching
// pre-CHECKSUM_SEED_FIX rsync.
func LegacySeed(seed int32) Md5Seed { return Md5Seed{mode: md5SeedLegacy, value: seed} }

func seedBytesLE(seed int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(seed))
	return b[:]
}

// md5Digester implements Digester on top of the standard library's
// crypto/md5. A third-party SIMD implementation (as vendored by rclone and
// syncthing in the retrieval corpus, e.g. github.com/minio/md5-simd) offers
// a session/server API built around batching many independent digests
// through one SIMD lane; it does not expose a per-stream hash.Hash-style
// Clone(), which §4.2 requires ("Clone so that in-progress streams can be
// forked"). crypto/md5's concrete *digest type does implement
// encoding.BinaryMarshaler, which this package uses to clone state, so the
// standard library is the implementation that actually satisfies the
// capability shape the spec demands; see DESIGN.md.
type md5Digester struct {
	h        hash.Hash
	seed     int32
	appendOn *[]byte // non-nil only for legacy (append) mode; accumulated here and hashed at Finalize
}

// NewMD5 returns an MD5 Digester honoring seed's placement mode.
func NewMD5(seed Md5Seed) Digester {
	h := md5.New()
	switch seed.mode {
	case md5SeedProper:
		h.Write(seedBytesLE(seed.value))
		return &md5Digester{h: h, seed: seed.value}
	case md5SeedLegacy:
		buf := make([]byte, 0, 64)
		return &md5Digester{h: h, seed: seed.value, appendOn: &buf}
	default:
		return &md5Digester{h: h}
	}
}

func (d *md5Digester) Update(p []byte) {
	if d.appendOn != nil {
		*d.appendOn = append(*d.appendOn, p...)
		return
	}
	d.h.Write(p)
}

func (d *md5Digester) Finalize() []byte {
	if d.appendOn != nil {
		h := md5.New()
		h.Write(*d.appendOn)
		h.Write(seedBytesLE(d.legacySeed()))
		return h.Sum(nil)
	}
	return d.h.Sum(nil)
}

func (d *md5Digester) legacySeed() int32 { return d.seed }

func (d *md5Digester) Clone() Digester {
	type binaryState interface {
		MarshalBinary() ([]byte, error)
	}
	type binaryRestore interface {
		UnmarshalBinary([]byte) error
	}
	clone := &md5Digester{h: md5.New(), seed: d.seed}
	if d.appendOn != nil {
		buf := make([]byte, len(*d.appendOn))
		copy(buf, *d.appendOn)
		clone.appendOn = &buf
		return clone
	}
	bs, ok := d.h.(binaryState)
	if !ok {
		panic("digest: md5 implementation does not support state cloning")
	}
	state, err := bs.MarshalBinary()
	if err != nil {
		panic("digest: md5 MarshalBinary: " + err.Error())
	}
	if br, ok := clone.h.(binaryRestore); ok {
		if err := br.UnmarshalBinary(state); err != nil {
			panic("digest: md5 UnmarshalBinary: " + err.Error())
		}
	}
	return clone
}
