package digest

import (
	"encoding/binary"

	"golang.org/x/crypto/md4"
)

// MD4DigestLen is the fixed MD4 digest length.
const MD4DigestLen = 16

// md4Digester wraps golang.org/x/crypto/md4's hash.Hash, matching the
// checksum the teacher's rsyncd.go computed with the same package (and the
// legacy whole-file checksum of protocols < 30).
type md4Digester struct {
	h md4Hash
}

// md4Hash is the minimal surface of hash.Hash this package depends on; kept
// as its own type alias so Clone() can copy state without reaching into
// crypto internals.
type md4Hash interface {
	Write(p []byte) (int, error)
	Sum(b []byte) []byte
	Reset()
}

// NewMD4 returns an MD4 Digester seeded the way rsync seeds its whole-file
// and block checksums for protocols that use MD4: the 4-byte little-endian
// seed is written into the hash state before any message bytes.
func NewMD4(seed int32) Digester {
	h := md4.New()
	var seedBytes [4]byte
	binary.LittleEndian.PutUint32(seedBytes[:], uint32(seed))
	h.Write(seedBytes[:])
	return &md4Digester{h: h}
}

func (d *md4Digester) Update(p []byte) { d.h.Write(p) }

func (d *md4Digester) Finalize() []byte { return d.h.Sum(nil) }

func (d *md4Digester) Clone() Digester {
	// golang.org/x/crypto/md4's concrete type supports neither Clone nor
	// export of internal state, so we fork by re-hashing is not possible
	// without re-feeding bytes; instead we rely on the fact that md4.digest
	// implements encoding.BinaryMarshaler/Unmarshaler in recent x/crypto
	// releases, which we use to snapshot and restore state.
	type binaryState interface {
		MarshalBinary() ([]byte, error)
	}
	type binaryRestore interface {
		UnmarshalBinary([]byte) error
	}
	bs, ok := d.h.(binaryState)
	if !ok {
		// No fallback: without the marshaler the state cannot be copied,
		// so this panics rather than returning a wrong digest.
		panic("digest: md4 implementation does not support state cloning")
	}
	state, err := bs.MarshalBinary()
	if err != nil {
		panic("digest: md4 MarshalBinary: " + err.Error())
	}
	clone := md4.New()
	if br, ok := clone.(binaryRestore); ok {
		if err := br.UnmarshalBinary(state); err != nil {
			panic("digest: md4 UnmarshalBinary: " + err.Error())
		}
	}
	return &md4Digester{h: clone}
}
