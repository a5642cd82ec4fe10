package digest

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
)

// SHA1DigestLen, SHA256DigestLen and SHA512DigestLen are the fixed digest
// lengths of the corresponding stdlib algorithms. rsync added these as
// optional stronger whole-file/block checksums; none of them take a seed
// (the seed-mixing quirks are specific to MD4/MD5's legacy history and to
// the non-cryptographic XXH family).
const (
	SHA1DigestLen   = sha1.Size
	SHA256DigestLen = sha256.Size
	SHA512DigestLen = sha512.Size
)

// cloneableHash is satisfied by every stdlib crypto/sha* digest type as of
// Go 1.22 or later: each implements encoding.BinaryMarshaler/Unmarshaler in
// addition to hash.Hash, which this package uses to support Digester.Clone
// without depending on internal package state.
type cloneableHash struct {
	h hash.Hash
}

func (d *cloneableHash) Update(p []byte)  { d.h.Write(p) }
func (d *cloneableHash) Finalize() []byte { return d.h.Sum(nil) }

func (d *cloneableHash) Clone() Digester {
	type binaryState interface {
		MarshalBinary() ([]byte, error)
	}
	type binaryRestore interface {
		UnmarshalBinary([]byte) error
	}
	bs, ok := d.h.(binaryState)
	if !ok {
		panic("digest: hash implementation does not support state cloning")
	}
	state, err := bs.MarshalBinary()
	if err != nil {
		panic("digest: MarshalBinary: " + err.Error())
	}
	fresh := newSameKind(d.h)
	if br, ok := fresh.(binaryRestore); ok {
		if err := br.UnmarshalBinary(state); err != nil {
			panic("digest: UnmarshalBinary: " + err.Error())
		}
	}
	return &cloneableHash{h: fresh}
}

// newSameKind constructs a fresh zero-valued hash.Hash of the same concrete
// algorithm as h, so Clone can restore marshaled state into it.
func newSameKind(h hash.Hash) hash.Hash {
	switch h.Size() {
	case sha1.Size:
		return sha1.New()
	case sha256.Size:
		return sha256.New()
	case sha512.Size:
		return sha512.New()
	default:
		panic("digest: unknown hash kind for cloning")
	}
}

// NewSHA1 returns an unseeded SHA-1 Digester.
func NewSHA1() Digester { return &cloneableHash{h: sha1.New()} }

// NewSHA256 returns an unseeded SHA-256 Digester.
func NewSHA256() Digester { return &cloneableHash{h: sha256.New()} }

// NewSHA512 returns an unseeded SHA-512 Digester.
func NewSHA512() Digester { return &cloneableHash{h: sha512.New()} }
