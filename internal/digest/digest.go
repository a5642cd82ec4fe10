// Package digest implements the strong-checksum family used to
// disambiguate rolling-checksum collisions and to verify whole-file
// transfers: MD4, MD5 (with rsync's seed quirks), SHA-1/256/512, XXH64 and
// XXH3-64/128.
//
// All algorithms share the Digester capability interface so that the
// session layer can select an implementation at setup time from the
// negotiated algorithm identifier without a type switch at every call site.
package digest

// Digester is the uniform streaming interface every strong-digest
// implementation satisfies.
type Digester interface {
	// Update folds p into the running digest.
	Update(p []byte)
	// Finalize returns the digest bytes computed so far. It does not
	// consume the Digester; callers may continue calling Update.
	Finalize() []byte
	// Clone returns an independent copy of the Digester's current state,
	// so an in-progress stream can be forked (e.g. to finalize a prefix
	// while continuing to extend the original).
	Clone() Digester
}

// Algorithm identifies one of the strong-digest families by the on-wire
// checksum-negotiation identifier.
type Algorithm int

const (
	MD4 Algorithm = iota
	MD5
	SHA1
	SHA256
	SHA512
	XXH64
	XXH3_64
	XXH3_128
)

// DigestLen returns the fixed digest length in bytes for alg.
func DigestLen(alg Algorithm) int {
	switch alg {
	case MD4:
		return MD4DigestLen
	case MD5:
		return MD5DigestLen
	case SHA1:
		return SHA1DigestLen
	case SHA256:
		return SHA256DigestLen
	case SHA512:
		return SHA512DigestLen
	case XXH64:
		return XXH64DigestLen
	case XXH3_64:
		return XXH3_64DigestLen
	case XXH3_128:
		return XXH3_128DigestLen
	default:
		return 0
	}
}

// String renders the algorithm's wire name, as exchanged during algorithm
// negotiation (§4.8).
func (a Algorithm) String() string {
	switch a {
	case MD4:
		return "md4"
	case MD5:
		return "md5"
	case SHA1:
		return "sha1"
	case SHA256:
		return "sha256"
	case SHA512:
		return "sha512"
	case XXH64:
		return "xxh64"
	case XXH3_64:
		return "xxh3-64"
	case XXH3_128:
		return "xxh3-128"
	default:
		return "unknown"
	}
}

// New constructs an unseeded Digester for alg. For algorithms that require
// a seed to match upstream behavior (MD4, XXH64, XXH3), New is equivalent
// to seeding with the family's zero value; sessions that negotiate a
// checksum seed should use the per-family WithSeed constructors directly
// (NewMD4, NewMD5, NewXXH64, ...) instead of this convenience dispatcher.
func New(alg Algorithm) Digester {
	switch alg {
	case MD4:
		return NewMD4(0)
	case MD5:
		return NewMD5(Md5Seed{})
	case SHA1:
		return NewSHA1()
	case SHA256:
		return NewSHA256()
	case SHA512:
		return NewSHA512()
	case XXH64:
		return NewXXH64(0)
	case XXH3_64:
		return NewXXH3_64()
	case XXH3_128:
		return NewXXH3_128()
	default:
		panic("digest: unknown algorithm")
	}
}

// Digest is a one-shot convenience: New(alg), Update(p), Finalize().
func Digest(alg Algorithm, p []byte) []byte {
	d := New(alg)
	d.Update(p)
	return d.Finalize()
}
