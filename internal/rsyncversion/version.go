// Package rsyncversion implements the protocol version negotiated between
// rsync peers: a small, totally ordered integer with a fixed supported
// range, the way rsync/compat.c treats PROTOCOL_VERSION.
package rsyncversion

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Oldest and Newest are the inclusive bounds this engine understands.
// Protocols below Oldest are rejected outright; protocols above Newest are
// clamped down to Newest, matching rsync's own forward-compatibility
// behavior during the version exchange.
const (
	Oldest = 28
	Newest = 32
)

// ErrUnsupported is returned by Parse and Clamp when a value falls below
// Oldest or cannot be interpreted as a protocol version at all.
var ErrUnsupported = errors.New("rsyncversion: unsupported protocol version")

// supported lists every protocol version this engine implements, in
// descending order (newest first), matching how compat.c documents the
// fallback chain.
var supported = [...]ProtocolVersion{32, 31, 30, 29, 28}

// Supported returns the descending list of versions this engine can speak.
func Supported() []ProtocolVersion {
	out := make([]ProtocolVersion, len(supported))
	copy(out, supported[:])
	return out
}

// ProtocolVersion is a single byte in [Oldest, Newest]. The zero value is
// not a valid version; always construct one via Parse, Clamp or a literal
// within range.
type ProtocolVersion byte

// Parse reads an ASCII decimal protocol version, tolerating a leading '+'
// and surrounding whitespace (rsync's daemon greeting occasionally pads
// these fields).
func Parse(s string) (ProtocolVersion, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return 0, fmt.Errorf("rsyncversion: empty version string")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("rsyncversion: parse %q: %w", s, err)
	}
	if n < 0 || n > 0xFF {
		return 0, fmt.Errorf("rsyncversion: %d out of byte range: %w", n, ErrUnsupported)
	}
	v := ProtocolVersion(n)
	if n < Oldest {
		return v, fmt.Errorf("rsyncversion: %d below oldest supported (%d): %w", n, Oldest, ErrUnsupported)
	}
	return v, nil
}

// Clamp maps a peer-advertised version into the supported range: values
// above Newest are clamped down to Newest (we simply don't speak the newer
// dialect yet, but can interoperate at our own ceiling); values below
// Oldest remain an error.
func Clamp(peer int) (ProtocolVersion, error) {
	if peer < Oldest {
		return 0, fmt.Errorf("rsyncversion: peer version %d below oldest supported (%d): %w", peer, Oldest, ErrUnsupported)
	}
	if peer > Newest {
		return Newest, nil
	}
	return ProtocolVersion(peer), nil
}

// IsSupported reports whether v falls within [Oldest, Newest].
func (v ProtocolVersion) IsSupported() bool {
	return v >= Oldest && v <= Newest
}

// Int returns v as a plain int, handy for arithmetic and formatting.
func (v ProtocolVersion) Int() int { return int(v) }

// String implements fmt.Stringer.
func (v ProtocolVersion) String() string { return strconv.Itoa(int(v)) }

// Compare returns -1, 0 or 1 as v is less than, equal to, or greater than o.
func (v ProtocolVersion) Compare(o ProtocolVersion) int {
	switch {
	case v < o:
		return -1
	case v > o:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether v >= o, the comparison used throughout the engine
// to gate protocol-dependent behavior ("for protocols >= 30...").
func (v ProtocolVersion) AtLeast(o ProtocolVersion) bool { return v >= o }

// OffsetFromOldest returns how many versions newer than Oldest v is; used to
// index into per-version tables sized len(Supported()).
func (v ProtocolVersion) OffsetFromOldest() int { return int(v) - Oldest }

// OffsetFromNewest returns how many versions older than Newest v is.
func (v ProtocolVersion) OffsetFromNewest() int { return Newest - int(v) }

// Next returns the next newer supported version and true, or false if v is
// already Newest.
func (v ProtocolVersion) Next() (ProtocolVersion, bool) {
	if v >= Newest {
		return 0, false
	}
	return v + 1, true
}

// Prev returns the next older supported version and true, or false if v is
// already Oldest.
func (v ProtocolVersion) Prev() (ProtocolVersion, bool) {
	if v <= Oldest {
		return 0, false
	}
	return v - 1, true
}
