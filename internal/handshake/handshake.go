// Package handshake implements the binary and legacy daemon handshakes
// and the shared post-handshake setup (compatibility flags, algorithm
// negotiation, checksum seed) described in spec §4.8.
package handshake

import (
	"fmt"

	"github.com/oferchen/rsync-sub007/internal/compress"
	"github.com/oferchen/rsync-sub007/internal/digest"
	"github.com/oferchen/rsync-sub007/internal/rsyncflags"
	"github.com/oferchen/rsync-sub007/internal/rsyncversion"
)

// Role distinguishes which side of the session this process plays during
// setup, since several steps (who sends first in algorithm negotiation,
// when multiplexed input activates) are role-dependent.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// Mode distinguishes the transport dialect, decided by the negotiation
// prologue before a Handshake is attempted.
type Mode int

const (
	ModeBinary Mode = iota
	ModeLegacyDaemon
)

// NegotiatedAlgorithms is the mutually agreed checksum (and, when
// compression was requested, compression) algorithm pair, or nil when
// VARINT_FLIST_FLAGS wasn't negotiated and no algorithm exchange ran.
type NegotiatedAlgorithms struct {
	Checksum    digest.Algorithm
	Compression compress.Algorithm
}

// Result is the outcome of a completed handshake plus shared setup.
type Result struct {
	Protocol    rsyncversion.ProtocolVersion
	CompatFlags rsyncflags.CompatibilityFlags
	Algorithms  *NegotiatedAlgorithms
	ChecksumSeed int32
}

// Config bundles caller-supplied policy: the protocol ceiling to
// advertise, the compat-flags mask to request, and the ordered algorithm
// preference lists this side offers: the server's order decides among
// the algorithms both lists contain (in daemon mode only the server's
// list is sent).
type Config struct {
	Role              Role
	Mode              Mode
	MaxProtocol       rsyncversion.ProtocolVersion
	RequestCompatMask rsyncflags.CompatibilityFlags
	ChecksumPrefs     []digest.Algorithm
	CompressionPrefs  []compress.Algorithm
	WantCompression   bool
}

var (
	ErrUnsupportedVersion = fmt.Errorf("handshake: peer protocol version unsupported")
	ErrNoMutualAlgorithm  = fmt.Errorf("handshake: no mutually supported algorithm")
)
