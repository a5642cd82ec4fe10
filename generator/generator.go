// Package generator implements the sending side of a transfer session:
// building and writing the file list, then driving the per-file
// request/response loop that produces delta token streams against the
// peer's basis signatures (spec §4.10).
package generator

import (
	"github.com/oferchen/rsync-sub007/internal/digest"
	"github.com/oferchen/rsync-sub007/internal/rsyncflags"
	"github.com/oferchen/rsync-sub007/internal/rsyncos"
	"github.com/oferchen/rsync-sub007/internal/rsyncversion"
)

// Config bundles the session parameters a Generator needs once the
// handshake has completed: the negotiated protocol and compat flags
// fix the wire dialect; ChecksumAlgorithm and ChecksumSeed fix the
// digest used for both block matching and whole-file verification.
type Config struct {
	Protocol       rsyncversion.ProtocolVersion
	CompatFlags    rsyncflags.CompatibilityFlags
	ChecksumAlg    digest.Algorithm
	ChecksumSeed   int32
	NumericIDs     bool
	Env            *rsyncos.Env
}

// Generator drives the sender-side state machine of spec §4.10 against
// a already-built FileList and its full-path lookup table.
type Generator struct {
	cfg Config
}

// New returns a Generator configured by cfg.
func New(cfg Config) *Generator {
	if cfg.Env == nil {
		cfg.Env = rsyncos.New(nil, nil, nil)
	}
	return &Generator{cfg: cfg}
}
