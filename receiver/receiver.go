// Package receiver implements the receiving side of a transfer
// session: it walks the destination tree computing basis signatures,
// requests each file needing an update, and applies the generator's
// delta token stream to reconstruct the file (spec §4.11).
package receiver

import (
	"github.com/oferchen/rsync-sub007/internal/digest"
	"github.com/oferchen/rsync-sub007/internal/rsyncflags"
	"github.com/oferchen/rsync-sub007/internal/rsyncos"
	"github.com/oferchen/rsync-sub007/internal/rsyncversion"
)

// Config bundles the session parameters a Receiver needs once the
// handshake has completed, mirroring generator.Config on the other
// side of the connection.
type Config struct {
	Protocol     rsyncversion.ProtocolVersion
	CompatFlags  rsyncflags.CompatibilityFlags
	ChecksumAlg  digest.Algorithm
	ChecksumSeed int32
	DestRoot     string
	Env          *rsyncos.Env
}

// Receiver drives the receiver-side state machine of spec §4.11
// against an already-received file list.
type Receiver struct {
	cfg Config
}

// New returns a Receiver configured by cfg.
func New(cfg Config) *Receiver {
	if cfg.Env == nil {
		cfg.Env = rsyncos.New(nil, nil, nil)
	}
	return &Receiver{cfg: cfg}
}
