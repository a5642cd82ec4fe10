package handshake

import (
	"os"
	"time"
)

// newChecksumSeed derives a session checksum seed from the wall clock and
// process ID, the same ingredients the teacher's sessionChecksumSeed
// placeholder (internal/rsyncd/rsyncd.go) was left as a TODO for,
// generalized here into an actually-randomized per-session value instead
// of a fixed constant.
func newChecksumSeed() int32 {
	now := time.Now()
	mixed := uint32(now.UnixNano()) ^ uint32(os.Getpid())<<16
	return int32(mixed)
}
