package handshake

import (
	"fmt"
	"io"

	"github.com/oferchen/rsync-sub007/internal/compress"
	"github.com/oferchen/rsync-sub007/internal/digest"
	"github.com/oferchen/rsync-sub007/internal/rsyncflags"
	"github.com/oferchen/rsync-sub007/internal/rsyncversion"
	"github.com/oferchen/rsync-sub007/internal/wireformat"
)

// Setup runs the shared post-handshake setup for protocol >= 30 (spec
// §4.8 tail): compatibility-flag exchange, algorithm negotiation (gated
// on VARINT_FLIST_FLAGS), and checksum-seed exchange. Earlier protocols
// skip straight to the checksum seed (still required for all protocols
// >= 28).
func Setup(rw io.ReadWriter, cfg Config, protocol rsyncversion.ProtocolVersion) (Result, error) {
	res := Result{Protocol: protocol}

	if protocol.AtLeast(30) {
		flags, err := exchangeCompatFlags(rw, cfg)
		if err != nil {
			return res, err
		}
		res.CompatFlags = flags

		if flags.Has(rsyncflags.VarintFlistFlags) {
			algos, err := negotiateAlgorithms(rw, cfg)
			if err != nil {
				return res, err
			}
			res.Algorithms = algos
		}
	}

	if protocol.AtLeast(28) {
		seed, err := exchangeChecksumSeed(rw, cfg.Role)
		if err != nil {
			return res, err
		}
		res.ChecksumSeed = seed
	}

	return res, nil
}

// exchangeCompatFlags performs the unidirectional compat-flags exchange:
// the server writes a varint of its compat bitset, the client reads it
// without echoing (spec §4.8 step 1).
func exchangeCompatFlags(rw io.ReadWriter, cfg Config) (rsyncflags.CompatibilityFlags, error) {
	if cfg.Role == RoleServer {
		buf := wireformat.EncodeVarint(nil, int64(cfg.RequestCompatMask))
		if _, err := rw.Write(buf); err != nil {
			return 0, fmt.Errorf("handshake: writing compat flags: %w", err)
		}
		return cfg.RequestCompatMask, nil
	}

	v, err := wireformat.DecodeVarint(rw)
	if err != nil {
		return 0, fmt.Errorf("handshake: reading compat flags: %w", err)
	}
	return rsyncflags.CompatibilityFlags(uint32(v)), nil
}

// algorithmWireID offsets an enum value by one so that 0 is reserved as
// the list terminator on the wire.
func algorithmWireID[T ~int](a T) int64 { return int64(a) + 1 }

func writeAlgorithmList[T ~int](w io.Writer, prefs []T) error {
	for _, a := range prefs {
		if _, err := w.Write(wireformat.EncodeVarint(nil, algorithmWireID(a))); err != nil {
			return err
		}
	}
	_, err := w.Write(wireformat.EncodeVarint(nil, 0))
	return err
}

func readAlgorithmList(r io.Reader) ([]int, error) {
	var out []int
	for {
		v, err := wireformat.DecodeVarint(r)
		if err != nil {
			return nil, err
		}
		if v == 0 {
			return out, nil
		}
		out = append(out, int(v-1))
	}
}

// firstMutual returns the first entry of ours that also appears in
// theirs, implementing "first mutual algorithm, ordered by server
// preference" (spec §4.8 step 2): callers pass the server's list as
// ours regardless of which role they're running as, since the server's
// order is always the tiebreaker.
func firstMutual(serverOrder []int, theirs []int) (int, bool) {
	present := make(map[int]bool, len(theirs))
	for _, v := range theirs {
		present[v] = true
	}
	for _, v := range serverOrder {
		if present[v] {
			return v, true
		}
	}
	return 0, false
}

// negotiateAlgorithms exchanges ordered checksum (and, if requested,
// compression) preference lists. In daemon mode the server sends first
// and the client reads silently, so the server takes its own first
// preference and the client the first server-listed entry it also lists;
// in shell mode both sides send then read (spec §4.8 step 2).
func negotiateAlgorithms(rw io.ReadWriter, cfg Config) (*NegotiatedAlgorithms, error) {
	checksumPrefs := cfg.ChecksumPrefs
	if len(checksumPrefs) == 0 {
		checksumPrefs = []digest.Algorithm{digest.MD5, digest.MD4}
	}

	var (
		localChecksumIDs []int
		peerChecksumIDs  []int
		err              error
	)

	isDaemonServerSendsFirst := cfg.Mode == ModeLegacyDaemon

	sendChecksums := func() error {
		ids := make([]int, len(checksumPrefs))
		for i, a := range checksumPrefs {
			ids[i] = int(a)
		}
		localChecksumIDs = ids
		return writeAlgorithmList(rw, checksumPrefs)
	}
	recvChecksums := func() error {
		ids, err := readAlgorithmList(rw)
		peerChecksumIDs = ids
		return err
	}

	switch {
	case isDaemonServerSendsFirst && cfg.Role == RoleServer:
		if err = sendChecksums(); err != nil {
			return nil, fmt.Errorf("handshake: writing checksum preferences: %w", err)
		}
		// The daemon client sends no list back, so the server settles on
		// its own first preference.
		peerChecksumIDs = localChecksumIDs
	case isDaemonServerSendsFirst && cfg.Role == RoleClient:
		if err = recvChecksums(); err != nil {
			return nil, fmt.Errorf("handshake: reading checksum preferences: %w", err)
		}
		// The client's own list is not sent but still limits what it accepts.
		for _, a := range checksumPrefs {
			localChecksumIDs = append(localChecksumIDs, int(a))
		}
	default: // shell mode: both sides send then read
		if err = sendChecksums(); err != nil {
			return nil, fmt.Errorf("handshake: writing checksum preferences: %w", err)
		}
		if err = recvChecksums(); err != nil {
			return nil, fmt.Errorf("handshake: reading checksum preferences: %w", err)
		}
	}

	serverIDs := localChecksumIDs
	theirIDs := peerChecksumIDs
	if cfg.Role == RoleClient {
		serverIDs, theirIDs = peerChecksumIDs, localChecksumIDs
	}
	checksumID, ok := firstMutual(serverIDs, theirIDs)
	if !ok {
		return nil, ErrNoMutualAlgorithm
	}

	algos := &NegotiatedAlgorithms{Checksum: digest.Algorithm(checksumID)}

	if cfg.WantCompression {
		compressionPrefs := cfg.CompressionPrefs
		if len(compressionPrefs) == 0 {
			compressionPrefs = []compress.Algorithm{compress.Zstd, compress.Zlib, compress.Lz4}
		}

		var localCompIDs, peerCompIDs []int
		sendComp := func() error {
			ids := make([]int, len(compressionPrefs))
			for i, a := range compressionPrefs {
				ids[i] = int(a)
			}
			localCompIDs = ids
			return writeAlgorithmList(rw, compressionPrefs)
		}
		recvComp := func() error {
			ids, err := readAlgorithmList(rw)
			peerCompIDs = ids
			return err
		}

		switch {
		case isDaemonServerSendsFirst && cfg.Role == RoleServer:
			if err = sendComp(); err != nil {
				return nil, fmt.Errorf("handshake: writing compression preferences: %w", err)
			}
			peerCompIDs = localCompIDs
		case isDaemonServerSendsFirst && cfg.Role == RoleClient:
			if err = recvComp(); err != nil {
				return nil, fmt.Errorf("handshake: reading compression preferences: %w", err)
			}
			for _, a := range compressionPrefs {
				localCompIDs = append(localCompIDs, int(a))
			}
		default:
			if err = sendComp(); err != nil {
				return nil, fmt.Errorf("handshake: writing compression preferences: %w", err)
			}
			if err = recvComp(); err != nil {
				return nil, fmt.Errorf("handshake: reading compression preferences: %w", err)
			}
		}

		serverCompIDs, theirCompIDs := localCompIDs, peerCompIDs
		if cfg.Role == RoleClient {
			serverCompIDs, theirCompIDs = peerCompIDs, localCompIDs
		}
		compID, ok := firstMutual(serverCompIDs, theirCompIDs)
		if !ok {
			return nil, ErrNoMutualAlgorithm
		}
		algos.Compression = compress.Algorithm(compID)
	}

	return algos, nil
}

// exchangeChecksumSeed performs the seed exchange: the server writes a
// 4-byte little-endian i32, the client reads it (spec §4.8 step 3).
// Servers derive their seed from the wall clock and process ID, matching
// the teacher's sessionChecksumSeed placeholder in
// internal/rsyncd/rsyncd.go generalized from a hardcoded constant into
// an actually-randomized value.
func exchangeChecksumSeed(rw io.ReadWriter, role Role) (int32, error) {
	if role == RoleServer {
		seed := newChecksumSeed()
		if err := writeInt32(rw, seed); err != nil {
			return 0, fmt.Errorf("handshake: writing checksum seed: %w", err)
		}
		return seed, nil
	}

	seed, err := readInt32(rw)
	if err != nil {
		return 0, fmt.Errorf("handshake: reading checksum seed: %w", err)
	}
	return seed, nil
}
