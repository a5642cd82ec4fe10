package handshake

import (
	"fmt"
	"io"

	"github.com/oferchen/rsync-sub007/internal/rsyncversion"
	"github.com/oferchen/rsync-sub007/internal/wireformat"
)

// Binary performs the protocol-version exchange for the binary
// remote-shell dialect (spec §4.8): both sides write their own 4-byte
// little-endian advertisement and read the peer's, then each clamps the
// peer's value into the locally supported range.
func Binary(rw io.ReadWriter, maxProtocol rsyncversion.ProtocolVersion) (rsyncversion.ProtocolVersion, error) {
	local := int32(maxProtocol)
	if err := writeInt32(rw, local); err != nil {
		return 0, fmt.Errorf("handshake: writing protocol advertisement: %w", err)
	}

	peer, err := readInt32(rw)
	if err != nil {
		return 0, fmt.Errorf("handshake: reading peer protocol advertisement: %w", err)
	}

	clamped, err := rsyncversion.Clamp(int(peer))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedVersion, err)
	}
	return clamped, nil
}

func writeInt32(w io.Writer, v int32) error {
	buf := wireformat.EncodeLegacyInt32(nil, v)
	_, err := w.Write(buf)
	return err
}

func readInt32(r io.Reader) (int32, error) {
	return wireformat.DecodeLegacyInt32(r)
}
