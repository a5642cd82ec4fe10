package negotiate

import (
	"bytes"
	"io"
)

// Stream wraps a transport so that the bytes consumed by a Sniffer
// during classification are transparently replayed to subsequent reads,
// letting every later layer (handshake, multiplex framer) treat the
// connection as an ordinary io.ReadWriter that never lost its opening
// bytes.
type Stream struct {
	prefix     *bytes.Reader
	underlying io.ReadWriter
}

// NewStream builds a Stream from the transport and the prefix bytes a
// Sniffer already consumed from it.
func NewStream(underlying io.ReadWriter, prefix []byte) *Stream {
	return &Stream{prefix: bytes.NewReader(prefix), underlying: underlying}
}

// Read first drains the buffered prefix, then falls through to the
// underlying transport.
func (s *Stream) Read(p []byte) (int, error) {
	if s.prefix.Len() > 0 {
		return s.prefix.Read(p)
	}
	return s.underlying.Read(p)
}

// Write passes through to the underlying transport unchanged.
func (s *Stream) Write(p []byte) (int, error) {
	return s.underlying.Write(p)
}

// Parts is a Stream decomposed into its buffered prefix and the raw
// underlying transport, for callers (such as the multiplex framer
// constructors) that want to wrap the two independently rather than
// through the combined io.ReadWriter.
type Parts struct {
	Prefix     []byte
	Underlying io.ReadWriter
}

// Decompose splits s into its Parts, consuming no further bytes: the
// full original prefix buffer (including any bytes already read off it)
// is not recoverable once partially consumed, so Decompose is meant to
// be called before any Read has drained the prefix.
func (s *Stream) Decompose() Parts {
	remaining := make([]byte, s.prefix.Len())
	_, _ = s.prefix.Read(remaining)
	return Parts{Prefix: remaining, Underlying: s.underlying}
}

// TryMapInnerError maps err to io.EOF when it is io.ErrUnexpectedEOF
// itself, so callers see a single "connection closed" signal rather than
// distinguishing "closed while replaying the sniffed prefix" from "closed
// on the live transport". Every other error, including one that wraps
// io.ErrUnexpectedEOF, is returned unchanged. The transport's state is
// not consulted, and the result carries neither the transport nor the
// buffered prefix.
func TryMapInnerError(err error) error {
	if err == io.ErrUnexpectedEOF {
		return io.EOF
	}
	return err
}
