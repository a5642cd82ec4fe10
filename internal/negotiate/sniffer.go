package negotiate

import (
	"errors"
	"io"
	"syscall"
)

// Sniffer drives a Prologue by reading one byte at a time from an
// io.Reader, retrying on transient Interrupted-style errors (EINTR) and
// reporting io.ErrUnexpectedEOF if the transport closes before a
// dialect decision is reached. It owns the accumulated buffer so callers
// can re-feed those bytes to the legacy-dialect parser without
// reallocating (spec §4.7).
type Sniffer struct {
	r        io.Reader
	prologue *Prologue
}

// NewSniffer returns a Sniffer reading from r.
func NewSniffer(r io.Reader) *Sniffer {
	return &Sniffer{r: r, prologue: NewPrologue()}
}

// Reset brings the sniffer (and its Prologue) back to the initial state
// for reuse on a new connection.
func (s *Sniffer) Reset() {
	s.prologue.Reset()
}

// Sniff reads bytes until the dialect is decided, returning the decided
// Dialect. Buffered() on the returned Prologue exposes the bytes
// consumed so callers can re-feed them into whichever parser the
// dialect implies.
func (s *Sniffer) Sniff() (Dialect, error) {
	var one [1]byte
	for !s.prologue.Complete() {
		n, err := s.r.Read(one[:])
		if n == 1 {
			s.prologue.Feed(one[0])
			continue
		}
		if err == nil {
			continue
		}
		if isInterrupted(err) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return s.prologue.dialect, io.ErrUnexpectedEOF
		}
		return s.prologue.dialect, err
	}
	return s.prologue.dialect, nil
}

// Prologue exposes the underlying classifier, e.g. for Buffered()/
// Observed() after Sniff returns.
func (s *Sniffer) Prologue() *Prologue { return s.prologue }

func isInterrupted(err error) bool {
	return errors.Is(err, syscall.EINTR)
}
