// Package rollsum implements rsync's rolling 32-bit checksum: an
// Adler-style sliding sum cheap enough to recompute byte-by-byte as a
// candidate match window slides across a file (rsync/checksum.c:get_checksum1).
package rollsum

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// maxWindow bounds the window length accepted by roll-style operations at
// 2^32 bytes, a sanity bound far above rsync's own block-size ceiling
// rather than a hard protocol limit.
const maxWindow = 1 << 32

// ErrEmptyWindow is returned by Roll/RollMany when the checksum has no bytes
// folded in yet (count == 0): there is nothing to roll out.
var ErrEmptyWindow = errors.New("rollsum: roll over empty window")

// ErrMismatchedSliceLength is returned by RollMany when the out/in slices
// differ in length.
var ErrMismatchedSliceLength = errors.New("rollsum: mismatched slice length")

// ErrWindowTooLarge is returned when a caller-specified window length
// exceeds maxWindow.
var ErrWindowTooLarge = errors.New("rollsum: window too large")

// Checksum accumulates the two halves of rsync's rolling checksum:
// sum1 is the plain byte sum mod 2^16, sum2 is the sum of the running sum1
// values mod 2^16 (an Adler-32-like construction specialized for streaming
// window rolls).
type Checksum struct {
	sum1  uint16
	sum2  uint16
	count uint64
}

// New returns a zero-valued Checksum ready to accept bytes.
func New() Checksum { return Checksum{} }

// Update folds every byte of p into the checksum.
func (c *Checksum) Update(p []byte) {
	var s1, s2 = uint32(c.sum1), uint32(c.sum2)
	for _, b := range p {
		s1 += uint32(b)
		s2 += s1
	}
	c.sum1 = uint16(s1)
	c.sum2 = uint16(s2)
	c.count += uint64(len(p))
}

// UpdateByte is the single-byte specialization of Update.
func (c *Checksum) UpdateByte(b byte) {
	c.sum1 += uint16(b)
	c.sum2 += c.sum1
	c.count++
}

// UpdateVectored is semantically equivalent to concatenating slices and
// calling Update once.
func (c *Checksum) UpdateVectored(slices [][]byte) {
	for _, s := range slices {
		c.Update(s)
	}
}

// Roll ejects out (the byte leaving the window at the front) and ingests in
// (the byte entering at the back), leaving count unchanged. It requires at
// least one byte already folded in.
func (c *Checksum) Roll(out, in byte) error {
	if c.count == 0 {
		return ErrEmptyWindow
	}
	n := uint16(c.count)
	c.sum1 = c.sum1 - uint16(out) + uint16(in)
	c.sum2 = c.sum2 - n*uint16(out) + c.sum1
	return nil
}

// RollMany is the vectored form of Roll: it requires len(out) == len(in)
// and is equivalent to calling Roll once per paired byte, in order.
func (c *Checksum) RollMany(out, in []byte) error {
	if len(out) != len(in) {
		return ErrMismatchedSliceLength
	}
	for i := range out {
		if err := c.Roll(out[i], in[i]); err != nil {
			return err
		}
	}
	return nil
}

// Value returns the packed 32-bit checksum (sum2<<16 | sum1).
func (c *Checksum) Value() uint32 {
	return uint32(c.sum2)<<16 | uint32(c.sum1)
}

// Len returns the number of bytes folded into the checksum so far.
func (c *Checksum) Len() int { return int(c.count) }

// IsEmpty reports whether no bytes have been folded in yet.
func (c *Checksum) IsEmpty() bool { return c.count == 0 }

// Digest freezes the checksum into a RollingDigest bound to the current
// window length.
func (c *Checksum) Digest() Digest {
	return Digest{Value: c.Value(), WindowLen: c.Len()}
}

// Digest is a frozen rolling-checksum value paired with the window length
// it was computed over, as carried inside a SignatureBlock.
type Digest struct {
	Value     uint32
	WindowLen int
}

// CheckWindowLen validates a caller-specified window length against
// maxWindow, used before allocating buffers sized by untrusted peer input.
func CheckWindowLen(n int64) error {
	if n < 0 || n > maxWindow {
		return fmt.Errorf("rollsum: window length %d: %w", n, ErrWindowTooLarge)
	}
	return nil
}

// EncodeLE appends the 4-byte little-endian wire form of v to dst and
// returns the extended slice.
func EncodeLE(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

// DecodeLE parses exactly 4 little-endian bytes into a checksum value.
func DecodeLE(p []byte) (uint32, error) {
	if len(p) != 4 {
		return 0, fmt.Errorf("rollsum: decode requires exactly 4 bytes, got %d", len(p))
	}
	return binary.LittleEndian.Uint32(p), nil
}

// DigestFromLE parses the 4-byte on-wire rolling checksum into a Digest
// bound to windowLen (the block length transmitted alongside it in a
// SumHead/SignatureBlock).
func DigestFromLE(p []byte, windowLen int) (Digest, error) {
	v, err := DecodeLE(p)
	if err != nil {
		return Digest{}, err
	}
	return Digest{Value: v, WindowLen: windowLen}, nil
}
