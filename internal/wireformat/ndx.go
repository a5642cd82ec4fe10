package wireformat

import (
	"fmt"
	"io"
)

// File-index sentinels, negative values reserved for control meaning
// instead of identifying a file-list entry.
const (
	NdxDone        int32 = -1
	NdxFlistEOF    int32 = -2
	NdxDelStats    int32 = -3
	NdxFlistOffset int32 = -101
)

// ndx wire selectors. A single byte precedes every delta-coded value and
// disambiguates which of the two independent running counters (positive
// file indices vs. negative control values) the following varint is
// relative to, so a legitimate delta can never be mistaken for a sentinel
// (or vice versa) purely by numeric coincidence.
const (
	ndxSelPositive byte = 0
	ndxSelNegative byte = 1
	ndxSelDone     byte = 2
)

// NdxReadCodec and NdxWriteCodec maintain independent per-direction state:
// newer protocols delta-encode NDX values against the previously
// transmitted value of the same sign to keep the common case
// (monotonically increasing file indices) to a couple of bytes. Positive
// indices and negative control values are tracked with separate running
// counters, mirroring rsync's own prev_positive/prev_negative split, so
// that a delta can never collide with a sentinel's literal value. Each
// direction's codec must not be shared with the other (§5 "Ordering
// guarantees").
type NdxReadCodec struct {
	useDelta     bool // false for protocol < 30: plain legacy int32s, no delta coding
	prevPositive int32
	prevNegative int32
}

// NewNdxReadCodec returns a codec for the read (decode) direction.
// useDelta selects whether incremental delta-from-previous compression is
// active (protocol >= 30 with VARINT_FLIST_FLAGS negotiated); older
// protocols always send/receive NDX values as plain legacy int32s with no
// delta coding.
func NewNdxReadCodec(useDelta bool) *NdxReadCodec {
	return &NdxReadCodec{useDelta: useDelta, prevPositive: -1, prevNegative: 1}
}

// NdxWriteCodec is the encode-side mirror of NdxReadCodec.
type NdxWriteCodec struct {
	useDelta     bool
	prevPositive int32
	prevNegative int32
}

// NewNdxWriteCodec returns a codec for the write (encode) direction.
func NewNdxWriteCodec(useDelta bool) *NdxWriteCodec {
	return &NdxWriteCodec{useDelta: useDelta, prevPositive: -1, prevNegative: 1}
}

// ReadNdx reads and delta-decodes (if active) the next NDX value.
func (c *NdxReadCodec) ReadNdx(r io.Reader) (int32, error) {
	if !c.useDelta {
		return DecodeLegacyInt32(r)
	}

	var selBuf [1]byte
	if _, err := io.ReadFull(r, selBuf[:]); err != nil {
		return 0, err
	}

	switch selBuf[0] {
	case ndxSelDone:
		return NdxDone, nil

	case ndxSelPositive:
		delta, err := DecodeVarint(r)
		if err != nil {
			return 0, err
		}
		v := c.prevPositive + int32(delta)
		if v < 0 {
			return 0, fmt.Errorf("wireformat: decoded positive ndx went negative (%d)", v)
		}
		c.prevPositive = v
		return v, nil

	case ndxSelNegative:
		delta, err := DecodeVarint(r)
		if err != nil {
			return 0, err
		}
		v := c.prevNegative - int32(delta)
		if v >= 0 {
			return 0, fmt.Errorf("wireformat: decoded negative ndx went non-negative (%d)", v)
		}
		c.prevNegative = v
		return v, nil

	default:
		return 0, fmt.Errorf("wireformat: invalid ndx selector byte %d", selBuf[0])
	}
}

// WriteNdx delta-encodes (if active) and writes v.
func (c *NdxWriteCodec) WriteNdx(w io.Writer, v int32) error {
	if !c.useDelta {
		buf := EncodeLegacyInt32(nil, v)
		_, err := w.Write(buf)
		return err
	}

	if v == NdxDone {
		_, err := w.Write([]byte{ndxSelDone})
		return err
	}

	if v >= 0 {
		delta := int64(v) - int64(c.prevPositive)
		c.prevPositive = v
		buf := append([]byte{ndxSelPositive}, EncodeVarint(nil, delta)...)
		_, err := w.Write(buf)
		return err
	}

	delta := int64(c.prevNegative) - int64(v)
	c.prevNegative = v
	buf := append([]byte{ndxSelNegative}, EncodeVarint(nil, delta)...)
	_, err := w.Write(buf)
	return err
}
