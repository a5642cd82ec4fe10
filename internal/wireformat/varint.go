// Package wireformat implements the byte-level encodings shared by every
// higher layer: rsync-style varints, the legacy fixed-width integer, the
// file-index (NDX) codec with its negative sentinels, 16-bit item flags,
// and the SumHead block-signature header.
package wireformat

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// EncodeVarint appends the rsync-style varint encoding of v to dst and
// returns the extended slice.
//
// The wire form is one tag byte followed by 0-8 little-endian value bytes.
// With e denoting the number of extra bytes (0 <= e <= 8):
//
//   - e < 8: the tag's top e bits are set to 1 (the "leading ones" marker),
//     the next bit down is an implicit 0 terminator, and the remaining
//     (7-e) low bits hold the high-order bits of the value that don't fit
//     in the e explicit little-endian bytes that follow.
//   - e == 8: the tag is exactly 0xFF (all bits are marker, no terminator,
//     no value bits), and the full 64-bit value follows verbatim.
//
// e is chosen minimally: the smallest e such that the value fits in
// 7*e+7 bits (or e=8 as the universal fallback for the remaining range).
func EncodeVarint(dst []byte, v int64) []byte {
	u := uint64(v)
	for e := 0; e <= 7; e++ {
		limit := uint64(1) << uint(7*e+7)
		if u < limit {
			marker := byte(0xFF) << uint(8-e) // 0 when e == 0
			high := byte(u >> uint(8*e))
			out := append(dst, marker|high)
			for i := 0; i < e; i++ {
				out = append(out, byte(u>>uint(8*i)))
			}
			return out
		}
	}
	out := append(dst, 0xFF)
	for i := 0; i < 8; i++ {
		out = append(out, byte(u>>uint(8*i)))
	}
	return out
}

// DecodeVarint reads one rsync-style varint from r and returns its value as
// a signed 64-bit integer (callers that expect a narrower range, such as
// the NDX codec's int32 space, validate the range themselves).
func DecodeVarint(r io.Reader) (int64, error) {
	var tagBuf [1]byte
	if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
		return 0, err
	}
	tag := tagBuf[0]
	e := leadingOnes(tag)

	if e == 8 {
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		return int64(binary.LittleEndian.Uint64(buf[:])), nil
	}

	avail := 7 - e
	mask := byte(0xFF) >> uint(8-avail)
	high := tag & mask

	var buf [8]byte
	if e > 0 {
		if _, err := io.ReadFull(r, buf[:e]); err != nil {
			return 0, err
		}
	}
	u := binary.LittleEndian.Uint64(buf[:]) | uint64(high)<<uint(8*e)
	return int64(u), nil
}

// leadingOnes counts the number of consecutive 1 bits from the MSB of b.
func leadingOnes(b byte) int {
	n := 0
	for i := 7; i >= 0; i-- {
		if b&(1<<uint(i)) == 0 {
			break
		}
		n++
	}
	return n
}

// EncodeLegacyInt32 appends the fixed 4-byte little-endian encoding of v,
// used when VARINT_FLIST_FLAGS is not negotiated.
func EncodeLegacyInt32(dst []byte, v int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return append(dst, b[:]...)
}

// DecodeLegacyInt32 reads a fixed 4-byte little-endian int32 from r.
func DecodeLegacyInt32(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b[:])), nil
}

// CheckInt32Range fails with an InvalidInput-style error when v cannot be
// represented as an int32, guarding callers that accept untrusted lengths.
func CheckInt32Range(v int64) error {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return fmt.Errorf("wireformat: value %d out of int32 range", v)
	}
	return nil
}
