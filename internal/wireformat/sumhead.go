package wireformat

import "io"

// SumHead describes the block signature table the receiver sends ahead of
// a file's transfer, and which the generator echoes back before its delta
// token stream (§3, §4.5).
type SumHead struct {
	Count     uint32 // number of signature blocks; 0 means "no basis, send whole file"
	BLength   uint32 // nominal block length
	S2Length  uint32 // strong-sum bytes transmitted per block
	Remainder uint32 // length of the final (short) block
}

// WholeFile reports whether Count == 0, i.e. the receiver has no usable
// basis and the generator should emit the entire file as literal data.
func (s SumHead) WholeFile() bool { return s.Count == 0 }

// ReadSumHead reads the four 32-bit little-endian fields of a SumHead.
func ReadSumHead(r io.Reader) (SumHead, error) {
	var s SumHead
	count, err := DecodeLegacyInt32(r)
	if err != nil {
		return s, err
	}
	blength, err := DecodeLegacyInt32(r)
	if err != nil {
		return s, err
	}
	s2length, err := DecodeLegacyInt32(r)
	if err != nil {
		return s, err
	}
	remainder, err := DecodeLegacyInt32(r)
	if err != nil {
		return s, err
	}
	s.Count = uint32(count)
	s.BLength = uint32(blength)
	s.S2Length = uint32(s2length)
	s.Remainder = uint32(remainder)
	return s, nil
}

// WriteSumHead writes the four 32-bit little-endian fields of a SumHead.
func WriteSumHead(w io.Writer, s SumHead) error {
	buf := EncodeLegacyInt32(nil, int32(s.Count))
	buf = EncodeLegacyInt32(buf, int32(s.BLength))
	buf = EncodeLegacyInt32(buf, int32(s.S2Length))
	buf = EncodeLegacyInt32(buf, int32(s.Remainder))
	_, err := w.Write(buf)
	return err
}

// BlockLen returns the length in bytes of the block at idx (0-based),
// accounting for a short final block when Remainder != 0.
func (s SumHead) BlockLen(idx uint32) uint32 {
	if s.Remainder != 0 && idx == s.Count-1 {
		return s.Remainder
	}
	return s.BLength
}

// SumSizesSqroot computes the block length and strong-sum truncation
// length for a file of the given size, following rsync's
// generator.c:sum_sizes_sqroot heuristic: the integer (floor) square root
// of the file length, clamped to [minBlockLength, maxBlockLength].
func SumSizesSqroot(fileLen int64, s2Length uint32) SumHead {
	const (
		minBlockLength = 700
		maxBlockLength = 131072
	)
	if fileLen <= 0 {
		return SumHead{BLength: minBlockLength, S2Length: s2Length}
	}

	blen := isqrt(fileLen)
	if blen < minBlockLength {
		blen = minBlockLength
	}
	if blen > maxBlockLength {
		blen = maxBlockLength
	}

	count := (fileLen + int64(blen) - 1) / int64(blen)
	remainder := fileLen % int64(blen)

	return SumHead{
		Count:     uint32(count),
		BLength:   uint32(blen),
		S2Length:  s2Length,
		Remainder: uint32(remainder),
	}
}

// isqrt returns floor(sqrt(n)) for n >= 0 using integer Newton's method, to
// avoid float64 rounding surprises on large file sizes.
func isqrt(n int64) int64 {
	if n < 2 {
		return n
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
