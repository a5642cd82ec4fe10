package wireformat_test

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"github.com/oferchen/rsync-sub007/internal/wireformat"
)

func TestVarintRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	values := []int64{0, 1, -1, 127, 128, 161, -161, 16383, 16384, math.MaxInt32, math.MinInt32, math.MaxInt64, math.MinInt64}
	for i := 0; i < 500; i++ {
		values = append(values, int64(r.Int31())-int64(r.Int31()))
	}
	for _, v := range values {
		enc := wireformat.EncodeVarint(nil, v)
		got, err := wireformat.DecodeVarint(bytes.NewReader(enc))
		if err != nil {
			t.Fatalf("DecodeVarint(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("round trip %d: got %d (encoded %x)", v, got, enc)
		}
	}
}

func TestVarintTagBoundary(t *testing.T) {
	enc := wireformat.EncodeVarint(nil, 161)
	if len(enc) != 2 {
		t.Fatalf("encode(161) length = %d, want 2 (bytes %x)", len(enc), enc)
	}
	got, err := wireformat.DecodeVarint(bytes.NewReader(enc))
	if err != nil || got != 161 {
		t.Fatalf("decode(%x) = %d, %v, want 161, nil", enc, got, err)
	}

	enc = wireformat.EncodeVarint(nil, 0)
	if len(enc) != 1 {
		t.Fatalf("encode(0) length = %d, want 1", len(enc))
	}
	got, err = wireformat.DecodeVarint(bytes.NewReader(enc))
	if err != nil || got != 0 {
		t.Fatalf("decode(0) = %d, %v, want 0, nil", got, err)
	}
}

func TestVarintMinimalLength(t *testing.T) {
	for _, tt := range []struct {
		v    int64
		want int
	}{
		{0, 1}, {127, 1}, {128, 2}, {16383, 2}, {16384, 3},
	} {
		enc := wireformat.EncodeVarint(nil, tt.v)
		if len(enc) != tt.want {
			t.Errorf("encode(%d) length = %d, want %d", tt.v, len(enc), tt.want)
		}
	}
}

func TestNdxCodecRoundTrip(t *testing.T) {
	seq := []int32{0, 1, 2, 3, wireformat.NdxDone, 0, 1, wireformat.NdxFlistEOF, 5, 6, wireformat.NdxDelStats, 100, 99, 50}

	var buf bytes.Buffer
	wc := wireformat.NewNdxWriteCodec(true)
	for _, v := range seq {
		if err := wc.WriteNdx(&buf, v); err != nil {
			t.Fatalf("WriteNdx(%d): %v", v, err)
		}
	}

	rc := wireformat.NewNdxReadCodec(true)
	for i, want := range seq {
		got, err := rc.ReadNdx(&buf)
		if err != nil {
			t.Fatalf("ReadNdx[%d]: %v", i, err)
		}
		if got != want {
			t.Fatalf("ReadNdx[%d] = %d, want %d", i, got, want)
		}
	}
}

func TestNdxCodecLegacyFixedWidth(t *testing.T) {
	seq := []int32{0, 1, wireformat.NdxDone, 41}
	var buf bytes.Buffer
	wc := wireformat.NewNdxWriteCodec(false)
	for _, v := range seq {
		if err := wc.WriteNdx(&buf, v); err != nil {
			t.Fatal(err)
		}
	}
	if buf.Len() != 4*len(seq) {
		t.Fatalf("legacy NDX encoding length = %d, want %d", buf.Len(), 4*len(seq))
	}
	rc := wireformat.NewNdxReadCodec(false)
	for i, want := range seq {
		got, err := rc.ReadNdx(&buf)
		if err != nil || got != want {
			t.Fatalf("ReadNdx[%d] = %d, %v, want %d, nil", i, got, err, want)
		}
	}
}

func TestIndependentCodecState(t *testing.T) {
	// Two independent read codecs fed the same bytes must decode
	// identically: state is per-codec, never shared across directions.
	var buf bytes.Buffer
	wc := wireformat.NewNdxWriteCodec(true)
	seq := []int32{10, 11, 12, 13}
	for _, v := range seq {
		wc.WriteNdx(&buf, v)
	}
	encoded := buf.Bytes()

	rc1 := wireformat.NewNdxReadCodec(true)
	rc2 := wireformat.NewNdxReadCodec(true)
	r1 := bytes.NewReader(encoded)
	r2 := bytes.NewReader(encoded)
	for i, want := range seq {
		g1, err := rc1.ReadNdx(r1)
		if err != nil {
			t.Fatal(err)
		}
		g2, err := rc2.ReadNdx(r2)
		if err != nil {
			t.Fatal(err)
		}
		if g1 != want || g2 != want {
			t.Fatalf("codec[%d]: got %d/%d, want %d", i, g1, g2, want)
		}
	}
}

func TestItemFlagsRoundTrip(t *testing.T) {
	f := wireformat.ItemTransfer | wireformat.ItemXnameFollows
	var buf bytes.Buffer
	if err := wireformat.WriteItemFlags(&buf, f); err != nil {
		t.Fatal(err)
	}
	got, err := wireformat.ReadItemFlags(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != f {
		t.Fatalf("got %v, want %v", got, f)
	}
	if !got.NeedsTransfer() {
		t.Error("NeedsTransfer() = false")
	}
	if !got.HasExtendedName() {
		t.Error("HasExtendedName() = false")
	}
	if got.HasBasisType() {
		t.Error("HasBasisType() = true")
	}
}

func TestSumHeadRoundTrip(t *testing.T) {
	s := wireformat.SumHead{Count: 12, BLength: 700, S2Length: 8, Remainder: 42}
	var buf bytes.Buffer
	if err := wireformat.WriteSumHead(&buf, s); err != nil {
		t.Fatal(err)
	}
	got, err := wireformat.ReadSumHead(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != s {
		t.Fatalf("got %+v, want %+v", got, s)
	}
}

func TestSumSizesSqroot(t *testing.T) {
	sh := wireformat.SumSizesSqroot(1<<20, 16)
	if sh.BLength < 700 || sh.BLength > 131072 {
		t.Fatalf("block length %d out of bounds", sh.BLength)
	}
	total := int64(sh.Count-1)*int64(sh.BLength) + int64(sh.BlockLen(sh.Count-1))
	if total != 1<<20 {
		t.Fatalf("blocks don't cover file: total=%d, want %d", total, int64(1<<20))
	}
}
