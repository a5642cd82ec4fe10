package rollsum_test

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/oferchen/rsync-sub007/internal/rollsum"
)

func TestUpdateSplitEquivalence(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for trial := 0; trial < 200; trial++ {
		n := r.Intn(500)
		s := make([]byte, n)
		r.Read(s)
		split := r.Intn(n + 1)
		a, b := s[:split], s[split:]

		var whole, parts rollsum.Checksum
		whole.Update(s)
		parts.Update(a)
		parts.Update(b)

		if whole.Value() != parts.Value() {
			t.Fatalf("trial %d: split update mismatch: whole=%x parts=%x (n=%d split=%d)", trial, whole.Value(), parts.Value(), n, split)
		}
	}
}

func TestRollEquivalence(t *testing.T) {
	// W = X ++ Y ++ Z, |X| = 1 = |Z|.
	x := byte(0x11)
	y := []byte("middlebytes")
	z := byte(0x22)

	var xy rollsum.Checksum
	xy.Update(append([]byte{x}, y...))

	var yz rollsum.Checksum
	yz.Update(append(append([]byte{}, y...), z))

	rolled := xy
	if err := rolled.Roll(x, z); err != nil {
		t.Fatalf("Roll: %v", err)
	}

	if rolled.Value() != yz.Value() {
		t.Fatalf("rolled=%x want=%x", rolled.Value(), yz.Value())
	}
	if rolled.Len() != xy.Len() {
		t.Fatalf("Roll must not change count: got %d want %d", rolled.Len(), xy.Len())
	}
}

func TestRollManyEquivalentToRepeatedRoll(t *testing.T) {
	initial := []byte("0123456789")
	out := []byte("01234")
	in := []byte("abcde")

	var single rollsum.Checksum
	single.Update(initial)
	for i := range out {
		if err := single.Roll(out[i], in[i]); err != nil {
			t.Fatalf("Roll: %v", err)
		}
	}

	var many rollsum.Checksum
	many.Update(initial)
	if err := many.RollMany(out, in); err != nil {
		t.Fatalf("RollMany: %v", err)
	}

	if single.Value() != many.Value() {
		t.Fatalf("single=%x many=%x", single.Value(), many.Value())
	}
}

func TestRollEmptyWindow(t *testing.T) {
	var c rollsum.Checksum
	if err := c.Roll('a', 'b'); !errors.Is(err, rollsum.ErrEmptyWindow) {
		t.Fatalf("Roll on empty: err = %v, want ErrEmptyWindow", err)
	}
}

func TestRollManyMismatchedLength(t *testing.T) {
	var c rollsum.Checksum
	c.Update([]byte("abc"))
	if err := c.RollMany([]byte("ab"), []byte("a")); !errors.Is(err, rollsum.ErrMismatchedSliceLength) {
		t.Fatalf("RollMany: err = %v, want ErrMismatchedSliceLength", err)
	}
}

func TestWireRoundTrip(t *testing.T) {
	var c rollsum.Checksum
	c.Update([]byte("abcdefgh"))
	d := c.Digest()

	wire := rollsum.EncodeLE(nil, d.Value)
	if len(wire) != 4 {
		t.Fatalf("EncodeLE length = %d, want 4", len(wire))
	}
	got, err := rollsum.DigestFromLE(wire, d.WindowLen)
	if err != nil {
		t.Fatalf("DigestFromLE: %v", err)
	}
	if got != d {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, d)
	}
}

func TestDecodeLEWrongLength(t *testing.T) {
	if _, err := rollsum.DecodeLE([]byte{1, 2, 3}); err == nil {
		t.Fatal("DecodeLE accepted 3 bytes, want error")
	}
}

func TestCheckWindowLen(t *testing.T) {
	if err := rollsum.CheckWindowLen(-1); err == nil {
		t.Fatal("negative window accepted")
	}
	if err := rollsum.CheckWindowLen(1 << 33); err == nil {
		t.Fatal("oversized window accepted")
	}
	if err := rollsum.CheckWindowLen(1024); err != nil {
		t.Fatalf("ordinary window rejected: %v", err)
	}
}

func TestValueEncodingIsLittleEndian(t *testing.T) {
	var c rollsum.Checksum
	c.Update([]byte("x"))
	wire := rollsum.EncodeLE(nil, c.Value())
	var want bytes.Buffer
	want.WriteByte(byte(c.Value()))
	want.WriteByte(byte(c.Value() >> 8))
	want.WriteByte(byte(c.Value() >> 16))
	want.WriteByte(byte(c.Value() >> 24))
	if !bytes.Equal(wire, want.Bytes()) {
		t.Fatalf("wire form = %x, want %x", wire, want.Bytes())
	}
}
