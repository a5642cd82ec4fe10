package generator

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/oferchen/rsync-sub007/internal/delta"
	"github.com/oferchen/rsync-sub007/internal/digest"
	"github.com/oferchen/rsync-sub007/internal/flist"
	"github.com/oferchen/rsync-sub007/internal/rsyncflags"
	"github.com/oferchen/rsync-sub007/internal/rsyncos"
	"github.com/oferchen/rsync-sub007/internal/rsyncversion"
	"github.com/oferchen/rsync-sub007/internal/rsyncwire"
	"github.com/oferchen/rsync-sub007/internal/wireformat"
)

// TestRunSingleFileWholeFileTransfer drives the generator's transfer
// loop end to end against a fake single-phase, protocol-28 receiver
// (no item flags, no redo phase) requesting one file with an empty
// signature table, exercising whole-file mode, the stats block and the
// goodbye exchange.
func TestRunSingleFileWholeFileTransfer(t *testing.T) {
	dir := t.TempDir()
	content := []byte("the quick brown fox jumps over the lazy dog")
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	fl := &flist.FileList{
		Entries:   []flist.FileEntry{{RelativePath: "f.txt", Kind: flist.KindFile, Size: int64(len(content)), HardlinkRef: -1}},
		FullPaths: []string{path},
	}

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	const protocol = 28
	alg := digest.MD5
	seed := int32(0)

	g := New(Config{
		Protocol:     rsyncversion.ProtocolVersion(protocol),
		CompatFlags:  rsyncflags.CompatibilityFlags(0),
		ChecksumAlg:  alg,
		ChecksumSeed: seed,
		Env:          rsyncos.New(nil, nil, nil),
	})

	recvErrCh := make(chan error, 1)
	go func() {
		recvErrCh <- fakeReceiver(inW, outR, alg, seed, content)
	}()

	rawOut := rsyncwire.NewWriter(io.Discard)
	stats, err := g.Run(inR, outW, rawOut, fl)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := <-recvErrCh; err != nil {
		t.Fatalf("fake receiver: %v", err)
	}

	if stats.Size != int64(len(content)) {
		t.Fatalf("stats.Size = %d, want %d", stats.Size, len(content))
	}
	if stats.Written != int64(len(content)) {
		t.Fatalf("stats.Written = %d, want %d (whole file as literal)", stats.Written, len(content))
	}
}

// fakeReceiver plays the receiver side of the protocol-28 exchange
// TestRunSingleFileWholeFileTransfer drives: one file request with an
// empty signature table, two NDX_DONE markers to close the single
// phase, and the goodbye ndx finish() waits for.
func fakeReceiver(in io.Writer, out io.Reader, alg digest.Algorithm, seed int32, wantContent []byte) error {
	ndxOut := wireformat.NewNdxWriteCodec(false)
	ndxIn := wireformat.NewNdxReadCodec(false)

	head := wireformat.SumHead{}
	if err := ndxOut.WriteNdx(in, 0); err != nil {
		return err
	}
	if err := wireformat.WriteSumHead(in, head); err != nil {
		return err
	}

	respNdx, err := ndxIn.ReadNdx(out)
	if err != nil {
		return err
	}
	if respNdx != 0 {
		return fmt.Errorf("response ndx = %d, want 0", respNdx)
	}
	respHead, err := wireformat.ReadSumHead(out)
	if err != nil {
		return err
	}
	tokens, err := delta.ReadTokenStream(out, respHead)
	if err != nil {
		return err
	}
	var literal bytes.Buffer
	for _, tok := range tokens {
		if tok.Kind == delta.TokenLiteral {
			literal.Write(tok.LiteralData)
		}
	}
	if !bytes.Equal(literal.Bytes(), wantContent) {
		return fmt.Errorf("reconstructed content = %q, want %q", literal.Bytes(), wantContent)
	}

	checksum := make([]byte, digest.DigestLen(alg))
	if _, err := io.ReadFull(out, checksum); err != nil {
		return err
	}
	wantChecksum := digest.DigestWithSeed(alg, int64(seed), wantContent)
	if !bytes.Equal(checksum, wantChecksum) {
		return fmt.Errorf("whole-file checksum mismatch")
	}

	// Close the single transfer phase: two NDX_DONE markers are needed
	// to push phase past max_phase=1 for this protocol-28 session (the
	// first is echoed back as part of the normal phase transition).
	if err := ndxOut.WriteNdx(in, wireformat.NdxDone); err != nil {
		return err
	}
	echoNdx, err := ndxIn.ReadNdx(out)
	if err != nil {
		return err
	}
	if echoNdx != wireformat.NdxDone {
		return fmt.Errorf("phase-echo ndx = %d, want NdxDone", echoNdx)
	}
	if err := ndxOut.WriteNdx(in, wireformat.NdxDone); err != nil {
		return err
	}

	// Stats block: total_read, total_written, total_size as varints
	// (protocol 28 carries no flist timing fields).
	for i := 0; i < 3; i++ {
		if _, err := wireformat.DecodeVarint(out); err != nil {
			return err
		}
	}

	// Goodbye ndx finish() waits for; protocol 28 < 31 so no further
	// exchange follows.
	if err := ndxOut.WriteNdx(in, wireformat.NdxDone); err != nil {
		return err
	}

	return nil
}
