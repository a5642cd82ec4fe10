package receiver

import (
	"bytes"
	"encoding/binary"
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

// TestRunSingleFileWholeFileTransfer drives the receiver's transfer
// loop against a fake protocol-28 generator answering a single new
// file with a whole-file literal response, exercising the basis-build
// (no existing destination), stats block and goodbye exchange.
func TestRunSingleFileWholeFileTransfer(t *testing.T) {
	dir := t.TempDir()
	destPath := filepath.Join(dir, "f.txt")
	content := []byte("the quick brown fox jumps over the lazy dog")

	fl := &flist.FileList{
		Entries:   []flist.FileEntry{{RelativePath: "f.txt", Kind: flist.KindFile, Size: int64(len(content)), HardlinkRef: -1}},
		FullPaths: []string{destPath},
	}

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	const protocol = 28
	alg := digest.MD5
	seed := int32(0)

	rv := New(Config{
		Protocol:     rsyncversion.ProtocolVersion(protocol),
		CompatFlags:  rsyncflags.CompatibilityFlags(0),
		ChecksumAlg:  alg,
		ChecksumSeed: seed,
		DestRoot:     dir,
		Env:          rsyncos.New(nil, nil, nil),
	})

	genErrCh := make(chan error, 1)
	go func() {
		genErrCh <- fakeGenerator(reqR, respW, alg, seed, content, false)
	}()

	in := rsyncwire.NewReader(respR, nil)
	stats, err := rv.Run(in, in, reqW, fl)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := <-genErrCh; err != nil {
		t.Fatalf("fake generator: %v", err)
	}

	if stats.Written != int64(len(content)) {
		t.Fatalf("stats.Written = %d, want %d", stats.Written, len(content))
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("reading applied file: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("applied content = %q, want %q", got, content)
	}
}

// TestRunSkipsApplyOnNoSend exercises the MSG_NO_SEND path: the fake
// generator answers the single request with an out-of-band NoSend
// frame alongside its (placeholder, empty) Data response, and the
// receiver must leave the destination file untouched rather than
// overwrite it with that placeholder.
func TestRunSkipsApplyOnNoSend(t *testing.T) {
	dir := t.TempDir()
	destPath := filepath.Join(dir, "f.txt")
	preexisting := []byte("original contents that must survive")
	if err := os.WriteFile(destPath, preexisting, 0o644); err != nil {
		t.Fatal(err)
	}

	fl := &flist.FileList{
		Entries:   []flist.FileEntry{{RelativePath: "f.txt", Kind: flist.KindFile, Size: int64(len(preexisting)), HardlinkRef: -1}},
		FullPaths: []string{destPath},
	}

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	const protocol = 28
	alg := digest.MD5
	seed := int32(0)

	rv := New(Config{
		Protocol:     rsyncversion.ProtocolVersion(protocol),
		CompatFlags:  rsyncflags.CompatibilityFlags(0),
		ChecksumAlg:  alg,
		ChecksumSeed: seed,
		DestRoot:     dir,
		Env:          rsyncos.New(nil, nil, nil),
	})

	genErrCh := make(chan error, 1)
	go func() {
		genErrCh <- fakeGenerator(reqR, respW, alg, seed, nil, true)
	}()

	in := rsyncwire.NewReader(respR, nil)
	stats, err := rv.Run(in, in, reqW, fl)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := <-genErrCh; err != nil {
		t.Fatalf("fake generator: %v", err)
	}

	if stats.Written != 0 {
		t.Fatalf("stats.Written = %d, want 0 (no-send skips apply)", stats.Written)
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("reading destination file: %v", err)
	}
	if !bytes.Equal(got, preexisting) {
		t.Fatalf("destination was overwritten: got %q, want original %q", got, preexisting)
	}
}

// fakeGenerator plays the generator side of a one-file, protocol-28
// exchange: it reads the request (NDX + empty SumHead, no item flags
// below protocol 29), and either answers with a whole-file literal
// response or, when noSend is true, an out-of-band MSG_NO_SEND paired
// with a trivial placeholder Data response, matching generator/transfer.go's
// deadlock-avoiding "always answer in lockstep" behavior. It then
// drives the single-phase goodbye exchange the receiver's Run expects.
func fakeGenerator(in io.Reader, out io.Writer, alg digest.Algorithm, seed int32, content []byte, noSend bool) error {
	rawOut := rsyncwire.NewWriter(out)
	dataOut := rsyncwire.NewDataWriter(rawOut)

	ndxIn := wireformat.NewNdxReadCodec(false)
	ndxOut := wireformat.NewNdxWriteCodec(false)

	ndx, err := ndxIn.ReadNdx(in)
	if err != nil {
		return err
	}
	if ndx != 0 {
		return fmt.Errorf("request ndx = %d, want 0", ndx)
	}
	head, err := wireformat.ReadSumHead(in)
	if err != nil {
		return err
	}
	for i := uint32(0); i < head.Count; i++ {
		var weak [4]byte
		if _, err := io.ReadFull(in, weak[:]); err != nil {
			return err
		}
		strong := make([]byte, head.S2Length)
		if head.S2Length > 0 {
			if _, err := io.ReadFull(in, strong); err != nil {
				return err
			}
		}
	}

	var tokens []delta.DeltaToken
	var checksum []byte
	if noSend {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(ndx))
		if err := rawOut.WriteMessage(rsyncwire.MsgNoSend, buf[:]); err != nil {
			return err
		}
		tokens = []delta.DeltaToken{delta.Done()}
		checksum = digest.DigestWithSeed(alg, int64(seed), nil)
	} else {
		tokens = []delta.DeltaToken{delta.Literal(content), delta.Done()}
		checksum = digest.DigestWithSeed(alg, int64(seed), content)
	}

	if err := ndxOut.WriteNdx(dataOut, 0); err != nil {
		return err
	}
	if err := wireformat.WriteSumHead(dataOut, wireformat.SumHead{}); err != nil {
		return err
	}
	if err := delta.WriteTokenStream(dataOut, tokens); err != nil {
		return err
	}
	if _, err := dataOut.Write(checksum); err != nil {
		return err
	}

	// Single transfer phase close: two NDX_DONE, the first echoed.
	doneNdx, err := ndxIn.ReadNdx(in)
	if err != nil {
		return err
	}
	if doneNdx != wireformat.NdxDone {
		return fmt.Errorf("phase-done ndx = %d, want NdxDone", doneNdx)
	}
	if err := ndxOut.WriteNdx(dataOut, wireformat.NdxDone); err != nil {
		return err
	}
	doneNdx2, err := ndxIn.ReadNdx(in)
	if err != nil {
		return err
	}
	if doneNdx2 != wireformat.NdxDone {
		return fmt.Errorf("second phase-done ndx = %d, want NdxDone", doneNdx2)
	}

	// Stats block: total_read/total_written/total_size (protocol 28
	// carries no flist timing fields).
	for i := 0; i < 3; i++ {
		if _, err := dataOut.Write(wireformat.EncodeVarint(nil, 0)); err != nil {
			return err
		}
	}

	// Goodbye ndx; protocol 28 < 31 so no further exchange follows.
	if _, err := ndxIn.ReadNdx(in); err != nil {
		return err
	}

	return nil
}
