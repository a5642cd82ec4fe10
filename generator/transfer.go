package generator

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/oferchen/rsync-sub007/internal/delta"
	"github.com/oferchen/rsync-sub007/internal/digest"
	"github.com/oferchen/rsync-sub007/internal/flist"
	"github.com/oferchen/rsync-sub007/internal/rsyncflags"
	"github.com/oferchen/rsync-sub007/internal/rsyncstats"
	"github.com/oferchen/rsync-sub007/internal/rsyncwire"
	"github.com/oferchen/rsync-sub007/internal/wireformat"
)

// Run drives the sender-side transfer loop of spec §4.10: it reads
// file-transfer requests (an NDX followed, for regular files needing
// data, by item flags and a SumHead-plus-signature-table), generates a
// delta token stream against each request's basis signatures, and
// writes the response back through out, echoing the NDX, item flags
// and SumHead ahead of the token stream and whole-file checksum.
//
// in is the demultiplexed Data-frame reader carrying the receiver's
// requests; out is a plain io.Writer framing responses as Data
// messages (an *rsyncwire.DataWriter in production); rawOut is the
// underlying multiplexing Writer, needed to emit the occasional
// out-of-band MsgNoSend outside the Data channel. fl is the
// already-sent, already-sorted file list paired with its FullPaths.
//
// Grounded on the teacher's rsyncd.go handleConn transfer loop
// (itself mostly a stub that always sends whole files), generalized
// here to the full per-file request cycle, phase loop and stats/
// goodbye exchange the distilled spec's §4.10 describes in detail.
func (g *Generator) Run(in io.Reader, out io.Writer, rawOut *rsyncwire.Writer, fl *flist.FileList) (rsyncstats.TransferStats, error) {
	var stats rsyncstats.TransferStats

	useDelta := g.cfg.CompatFlags.Has(rsyncflags.VarintFlistFlags) && g.cfg.Protocol.AtLeast(30)
	ndxIn := wireformat.NewNdxReadCodec(useDelta)
	ndxOut := wireformat.NewNdxWriteCodec(useDelta)

	maxPhase := 1
	if g.cfg.Protocol.AtLeast(29) {
		maxPhase = 2
	}
	phase := 0

	for {
		ndx, err := ndxIn.ReadNdx(in)
		if err != nil {
			return stats, fmt.Errorf("generator: reading request ndx: %w", err)
		}

		switch {
		case ndx == wireformat.NdxDone:
			phase++
			if phase > maxPhase {
				return g.finish(in, out, stats)
			}
			if err := ndxOut.WriteNdx(out, wireformat.NdxDone); err != nil {
				return stats, fmt.Errorf("generator: echoing phase-done ndx: %w", err)
			}
			continue

		case ndx == wireformat.NdxFlistEOF:
			continue

		case ndx == wireformat.NdxDelStats:
			for i := 0; i < 5; i++ {
				if _, err := wireformat.DecodeVarint(in); err != nil {
					return stats, fmt.Errorf("generator: reading delete-stats field %d: %w", i, err)
				}
			}
			continue

		case ndx < 0:
			// NdxFlistOffset and below, or any other negative control
			// value this engine doesn't act on: logged and skipped,
			// matching the teacher's tolerant handling of control
			// values it has no specific handler for.
			g.cfg.Env.VerboseLogf("generator: ignoring control ndx %d", ndx)
			continue
		}

		if err := g.handleFileRequest(in, out, rawOut, ndxOut, fl, ndx, &stats); err != nil {
			return stats, err
		}
	}
}

// handleFileRequest processes one non-negative NDX: it reads the item
// flags and (if the file needs a transfer) SumHead and signature
// table, opens the matching source file, generates the token stream
// and writes the full response back (spec §4.10 steps 4-6).
func (g *Generator) handleFileRequest(in io.Reader, out io.Writer, rawOut *rsyncwire.Writer, ndxOut *wireformat.NdxWriteCodec, fl *flist.FileList, ndx int32, stats *rsyncstats.TransferStats) error {
	var flags wireformat.ItemFlags
	if g.cfg.Protocol.AtLeast(29) {
		f, err := wireformat.ReadItemFlags(in)
		if err != nil {
			return fmt.Errorf("generator: reading item flags for ndx %d: %w", ndx, err)
		}
		flags = f

		if flags.HasBasisType() {
			var b [1]byte
			if _, err := io.ReadFull(in, b[:]); err != nil {
				return fmt.Errorf("generator: reading basis type for ndx %d: %w", ndx, err)
			}
		}
		if flags.HasExtendedName() {
			if _, err := wireformat.DecodeVarint(in); err != nil {
				return fmt.Errorf("generator: reading extended-name length for ndx %d: %w", ndx, err)
			}
		}
	} else {
		flags = wireformat.ItemTransfer
	}

	if !flags.NeedsTransfer() {
		return nil
	}

	head, err := wireformat.ReadSumHead(in)
	if err != nil {
		return fmt.Errorf("generator: reading sum head for ndx %d: %w", ndx, err)
	}

	sigs := make([]delta.BlockSignature, 0, head.Count)
	for i := uint32(0); i < head.Count; i++ {
		var weakBuf [4]byte
		if _, err := io.ReadFull(in, weakBuf[:]); err != nil {
			return fmt.Errorf("generator: reading weak sum %d for ndx %d: %w", i, ndx, err)
		}
		strong := make([]byte, head.S2Length)
		if head.S2Length > 0 {
			if _, err := io.ReadFull(in, strong); err != nil {
				return fmt.Errorf("generator: reading strong sum %d for ndx %d: %w", i, ndx, err)
			}
		}
		sigs = append(sigs, delta.BlockSignature{
			Index:  i,
			Weak:   binary.LittleEndian.Uint32(weakBuf[:]),
			Strong: strong,
		})
	}

	if int(ndx) < 0 || int(ndx) >= len(fl.Entries) {
		return fmt.Errorf("generator: request ndx %d out of range for file list of length %d", ndx, len(fl.Entries))
	}
	entry := fl.Entries[ndx]

	var tokens []delta.DeltaToken
	var whole []byte

	switch {
	case entry.Kind != flist.KindFile:
		// Only regular files carry delta content; a request against a
		// directory, symlink or special file is a protocol violation
		// from a well-behaved peer, but we tolerate it by answering
		// MSG_NO_SEND and a trivial empty response rather than aborting
		// the whole session.
		if err := g.sendNoSend(rawOut, ndx); err != nil {
			return err
		}
		tokens, whole = emptyResponse(g.cfg.ChecksumAlg, g.cfg.ChecksumSeed)

	default:
		f, err := os.Open(fl.FullPaths[ndx])
		if err != nil {
			// The out-of-band MSG_NO_SEND tells the receiver not to
			// apply what follows; a trivial response keeps the
			// request/response wire lockstep intact so the main loop
			// never stalls waiting for a Data frame that would
			// otherwise never come (spec §4.10 step 5).
			if err := g.sendNoSend(rawOut, ndx); err != nil {
				return err
			}
			tokens, whole = emptyResponse(g.cfg.ChecksumAlg, g.cfg.ChecksumSeed)
			break
		}
		defer f.Close()

		idx := delta.NewSignatureIndex(sigs, head)
		tokens, whole, err = delta.Generate(f, head, idx, g.cfg.ChecksumAlg, g.cfg.ChecksumSeed)
		if err != nil {
			return fmt.Errorf("generator: generating delta for ndx %d: %w", ndx, err)
		}
	}

	if err := ndxOut.WriteNdx(out, ndx); err != nil {
		return fmt.Errorf("generator: writing response ndx %d: %w", ndx, err)
	}
	if g.cfg.Protocol.AtLeast(29) {
		if err := wireformat.WriteItemFlags(out, flags); err != nil {
			return fmt.Errorf("generator: echoing item flags for ndx %d: %w", ndx, err)
		}
	}
	if err := wireformat.WriteSumHead(out, head); err != nil {
		return fmt.Errorf("generator: echoing sum head for ndx %d: %w", ndx, err)
	}
	if err := delta.WriteTokenStream(out, tokens); err != nil {
		return fmt.Errorf("generator: writing token stream for ndx %d: %w", ndx, err)
	}
	if _, err := out.Write(whole); err != nil {
		return fmt.Errorf("generator: writing whole-file checksum for ndx %d: %w", ndx, err)
	}

	stats.Read += int64(len(whole))
	stats.Size += entry.Size
	for _, tok := range tokens {
		if tok.Kind == delta.TokenLiteral {
			stats.Written += int64(len(tok.LiteralData))
		}
	}

	return nil
}

// sendNoSend emits an out-of-band MSG_NO_SEND for ndx, the signal a
// file could not be read and the receiver should leave its copy
// untouched (spec §4.10 step 5, "If the source file cannot be opened").
func (g *Generator) sendNoSend(rawOut *rsyncwire.Writer, ndx int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(ndx))
	return rawOut.WriteMessage(rsyncwire.MsgNoSend, buf[:])
}

// emptyResponse returns a single Done token and the digest of an empty
// input, the placeholder response body paired with MSG_NO_SEND so the
// request/response wire stays lockstep even when there is no real file
// content to send.
func emptyResponse(alg digest.Algorithm, seed int32) ([]delta.DeltaToken, []byte) {
	return []delta.DeltaToken{delta.Done()}, digest.DigestWithSeed(alg, int64(seed), nil)
}

// finish writes the transfer stats block and performs the goodbye NDX
// exchange (spec §4.10 step 7-8), returning the accumulated stats.
func (g *Generator) finish(in io.Reader, out io.Writer, stats rsyncstats.TransferStats) (rsyncstats.TransferStats, error) {
	if g.cfg.Protocol.AtLeast(29) {
		stats.HaveFlistTimes = true
	}
	if err := writeStats(out, stats, g.cfg.Protocol.AtLeast(29)); err != nil {
		return stats, fmt.Errorf("generator: writing stats block: %w", err)
	}

	useDelta := g.cfg.CompatFlags.Has(rsyncflags.VarintFlistFlags) && g.cfg.Protocol.AtLeast(30)
	if g.cfg.Protocol.AtLeast(24) {
		ndxIn := wireformat.NewNdxReadCodec(useDelta)
		if _, err := ndxIn.ReadNdx(in); err != nil {
			return stats, fmt.Errorf("generator: reading final goodbye ndx: %w", err)
		}
		if g.cfg.Protocol.AtLeast(31) {
			ndxOut := wireformat.NewNdxWriteCodec(useDelta)
			if err := ndxOut.WriteNdx(out, wireformat.NdxDone); err != nil {
				return stats, fmt.Errorf("generator: writing final goodbye ndx: %w", err)
			}
			if _, err := ndxIn.ReadNdx(in); err != nil {
				return stats, fmt.Errorf("generator: reading protocol-31 goodbye echo: %w", err)
			}
		}
	}

	return stats, nil
}

// writeStats writes total_read/total_written/total_size as legacy
// int64-via-varint fields, plus (protocol >= 29) the file-list build
// and transfer timings, the way rsync's generator.c:end_of_generation
// reports session totals.
func writeStats(w io.Writer, s rsyncstats.TransferStats, includeFlistTimes bool) error {
	fields := []int64{s.Read, s.Written, s.Size}
	if includeFlistTimes {
		fields = append(fields, s.FlistBuildtimeMs, s.FlistXfertimeMs)
	}
	for _, v := range fields {
		if _, err := w.Write(wireformat.EncodeVarint(nil, v)); err != nil {
			return err
		}
	}
	return nil
}
