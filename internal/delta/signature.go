// Package delta implements the block-matching delta algorithm: building a
// signature index over a basis file's fixed-size blocks, generating a
// token stream of Copy/Literal references against that index for a
// source file, and applying a received token stream against a basis to
// reconstruct the target (spec §4.3, §4.4).
package delta

import (
	"bufio"
	"io"

	"github.com/oferchen/rsync-sub007/internal/digest"
	"github.com/oferchen/rsync-sub007/internal/rollsum"
	"github.com/oferchen/rsync-sub007/internal/wireformat"
)

// BlockSignature is one basis block's rolling and truncated strong
// checksum, as transmitted in a SumHead's signature table.
type BlockSignature struct {
	Index  uint32
	Weak   uint32
	Strong []byte // truncated to the session's s2length
}

// BuildSignatures reads r in SumHead.BLength-sized blocks (the final
// block shortened per SumHead.Remainder) and computes each block's
// rolling and strong checksum, the way a receiver does before sending
// its signature table (spec §4.9 SumHead, §4.1, §4.2).
func BuildSignatures(r io.Reader, head wireformat.SumHead, alg digest.Algorithm, seed int32) ([]BlockSignature, error) {
	sigs := make([]BlockSignature, 0, head.Count)
	buf := make([]byte, head.BLength)
	br := bufio.NewReaderSize(r, int(head.BLength)+1)

	for idx := uint32(0); idx < head.Count; idx++ {
		blen := head.BlockLen(idx)
		chunk := buf[:blen]
		n, err := io.ReadFull(br, chunk)
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, err
		}
		chunk = chunk[:n]

		var weak rollsum.Checksum
		weak.Update(chunk)

		strong := digest.DigestWithSeed(alg, int64(seed), chunk)
		if int(head.S2Length) < len(strong) {
			strong = strong[:head.S2Length]
		}

		sigs = append(sigs, BlockSignature{
			Index:  idx,
			Weak:   weak.Value(),
			Strong: append([]byte(nil), strong...),
		})
	}
	return sigs, nil
}

// SignatureIndex maps a rolling-checksum value to the basis block
// indices sharing it, disambiguated by strong-sum comparison during
// matching (spec §4.3 step 1: "DeltaSignatureIndex").
type SignatureIndex struct {
	byWeak map[uint32][]BlockSignature
	head   wireformat.SumHead
}

// NewSignatureIndex builds an index over sigs. An empty sigs (Count==0)
// yields an index that never matches, driving whole-file mode in
// Generate.
func NewSignatureIndex(sigs []BlockSignature, head wireformat.SumHead) *SignatureIndex {
	idx := &SignatureIndex{byWeak: make(map[uint32][]BlockSignature, len(sigs)), head: head}
	for _, s := range sigs {
		idx.byWeak[s.Weak] = append(idx.byWeak[s.Weak], s)
	}
	return idx
}

// Empty reports whether the index has no signatures at all, the
// whole-file-mode trigger (spec §4.3 "If the peer signature table is
// empty").
func (idx *SignatureIndex) Empty() bool { return len(idx.byWeak) == 0 }

// candidates returns the signatures sharing weak, ordered by ascending
// block index so callers implementing the "lowest index wins" tie-break
// can take the first strong match.
func (idx *SignatureIndex) candidates(weak uint32) []BlockSignature {
	return idx.byWeak[weak]
}
