package delta

import (
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/google/renameio/v2"

	"github.com/oferchen/rsync-sub007/internal/digest"
	"github.com/oferchen/rsync-sub007/internal/wireformat"
)

// ChecksumMismatchError reports that an applied file's computed
// whole-file checksum did not match the one received from the peer,
// the trigger for a redo request (spec §4.4 step 4, §5).
type ChecksumMismatchError struct {
	FileIndex int
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("delta: checksum mismatch applying file index %d", e.FileIndex)
}

// BasisReaderAt is the random-access basis file a Copy token is
// resolved against. A nil basis is valid when the generator ran in
// whole-file mode and the token stream contains only Literal tokens.
type BasisReaderAt interface {
	ReadAt(p []byte, off int64) (int, error)
}

// Apply consumes tokens (terminated by a Done token, which Apply does
// not require callers to include explicitly — it simply stops at the
// first one it sees) against basis, writing the reconstructed content
// to a renameio.PendingFile created alongside destPath. On a whole-file
// checksum match it atomically replaces destPath; on mismatch the
// pending file is discarded and a *ChecksumMismatchError is returned so
// the caller can surface a redo request (spec §4.4).
func Apply(tokens []DeltaToken, basis BasisReaderAt, head wireformat.SumHead, destPath string, fileIndex int, alg digest.Algorithm, seed int32, expectedChecksum []byte) error {
	out, err := renameio.NewPendingFile(destPath)
	if err != nil {
		return err
	}
	defer out.Cleanup()

	h := digest.New(alg)
	if seeded, ok := seedableDigester(alg, seed); ok {
		h = seeded
	}

	blockBuf := make([]byte, head.BLength)
	for _, tok := range tokens {
		switch tok.Kind {
		case TokenDone:
			goto finalize
		case TokenLiteral:
			if _, err := out.Write(tok.LiteralData); err != nil {
				return err
			}
			h.Update(tok.LiteralData)
		case TokenCopy:
			if basis == nil {
				return fmt.Errorf("delta: Copy token with no basis file")
			}
			dataLen := tok.Length
			if int(dataLen) > len(blockBuf) {
				blockBuf = make([]byte, dataLen)
			}
			chunk := blockBuf[:dataLen]
			off := int64(tok.BlockIndex) * int64(head.BLength)
			if _, err := basis.ReadAt(chunk, off); err != nil && err != io.EOF {
				return err
			}
			if _, err := out.Write(chunk); err != nil {
				return err
			}
			h.Update(chunk)
		}
	}

finalize:
	computed := h.Finalize()
	if subtle.ConstantTimeCompare(computed, expectedChecksum) != 1 {
		return &ChecksumMismatchError{FileIndex: fileIndex}
	}
	return out.CloseAtomicallyReplace()
}

// seedableDigester returns a Digester seeded per alg's session-seed
// convention (MD5's "proper" prepend form, MD4/XXH64/XXH3's numeric
// seed), mirroring Md5Seed/with_seed semantics (spec §4.2).
func seedableDigester(alg digest.Algorithm, seed int32) (digest.Digester, bool) {
	switch alg {
	case digest.MD5:
		return digest.NewMD5(digest.ProperSeed(seed)), true
	case digest.MD4:
		return digest.NewMD4(seed), true
	case digest.XXH64:
		return digest.NewXXH64(uint64(seed)), true
	case digest.XXH3_64:
		return digest.NewXXH3_64Seeded(uint64(seed)), true
	case digest.XXH3_128:
		return digest.NewXXH3_128Seeded(uint64(seed)), true
	default:
		return nil, false
	}
}
