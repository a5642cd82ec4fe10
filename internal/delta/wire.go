package delta

import (
	"io"

	"github.com/oferchen/rsync-sub007/internal/wireformat"
)

// WriteTokenStream serializes tokens using rsync's classic token wire
// form: a positive legacy int32 length followed by that many literal
// bytes, a negative int32 `-(blockIndex+1)` for a Copy referencing one
// full basis block, and a zero int32 terminator for Done. Grounded on
// the teacher's recvToken loop in internal/receiver/receiver.go
// (`token == 0` end, `token > 0` literal, `token = -(token+1)` block
// index), generalized here to also accept the encode side.
func WriteTokenStream(w io.Writer, tokens []DeltaToken) error {
	for _, tok := range tokens {
		switch tok.Kind {
		case TokenLiteral:
			if len(tok.LiteralData) == 0 {
				continue
			}
			if _, err := w.Write(wireformat.EncodeLegacyInt32(nil, int32(len(tok.LiteralData)))); err != nil {
				return err
			}
			if _, err := w.Write(tok.LiteralData); err != nil {
				return err
			}
		case TokenCopy:
			raw := -(int32(tok.BlockIndex) + 1)
			if _, err := w.Write(wireformat.EncodeLegacyInt32(nil, raw)); err != nil {
				return err
			}
		case TokenDone:
			_, err := w.Write(wireformat.EncodeLegacyInt32(nil, 0))
			return err
		}
	}
	_, err := w.Write(wireformat.EncodeLegacyInt32(nil, 0))
	return err
}

// ReadTokenStream is the decode-side mirror of WriteTokenStream. A Copy
// token's Length is resolved from head via SumHead.BlockLen so the
// final short block is handled without the wire needing to repeat it.
func ReadTokenStream(r io.Reader, head wireformat.SumHead) ([]DeltaToken, error) {
	var tokens []DeltaToken
	for {
		raw, err := wireformat.DecodeLegacyInt32(r)
		if err != nil {
			return nil, err
		}
		switch {
		case raw == 0:
			tokens = append(tokens, Done())
			return tokens, nil
		case raw > 0:
			data := make([]byte, raw)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, err
			}
			tokens = append(tokens, Literal(data))
		default:
			blockIndex := uint32(-(raw + 1))
			tokens = append(tokens, Copy(blockIndex, head.BlockLen(blockIndex)))
		}
	}
}
