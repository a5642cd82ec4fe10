package delta

// TokenKind discriminates a DeltaToken's payload.
type TokenKind int

const (
	TokenCopy TokenKind = iota
	TokenLiteral
	TokenDone
)

// DeltaToken is one element of the delta stream: a reference into the
// basis file (Copy), inline bytes not found in the basis (Literal), or
// the stream terminator (Done). Exactly one of the payload fields is
// meaningful per Kind (spec §4.3 "Output").
type DeltaToken struct {
	Kind        TokenKind
	BlockIndex  uint32 // meaningful for TokenCopy
	Length      uint32 // meaningful for TokenCopy: number of basis bytes referenced
	LiteralData []byte // meaningful for TokenLiteral
}

// Copy constructs a Copy token.
func Copy(blockIndex, length uint32) DeltaToken {
	return DeltaToken{Kind: TokenCopy, BlockIndex: blockIndex, Length: length}
}

// Literal constructs a Literal token. data is retained, not copied;
// callers must not mutate it afterward.
func Literal(data []byte) DeltaToken {
	return DeltaToken{Kind: TokenLiteral, LiteralData: data}
}

// Done constructs the stream terminator.
func Done() DeltaToken { return DeltaToken{Kind: TokenDone} }
