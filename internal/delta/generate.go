package delta

import (
	"bytes"
	"io"

	"github.com/oferchen/rsync-sub007/internal/digest"
	"github.com/oferchen/rsync-sub007/internal/rollsum"
	"github.com/oferchen/rsync-sub007/internal/rsyncwire"
	"github.com/oferchen/rsync-sub007/internal/wireformat"
)

// maxLiteralChunk bounds a single Literal token's payload so it can
// always be carried in one Data frame without the higher transport
// layer having to split it further (spec §4.3 "chunked to respect
// MAX_PAYLOAD_LENGTH").
const maxLiteralChunk = rsyncwire.MaxPayloadLength

// Generate compares src against the basis signature index and returns
// the resulting token stream followed by the whole-file strong
// checksum. An empty index drives whole-file mode: the entire content
// is emitted as Literal tokens (spec §4.3 edge case: "count == 0").
//
// src is read to completion and held in memory for random-access
// window comparisons, mirroring real rsync's mmap'd source file
// (match.c's map_file) without resorting to unsafe code.
func Generate(src io.Reader, head wireformat.SumHead, idx *SignatureIndex, alg digest.Algorithm, seed int32) ([]DeltaToken, []byte, error) {
	buf, err := io.ReadAll(src)
	if err != nil {
		return nil, nil, err
	}

	whole := digest.DigestWithSeed(alg, int64(seed), buf)

	if idx.Empty() {
		var tokens []DeltaToken
		tokens = appendLiteralChunks(tokens, buf, 0, len(buf))
		tokens = append(tokens, Done())
		return tokens, whole, nil
	}

	tokens, err := matchBlocks(buf, head, idx, alg, seed)
	if err != nil {
		return nil, nil, err
	}
	return tokens, whole, nil
}

func matchBlocks(buf []byte, head wireformat.SumHead, idx *SignatureIndex, alg digest.Algorithm, seed int32) ([]DeltaToken, error) {
	n := len(buf)
	blockLen := int(head.BLength)

	var tokens []DeltaToken
	pos := 0
	literalStart := 0

	windowLen := minInt(blockLen, n-pos)
	var cur rollsum.Checksum
	if windowLen > 0 {
		cur.Update(buf[pos : pos+windowLen])
	}

	for {
		if windowLen > 0 {
			if block, ok := findMatch(buf[pos:pos+windowLen], cur.Value(), idx, alg, seed, head.S2Length); ok {
				tokens = appendLiteralChunks(tokens, buf, literalStart, pos)
				tokens = append(tokens, Copy(block, uint32(windowLen)))
				pos += windowLen
				literalStart = pos

				windowLen = minInt(blockLen, n-pos)
				cur = rollsum.Checksum{}
				if windowLen > 0 {
					cur.Update(buf[pos : pos+windowLen])
				}
				continue
			}
		}

		if windowLen == 0 {
			break
		}

		outByte := buf[pos]
		nextPos := pos + windowLen
		if nextPos < n {
			inByte := buf[nextPos]
			if err := cur.Roll(outByte, inByte); err != nil {
				return nil, err
			}
			pos++
		} else {
			pos++
			windowLen--
			if windowLen > 0 {
				cur = rollsum.Checksum{}
				cur.Update(buf[pos : pos+windowLen])
			}
		}
	}

	tokens = appendLiteralChunks(tokens, buf, literalStart, n)
	tokens = append(tokens, Done())
	return tokens, nil
}

// findMatch looks up weak among idx's candidates (already in ascending
// block-index order) and returns the first candidate whose strong sum
// matches window, implementing the "prefer the lowest block index"
// tie-break rule (spec §4.3 "Tie-breaking").
func findMatch(window []byte, weak uint32, idx *SignatureIndex, alg digest.Algorithm, seed int32, s2length uint32) (uint32, bool) {
	candidates := idx.candidates(weak)
	if len(candidates) == 0 {
		return 0, false
	}
	strong := digest.DigestWithSeed(alg, int64(seed), window)
	if int(s2length) < len(strong) {
		strong = strong[:s2length]
	}
	for _, c := range candidates {
		if bytes.Equal(strong, c.Strong) {
			return c.Index, true
		}
	}
	return 0, false
}

func appendLiteralChunks(tokens []DeltaToken, buf []byte, start, end int) []DeltaToken {
	for start < end {
		chunkEnd := start + maxLiteralChunk
		if chunkEnd > end {
			chunkEnd = end
		}
		data := append([]byte(nil), buf[start:chunkEnd]...)
		tokens = append(tokens, Literal(data))
		start = chunkEnd
	}
	return tokens
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
