// Package rsyncwire implements the multiplex framer: the envelope that
// wraps bulk data and out-of-band control messages (errors, redo
// requests, file skips) into a single duplex byte stream once the
// negotiation prologue and handshake have completed.
package rsyncwire

import "fmt"

// MPLEX_BASE is added to a MessageCode to form the high byte of a frame
// header, grounded directly on the teacher's multiplexWriter
// (internal/rsyncd/rsyncd.go), which hardcodes this constant as 7.
const MplexBase = 7

// MaxPayloadLength is the largest payload a single frame may carry; the
// low 24 bits of the header encode the length, so this is also the
// structural ceiling 0x00FFFFFF imposes.
const MaxPayloadLength = 1<<24 - 1

// MessageCode enumerates the frame payload kinds multiplexed onto the
// duplex stream after setup completes.
type MessageCode byte

const (
	MsgData MessageCode = iota
	MsgInfo
	MsgError
	MsgWarning
	MsgErrorXfer
	MsgLog
	MsgClient
	MsgErrorSocket
	MsgErrorUtf8
	MsgErrorExit
	MsgIoError
	MsgNoSend
	MsgRedo
	MsgDeleted
	MsgStats
	MsgSuccess
	MsgFlistEof
	MsgFlistOffset
	MsgDelStats
)

var codeNames = map[MessageCode]string{
	MsgData:        "Data",
	MsgInfo:        "Info",
	MsgError:       "Error",
	MsgWarning:     "Warning",
	MsgErrorXfer:   "ErrorXfer",
	MsgLog:         "Log",
	MsgClient:      "Client",
	MsgErrorSocket: "ErrorSocket",
	MsgErrorUtf8:   "ErrorUtf8",
	MsgErrorExit:   "ErrorExit",
	MsgIoError:     "IoError",
	MsgNoSend:      "NoSend",
	MsgRedo:        "Redo",
	MsgDeleted:     "Deleted",
	MsgStats:       "Stats",
	MsgSuccess:     "Success",
	MsgFlistEof:    "FlistEof",
	MsgFlistOffset: "FlistOffset",
	MsgDelStats:    "DelStats",
}

func (c MessageCode) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("MessageCode(%d)", byte(c))
}

// isKnownCode reports whether c is one of the enumerated message codes;
// unknown codes on the wire are rejected rather than silently accepted.
func isKnownCode(c MessageCode) bool {
	_, ok := codeNames[c]
	return ok
}

// MessageFrame is a decoded multiplex frame: a message code paired with
// its payload bytes.
type MessageFrame struct {
	Code    MessageCode
	Payload []byte
}

func packHeader(code MessageCode, payloadLen int) uint32 {
	return uint32(MplexBase+code)<<24 | uint32(payloadLen)&0x00FFFFFF
}

func unpackHeader(h uint32) (code MessageCode, payloadLen int, ok bool) {
	tag := byte(h >> 24)
	if tag < MplexBase {
		return 0, 0, false
	}
	return MessageCode(tag - MplexBase), int(h & 0x00FFFFFF), true
}
