package rsyncwire

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// Writer multiplexes MessageFrames onto an underlying io.Writer, mirroring
// the teacher's multiplexWriter (internal/rsyncd/rsyncd.go) generalized to
// the full MessageCode enumeration instead of a single hardcoded Data
// frame, and to vectored writes when the underlying writer supports them.
type Writer struct {
	underlying io.Writer
}

// NewWriter wraps underlying in a multiplexing Writer.
func NewWriter(underlying io.Writer) *Writer {
	return &Writer{underlying: underlying}
}

// WriteRaw bypasses multiplexing entirely, for handshake bytes that must
// precede (or are exempt from) the framed protocol.
func (w *Writer) WriteRaw(p []byte) error {
	n, err := w.underlying.Write(p)
	if err != nil {
		return err
	}
	if n == 0 && len(p) > 0 {
		return fmt.Errorf("rsyncwire: zero-byte write from underlying writer")
	}
	return nil
}

// WriteMessage serializes the 4-byte envelope header followed by payload.
// Payloads larger than MaxPayloadLength are rejected; splitting an
// oversized logical message into multiple Data frames is the caller's
// responsibility (the generator/receiver layers do this for bulk file
// data).
//
// Header and payload are written via net.Buffers so that writers backed
// by a net.Conn (or anything else implementing the vectored-write
// optimization net.Buffers.WriteTo looks for) send both in a single
// syscall; plain io.Writers fall back to net.Buffers' sequential-write
// loop transparently.
func (w *Writer) WriteMessage(code MessageCode, payload []byte) error {
	if len(payload) > MaxPayloadLength {
		return fmt.Errorf("rsyncwire: payload length %d exceeds max %d", len(payload), MaxPayloadLength)
	}

	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], packHeader(code, len(payload)))

	want := int64(len(hdr))
	bufs := net.Buffers{append([]byte(nil), hdr[:]...)}
	if len(payload) > 0 {
		bufs = append(bufs, payload)
		want += int64(len(payload))
	}

	n, err := bufs.WriteTo(w.underlying)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("rsyncwire: zero-byte write from underlying writer")
	}
	if n != want {
		return fmt.Errorf("rsyncwire: short write: wrote %d of %d bytes", n, want)
	}
	return nil
}

// DataWriter adapts a Writer to a plain io.Writer over Data frames,
// splitting any write larger than MaxPayloadLength into multiple
// frames as §4.6 requires of higher layers.
type DataWriter struct {
	w *Writer
}

// NewDataWriter returns an io.Writer that frames every write as one or
// more MsgData messages on w.
func NewDataWriter(w *Writer) *DataWriter { return &DataWriter{w: w} }

func (d *DataWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > MaxPayloadLength {
			chunk = chunk[:MaxPayloadLength]
		}
		if err := d.w.WriteMessage(MsgData, chunk); err != nil {
			return total, err
		}
		total += len(chunk)
		p = p[len(chunk):]
	}
	return total, nil
}
