package flist

import (
	"fmt"
	"io"

	"github.com/oferchen/rsync-sub007/internal/wireformat"
)

// EntryFlags is the per-entry bitmap indicating which fields were
// reused from the previously transmitted entry (spec §4.9).
type EntryFlags uint16

const (
	SameName EntryFlags = 1 << iota
	SameMode
	SameUID
	SameGID
	SameTime
	Extended     // set on an entry whose flags would otherwise be zero, so it is not read as the end-of-list marker; no extra data follows
	XnameFollows // a variable-length extended name follows (symlink target)
	Hlink        // this entry is a non-first member of a hardlink group and HardlinkRef (the first member's index) follows; the first member itself carries no Hlink bit
)

// WriteCodec encodes a FileList's entries with incremental field reuse,
// maintaining "previous entry" state across calls the way the sender's
// writer does (spec §4.9).
type WriteCodec struct {
	useVarintFlags bool
	havePrev       bool
	prev           FileEntry
}

// NewWriteCodec returns an entry encoder. useVarintFlags selects the
// varint flag encoding gated on VARINT_FLIST_FLAGS; otherwise flags are
// a single byte, matching pre-30 protocols.
func NewWriteCodec(useVarintFlags bool) *WriteCodec {
	return &WriteCodec{useVarintFlags: useVarintFlags}
}

// ReadCodec is the decode-side mirror of WriteCodec.
type ReadCodec struct {
	useVarintFlags bool
	havePrev       bool
	prev           FileEntry
}

// NewReadCodec returns an entry decoder.
func NewReadCodec(useVarintFlags bool) *ReadCodec {
	return &ReadCodec{useVarintFlags: useVarintFlags}
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// WriteEntry encodes e relative to the codec's previous entry.
func (c *WriteCodec) WriteEntry(w io.Writer, e FileEntry) error {
	var flags EntryFlags

	prefixLen := 0
	if c.havePrev {
		prefixLen = commonPrefixLen(c.prev.RelativePath, e.RelativePath)
		if prefixLen > 0 {
			flags |= SameName
		}
		if c.prev.Mode == e.Mode {
			flags |= SameMode
		}
		if c.prev.HaveUID && e.HaveUID && c.prev.UID == e.UID {
			flags |= SameUID
		}
		if c.prev.HaveGID && e.HaveGID && c.prev.GID == e.GID {
			flags |= SameGID
		}
		if c.prev.MtimeSeconds == e.MtimeSeconds && c.prev.MtimeNanos == e.MtimeNanos {
			flags |= SameTime
		}
	}
	if e.Kind == KindSymlink {
		flags |= XnameFollows
	}
	if e.HardlinkRef >= 0 {
		flags |= Hlink
	}
	if flags == 0 {
		flags = Extended
	}

	if err := c.writeFlags(w, flags); err != nil {
		return err
	}

	suffix := e.RelativePath[prefixLen:]
	if flags&SameName != 0 {
		if err := writeVarintLen(w, prefixLen); err != nil {
			return err
		}
	}
	if err := writeVarintLen(w, len(suffix)); err != nil {
		return err
	}
	if _, err := io.WriteString(w, suffix); err != nil {
		return err
	}

	if err := writeVarint64(w, e.Size); err != nil {
		return err
	}
	if flags&SameTime == 0 {
		if err := writeVarint64(w, e.MtimeSeconds); err != nil {
			return err
		}
		if err := writeVarint64(w, int64(e.MtimeNanos)); err != nil {
			return err
		}
	}
	if flags&SameMode == 0 {
		if err := writeVarint64(w, int64(e.Mode)); err != nil {
			return err
		}
	}
	if flags&SameUID == 0 && e.HaveUID {
		if err := writeVarint64(w, int64(e.UID)); err != nil {
			return err
		}
	}
	if flags&SameGID == 0 && e.HaveGID {
		if err := writeVarint64(w, int64(e.GID)); err != nil {
			return err
		}
	}
	if flags&XnameFollows != 0 {
		if err := writeVarintLen(w, len(e.SymlinkTarget)); err != nil {
			return err
		}
		if _, err := io.WriteString(w, e.SymlinkTarget); err != nil {
			return err
		}
	}
	if err := writeVarint64(w, int64(e.Kind)); err != nil {
		return err
	}
	if e.Kind == KindDevice {
		if err := writeVarint64(w, int64(e.DeviceMajor)); err != nil {
			return err
		}
		if err := writeVarint64(w, int64(e.DeviceMinor)); err != nil {
			return err
		}
	}
	if flags&Hlink != 0 {
		if err := writeVarint64(w, int64(e.HardlinkRef)); err != nil {
			return err
		}
	}

	c.prev = e
	c.havePrev = true
	return nil
}

// WriteEnd writes the zero-flags end-of-list marker. When safeFileList
// is set, an additional io_error byte follows (spec §4.9).
func (c *WriteCodec) WriteEnd(w io.Writer, safeFileList bool, ioError bool) error {
	if err := c.writeFlags(w, 0); err != nil {
		return err
	}
	if safeFileList {
		b := byte(0)
		if ioError {
			b = 1
		}
		if _, err := w.Write([]byte{b}); err != nil {
			return err
		}
	}
	return nil
}

func (c *WriteCodec) writeFlags(w io.Writer, f EntryFlags) error {
	if c.useVarintFlags {
		_, err := w.Write(wireformat.EncodeVarint(nil, int64(f)))
		return err
	}
	_, err := w.Write([]byte{byte(f)})
	return err
}

func writeVarintLen(w io.Writer, n int) error {
	_, err := w.Write(wireformat.EncodeVarint(nil, int64(n)))
	return err
}

func writeVarint64(w io.Writer, v int64) error {
	_, err := w.Write(wireformat.EncodeVarint(nil, v))
	return err
}

// ReadEntry decodes one entry, or reports end=true at the zero-flags
// terminator (with ioError populated when safeFileList is set).
func (c *ReadCodec) ReadEntry(r io.Reader, safeFileList bool) (entry FileEntry, end bool, ioError bool, err error) {
	flags, err := c.readFlags(r)
	if err != nil {
		return FileEntry{}, false, false, err
	}
	if flags == 0 {
		if safeFileList {
			var b [1]byte
			if _, err := io.ReadFull(r, b[:]); err != nil {
				return FileEntry{}, true, false, err
			}
			ioError = b[0] != 0
		}
		return FileEntry{}, true, ioError, nil
	}

	var prefixLen int
	if flags&SameName != 0 {
		n, err := readVarintLen(r)
		if err != nil {
			return FileEntry{}, false, false, err
		}
		prefixLen = n
	}
	suffixLen, err := readVarintLen(r)
	if err != nil {
		return FileEntry{}, false, false, err
	}
	suffix := make([]byte, suffixLen)
	if suffixLen > 0 {
		if _, err := io.ReadFull(r, suffix); err != nil {
			return FileEntry{}, false, false, err
		}
	}

	var path string
	if c.havePrev && prefixLen > 0 {
		if prefixLen > len(c.prev.RelativePath) {
			return FileEntry{}, false, false, fmt.Errorf("flist: SAME_NAME prefix length %d exceeds previous path length %d", prefixLen, len(c.prev.RelativePath))
		}
		path = c.prev.RelativePath[:prefixLen] + string(suffix)
	} else {
		path = string(suffix)
	}

	e := FileEntry{RelativePath: path, HardlinkRef: -1}

	size, err := readVarint64(r)
	if err != nil {
		return FileEntry{}, false, false, err
	}
	e.Size = size

	if flags&SameTime != 0 {
		e.MtimeSeconds = c.prev.MtimeSeconds
		e.MtimeNanos = c.prev.MtimeNanos
	} else {
		sec, err := readVarint64(r)
		if err != nil {
			return FileEntry{}, false, false, err
		}
		nsec, err := readVarint64(r)
		if err != nil {
			return FileEntry{}, false, false, err
		}
		e.MtimeSeconds = sec
		e.MtimeNanos = int32(nsec)
	}

	if flags&SameMode != 0 {
		e.Mode = c.prev.Mode
	} else {
		mode, err := readVarint64(r)
		if err != nil {
			return FileEntry{}, false, false, err
		}
		e.Mode = uint32(mode)
	}

	if flags&SameUID != 0 {
		e.UID, e.HaveUID = c.prev.UID, c.prev.HaveUID
	} else {
		uid, err := readVarint64(r)
		if err != nil {
			return FileEntry{}, false, false, err
		}
		e.UID, e.HaveUID = int32(uid), true
	}

	if flags&SameGID != 0 {
		e.GID, e.HaveGID = c.prev.GID, c.prev.HaveGID
	} else {
		gid, err := readVarint64(r)
		if err != nil {
			return FileEntry{}, false, false, err
		}
		e.GID, e.HaveGID = int32(gid), true
	}

	if flags&XnameFollows != 0 {
		n, err := readVarintLen(r)
		if err != nil {
			return FileEntry{}, false, false, err
		}
		buf := make([]byte, n)
		if n > 0 {
			if _, err := io.ReadFull(r, buf); err != nil {
				return FileEntry{}, false, false, err
			}
		}
		e.SymlinkTarget = string(buf)
	}

	kindRaw, err := readVarint64(r)
	if err != nil {
		return FileEntry{}, false, false, err
	}
	e.Kind = Kind(kindRaw)

	if e.Kind == KindDevice {
		major, err := readVarint64(r)
		if err != nil {
			return FileEntry{}, false, false, err
		}
		minor, err := readVarint64(r)
		if err != nil {
			return FileEntry{}, false, false, err
		}
		e.DeviceMajor = uint32(major)
		e.DeviceMinor = uint32(minor)
	}

	if flags&Hlink != 0 {
		ref, err := readVarint64(r)
		if err != nil {
			return FileEntry{}, false, false, err
		}
		e.HardlinkRef = int32(ref)
	}

	c.prev = e
	c.havePrev = true
	return e, false, false, nil
}

func (c *ReadCodec) readFlags(r io.Reader) (EntryFlags, error) {
	if c.useVarintFlags {
		v, err := wireformat.DecodeVarint(r)
		if err != nil {
			return 0, err
		}
		return EntryFlags(v), nil
	}
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return EntryFlags(b[0]), nil
}

func readVarintLen(r io.Reader) (int, error) {
	v, err := wireformat.DecodeVarint(r)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func readVarint64(r io.Reader) (int64, error) {
	return wireformat.DecodeVarint(r)
}
