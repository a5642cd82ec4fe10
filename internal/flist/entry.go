// Package flist implements the file-list codec: the deterministically
// ordered sequence of file entries exchanged at the start of a session,
// with incremental field reuse between consecutive entries and the
// parallel UID/GID name maps (spec §4.9).
package flist

// Kind classifies a FileEntry's filesystem type.
type Kind byte

const (
	KindFile Kind = iota
	KindDirectory
	KindSymlink
	KindDevice
	KindSpecial
)

// FileEntry is one file-list record. Kind-specific fields are populated
// only when relevant: SymlinkTarget for KindSymlink, DeviceMajor/Minor
// for KindDevice, HardlinkRef for a non-first member of a hardlink
// group.
type FileEntry struct {
	RelativePath  string
	Kind          Kind
	Size          int64
	Mode          uint32
	MtimeSeconds  int64
	MtimeNanos    int32
	UID           int32
	GID           int32
	HaveUID       bool
	HaveGID       bool
	SymlinkTarget string
	DeviceMajor   uint32
	DeviceMinor   uint32
	HardlinkRef   int32 // index into the FileList of the first member; -1 if none
}

// FileList is a deterministically ordered sequence of FileEntry, sorted
// with Compare before transmission (spec §3 "FileList").
type FileList struct {
	Entries []FileEntry
	// FullPaths is a parallel array of equal length holding each entry's
	// full filesystem path (the Generator's source-tree location), kept
	// in lockstep with Entries by every sort/permute operation.
	FullPaths []string
}

// Len returns the number of entries in the list.
func (fl *FileList) Len() int { return len(fl.Entries) }
