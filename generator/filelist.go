package generator

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/oferchen/rsync-sub007/internal/flist"
)

// BuildFileList walks basePaths, producing a FileEntry for every
// matched path and the parallel full-path array the transfer loop
// needs to open files by index. Recursion mirrors the teacher's
// filepath.Walk call in internal/rsyncd/rsyncd.go:sendFileList,
// generalized to multiple base paths and to the full entry-kind set
// (symlinks, devices, hardlinks) the distilled spec's §4.10 step 3
// calls for rather than the teacher's regular-files-and-dirs-only walk.
//
// Filter rules, perishable semantics, and merge-file processing (spec
// §4.10 step 3's filter bullet) are a client/CLI-facing concern the
// spec's Non-goals explicitly place outside this engine's scope; every
// path under basePaths is included.
func BuildFileList(basePaths []string, recursive bool) (*flist.FileList, error) {
	fl := &flist.FileList{}
	seenInodes := map[uint64]int32{} // dev+ino -> first FileList index, for hardlink detection

	for _, base := range basePaths {
		root := filepath.Clean(base)
		info, err := os.Lstat(root)
		if err != nil {
			return nil, err
		}

		if !recursive || !info.IsDir() {
			if err := addEntry(fl, seenInodes, root, ".", info); err != nil {
				return nil, err
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if rel == "." {
				rel = filepath.Base(root)
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			return addEntry(fl, seenInodes, path, rel, fi)
		})
		if err != nil {
			return nil, err
		}
	}

	return fl, nil
}

func addEntry(fl *flist.FileList, seenInodes map[uint64]int32, fullPath, relPath string, info os.FileInfo) error {
	e := flist.FileEntry{
		RelativePath: relPath,
		Mode:         uint32(info.Mode().Perm()),
		MtimeSeconds: info.ModTime().Unix(),
		HardlinkRef:  -1,
		HaveUID:      true,
		HaveGID:      true,
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(fullPath)
		if err != nil {
			return err
		}
		e.Kind = flist.KindSymlink
		e.SymlinkTarget = target
	case info.IsDir():
		e.Kind = flist.KindDirectory
	case info.Mode()&(os.ModeDevice|os.ModeCharDevice) != 0:
		e.Kind = flist.KindDevice
	case info.Mode().IsRegular():
		e.Kind = flist.KindFile
		e.Size = info.Size()
	default:
		e.Kind = flist.KindSpecial
	}

	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		e.UID = int32(st.Uid)
		e.GID = int32(st.Gid)
		if e.Kind == flist.KindFile && st.Nlink > 1 {
			key := inodeKey(uint64(st.Dev), st.Ino)
			if firstIdx, seen := seenInodes[key]; seen {
				e.HardlinkRef = firstIdx
			} else {
				seenInodes[key] = int32(len(fl.Entries))
			}
		}
	}

	fl.Entries = append(fl.Entries, e)
	fl.FullPaths = append(fl.FullPaths, fullPath)
	return nil
}

func inodeKey(dev, ino uint64) uint64 {
	return dev<<40 ^ ino
}

// CollectIDLists gathers the unique UIDs and GIDs referenced by fl into
// IdLists, omitting name resolution and returning bare numeric lists
// when numericIDs is set (spec §4.10 step 5). Name resolution itself
// (a platform name-lookup collaborator) is left to the caller via
// resolveUser/resolveGroup, since it is inherently environment-specific
// and outside this package's concerns.
func CollectIDLists(fl *flist.FileList, numericIDs bool, resolveUser, resolveGroup func(int32) string) (uids, gids flist.IdList) {
	uids = collectIDs(fl, numericIDs, resolveUser, func(e flist.FileEntry) int32 { return e.UID })
	gids = collectIDs(fl, numericIDs, resolveGroup, func(e flist.FileEntry) int32 { return e.GID })
	return uids, gids
}

func collectIDs(fl *flist.FileList, numericIDs bool, resolve func(int32) string, get func(flist.FileEntry) int32) flist.IdList {
	seen := map[int32]bool{}
	var ids []int32
	for _, e := range fl.Entries {
		id := get(e)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	list := flist.IdList{}
	for _, id := range ids {
		name := ""
		if !numericIDs && resolve != nil {
			name = resolve(id)
		}
		list.Entries = append(list.Entries, flist.IdEntry{ID: id, Name: name})
	}
	return list
}
