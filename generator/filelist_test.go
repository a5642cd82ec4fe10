package generator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oferchen/rsync-sub007/internal/flist"
)

func TestBuildFileListWalksTreeRecursively(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("world"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("b.txt", filepath.Join(root, "sub", "link")); err != nil {
		t.Fatal(err)
	}

	fl, err := BuildFileList([]string{root}, true)
	if err != nil {
		t.Fatalf("BuildFileList: %v", err)
	}
	if len(fl.Entries) != len(fl.FullPaths) {
		t.Fatalf("Entries/FullPaths length mismatch: %d vs %d", len(fl.Entries), len(fl.FullPaths))
	}

	var sawFile, sawDir, sawSymlink bool
	for _, e := range fl.Entries {
		switch e.Kind {
		case flist.KindFile:
			sawFile = true
		case flist.KindDirectory:
			sawDir = true
		case flist.KindSymlink:
			sawSymlink = true
			if e.SymlinkTarget != "b.txt" {
				t.Fatalf("symlink target = %q, want %q", e.SymlinkTarget, "b.txt")
			}
		}
	}
	if !sawFile || !sawDir || !sawSymlink {
		t.Fatalf("missing expected entry kinds: file=%v dir=%v symlink=%v", sawFile, sawDir, sawSymlink)
	}
}

func TestBuildFileListSingleFileNonRecursive(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "only.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	fl, err := BuildFileList([]string{path}, false)
	if err != nil {
		t.Fatalf("BuildFileList: %v", err)
	}
	if len(fl.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(fl.Entries))
	}
	if fl.Entries[0].Kind != flist.KindFile {
		t.Fatalf("kind = %v, want KindFile", fl.Entries[0].Kind)
	}
}

func TestBuildFileListDetectsHardlinks(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.txt")
	b := filepath.Join(root, "b.txt")
	if err := os.WriteFile(a, []byte("shared"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Link(a, b); err != nil {
		t.Skipf("hardlinks unsupported in this environment: %v", err)
	}

	fl, err := BuildFileList([]string{root}, true)
	if err != nil {
		t.Fatalf("BuildFileList: %v", err)
	}

	var firstRef, secondRef int32 = -2, -2
	for i, e := range fl.Entries {
		switch e.RelativePath {
		case "a.txt":
			firstRef = e.HardlinkRef
		case "b.txt":
			secondRef = e.HardlinkRef
			_ = i
		}
	}
	if firstRef != -1 {
		t.Fatalf("a.txt HardlinkRef = %d, want -1 (first member)", firstRef)
	}
	if secondRef < 0 {
		t.Fatalf("b.txt HardlinkRef = %d, want a reference to the first member", secondRef)
	}
}

func TestCollectIDListsDeduplicatesAndSorts(t *testing.T) {
	fl := &flist.FileList{Entries: []flist.FileEntry{
		{UID: 30, GID: 5, HaveUID: true, HaveGID: true},
		{UID: 10, GID: 5, HaveUID: true, HaveGID: true},
		{UID: 30, GID: 1, HaveUID: true, HaveGID: true},
	}}

	uids, gids := CollectIDLists(fl, true, nil, nil)
	if len(uids.Entries) != 2 || uids.Entries[0].ID != 10 || uids.Entries[1].ID != 30 {
		t.Fatalf("uids = %+v", uids.Entries)
	}
	if len(gids.Entries) != 2 || gids.Entries[0].ID != 1 || gids.Entries[1].ID != 5 {
		t.Fatalf("gids = %+v", gids.Entries)
	}
	for _, e := range uids.Entries {
		if e.Name != "" {
			t.Fatalf("numericIDs=true should yield empty names, got %q", e.Name)
		}
	}
}

func TestCollectIDListsResolvesNames(t *testing.T) {
	fl := &flist.FileList{Entries: []flist.FileEntry{
		{UID: 0, GID: 0, HaveUID: true, HaveGID: true},
	}}
	uids, _ := CollectIDLists(fl, false, func(id int32) string { return "root" }, func(id int32) string { return "root" })
	if len(uids.Entries) != 1 || uids.Entries[0].Name != "root" {
		t.Fatalf("uids = %+v", uids.Entries)
	}
}
