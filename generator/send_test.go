package generator

import (
	"bytes"
	"testing"

	"github.com/oferchen/rsync-sub007/internal/flist"
	"github.com/oferchen/rsync-sub007/internal/rsyncflags"
	"github.com/oferchen/rsync-sub007/internal/wireformat"
)

func TestSendFileListRoundTripsEntriesAndIDs(t *testing.T) {
	fl := &flist.FileList{
		Entries: []flist.FileEntry{
			{RelativePath: "b.txt", Kind: flist.KindFile, Size: 5, UID: 1000, GID: 1000, HaveUID: true, HaveGID: true, HardlinkRef: -1},
			{RelativePath: "a.txt", Kind: flist.KindFile, Size: 3, UID: 1000, GID: 1000, HaveUID: true, HaveGID: true, HardlinkRef: -1},
		},
		FullPaths: []string{"/src/b.txt", "/src/a.txt"},
	}
	uids := flist.IdList{Entries: []flist.IdEntry{{ID: 1000, Name: "alice"}}}
	gids := flist.IdList{Entries: []flist.IdEntry{{ID: 1000, Name: "alice"}}}

	var buf bytes.Buffer
	const protocol = 29 // < 30, so SendFileList also emits the trailing legacy io-errors int32
	compat := rsyncflags.CompatibilityFlags(0)
	if err := SendFileList(&buf, fl, compat, protocol, uids, gids, false); err != nil {
		t.Fatalf("SendFileList: %v", err)
	}

	rc := flist.NewReadCodec(compat.Has(rsyncflags.VarintFlistFlags))
	var got []flist.FileEntry
	for {
		e, end, _, err := rc.ReadEntry(&buf, compat.Has(rsyncflags.SafeFileList))
		if err != nil {
			t.Fatalf("ReadEntry: %v", err)
		}
		if end {
			break
		}
		got = append(got, e)
	}
	// Sort() orders the list before transmission; the sent order need
	// not match insertion order, only that every path round-trips.
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	names := map[string]bool{}
	for _, e := range got {
		names[e.RelativePath] = true
	}
	if !names["a.txt"] || !names["b.txt"] {
		t.Fatalf("round-tripped entries = %+v", got)
	}

	gotUIDs, err := flist.ReadIdList(&buf, compat.Has(rsyncflags.ID0Names))
	if err != nil {
		t.Fatalf("ReadIdList (uids): %v", err)
	}
	if len(gotUIDs.Entries) != 1 || gotUIDs.Entries[0].Name != "alice" {
		t.Fatalf("uids = %+v", gotUIDs.Entries)
	}
	gotGIDs, err := flist.ReadIdList(&buf, compat.Has(rsyncflags.ID0Names))
	if err != nil {
		t.Fatalf("ReadIdList (gids): %v", err)
	}
	if len(gotGIDs.Entries) != 1 || gotGIDs.Entries[0].Name != "alice" {
		t.Fatalf("gids = %+v", gotGIDs.Entries)
	}

	v, err := wireformat.DecodeLegacyInt32(&buf)
	if err != nil {
		t.Fatalf("trailing legacy int32: %v", err)
	}
	if v != 0 {
		t.Fatalf("trailing legacy int32 = %d, want 0", v)
	}
	if buf.Len() != 0 {
		t.Fatalf("%d unexpected trailing bytes", buf.Len())
	}
}

func TestSendFileListSkipsIDListsWhenNumeric(t *testing.T) {
	fl := &flist.FileList{
		Entries:   []flist.FileEntry{{RelativePath: "f", Kind: flist.KindFile, HardlinkRef: -1}},
		FullPaths: []string{"/src/f"},
	}
	var buf bytes.Buffer
	compat := rsyncflags.CompatibilityFlags(0)
	if err := SendFileList(&buf, fl, compat, 31, flist.IdList{}, flist.IdList{}, true); err != nil {
		t.Fatalf("SendFileList: %v", err)
	}

	rc := flist.NewReadCodec(false)
	_, end, _, err := rc.ReadEntry(&buf, false)
	if err != nil || end {
		t.Fatalf("ReadEntry: end=%v err=%v", end, err)
	}
	_, end, _, err = rc.ReadEntry(&buf, false)
	if err != nil || !end {
		t.Fatalf("expected end marker: end=%v err=%v", end, err)
	}
	// numericIDs=true and protocol>=30 means nothing else follows.
	if buf.Len() != 0 {
		t.Fatalf("%d unexpected trailing bytes with numericIDs", buf.Len())
	}
}

// TestSendFileListSkipsIDListsUnderIncRecurse exercises spec §4.9's
// other ID-list suppression condition: even with numericIDs off, a
// negotiated INC_RECURSE means IDs are resolved per-directory instead,
// so no IdList pair is transmitted here — only the NDX_FLIST_EOF
// marker IncRecurse itself triggers.
func TestSendFileListSkipsIDListsUnderIncRecurse(t *testing.T) {
	fl := &flist.FileList{
		Entries:   []flist.FileEntry{{RelativePath: "f", Kind: flist.KindFile, HardlinkRef: -1}},
		FullPaths: []string{"/src/f"},
	}
	var buf bytes.Buffer
	compat := rsyncflags.CompatibilityFlags(0) | rsyncflags.IncRecurse
	uids := flist.IdList{Entries: []flist.IdEntry{{ID: 1000, Name: "alice"}}}
	if err := SendFileList(&buf, fl, compat, 31, uids, uids, false); err != nil {
		t.Fatalf("SendFileList: %v", err)
	}

	rc := flist.NewReadCodec(compat.Has(rsyncflags.VarintFlistFlags))
	_, end, _, err := rc.ReadEntry(&buf, compat.Has(rsyncflags.SafeFileList))
	if err != nil || end {
		t.Fatalf("ReadEntry: end=%v err=%v", end, err)
	}
	_, end, _, err = rc.ReadEntry(&buf, compat.Has(rsyncflags.SafeFileList))
	if err != nil || !end {
		t.Fatalf("expected end marker: end=%v err=%v", end, err)
	}

	ndx := wireformat.NewNdxReadCodec(true)
	got, err := ndx.ReadNdx(&buf)
	if err != nil {
		t.Fatalf("ReadNdx: %v", err)
	}
	if got != wireformat.NdxFlistEOF {
		t.Fatalf("ndx = %d, want NdxFlistEOF (no IdList pair should precede it)", got)
	}
	if buf.Len() != 0 {
		t.Fatalf("%d unexpected trailing bytes", buf.Len())
	}
}
