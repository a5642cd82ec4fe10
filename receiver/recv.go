package receiver

import (
	"io"

	"github.com/oferchen/rsync-sub007/internal/flist"
	"github.com/oferchen/rsync-sub007/internal/rsyncflags"
	"github.com/oferchen/rsync-sub007/internal/wireformat"
)

// RecvFileList reads a file list through r the way SendFileList wrote
// it: sorted entries terminated by the zero-flags end marker, followed
// by the UID/GID IdLists (when numericIDs is false and INC_RECURSE was
// not negotiated), the legacy trailing io-errors int32 below protocol
// 30, and the NDX_FLIST_EOF marker when INC_RECURSE is negotiated
// (spec §4.9/§4.10 step 6).
//
// FullPaths is populated by joining destRoot with each entry's
// RelativePath, the parallel array the transfer loop needs to open
// and write destination files by index.
func RecvFileList(r io.Reader, compat rsyncflags.CompatibilityFlags, protocol int, numericIDs bool, destRoot string) (fl *flist.FileList, uids, gids flist.IdList, err error) {
	varintFlags := compat.Has(rsyncflags.VarintFlistFlags)
	rc := flist.NewReadCodec(varintFlags)
	safeFileList := compat.Has(rsyncflags.SafeFileList)

	fl = &flist.FileList{}
	for {
		e, end, _, rerr := rc.ReadEntry(r, safeFileList)
		if rerr != nil {
			return nil, uids, gids, rerr
		}
		if end {
			break
		}
		fl.Entries = append(fl.Entries, e)
		fl.FullPaths = append(fl.FullPaths, joinDestPath(destRoot, e.RelativePath))
	}

	if !numericIDs && !compat.Has(rsyncflags.IncRecurse) {
		id0Names := compat.Has(rsyncflags.ID0Names)
		uids, err = flist.ReadIdList(r, id0Names)
		if err != nil {
			return nil, uids, gids, err
		}
		gids, err = flist.ReadIdList(r, id0Names)
		if err != nil {
			return nil, uids, gids, err
		}
	}

	if protocol < 30 {
		if _, err := wireformat.DecodeLegacyInt32(r); err != nil {
			return nil, uids, gids, err
		}
	}

	if compat.Has(rsyncflags.IncRecurse) {
		ndx := wireformat.NewNdxReadCodec(true)
		if _, err := ndx.ReadNdx(r); err != nil {
			return nil, uids, gids, err
		}
	}

	return fl, uids, gids, nil
}

func joinDestPath(root, rel string) string {
	if root == "" {
		return rel
	}
	if rel == "." || rel == "" {
		return root
	}
	return root + "/" + rel
}
