package generator

import (
	"io"

	"github.com/oferchen/rsync-sub007/internal/flist"
	"github.com/oferchen/rsync-sub007/internal/rsyncflags"
	"github.com/oferchen/rsync-sub007/internal/wireformat"
)

// SendFileList writes fl's sorted entries through w, followed by the
// end-of-list marker (plus the io-error byte when SAFE_FILE_LIST is
// negotiated), the UID/GID IdLists (when numericIDs is false and
// INC_RECURSE was not negotiated — incremental recursion resolves IDs
// per-directory instead, spec §4.9/§4.10 step 6), the legacy 4-byte
// io-errors int32 for protocols below 30, and NDX_FLIST_EOF when
// INC_RECURSE was negotiated.
func SendFileList(w io.Writer, fl *flist.FileList, compat rsyncflags.CompatibilityFlags, protocol int, uids, gids flist.IdList, numericIDs bool) error {
	fl.Sort()

	varintFlags := compat.Has(rsyncflags.VarintFlistFlags)
	wc := flist.NewWriteCodec(varintFlags)
	for _, e := range fl.Entries {
		if err := wc.WriteEntry(w, e); err != nil {
			return err
		}
	}

	safeFileList := compat.Has(rsyncflags.SafeFileList)
	if err := wc.WriteEnd(w, safeFileList, false); err != nil {
		return err
	}

	if !numericIDs && !compat.Has(rsyncflags.IncRecurse) {
		id0Names := compat.Has(rsyncflags.ID0Names)
		if err := flist.WriteIdList(w, uids, id0Names); err != nil {
			return err
		}
		if err := flist.WriteIdList(w, gids, id0Names); err != nil {
			return err
		}
	}

	if protocol < 30 {
		if _, err := w.Write(wireformat.EncodeLegacyInt32(nil, 0)); err != nil {
			return err
		}
	}

	if compat.Has(rsyncflags.IncRecurse) {
		ndx := wireformat.NewNdxWriteCodec(true)
		if err := ndx.WriteNdx(w, wireformat.NdxFlistEOF); err != nil {
			return err
		}
	}

	return nil
}
