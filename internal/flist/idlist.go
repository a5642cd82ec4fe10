package flist

import (
	"fmt"
	"io"

	"github.com/oferchen/rsync-sub007/internal/wireformat"
)

// IdEntry is one numeric-id/name pair in an IdList.
type IdEntry struct {
	ID   int32
	Name string // empty when no name resolution was available/requested
}

// IdList is the UID or GID name map transmitted after the file list when
// numeric_ids is off and INC_RECURSE is absent (spec §4.9, §3).
type IdList struct {
	Entries []IdEntry
	// ID0Name is the optional trailing name for id=0, present only under
	// the ID0_NAMES compatibility flag.
	ID0Name     string
	HaveID0Name bool
}

// WriteIdList writes the `(varint id, u8 name_len, name_bytes)*` form
// terminated by `varint 0`, followed by an optional id=0 name when
// id0Names is set.
func WriteIdList(w io.Writer, list IdList, id0Names bool) error {
	for _, e := range list.Entries {
		if _, err := w.Write(wireformat.EncodeVarint(nil, int64(e.ID))); err != nil {
			return err
		}
		if len(e.Name) > 0xFF {
			return fmt.Errorf("flist: id name %q exceeds 255 bytes", e.Name)
		}
		if _, err := w.Write([]byte{byte(len(e.Name))}); err != nil {
			return err
		}
		if len(e.Name) > 0 {
			if _, err := io.WriteString(w, e.Name); err != nil {
				return err
			}
		}
	}
	if _, err := w.Write(wireformat.EncodeVarint(nil, 0)); err != nil {
		return err
	}
	if id0Names {
		if err := writeLengthPrefixedName(w, list.ID0Name); err != nil {
			return err
		}
	}
	return nil
}

func writeLengthPrefixedName(w io.Writer, name string) error {
	if len(name) > 0xFF {
		return fmt.Errorf("flist: id0 name %q exceeds 255 bytes", name)
	}
	if _, err := w.Write([]byte{byte(len(name))}); err != nil {
		return err
	}
	if len(name) > 0 {
		_, err := io.WriteString(w, name)
		return err
	}
	return nil
}

// ReadIdList is the mirror of WriteIdList.
func ReadIdList(r io.Reader, id0Names bool) (IdList, error) {
	var list IdList
	for {
		id, err := wireformat.DecodeVarint(r)
		if err != nil {
			return list, err
		}
		if id == 0 {
			break
		}
		name, err := readLengthPrefixedName(r)
		if err != nil {
			return list, err
		}
		list.Entries = append(list.Entries, IdEntry{ID: int32(id), Name: name})
	}
	if id0Names {
		name, err := readLengthPrefixedName(r)
		if err != nil {
			return list, err
		}
		list.ID0Name = name
		list.HaveID0Name = true
	}
	return list, nil
}

func readLengthPrefixedName(r io.Reader) (string, error) {
	var lenBuf [1]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := int(lenBuf[0])
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
