package flist

import "sort"

// Compare implements the rsync path comparator: a plain byte-wise
// comparison of the relative path, with directories and files
// interleaved in path-sort order rather than directories-first (spec §3
// "FileList": "not directory-first").
func Compare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Sort orders fl.Entries by Compare and applies the identical
// permutation to fl.FullPaths via cycle-following in-place swaps, so
// neither array is ever cloned wholesale (spec §4.10 step 4, §8 property
// 10, REDESIGN "parallel permutation without clones"). Each entry's
// HardlinkRef is rewritten to the referenced entry's new index.
func (fl *FileList) Sort() {
	n := len(fl.Entries)
	if n != len(fl.FullPaths) {
		panic("flist: Entries and FullPaths length mismatch")
	}
	if n < 2 {
		return
	}

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return Compare(fl.Entries[perm[i]].RelativePath, fl.Entries[perm[j]].RelativePath) < 0
	})

	newIdx := make([]int32, n)
	for i, old := range perm {
		newIdx[old] = int32(i)
	}

	permuteInPlace(fl.Entries, perm)
	permuteInPlace(fl.FullPaths, perm)

	for i := range fl.Entries {
		if ref := fl.Entries[i].HardlinkRef; ref >= 0 && int(ref) < n {
			fl.Entries[i].HardlinkRef = newIdx[ref]
		}
	}
}

// permuteInPlace rearranges arr so that arr[i] ends up holding what
// arr[perm[i]] held before the call, following each cycle of perm with a
// single scratch value instead of cloning the array: every element is
// moved exactly once, and perm itself is read-only so the same
// permutation can be replayed against a second parallel array (spec
// §4.10 step 4, §8 property 10).
func permuteInPlace[T any](arr []T, perm []int) {
	n := len(arr)
	visited := make([]bool, n)
	for i := 0; i < n; i++ {
		if visited[i] || perm[i] == i {
			visited[i] = true
			continue
		}
		j := i
		tmp := arr[i]
		for {
			visited[j] = true
			next := perm[j]
			if next == i {
				arr[j] = tmp
				break
			}
			arr[j] = arr[next]
			j = next
		}
	}
}
