package diskbuffer

import "sort"

// freeSpaceMap tracks holes in the data file left by freed or relocated
// blocks. Holes are kept sorted by position and never touch each other.
type freeSpaceMap struct {
	holes []blockLocation
}

type blockLocation struct {
	Pos  int64 `json:"pos"`
	Size int64 `json:"size"`
}

// allocate returns the position of the first hole that fits size, shrinking
// it, or -1 when none fits.
func (f *freeSpaceMap) allocate(size int64) int64 {
	for i, h := range f.holes {
		if h.Size < size {
			continue
		}
		pos := h.Pos
		if h.Size == size {
			f.holes = append(f.holes[:i], f.holes[i+1:]...)
		} else {
			f.holes[i] = blockLocation{Pos: h.Pos + size, Size: h.Size - size}
		}
		return pos
	}
	return -1
}

// free returns a region to the map, merging it with adjacent holes.
func (f *freeSpaceMap) free(pos, size int64) {
	if size <= 0 {
		return
	}
	i := sort.Search(len(f.holes), func(i int) bool { return f.holes[i].Pos >= pos })
	f.holes = append(f.holes, blockLocation{})
	copy(f.holes[i+1:], f.holes[i:])
	f.holes[i] = blockLocation{Pos: pos, Size: size}

	// merge with the next hole
	if i+1 < len(f.holes) && f.holes[i].Pos+f.holes[i].Size == f.holes[i+1].Pos {
		f.holes[i].Size += f.holes[i+1].Size
		f.holes = append(f.holes[:i+1], f.holes[i+2:]...)
	}
	// merge with the previous hole
	if i > 0 && f.holes[i-1].Pos+f.holes[i-1].Size == f.holes[i].Pos {
		f.holes[i-1].Size += f.holes[i].Size
		f.holes = append(f.holes[:i], f.holes[i+1:]...)
	}
}

func (f *freeSpaceMap) totalFree() int64 {
	var total int64
	for _, h := range f.holes {
		total += h.Size
	}
	return total
}

// rebuildFreeSpace derives the holes of a file of length end from the blocks it holds.
func rebuildFreeSpace(blocks map[uint64]blockLocation, end int64) *freeSpaceMap {
	used := make([]blockLocation, 0, len(blocks))
	for _, loc := range blocks {
		used = append(used, loc)
	}
	sort.Slice(used, func(i, j int) bool { return used[i].Pos < used[j].Pos })

	f := &freeSpaceMap{}
	var cursor int64
	for _, loc := range used {
		if loc.Pos > cursor {
			f.free(cursor, loc.Pos-cursor)
		}
		cursor = loc.Pos + loc.Size
	}
	if end > cursor {
		f.free(cursor, end-cursor)
	}
	return f
}
