package mdbox

import "MDEventDB/types"

// FindLeaf descends from the root to the leaf whose extents hold center. The
// caller must hold t.mu and have checked that center lies inside the root.
func (t *BoxTree) FindLeaf(center []float32) *Box {
	b := t.root
	for b.boxType == BoxGrid {
		b = b.children[childIndex(b.extents, b.splitInto, center)]
	}
	return b
}

// childIndex maps center to the grid cell it falls in, dimension 0 varying fastest.
func childIndex(extents []types.Extent, splitInto []int, center []float32) int {
	index, stride := 0, 1
	for d, n := range splitInto {
		ext := extents[d]
		i := int((float64(center[d]) - ext.Min) / ext.Width() * float64(n))
		if i < 0 {
			i = 0
		} else if i >= n {
			i = n - 1
		}
		index += i * stride
		stride *= n
	}
	return index
}

// childExtents returns the extents of grid cell index.
func childExtents(extents []types.Extent, splitInto []int, index int) []types.Extent {
	out := make([]types.Extent, len(extents))
	for d, n := range splitInto {
		out[d] = extents[d].Split(n, index%n)
		index /= n
	}
	return out
}
