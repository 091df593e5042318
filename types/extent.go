package types

import "fmt"

// Extent is the half-open interval [Min, Max) a box covers along one dimension.
type Extent struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

func (e Extent) Width() float64 {
	return e.Max - e.Min
}

func (e Extent) Contains(x float64) bool {
	return x >= e.Min && x < e.Max
}

// Split divides the extent into n equal parts and returns part i.
func (e Extent) Split(n, i int) Extent {
	step := e.Width() / float64(n)
	lo := e.Min + step*float64(i)
	hi := lo + step
	if i == n-1 {
		hi = e.Max
	}
	return Extent{Min: lo, Max: hi}
}

func (e Extent) String() string {
	return fmt.Sprintf("[%g,%g)", e.Min, e.Max)
}

// ContainsPoint reports whether every coordinate of center falls in its extent.
func ContainsPoint(extents []Extent, center []float32) bool {
	if len(center) != len(extents) {
		return false
	}
	for d, ext := range extents {
		if !ext.Contains(float64(center[d])) {
			return false
		}
	}
	return true
}

// Volume is the product of the extent widths.
func Volume(extents []Extent) float64 {
	v := 1.0
	for _, ext := range extents {
		v *= ext.Width()
	}
	return v
}
