package processing

import "tofmap-go/internal/roi"

// Filter decides whether a decoded address may be stored. Addresses outside
// the grid are rejected; with ROI set, unselected pixels are too.
type Filter struct {
	GridX uint32
	GridY uint32
	ROI   *roi.Mask
}

func NewFilter(gridX, gridY int, mask *roi.Mask) Filter {
	return Filter{GridX: uint32(gridX), GridY: uint32(gridY), ROI: mask}
}

func (f Filter) Valid(x, y uint32) bool {
	if x >= f.GridX || y >= f.GridY {
		return false
	}
	if f.ROI != nil {
		return f.ROI.IsKept(x, y)
	}
	return true
}

func (f Filter) index(x, y uint32) int {
	return int(y)*int(f.GridX) + int(x)
}
