package processing

import "tofmap-go/internal/tof"

// CountingSink tallies valid events per pixel. It is the first pass.
type CountingSink struct {
	filter  Filter
	counts  []uint32
	frames  uint64
	invalid uint64
}

func NewCountingSink(filter Filter) *CountingSink {
	return &CountingSink{
		filter: filter,
		counts: make([]uint32, int(filter.GridX)*int(filter.GridY)),
	}
}

func (s *CountingSink) OnEvent(x, y uint32, _ float64) {
	if !s.filter.Valid(x, y) {
		s.invalid++
		return
	}
	s.counts[s.filter.index(x, y)]++
}

func (s *CountingSink) OnNewFrame() {
	s.frames++
}

func (s *CountingSink) InvalidEvents() uint64 { return s.invalid }

func (s *CountingSink) Frames() uint64 { return s.frames }

// Counts returns the per-pixel tallies, indexed y*GridX + x.
func (s *CountingSink) Counts() []uint32 { return s.counts }

// AssigningSink writes valid event times into a store sized by a
// CountingSink. It is the second pass.
type AssigningSink struct {
	filter  Filter
	store   *PixelStore
	conv    tof.Converter
	frame   int
	stored  uint64
	invalid uint64
}

// NewAssigningSink returns a sink filling store. A nil conv stores relative
// times.
func NewAssigningSink(filter Filter, store *PixelStore, conv tof.Converter) *AssigningSink {
	if conv == nil {
		conv = tof.Relative{}
	}
	return &AssigningSink{
		filter: filter,
		store:  store,
		conv:   conv,
	}
}

func (s *AssigningSink) OnEvent(x, y uint32, rel float64) {
	if !s.filter.Valid(x, y) {
		s.invalid++
		return
	}
	s.store.Append(x, y, s.conv.Convert(s.frame, rel))
	s.stored++
}

func (s *AssigningSink) OnNewFrame() {
	s.frame++
}

func (s *AssigningSink) InvalidEvents() uint64 { return s.invalid }

func (s *AssigningSink) Stored() uint64 { return s.stored }

func (s *AssigningSink) Frames() int { return s.frame }
