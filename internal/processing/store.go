package processing

import "fmt"

// CapacityError is the panic value raised when a pixel receives more events
// than were reserved for it. It means the two passes saw different input.
type CapacityError struct {
	X        uint32
	Y        uint32
	Reserved int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("pixel (%d,%d) exceeded its reserved %d events", e.X, e.Y, e.Reserved)
}

// PixelStore holds the per-pixel event times, indexed by y*gridX + x. Each
// pixel's slice has a fixed capacity; Append never reallocates.
type PixelStore struct {
	gridX  int
	gridY  int
	events [][]float64
}

// NewPixelStore returns a store with zero capacity on every pixel.
func NewPixelStore(gridX, gridY int) *PixelStore {
	events := make([][]float64, gridX*gridY)
	for i := range events {
		events[i] = []float64{}
	}
	return &PixelStore{
		gridX:  gridX,
		gridY:  gridY,
		events: events,
	}
}

// Size returns the grid dimensions.
func (s *PixelStore) Size() (int, int) {
	return s.gridX, s.gridY
}

// Reserve gives (x, y) room for exactly count events, dropping any stored
// ones.
func (s *PixelStore) Reserve(x, y int, count uint32) {
	s.events[y*s.gridX+x] = make([]float64, 0, count)
}

// ReserveAll sizes every pixel from counts (indexed like the store) out of
// one backing array.
func (s *PixelStore) ReserveAll(counts []uint32) {
	if len(counts) != len(s.events) {
		panic(fmt.Sprintf("processing: %d counts for %d pixels", len(counts), len(s.events)))
	}
	var total int
	for _, c := range counts {
		total += int(c)
	}
	backing := make([]float64, total)
	off := 0
	for i, c := range counts {
		n := int(c)
		s.events[i] = backing[off : off : off+n]
		off += n
	}
}

// Append stores tof for (x, y). It panics with *CapacityError when the pixel
// is full.
func (s *PixelStore) Append(x, y uint32, tof float64) {
	i := int(y)*s.gridX + int(x)
	ev := s.events[i]
	if len(ev) == cap(ev) {
		panic(&CapacityError{X: x, Y: y, Reserved: cap(ev)})
	}
	s.events[i] = append(ev, tof)
}

// Events returns the stored times for (x, y). The slice aliases the store.
func (s *PixelStore) Events(x, y int) []float64 {
	return s.events[y*s.gridX+x]
}

// Reserved returns the capacity of (x, y).
func (s *PixelStore) Reserved(x, y int) int {
	return cap(s.events[y*s.gridX+x])
}

// Counts returns the number of stored events per pixel.
func (s *PixelStore) Counts() []uint32 {
	out := make([]uint32, len(s.events))
	for i, ev := range s.events {
		out[i] = uint32(len(ev))
	}
	return out
}

// Total returns the number of stored events.
func (s *PixelStore) Total() uint64 {
	var n uint64
	for _, ev := range s.events {
		n += uint64(len(ev))
	}
	return n
}

// TotalReserved returns the summed capacity.
func (s *PixelStore) TotalReserved() uint64 {
	var n uint64
	for _, ev := range s.events {
		n += uint64(cap(ev))
	}
	return n
}
