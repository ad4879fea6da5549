package eventstream

// Record layout, one detector hit per record, 3 to 8 bytes:
//
//	byte 0   x[0:8]
//	byte 1   x[8] | y[0:7]<<1
//	byte 2   y[7] | dt<<1           (dt[0:5] when tagged, dt[0:7] when terminal)
//	byte 3.. dt << (5 + 6*(i-3))    (6 bits when tagged, 8 bits when terminal)
//
// A byte at index >= 2 whose top two bits are 0b11 is tagged: more bytes
// follow and only its low six bits carry payload. The first untagged byte
// ends the record. The eighth byte always ends the record.
const (
	maxRecordLen  = 8
	continueMask  = 0xC0
	payloadMask   = 0x3F
	frameMarkerDT = 0xFFFFFFFF

	// DefaultTick is the dt clock period in microseconds.
	DefaultTick = 0.1
)

// Record is one decoded record. Marker records carry no pixel address and
// reset the running time.
type Record struct {
	X      uint32
	Y      uint32
	DT     uint32
	TOF    float64
	Marker bool
}

// IsFrameMarker reports whether the decoded fields form the frame boundary
// sentinel.
func IsFrameMarker(x, y, dt uint32) bool {
	return x == 0 && y == 0 && dt == frameMarkerDT
}

// Decoder is the per-byte record state machine. The zero value is not ready
// for use; create one with NewDecoder.
//
// index is the position of the next byte within the current record and is
// always in [0, 8). x, y and dt hold the partially assembled fields. tof is
// the running relative time in microseconds; it persists across records and
// is reset only by a frame marker.
type Decoder struct {
	index int
	x     uint32
	y     uint32
	dt    uint32
	tof   float64
	tick  float64
}

// NewDecoder returns a decoder that scales dt by tick microseconds. A
// non-positive tick selects DefaultTick.
func NewDecoder(tick float64) *Decoder {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Decoder{tick: tick}
}

// Feed consumes one byte. It returns the completed record and true when c
// terminates a record; otherwise it returns false and keeps the partial
// fields.
func (d *Decoder) Feed(c byte) (Record, bool) {
	last := false
	if d.index >= 2 {
		if c&continueMask == continueMask {
			c &= payloadMask
		} else {
			last = true
		}
	}

	v := uint32(c)
	switch d.index {
	case 0:
		d.x = v
	case 1:
		d.x |= (v & 1) << 8
		d.y = v >> 1
	case 2:
		d.y |= (v & 1) << 7
		d.dt = v >> 1
	default:
		d.dt |= v << (5 + 6*uint(d.index-3))
	}

	d.index++
	if !last && d.index < maxRecordLen {
		return Record{}, false
	}
	return d.finish(), true
}

func (d *Decoder) finish() Record {
	rec := Record{X: d.x, Y: d.y, DT: d.dt}
	if IsFrameMarker(d.x, d.y, d.dt) {
		d.tof = 0
		rec.Marker = true
	} else {
		d.tof += float64(d.dt) * d.tick
		rec.TOF = d.tof
	}
	d.discard()
	return rec
}

func (d *Decoder) discard() {
	d.index = 0
	d.x, d.y, d.dt = 0, 0, 0
}

// Pending reports whether a record is partially assembled.
func (d *Decoder) Pending() bool {
	return d.index != 0
}

// Time returns the running relative time in microseconds.
func (d *Decoder) Time() float64 {
	return d.tof
}

// Reset drops any partial record and zeroes the running time.
func (d *Decoder) Reset() {
	d.discard()
	d.tof = 0
}
