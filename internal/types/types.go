package types

// Series is one complete event stream received from ingest or the simulator.
type Series struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Data []byte `json:"-"`
}

// Summary reports one two-pass decode.
type Summary struct {
	Name       string  `json:"name"`
	Records    uint64  `json:"records"`
	Events     uint64  `json:"events"`
	Frames     uint64  `json:"frames"`
	Invalid    uint64  `json:"invalid"`
	Stored     uint64  `json:"stored"`
	Reserved   uint64  `json:"reserved"`
	PixelsHit  int     `json:"pixels_hit"`
	MaxCount   uint32  `json:"max_count"`
	Truncated  bool    `json:"truncated"`
	EndTime    float64 `json:"end_time_us"`
	CountNanos int64   `json:"count_nanos"`
	FillNanos  int64   `json:"fill_nanos"`
}
