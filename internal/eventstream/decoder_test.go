package eventstream

import (
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	data []byte
	pos  int
	err  error
}

func (s *sliceSource) ReadByte() (byte, error) {
	if s.pos >= len(s.data) {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}
	c := s.data[s.pos]
	s.pos++
	return c, nil
}

func (s *sliceSource) Skip(n int64) error {
	s.pos += int(n)
	return nil
}

type recorded struct {
	x, y uint32
	tof  float64
}

type recordingSink struct {
	events []recorded
	frames int
	// frameAt holds len(events) at each frame marker.
	frameAt []int
}

func (r *recordingSink) OnEvent(x, y uint32, tof float64) {
	r.events = append(r.events, recorded{x, y, tof})
}

func (r *recordingSink) OnNewFrame() {
	r.frames++
	r.frameAt = append(r.frameAt, len(r.events))
}

func decodeAll(t *testing.T, data []byte) (*recordingSink, Stats) {
	t.Helper()
	sink := &recordingSink{}
	stats, err := Decode(&sliceSource{data: data}, sink, DefaultTick)
	require.NoError(t, err)
	return sink, stats
}

func TestDecodeThreeByteRecord(t *testing.T) {
	sink, stats := decodeAll(t, []byte{0x05, 0x00, 0x02})

	require.Len(t, sink.events, 1)
	assert.Equal(t, uint32(5), sink.events[0].x)
	assert.Equal(t, uint32(0), sink.events[0].y)
	assert.InDelta(t, 0.1, sink.events[0].tof, 1e-12)
	assert.Equal(t, uint64(1), stats.Records)
	assert.Equal(t, uint64(1), stats.Events)
	assert.False(t, stats.Truncated)
}

func TestDecodeFrameMarkerResetsTime(t *testing.T) {
	data := AppendRecord(nil, 10, 20, 50)
	data = AppendFrameMarker(data)
	data = AppendRecord(data, 11, 21, 3)

	sink, stats := decodeAll(t, data)

	require.Len(t, sink.events, 2)
	assert.InDelta(t, 5.0, sink.events[0].tof, 1e-9)
	assert.InDelta(t, 0.3, sink.events[1].tof, 1e-9)
	assert.Equal(t, 1, sink.frames)
	assert.Equal(t, uint64(1), stats.Frames)
	assert.Equal(t, uint64(3), stats.Records)
	assert.Equal(t, uint64(2), stats.Events)
}

func TestDecodeMarkerAloneLeavesZeroTime(t *testing.T) {
	d := NewDecoder(DefaultTick)
	for _, c := range AppendRecord(nil, 1, 1, 1000) {
		d.Feed(c)
	}
	require.InDelta(t, 100.0, d.Time(), 1e-9)

	marker := AppendFrameMarker(nil)
	require.Len(t, marker, maxRecordLen)
	var rec Record
	var ok bool
	for _, c := range marker {
		rec, ok = d.Feed(c)
	}
	require.True(t, ok)
	assert.True(t, rec.Marker)
	assert.Equal(t, 0.0, d.Time())
}

func TestDecodeContinuationAtByteTwo(t *testing.T) {
	// 0xC1 is tagged: y bit 7 is set and dt bits 0-4 are zero. 0x02 ends
	// the record and lands at bit 5.
	sink, _ := decodeAll(t, []byte{0x03, 0x04, 0xC1, 0x02})

	require.Len(t, sink.events, 1)
	assert.Equal(t, uint32(3), sink.events[0].x)
	assert.Equal(t, uint32(2|1<<7), sink.events[0].y)
	assert.InDelta(t, float64(2<<5)*DefaultTick, sink.events[0].tof, 1e-9)
}

func TestDecodeNinthBitOfX(t *testing.T) {
	sink, _ := decodeAll(t, []byte{0x2C, 0x01, 0x00})

	require.Len(t, sink.events, 1)
	assert.Equal(t, uint32(300), sink.events[0].x)
}

func TestDecodeEighthByteAlwaysTerminates(t *testing.T) {
	data := []byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	data = append(data, 0x05, 0x00, 0x02)

	d := NewDecoder(DefaultTick)
	var recs []Record
	for i, c := range data {
		rec, ok := d.Feed(c)
		if ok {
			recs = append(recs, rec)
		}
		if i == 7 {
			require.True(t, ok, "eighth byte must end the record")
		}
	}

	require.Len(t, recs, 2)
	assert.Equal(t, uint32(0), recs[0].X)
	assert.Equal(t, uint32(128), recs[0].Y)
	assert.Equal(t, uint32(0xFFFFFFFF), recs[0].DT)
	assert.False(t, recs[0].Marker)
	assert.Equal(t, uint32(5), recs[1].X)
	assert.Equal(t, uint32(1), recs[1].DT)
}

func TestDecodeDiscardsTruncatedRecord(t *testing.T) {
	data := AppendRecord(nil, 7, 8, 9)
	data = append(data, 0x05, 0x00, 0xC0)

	sink, stats := decodeAll(t, data)

	assert.Len(t, sink.events, 1)
	assert.True(t, stats.Truncated)
	assert.Equal(t, uint64(1), stats.Records)
}

func TestDecodeReturnsReadError(t *testing.T) {
	boom := errors.New("boom")
	src := &sliceSource{data: AppendRecord(nil, 1, 2, 3), err: boom}

	stats, err := Decode(src, &recordingSink{}, DefaultTick)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1), stats.Records)
}

func TestEncodeLengths(t *testing.T) {
	cases := []struct {
		dt   uint32
		want int
	}{
		{0, 3},
		{0x3F, 3},
		{0x5F, 3},
		{0x60, 4},
		{0x7F, 4},
		{0x1F | 0xBF<<5, 4},
		{0x1F | 0xC0<<5, 5},
		{0xFFFFFFFF, 8},
	}
	for _, tc := range cases {
		got := AppendRecord(nil, 1, 1, tc.dt)
		assert.Len(t, got, tc.want, "dt=%#x", tc.dt)

		d := NewDecoder(1)
		var rec Record
		var ok bool
		for _, c := range got {
			rec, ok = d.Feed(c)
		}
		require.True(t, ok)
		assert.Equal(t, tc.dt, rec.DT, "dt=%#x", tc.dt)
	}
}

func TestEncodeDecodeRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	type hit struct{ x, y, dt uint32 }

	var data []byte
	var hits []hit
	for i := 0; i < 5000; i++ {
		h := hit{uint32(rng.Intn(512)), uint32(rng.Intn(256)), rng.Uint32() >> uint(rng.Intn(32))}
		if IsFrameMarker(h.x, h.y, h.dt) {
			continue
		}
		n := len(data)
		data = AppendRecord(data, h.x, h.y, h.dt)
		require.GreaterOrEqual(t, len(data)-n, 3)
		require.LessOrEqual(t, len(data)-n, maxRecordLen)
		hits = append(hits, h)
	}

	d := NewDecoder(1)
	var got []hit
	for _, c := range data {
		if rec, ok := d.Feed(c); ok {
			got = append(got, hit{rec.X, rec.Y, rec.DT})
		}
	}
	assert.Equal(t, hits, got)
	assert.False(t, d.Pending())
}

func TestTimeMonotonicBetweenMarkers(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var data []byte
	for i := 0; i < 2000; i++ {
		if i%250 == 0 {
			data = AppendFrameMarker(data)
			continue
		}
		data = AppendRecord(data, uint32(rng.Intn(512)), uint32(rng.Intn(256)), uint32(rng.Intn(1<<20)))
	}

	sink, stats := decodeAll(t, data)
	require.Equal(t, 8, sink.frames)
	assert.Equal(t, uint64(8), stats.Frames)

	boundary := map[int]bool{}
	for _, at := range sink.frameAt {
		boundary[at] = true
	}
	for i := 1; i < len(sink.events); i++ {
		if boundary[i] {
			continue
		}
		assert.GreaterOrEqual(t, sink.events[i].tof, sink.events[i-1].tof, "event %d", i)
	}
}

func TestDecodeDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	data := make([]byte, 4096)
	rng.Read(data)

	first, s1 := decodeAll(t, data)
	second, s2 := decodeAll(t, data)
	assert.Equal(t, first.events, second.events)
	assert.Equal(t, first.frames, second.frames)
	assert.Equal(t, s1, s2)
}

func TestSinkFuncSkipsNil(t *testing.T) {
	var events int
	sink := SinkFunc{Event: func(uint32, uint32, float64) { events++ }}
	data := AppendFrameMarker(AppendRecord(nil, 1, 1, 1))

	stats, err := Decode(&sliceSource{data: data}, sink, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, events)
	assert.Equal(t, uint64(1), stats.Frames)
}

func TestResetDropsPartialRecordAndTime(t *testing.T) {
	d := NewDecoder(DefaultTick)
	for _, c := range AppendRecord(nil, 1, 1, 100) {
		d.Feed(c)
	}
	_, ok := d.Feed(0x05)
	require.False(t, ok)
	require.True(t, d.Pending())
	require.InDelta(t, 10.0, d.Time(), 1e-9)

	d.Reset()
	assert.False(t, d.Pending())
	assert.Equal(t, 0.0, d.Time())

	var rec Record
	for _, c := range []byte{0x05, 0x00, 0x02} {
		rec, ok = d.Feed(c)
	}
	require.True(t, ok)
	assert.Equal(t, uint32(5), rec.X)
	assert.InDelta(t, 0.1, rec.TOF, 1e-12)
}
