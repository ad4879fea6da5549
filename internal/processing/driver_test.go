package processing

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tofmap-go/internal/config"
	"tofmap-go/internal/eventstream"
	"tofmap-go/internal/roi"
	"tofmap-go/internal/source"
	"tofmap-go/internal/tof"
)

func smallInstrument() config.Instrument {
	return config.Instrument{Name: "test", GridX: 4, GridY: 3, HeaderSize: 128, Tick: 0.1}
}

type hit struct{ x, y, dt uint32 }

func encode(header int, hits ...hit) []byte {
	data := make([]byte, header)
	for _, h := range hits {
		if h == (hit{0, 0, 0xFFFFFFFF}) {
			data = eventstream.AppendFrameMarker(data)
			continue
		}
		data = eventstream.AppendRecord(data, h.x, h.y, h.dt)
	}
	return data
}

var marker = hit{0, 0, 0xFFFFFFFF}

// alternating serves a different stream on every other open.
func alternating(first, second []byte) source.Opener {
	calls := 0
	return func() (io.ReadCloser, error) {
		calls++
		if calls%2 == 1 {
			return source.Bytes(first)()
		}
		return source.Bytes(second)()
	}
}

func newDriver(t *testing.T, mask *roi.Mask, conv tof.Converter) *Driver {
	t.Helper()
	d, err := NewDriver(smallInstrument(), mask, conv)
	require.NoError(t, err)
	return d
}

func TestRunStoresEventsPerPixel(t *testing.T) {
	data := encode(128,
		hit{1, 2, 10},
		hit{1, 2, 5},
		hit{3, 0, 1},
		marker,
		hit{1, 2, 7},
	)
	res, err := newDriver(t, nil, nil).Run(context.Background(), "s", source.Bytes(data))
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{1.0, 1.5, 0.7}, res.Store.Events(1, 2), 1e-9)
	assert.InDeltaSlice(t, []float64{1.6}, res.Store.Events(3, 0), 1e-9)
	assert.Empty(t, res.Store.Events(0, 0))
	assert.NotNil(t, res.Store.Events(0, 0))
	assert.Equal(t, 3, res.Store.Reserved(1, 2))

	assert.Equal(t, uint64(5), res.AssignPass.Records)
	assert.Equal(t, uint64(4), res.AssignPass.Events)
	assert.Equal(t, uint64(1), res.AssignPass.Frames)
	assert.Equal(t, res.CountPass, res.AssignPass)
}

func TestRunInvalidPixelAdvancesClock(t *testing.T) {
	data := encode(128,
		hit{300, 1, 40},
		hit{2, 1, 2},
		hit{1, 3, 3},
		hit{2, 1, 1},
	)
	res, err := newDriver(t, nil, nil).Run(context.Background(), "s", source.Bytes(data))
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{4.2, 4.6}, res.Store.Events(2, 1), 1e-9)
	assert.Equal(t, uint64(2), res.CountPass.Invalid)
	assert.Equal(t, uint64(2), res.AssignPass.Invalid)
	assert.Equal(t, uint64(2), res.Store.Total())
	assert.InDelta(t, 4.6, res.AssignPass.EndTime, 1e-9)
}

func TestRunCountsMatchStoredWithoutROI(t *testing.T) {
	var hits []hit
	for i := 0; i < 500; i++ {
		hits = append(hits, hit{uint32(i % 7), uint32(i % 5), uint32(i)})
		if i%60 == 0 {
			hits = append(hits, marker)
		}
	}
	res, err := newDriver(t, nil, nil).Run(context.Background(), "s", source.Bytes(encode(128, hits...)))
	require.NoError(t, err)

	var sum uint64
	for _, c := range res.Counts {
		sum += uint64(c)
	}
	assert.Equal(t, sum, res.Store.Total())
	assert.Equal(t, sum, res.AssignPass.Events-res.AssignPass.Invalid)
	assert.Equal(t, res.Counts, res.Store.Counts())
}

func TestRunROIDropsMaskedPixels(t *testing.T) {
	mask := roi.All(4, 3)
	mask.Set(1, 1, false)
	data := encode(128, hit{1, 1, 10}, hit{2, 2, 10}, hit{1, 1, 10})

	res, err := newDriver(t, mask, nil).Run(context.Background(), "s", source.Bytes(data))
	require.NoError(t, err)

	assert.Empty(t, res.Store.Events(1, 1))
	assert.Equal(t, 2, res.Store.Reserved(1, 1))
	assert.InDeltaSlice(t, []float64{2.0}, res.Store.Events(2, 2), 1e-9)
	assert.Equal(t, uint64(0), res.CountPass.Invalid)
	assert.Equal(t, uint64(2), res.AssignPass.Invalid)

	sum := res.Summary()
	assert.Equal(t, uint64(1), sum.Stored)
	assert.Equal(t, uint64(3), sum.Reserved)
	assert.Equal(t, 1, sum.PixelsHit)
}

func TestRunAppliesConverterPerFrame(t *testing.T) {
	conv := tof.Func(func(frame int, rel float64) float64 { return float64(frame)*100 + rel })
	data := encode(128, hit{0, 0, 10}, marker, hit{0, 0, 20}, marker, hit{0, 0, 30})

	res, err := newDriver(t, nil, conv).Run(context.Background(), "s", source.Bytes(data))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 102, 203}, res.Store.Events(0, 0), 1e-9)
}

func TestRunPassMismatch(t *testing.T) {
	first := encode(128, hit{1, 1, 1})
	second := encode(128, hit{1, 1, 1}, marker)

	_, err := newDriver(t, nil, nil).Run(context.Background(), "s", alternating(first, second))
	require.ErrorIs(t, err, ErrPassMismatch)
}

func TestRunPanicsWhenPixelOverflows(t *testing.T) {
	first := encode(128, hit{1, 1, 1})
	second := encode(128, hit{1, 1, 1}, hit{1, 1, 1})

	defer func() {
		r := recover()
		require.NotNil(t, r)
		ce, ok := r.(*CapacityError)
		require.True(t, ok, "panic value %T", r)
		assert.Equal(t, uint32(1), ce.X)
		assert.Equal(t, 1, ce.Reserved)
	}()
	_, _ = newDriver(t, nil, nil).Run(context.Background(), "s", alternating(first, second))
	t.Fatal("expected panic")
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newDriver(t, nil, nil).Run(ctx, "s", source.Bytes(encode(128)))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunShortHeader(t *testing.T) {
	_, err := newDriver(t, nil, nil).Run(context.Background(), "s", source.Bytes(make([]byte, 64)))
	require.ErrorIs(t, err, source.ErrHeaderTruncated)
}

func TestNewDriverRejectsMaskShape(t *testing.T) {
	_, err := NewDriver(smallInstrument(), roi.All(3, 3), nil)
	require.ErrorIs(t, err, roi.ErrShape)

	bad := smallInstrument()
	bad.Tick = 0
	_, err = NewDriver(bad, nil, nil)
	require.ErrorIs(t, err, config.ErrInvalidInstrument)
}

func TestResultImage(t *testing.T) {
	res, err := newDriver(t, nil, nil).Run(context.Background(), "s", source.Bytes(encode(128, hit{3, 2, 1})))
	require.NoError(t, err)

	img := res.Image()
	assert.Equal(t, 4, img.GridX)
	assert.Equal(t, 3, img.GridY)
	require.Len(t, img.Values, 12)
	assert.Equal(t, uint32(1), img.Values[2*4+3])
}
