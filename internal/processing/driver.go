package processing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"tofmap-go/internal/config"
	"tofmap-go/internal/eventstream"
	"tofmap-go/internal/metrics"
	"tofmap-go/internal/roi"
	"tofmap-go/internal/source"
	"tofmap-go/internal/tof"
	"tofmap-go/internal/types"
)

// ErrPassMismatch is returned when the assigning pass decodes a different
// stream than the counting pass.
var ErrPassMismatch = errors.New("processing: passes decoded different streams")

// Driver runs the count, allocate, fill pipeline over one stream. A Driver
// holds no state between runs and may be shared by goroutines.
type Driver struct {
	Instrument config.Instrument
	// ROI restricts the assigning pass. Nil keeps every in-grid pixel.
	ROI       *roi.Mask
	Converter tof.Converter
}

// Result is the outcome of one Run. Store is owned by the caller.
type Result struct {
	Name       string
	Store      *PixelStore
	Counts     []uint32
	CountPass  eventstream.Stats
	AssignPass eventstream.Stats
	CountTime  time.Duration
	AssignTime time.Duration
}

func NewDriver(inst config.Instrument, mask *roi.Mask, conv tof.Converter) (*Driver, error) {
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	if mask != nil {
		if x, y := mask.Size(); x != inst.GridX || y != inst.GridY {
			return nil, fmt.Errorf("%w: mask %dx%d, grid %dx%d", roi.ErrShape, x, y, inst.GridX, inst.GridY)
		}
	}
	return &Driver{Instrument: inst, ROI: mask, Converter: conv}, nil
}

// Run decodes the stream behind open twice. ctx is checked before each pass;
// a pass in progress runs to end of stream.
func (d *Driver) Run(ctx context.Context, name string, open source.Opener) (*Result, error) {
	inst := d.Instrument
	res := &Result{Name: name}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counter := NewCountingSink(NewFilter(inst.GridX, inst.GridY, nil))
	stats, elapsed, err := d.pass(open, counter)
	if err != nil {
		return nil, fmt.Errorf("%s: count pass: %w", name, err)
	}
	res.CountPass, res.CountTime = stats, elapsed
	res.Counts = counter.Counts()
	d.logPass(name, metrics.PassCount, stats, elapsed)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.Store = NewPixelStore(inst.GridX, inst.GridY)
	res.Store.ReserveAll(res.Counts)

	assigner := NewAssigningSink(NewFilter(inst.GridX, inst.GridY, d.ROI), res.Store, d.Converter)
	stats, elapsed, err = d.pass(open, assigner)
	if err != nil {
		return nil, fmt.Errorf("%s: assign pass: %w", name, err)
	}
	res.AssignPass, res.AssignTime = stats, elapsed
	d.logPass(name, metrics.PassAssign, stats, elapsed)

	if res.AssignPass.Records != res.CountPass.Records || res.AssignPass.Truncated != res.CountPass.Truncated {
		return nil, fmt.Errorf("%w: %s: %d records then %d", ErrPassMismatch, name, res.CountPass.Records, res.AssignPass.Records)
	}
	return res, nil
}

func (d *Driver) pass(open source.Opener, sink eventstream.Sink) (eventstream.Stats, time.Duration, error) {
	start := time.Now()
	src, err := source.Open(open, d.Instrument.HeaderSize)
	if err != nil {
		return eventstream.Stats{}, 0, err
	}
	defer src.Close()

	stats, err := eventstream.Decode(src, sink, d.Instrument.Tick)
	return stats, time.Since(start), err
}

func (d *Driver) logPass(name, pass string, stats eventstream.Stats, elapsed time.Duration) {
	metrics.RecordPass(pass, stats.Records, stats.Events, stats.Invalid, stats.Frames, elapsed)
	ev := log.Debug()
	if stats.Truncated {
		ev = log.Warn()
	}
	ev.Str("series", name).
		Str("pass", pass).
		Uint64("records", stats.Records).
		Uint64("events", stats.Events).
		Uint64("invalid", stats.Invalid).
		Uint64("frames", stats.Frames).
		Bool("truncated", stats.Truncated).
		Dur("elapsed", elapsed).
		Msg("decode pass done")
}

// Summary condenses r for reporting.
func (r *Result) Summary() types.Summary {
	sum := types.Summary{
		Name:       r.Name,
		Records:    r.AssignPass.Records,
		Events:     r.AssignPass.Events,
		Frames:     r.AssignPass.Frames,
		Invalid:    r.AssignPass.Invalid,
		Stored:     r.Store.Total(),
		Reserved:   r.Store.TotalReserved(),
		Truncated:  r.AssignPass.Truncated,
		EndTime:    r.AssignPass.EndTime,
		CountNanos: r.CountTime.Nanoseconds(),
		FillNanos:  r.AssignTime.Nanoseconds(),
	}
	for _, c := range r.Store.Counts() {
		if c == 0 {
			continue
		}
		sum.PixelsHit++
		if c > sum.MaxCount {
			sum.MaxCount = c
		}
	}
	return sum
}

// Image returns the stored counts as a UI count image.
func (r *Result) Image() types.CountImage {
	gx, gy := r.Store.Size()
	return types.CountImage{GridX: gx, GridY: gy, Values: r.Store.Counts()}
}
