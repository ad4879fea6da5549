package eventstream

import (
	"errors"
	"fmt"
	"io"
)

// ByteSource supplies the stream one byte at a time. ReadByte returns io.EOF
// at end of stream.
type ByteSource interface {
	io.ByteReader
	Skip(n int64) error
}

// Sink receives decoded records in stream order.
type Sink interface {
	OnEvent(x, y uint32, tof float64)
	OnNewFrame()
}

// InvalidCounter is implemented by sinks that filter events.
type InvalidCounter interface {
	InvalidEvents() uint64
}

// Stats summarises one decode run.
type Stats struct {
	// Records counts every terminated record, frame markers included.
	Records uint64
	// Events counts records handed to Sink.OnEvent.
	Events uint64
	Frames uint64
	// Invalid is the sink's filtered event count, zero when the sink does
	// not filter.
	Invalid uint64
	// Truncated is set when the stream ended inside a record. The partial
	// record is dropped.
	Truncated bool
	// EndTime is the running time after the last record.
	EndTime float64
}

// Decode runs src through a fresh decoder until end of stream. The header is
// expected to be skipped already. Only read errors other than io.EOF are
// returned.
func Decode(src ByteSource, sink Sink, tick float64) (Stats, error) {
	d := NewDecoder(tick)
	return d.Run(src, sink)
}

// Run feeds src through d until end of stream.
func (d *Decoder) Run(src ByteSource, sink Sink) (Stats, error) {
	var stats Stats
	for {
		c, err := src.ReadByte()
		if err != nil {
			stats.Truncated = d.Pending()
			stats.EndTime = d.tof
			if ic, ok := sink.(InvalidCounter); ok {
				stats.Invalid = ic.InvalidEvents()
			}
			if errors.Is(err, io.EOF) {
				d.discard()
				return stats, nil
			}
			return stats, fmt.Errorf("eventstream: read after %d records: %w", stats.Records, err)
		}

		rec, ok := d.Feed(c)
		if !ok {
			continue
		}
		stats.Records++
		if rec.Marker {
			stats.Frames++
			sink.OnNewFrame()
			continue
		}
		stats.Events++
		sink.OnEvent(rec.X, rec.Y, rec.TOF)
	}
}

// SinkFunc adapts plain functions to Sink. Nil fields are skipped.
type SinkFunc struct {
	Event func(x, y uint32, tof float64)
	Frame func()
}

func (f SinkFunc) OnEvent(x, y uint32, tof float64) {
	if f.Event != nil {
		f.Event(x, y, tof)
	}
}

func (f SinkFunc) OnNewFrame() {
	if f.Frame != nil {
		f.Frame()
	}
}
