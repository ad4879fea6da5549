// Package tof converts frame-relative event times into the time base stored
// per pixel. Chopper phase correction is instrument calibration and plugs in
// through Converter.
package tof

// Converter maps a relative time in microseconds to a stored time. frame is
// the number of frame markers decoded before the event.
type Converter interface {
	Convert(frame int, rel float64) float64
}

// Relative stores times unchanged.
type Relative struct{}

func (Relative) Convert(_ int, rel float64) float64 { return rel }

// Offset adds a fixed delay to every time.
type Offset struct {
	Delay float64
}

func (o Offset) Convert(_ int, rel float64) float64 { return rel + o.Delay }

// Func adapts a function to Converter.
type Func func(frame int, rel float64) float64

func (f Func) Convert(frame int, rel float64) float64 { return f(frame, rel) }
