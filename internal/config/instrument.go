package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Instrument holds the detector geometry and stream framing constants.
type Instrument struct {
	Name       string
	GridX      int
	GridY      int
	HeaderSize int
	// Tick is the record dt unit in microseconds.
	Tick float64
}

// instrument.toml key mapping.
type instrumentFile struct {
	Name       string  `toml:"name"`
	GridX      int     `toml:"grid_x"`
	GridY      int     `toml:"grid_y"`
	HeaderSize int     `toml:"header_size"`
	Tick       float64 `toml:"tick_us"`
}

const (
	// The record format addresses at most 512 columns and 256 rows.
	maxGridX = 1 << 9
	maxGridY = 1 << 8
)

var ErrInvalidInstrument = errors.New("invalid instrument config")

func DefaultInstrument() Instrument {
	return Instrument{
		Name:       "default",
		GridX:      240,
		GridY:      256,
		HeaderSize: 128,
		Tick:       0.1,
	}
}

// LoadInstrument overlays the keys present in the TOML file at path onto
// DefaultInstrument.
func LoadInstrument(path string) (Instrument, error) {
	cfg := DefaultInstrument()

	var raw instrumentFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Instrument{}, fmt.Errorf("load instrument config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Instrument{}, fmt.Errorf("%w: unknown key %q", ErrInvalidInstrument, undecoded[0].String())
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("grid_x") {
		cfg.GridX = raw.GridX
	}
	if meta.IsDefined("grid_y") {
		cfg.GridY = raw.GridY
	}
	if meta.IsDefined("header_size") {
		cfg.HeaderSize = raw.HeaderSize
	}
	if meta.IsDefined("tick_us") {
		cfg.Tick = raw.Tick
	}

	if err := cfg.Validate(); err != nil {
		return Instrument{}, err
	}
	return cfg, nil
}

func (i Instrument) Validate() error {
	if i.GridX < 1 || i.GridX > maxGridX {
		return fmt.Errorf("%w: grid_x %d outside 1..%d", ErrInvalidInstrument, i.GridX, maxGridX)
	}
	if i.GridY < 1 || i.GridY > maxGridY {
		return fmt.Errorf("%w: grid_y %d outside 1..%d", ErrInvalidInstrument, i.GridY, maxGridY)
	}
	if i.HeaderSize < 0 {
		return fmt.Errorf("%w: header_size %d is negative", ErrInvalidInstrument, i.HeaderSize)
	}
	if i.Tick <= 0 {
		return fmt.Errorf("%w: tick_us must be positive", ErrInvalidInstrument)
	}
	return nil
}

// Pixels returns GridX * GridY.
func (i Instrument) Pixels() int {
	return i.GridX * i.GridY
}
