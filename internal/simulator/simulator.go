package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"tofmap-go/internal/eventstream"
	"tofmap-go/internal/types"
)

const headerMagic = "TOFMAPSIM1"

type Config struct {
	GridX          int
	GridY          int
	HeaderSize     int
	Frames         int
	EventsPerFrame int
	// OutOfGrid is the fraction of hits addressed beyond the grid.
	OutOfGrid float64
	// MeanDT is the mean spacing between hits in clock ticks.
	MeanDT float64
	Seed   int64
}

func DefaultConfig(gridX, gridY, headerSize int) Config {
	return Config{
		GridX:          gridX,
		GridY:          gridY,
		HeaderSize:     headerSize,
		Frames:         20,
		EventsPerFrame: 2000,
		OutOfGrid:      0.01,
		MeanDT:         250,
		Seed:           1,
	}
}

// Generate builds a complete stream: header, then per frame a frame marker
// followed by hits around a gaussian spot in the grid centre.
func Generate(cfg Config) []byte {
	rng := rand.New(rand.NewSource(cfg.Seed))

	data := make([]byte, cfg.HeaderSize, cfg.HeaderSize+cfg.Frames*(cfg.EventsPerFrame*4+8))
	copy(data, headerMagic)

	centerX := float64(cfg.GridX) / 2.0
	centerY := float64(cfg.GridY) / 2.0
	sigmaX := math.Max(float64(cfg.GridX)/6.0, 0.5)
	sigmaY := math.Max(float64(cfg.GridY)/6.0, 0.5)

	for f := 0; f < cfg.Frames; f++ {
		data = eventstream.AppendFrameMarker(data)
		for i := 0; i < cfg.EventsPerFrame; i++ {
			var x, y uint32
			if rng.Float64() < cfg.OutOfGrid {
				x, y = outside(rng, cfg.GridX, cfg.GridY)
			} else {
				x = clamp(centerX+rng.NormFloat64()*sigmaX, cfg.GridX)
				y = clamp(centerY+rng.NormFloat64()*sigmaY, cfg.GridY)
			}
			dt := uint32(rng.ExpFloat64() * cfg.MeanDT)
			data = eventstream.AppendRecord(data, x, y, dt)
		}
	}
	return data
}

func clamp(v float64, limit int) uint32 {
	if v < 0 {
		return 0
	}
	if v >= float64(limit) {
		return uint32(limit - 1)
	}
	return uint32(v)
}

// outside picks an address the record can carry but the grid rejects. A
// grid covering the whole address space has no such address; the last
// pixel is returned instead.
func outside(rng *rand.Rand, gridX, gridY int) (uint32, uint32) {
	switch {
	case gridX < 512:
		return uint32(gridX + rng.Intn(512-gridX)), uint32(rng.Intn(256))
	case gridY < 256:
		return uint32(rng.Intn(512)), uint32(gridY + rng.Intn(256-gridY))
	default:
		return 511, 255
	}
}

// Stream emits a freshly generated series every interval until ctx ends.
func Stream(ctx context.Context, cfg Config, interval time.Duration) <-chan types.Series {
	out := make(chan types.Series)
	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		n := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run := cfg
				run.Seed = cfg.Seed + int64(n)
				series := types.Series{
					ID:   fmt.Sprintf("sim-%d", n),
					Name: fmt.Sprintf("simulated_%04d", n),
					Data: Generate(run),
				}
				select {
				case <-ctx.Done():
					return
				case out <- series:
				}
				n++
			}
		}
	}()

	return out
}
