package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"tofmap-go/internal/cborarray"
	"tofmap-go/internal/processing"
	"tofmap-go/internal/types"
)

// EventFile is the CBOR layout written by WriteCBOR. Counts is a tag 40
// uint32 matrix of grid_y rows. The times of pixel i are
// TOF[Offsets[i]:Offsets[i+1]].
type EventFile struct {
	Type    string        `cbor:"type"`
	Summary types.Summary `cbor:"summary"`
	GridX   int           `cbor:"grid_x"`
	GridY   int           `cbor:"grid_y"`
	Counts  cbor.Tag      `cbor:"counts"`
	Offsets cbor.Tag      `cbor:"offsets"`
	TOF     cbor.Tag      `cbor:"tof_us"`
}

// WriteCBOR writes res as an EventFile and returns the file path.
func WriteCBOR(outputDir, runTimestamp string, res *processing.Result) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}

	gridX, gridY := res.Store.Size()
	counts := res.Store.Counts()
	offsets := make([]uint32, 0, len(counts)+1)
	flat := make([]float64, 0, res.Store.Total())
	offsets = append(offsets, 0)
	for y := 0; y < gridY; y++ {
		for x := 0; x < gridX; x++ {
			flat = append(flat, res.Store.Events(x, y)...)
			offsets = append(offsets, uint32(len(flat)))
		}
	}

	countsTag, err := cborarray.EncodeMatrix(cborarray.Matrix{Rows: gridY, Cols: gridX, Data: counts})
	if err != nil {
		return "", err
	}
	offsetsTag, _, err := cborarray.EncodeTyped(offsets)
	if err != nil {
		return "", err
	}
	tofTag, _, err := cborarray.EncodeTyped(flat)
	if err != nil {
		return "", err
	}

	payload, err := cbor.Marshal(EventFile{
		Type:    "events",
		Summary: res.Summary(),
		GridX:   gridX,
		GridY:   gridY,
		Counts:  countsTag,
		Offsets: offsetsTag,
		TOF:     tofTag,
	})
	if err != nil {
		return "", fmt.Errorf("encode event file: %w", err)
	}

	filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s_events.cbor", runTimestamp, res.Name))
	if err := os.WriteFile(filename, payload, 0o644); err != nil {
		return "", err
	}
	return filename, nil
}

// ReadCBOR loads a file written by WriteCBOR and returns the per-pixel
// times indexed y*grid_x + x.
func ReadCBOR(path string) (EventFile, [][]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EventFile{}, nil, err
	}
	var file EventFile
	if err := cbor.Unmarshal(data, &file); err != nil {
		return EventFile{}, nil, fmt.Errorf("decode event file: %w", err)
	}

	rawOffsets, _, err := cborarray.DecodeTyped(file.Offsets)
	if err != nil {
		return EventFile{}, nil, err
	}
	rawTOF, _, err := cborarray.DecodeTyped(file.TOF)
	if err != nil {
		return EventFile{}, nil, err
	}
	offsets, ok := rawOffsets.([]uint32)
	if !ok {
		return EventFile{}, nil, fmt.Errorf("offsets are %T, want uint32", rawOffsets)
	}
	times, ok := rawTOF.([]float64)
	if !ok {
		return EventFile{}, nil, fmt.Errorf("tof_us is %T, want float64", rawTOF)
	}
	if file.GridX < 0 || file.GridY < 0 || len(offsets) != file.GridX*file.GridY+1 {
		return EventFile{}, nil, fmt.Errorf("%w: %d offsets for %dx%d grid", cborarray.ErrDimensionMismatch, len(offsets), file.GridX, file.GridY)
	}
	if offsets[0] != 0 || int(offsets[len(offsets)-1]) != len(times) {
		return EventFile{}, nil, fmt.Errorf("%w: offsets span %d..%d, %d times", cborarray.ErrDimensionMismatch, offsets[0], offsets[len(offsets)-1], len(times))
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return EventFile{}, nil, fmt.Errorf("%w: offset %d decreases", cborarray.ErrDimensionMismatch, i)
		}
	}

	pixels := make([][]float64, file.GridX*file.GridY)
	for i := range pixels {
		pixels[i] = times[offsets[i]:offsets[i+1]]
	}
	return file, pixels, nil
}
