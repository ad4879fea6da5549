// Package roi holds the region-of-interest bitmap that selects which pixels
// may store events.
package roi

import (
	"errors"
	"fmt"
	"math/bits"
	"os"

	"github.com/fxamacker/cbor/v2"

	"tofmap-go/internal/cborarray"
)

var ErrShape = errors.New("roi: mask shape does not match grid")

// Mask is a one-bit-per-pixel bitmap indexed by y*GridX + x. A set bit keeps
// the pixel.
type Mask struct {
	gridX int
	gridY int
	words []uint64
}

// New returns a mask with every pixel dropped.
func New(gridX, gridY int) *Mask {
	n := gridX * gridY
	return &Mask{
		gridX: gridX,
		gridY: gridY,
		words: make([]uint64, (n+63)/64),
	}
}

// All returns a mask keeping every pixel.
func All(gridX, gridY int) *Mask {
	m := New(gridX, gridY)
	for i := 0; i < gridX*gridY; i++ {
		m.words[i/64] |= 1 << (uint(i) % 64)
	}
	return m
}

func (m *Mask) Size() (int, int) {
	return m.gridX, m.gridY
}

// IsKept reports whether (x, y) is inside the grid and selected.
func (m *Mask) IsKept(x, y uint32) bool {
	if int(x) >= m.gridX || int(y) >= m.gridY {
		return false
	}
	i := int(y)*m.gridX + int(x)
	return m.words[i/64]&(1<<(uint(i)%64)) != 0
}

// Set selects or drops (x, y). Out-of-grid addresses are ignored.
func (m *Mask) Set(x, y int, keep bool) {
	if x < 0 || y < 0 || x >= m.gridX || y >= m.gridY {
		return
	}
	i := y*m.gridX + x
	if keep {
		m.words[i/64] |= 1 << (uint(i) % 64)
	} else {
		m.words[i/64] &^= 1 << (uint(i) % 64)
	}
}

// Kept returns the number of selected pixels.
func (m *Mask) Kept() int {
	n := 0
	for _, w := range m.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Load reads a CBOR file holding a tag 40 uint8 matrix of GridY rows by
// GridX columns. Nonzero cells are kept.
func Load(path string, gridX, gridY int) (*Mask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("roi load failed (%s): %w", path, err)
	}
	var value any
	if err := cbor.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("roi parse failed (%s): %w", path, err)
	}
	mat, err := cborarray.DecodeMatrix(value)
	if err != nil {
		return nil, fmt.Errorf("roi parse failed (%s): %w", path, err)
	}
	if mat.Rows != gridY || mat.Cols != gridX {
		return nil, fmt.Errorf("%w: file is %dx%d, grid is %dx%d", ErrShape, mat.Cols, mat.Rows, gridX, gridY)
	}
	cells, ok := mat.Data.([]uint8)
	if !ok {
		return nil, fmt.Errorf("roi parse failed (%s): cells are %T, want uint8", path, mat.Data)
	}

	m := New(gridX, gridY)
	for i, c := range cells {
		if c != 0 {
			m.words[i/64] |= 1 << (uint(i) % 64)
		}
	}
	return m, nil
}

// Save writes m in the format read by Load.
func (m *Mask) Save(path string) error {
	cells := make([]uint8, m.gridX*m.gridY)
	for i := range cells {
		if m.words[i/64]&(1<<(uint(i)%64)) != 0 {
			cells[i] = 1
		}
	}
	tag, err := cborarray.EncodeMatrix(cborarray.Matrix{Rows: m.gridY, Cols: m.gridX, Data: cells})
	if err != nil {
		return err
	}
	payload, err := cbor.Marshal(tag)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}
