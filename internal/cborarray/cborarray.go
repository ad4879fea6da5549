// Package cborarray encodes and decodes RFC 8746 typed and multi-dimensional
// arrays carried in CBOR tags.
package cborarray

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

const (
	TagMultiDimArray = 40
	TagUint8         = 64
	TagUint16LE      = 69
	TagUint32LE      = 70
	TagFloat32LE     = 85
	TagFloat64LE     = 86
)

var ErrDimensionMismatch = errors.New("cborarray: dimension mismatch")

// Matrix is a row-major two dimensional array. Data is one of []uint8,
// []uint16, []uint32, []float32 or []float64.
type Matrix struct {
	Rows int
	Cols int
	Data any
}

// DecodeMatrix decodes a tag 40 array with two dimensions.
func DecodeMatrix(value any) (Matrix, error) {
	tag, ok := value.(cbor.Tag)
	if !ok || tag.Number != TagMultiDimArray {
		return Matrix{}, fmt.Errorf("expected multidim tag %d", TagMultiDimArray)
	}

	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return Matrix{}, fmt.Errorf("invalid multidim array content")
	}

	dimsRaw, ok := items[0].([]any)
	if !ok || len(dimsRaw) != 2 {
		return Matrix{}, fmt.Errorf("invalid multidim dimensions")
	}

	rows, err := toInt(dimsRaw[0])
	if err != nil {
		return Matrix{}, err
	}
	cols, err := toInt(dimsRaw[1])
	if err != nil {
		return Matrix{}, err
	}

	flat, n, err := DecodeTyped(items[1])
	if err != nil {
		return Matrix{}, err
	}
	if rows < 0 || cols < 0 || rows*cols != n {
		return Matrix{}, fmt.Errorf("%w: %dx%d with %d elements", ErrDimensionMismatch, rows, cols, n)
	}
	return Matrix{Rows: rows, Cols: cols, Data: flat}, nil
}

// DecodeTyped decodes a typed array tag and returns the slice and its length.
func DecodeTyped(value any) (any, int, error) {
	tag, ok := value.(cbor.Tag)
	if !ok {
		return nil, 0, fmt.Errorf("expected typed array tag")
	}
	data, ok := tag.Content.([]byte)
	if !ok {
		return nil, 0, fmt.Errorf("unsupported typed array content %T", tag.Content)
	}

	switch tag.Number {
	case TagUint8:
		return data, len(data), nil
	case TagUint16LE:
		out := bytesToUint16(data)
		return out, len(out), nil
	case TagUint32LE:
		out := bytesToUint32(data)
		return out, len(out), nil
	case TagFloat32LE:
		out := bytesToFloat32(data)
		return out, len(out), nil
	case TagFloat64LE:
		out := bytesToFloat64(data)
		return out, len(out), nil
	default:
		return nil, 0, fmt.Errorf("unsupported typed array tag %d", tag.Number)
	}
}

// EncodeMatrix builds the tag 40 value for m.
func EncodeMatrix(m Matrix) (cbor.Tag, error) {
	typed, n, err := EncodeTyped(m.Data)
	if err != nil {
		return cbor.Tag{}, err
	}
	if m.Rows*m.Cols != n {
		return cbor.Tag{}, fmt.Errorf("%w: %dx%d with %d elements", ErrDimensionMismatch, m.Rows, m.Cols, n)
	}
	return cbor.Tag{
		Number:  TagMultiDimArray,
		Content: []any{[]int{m.Rows, m.Cols}, typed},
	}, nil
}

// EncodeTyped builds the little-endian typed array tag for a slice.
func EncodeTyped(values any) (cbor.Tag, int, error) {
	switch v := values.(type) {
	case []uint8:
		return cbor.Tag{Number: TagUint8, Content: v}, len(v), nil
	case []uint16:
		buf := make([]byte, len(v)*2)
		for i, n := range v {
			binary.LittleEndian.PutUint16(buf[i*2:], n)
		}
		return cbor.Tag{Number: TagUint16LE, Content: buf}, len(v), nil
	case []uint32:
		buf := make([]byte, len(v)*4)
		for i, n := range v {
			binary.LittleEndian.PutUint32(buf[i*4:], n)
		}
		return cbor.Tag{Number: TagUint32LE, Content: buf}, len(v), nil
	case []float32:
		buf := make([]byte, len(v)*4)
		for i, f := range v {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
		}
		return cbor.Tag{Number: TagFloat32LE, Content: buf}, len(v), nil
	case []float64:
		buf := make([]byte, len(v)*8)
		for i, f := range v {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
		}
		return cbor.Tag{Number: TagFloat64LE, Content: buf}, len(v), nil
	default:
		return cbor.Tag{}, 0, fmt.Errorf("unsupported typed array type %T", values)
	}
}

func bytesToUint16(data []byte) []uint16 {
	out := make([]uint16, len(data)/2)
	for i := 0; i < len(out); i++ {
		out[i] = binary.LittleEndian.Uint16(data[i*2 : i*2+2])
	}
	return out
}

func bytesToUint32(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := 0; i < len(out); i++ {
		out[i] = binary.LittleEndian.Uint32(data[i*4 : i*4+4])
	}
	return out
}

func bytesToFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := 0; i < len(out); i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4 : i*4+4]))
	}
	return out
}

func bytesToFloat64(data []byte) []float64 {
	out := make([]float64, len(data)/8)
	for i := 0; i < len(out); i++ {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8 : i*8+8]))
	}
	return out
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported int type %T", v)
	}
}
