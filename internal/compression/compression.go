package compression

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const (
	None = "none"
	Zstd = "zstd"
	Gzip = "gzip"
)

// FromName picks the algorithm from the file name suffix: .zst/.zstd,
// .gz/.gzip. Anything else is read as stored.
func FromName(name string) string {
	switch alg := parseAlgorithm(strings.TrimPrefix(path.Ext(name), ".")); alg {
	case Zstd, Gzip:
		return alg
	default:
		return None
	}
}

// NewReader unwraps r with the named algorithm. Closing the result does not
// close r.
func NewReader(r io.Reader, algorithm string) (io.ReadCloser, error) {
	switch parseAlgorithm(algorithm) {
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return dec.IOReadCloser(), nil
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return zr, nil
	case None:
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm %q", algorithm)
	}
}

// NewWriter wraps w with the named algorithm. Close flushes the framing but
// leaves w open.
func NewWriter(w io.Writer, algorithm string) (io.WriteCloser, error) {
	switch parseAlgorithm(algorithm) {
	case Zstd:
		return zstd.NewWriter(w)
	case Gzip:
		return gzip.NewWriter(w), nil
	case None:
		return nopWriteCloser{w}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm %q", algorithm)
	}
}

func parseAlgorithm(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none", "raw":
		return None
	case "zstd", "zst":
		return Zstd
	case "gzip", "gz":
		return Gzip
	default:
		return value
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
