// Package source opens event streams and exposes them as byte sources with
// the fixed framing header already skipped.
package source

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"tofmap-go/internal/compression"
)

// DefaultHeaderSize is the framing header preceding the first record.
const DefaultHeaderSize = 128

var (
	ErrHeaderTruncated = errors.New("source: stream ended inside header")
	ErrEntryNotFound   = errors.New("source: archive entry not found")
)

// Opener opens a fresh reader positioned at the start of the stream. Each
// call must yield the same bytes; the two-pass driver calls it once per pass.
type Opener func() (io.ReadCloser, error)

// Reader is a buffered byte source over an opened stream.
type Reader struct {
	br     *bufio.Reader
	closer io.Closer
	read   int64
}

// New wraps rc and skips headerSize bytes.
func New(rc io.ReadCloser, headerSize int) (*Reader, error) {
	r := &Reader{
		br:     bufio.NewReaderSize(rc, 256*1024),
		closer: rc,
	}
	if err := r.Skip(int64(headerSize)); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return r, nil
}

// Open calls open and wraps the result with New.
func Open(open Opener, headerSize int) (*Reader, error) {
	rc, err := open()
	if err != nil {
		return nil, err
	}
	return New(rc, headerSize)
}

func (r *Reader) ReadByte() (byte, error) {
	c, err := r.br.ReadByte()
	if err == nil {
		r.read++
	}
	return c, err
}

// Skip discards n bytes. Running out of input while skipping reports
// ErrHeaderTruncated.
func (r *Reader) Skip(n int64) error {
	for n > 0 {
		step := n
		if step > 1<<30 {
			step = 1 << 30
		}
		got, err := r.br.Discard(int(step))
		r.read += int64(got)
		n -= int64(got)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: %d bytes short", ErrHeaderTruncated, n)
			}
			return err
		}
	}
	return nil
}

// Offset returns the number of bytes consumed, header included.
func (r *Reader) Offset() int64 {
	return r.read
}

func (r *Reader) Close() error {
	return r.closer.Close()
}

// File opens path on every call. A .zst or .gz suffix selects
// decompression; other files are read as stored.
func File(path string) Opener {
	return func() (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		return wrapCompressed(f, compression.FromName(path), f)
	}
}

// Bytes serves buf on every call.
func Bytes(buf []byte) Opener {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
}

// TarEntry opens the entry of the tar archive at archivePath whose base name
// is name. An empty name selects the first regular file. The archive and the
// entry are decompressed according to their name suffixes.
func TarEntry(archivePath, name string) Opener {
	return func() (io.ReadCloser, error) {
		f, err := os.Open(archivePath)
		if err != nil {
			return nil, err
		}
		outer, err := compression.NewReader(bufio.NewReader(f), compression.FromName(archivePath))
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		tr := tar.NewReader(outer)
		for {
			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				_ = outer.Close()
				_ = f.Close()
				return nil, fmt.Errorf("%w: %q in %s", ErrEntryNotFound, name, archivePath)
			}
			if err != nil {
				_ = outer.Close()
				_ = f.Close()
				return nil, err
			}
			if hdr.Typeflag != tar.TypeReg {
				continue
			}
			if name == "" || path.Base(hdr.Name) == name {
				return wrapCompressed(tr, compression.FromName(hdr.Name), multiCloser{outer, f})
			}
		}
	}
}

// Parse turns "archive.tar:entry" into a tar opener and anything else into a
// file opener.
func Parse(spec string) Opener {
	if i := strings.LastIndex(spec, ".tar"); i >= 0 {
		rest := spec[i+len(".tar"):]
		for _, ext := range []string{".zst", ".gz"} {
			rest = strings.TrimPrefix(rest, ext)
		}
		if rest == "" {
			return TarEntry(spec, "")
		}
		if strings.HasPrefix(rest, ":") {
			archive := strings.TrimSuffix(spec, rest)
			return TarEntry(archive, rest[1:])
		}
	}
	return File(spec)
}

func wrapCompressed(r io.Reader, algorithm string, c io.Closer) (io.ReadCloser, error) {
	inner, err := compression.NewReader(r, algorithm)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return readCloser{Reader: inner, closers: multiCloser{inner, c}}, nil
}

type readCloser struct {
	io.Reader
	closers multiCloser
}

func (r readCloser) Close() error {
	return r.closers.Close()
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
