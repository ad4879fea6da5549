package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"tofmap-go/internal/processing"
)

// Timestamp names one run's output files.
func Timestamp() string {
	return time.Now().Format("20060102_150405")
}

// WriteText writes one row per non-empty pixel: x, y, count, then the
// stored times in microseconds. It returns the file path.
func WriteText(outputDir, runTimestamp string, res *processing.Result) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}

	filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s_events.txt", runTimestamp, res.Name))
	f, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	w := bufio.NewWriterSize(f, 1024*1024)

	gridX, gridY := res.Store.Size()
	_, _ = fmt.Fprintln(w, "x, y, count, tof_us...")
	var buf []byte
	for y := 0; y < gridY; y++ {
		for x := 0; x < gridX; x++ {
			events := res.Store.Events(x, y)
			if len(events) == 0 {
				continue
			}
			buf = buf[:0]
			buf = strconv.AppendInt(buf, int64(x), 10)
			buf = append(buf, ", "...)
			buf = strconv.AppendInt(buf, int64(y), 10)
			buf = append(buf, ", "...)
			buf = strconv.AppendInt(buf, int64(len(events)), 10)
			for _, t := range events {
				buf = append(buf, ", "...)
				buf = strconv.AppendFloat(buf, t, 'f', -1, 64)
			}
			buf = append(buf, '\n')
			if _, err := w.Write(buf); err != nil {
				_ = f.Close()
				return "", err
			}
		}
	}

	if err := w.Flush(); err != nil {
		_ = f.Close()
		return "", err
	}
	return filename, f.Close()
}
