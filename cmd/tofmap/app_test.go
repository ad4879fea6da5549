package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tofmap-go/internal/config"
	"tofmap-go/internal/output"
	"tofmap-go/internal/processing"
	"tofmap-go/internal/simulator"
	"tofmap-go/internal/types"
)

func TestSeriesName(t *testing.T) {
	cases := map[string]string{
		"/data/run_0042.bin":           "run_0042",
		"/data/run.tar.zst:events.bin": "run_events",
		"scan 7.bin.gz":                "scan_7",
		"":                             "series",
		"relative/dir/EVT-1.dat":       "EVT-1",
	}
	for in, want := range cases {
		assert.Equal(t, want, seriesName(in), in)
	}
}

func testApp(t *testing.T, dir string) *app {
	t.Helper()
	inst := config.Instrument{Name: "test", GridX: 16, GridY: 8, HeaderSize: 128, Tick: 0.1}
	driver, err := processing.NewDriver(inst, nil, nil)
	require.NoError(t, err)
	return newApp(config.AppConfig{
		Workers:    2,
		OutputDir:  dir,
		CBOROutput: true,
		TextOutput: true,
		Instrument: inst,
	}, driver)
}

func TestRunFilesWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	sim := simulator.DefaultConfig(16, 8, 128)
	sim.Frames = 2
	sim.EventsPerFrame = 100

	var inputs []string
	for i, seed := range []int64{1, 2, 3} {
		sim.Seed = seed
		p := filepath.Join(dir, "in", []string{"a.bin", "b.bin", "c.bin"}[i])
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, simulator.Generate(sim), 0o644))
		inputs = append(inputs, p)
	}

	out := filepath.Join(dir, "out")
	a := testApp(t, out)
	require.NoError(t, a.runFiles(context.Background(), inputs))

	cborFiles, err := filepath.Glob(filepath.Join(out, "*_events.cbor"))
	require.NoError(t, err)
	assert.Len(t, cborFiles, 3)
	textFiles, err := filepath.Glob(filepath.Join(out, "*_events.txt"))
	require.NoError(t, err)
	assert.Len(t, textFiles, 3)

	file, _, err := output.ReadCBOR(cborFiles[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(200), file.Summary.Events)

	status := a.status()
	assert.Equal(t, uint64(3), status["series_done"])
	assert.Equal(t, uint64(0), status["series_failed"])
	assert.NotNil(t, a.snapshot())
}

func TestRunFilesMissingInput(t *testing.T) {
	a := testApp(t, t.TempDir())
	err := a.runFiles(context.Background(), []string{filepath.Join(t.TempDir(), "missing.bin")})
	require.Error(t, err)
	assert.Equal(t, uint64(1), a.seriesFailed.Load())
}

func TestRunSeriesSkipsFailures(t *testing.T) {
	a := testApp(t, t.TempDir())
	sim := simulator.DefaultConfig(16, 8, 128)
	sim.Frames = 1
	sim.EventsPerFrame = 10

	ch := make(chan types.Series, 2)
	ch <- types.Series{ID: "short", Name: "short", Data: make([]byte, 10)}
	ch <- types.Series{ID: "ok", Name: "ok", Data: simulator.Generate(sim)}
	close(ch)

	a.runSeries(context.Background(), ch)
	assert.Equal(t, uint64(1), a.seriesDone.Load())
	assert.Equal(t, uint64(1), a.seriesFailed.Load())

	snap, ok := a.snapshot().(types.UISnapshot)
	require.True(t, ok)
	assert.Equal(t, "ok", snap.Summary.Name)
	assert.Equal(t, 16, snap.Image.GridX)
}
