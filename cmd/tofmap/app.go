package main

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"tofmap-go/internal/config"
	"tofmap-go/internal/ingest"
	"tofmap-go/internal/metrics"
	"tofmap-go/internal/output"
	"tofmap-go/internal/processing"
	"tofmap-go/internal/source"
	"tofmap-go/internal/types"
)

type app struct {
	cfg        config.AppConfig
	driver     *processing.Driver
	uiMessages chan any

	seriesDone   atomic.Uint64
	seriesFailed atomic.Uint64

	statusMu sync.Mutex
	status   map[string]any

	latestMu sync.Mutex
	latest   *types.UISnapshot
}

func newApp(cfg config.AppConfig, driver *processing.Driver) *app {
	return &app{
		cfg:        cfg,
		driver:     driver,
		uiMessages: make(chan any, 16),
		status: map[string]any{
			"mode":        "idle",
			"last_series": "",
			"last_write":  "",
			"last_error":  "",
		},
	}
}

func (a *app) setMode(mode string) {
	a.setStatus("mode", mode)
}

func (a *app) setStatus(key string, value any) {
	a.statusMu.Lock()
	a.status[key] = value
	a.statusMu.Unlock()
}

// runFiles decodes every input concurrently, each with its own sources.
func (a *app) runFiles(ctx context.Context, inputs []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)
	for _, in := range inputs {
		in := in
		g.Go(func() error {
			return a.process(gctx, seriesName(in), source.Parse(in))
		})
	}
	return g.Wait()
}

// runSeries decodes series as they arrive until the channel closes. Failed
// series are logged and skipped.
func (a *app) runSeries(ctx context.Context, series <-chan types.Series) {
	var g errgroup.Group
	g.SetLimit(a.cfg.Workers)
	for s := range series {
		s := s
		g.Go(func() error {
			name := seriesName(s.Name)
			if err := a.process(ctx, name, source.Bytes(s.Data)); err != nil {
				log.Error().Err(err).Str("series", s.ID).Msg("series failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (a *app) process(ctx context.Context, name string, open source.Opener) error {
	res, err := a.driver.Run(ctx, name, open)
	if err != nil {
		a.seriesFailed.Add(1)
		metrics.RecordSeries(false)
		a.setStatus("last_error", err.Error())
		return err
	}

	ts := output.Timestamp()
	if a.cfg.CBOROutput {
		path, err := output.WriteCBOR(a.cfg.OutputDir, ts, res)
		if err != nil {
			a.seriesFailed.Add(1)
			metrics.RecordSeries(false)
			return err
		}
		log.Debug().Str("path", path).Msg("wrote cbor output")
	}
	if a.cfg.TextOutput {
		path, err := output.WriteText(a.cfg.OutputDir, ts, res)
		if err != nil {
			a.seriesFailed.Add(1)
			metrics.RecordSeries(false)
			return err
		}
		log.Debug().Str("path", path).Msg("wrote text output")
	}

	sum := res.Summary()
	a.seriesDone.Add(1)
	metrics.RecordSeries(true)
	log.Info().
		Str("series", name).
		Uint64("records", sum.Records).
		Uint64("stored", sum.Stored).
		Uint64("invalid", sum.Invalid).
		Uint64("frames", sum.Frames).
		Int("pixels_hit", sum.PixelsHit).
		Bool("truncated", sum.Truncated).
		Msg("series decoded")

	a.statusMu.Lock()
	a.status["last_series"] = name
	if a.cfg.CBOROutput || a.cfg.TextOutput {
		a.status["last_write"] = time.Now().Format(time.RFC3339)
	}
	a.statusMu.Unlock()

	a.publish(types.UISnapshot{Type: "snapshot", Summary: sum, Image: res.Image()})
	return nil
}

func (a *app) publish(snap types.UISnapshot) {
	a.latestMu.Lock()
	a.latest = &snap
	a.latestMu.Unlock()
	select {
	case a.uiMessages <- snap:
	default:
	}
}

func (a *app) snapshot() any {
	a.latestMu.Lock()
	defer a.latestMu.Unlock()
	if a.latest == nil {
		return nil
	}
	return *a.latest
}

func (a *app) status() map[string]any {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	out := make(map[string]any, len(a.status)+4)
	for k, v := range a.status {
		out[k] = v
	}
	out["series_done"] = a.seriesDone.Load()
	out["series_failed"] = a.seriesFailed.Load()
	out["ingest_decode_failures"] = ingest.DecodeFailures()
	a.latestMu.Lock()
	if a.latest != nil {
		out["last_summary"] = a.latest.Summary
	}
	a.latestMu.Unlock()
	return out
}

// seriesName turns an input path into a file-name-safe label.
func seriesName(path string) string {
	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) {
		return "series"
	}
	if i := strings.LastIndex(base, ":"); i >= 0 {
		archive, entry := base[:i], base[i+1:]
		base = trimExt(archive) + "_" + trimExt(entry)
	} else {
		base = trimExt(base)
	}
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if name == "" {
		return "series"
	}
	return name
}

func trimExt(name string) string {
	for {
		ext := filepath.Ext(name)
		if ext == "" || ext == name {
			return name
		}
		name = strings.TrimSuffix(name, ext)
	}
}
