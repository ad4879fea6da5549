package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"tofmap-go/internal/config"
	"tofmap-go/internal/ingest"
	"tofmap-go/internal/logging"
	"tofmap-go/internal/metrics"
	"tofmap-go/internal/output"
	"tofmap-go/internal/processing"
	"tofmap-go/internal/roi"
	"tofmap-go/internal/server"
	"tofmap-go/internal/simulator"
	"tofmap-go/internal/tof"
)

func main() {
	var (
		port           = flag.Int("port", 8888, "HTTP port for the status UI")
		serve          = flag.Bool("serve", false, "Serve the status UI; keeps running after file inputs finish")
		inputs         = flag.String("in", "", "Comma-separated event streams; archive.tar[:entry] selects a tar entry")
		endpoint       = flag.String("endpoint", "", "ZMQ endpoint to pull series from when -in is empty")
		instrumentPath = flag.String("instrument", "", "Instrument TOML file (defaults apply when empty)")
		roiPath        = flag.String("roi", "", "ROI mask file (CBOR uint8 matrix)")
		tofDelay       = flag.Float64("tof-delay", 0, "Fixed delay in microseconds added to stored times")
		workers        = flag.Int("workers", 4, "Series decoded concurrently")
		debug          = flag.Bool("debug", false, "Decode simulated series")
		debugRate      = flag.Duration("debug-rate", 2*time.Second, "Interval between simulated series")
		debugSeed      = flag.Int64("debug-seed", 1, "Seed of the first simulated series")
		outputDir      = flag.String("output-dir", "output", "Directory for output data files")
		cborOutput     = flag.Bool("cbor", true, "Write per-pixel CBOR output")
		textOutput     = flag.Bool("text", false, "Write per-pixel text output")
		rawLogEnabled  = flag.Bool("raw-log", false, "Write raw ingest messages to disk")
		rawLogDir      = flag.String("raw-log-dir", "rawlog", "Directory for raw ingest logs")
		ingestLogEvery = flag.Int("ingest-log-every", 100, "Log every Nth ingest error")
		logLevel       = flag.String("log-level", "", "trace|debug|info|warn|error|disabled")
	)
	flag.Parse()

	logging.Init("tofmap", *logLevel)
	metrics.RegisterMetrics()

	inst := config.DefaultInstrument()
	if *instrumentPath != "" {
		loaded, err := config.LoadInstrument(*instrumentPath)
		if err != nil {
			log.Fatal().Err(err).Msg("instrument config")
		}
		inst = loaded
	}

	cfg := config.AppConfig{
		Port:           *port,
		Serve:          *serve,
		Inputs:         splitList(*inputs),
		Endpoint:       *endpoint,
		Workers:        *workers,
		Debug:          *debug,
		DebugRate:      *debugRate,
		DebugSeed:      *debugSeed,
		OutputDir:      *outputDir,
		CBOROutput:     *cborOutput,
		TextOutput:     *textOutput,
		ROIPath:        *roiPath,
		TOFDelay:       *tofDelay,
		RawLogEnabled:  *rawLogEnabled,
		RawLogDir:      *rawLogDir,
		IngestLogEvery: *ingestLogEvery,
		LogLevel:       *logLevel,
		Instrument:     inst,
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	var mask *roi.Mask
	if cfg.ROIPath != "" {
		m, err := roi.Load(cfg.ROIPath, inst.GridX, inst.GridY)
		if err != nil {
			log.Fatal().Err(err).Msg("roi")
		}
		log.Info().Int("kept", m.Kept()).Int("pixels", inst.Pixels()).Msg("roi loaded")
		mask = m
	}
	var conv tof.Converter = tof.Relative{}
	if cfg.TOFDelay != 0 {
		conv = tof.Offset{Delay: cfg.TOFDelay}
	}
	driver, err := processing.NewDriver(inst, mask, conv)
	if err != nil {
		log.Fatal().Err(err).Msg("driver")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, driver)
	log.Info().
		Str("instrument", inst.Name).
		Int("grid_x", inst.GridX).
		Int("grid_y", inst.GridY).
		Int("header_size", inst.HeaderSize).
		Msg("starting")

	serverDone := make(chan error, 1)
	if cfg.Serve {
		srv := server.New(cfg, a.status, a.snapshot)
		go func() { serverDone <- srv.Run(ctx, a.uiMessages) }()
	}

	switch {
	case len(cfg.Inputs) > 0:
		a.setMode("files")
		if err := a.runFiles(ctx, cfg.Inputs); err != nil {
			log.Error().Err(err).Msg("decode failed")
			if !cfg.Serve {
				os.Exit(1)
			}
		}
		if !cfg.Serve {
			return
		}
		<-ctx.Done()
	case cfg.Debug:
		a.setMode("simulator")
		simCfg := simulator.DefaultConfig(inst.GridX, inst.GridY, inst.HeaderSize)
		simCfg.Seed = cfg.DebugSeed
		a.runSeries(ctx, simulator.Stream(ctx, simCfg, cfg.DebugRate))
	case cfg.Endpoint != "":
		a.setMode("ingest")
		opts := ingest.Options{LogEvery: cfg.IngestLogEvery}
		if cfg.RawLogEnabled {
			writer, err := output.NewRawLogWriter(cfg.RawLogDir, "raw_cbor")
			if err != nil {
				log.Fatal().Err(err).Msg("failed to start raw log")
			}
			defer func() {
				if err := writer.Close(); err != nil {
					log.Warn().Err(err).Msg("raw log close failed")
				}
			}()
			opts.Recorder = writer
		}
		series, err := ingest.Stream(ctx, cfg.Endpoint, opts)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start ingest")
		}
		a.runSeries(ctx, series)
	default:
		log.Fatal().Msg("nothing to do: set -in, -endpoint or -debug")
	}

	stop()
	if cfg.Serve {
		if err := <-serverDone; err != nil {
			log.Error().Err(err).Msg("server stopped")
		}
	}
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
