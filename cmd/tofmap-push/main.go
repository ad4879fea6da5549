package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pebbe/zmq4"
	"github.com/rs/zerolog/log"

	"tofmap-go/internal/config"
	"tofmap-go/internal/ingest"
	"tofmap-go/internal/logging"
	"tofmap-go/internal/simulator"
	"tofmap-go/internal/source"
	"tofmap-go/internal/types"
)

// tofmap-push replays event streams to a tofmap ingest endpoint. Inputs are
// sent whole, header included, decompressed if their names say so.
func main() {
	var (
		endpoint       = flag.String("endpoint", "tcp://*:5555", "ZMQ endpoint for the PUSH socket")
		connect        = flag.Bool("connect", false, "Connect to the endpoint instead of binding it")
		inputs         = flag.String("in", "", "Comma-separated event streams to send")
		simulate       = flag.Int("simulate", 0, "Number of simulated series to send when -in is empty")
		seed           = flag.Int64("seed", 1, "Seed of the first simulated series")
		instrumentPath = flag.String("instrument", "", "Instrument TOML file")
		chunkSize      = flag.Int("chunk", 1<<20, "Bytes per chunk message")
		logLevel       = flag.String("log-level", "", "trace|debug|info|warn|error|disabled")
	)
	flag.Parse()

	logging.Init("tofmap-push", *logLevel)

	inst := config.DefaultInstrument()
	if *instrumentPath != "" {
		loaded, err := config.LoadInstrument(*instrumentPath)
		if err != nil {
			log.Fatal().Err(err).Msg("instrument config")
		}
		inst = loaded
	}

	var series []types.Series
	for i, in := range strings.Split(*inputs, ",") {
		if in = strings.TrimSpace(in); in == "" {
			continue
		}
		data, err := readAll(source.Parse(in))
		if err != nil {
			log.Fatal().Err(err).Str("input", in).Msg("read input")
		}
		series = append(series, types.Series{ID: fmt.Sprintf("push-%d", i), Name: in, Data: data})
	}
	if len(series) == 0 {
		cfg := simulator.DefaultConfig(inst.GridX, inst.GridY, inst.HeaderSize)
		for i := 0; i < *simulate; i++ {
			cfg.Seed = *seed + int64(i)
			series = append(series, types.Series{
				ID:   fmt.Sprintf("sim-%d", i),
				Name: fmt.Sprintf("simulated_%04d", i),
				Data: simulator.Generate(cfg),
			})
		}
	}
	if len(series) == 0 {
		log.Fatal().Msg("nothing to send: set -in or -simulate")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, s := range series {
		if err := ingest.Push(ctx, *endpoint, !*connect, s, *chunkSize); err != nil {
			log.Fatal().Err(err).Str("series", s.ID).Msg("push failed")
		}
		log.Info().Str("series", s.ID).Str("name", s.Name).Int("bytes", len(s.Data)).Msg("series sent")
	}

	// Term waits for queued messages to leave.
	if err := zmq4.Term(); err != nil {
		log.Warn().Err(err).Msg("zmq term")
	}
}

func readAll(open source.Opener) ([]byte, error) {
	rc, err := open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
