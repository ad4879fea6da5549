package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"tofmap-go/internal/config"
	"tofmap-go/internal/eventstream"
	"tofmap-go/internal/logging"
	"tofmap-go/internal/source"
)

func main() {
	path := flag.String("path", "", "Comma-separated event streams; archive.tar[:entry] selects a tar entry")
	limit := flag.Int("limit", 20, "Max number of records to print per stream")
	instrumentPath := flag.String("instrument", "", "Instrument TOML file")
	header := flag.Int("header", -1, "Header size override in bytes")
	logLevel := flag.String("log-level", "", "trace|debug|info|warn|error|disabled")
	flag.Parse()

	logging.Init("tofmap-dump", *logLevel)

	if *path == "" {
		log.Fatal().Msg("missing -path")
	}

	inst := config.DefaultInstrument()
	if *instrumentPath != "" {
		loaded, err := config.LoadInstrument(*instrumentPath)
		if err != nil {
			log.Fatal().Err(err).Msg("instrument config")
		}
		inst = loaded
	}
	if *header >= 0 {
		inst.HeaderSize = *header
	}

	dec := eventstream.NewDecoder(inst.Tick)
	for _, p := range strings.Split(*path, ",") {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		dec.Reset()
		if err := dump(dec, p, inst, *limit); err != nil {
			log.Fatal().Err(err).Str("path", p).Msg("dump failed")
		}
	}
}

func dump(dec *eventstream.Decoder, path string, inst config.Instrument, limit int) error {
	src, err := source.Open(source.Parse(path), inst.HeaderSize)
	if err != nil {
		return err
	}
	defer src.Close()

	fmt.Printf("%s\n", path)
	var records, markers, outside int
	for {
		c, err := src.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return fmt.Errorf("read at offset %d: %w", src.Offset(), err)
			}
			break
		}
		rec, ok := dec.Feed(c)
		if !ok {
			continue
		}
		records++
		if rec.Marker {
			markers++
		} else if int(rec.X) >= inst.GridX || int(rec.Y) >= inst.GridY {
			outside++
		}
		if records <= limit {
			if rec.Marker {
				fmt.Printf("%8d  frame marker\n", records-1)
			} else {
				fmt.Printf("%8d  x=%-3d y=%-3d dt=%-10d tof=%.1fus\n", records-1, rec.X, rec.Y, rec.DT, rec.TOF)
			}
		}
	}

	fmt.Printf("summary: records=%d frames=%d outside_grid=%d truncated=%t end_tof=%.1fus\n",
		records, markers, outside, dec.Pending(), dec.Time())
	return nil
}
