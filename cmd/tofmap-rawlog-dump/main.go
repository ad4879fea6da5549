package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog/log"

	"tofmap-go/internal/logging"
	"tofmap-go/internal/output"
)

func main() {
	var (
		path     = flag.String("path", "", "Path to rawlog .bin file")
		limit    = flag.Int("limit", 1, "Number of records to dump")
		logLevel = flag.String("log-level", "", "trace|debug|info|warn|error|disabled")
	)
	flag.Parse()

	logging.Init("tofmap-rawlog-dump", *logLevel)

	if *path == "" {
		log.Fatal().Msg("path is required")
	}

	f, err := os.Open(*path)
	if err != nil {
		log.Fatal().Err(err).Str("path", *path).Msg("open rawlog")
	}
	defer f.Close()

	reader, err := output.NewRawLogReader(f)
	if err != nil {
		log.Fatal().Err(err).Msg("not a raw log")
	}

	for count := 0; *limit <= 0 || count < *limit; count++ {
		ts, payload, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			log.Fatal().Err(err).Int("record", count).Msg("read record")
		}
		if len(payload) == 0 {
			log.Warn().Int("record", count).Msg("empty payload")
			continue
		}

		var decoded any
		if err := cbor.Unmarshal(payload, &decoded); err != nil {
			log.Warn().Err(err).Int("record", count).Msg("CBOR decode failed")
			continue
		}

		// chunk data is raw stream bytes; show its size only.
		if m, ok := decoded.(map[any]any); ok {
			if data, ok := m["data"].([]byte); ok {
				m["data"] = fmt.Sprintf("<%d bytes>", len(data))
			}
		}

		pretty, err := json.MarshalIndent(output.NormalizeJSONValue(decoded), "", "  ")
		if err != nil {
			log.Warn().Err(err).Int("record", count).Msg("JSON encode failed")
			continue
		}

		log.Info().Int("record", count).Str("timestamp", ts.Format(time.RFC3339Nano)).Int("size", len(payload)).Msg("record")
		fmt.Println(string(pretty))
	}
}
