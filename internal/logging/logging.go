package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const EnvLogLevel = "TOFMAP_LOG_LEVEL"

// Init installs a console logger tagged with app as the global zerolog
// logger. An empty level falls back to TOFMAP_LOG_LEVEL, then info.
func Init(app, level string) zerolog.Logger {
	if strings.TrimSpace(level) == "" {
		level = os.Getenv(EnvLogLevel)
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).Level(ParseLevel(level)).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

func ParseLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off", "none":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// EveryN logs through fn on every nth call. It is not safe for concurrent
// use; each goroutine keeps its own.
type EveryN struct {
	N     int
	count int
}

func (e *EveryN) Log(fn func()) {
	e.count++
	n := e.N
	if n < 1 {
		n = 1
	}
	if e.count%n == 0 {
		fn()
	}
}
