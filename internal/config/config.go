package config

import "time"

type AppConfig struct {
	Port           int
	Serve          bool
	Inputs         []string
	Endpoint       string
	Workers        int
	Debug          bool
	DebugRate      time.Duration
	DebugSeed      int64
	OutputDir      string
	CBOROutput     bool
	TextOutput     bool
	ROIPath        string
	TOFDelay       float64
	RawLogEnabled  bool
	RawLogDir      string
	IngestLogEvery int
	LogLevel       string
	Instrument     Instrument
}
