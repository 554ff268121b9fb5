package engine

import (
	"os"
	"strconv"

	"github.com/crtx-sg/iotix/pkg/logging"
)

// Environment variable names the engine reads its configuration from
// (spec §6 "Environment / filesystem": "Sink endpoint + credentials passed
// via environment; adapter defaults (broker host/port) likewise"),
// grounded on the teacher's internal/cliconfig/env.go naming convention.
const (
	// EnvModelPath is the one env var spec.md names explicitly.
	EnvModelPath = "DEVICE_MODEL_PATH"

	EnvControlPlanePort  = "IOTIX_CONTROL_PLANE_PORT"
	EnvMaxGroupSize      = "IOTIX_MAX_GROUP_SIZE"
	EnvSinkOutput        = "IOTIX_SINK_OUTPUT" // "noop" | "stdout" | "http"
	EnvSinkEndpoint      = "IOTIX_SINK_ENDPOINT"
	EnvSinkToken         = "IOTIX_SINK_TOKEN"
	EnvDefaultBrokerHost = "IOTIX_DEFAULT_BROKER_HOST"
	EnvDefaultBrokerPort = "IOTIX_DEFAULT_BROKER_PORT"
	EnvLogLevel          = "IOTIX_LOG_LEVEL"
	EnvLogFormat         = "IOTIX_LOG_FORMAT"
	EnvLokiURL           = "IOTIX_LOKI_URL"
)

// SinkOutput selects which sink.Writer the engine constructs.
type SinkOutput string

const (
	SinkOutputNoop   SinkOutput = "noop"
	SinkOutputStdout SinkOutput = "stdout"
	SinkOutputHTTP   SinkOutput = "http"
)

// Config is the process-level configuration consumed by cmd/iotix
// (SPEC_FULL.md §3 "EngineConfig"): ports, the model directory, sink
// endpoint/credentials, and the default broker a model can omit its own
// connection details in favor of.
type Config struct {
	ControlPlanePort int
	ModelsDir        string
	MaxGroupSize     int

	SinkOutput   SinkOutput
	SinkEndpoint string
	SinkToken    string

	DefaultBrokerHost string
	DefaultBrokerPort int

	LogLevel  logging.Level
	LogFormat logging.Format

	// LokiURL, when set, ships logs to a Loki push endpoint in addition to
	// the primary text/json output (spec ambient stack: operational
	// logging destinations).
	LokiURL string
}

// DefaultConfig returns the engine's defaults before any environment
// override is applied.
func DefaultConfig() Config {
	return Config{
		ControlPlanePort:  8080,
		MaxGroupSize:      1_000_000,
		SinkOutput:        SinkOutputNoop,
		DefaultBrokerHost: "127.0.0.1",
		DefaultBrokerPort: 1883,
		LogLevel:          logging.LevelInfo,
		LogFormat:         logging.FormatText,
	}
}

// LoadConfig returns DefaultConfig with every set environment variable
// applied on top, the same "only override what's present" shape as the
// teacher's cliconfig.LoadEnvConfig.
func LoadConfig() Config {
	cfg := DefaultConfig()

	if v := os.Getenv(EnvModelPath); v != "" {
		cfg.ModelsDir = v
	}
	if v := os.Getenv(EnvControlPlanePort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.ControlPlanePort = port
		}
	}
	if v := os.Getenv(EnvMaxGroupSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxGroupSize = n
		}
	}
	if v := os.Getenv(EnvSinkOutput); v != "" {
		cfg.SinkOutput = SinkOutput(v)
	}
	if v := os.Getenv(EnvSinkEndpoint); v != "" {
		cfg.SinkEndpoint = v
	}
	if v := os.Getenv(EnvSinkToken); v != "" {
		cfg.SinkToken = v
	}
	if v := os.Getenv(EnvDefaultBrokerHost); v != "" {
		cfg.DefaultBrokerHost = v
	}
	if v := os.Getenv(EnvDefaultBrokerPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.DefaultBrokerPort = port
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = logging.ParseLevel(v)
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.LogFormat = logging.ParseFormat(v)
	}
	if v := os.Getenv(EnvLokiURL); v != "" {
		cfg.LokiURL = v
	}

	return cfg
}
