package engine

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/crtx-sg/iotix/pkg/adapter"
	"github.com/crtx-sg/iotix/pkg/catalog"
	"github.com/crtx-sg/iotix/pkg/logging"
	"github.com/crtx-sg/iotix/pkg/model"
	"github.com/crtx-sg/iotix/pkg/sink"
)

// Option configures a Manager at construction time, the same functional-
// options shape as the teacher's engine.ServerOption.
type Option func(*options)

type options struct {
	log    *slog.Logger
	writer sink.Writer
}

// WithLogger sets the operational logger (mirrors the teacher's WithLogger).
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithWriter injects a sink.Writer directly, bypassing Config.SinkOutput.
// Mirrors the teacher's WithStore: callers that already have a concrete
// backend (a test spy, an embedded store) skip the config-driven default.
func WithWriter(w sink.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.writer = w
		}
	}
}

// Manager is the engine's single long-lived object: the Device Manager
// plus the Metrics Sink it feeds, under one configuration and one
// operational logger (SPEC_FULL.md §4.1). Embedding *catalog.Manager gives
// pkg/controlplane the full device/group/model surface without pkg/engine
// re-exporting every method by hand.
type Manager struct {
	*catalog.Manager

	cfg       Config
	sink      *sink.Sink
	log       *slog.Logger
	startTime time.Time
}

// New builds a Manager from cfg: a Writer per cfg.SinkOutput (or the
// injected one from WithWriter), a Sink on top of it, and a catalog.Manager
// wired to that Sink and to cfg.ModelsDir/MaxGroupSize.
func New(cfg Config, opts ...Option) (*Manager, error) {
	o := &options{log: logging.Nop()}
	for _, opt := range opts {
		opt(o)
	}

	if o.writer == nil {
		w, err := buildWriter(cfg)
		if err != nil {
			return nil, err
		}
		o.writer = w
	}

	s := sink.New(o.writer, sink.DefaultConfig())

	maxGroupSize := cfg.MaxGroupSize
	if maxGroupSize <= 0 {
		maxGroupSize = 1_000_000
	}

	cm := catalog.New(catalog.Options{
		ModelsDir: cfg.ModelsDir,
		Sink:      s,
		AdapterConfig: adapter.DefaultConfig(model.ConnectionSpec{
			BrokerHost: cfg.DefaultBrokerHost,
			Port:       cfg.DefaultBrokerPort,
		}, o.log),
		MaxGroupSize: maxGroupSize,
		Logger:       o.log,
	})

	return &Manager{
		Manager:   cm,
		cfg:       cfg,
		sink:      s,
		log:       o.log,
		startTime: time.Now(),
	}, nil
}

func buildWriter(cfg Config) (sink.Writer, error) {
	switch cfg.SinkOutput {
	case SinkOutputHTTP:
		if cfg.SinkEndpoint == "" {
			return nil, fmt.Errorf("engine: %s=http requires %s", EnvSinkOutput, EnvSinkEndpoint)
		}
		return sink.NewHTTPWriter(cfg.SinkEndpoint, cfg.SinkToken), nil
	case SinkOutputStdout:
		return sink.NewStdoutWriter(os.Stdout), nil
	case SinkOutputNoop, "":
		return sink.NoOpWriter{}, nil
	default:
		return nil, fmt.Errorf("engine: unknown %s %q", EnvSinkOutput, cfg.SinkOutput)
	}
}

// Close stops the sink's background flush loop and the catalog's stats
// ticker. Devices already running keep running; callers that want a clean
// process shutdown should stop every device/group first.
func (m *Manager) Close() error {
	m.Manager.Close()
	return m.sink.Close()
}

// Config returns the configuration the Manager was built with.
func (m *Manager) Config() Config {
	return m.cfg
}

// Uptime reports how long the Manager has been running.
func (m *Manager) Uptime() time.Duration {
	return time.Since(m.startTime)
}

// SinkStats exposes the Metrics Sink's own queue/write counters, distinct
// from catalog.Manager.GetStats()'s engine-wide device/group counters.
func (m *Manager) SinkStats() sink.Stats {
	return m.sink.Stats()
}
