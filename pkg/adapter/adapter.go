// Package adapter implements the device engine's egress protocol adapters:
// MQTT, CoAP, and HTTP publishers a Virtual Device uses to emit telemetry
// (SPEC_FULL.md §4.5).
package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crtx-sg/iotix/pkg/model"
)

// Adapter is the closed interface every protocol publisher implements. A
// Virtual Device owns exactly one Adapter and never blocks on Publish: the
// call only enqueues, the adapter's own goroutine does the actual I/O and
// reconnect handling.
type Adapter interface {
	// Connect establishes the initial transport connection.
	Connect(ctx context.Context) error
	// Publish enqueues payload for delivery to topic at the given QoS
	// (ignored by protocols that don't support it). Never blocks; when the
	// adapter's outbound queue is full the oldest pending message is
	// dropped and DroppedPublishes is incremented.
	Publish(topic string, payload []byte, qos int) error
	// Close stops the adapter's background delivery loop.
	Close() error
	// Stats returns the adapter's running delivery counters.
	Stats() Stats
}

// Stats are the counters the catalog surfaces via GetStats (spec §4.1).
type Stats struct {
	MessagesSent      int64
	BytesSent         int64
	PublishErrors     int64
	DroppedPublishes  int64
}

// Config carries the connection and retry parameters common to every
// adapter, derived from a DeviceModel's ConnectionSpec (spec §4.5).
type Config struct {
	Connection model.ConnectionSpec

	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	QueueSize      int

	// ReconnectMinDelay/MaxDelay bound the exponential backoff the adapter
	// applies between reconnect attempts; JitterFraction adds +/- jitter
	// on top of the computed delay (spec §4.5: 1s-60s, ~20% jitter).
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration
	JitterFraction    float64

	Logger *slog.Logger
}

// DefaultConfig fills in the spec's documented defaults for any zero field.
func DefaultConfig(conn model.ConnectionSpec, logger *slog.Logger) Config {
	if logger == nil {
		logger = slog.Default()
	}
	return Config{
		Connection:        conn,
		ConnectTimeout:     10 * time.Second,
		PublishTimeout:     5 * time.Second,
		QueueSize:          1024,
		ReconnectMinDelay:  1 * time.Second,
		ReconnectMaxDelay:  60 * time.Second,
		JitterFraction:     0.2,
		Logger:             logger,
	}
}

// New builds the Adapter matching protocol, per spec §4.5.
func New(protocol model.Protocol, clientID string, cfg Config) (Adapter, error) {
	switch protocol {
	case model.ProtocolMQTT:
		return NewMQTT(clientID, cfg), nil
	case model.ProtocolCoAP:
		return NewCoAP(cfg), nil
	case model.ProtocolHTTP:
		return NewHTTP(cfg), nil
	default:
		return nil, fmt.Errorf("adapter: unsupported protocol %q", protocol)
	}
}
