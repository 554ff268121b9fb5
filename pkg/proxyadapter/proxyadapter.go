// Package proxyadapter implements the device engine's ingress adapters: the
// MQTT subscription and HTTP webhook routes a Proxy Device uses to receive
// real external device telemetry (SPEC_FULL.md §4.6).
package proxyadapter

import (
	"context"
)

// TelemetryHandler receives one ingress payload for a bound proxy device.
// Implementations must not block; the proxy device's own onTelemetry does
// the flattening and counter bookkeeping (spec §4.3).
type TelemetryHandler func(payload []byte)

// Adapter is the closed interface both ingress transports implement.
type Adapter interface {
	// Start begins listening/subscribing and invokes handler for every
	// received payload until Stop is called.
	Start(ctx context.Context, handler TelemetryHandler) error
	// Stop tears down the subscription/listener.
	Stop() error
}
