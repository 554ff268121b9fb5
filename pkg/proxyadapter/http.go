package proxyadapter

import (
	"context"
	"io"
	"net/http"
)

// httpIngress doesn't run its own listener: the control plane's mux already
// owns the webhook route (spec §6, POST /api/v1/webhooks/{deviceId}).
// Start/Stop just register/unregister this adapter's handler with the
// registry the control plane exposes.
type httpIngress struct {
	deviceID string
	registry WebhookRegistry
	handler  TelemetryHandler
}

// WebhookRegistry is the narrow interface pkg/controlplane implements so
// proxyadapter can register a per-device webhook handler without importing
// the control plane package (same import-cycle-breaking shape as the
// teacher's ControlAPIAdapter in pkg/engine/control_api.go).
type WebhookRegistry interface {
	RegisterWebhook(deviceID string, handler func(body []byte))
	UnregisterWebhook(deviceID string)
}

// NewHTTPIngress builds an ingress Adapter backed by a webhook route
// registered against registry for deviceID.
func NewHTTPIngress(deviceID string, registry WebhookRegistry) Adapter {
	return &httpIngress{deviceID: deviceID, registry: registry}
}

func (a *httpIngress) Start(ctx context.Context, handler TelemetryHandler) error {
	a.handler = handler
	a.registry.RegisterWebhook(a.deviceID, func(body []byte) {
		handler(body)
	})
	return nil
}

func (a *httpIngress) Stop() error {
	a.registry.UnregisterWebhook(a.deviceID)
	return nil
}

// ReadWebhookBody is a small helper the control plane's HTTP handler uses
// to bound how much of a webhook body it reads before invoking the
// registered callback, avoiding an unbounded read from a misbehaving
// external device.
func ReadWebhookBody(r *http.Request, maxBytes int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBytes))
}
