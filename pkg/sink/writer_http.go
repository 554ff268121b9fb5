package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPWriter posts batches of points as JSON to an external time-series
// endpoint, grounded on the teacher's runtime.Client (internal/runtime/
// client.go): a plain *http.Client with a bearer token header and a
// deadline taken from the request context, not a client-level timeout.
type HTTPWriter struct {
	endpoint string
	token    string
	client   *http.Client
}

// wirePoint is Point's JSON-over-the-wire shape, matching spec §6's
// tag/field naming (deviceId, not DeviceID).
type wirePoint struct {
	DeviceID    string      `json:"deviceId"`
	Attribute   string      `json:"attribute"`
	Value       interface{} `json:"value"`
	Unit        string      `json:"unit,omitempty"`
	Source      string      `json:"source"`
	Timestamp   int64       `json:"timestamp"` // nanoseconds since epoch, per spec §6
	Measurement string      `json:"measurement"`
}

// NewHTTPWriter builds a Writer that POSTs batches to endpoint. token is
// sent as a bearer credential when non-empty (spec §6: "Sink endpoint +
// credentials passed via environment").
func NewHTTPWriter(endpoint, token string) *HTTPWriter {
	return &HTTPWriter{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{},
	}
}

func (w *HTTPWriter) Write(ctx context.Context, points []Point) error {
	wire := make([]wirePoint, len(points))
	for i, p := range points {
		measurement := p.Measurement
		if measurement == "" {
			measurement = "telemetry"
		}
		wire[i] = wirePoint{
			DeviceID:    p.DeviceID,
			Attribute:   p.Attribute,
			Value:       p.Value,
			Unit:        p.Unit,
			Source:      string(p.Source),
			Timestamp:   p.Timestamp.UnixNano(),
			Measurement: measurement,
		}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("sink: encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sink: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sink: write batch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sink: write batch: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (w *HTTPWriter) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

var _ Writer = (*HTTPWriter)(nil)
