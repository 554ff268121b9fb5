// Package proxydevice implements the Proxy Device: a passthrough device
// bound to an external source via a Proxy Adapter, forwarding real device
// telemetry into the same metrics sink a Virtual Device writes to
// (SPEC_FULL.md §4.3). Unlike a Virtual Device it owns no scheduler of its
// own: every counter update and telemetry point is driven by an inbound
// payload.
package proxydevice

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ohler55/ojg/oj"

	"github.com/crtx-sg/iotix/pkg/model"
	"github.com/crtx-sg/iotix/pkg/proxyadapter"
	"github.com/crtx-sg/iotix/pkg/sink"
)

// Sink is the narrow interface a Proxy Device needs to emit time-series
// points, satisfied by *sink.Sink.
type Sink interface {
	Ingest(sink.Point)
}

// StatusCallback is invoked whenever the proxy device's lifecycle status
// changes.
type StatusCallback func(model.Status)

// Options configures a ProxyDevice at construction time.
type Options struct {
	DeviceID string
	ModelID  string
	Model    *model.DeviceModel
	Protocol model.Protocol // the binding's ingress protocol, tagged onto connections points
	Sink     Sink
	Adapter  proxyadapter.Adapter

	OnStatusChange StatusCallback
}

// ProxyDevice forwards an external device's telemetry into the engine's
// metrics sink (spec §4.3).
type ProxyDevice struct {
	id       string
	modelID  string
	model    *model.DeviceModel
	protocol model.Protocol
	sink     Sink
	adapter  proxyadapter.Adapter

	onStatus StatusCallback

	mu               sync.Mutex
	status           model.Status
	lastTelemetryAt  *time.Time
	messagesReceived atomic.Int64
	bytesReceived    atomic.Int64
	droppedPayloads  atomic.Int64
}

// New builds a ProxyDevice in CREATED state.
func New(opts Options) *ProxyDevice {
	return &ProxyDevice{
		id:       opts.DeviceID,
		modelID:  opts.ModelID,
		model:    opts.Model,
		protocol: opts.Protocol,
		sink:     opts.Sink,
		adapter:  opts.Adapter,
		onStatus: opts.OnStatusChange,
		status:   model.StatusCreated,
	}
}

// ID returns the device's id.
func (d *ProxyDevice) ID() string { return d.id }

// Status returns the device's current lifecycle status.
func (d *ProxyDevice) Status() model.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Stats returns the proxy device's running counters (spec §3 Device,
// proxy additions).
type Stats struct {
	MessagesReceived     int64
	BytesReceived        int64
	ProxyDroppedPayloads int64
	LastTelemetryAt      *time.Time
}

func (d *ProxyDevice) Stats() Stats {
	d.mu.Lock()
	last := d.lastTelemetryAt
	d.mu.Unlock()
	return Stats{
		MessagesReceived:     d.messagesReceived.Load(),
		BytesReceived:        d.bytesReceived.Load(),
		ProxyDroppedPayloads: d.droppedPayloads.Load(),
		LastTelemetryAt:      last,
	}
}

// Start begins listening for inbound telemetry via the bound Proxy Adapter
// (spec §4.3: "Bound to an external source via a Proxy Adapter").
func (d *ProxyDevice) Start(ctx context.Context) error {
	d.setStatus(model.StatusStarting)
	if err := d.adapter.Start(ctx, d.onTelemetry); err != nil {
		d.emitConnectionState(false)
		d.setStatus(model.StatusError)
		d.emitEvent("error")
		return err
	}
	d.emitConnectionState(true)
	d.setStatus(model.StatusRunning)
	d.emitEvent("connected")
	return nil
}

// Stop tears down the bound Proxy Adapter.
func (d *ProxyDevice) Stop() error {
	d.setStatus(model.StatusStopping)
	err := d.adapter.Stop()
	d.emitConnectionState(false)
	d.setStatus(model.StatusStopped)
	d.emitEvent("stopped")
	return err
}

func (d *ProxyDevice) setStatus(s model.Status) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
	if d.onStatus != nil {
		d.onStatus(s)
	}
}

// emitEvent writes a device_events point for a lifecycle transition (spec
// §6: tags deviceId, modelId, eventType, groupId, source; field value,
// always numeric 1).
func (d *ProxyDevice) emitEvent(eventType string) {
	if d.sink == nil {
		return
	}
	d.sink.Ingest(sink.Point{
		DeviceID:    d.id,
		ModelID:     d.modelID,
		EventType:   eventType,
		Value:       1,
		Source:      model.SourcePhysical,
		Timestamp:   time.Now(),
		Measurement: "device_events",
	})
}

// emitConnectionState writes a connections point on bind/unbind (spec §6:
// tags deviceId, protocol, source; fields connected(bool), latencyMs
// (number)). A proxy device's ingress either subscribes or registers a
// route rather than dialing out, so latency isn't meaningful here.
func (d *ProxyDevice) emitConnectionState(connected bool) {
	if d.sink == nil {
		return
	}
	now := time.Now()
	d.sink.Ingest(sink.Point{
		DeviceID:    d.id,
		Protocol:    d.protocol,
		Attribute:   "connected",
		Value:       connected,
		Source:      model.SourcePhysical,
		Timestamp:   now,
		Measurement: "connections",
	})
	d.sink.Ingest(sink.Point{
		DeviceID:    d.id,
		Protocol:    d.protocol,
		Attribute:   "latencyMs",
		Value:       float64(0),
		Source:      model.SourcePhysical,
		Timestamp:   now,
		Measurement: "connections",
	})
}

// onTelemetry handles one inbound payload (spec §4.3): a malformed or
// non-object JSON payload is dropped and counted. A well-formed object is
// flattened into dotted attribute names (nested objects recurse, arrays are
// not representable as a single point and are skipped) and each
// numeric/string/boolean leaf is written as a telemetry point tagged
// source=physical.
func (d *ProxyDevice) onTelemetry(payload []byte) {
	parsed, err := oj.Parse(payload)
	if err != nil {
		d.droppedPayloads.Add(1)
		return
	}
	fields, ok := parsed.(map[string]interface{})
	if !ok {
		d.droppedPayloads.Add(1)
		return
	}

	d.messagesReceived.Add(1)
	d.bytesReceived.Add(int64(len(payload)))
	now := time.Now()
	d.mu.Lock()
	d.lastTelemetryAt = &now
	d.mu.Unlock()

	if d.sink == nil {
		return
	}
	flat := make(map[string]interface{})
	flattenTelemetryFields("", fields, flat)
	for name, value := range flat {
		d.sink.Ingest(sink.Point{
			DeviceID:    d.id,
			ModelID:     d.modelID,
			Attribute:   name,
			Value:       value,
			Source:      model.SourcePhysical,
			Timestamp:   now,
			Measurement: "telemetry",
		})
	}
}

// flattenTelemetryFields walks a parsed JSON object, recursing into nested
// objects and joining keys with ".". Arrays and other non-leaf types are
// dropped since they don't map to a single telemetry point.
func flattenTelemetryFields(prefix string, in map[string]interface{}, out map[string]interface{}) {
	for key, value := range in {
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}
		switch v := value.(type) {
		case float64, string, bool:
			out[name] = v
		case int64:
			out[name] = float64(v)
		case int:
			out[name] = float64(v)
		case map[string]interface{}:
			flattenTelemetryFields(name, v, out)
		}
	}
}
