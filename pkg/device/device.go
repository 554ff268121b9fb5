// Package device implements the Virtual Device: a simulated device instance
// that owns one protocol adapter and one generator per telemetry attribute,
// publishing on independent per-attribute schedules (SPEC_FULL.md §4.2).
// Grounded on the teacher's MultiDeviceSimulator/PerTopicDeviceSimulator
// (pkg/mqtt/simulator.go): a done channel plus sync.WaitGroup supervising
// one goroutine per simulated unit, generalized here from one goroutine per
// device to one goroutine per device attribute.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/crtx-sg/iotix/pkg/adapter"
	"github.com/crtx-sg/iotix/pkg/generator"
	"github.com/crtx-sg/iotix/pkg/model"
	"github.com/crtx-sg/iotix/pkg/sink"
)

// consecutiveFailureThreshold is the number of consecutive stats-poll
// windows with no successful delivery before the device is considered
// disconnected (spec §4.2 step 4: "three consecutive failures").
const consecutiveFailureThreshold = 3

// statsPollInterval is how often the connection supervisor samples the
// adapter's delivery counters to detect sustained publish failures.
const statsPollInterval = 500 * time.Millisecond

const defaultGracefulStopTimeout = 5 * time.Second

// Sink is the narrow interface a Virtual Device needs to emit time-series
// points, satisfied by *sink.Sink.
type Sink interface {
	Ingest(sink.Point)
}

// StatusCallback is invoked, outside any internal lock, whenever the
// device's lifecycle status changes (spec §4.1 state machine).
type StatusCallback func(model.Status)

// Options configures a VirtualDevice at construction time.
type Options struct {
	DeviceID string
	ModelID  string
	GroupID  string
	Model    *model.DeviceModel

	Sink                Sink
	AdapterConfig       adapter.Config
	ConnectTimeout      time.Duration
	GracefulStopTimeout time.Duration

	OnStatusChange StatusCallback

	// Adapter overrides the adapter the device connects through, bypassing
	// adapter.New. Tests use this to inject a fake; production callers
	// leave it nil and let Start build the real one from the model's
	// protocol and AdapterConfig.
	Adapter adapter.Adapter
}

// VirtualDevice owns exactly one protocol adapter and one generator per
// telemetry attribute (spec §4.2).
type VirtualDevice struct {
	id      string
	modelID string
	groupID string
	model   *model.DeviceModel

	adapterImpl   adapter.Adapter
	adapterConfig adapter.Config
	generators    map[string]generator.Generator
	sink          Sink

	connectTimeout      time.Duration
	gracefulStopTimeout time.Duration
	onStatus            StatusCallback

	clientID  string // interpolated clientIdPattern, cached at Start
	topicBase string // interpolated topicPattern, ${timestamp} still literal

	mu        sync.Mutex
	status    model.Status
	startedAt *time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a VirtualDevice in CREATED state. Call Start to connect and
// begin publishing.
func New(opts Options) *VirtualDevice {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	gracefulStop := opts.GracefulStopTimeout
	if gracefulStop <= 0 {
		gracefulStop = defaultGracefulStopTimeout
	}
	return &VirtualDevice{
		id:                  opts.DeviceID,
		modelID:             opts.ModelID,
		groupID:             opts.GroupID,
		model:               opts.Model,
		adapterImpl:         opts.Adapter,
		adapterConfig:       opts.AdapterConfig,
		sink:                opts.Sink,
		connectTimeout:      connectTimeout,
		gracefulStopTimeout: gracefulStop,
		onStatus:            opts.OnStatusChange,
		status:              model.StatusCreated,
	}
}

// ID returns the device's id.
func (d *VirtualDevice) ID() string { return d.id }

// Status returns the device's current lifecycle status.
func (d *VirtualDevice) Status() model.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// StartedAt returns when the device last reached RUNNING, or nil if it
// hasn't yet.
func (d *VirtualDevice) StartedAt() *time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startedAt
}

// Stats returns the underlying adapter's delivery counters, which double as
// the device's messagesSent/bytesSent/publishErrors (spec §3 Device).
func (d *VirtualDevice) Stats() adapter.Stats {
	if d.adapterImpl == nil {
		return adapter.Stats{}
	}
	return d.adapterImpl.Stats()
}

// Start seeds the device's generators, connects its adapter (bounded by
// ConnectTimeout), and spawns one scheduler goroutine per telemetry
// attribute plus a connection supervisor (spec §4.2 steps 1-3).
func (d *VirtualDevice) Start(ctx context.Context) error {
	d.setStatus(model.StatusStarting)

	gens := make(map[string]generator.Generator, len(d.model.Telemetry))
	for i := range d.model.Telemetry {
		attr := d.model.Telemetry[i]
		g, err := generator.New(d.id, &attr)
		if err != nil {
			d.setStatus(model.StatusError)
			d.emitEvent("error")
			return fmt.Errorf("device %s: generator for %q: %w", d.id, attr.Name, err)
		}
		gens[attr.Name] = g
	}
	d.generators = gens

	d.clientID = clientIDFor(d.model.Connection, d.id, d.groupID, d.modelID)
	d.topicBase = topicBaseFor(d.model.Connection, d.id, d.groupID, d.modelID)

	if d.adapterImpl == nil {
		a, err := adapter.New(d.model.Protocol, d.clientID, d.adapterConfig)
		if err != nil {
			d.setStatus(model.StatusError)
			d.emitEvent("error")
			return fmt.Errorf("device %s: %w", d.id, err)
		}
		d.adapterImpl = a
	}

	connectCtx, cancel := context.WithTimeout(ctx, d.connectTimeout)
	defer cancel()
	connectStart := time.Now()
	if err := d.adapterImpl.Connect(connectCtx); err != nil {
		d.emitConnectionState(false, time.Since(connectStart))
		d.setStatus(model.StatusError)
		d.emitEvent("error")
		return fmt.Errorf("device %s: connect: %w", d.id, err)
	}
	d.emitConnectionState(true, time.Since(connectStart))

	now := time.Now()
	d.mu.Lock()
	d.startedAt = &now
	d.mu.Unlock()
	d.setStatus(model.StatusRunning)
	d.emitEvent("connected")

	runCtx, cancel2 := context.WithCancel(context.Background())
	d.cancel = cancel2

	for i := range d.model.Telemetry {
		attr := d.model.Telemetry[i]
		gen := gens[attr.Name]
		d.wg.Add(1)
		go d.runAttributeTask(runCtx, attr, gen)
	}
	d.wg.Add(1)
	go d.runSupervisor(runCtx)

	return nil
}

// Stop cancels the device's attribute tasks and supervisor, waits up to
// GracefulStopTimeout for them to exit, then closes the adapter (spec §4.1
// RUNNING->STOPPING->STOPPED, §5 gracefulStopTimeoutMs).
func (d *VirtualDevice) Stop() error {
	d.setStatus(model.StatusStopping)
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d.gracefulStopTimeout):
	}

	var err error
	if d.adapterImpl != nil {
		err = d.adapterImpl.Close()
	}
	d.emitConnectionState(false, 0)
	d.setStatus(model.StatusStopped)
	d.emitEvent("stopped")
	return err
}

func (d *VirtualDevice) setStatus(s model.Status) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
	if d.onStatus != nil {
		d.onStatus(s)
	}
}

// emitEvent writes a device_events point for a lifecycle transition (spec
// §6: tags deviceId, modelId, eventType, groupId, source; field value,
// always numeric 1 — the event's mere occurrence is the signal, not its
// value).
func (d *VirtualDevice) emitEvent(eventType string) {
	if d.sink == nil {
		return
	}
	d.sink.Ingest(sink.Point{
		DeviceID:    d.id,
		ModelID:     d.modelID,
		GroupID:     d.groupID,
		EventType:   eventType,
		Value:       1,
		Source:      d.model.Source(),
		Timestamp:   time.Now(),
		Measurement: "device_events",
	})
}

// emitConnectionState writes a connections point on a connection state
// change (spec §6: tags deviceId, protocol, source; fields connected(bool),
// latencyMs(number)). latency is 0 when the transition wasn't driven by a
// timed connect attempt (e.g. reflecting a supervisor-observed status
// change rather than the initial connect).
func (d *VirtualDevice) emitConnectionState(connected bool, latency time.Duration) {
	if d.sink == nil {
		return
	}
	now := time.Now()
	protocol := d.model.Protocol
	source := d.model.Source()
	d.sink.Ingest(sink.Point{
		DeviceID:    d.id,
		Protocol:    protocol,
		Attribute:   "connected",
		Value:       connected,
		Source:      source,
		Timestamp:   now,
		Measurement: "connections",
	})
	d.sink.Ingest(sink.Point{
		DeviceID:    d.id,
		Protocol:    protocol,
		Attribute:   "latencyMs",
		Value:       float64(latency.Milliseconds()),
		Source:      source,
		Timestamp:   now,
		Measurement: "connections",
	})
}

// runAttributeTask fires attr on its own schedule: each task tracks its
// next-fire time as previousFire+intervalMs and never catches up on missed
// ticks, so a goroutine that falls behind skips ahead to the next future
// boundary instead of bursting queued publishes (spec §4.2 step 3).
func (d *VirtualDevice) runAttributeTask(ctx context.Context, attr model.TelemetryAttributeSpec, gen generator.Generator) {
	defer d.wg.Done()
	interval := time.Duration(attr.IntervalMs) * time.Millisecond
	if interval <= 0 {
		return
	}

	next := time.Now().Add(interval)
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			d.publishAttribute(attr, gen)

			next = next.Add(interval)
			if now := time.Now(); now.After(next) {
				behind := now.Sub(next)
				next = next.Add(((behind / interval) + 1) * interval)
			}
			timer.Reset(time.Until(next))
		}
	}
}

func (d *VirtualDevice) publishAttribute(attr model.TelemetryAttributeSpec, gen generator.Generator) {
	value, err := gen.Next()
	if err != nil {
		return
	}

	payload, tagged, err := buildPayload(d.id, attr, value)
	if err != nil {
		return
	}

	topic := d.resolveTopic()
	qos := d.model.Connection.QoS
	if err := d.adapterImpl.Publish(topic, payload, qos); err != nil {
		return
	}

	if d.sink != nil {
		d.sink.Ingest(sink.Point{
			DeviceID:    d.id,
			ModelID:     d.modelID,
			GroupID:     d.groupID,
			Attribute:   attr.Name,
			Value:       tagged,
			Unit:        attr.Unit,
			Source:      model.SourceSimulated,
			Timestamp:   time.Now(),
			Measurement: "telemetry",
		})
	}
}

// runSupervisor mirrors the adapter's delivery counters into the device's
// lifecycle status: three consecutive polling windows with publish errors
// and no successful delivery move the device to RECONNECTING; the adapter
// already retries internally on its next delivery attempt (spec §4.5), so
// the supervisor's own job is purely to reflect that for the catalog and to
// move the device back to RUNNING once deliveries resume.
func (d *VirtualDevice) runSupervisor(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(statsPollInterval)
	defer ticker.Stop()

	var lastSent, lastErrors int64
	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := d.adapterImpl.Stats()
			sentDelta := stats.MessagesSent - lastSent
			errDelta := stats.PublishErrors - lastErrors
			lastSent, lastErrors = stats.MessagesSent, stats.PublishErrors

			if sentDelta > 0 {
				consecutiveFailures = 0
				if d.reflectStatus(model.StatusRunning) {
					d.emitConnectionState(true, 0)
					d.emitEvent("reconnected")
				}
				continue
			}
			if errDelta > 0 {
				consecutiveFailures++
				if consecutiveFailures >= consecutiveFailureThreshold {
					if d.reflectStatus(model.StatusReconnecting) {
						d.emitConnectionState(false, 0)
						d.emitEvent("disconnected")
					}
				}
			}
		}
	}
}

// reflectStatus moves between RUNNING and RECONNECTING only; it never
// overrides a status set by Start/Stop (STARTING, STOPPING, STOPPED,
// ERROR, DELETED). Reports whether it actually changed the status, so
// callers only emit a state-change point on a real transition.
func (d *VirtualDevice) reflectStatus(s model.Status) bool {
	d.mu.Lock()
	current := d.status
	if current != model.StatusRunning && current != model.StatusReconnecting {
		d.mu.Unlock()
		return false
	}
	if current == s {
		d.mu.Unlock()
		return false
	}
	d.status = s
	d.mu.Unlock()
	if d.onStatus != nil {
		d.onStatus(s)
	}
	return true
}

// buildPayload encodes attr's value per spec §4.2: raw bytes for binary
// attributes, a single-attribute JSON object otherwise. It returns the
// wire payload and the value actually tagged onto the emitted telemetry
// point (post integer rounding).
func buildPayload(deviceID string, attr model.TelemetryAttributeSpec, value interface{}) ([]byte, interface{}, error) {
	if attr.DataType == model.DataTypeBinary {
		b, ok := value.([]byte)
		if !ok {
			return nil, nil, fmt.Errorf("device: binary attribute %q generator returned %T, want []byte", attr.Name, value)
		}
		return b, b, nil
	}

	tagged := value
	if attr.DataType == model.DataTypeInteger {
		if f, ok := toFloat64(value); ok {
			tagged = generator.RoundInt(f)
		}
	}

	obj := map[string]interface{}{
		attr.Name:  tagged,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"deviceId":  deviceID,
	}
	if attr.Unit != "" {
		obj["unit"] = attr.Unit
	}
	payload, err := json.Marshal(obj)
	return payload, tagged, err
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// clientIDFor interpolates a model's clientIdPattern, defaulting to
// "{modelId}-{deviceId}" (spec §4.5).
func clientIDFor(conn model.ConnectionSpec, deviceID, groupID, modelID string) string {
	pattern := conn.ClientIDPattern
	if pattern == "" {
		pattern = "{modelId}-{deviceId}"
	}
	r := strings.NewReplacer("{deviceId}", deviceID, "{groupId}", groupID, "{modelId}", modelID)
	return r.Replace(pattern)
}

// topicBaseFor interpolates a model's topicPattern once at Start, except
// ${timestamp} which is substituted per publish by resolveTopic (spec
// §4.2: "Topic resolution ... ${timestamp} substituted at publish time").
func topicBaseFor(conn model.ConnectionSpec, deviceID, groupID, modelID string) string {
	r := strings.NewReplacer("${deviceId}", deviceID, "${groupId}", groupID, "${modelId}", modelID)
	return r.Replace(conn.TopicPattern)
}

func (d *VirtualDevice) resolveTopic() string {
	return strings.ReplaceAll(d.topicBase, "${timestamp}", fmt.Sprintf("%d", time.Now().UnixMilli()))
}
