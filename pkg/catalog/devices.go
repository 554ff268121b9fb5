package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/crtx-sg/iotix/pkg/device"
	"github.com/crtx-sg/iotix/pkg/ierr"
	"github.com/crtx-sg/iotix/pkg/model"
	"github.com/crtx-sg/iotix/pkg/proxyadapter"
	"github.com/crtx-sg/iotix/pkg/proxydevice"
)

// DeviceFilter narrows ListDevices, mirroring the REST surface's query
// parameters (spec §6: GET /api/v1/devices?modelId=&groupId=&status=&limit=&offset=).
type DeviceFilter struct {
	ModelID string
	GroupID string
	Status  model.Status
	Limit   int
	Offset  int
}

// DeviceMetrics is the shape GET /api/v1/devices/{id}/metrics returns
// (spec §6).
type DeviceMetrics struct {
	MessagesSent       int64
	BytesSent          int64
	LastTelemetry      *time.Time
	ConnectionDuration time.Duration
	ConnectionState    model.ConnectionState
}

func (m *Manager) lookupDevice(deviceID string) (*deviceEntry, error) {
	m.mu.RLock()
	entry, ok := m.devices[deviceID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: device %q", ierr.ErrNotFound, deviceID)
	}
	return entry, nil
}

// CreateDevice allocates a device in CREATED state from modelID (spec
// §4.1 createDevice). deviceID is generated as "{modelId}-{ulid}" when
// empty; groupID is carried through for group-created members.
func (m *Manager) CreateDevice(modelID, deviceID, groupID string) (*model.Device, error) {
	spec, err := m.GetModel(modelID)
	if err != nil {
		return nil, err
	}
	if deviceID == "" {
		deviceID = newDeviceID(modelID)
	}

	m.mu.Lock()
	if _, exists := m.devices[deviceID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: device %q", ierr.ErrAlreadyExists, deviceID)
	}
	rec := model.Device{
		ID:              deviceID,
		ModelID:         modelID,
		GroupID:         groupID,
		Source:          spec.Source(),
		Status:          model.StatusCreated,
		ConnectionState: model.ConnDisconnected,
		CreatedAt:       time.Now(),
	}
	entry := &deviceEntry{record: rec, model: spec}
	m.devices[deviceID] = entry
	m.mu.Unlock()

	m.totalDevices.Add(1)
	if spec.IsProxy() {
		m.totalProxyDevices.Add(1)
	}
	return &rec, nil
}

// GetDevice returns a snapshot of one device, merged with its live
// adapter/proxy counters.
func (m *Manager) GetDevice(deviceID string) (*model.Device, error) {
	entry, err := m.lookupDevice(deviceID)
	if err != nil {
		return nil, err
	}
	return m.snapshot(entry), nil
}

// ListDevices returns devices matching filter, ordered by ascending id.
func (m *Manager) ListDevices(filter DeviceFilter) []*model.Device {
	m.mu.RLock()
	byID := make(map[string]*deviceEntry, len(m.devices))
	for devID, e := range m.devices {
		byID[devID] = e
	}
	m.mu.RUnlock()

	ids := make([]string, 0, len(byID))
	for devID := range byID {
		ids = append(ids, devID)
	}
	sort.Strings(ids)

	out := make([]*model.Device, 0, len(ids))
	for _, devID := range ids {
		d := m.snapshot(byID[devID])
		if filter.ModelID != "" && d.ModelID != filter.ModelID {
			continue
		}
		if filter.GroupID != "" && d.GroupID != filter.GroupID {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		out = append(out, d)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out
}

// snapshot merges entry's persisted record with its live device's running
// counters.
func (m *Manager) snapshot(entry *deviceEntry) *model.Device {
	entry.mu.Lock()
	rec := entry.record
	vd := entry.vdevice
	pd := entry.pdevice
	entry.mu.Unlock()

	switch {
	case vd != nil:
		stats := vd.Stats()
		rec.MessagesSent = stats.MessagesSent
		rec.BytesSent = stats.BytesSent
	case pd != nil:
		stats := pd.Stats()
		rec.MessagesReceived = stats.MessagesReceived
		rec.BytesReceived = stats.BytesReceived
		rec.ProxyDroppedPayloads = stats.ProxyDroppedPayloads
		rec.LastTelemetryAt = stats.LastTelemetryAt
	}
	return &rec
}

// DeviceMetrics returns the counters GET /devices/{id}/metrics exposes.
func (m *Manager) DeviceMetrics(deviceID string) (DeviceMetrics, error) {
	entry, err := m.lookupDevice(deviceID)
	if err != nil {
		return DeviceMetrics{}, err
	}

	entry.mu.Lock()
	vd := entry.vdevice
	pd := entry.pdevice
	startedAt := entry.record.StartedAt
	connState := entry.record.ConnectionState
	entry.mu.Unlock()

	var dm DeviceMetrics
	dm.ConnectionState = connState
	switch {
	case vd != nil:
		stats := vd.Stats()
		dm.MessagesSent = stats.MessagesSent
		dm.BytesSent = stats.BytesSent
	case pd != nil:
		stats := pd.Stats()
		dm.MessagesSent = stats.MessagesReceived
		dm.BytesSent = stats.BytesReceived
		dm.LastTelemetry = stats.LastTelemetryAt
	}
	if startedAt != nil {
		dm.ConnectionDuration = time.Since(*startedAt)
	}
	return dm, nil
}

// StartDevice drives CREATED/STOPPED/ERROR -> STARTING -> RUNNING|ERROR
// (spec §4.1 state machine). Starting an already-running device is a
// no-op; starting a device mid-transition fails with ErrConflict (spec
// §5: "the losing call either no-ops ... or fails with Conflict"). It
// returns as soon as the device is marked STARTING; the adapter connect
// itself runs on its own goroutine and is reflected via onDeviceStatus,
// the same "accepted immediately" contract StartGroup/DropoutGroup follow
// (spec §7: "operations that spawn asynchronous work ... return accepted
// immediately").
func (m *Manager) StartDevice(deviceID string) error {
	entry, err := m.lookupDevice(deviceID)
	if err != nil {
		return err
	}
	if entry.model.IsProxy() {
		return fmt.Errorf("%w: proxy devices are started via bind, not start", ierr.ErrValidation)
	}

	entry.mu.Lock()
	switch entry.record.Status {
	case model.StatusRunning, model.StatusReconnecting:
		entry.mu.Unlock()
		return nil
	case model.StatusStarting, model.StatusStopping:
		status := entry.record.Status
		entry.mu.Unlock()
		return fmt.Errorf("%w: device %q is %s", ierr.ErrConflict, deviceID, status)
	}
	entry.record.Status = model.StatusStarting
	entry.mu.Unlock()

	cfg := m.adapterCfg
	cfg.Connection = entry.model.Connection

	vd := device.New(device.Options{
		DeviceID:       deviceID,
		ModelID:        entry.model.ID,
		GroupID:        entry.record.GroupID,
		Model:          entry.model,
		Sink:           m.sink,
		AdapterConfig:  cfg,
		OnStatusChange: func(s model.Status) { m.onDeviceStatus(deviceID, s) },
	})

	entry.mu.Lock()
	entry.vdevice = vd
	entry.mu.Unlock()

	go func() {
		if err := vd.Start(context.Background()); err != nil {
			m.log.Warn("catalog: device start failed", "deviceId", deviceID, "error", err)
		}
	}()

	return nil
}

// StopDevice drives RUNNING/RECONNECTING -> STOPPING -> STOPPED.
func (m *Manager) StopDevice(deviceID string) error {
	entry, err := m.lookupDevice(deviceID)
	if err != nil {
		return err
	}
	if entry.model.IsProxy() {
		return fmt.Errorf("%w: proxy devices are stopped via unbind, not stop", ierr.ErrValidation)
	}

	entry.mu.Lock()
	switch entry.record.Status {
	case model.StatusStopped, model.StatusCreated:
		entry.mu.Unlock()
		return nil
	case model.StatusStopping:
		entry.mu.Unlock()
		return fmt.Errorf("%w: device %q is already stopping", ierr.ErrConflict, deviceID)
	}
	vd := entry.vdevice
	entry.record.Status = model.StatusStopping
	entry.mu.Unlock()

	if vd == nil {
		m.onDeviceStatus(deviceID, model.StatusStopped)
		return nil
	}
	return vd.Stop()
}

// DeleteDevice stops a running device first, then removes it from the
// catalog (spec §4.1: "any -> delete: if not STOPPED, stop first").
func (m *Manager) DeleteDevice(deviceID string) error {
	entry, err := m.lookupDevice(deviceID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	status := entry.record.Status
	isProxy := entry.model.IsProxy()
	pd := entry.pdevice
	entry.mu.Unlock()

	if isProxy {
		if pd != nil {
			_ = m.UnbindDevice(deviceID)
		}
	} else if status != model.StatusStopped && status != model.StatusCreated {
		if err := m.StopDevice(deviceID); err != nil && !errors.Is(err, ierr.ErrConflict) {
			return err
		}
	}

	m.mu.Lock()
	delete(m.devices, deviceID)
	m.mu.Unlock()

	m.totalDevices.Add(-1)
	if isProxy {
		m.totalProxyDevices.Add(-1)
	}
	return nil
}

// onDeviceStatus is the callback every VirtualDevice/ProxyDevice invokes
// on its own goroutine when its status changes; it mirrors the change into
// the catalog's record and the cheap running-counter atomics (spec §4.1
// getStats: "computed cheaply from running counters, not by scanning").
func (m *Manager) onDeviceStatus(deviceID string, status model.Status) {
	m.mu.RLock()
	entry, ok := m.devices[deviceID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	prev := entry.record.Status
	entry.record.Status = status
	if status == model.StatusRunning && entry.record.StartedAt == nil {
		now := time.Now()
		entry.record.StartedAt = &now
	}
	switch status {
	case model.StatusRunning, model.StatusReconnecting:
		entry.record.ConnectionState = model.ConnConnected
		if status == model.StatusReconnecting {
			entry.record.ConnectionState = model.ConnReconnecting
		}
	case model.StatusStopped, model.StatusError:
		entry.record.ConnectionState = model.ConnDisconnected
	}
	source := entry.record.Source
	entry.mu.Unlock()

	m.adjustRunningCounters(prev, status, source)
}

func (m *Manager) adjustRunningCounters(prev, next model.Status, source model.Source) {
	wasRunning := prev == model.StatusRunning || prev == model.StatusReconnecting
	isRunning := next == model.StatusRunning || next == model.StatusReconnecting
	if wasRunning == isRunning {
		return
	}
	delta := int64(1)
	if !isRunning {
		delta = -1
	}
	m.runningDevices.Add(delta)
	if source == model.SourceSimulated {
		m.runningSimulated.Add(delta)
	} else {
		m.runningPhysical.Add(delta)
	}
}

// BindDevice starts the ingress adapter for a proxy device (spec §4.1
// bindDevice, §4.6 Proxy Adapters).
func (m *Manager) BindDevice(deviceID string, binding model.BindingConfig) error {
	entry, err := m.lookupDevice(deviceID)
	if err != nil {
		return err
	}
	if !entry.model.IsProxy() {
		return fmt.Errorf("%w: device %q is not a proxy device", ierr.ErrValidation, deviceID)
	}
	if err := binding.Validate(); err != nil {
		return err
	}

	entry.mu.Lock()
	if entry.record.Binding != nil {
		entry.mu.Unlock()
		return fmt.Errorf("%w: device %q already bound", ierr.ErrConflict, deviceID)
	}
	entry.mu.Unlock()

	var ingress proxyadapter.Adapter
	switch binding.Protocol {
	case model.ProtocolMQTT:
		ingress = proxyadapter.NewMQTTIngress(binding, deviceID)
	case model.ProtocolHTTP:
		ingress = proxyadapter.NewHTTPIngress(deviceID, m)
	default:
		return fmt.Errorf("%w: proxy binding protocol %q not supported", ierr.ErrValidation, binding.Protocol)
	}

	pd := proxydevice.New(proxydevice.Options{
		DeviceID:       deviceID,
		ModelID:        entry.model.ID,
		Model:          entry.model,
		Protocol:       binding.Protocol,
		Sink:           m.sink,
		Adapter:        ingress,
		OnStatusChange: func(s model.Status) { m.onDeviceStatus(deviceID, s) },
	})
	if err := pd.Start(context.Background()); err != nil {
		return err
	}

	b := binding
	entry.mu.Lock()
	entry.pdevice = pd
	entry.record.Binding = &b
	entry.mu.Unlock()
	return nil
}

// UnbindDevice stops a proxy device's ingress adapter.
func (m *Manager) UnbindDevice(deviceID string) error {
	entry, err := m.lookupDevice(deviceID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	pd := entry.pdevice
	entry.mu.Unlock()
	if pd == nil {
		return fmt.Errorf("%w: device %q is not bound", ierr.ErrValidation, deviceID)
	}

	if err := pd.Stop(); err != nil {
		return err
	}

	entry.mu.Lock()
	entry.pdevice = nil
	entry.record.Binding = nil
	entry.mu.Unlock()
	return nil
}

// GetBinding returns deviceID's active binding, if any.
func (m *Manager) GetBinding(deviceID string) (*model.BindingConfig, error) {
	entry, err := m.lookupDevice(deviceID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.record.Binding, nil
}

// RegisterWebhook implements proxyadapter.WebhookRegistry, letting HTTP
// ingress adapters register a per-device callback without the proxyadapter
// package importing catalog (spec §4.6 HTTP proxy).
func (m *Manager) RegisterWebhook(deviceID string, handler func(body []byte)) {
	m.webhookMu.Lock()
	m.webhookHandlers[deviceID] = handler
	m.webhookMu.Unlock()
}

// UnregisterWebhook implements proxyadapter.WebhookRegistry.
func (m *Manager) UnregisterWebhook(deviceID string) {
	m.webhookMu.Lock()
	delete(m.webhookHandlers, deviceID)
	m.webhookMu.Unlock()
}

// IngestWebhook routes an HTTP webhook body to its bound proxy device
// (spec §4.1 ingestWebhook, §6 POST /api/v1/webhooks/{id}).
func (m *Manager) IngestWebhook(deviceID string, payload []byte) error {
	m.webhookMu.Lock()
	handler, ok := m.webhookHandlers[deviceID]
	m.webhookMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no bound HTTP proxy device %q", ierr.ErrNotFound, deviceID)
	}
	handler(payload)
	return nil
}
