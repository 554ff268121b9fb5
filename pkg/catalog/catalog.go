// Package catalog implements the Device Manager: the authoritative
// in-memory registry {models, devices, groups} and the device lifecycle
// state machine (SPEC_FULL.md §4.1). Mutating operations take the
// catalog's coarse lock only long enough to update the index; connect,
// publish, and sleep all happen on per-device goroutines outside that
// hold (spec §5).
package catalog

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crtx-sg/iotix/internal/id"
	"github.com/crtx-sg/iotix/pkg/adapter"
	"github.com/crtx-sg/iotix/pkg/device"
	"github.com/crtx-sg/iotix/pkg/ierr"
	"github.com/crtx-sg/iotix/pkg/model"
	"github.com/crtx-sg/iotix/pkg/proxydevice"
	"github.com/crtx-sg/iotix/pkg/sink"
)

// Sink is the narrow interface the catalog needs to emit engine_stats and
// device_events points, satisfied by *sink.Sink.
type Sink interface {
	Ingest(sink.Point)
}

// defaultMaxGroupSize bounds createGroup's count (spec §4.1: "a configured
// max (default 1,000,000)").
const defaultMaxGroupSize = 1_000_000

const engineStatsInterval = 5 * time.Second

// deviceEntry is one catalog row. Its own mutex serializes this device's
// lifecycle transitions (spec §5: "the manager holds a per-device lock for
// the transition window"), independent of the catalog's coarse lock.
type deviceEntry struct {
	mu      sync.Mutex
	record  model.Device
	model   *model.DeviceModel
	vdevice *device.VirtualDevice
	pdevice *proxydevice.ProxyDevice
}

// groupEntry is one catalog group row.
type groupEntry struct {
	mu     sync.Mutex
	group  model.Group
	cancel func() // cancels an in-flight launch, if any
}

// Options configures a Manager at construction time.
type Options struct {
	ModelsDir     string
	Sink          Sink
	AdapterConfig adapter.Config
	MaxGroupSize  int
	Logger        *slog.Logger
}

// Manager is the Device Manager (spec §4.1).
type Manager struct {
	modelsDir     string
	sink          Sink
	adapterCfg    adapter.Config
	maxGroupSize  int
	log           *slog.Logger
	startTime     time.Time

	mu      sync.RWMutex
	models  map[string]*model.DeviceModel
	devices map[string]*deviceEntry
	groups  map[string]*groupEntry

	webhookMu       sync.Mutex
	webhookHandlers map[string]func([]byte)

	totalDevices      atomic.Int64
	totalProxyDevices atomic.Int64
	runningDevices    atomic.Int64
	runningSimulated  atomic.Int64
	runningPhysical   atomic.Int64
	totalGroups       atomic.Int64

	statsMu            sync.Mutex
	cachedMessagesSent int64
	cachedBytesSent    int64

	doneCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Manager and, if ModelsDir is set, loads any models already
// on disk (spec §6: "scanned at startup"). It starts the engine_stats
// background task immediately (spec §4.1).
func New(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	maxGroupSize := opts.MaxGroupSize
	if maxGroupSize <= 0 {
		maxGroupSize = defaultMaxGroupSize
	}

	m := &Manager{
		modelsDir:       opts.ModelsDir,
		sink:            opts.Sink,
		adapterCfg:      opts.AdapterConfig,
		maxGroupSize:    maxGroupSize,
		log:             opts.Logger,
		startTime:       time.Now(),
		models:          make(map[string]*model.DeviceModel),
		devices:         make(map[string]*deviceEntry),
		groups:          make(map[string]*groupEntry),
		webhookHandlers: make(map[string]func([]byte)),
		doneCh:          make(chan struct{}),
	}

	if opts.ModelsDir != "" {
		if loaded, err := model.LoadModelsFromPath(opts.ModelsDir); err == nil {
			for _, spec := range loaded {
				m.models[spec.ID] = spec
			}
		} else {
			m.log.Warn("catalog: failed to load models directory at startup", "dir", opts.ModelsDir, "error", err)
		}
	}

	m.wg.Add(1)
	go m.runEngineStats()

	return m
}

// Close stops the engine_stats background task. It does not stop any
// running device; callers should stop devices/groups first.
func (m *Manager) Close() {
	close(m.doneCh)
	m.wg.Wait()
}

// RegisterModel validates and stores spec, persisting it to the models
// directory atomically (spec §4.1 registerModel).
func (m *Manager) RegisterModel(spec *model.DeviceModel) (*model.DeviceModel, error) {
	raw, err := model.DecodeForSchema(spec)
	if err == nil {
		err = model.ValidateSchema(raw)
	}
	if err == nil {
		err = spec.Validate()
	}
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.models[spec.ID]; ok {
		m.mu.Unlock()
		if modelsEqual(existing, spec) {
			return existing, nil // idempotent re-registration
		}
		return nil, fmt.Errorf("%w: model %q already registered with a different spec", ierr.ErrAlreadyExists, spec.ID)
	}
	m.models[spec.ID] = spec
	m.mu.Unlock()

	if m.modelsDir != "" {
		path := m.modelsDir + "/" + spec.ID + ".json"
		if err := model.SaveModel(path, spec); err != nil {
			m.mu.Lock()
			delete(m.models, spec.ID)
			m.mu.Unlock()
			return nil, fmt.Errorf("catalog: persist model %q: %w", spec.ID, err)
		}
	}
	return spec, nil
}

// ListModels returns every registered model.
func (m *Manager) ListModels() []*model.DeviceModel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.DeviceModel, 0, len(m.models))
	for _, spec := range m.models {
		out = append(out, spec)
	}
	return out
}

// GetModel returns the model registered under id.
func (m *Manager) GetModel(id string) (*model.DeviceModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spec, ok := m.models[id]
	if !ok {
		return nil, fmt.Errorf("%w: model %q", ierr.ErrNotFound, id)
	}
	return spec, nil
}

// DeleteModel removes a model, failing with ErrBusy if any device still
// references it (spec §4.1).
func (m *Manager) DeleteModel(modelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.models[modelID]; !ok {
		return fmt.Errorf("%w: model %q", ierr.ErrNotFound, modelID)
	}
	for _, e := range m.devices {
		if e.model.ID == modelID {
			return fmt.Errorf("%w: model %q has live devices", ierr.ErrBusy, modelID)
		}
	}
	delete(m.models, modelID)
	return nil
}

func modelsEqual(a, b *model.DeviceModel) bool {
	ra, errA := model.DecodeForSchema(a)
	rb, errB := model.DecodeForSchema(b)
	if errA != nil || errB != nil {
		return false
	}
	return fmt.Sprint(ra) == fmt.Sprint(rb)
}

// newDeviceID mirrors the spec's default id scheme: "{modelId}-{ulid}".
func newDeviceID(modelID string) string {
	return modelID + "-" + id.ULID()
}
