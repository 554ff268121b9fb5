package catalog

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/crtx-sg/iotix/pkg/adapter"
	"github.com/crtx-sg/iotix/pkg/model"
	"github.com/crtx-sg/iotix/pkg/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spySink struct {
	mu     sync.Mutex
	points []sink.Point
}

func (s *spySink) Ingest(p sink.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, p)
}

func (s *spySink) snapshot() []sink.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sink.Point, len(s.points))
	copy(out, s.points)
	return out
}

func newTestManager(t *testing.T, modelsDir string) *Manager {
	t.Helper()
	m := New(Options{
		ModelsDir:     modelsDir,
		Sink:          &spySink{},
		AdapterConfig: adapter.DefaultConfig(model.ConnectionSpec{}, nil),
	})
	t.Cleanup(m.Close)
	return m
}

func httpModel(id string) *model.DeviceModel {
	return &model.DeviceModel{
		ID:       id,
		Name:     id,
		Type:     model.DeviceTypeSensor,
		Protocol: model.ProtocolHTTP,
		Connection: model.ConnectionSpec{
			BaseURL: "http://127.0.0.1:1", // never actually dialed by NewHTTP.Connect
		},
		Telemetry: []model.TelemetryAttributeSpec{
			{
				Name:       "temperature",
				DataType:   model.DataTypeNumber,
				IntervalMs: 50,
				Generator:  model.GeneratorSpec{Variant: model.GeneratorConstant, Value: 21.5},
			},
		},
	}
}

func mqttModelUnreachable(id string) *model.DeviceModel {
	return &model.DeviceModel{
		ID:       id,
		Name:     id,
		Type:     model.DeviceTypeSensor,
		Protocol: model.ProtocolMQTT,
		Connection: model.ConnectionSpec{
			BrokerHost: "127.0.0.1",
			Port:       1, // nothing listens here; dial fails fast
		},
		Telemetry: []model.TelemetryAttributeSpec{
			{
				Name:       "value",
				DataType:   model.DataTypeNumber,
				IntervalMs: 1000,
				Generator:  model.GeneratorSpec{Variant: model.GeneratorConstant, Value: 1.0},
			},
		},
	}
}

func proxyHTTPModel(id string) *model.DeviceModel {
	return &model.DeviceModel{
		ID:       id,
		Name:     id,
		Type:     model.DeviceTypeProxy,
		Protocol: model.ProtocolHTTP,
	}
}

func TestRegisterModel_PersistsAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)

	spec := httpModel("t1")
	got, err := m.RegisterModel(spec)
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
	assert.FileExists(t, filepath.Join(dir, "t1.json"))

	again, err := m.RegisterModel(httpModel("t1"))
	require.NoError(t, err)
	assert.Equal(t, got.ID, again.ID)
}

func TestRegisterModel_ConflictOnDifferentSpec(t *testing.T) {
	m := newTestManager(t, "")
	_, err := m.RegisterModel(httpModel("t1"))
	require.NoError(t, err)

	changed := httpModel("t1")
	changed.Telemetry[0].IntervalMs = 999
	_, err = m.RegisterModel(changed)
	assert.Error(t, err)
}

func TestDeleteModel_BusyWhenDeviceExists(t *testing.T) {
	m := newTestManager(t, "")
	_, err := m.RegisterModel(httpModel("t1"))
	require.NoError(t, err)
	_, err = m.CreateDevice("t1", "", "")
	require.NoError(t, err)

	err = m.DeleteModel("t1")
	assert.Error(t, err)
}

func TestCreateDevice_DefaultIDAndSourceTagging(t *testing.T) {
	m := newTestManager(t, "")
	_, err := m.RegisterModel(httpModel("t1"))
	require.NoError(t, err)
	_, err = m.RegisterModel(proxyHTTPModel("p1"))
	require.NoError(t, err)

	d, err := m.CreateDevice("t1", "", "")
	require.NoError(t, err)
	assert.Contains(t, d.ID, "t1-")
	assert.Equal(t, model.SourceSimulated, d.Source)

	p, err := m.CreateDevice("p1", "", "")
	require.NoError(t, err)
	assert.Equal(t, model.SourcePhysical, p.Source)
}

func TestCreateDevice_DuplicateIDConflict(t *testing.T) {
	m := newTestManager(t, "")
	_, err := m.RegisterModel(httpModel("t1"))
	require.NoError(t, err)
	_, err = m.CreateDevice("t1", "dev-1", "")
	require.NoError(t, err)

	_, err = m.CreateDevice("t1", "dev-1", "")
	assert.Error(t, err)
}

func TestStartStopDevice_HTTPModelReachesRunningThenStopped(t *testing.T) {
	m := newTestManager(t, "")
	_, err := m.RegisterModel(httpModel("t1"))
	require.NoError(t, err)
	d, err := m.CreateDevice("t1", "dev-1", "")
	require.NoError(t, err)

	require.NoError(t, m.StartDevice(d.ID))
	require.Eventually(t, func() bool {
		got, err := m.GetDevice(d.ID)
		return err == nil && got.Status == model.StatusRunning
	}, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, m.GetStats().RunningDevices)
	assert.EqualValues(t, 1, m.GetStats().RunningSimulated)

	require.NoError(t, m.StopDevice(d.ID))
	got, err := m.GetDevice(d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStopped, got.Status)
	assert.EqualValues(t, 0, m.GetStats().RunningDevices)
}

func TestStartDevice_MQTTConnectFailureSetsError(t *testing.T) {
	m := newTestManager(t, "")
	_, err := m.RegisterModel(mqttModelUnreachable("t1"))
	require.NoError(t, err)
	d, err := m.CreateDevice("t1", "dev-1", "")
	require.NoError(t, err)

	require.NoError(t, m.StartDevice(d.ID))

	require.Eventually(t, func() bool {
		got, err := m.GetDevice(d.ID)
		return err == nil && got.Status == model.StatusError
	}, time.Second, 5*time.Millisecond)
}

func TestStartDevice_RejectsProxyDevice(t *testing.T) {
	m := newTestManager(t, "")
	_, err := m.RegisterModel(proxyHTTPModel("p1"))
	require.NoError(t, err)
	d, err := m.CreateDevice("p1", "", "")
	require.NoError(t, err)

	err = m.StartDevice(d.ID)
	assert.Error(t, err)
}

func TestDeleteDevice_StopsRunningDeviceFirst(t *testing.T) {
	m := newTestManager(t, "")
	_, err := m.RegisterModel(httpModel("t1"))
	require.NoError(t, err)
	d, err := m.CreateDevice("t1", "dev-1", "")
	require.NoError(t, err)
	require.NoError(t, m.StartDevice(d.ID))
	require.Eventually(t, func() bool {
		got, err := m.GetDevice(d.ID)
		return err == nil && got.Status == model.StatusRunning
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.DeleteDevice(d.ID))
	_, err = m.GetDevice(d.ID)
	assert.Error(t, err)
	assert.EqualValues(t, 0, m.GetStats().TotalDevices)
}
