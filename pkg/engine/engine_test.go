package engine

import (
	"testing"

	"github.com/crtx-sg/iotix/pkg/model"
	"github.com/crtx-sg/iotix/pkg/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsWhenEnvUnset(t *testing.T) {
	cfg := LoadConfig()
	assert.Equal(t, 8080, cfg.ControlPlanePort)
	assert.Equal(t, SinkOutputNoop, cfg.SinkOutput)
	assert.Equal(t, 1883, cfg.DefaultBrokerPort)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv(EnvModelPath, "/tmp/models")
	t.Setenv(EnvControlPlanePort, "9090")
	t.Setenv(EnvSinkOutput, "stdout")
	t.Setenv(EnvDefaultBrokerHost, "broker.example.com")
	t.Setenv(EnvLokiURL, "http://localhost:3100/loki/api/v1/push")

	cfg := LoadConfig()
	assert.Equal(t, "/tmp/models", cfg.ModelsDir)
	assert.Equal(t, 9090, cfg.ControlPlanePort)
	assert.Equal(t, SinkOutputStdout, cfg.SinkOutput)
	assert.Equal(t, "broker.example.com", cfg.DefaultBrokerHost)
	assert.Equal(t, "http://localhost:3100/loki/api/v1/push", cfg.LokiURL)
}

func TestNew_RejectsHTTPSinkWithoutEndpoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SinkOutput = SinkOutputHTTP

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNew_WithWriterOptionBypassesConfig(t *testing.T) {
	cfg := DefaultConfig()
	m, err := New(cfg, WithWriter(sink.NoOpWriter{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	got, err := m.RegisterModel(&model.DeviceModel{
		ID:       "t1",
		Name:     "t1",
		Type:     model.DeviceTypeSensor,
		Protocol: model.ProtocolHTTP,
		Connection: model.ConnectionSpec{
			BaseURL: "http://127.0.0.1:1",
		},
		Telemetry: []model.TelemetryAttributeSpec{
			{
				Name:       "temperature",
				DataType:   model.DataTypeNumber,
				IntervalMs: 50,
				Generator:  model.GeneratorSpec{Variant: model.GeneratorConstant, Value: 21.5},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
}

func TestManager_UptimeAndStats(t *testing.T) {
	cfg := DefaultConfig()
	m, err := New(cfg, WithWriter(sink.NoOpWriter{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	assert.GreaterOrEqual(t, m.Uptime().Nanoseconds(), int64(0))
	stats := m.GetStats()
	assert.Equal(t, 0, stats.TotalModels)
	sinkStats := m.SinkStats()
	assert.Equal(t, int64(0), sinkStats.PointsReceived)
}
