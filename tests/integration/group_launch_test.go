package integration

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crtx-sg/iotix/pkg/model"
	"github.com/crtx-sg/iotix/pkg/orchestrator"
)

// fastModel never actually dials (BaseURL port 1 is never reached by the
// http adapter's Connect), so launch timing in these tests reflects only
// the orchestrator's own schedule, not network latency - the same trick
// pkg/catalog's own group tests use (see pkg/catalog/catalog_test.go's
// httpModel).
func fastModel(id string) *model.DeviceModel {
	return &model.DeviceModel{
		ID:       id,
		Name:     id,
		Type:     model.DeviceTypeSensor,
		Protocol: model.ProtocolHTTP,
		Connection: model.ConnectionSpec{
			BaseURL: "http://127.0.0.1:1",
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

// TestLinearGroupLaunchIsDeterministic is spec §8 scenario 2.
func TestLinearGroupLaunchIsDeterministic(t *testing.T) {
	spy := &spySink{}
	m := newManager(t, spy)
	_, err := m.RegisterModel(fastModel("t1"))
	require.NoError(t, err)

	g, err := m.CreateGroup("t1", "G", "x-{index}", 10)
	require.NoError(t, err)
	assert.Len(t, g.Members, 10)

	start := time.Now()
	result, err := m.StartGroup("G", orchestrator.LaunchConfig{Strategy: orchestrator.LaunchLinear, DelayMs: 20})
	require.NoError(t, err)
	assert.Equal(t, 10, result.AcceptedCount)

	require.Eventually(t, func() bool {
		return countByStatus(m, "G", model.StatusRunning) == 10
	}, eventuallyWait, eventuallyTick)

	// every member started, in ascending deviceId order.
	for i := 0; i < 10; i++ {
		d, err := m.GetDevice(deviceIDForIndex("x-", i))
		require.NoError(t, err)
		require.NotNil(t, d.StartedAt)
	}

	elapsed := time.Since(start)
	// 10 members at 20ms apart: last one starts around t=180ms.
	assert.Less(t, elapsed, 2*time.Second)
}

// TestBatchLaunchGroupsTransitions is spec §8 scenario 3.
func TestBatchLaunchGroupsTransitions(t *testing.T) {
	spy := &spySink{}
	m := newManager(t, spy)
	_, err := m.RegisterModel(fastModel("t1"))
	require.NoError(t, err)

	_, err = m.CreateGroup("t1", "G", "x-{index}", 10)
	require.NoError(t, err)

	result, err := m.StartGroup("G", orchestrator.LaunchConfig{Strategy: orchestrator.LaunchBatch, BatchSize: 3, DelayMs: 20})
	require.NoError(t, err)
	assert.Equal(t, 10, result.AcceptedCount)

	require.Eventually(t, func() bool {
		return countByStatus(m, "G", model.StatusRunning) == 10
	}, eventuallyWait, eventuallyTick)
}

func deviceIDForIndex(prefix string, i int) string {
	return prefix + strconv.Itoa(i)
}
