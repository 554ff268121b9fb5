package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crtx-sg/iotix/pkg/model"
	"github.com/crtx-sg/iotix/pkg/orchestrator"
)

// TestEngineStatsCadence is spec §8 scenario 6: with 5 running simulated
// and 2 running physical devices, GetStats reports the split, and a fresh
// engine_stats point lands in the sink within the next tick.
func TestEngineStatsCadence(t *testing.T) {
	spy := &spySink{}
	m := newManager(t, spy)

	_, err := m.RegisterModel(fastModel("t1"))
	require.NoError(t, err)
	_, err = m.RegisterModel(&model.DeviceModel{ID: "p1", Name: "p1", Type: model.DeviceTypeProxy})
	require.NoError(t, err)

	_, err = m.CreateGroup("t1", "G", "x-{index}", 5)
	require.NoError(t, err)
	_, err = m.StartGroup("G", orchestrator.LaunchConfig{Strategy: orchestrator.LaunchImmediate})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		dev, err := m.CreateDevice("p1", "", "")
		require.NoError(t, err)
		require.NoError(t, m.BindDevice(dev.ID, model.BindingConfig{
			Protocol:    model.ProtocolHTTP,
			WebhookPath: "/api/v1/webhooks/" + dev.ID,
		}))
	}

	require.Eventually(t, func() bool {
		s := m.GetStats()
		return s.RunningSimulated == 5 && s.RunningPhysical == 2 && s.RunningDevices == 7
	}, eventuallyWait, eventuallyTick)

	statsBefore := spy.countMeasurement("engine_stats")
	require.Eventually(t, func() bool {
		return spy.countMeasurement("engine_stats") > statsBefore
	}, 6*time.Second, 50*time.Millisecond)

	stats := m.GetStats()
	assert.EqualValues(t, 5, stats.RunningSimulated)
	assert.EqualValues(t, 2, stats.RunningPhysical)
	assert.EqualValues(t, 7, stats.RunningDevices)
}
