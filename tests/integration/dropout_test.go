package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crtx-sg/iotix/pkg/model"
	"github.com/crtx-sg/iotix/pkg/orchestrator"
)

// TestDropoutWithReconnect is spec §8 scenario 4: an immediate dropout of
// half a running group's members reconnects them all after
// reconnectDelayMs.
func TestDropoutWithReconnect(t *testing.T) {
	spy := &spySink{}
	m := newManager(t, spy)
	_, err := m.RegisterModel(fastModel("t1"))
	require.NoError(t, err)

	_, err = m.CreateGroup("t1", "G", "x-{index}", 10)
	require.NoError(t, err)
	_, err = m.StartGroup("G", orchestrator.LaunchConfig{Strategy: orchestrator.LaunchImmediate})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return countByStatus(m, "G", model.StatusRunning) == 10
	}, eventuallyWait, eventuallyTick)

	result, err := m.DropoutGroup("G", orchestrator.DropoutConfig{
		Strategy:         orchestrator.DropoutImmediate,
		Percentage:       50,
		Reconnect:        true,
		ReconnectDelayMs: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, result.AffectedCount)

	require.Eventually(t, func() bool {
		return countByStatus(m, "G", model.StatusRunning)+countByStatus(m, "G", model.StatusReconnecting) == 10 &&
			countByStatus(m, "G", model.StatusReconnecting) == 5
	}, eventuallyWait, eventuallyTick)

	require.Eventually(t, func() bool {
		return countByStatus(m, "G", model.StatusRunning) == 10
	}, eventuallyWait, eventuallyTick)
}

// TestDropoutLeavesProxyMembersUntouched confirms a mixed group's proxy
// members are filtered out of dropout selection (spec §8 scenario 4,
// "Proxy members in a mixed group are untouched").
func TestDropoutLeavesProxyMembersUntouched(t *testing.T) {
	spy := &spySink{}
	m := newManager(t, spy)
	_, err := m.RegisterModel(fastModel("t1"))
	require.NoError(t, err)
	_, err = m.RegisterModel(&model.DeviceModel{
		ID:   "proxy1",
		Name: "proxy1",
		Type: model.DeviceTypeProxy,
	})
	require.NoError(t, err)

	_, err = m.CreateGroup("t1", "G", "x-{index}", 4)
	require.NoError(t, err)
	_, err = m.StartGroup("G", orchestrator.LaunchConfig{Strategy: orchestrator.LaunchImmediate})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return countByStatus(m, "G", model.StatusRunning) == 4
	}, eventuallyWait, eventuallyTick)

	proxyDev, err := m.CreateDevice("proxy1", "p-0", "G")
	require.NoError(t, err)
	require.Equal(t, model.StatusCreated, proxyDev.Status)

	result, err := m.DropoutGroup("G", orchestrator.DropoutConfig{Strategy: orchestrator.DropoutImmediate, Count: 10})
	require.NoError(t, err)
	assert.Equal(t, 4, result.AffectedCount)

	d, err := m.GetDevice("p-0")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCreated, d.Status)
}
