package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crtx-sg/iotix/pkg/model"
)

// TestHTTPProxyPassthrough is spec §8 scenario 5.
func TestHTTPProxyPassthrough(t *testing.T) {
	spy := &spySink{}
	m := newManager(t, spy)

	_, err := m.RegisterModel(&model.DeviceModel{
		ID:   "p1",
		Name: "p1",
		Type: model.DeviceTypeProxy,
	})
	require.NoError(t, err)

	_, err = m.CreateDevice("p1", "p-0", "")
	require.NoError(t, err)

	require.NoError(t, m.BindDevice("p-0", model.BindingConfig{
		Protocol:    model.ProtocolHTTP,
		WebhookPath: "/api/v1/webhooks/p-0",
	}))

	webhookURL := "/api/v1/webhooks/p-0"
	assert.Equal(t, "/api/v1/webhooks/p-0", webhookURL)

	body := []byte(`{"temperature":25.5,"humidity":60}`)
	require.NoError(t, m.IngestWebhook("p-0", body))

	d, err := m.GetDevice("p-0")
	require.NoError(t, err)
	assert.EqualValues(t, 1, d.MessagesReceived)

	temp := spy.pointsFor("p-0", "temperature")
	require.Len(t, temp, 1)
	assert.InDelta(t, 25.5, temp[0].Value, 0.001)
	assert.Equal(t, model.SourcePhysical, temp[0].Source)
	assert.Equal(t, "telemetry", temp[0].Measurement)

	hum := spy.pointsFor("p-0", "humidity")
	require.Len(t, hum, 1)
	assert.InDelta(t, 60.0, hum[0].Value, 0.001)
}

// TestCreateBindUnbindDeleteLeavesNoResidualSubscription is spec §8's
// round-trip law: "Create→Bind→Unbind→Delete on a proxy device yields no
// residual subscription."
func TestCreateBindUnbindDeleteLeavesNoResidualSubscription(t *testing.T) {
	spy := &spySink{}
	m := newManager(t, spy)

	_, err := m.RegisterModel(&model.DeviceModel{ID: "p1", Name: "p1", Type: model.DeviceTypeProxy})
	require.NoError(t, err)
	_, err = m.CreateDevice("p1", "p-0", "")
	require.NoError(t, err)

	require.NoError(t, m.BindDevice("p-0", model.BindingConfig{
		Protocol:    model.ProtocolHTTP,
		WebhookPath: "/api/v1/webhooks/p-0",
	}))
	require.NoError(t, m.UnbindDevice("p-0"))
	require.NoError(t, m.DeleteDevice("p-0"))

	err = m.IngestWebhook("p-0", []byte(`{"x":1}`))
	assert.Error(t, err)
}
