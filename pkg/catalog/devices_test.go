package catalog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/crtx-sg/iotix/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListDevices_FiltersByModelAndStatus(t *testing.T) {
	m := newTestManager(t, "")
	_, err := m.RegisterModel(httpModel("t1"))
	require.NoError(t, err)
	_, err = m.RegisterModel(httpModel("t2"))
	require.NoError(t, err)

	d1, err := m.CreateDevice("t1", "dev-1", "")
	require.NoError(t, err)
	_, err = m.CreateDevice("t2", "dev-2", "")
	require.NoError(t, err)

	require.NoError(t, m.StartDevice(d1.ID))
	require.Eventually(t, func() bool {
		got, err := m.GetDevice(d1.ID)
		return err == nil && got.Status == model.StatusRunning
	}, time.Second, 5*time.Millisecond)

	onlyT1 := m.ListDevices(DeviceFilter{ModelID: "t1"})
	require.Len(t, onlyT1, 1)
	assert.Equal(t, "dev-1", onlyT1[0].ID)

	running := m.ListDevices(DeviceFilter{Status: model.StatusRunning})
	require.Len(t, running, 1)
	assert.Equal(t, "dev-1", running[0].ID)

	all := m.ListDevices(DeviceFilter{})
	assert.Len(t, all, 2)
}

func TestListDevices_Pagination(t *testing.T) {
	m := newTestManager(t, "")
	_, err := m.RegisterModel(httpModel("t1"))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := m.CreateDevice("t1", "", "")
		require.NoError(t, err)
	}

	page := m.ListDevices(DeviceFilter{Limit: 2, Offset: 1})
	assert.Len(t, page, 2)
}

func TestBindUnbindDevice_HTTPWebhook(t *testing.T) {
	m := newTestManager(t, "")
	_, err := m.RegisterModel(proxyHTTPModel("p1"))
	require.NoError(t, err)
	d, err := m.CreateDevice("p1", "dev-1", "")
	require.NoError(t, err)

	binding := model.BindingConfig{Protocol: model.ProtocolHTTP, WebhookPath: "/ingest/dev-1"}
	require.NoError(t, m.BindDevice(d.ID, binding))

	got, err := m.GetBinding(d.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, binding.WebhookPath, got.WebhookPath)

	payload, _ := json.Marshal(map[string]interface{}{"temperature": 19.5})
	require.NoError(t, m.IngestWebhook(d.ID, payload))

	dev, err := m.GetDevice(d.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, dev.MessagesReceived)

	require.NoError(t, m.UnbindDevice(d.ID))
	err = m.IngestWebhook(d.ID, payload)
	assert.Error(t, err)
}

func TestBindDevice_RejectsNonProxyModel(t *testing.T) {
	m := newTestManager(t, "")
	_, err := m.RegisterModel(httpModel("t1"))
	require.NoError(t, err)
	d, err := m.CreateDevice("t1", "dev-1", "")
	require.NoError(t, err)

	err = m.BindDevice(d.ID, model.BindingConfig{Protocol: model.ProtocolHTTP, WebhookPath: "/x"})
	assert.Error(t, err)
}

func TestIngestWebhook_NotFoundWhenUnbound(t *testing.T) {
	m := newTestManager(t, "")
	_, err := m.RegisterModel(proxyHTTPModel("p1"))
	require.NoError(t, err)
	d, err := m.CreateDevice("p1", "dev-1", "")
	require.NoError(t, err)

	err = m.IngestWebhook(d.ID, []byte(`{}`))
	assert.Error(t, err)
}
