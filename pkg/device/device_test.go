package device

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/crtx-sg/iotix/pkg/adapter"
	"github.com/crtx-sg/iotix/pkg/model"
	"github.com/crtx-sg/iotix/pkg/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedMsg struct {
	topic   string
	payload []byte
	qos     int
}

type fakeAdapter struct {
	mu         sync.Mutex
	connectErr error
	connects   int
	closed     bool
	published  []publishedMsg

	statsFn func() adapter.Stats
}

func (f *fakeAdapter) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeAdapter) Publish(topic string, payload []byte, qos int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.published = append(f.published, publishedMsg{topic: topic, payload: cp, qos: qos})
	return nil
}

func (f *fakeAdapter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeAdapter) Stats() adapter.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statsFn != nil {
		return f.statsFn()
	}
	return adapter.Stats{MessagesSent: int64(len(f.published))}
}

func (f *fakeAdapter) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakeAdapter) lastPublish() publishedMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[len(f.published)-1]
}

type spySink struct {
	mu     sync.Mutex
	points []sink.Point
}

func (s *spySink) Ingest(p sink.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, p)
}

func (s *spySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

func (s *spySink) last() sink.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.points[len(s.points)-1]
}

// lastMeasurement returns the most recent point tagged with measurement,
// and whether one was found yet.
func (s *spySink) lastMeasurement(measurement string) (sink.Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.points) - 1; i >= 0; i-- {
		if s.points[i].Measurement == measurement {
			return s.points[i], true
		}
	}
	return sink.Point{}, false
}

func testModel() *model.DeviceModel {
	return &model.DeviceModel{
		ID:       "thermostat",
		Type:     model.DeviceTypeSensor,
		Protocol: model.ProtocolMQTT,
		Connection: model.ConnectionSpec{
			BrokerHost:   "localhost",
			Port:         1883,
			TopicPattern: "devices/${deviceId}/telemetry",
		},
		Telemetry: []model.TelemetryAttributeSpec{
			{
				Name:       "temperature",
				DataType:   model.DataTypeNumber,
				Unit:       "celsius",
				IntervalMs: 10,
				Generator: model.GeneratorSpec{
					Variant: model.GeneratorConstant,
					Value:   21.5,
				},
			},
		},
	}
}

func TestVirtualDevice_StartPublishesAndEmitsTelemetry(t *testing.T) {
	fa := &fakeAdapter{}
	sp := &spySink{}
	d := New(Options{
		DeviceID: "thermostat-1",
		ModelID:  "thermostat",
		Model:    testModel(),
		Sink:     sp,
		Adapter:  fa,
	})

	require.NoError(t, d.Start(context.Background()))
	defer d.Stop()

	require.Eventually(t, func() bool { return fa.publishCount() > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, model.StatusRunning, d.Status())

	msg := fa.lastPublish()
	assert.Equal(t, "devices/thermostat-1/telemetry", msg.topic)

	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.payload, &obj))
	assert.EqualValues(t, 21.5, obj["temperature"])
	assert.Equal(t, "thermostat-1", obj["deviceId"])
	assert.Equal(t, "celsius", obj["unit"])
	assert.NotEmpty(t, obj["timestamp"])

	var p sink.Point
	require.Eventually(t, func() bool {
		var ok bool
		p, ok = sp.lastMeasurement("telemetry")
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "temperature", p.Attribute)
	assert.Equal(t, "telemetry", p.Measurement)
	assert.Equal(t, model.SourceSimulated, p.Source)
}

func TestVirtualDevice_ConnectFailureSetsError(t *testing.T) {
	fa := &fakeAdapter{connectErr: assert.AnError}
	sp := &spySink{}
	d := New(Options{
		DeviceID: "thermostat-2",
		ModelID:  "thermostat",
		Model:    testModel(),
		Sink:     sp,
		Adapter:  fa,
	})

	err := d.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.StatusError, d.Status())
	require.Eventually(t, func() bool { return sp.count() > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "device_events", sp.last().Measurement)
}

func TestVirtualDevice_StopClosesAdapterAndWaitsForTasks(t *testing.T) {
	fa := &fakeAdapter{}
	d := New(Options{
		DeviceID: "thermostat-3",
		ModelID:  "thermostat",
		Model:    testModel(),
		Sink:     &spySink{},
		Adapter:  fa,
	})

	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Stop())

	assert.Equal(t, model.StatusStopped, d.Status())
	fa.mu.Lock()
	closed := fa.closed
	fa.mu.Unlock()
	assert.True(t, closed)
}

func TestVirtualDevice_ThreeConsecutiveFailuresReconnects(t *testing.T) {
	fa := &fakeAdapter{}
	var publishErrors int64
	fa.statsFn = func() adapter.Stats {
		// Cumulative counter: every poll window sees new errors and no sends.
		publishErrors += 10
		return adapter.Stats{MessagesSent: 0, PublishErrors: publishErrors}
	}
	d := New(Options{
		DeviceID: "thermostat-4",
		ModelID:  "thermostat",
		Model:    testModel(),
		Sink:     &spySink{},
		Adapter:  fa,
	})

	require.NoError(t, d.Start(context.Background()))
	defer d.Stop()

	require.Eventually(t, func() bool {
		return d.Status() == model.StatusReconnecting
	}, 3*time.Second, 20*time.Millisecond)
}

func TestClientIDFor_DefaultsAndInterpolates(t *testing.T) {
	assert.Equal(t, "thermostat-dev1", clientIDFor(model.ConnectionSpec{}, "dev1", "", "thermostat"))
	assert.Equal(t, "custom-dev1-grp1", clientIDFor(
		model.ConnectionSpec{ClientIDPattern: "custom-{deviceId}-{groupId}"}, "dev1", "grp1", "thermostat"))
}

func TestTopicBaseFor_LeavesTimestampLiteral(t *testing.T) {
	base := topicBaseFor(model.ConnectionSpec{TopicPattern: "d/${deviceId}/${timestamp}"}, "dev1", "", "m1")
	assert.Equal(t, "d/dev1/${timestamp}", base)
}

func TestBuildPayload_IntegerRoundsHalfToEven(t *testing.T) {
	attr := model.TelemetryAttributeSpec{Name: "count", DataType: model.DataTypeInteger}
	payload, tagged, err := buildPayload("dev1", attr, 2.5)
	require.NoError(t, err)
	assert.EqualValues(t, int64(2), tagged)

	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &obj))
	assert.EqualValues(t, 2, obj["count"])
}

func TestBuildPayload_BinaryPassesRawBytes(t *testing.T) {
	attr := model.TelemetryAttributeSpec{Name: "blob", DataType: model.DataTypeBinary}
	payload, tagged, err := buildPayload("dev1", attr, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, payload)
	assert.Equal(t, []byte{1, 2, 3}, tagged)
}

func TestBuildPayload_BinaryWrongTypeErrors(t *testing.T) {
	attr := model.TelemetryAttributeSpec{Name: "blob", DataType: model.DataTypeBinary}
	_, _, err := buildPayload("dev1", attr, "not bytes")
	assert.Error(t, err)
}
