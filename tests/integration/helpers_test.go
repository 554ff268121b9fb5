// Package integration holds cross-package scenarios spec §8 names: a group
// of devices, a sink, and occasionally a real embedded broker, wired
// together the way a host binary would, rather than one package's unit
// tests in isolation. Grounded on the teacher's tests/integration layout
// (package integration, one file per scenario, shared setup helpers).
package integration

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crtx-sg/iotix/pkg/adapter"
	"github.com/crtx-sg/iotix/pkg/catalog"
	"github.com/crtx-sg/iotix/pkg/model"
	"github.com/crtx-sg/iotix/pkg/sink"
)

// spySink records every point it receives, grounded on pkg/catalog's own
// test spy (catalog_test.go's spySink).
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

func (s *spySink) countMeasurement(measurement string) int {
	n := 0
	for _, p := range s.snapshot() {
		if p.Measurement == measurement {
			n++
		}
	}
	return n
}

func (s *spySink) pointsFor(deviceID, attribute string) []sink.Point {
	var out []sink.Point
	for _, p := range s.snapshot() {
		if p.DeviceID == deviceID && p.Attribute == attribute {
			out = append(out, p)
		}
	}
	return out
}

// newManager builds a catalog.Manager backed by spy, with no models
// directory (models are registered directly in each test).
func newManager(t *testing.T, spy *spySink) *catalog.Manager {
	t.Helper()
	m := catalog.New(catalog.Options{
		Sink:          spy,
		AdapterConfig: adapter.DefaultConfig(model.ConnectionSpec{}, nil),
	})
	t.Cleanup(m.Close)
	return m
}

// freeTCPPort returns a port nothing is currently listening on, grounded on
// the teacher's tests/integration getFreeMQTTPort helper.
func freeTCPPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func countByStatus(m *catalog.Manager, groupID string, status model.Status) int {
	n := 0
	for _, d := range m.ListDevices(catalog.DeviceFilter{GroupID: groupID}) {
		if d.Status == status {
			n++
		}
	}
	return n
}

func statusAt(m *catalog.Manager, deviceID string) model.Status {
	d, err := m.GetDevice(deviceID)
	if err != nil {
		return ""
	}
	return d.Status
}

const eventuallyWait = 2 * time.Second
const eventuallyTick = 10 * time.Millisecond
