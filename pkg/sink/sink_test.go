package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/crtx-sg/iotix/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spyWriter struct {
	mu      sync.Mutex
	batches [][]Point
	failN   int
	closed  bool
}

func (w *spyWriter) Write(_ context.Context, points []Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failN > 0 {
		w.failN--
		return errors.New("simulated write failure")
	}
	batch := make([]Point, len(points))
	copy(batch, points)
	w.batches = append(w.batches, batch)
	return nil
}

func (w *spyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *spyWriter) totalWritten() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func point(id string) Point {
	return Point{DeviceID: id, Attribute: "x", Value: 1.0, Source: model.SourceSimulated, Timestamp: time.Now()}
}

func TestSink_FlushesOnBatchSize(t *testing.T) {
	w := &spyWriter{}
	s := New(w, Config{BatchSize: 3, BatchInterval: time.Hour, BufferSize: 100, FlushDeadline: time.Second})
	defer s.Close()

	s.Ingest(point("a"))
	s.Ingest(point("b"))
	s.Ingest(point("c"))

	require.Eventually(t, func() bool { return w.totalWritten() == 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestSink_FlushesOnInterval(t *testing.T) {
	w := &spyWriter{}
	s := New(w, Config{BatchSize: 1000, BatchInterval: 30 * time.Millisecond, BufferSize: 100, FlushDeadline: time.Second})
	defer s.Close()

	s.Ingest(point("a"))

	require.Eventually(t, func() bool { return w.totalWritten() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestSink_DropsOldestWhenBufferFull(t *testing.T) {
	w := &spyWriter{}
	s := New(w, Config{BatchSize: 1000, BatchInterval: time.Hour, BufferSize: 2, FlushDeadline: time.Second})
	defer s.Close()

	s.Ingest(point("a"))
	s.Ingest(point("b"))
	s.Ingest(point("c"))

	stats := s.Stats()
	assert.EqualValues(t, 1, stats.PointsDropped)
	assert.Equal(t, 2, stats.QueueDepth)
}

func TestSink_RetriesFailedWrites(t *testing.T) {
	w := &spyWriter{failN: 2}
	s := New(w, Config{
		BatchSize: 1, BatchInterval: time.Hour, BufferSize: 10,
		FlushDeadline: 2 * time.Second, RetryMinDelay: 10 * time.Millisecond, RetryMaxDelay: 20 * time.Millisecond,
	})
	defer s.Close()

	s.Ingest(point("a"))

	require.Eventually(t, func() bool { return w.totalWritten() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestSink_CloseFlushesRemainder(t *testing.T) {
	w := &spyWriter{}
	s := New(w, Config{BatchSize: 1000, BatchInterval: time.Hour, BufferSize: 100, FlushDeadline: time.Second})

	s.Ingest(point("a"))
	s.Ingest(point("b"))

	require.NoError(t, s.Close())
	assert.Equal(t, 2, w.totalWritten())
	assert.True(t, w.closed)
}

func TestNoOpWriter(t *testing.T) {
	var w NoOpWriter
	assert.NoError(t, w.Write(context.Background(), []Point{point("a")}))
	assert.NoError(t, w.Close())
}
