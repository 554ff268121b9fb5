// Package sink implements the Metrics Sink: the single consumer-only
// boundary every Virtual Device and Proxy Device telemetry point flows
// through before it reaches whatever time-series store Writer wraps
// (SPEC_FULL.md §4.7). The engine never stores points itself — Writer is
// the only place a point leaves the process.
package sink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crtx-sg/iotix/pkg/model"
)

// Point is one sample in any of the four measurements spec §6 documents
// (telemetry, device_events, connections, engine_stats), tagged with its
// origin so downstream consumers can distinguish simulated from physical
// devices. Not every field applies to every measurement: ModelID/GroupID
// tag telemetry and device_events, EventType tags device_events, and
// Protocol tags connections.
type Point struct {
	DeviceID  string
	ModelID   string
	GroupID   string
	Attribute string
	Value     interface{}
	Unit      string
	Source    model.Source
	Timestamp time.Time

	// EventType tags a device_events point with what happened
	// (connected, disconnected, error, dropout, reconnected, ...); empty
	// for every other measurement.
	EventType string

	// Protocol tags a connections point with the adapter protocol it
	// describes (mqtt, coap, http); empty for every other measurement.
	Protocol model.Protocol

	// Measurement names the time-series table this point belongs to
	// (spec §6: telemetry, device_events, connections, engine_stats).
	// Empty defaults to "telemetry" for callers that only ever emit
	// telemetry points.
	Measurement string
}

// Writer is the pluggable output a Sink flushes batches to, generalized
// from the teacher's AuditLogger interface (pkg/audit/logger.go): any
// consumer — a file, stdout, a test spy, eventually a real time-series
// client — implements this one method.
type Writer interface {
	// Write delivers a batch of points. Implementations should return an
	// error on any failure; the Sink retries with backoff rather than
	// dropping a batch it already dequeued.
	Write(ctx context.Context, points []Point) error
	Close() error
}

// NoOpWriter discards every batch. Mirrors the teacher's NoOpLogger, used
// when no sink output is configured and in tests that only care about
// Sink's queueing behavior.
type NoOpWriter struct{}

func (NoOpWriter) Write(context.Context, []Point) error { return nil }
func (NoOpWriter) Close() error                         { return nil }

// Stats are the Sink's own running counters (spec §4.7 / GetStats).
type Stats struct {
	PointsReceived int64
	PointsWritten  int64
	PointsDropped  int64
	WriteErrors    int64
	QueueDepth     int
}

// Config controls batching, buffering, and shutdown behavior.
type Config struct {
	BatchSize      int           // flush once this many points are queued (default 5000)
	BatchInterval  time.Duration // flush at least this often regardless of size (default 1s)
	BufferSize     int           // bounded queue capacity (default 100000)
	FlushDeadline  time.Duration // max time Close waits for a final flush (default 5s)
	RetryMinDelay  time.Duration // backoff floor between failed-write retries (default 1s)
	RetryMaxDelay  time.Duration // backoff ceiling (default 30s)
}

// DefaultConfig returns spec §4.7's documented defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     5000,
		BatchInterval: time.Second,
		BufferSize:    100_000,
		FlushDeadline: 5 * time.Second,
		RetryMinDelay: time.Second,
		RetryMaxDelay: 30 * time.Second,
	}
}

// Sink batches points from every device in the process and flushes them to
// Writer, non-blocking to producers: Ingest drops the oldest queued point
// rather than ever block a device's scheduler goroutine.
type Sink struct {
	cfg    Config
	writer Writer

	mu     sync.Mutex
	ring   []Point // fixed-capacity ring buffer, len == cfg.BufferSize
	head   int     // index of the oldest queued point
	count  int     // number of valid entries starting at head
	closed bool

	flushCh chan struct{}
	doneCh  chan struct{}
	wg      sync.WaitGroup

	received atomic.Int64
	written  atomic.Int64
	dropped  atomic.Int64
	errors   atomic.Int64
}

// New builds a Sink writing batches to writer.
func New(writer Writer, cfg Config) *Sink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5000
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100_000
	}
	if cfg.FlushDeadline <= 0 {
		cfg.FlushDeadline = 5 * time.Second
	}
	if cfg.RetryMinDelay <= 0 {
		cfg.RetryMinDelay = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}

	s := &Sink{
		cfg:     cfg,
		writer:  writer,
		ring:    make([]Point, cfg.BufferSize),
		flushCh: make(chan struct{}, 1),
		doneCh:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Ingest enqueues a point. Never blocks: when the buffer is full the
// oldest queued point is dropped and PointsDropped is incremented.
func (s *Sink) Ingest(p Point) {
	s.received.Add(1)

	s.mu.Lock()
	if s.count == len(s.ring) {
		// Buffer full: overwrite the oldest slot in place, O(1).
		s.ring[s.head] = p
		s.head = (s.head + 1) % len(s.ring)
		s.dropped.Add(1)
	} else {
		s.ring[(s.head+s.count)%len(s.ring)] = p
		s.count++
	}
	full := s.count >= s.cfg.BatchSize
	s.mu.Unlock()

	if full {
		select {
		case s.flushCh <- struct{}{}:
		default:
		}
	}
}

// drain removes and returns every currently queued point in FIFO order,
// resetting the ring to empty. Caller must hold s.mu.
func (s *Sink) drain() []Point {
	if s.count == 0 {
		return nil
	}
	batch := make([]Point, s.count)
	for i := 0; i < s.count; i++ {
		batch[i] = s.ring[(s.head+i)%len(s.ring)]
	}
	s.head, s.count = 0, 0
	return batch
}

func (s *Sink) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.doneCh:
			s.flush(s.cfg.FlushDeadline)
			return
		case <-ticker.C:
			s.flush(s.cfg.BatchInterval)
		case <-s.flushCh:
			s.flush(s.cfg.BatchInterval)
		}
	}
}

func (s *Sink) flush(budget time.Duration) {
	s.mu.Lock()
	batch := s.drain()
	s.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	if err := s.writeWithRetry(ctx, batch); err != nil {
		s.errors.Add(1)
		s.dropped.Add(int64(len(batch)))
		return
	}
	s.written.Add(int64(len(batch)))
}

// writeWithRetry retries Writer.Write with exponential backoff capped at
// RetryMaxDelay until ctx expires, the same bounded-retry shape
// pkg/sink's Point flow needs that pkg/adapter's reconnect loop already
// uses for connection retries (see DESIGN.md pkg/adapter entry).
func (s *Sink) writeWithRetry(ctx context.Context, batch []Point) error {
	delay := s.cfg.RetryMinDelay
	var lastErr error
	for {
		if err := s.writer.Write(ctx, batch); err == nil {
			return nil
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.cfg.RetryMaxDelay {
			delay = s.cfg.RetryMaxDelay
		}
	}
}

// Close flushes any remaining points (bounded by FlushDeadline) and stops
// the sink's background loop.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.doneCh)
	s.wg.Wait()
	return s.writer.Close()
}

// Stats returns the sink's running counters.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	depth := s.count
	s.mu.Unlock()
	return Stats{
		PointsReceived: s.received.Load(),
		PointsWritten:  s.written.Load(),
		PointsDropped:  s.dropped.Load(),
		WriteErrors:    s.errors.Load(),
		QueueDepth:     depth,
	}
}
