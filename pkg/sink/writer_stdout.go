package sink

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// StdoutWriter writes each point as a JSON line, grounded on the teacher's
// audit.StdoutLogger (pkg/audit/logger.go) — useful for containerized
// deployments where the sink destination is whatever collects stdout.
type StdoutWriter struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

// NewStdoutWriter builds a Writer that JSON-encodes one line per point to w.
func NewStdoutWriter(w io.Writer) *StdoutWriter {
	return &StdoutWriter{encoder: json.NewEncoder(w)}
}

func (s *StdoutWriter) Write(_ context.Context, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		if err := s.encoder.Encode(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *StdoutWriter) Close() error { return nil }
