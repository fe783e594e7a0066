package audit

import (
	"context"
	"log/slog"
	"sync"
)

// MemorySink collects records in memory. Used by tests.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Publish(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of everything published so far.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Kinds returns the kind labels of all published records, in order.
func (s *MemorySink) Kinds() []Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]Kind, len(s.records))
	for i, rec := range s.records {
		kinds[i] = rec.Kind
	}
	return kinds
}

// Reset discards everything published so far.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

// LogSink writes audit records to a structured logger. Used when no NATS
// endpoint is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink logging at info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, rec Record) error {
	s.logger.InfoContext(ctx, "audit record",
		"id", rec.ID,
		"kind", rec.Kind,
		"payload", rec.Payload)
	return nil
}
