// Package audit emits one structured record per entity mutation performed by
// the sync engine, for consumption by external analytics.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Kind labels the entity a record describes.
type Kind string

const (
	KindUser         Kind = "user"
	KindHost         Kind = "host"
	KindBinary       Kind = "binary"
	KindCertificate  Kind = "certificate"
	KindBundle       Kind = "bundle"
	KindBundleBinary Kind = "bundle_binary"
	KindRule         Kind = "rule"
	KindExecution    Kind = "execution"
)

// Record is one audit entry. Payload carries a flattened snapshot of the
// mutated entity.
type Record struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// Sink receives audit records. Implementations must be safe for concurrent
// use. Publish failures are logged by callers, never surfaced to the client.
type Sink interface {
	Publish(ctx context.Context, rec Record) error
}

// Emitter stamps and publishes records, logging publish failures instead of
// returning them. Audit is best-effort and must never fail a sync request.
type Emitter struct {
	sink   Sink
	logger *slog.Logger
}

// NewEmitter creates an Emitter over the given sink.
func NewEmitter(sink Sink, logger *slog.Logger) *Emitter {
	return &Emitter{sink: sink, logger: logger}
}

// Emit publishes one record of the given kind.
func (e *Emitter) Emit(ctx context.Context, kind Kind, payload map[string]any) {
	rec := Record{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	if err := e.sink.Publish(ctx, rec); err != nil {
		e.logger.WarnContext(ctx, "failed to publish audit record",
			"kind", kind, "error", err)
	}
}
