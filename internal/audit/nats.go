package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes audit records to a NATS subject per entity kind.
type NATSSink struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNATSSink creates a sink publishing to "<prefix>.<kind>" subjects.
func NewNATSSink(conn *nats.Conn, subjectPrefix string) *NATSSink {
	return &NATSSink{conn: conn, subjectPrefix: subjectPrefix}
}

// Publish sends one record. The record id and kind are duplicated into
// headers so consumers can route without decoding the body.
func (s *NATSSink) Publish(ctx context.Context, rec Record) error {
	if s.conn == nil || !s.conn.IsConnected() {
		return fmt.Errorf("nats connection not available")
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling audit record: %w", err)
	}

	headers := nats.Header{}
	headers.Set("x-record-id", rec.ID)
	headers.Set("x-entity-kind", string(rec.Kind))

	msg := &nats.Msg{
		Subject: s.subjectPrefix + "." + string(rec.Kind),
		Data:    body,
		Header:  headers,
	}
	if err := s.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing audit record: %w", err)
	}
	return nil
}
