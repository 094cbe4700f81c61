package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends audit events. Append-only: nothing in the kernel updates
// or deletes rows it writes.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Entry describes one audit event.
type Entry struct {
	Type          string
	TenantID      string
	CorrelationID string
	Shard         string
	ActorID       string
	Outcome       string
	Payload       EventPayload
}

// Append writes the entry inside the caller's transaction when tx is
// non-nil, otherwise directly on the DB.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if e.Payload == nil {
		e.Payload = EventPayload{}
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	const q = `INSERT INTO events(ts,type,tenant_id,correlation_id,shard,actor_id,outcome,payload_json) VALUES (?,?,?,?,?,?,?,?)`
	args := []any{ts, e.Type, e.TenantID, nullable(e.CorrelationID), nullable(e.Shard), e.ActorID, nullable(e.Outcome), string(data)}
	if tx != nil {
		_, err = tx.ExecContext(ctx, q, args...)
	} else {
		_, err = w.DB.ExecContext(ctx, q, args...)
	}
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
