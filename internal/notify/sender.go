package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"steeple/internal/domain"
	"steeple/internal/repo"
)

// Sender delivers an outbound message on a channel and returns a delivery
// reference. All providers satisfy this one contract; the kernel treats
// them identically.
type Sender interface {
	Send(ctx context.Context, tenantID, channel, to, body, idempotencyKey string) (string, error)
}

// OutboxSender is the dev implementation: it records messages to the
// outbox table instead of calling a provider. The row id is the delivery
// reference.
type OutboxSender struct {
	Repo repo.Repo
	Now  func() time.Time
}

func (s OutboxSender) Send(ctx context.Context, tenantID, channel, to, body, idempotencyKey string) (string, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	m := domain.OutboxMessage{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		Channel:        channel,
		To:             to,
		Body:           body,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now().UTC().Format(time.RFC3339),
	}
	if err := s.Repo.InsertOutbox(ctx, m); err != nil {
		return "", domain.TransientStoreError{Op: "insert outbox", Err: err}
	}
	return m.ID, nil
}

// NoopSender discards messages; useful in tests that only care about the
// delivery reference contract.
type NoopSender struct{}

func (NoopSender) Send(ctx context.Context, tenantID, channel, to, body, idempotencyKey string) (string, error) {
	return "noop-" + uuid.New().String(), nil
}
