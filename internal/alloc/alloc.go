package alloc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"steeple/internal/domain"
	"steeple/internal/repo"
)

// Allocator implements the two-phase hold -> confirm reservation protocol
// over contested resources (rooms, volunteers). Placing a hold is
// optimistic: overlapping unconfirmed holds coexist. Confirm is the sole
// authoritative overlap check; callers must serialize concurrent confirms
// on the same resource (the executor's shard lock does this).
type Allocator struct {
	Repo    repo.Repo
	HoldTTL time.Duration
	Now     func() time.Time
}

func New(r repo.Repo, ttl time.Duration) Allocator {
	return Allocator{Repo: r, HoldTTL: ttl, Now: time.Now}
}

func (a Allocator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Window is a half-open [Start, End) reservation interval.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// ParseWindow validates and parses RFC3339 start/end strings.
func ParseWindow(startISO, endISO string) (Window, error) {
	start, err := time.Parse(time.RFC3339, startISO)
	if err != nil {
		return Window{}, domain.ValidationError{Msg: fmt.Sprintf("invalid start time %q", startISO)}
	}
	end, err := time.Parse(time.RFC3339, endISO)
	if err != nil {
		return Window{}, domain.ValidationError{Msg: fmt.Sprintf("invalid end time %q", endISO)}
	}
	if !start.Before(end) {
		return Window{}, domain.ValidationError{Msg: "window start must precede end"}
	}
	return Window{Start: start, End: end}, nil
}

func holdWindow(h domain.Hold) (Window, error) {
	start, err := time.Parse(time.RFC3339, h.StartAt)
	if err != nil {
		return Window{}, err
	}
	end, err := time.Parse(time.RFC3339, h.EndAt)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: start, End: end}, nil
}

// Hold places a tentative reservation. Fails only on a malformed window or
// an unknown resource; overlapping HOLDs are allowed by design.
func (a Allocator) Hold(ctx context.Context, tenantID, kind, resourceID string, w Window, requestedBy string) (domain.Hold, error) {
	switch kind {
	case domain.HoldKindRoom:
		if _, err := a.Repo.GetRoom(ctx, tenantID, resourceID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Hold{}, domain.NotFoundError{Entity: "room", ID: resourceID}
			}
			return domain.Hold{}, domain.TransientStoreError{Op: "get room", Err: err}
		}
	case domain.HoldKindVolunteer:
		if _, err := a.Repo.GetPerson(ctx, tenantID, resourceID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Hold{}, domain.NotFoundError{Entity: "person", ID: resourceID}
			}
			return domain.Hold{}, domain.TransientStoreError{Op: "get person", Err: err}
		}
	default:
		return domain.Hold{}, domain.ValidationError{Msg: fmt.Sprintf("unknown hold kind %q", kind)}
	}
	now := a.now().UTC()
	h := domain.Hold{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Kind:        kind,
		ResourceID:  resourceID,
		StartAt:     w.Start.UTC().Format(time.RFC3339),
		EndAt:       w.End.UTC().Format(time.RFC3339),
		Status:      domain.HoldStatusHold,
		RequestedBy: requestedBy,
		ExpiresAt:   now.Add(a.HoldTTL).Format(time.RFC3339),
		CreatedAt:   now.Format(time.RFC3339),
		UpdatedAt:   now.Format(time.RFC3339),
	}
	if err := a.Repo.InsertHold(ctx, h); err != nil {
		return domain.Hold{}, domain.TransientStoreError{Op: "insert hold", Err: err}
	}
	return h, nil
}

// Confirm transitions a HOLD to CONFIRMED unless its window overlaps an
// already-confirmed hold on the same resource. An expired hold is moved to
// EXPIRED and can never confirm.
func (a Allocator) Confirm(ctx context.Context, holdID string) (domain.Hold, error) {
	h, err := a.get(ctx, holdID)
	if err != nil {
		return domain.Hold{}, err
	}
	if h.Status != domain.HoldStatusHold {
		return domain.Hold{}, domain.ValidationError{Msg: fmt.Sprintf("hold %s is %s, not %s", holdID, h.Status, domain.HoldStatusHold)}
	}
	now := a.now().UTC()
	if a.expired(h, now) {
		_, _ = a.Repo.TransitionHold(ctx, h.ID, domain.HoldStatusHold, domain.HoldStatusExpired, now.Format(time.RFC3339))
		return domain.Hold{}, domain.ConflictError{Resource: h.ResourceID, Reason: "hold expired"}
	}
	w, err := holdWindow(h)
	if err != nil {
		return domain.Hold{}, domain.ValidationError{Msg: fmt.Sprintf("hold %s has malformed window", holdID)}
	}
	active, err := a.Repo.ListActiveHolds(ctx, h.TenantID, h.Kind, h.ResourceID)
	if err != nil {
		return domain.Hold{}, domain.TransientStoreError{Op: "list holds", Err: err}
	}
	for _, other := range active {
		if other.ID == h.ID || other.Status != domain.HoldStatusConfirmed {
			continue
		}
		ow, err := holdWindow(other)
		if err != nil {
			continue
		}
		if w.overlaps(ow) {
			return domain.Hold{}, domain.ConflictError{Resource: h.ResourceID, Reason: fmt.Sprintf("window overlaps confirmed hold %s", other.ID)}
		}
	}
	ok, err := a.Repo.TransitionHold(ctx, h.ID, domain.HoldStatusHold, domain.HoldStatusConfirmed, now.Format(time.RFC3339))
	if err != nil {
		return domain.Hold{}, domain.TransientStoreError{Op: "confirm hold", Err: err}
	}
	if !ok {
		// lost the transition to a concurrent release/expiry
		return domain.Hold{}, domain.ConflictError{Resource: h.ResourceID, Reason: "hold no longer confirmable"}
	}
	h.Status = domain.HoldStatusConfirmed
	h.UpdatedAt = now.Format(time.RFC3339)
	return h, nil
}

// Release moves a HOLD to RELEASED. Releasing a terminal hold is a no-op.
func (a Allocator) Release(ctx context.Context, holdID string) (domain.Hold, error) {
	h, err := a.get(ctx, holdID)
	if err != nil {
		return domain.Hold{}, err
	}
	if h.Status != domain.HoldStatusHold {
		return h, nil
	}
	now := a.now().UTC().Format(time.RFC3339)
	if _, err := a.Repo.TransitionHold(ctx, h.ID, domain.HoldStatusHold, domain.HoldStatusReleased, now); err != nil {
		return domain.Hold{}, domain.TransientStoreError{Op: "release hold", Err: err}
	}
	h.Status = domain.HoldStatusReleased
	h.UpdatedAt = now
	return h, nil
}

// Adjust re-windows a HOLD or CONFIRMED hold, re-checking conflicts
// against confirmed holds (excluding itself).
func (a Allocator) Adjust(ctx context.Context, holdID string, w Window) (domain.Hold, error) {
	h, err := a.get(ctx, holdID)
	if err != nil {
		return domain.Hold{}, err
	}
	if h.Status != domain.HoldStatusHold && h.Status != domain.HoldStatusConfirmed {
		return domain.Hold{}, domain.ValidationError{Msg: fmt.Sprintf("hold %s is %s and cannot be adjusted", holdID, h.Status)}
	}
	active, err := a.Repo.ListActiveHolds(ctx, h.TenantID, h.Kind, h.ResourceID)
	if err != nil {
		return domain.Hold{}, domain.TransientStoreError{Op: "list holds", Err: err}
	}
	for _, other := range active {
		if other.ID == h.ID || other.Status != domain.HoldStatusConfirmed {
			continue
		}
		ow, err := holdWindow(other)
		if err != nil {
			continue
		}
		if w.overlaps(ow) {
			return domain.Hold{}, domain.ConflictError{Resource: h.ResourceID, Reason: fmt.Sprintf("window overlaps confirmed hold %s", other.ID)}
		}
	}
	now := a.now().UTC().Format(time.RFC3339)
	h.StartAt = w.Start.UTC().Format(time.RFC3339)
	h.EndAt = w.End.UTC().Format(time.RFC3339)
	h.UpdatedAt = now
	if err := a.Repo.UpdateHoldWindow(ctx, h.ID, h.StartAt, h.EndAt, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Hold{}, domain.NotFoundError{Entity: "hold", ID: holdID}
		}
		return domain.Hold{}, domain.TransientStoreError{Op: "adjust hold", Err: err}
	}
	return h, nil
}

func (a Allocator) get(ctx context.Context, holdID string) (domain.Hold, error) {
	h, err := a.Repo.GetHold(ctx, holdID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Hold{}, domain.NotFoundError{Entity: "hold", ID: holdID}
		}
		return domain.Hold{}, domain.TransientStoreError{Op: "get hold", Err: err}
	}
	return h, nil
}

func (a Allocator) expired(h domain.Hold, now time.Time) bool {
	exp, err := time.Parse(time.RFC3339, h.ExpiresAt)
	if err != nil {
		return false
	}
	return now.After(exp)
}
