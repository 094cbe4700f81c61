package verbs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"steeple/internal/alloc"
	"steeple/internal/domain"
	"steeple/internal/repo"
)

func builtinVerbs() []Verb {
	return []Verb{
		peopleSearchVerb(),
		makeOffersVerb(),
		assignVerb(),
		unassignVerb(),
		createRecordVerb(),
		updateRecordVerb(),
		smsSendVerb(),
		emailSendVerb(),
		notifyStaffVerb(),
		roomHoldVerb(),
		roomConfirmVerb(),
		roomReleaseVerb(),
		roomAdjustVerb(),
		volunteerHoldVerb(),
		volunteerConfirmVerb(),
		scheduleTimerVerb(),
		guestVolunteerRegisterVerb(),
		guestRequestCreateVerb(),
		guestMatchVerb(),
		guestAssignVerb(),
	}
}

func noShards(ctx context.Context, d Deps, cc CallContext, args map[string]any) ([]string, error) {
	return nil, nil
}

func singleShard(key string, argName string) func(context.Context, Deps, CallContext, map[string]any) ([]string, error) {
	return func(ctx context.Context, d Deps, cc CallContext, args map[string]any) ([]string, error) {
		id, err := stringArg(args, argName)
		if err != nil {
			return nil, err
		}
		return []string{key + ":" + id}, nil
	}
}

// holdShard resolves a hold id to its resource shard so that concurrent
// confirms on overlapping holds serialize on the resource, not the hold.
func holdShard(ctx context.Context, d Deps, cc CallContext, args map[string]any) ([]string, error) {
	holdID, err := stringArg(args, "hold_id")
	if err != nil {
		return nil, err
	}
	h, err := d.Repo.GetHold(ctx, holdID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, domain.NotFoundError{Entity: "hold", ID: holdID}
		}
		return nil, domain.TransientStoreError{Op: "get hold", Err: err}
	}
	if h.TenantID != cc.TenantID {
		return nil, domain.NotFoundError{Entity: "hold", ID: holdID}
	}
	return []string{h.Kind + ":" + h.ResourceID}, nil
}

// --- volunteer requests ---

func peopleSearchVerb() Verb {
	return Verb{
		Name:       "people.search",
		Permission: "planning.create",
		ReadOnly:   true,
		ShardKeys:  noShards,
		Handle: func(ctx context.Context, d Deps, cc CallContext, args map[string]any) (any, error) {
			query, err := stringArg(args, "query")
			if err != nil {
				return nil, err
			}
			people, err := d.Repo.SearchPeople(ctx, cc.TenantID, query)
			if err != nil {
				return nil, domain.TransientStoreError{Op: "search people", Err: err}
			}
			return people, nil
		},
	}
}

func makeOffersVerb() Verb {
	return Verb{
		Name:       "make_offers",
		Permission: "volunteer.manage",
		ShardKeys:  singleShard("volreq", "request_id"),
		Handle: func(ctx context.Context, d Deps, cc CallContext, args map[string]any) (any, error) {
			if _, err := stringArg(args, "request_id"); err != nil {
				return nil, err
			}
			candidates, ok := args["candidates"].([]any)
			if !ok || len(candidates) == 0 {
				return nil, domain.ValidationError{Msg: "candidates must be a non-empty list"}
			}
			// Phase 1 records the offers in the audit trail only; the
			// executor writes the audit event around this handler.
			return map[string]any{"offers": candidates}, nil
		},
	}
}

func assignVerb() Verb {
	return Verb{
		Name:       "assign",
		Permission: "volunteer.manage",
		ShardKeys:  singleShard("volreq", "request_id"),
		Handle: func(ctx context.Context, d Deps, cc CallContext, args map[string]any) (any, error) {
			return mutateAssignments(ctx, d, cc, args, func(req *domain.VolunteerRequest, role, personID string) {
				for _, id := range req.Assignments[role] {
					if id == personID {
						return
					}
				}
				if req.Assignments == nil {
					req.Assignments = map[string][]string{}
				}
				req.Assignments[role] = append(req.Assignments[role], personID)
			})
		},
	}
}

func unassignVerb() Verb {
	return Verb{
		Name:       "unassign",
		Permission: "volunteer.manage",
		ShardKeys:  singleShard("volreq", "request_id"),
		Handle: func(ctx context.Context, d Deps, cc CallContext, args map[string]any) (any, error) {
			return mutateAssignments(ctx, d, cc, args, func(req *domain.VolunteerRequest, role, personID string) {
				assigned := req.Assignments[role]
				for i, id := range assigned {
					if id == personID {
						req.Assignments[role] = append(assigned[:i], assigned[i+1:]...)
						return
					}
				}
			})
		},
	}
}

func mutateAssignments(ctx context.Context, d Deps, cc CallContext, args map[string]any, mutate func(*domain.VolunteerRequest, string, string)) (any, error) {
	requestID, err := stringArg(args, "request_id")
	if err != nil {
		return nil, err
	}
	personID, err := stringArg(args, "person_id")
	if err != nil {
		return nil, err
	}
	role, err := stringArg(args, "role")
	if err != nil {
		return nil, err
	}
	req, err := d.Repo.GetVolunteerRequest(ctx, cc.TenantID, requestID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, domain.NotFoundError{Entity: "volunteer request", ID: requestID}
		}
		return nil, domain.TransientStoreError{Op: "get volunteer request", Err: err}
	}
	mutate(&req, role, personID)
	req.UpdatedAt = d.now().UTC().Format(time.RFC3339)
	if err := d.Repo.UpsertVolunteerRequest(ctx, req); err != nil {
		return nil, domain.TransientStoreError{Op: "save volunteer request", Err: err}
	}
	return map[string]any{"assignments": req.Assignments}, nil
}

func createRecordVerb() Verb {
	return Verb{
		Name:       "create_record",
		Permission: "planning.create",
		ShardKeys: func(ctx context.Context, d Deps, cc CallContext, args map[string]any) ([]string, error) {
			return []string{"volreq:new"}, nil
		},
		Handle: func(ctx context.Context, d Deps, cc CallContext, args map[string]any) (any, error) {
			kind, err := stringArg(args, "kind")
			if err != nil {
				return nil, err
			}
			if kind != "volunteer_request" {
				return nil, domain.ValidationError{Msg: fmt.Sprintf("unknown record kind %q", kind)}
			}
			data := mapArg(args, "data")
			needed := map[string]int{}
			for role, v := range data {
				if n := intArg(data, role, 0); n > 0 {
					needed[role] = n
				}
				_ = v
			}
			now := d.now().UTC().Format(time.RFC3339)
			req := domain.VolunteerRequest{
				ID:          uuid.New().String(),
				TenantID:    cc.TenantID,
				Needed:      needed,
				Assignments: map[string][]string{},
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := d.Repo.UpsertVolunteerRequest(ctx, req); err != nil {
				return nil, domain.TransientStoreError{Op: "insert volunteer request", Err: err}
			}
			return map[string]any{"id": req.ID, "needed": req.Needed}, nil
		},
	}
}

func updateRecordVerb() Verb {
	return Verb{
		Name:       "update_record",
		Permission: "planning.create",
		ShardKeys:  singleShard("volreq", "id"),
		Handle: func(ctx context.Context, d Deps, cc CallContext, args map[string]any) (any, error) {
			kind, err := stringArg(args, "kind")
			if err != nil {
				return nil, err
			}
			if kind != "volunteer_request" {
				return nil, domain.ValidationError{Msg: fmt.Sprintf("unknown record kind %q", kind)}
			}
			id, err := stringArg(args, "id")
			if err != nil {
				return nil, err
			}
			req, err := d.Repo.GetVolunteerRequest(ctx, cc.TenantID, id)
			if err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return nil, domain.NotFoundError{Entity: "volunteer request", ID: id}
				}
				return nil, domain.TransientStoreError{Op: "get volunteer request", Err: err}
			}
			data := mapArg(args, "data")
			for role := range data {
				if n := intArg(data, role, -1); n >= 0 {
					if req.Needed == nil {
						req.Needed = map[string]int{}
					}
					req.Needed[role] = n
				}
			}
			req.UpdatedAt = d.now().UTC().Format(time.RFC3339)
			if err := d.Repo.UpsertVolunteerRequest(ctx, req); err != nil {
				return nil, domain.TransientStoreError{Op: "save volunteer request", Err: err}
			}
			return map[string]any{"id": req.ID, "needed": req.Needed}, nil
		},
	}
}

// --- messaging ---

func sendVerb(name, channel string) Verb {
	return Verb{
		Name:       name,
		Permission: "message.send",
		ShardKeys:  singleShard("msg", "to"),
		Handle: func(ctx context.Context, d Deps, cc CallContext, args map[string]any) (any, error) {
			to, err := stringArg(args, "to")
			if err != nil {
				return nil, err
			}
			body, err := stringArg(args, "body")
			if err != nil {
				return nil, err
			}
			key := IdempotencyKey(cc.TenantID, name, args)
			ref, err := d.Sender.Send(ctx, cc.TenantID, channel, to, body, key)
			if err != nil {
				return nil, err
			}
			return map[string]any{"delivery_ref": ref}, nil
		},
	}
}

func smsSendVerb() Verb   { return sendVerb("sms.send", "sms") }
func emailSendVerb() Verb { return sendVerb("email.send", "email") }

func notifyStaffVerb() Verb {
	return Verb{
		Name:       "notify.staff",
		Permission: "message.send",
		ShardKeys:  singleShard("msg", "staff_role"),
		Handle: func(ctx context.Context, d Deps, cc CallContext, args map[string]any) (any, error) {
			role, err := stringArg(args, "staff_role")
			if err != nil {
				return nil, err
			}
			body, err := stringArg(args, "body")
			if err != nil {
				return nil, err
			}
			key := IdempotencyKey(cc.TenantID, "notify.staff", args)
			ref, err := d.Sender.Send(ctx, cc.TenantID, "notify", "role:"+role, body, key)
			if err != nil {
				return nil, err
			}
			return map[string]any{"notified_role": role, "delivery_ref": ref}, nil
		},
	}
}

// --- allocation ---

func roomHoldVerb() Verb {
	return Verb{
		Name:       "room.hold",
		Permission: "room.allocate",
		ShardKeys:  singleShard("room", "room_id"),
		Handle: func(ctx context.Context, d Deps, cc CallContext, args map[string]any) (any, error) {
			return placeHold(ctx, d, cc, args, domain.HoldKindRoom, "room_id")
		},
	}
}

func volunteerHoldVerb() Verb {
	return Verb{
		Name:       "volunteer.hold",
		Permission: "volunteer.manage",
		ShardKeys:  singleShard("volunteer", "person_id"),
		Handle: func(ctx context.Context, d Deps, cc CallContext, args map[string]any) (any, error) {
			return placeHold(ctx, d, cc, args, domain.HoldKindVolunteer, "person_id")
		},
	}
}

func placeHold(ctx context.Context, d Deps, cc CallContext, args map[string]any, kind, idArg string) (any, error) {
	resourceID, err := stringArg(args, idArg)
	if err != nil {
		return nil, err
	}
	startISO, err := stringArg(args, "start")
	if err != nil {
		return nil, err
	}
	endISO, err := stringArg(args, "end")
	if err != nil {
		return nil, err
	}
	w, err := alloc.ParseWindow(startISO, endISO)
	if err != nil {
		return nil, err
	}
	h, err := d.Alloc.Hold(ctx, cc.TenantID, kind, resourceID, w, cc.Actor.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"hold_id": h.ID, "status": h.Status, "expires_at": h.ExpiresAt}, nil
}

func roomConfirmVerb() Verb {
	return Verb{
		Name:       "room.confirm",
		Permission: "room.allocate",
		ShardKeys:  holdShard,
		Handle:     confirmHoldHandler,
	}
}

func volunteerConfirmVerb() Verb {
	return Verb{
		Name:       "volunteer.confirm",
		Permission: "volunteer.manage",
		ShardKeys:  holdShard,
		Handle:     confirmHoldHandler,
	}
}

func confirmHoldHandler(ctx context.Context, d Deps, cc CallContext, args map[string]any) (any, error) {
	holdID, err := stringArg(args, "hold_id")
	if err != nil {
		return nil, err
	}
	h, err := d.Alloc.Confirm(ctx, holdID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"hold_id": h.ID, "status": h.Status}, nil
}

func roomReleaseVerb() Verb {
	return Verb{
		Name:       "room.release",
		Permission: "room.allocate",
		ShardKeys:  holdShard,
		Handle: func(ctx context.Context, d Deps, cc CallContext, args map[string]any) (any, error) {
			holdID, err := stringArg(args, "hold_id")
			if err != nil {
				return nil, err
			}
			h, err := d.Alloc.Release(ctx, holdID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"hold_id": h.ID, "status": h.Status}, nil
		},
	}
}

func roomAdjustVerb() Verb {
	return Verb{
		Name:       "room.adjust",
		Permission: "room.allocate",
		ShardKeys:  holdShard,
		Handle: func(ctx context.Context, d Deps, cc CallContext, args map[string]any) (any, error) {
			holdID, err := stringArg(args, "hold_id")
			if err != nil {
				return nil, err
			}
			startISO, err := stringArg(args, "start")
			if err != nil {
				return nil, err
			}
			endISO, err := stringArg(args, "end")
			if err != nil {
				return nil, err
			}
			w, err := alloc.ParseWindow(startISO, endISO)
			if err != nil {
				return nil, err
			}
			h, err := d.Alloc.Adjust(ctx, holdID, w)
			if err != nil {
				return nil, err
			}
			return map[string]any{"hold_id": h.ID, "status": h.Status, "start": h.StartAt, "end": h.EndAt}, nil
		},
	}
}

func scheduleTimerVerb() Verb {
	return Verb{
		Name:       "schedule.timer",
		Permission: "planning.create",
		ShardKeys:  noShards,
		Handle: func(ctx context.Context, d Deps, cc CallContext, args map[string]any) (any, error) {
			delay := intArg(args, "delay_seconds", -1)
			if delay < 0 {
				return nil, domain.ValidationError{Msg: "delay_seconds must be a non-negative integer"}
			}
			// No real scheduler yet; the audit trail records the intent.
			return map[string]any{"scheduled_in": delay}, nil
		},
	}
}
