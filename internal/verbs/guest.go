package verbs

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"steeple/internal/domain"
	"steeple/internal/repo"
)

// Guest pairing verbs. Registration and request creation are public
// (empty permission) so newcomers can reach them without a staff token;
// matching and assignment stay behind volunteer.manage.

func guestVolunteerRegisterVerb() Verb {
	return Verb{
		Name:       "guest_pairing.volunteer_register",
		Permission: "",
		ShardKeys:  singleShard("guestvol", "phone"),
		Handle: func(ctx context.Context, d Deps, cc CallContext, args map[string]any) (any, error) {
			name, err := stringArg(args, "name")
			if err != nil {
				return nil, err
			}
			phone, err := stringArg(args, "phone")
			if err != nil {
				return nil, err
			}
			now := d.now().UTC().Format(time.RFC3339)
			v, err := d.Repo.FindGuestVolunteerByPhone(ctx, cc.TenantID, phone)
			if err != nil {
				if !errors.Is(err, repo.ErrNotFound) {
					return nil, domain.TransientStoreError{Op: "find guest volunteer", Err: err}
				}
				v = domain.GuestVolunteer{ID: uuid.New().String(), TenantID: cc.TenantID, Phone: phone, CreatedAt: now}
			}
			v.Name = name
			v.AgeRange = optionalStringArg(args, "age_range")
			v.Gender = optionalStringArg(args, "gender")
			v.MaritalStatus = optionalStringArg(args, "marital_status")
			v.Active = true
			v.UpdatedAt = now
			if err := d.Repo.UpsertGuestVolunteer(ctx, v); err != nil {
				return nil, domain.TransientStoreError{Op: "save guest volunteer", Err: err}
			}
			return map[string]any{"volunteer_id": v.ID, "active": v.Active}, nil
		},
	}
}

func guestRequestCreateVerb() Verb {
	return Verb{
		Name:       "guest_pairing.request_create",
		Permission: "",
		ShardKeys:  noShards,
		Handle: func(ctx context.Context, d Deps, cc CallContext, args map[string]any) (any, error) {
			guestName, err := stringArg(args, "guest_name")
			if err != nil {
				return nil, err
			}
			contact, err := stringArg(args, "contact")
			if err != nil {
				return nil, err
			}
			now := d.now().UTC().Format(time.RFC3339)
			g := domain.GuestRequest{
				ID:            uuid.New().String(),
				TenantID:      cc.TenantID,
				GuestName:     guestName,
				Contact:       contact,
				AgeRange:      optionalStringArg(args, "age_range"),
				Gender:        optionalStringArg(args, "gender"),
				MaritalStatus: optionalStringArg(args, "marital_status"),
				Status:        domain.GuestRequestOpen,
				Notes:         optionalStringArg(args, "notes"),
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := d.Repo.UpsertGuestRequest(ctx, g); err != nil {
				return nil, domain.TransientStoreError{Op: "save guest request", Err: err}
			}
			return map[string]any{"request_id": g.ID, "status": g.Status}, nil
		},
	}
}

func guestMatchVerb() Verb {
	return Verb{
		Name:       "guest_pairing.match",
		Permission: "volunteer.manage",
		ReadOnly:   true,
		ShardKeys:  noShards,
		Handle: func(ctx context.Context, d Deps, cc CallContext, args map[string]any) (any, error) {
			requestID, err := stringArg(args, "request_id")
			if err != nil {
				return nil, err
			}
			g, err := d.Repo.GetGuestRequest(ctx, cc.TenantID, requestID)
			if err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return nil, domain.NotFoundError{Entity: "guest request", ID: requestID}
				}
				return nil, domain.TransientStoreError{Op: "get guest request", Err: err}
			}
			vols, err := d.Repo.ListActiveGuestVolunteers(ctx, cc.TenantID)
			if err != nil {
				return nil, domain.TransientStoreError{Op: "list guest volunteers", Err: err}
			}
			ranked := rankGuestVolunteers(g, vols)
			limit := intArg(args, "limit", 3)
			if limit > 0 && len(ranked) > limit {
				ranked = ranked[:limit]
			}
			out := make([]map[string]any, 0, len(ranked))
			for _, c := range ranked {
				out = append(out, map[string]any{
					"volunteer_id": c.vol.ID,
					"name":         c.vol.Name,
					"score":        c.score,
				})
			}
			return map[string]any{"request_id": g.ID, "candidates": out}, nil
		},
	}
}

func guestAssignVerb() Verb {
	return Verb{
		Name:       "guest_pairing.assign",
		Permission: "volunteer.manage",
		// Locks both sides of the pairing: the request and the volunteer.
		ShardKeys: func(ctx context.Context, d Deps, cc CallContext, args map[string]any) ([]string, error) {
			requestID, err := stringArg(args, "request_id")
			if err != nil {
				return nil, err
			}
			volunteerID, err := stringArg(args, "volunteer_id")
			if err != nil {
				return nil, err
			}
			return []string{"guestreq:" + requestID, "guestvol:" + volunteerID}, nil
		},
		Handle: func(ctx context.Context, d Deps, cc CallContext, args map[string]any) (any, error) {
			requestID, _ := stringArg(args, "request_id")
			volunteerID, _ := stringArg(args, "volunteer_id")
			g, err := d.Repo.GetGuestRequest(ctx, cc.TenantID, requestID)
			if err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return nil, domain.NotFoundError{Entity: "guest request", ID: requestID}
				}
				return nil, domain.TransientStoreError{Op: "get guest request", Err: err}
			}
			if g.Status != domain.GuestRequestOpen {
				return nil, domain.ConflictError{Resource: requestID, Reason: "guest request is " + g.Status}
			}
			v, err := d.Repo.GetGuestVolunteer(ctx, cc.TenantID, volunteerID)
			if err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return nil, domain.NotFoundError{Entity: "guest volunteer", ID: volunteerID}
				}
				return nil, domain.TransientStoreError{Op: "get guest volunteer", Err: err}
			}
			if !v.Active {
				return nil, domain.ConflictError{Resource: volunteerID, Reason: "volunteer is inactive"}
			}
			if v.AssignedRequestID != "" && v.AssignedRequestID != requestID {
				return nil, domain.ConflictError{Resource: volunteerID, Reason: "volunteer already assigned to request " + v.AssignedRequestID}
			}
			now := d.now().UTC().Format(time.RFC3339)
			g.Status = domain.GuestRequestMatched
			g.VolunteerID = v.ID
			g.UpdatedAt = now
			v.AssignedRequestID = g.ID
			v.LastMatchedAt = now
			v.UpdatedAt = now
			if err := d.Repo.UpsertGuestRequest(ctx, g); err != nil {
				return nil, domain.TransientStoreError{Op: "save guest request", Err: err}
			}
			if err := d.Repo.UpsertGuestVolunteer(ctx, v); err != nil {
				return nil, domain.TransientStoreError{Op: "save guest volunteer", Err: err}
			}
			return map[string]any{"request_id": g.ID, "volunteer_id": v.ID, "status": g.Status}, nil
		},
	}
}

type guestCandidate struct {
	vol   domain.GuestVolunteer
	score int
}

// rankGuestVolunteers scores unassigned volunteers by attribute overlap
// with the request (age range, gender, marital status), then least
// recently matched first so hosting duty rotates.
func rankGuestVolunteers(g domain.GuestRequest, vols []domain.GuestVolunteer) []guestCandidate {
	var out []guestCandidate
	for _, v := range vols {
		if v.AssignedRequestID != "" {
			continue
		}
		score := 0
		if g.AgeRange != "" && v.AgeRange == g.AgeRange {
			score++
		}
		if g.Gender != "" && v.Gender == g.Gender {
			score++
		}
		if g.MaritalStatus != "" && v.MaritalStatus == g.MaritalStatus {
			score++
		}
		out = append(out, guestCandidate{vol: v, score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].vol.LastMatchedAt < out[j].vol.LastMatchedAt
	})
	return out
}
