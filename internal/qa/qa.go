package qa

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"steeple/internal/catalog"
	"steeple/internal/domain"
	"steeple/internal/planner"
	"steeple/internal/repo"
)

// Answerer is the informational lane: cache lookup, plan, validate, run
// the catalog calls, compose an answer, store it.
type Answerer struct {
	Planner   planner.Planner
	Catalog   catalog.Engine
	Cache     *Cache
	VerbNames []string
	// Compose overrides the built-in composer (the LLM composer plugs in
	// here when enabled).
	Compose func(ctx context.Context, question string, calls []domain.Call, results [][]repo.CatalogRow) (string, error)
}

// Result is one answered question.
type Result struct {
	Answer string      `json:"answer"`
	Cached bool        `json:"cached"`
	Plan   domain.Plan `json:"plan"`
}

func (a Answerer) Answer(ctx context.Context, tenantID string, actor domain.Actor, text string) (Result, error) {
	sig := Signature(tenantID, text)
	if answer, ok := a.Cache.Get(sig); ok {
		return Result{Answer: answer, Cached: true}, nil
	}

	plan, err := a.Planner.Plan(ctx, tenantID, actor, text, domain.LaneInfo)
	if err != nil {
		return Result{}, err
	}
	if err := planner.Validate(plan, domain.LaneInfo, a.VerbNames); err != nil {
		return Result{}, err
	}
	planSig := callSignature(plan.Calls)

	// A near-identical question is reused only when its stored plan
	// matches the one just produced.
	if answer, ok := a.Cache.GetNear(sig, planSig); ok {
		return Result{Answer: answer, Cached: true, Plan: plan}, nil
	}

	results := make([][]repo.CatalogRow, len(plan.Calls))
	for i, call := range plan.Calls {
		rows, err := a.Catalog.Run(ctx, tenantID, call.Op, call.Params)
		if err != nil {
			return Result{}, err
		}
		results[i] = rows
	}

	compose := a.Compose
	if compose == nil {
		compose = composeHeuristic
	}
	answer, err := compose(ctx, text, plan.Calls, results)
	if err != nil {
		return Result{}, err
	}

	a.Cache.Put(sig, planSig, answer)
	return Result{Answer: answer, Cached: false, Plan: plan}, nil
}

// callSignature canonicalizes a call list so two plans compare equal iff
// they request the same data.
func callSignature(calls []domain.Call) string {
	data, _ := json.Marshal(calls)
	return string(data)
}

func composeHeuristic(ctx context.Context, question string, calls []domain.Call, results [][]repo.CatalogRow) (string, error) {
	var parts []string
	for i, call := range calls {
		rows := results[i]
		if len(rows) == 0 {
			parts = append(parts, "No results for "+call.Op+".")
			continue
		}
		switch call.Op {
		case "service_times.by_date_and_campus":
			var times []string
			for _, r := range rows {
				times = append(times, fmt.Sprintf("%v at %v (%v campus)", r["date"], r["time"], r["campus_name"]))
			}
			parts = append(parts, "Services: "+strings.Join(times, "; ")+".")
		case "childcare.policy.by_service":
			var lines []string
			for _, r := range rows {
				avail := "no childcare"
				if b, _ := r["childcare_available"].(bool); b {
					avail = "childcare available"
				}
				lines = append(lines, fmt.Sprintf("%v %v: %s", r["date"], r["time"], avail))
			}
			parts = append(parts, strings.Join(lines, "; ")+".")
		case "parking.by_campus":
			for _, r := range rows {
				parts = append(parts, fmt.Sprintf("Parking at %v: %v", r["campus_name"], r["parking_notes"]))
			}
		case "staff.lookup":
			var names []string
			for _, r := range rows {
				names = append(names, fmt.Sprintf("%v (%v)", r["name"], r["role"]))
			}
			parts = append(parts, "Staff: "+strings.Join(names, ", ")+".")
		case "events.upcoming.by_campus":
			var evts []string
			for _, r := range rows {
				evts = append(evts, fmt.Sprintf("%v on %v", r["name"], r["starts_at"]))
			}
			parts = append(parts, "Upcoming: "+strings.Join(evts, "; ")+".")
		case "faq.search":
			top := rows[0]
			parts = append(parts, fmt.Sprintf("%v", top["answer"]))
		case "ministry.schedule.by_name":
			for _, r := range rows {
				parts = append(parts, fmt.Sprintf("%v meets %v %v at %v.", r["name"], r["meeting_day"], r["meeting_time"], r["location"]))
			}
		default:
			data, _ := json.Marshal(rows)
			parts = append(parts, string(data))
		}
	}
	if len(parts) == 0 {
		return "I could not find anything for that question.", nil
	}
	return strings.Join(parts, " "), nil
}
