package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sahilm/fuzzy"

	"steeple/internal/domain"
	"steeple/internal/repo"
)

// Engine runs whitelisted read-only catalog ops over the seeded dataset.
// Any op outside the whitelist is a typed rejection, never a silent
// no-op. Unknown params are pruned before dispatch.
type Engine struct {
	Repo repo.Repo
	// Anchor pins relative-date terms like next_sunday to a fixed
	// calendar position.
	Anchor time.Time
}

// Ops is the closed whitelist. Each entry lists the params the op
// understands; everything else is dropped.
var Ops = map[string][]string{
	"service_times.by_date_and_campus": {"date", "campus", "time"},
	"staff.lookup":                     {"role", "campus"},
	"parking.by_campus":                {"campus"},
	"childcare.policy.by_service":      {"date", "campus", "time"},
	"events.upcoming.by_campus":        {"campus", "from_date", "limit"},
	"faq.search":                       {"query"},
	"ministry.schedule.by_name":        {"name"},
}

// Allowed reports whether the op is whitelisted.
func Allowed(op string) bool {
	_, ok := Ops[op]
	return ok
}

// Run executes one catalog op for a tenant. Unknown op names fail with a
// ValidationError.
func (e Engine) Run(ctx context.Context, tenantID, op string, params map[string]any) ([]repo.CatalogRow, error) {
	allowed, ok := Ops[op]
	if !ok {
		return nil, domain.ValidationError{Msg: fmt.Sprintf("catalog op %q is not whitelisted", op)}
	}
	params = prune(params, allowed)

	switch op {
	case "service_times.by_date_and_campus":
		return e.serviceTimes(ctx, tenantID, params)
	case "staff.lookup":
		campusID, err := e.campusID(ctx, tenantID, params)
		if err != nil {
			return nil, err
		}
		return e.store(e.Repo.QueryStaff(ctx, tenantID, str(params, "role"), campusID))
	case "parking.by_campus":
		campusID, err := e.campusID(ctx, tenantID, params)
		if err != nil {
			return nil, err
		}
		return e.store(e.Repo.QueryParking(ctx, tenantID, campusID))
	case "childcare.policy.by_service":
		rows, err := e.serviceTimes(ctx, tenantID, params)
		if err != nil {
			return nil, err
		}
		out := make([]repo.CatalogRow, 0, len(rows))
		for _, r := range rows {
			out = append(out, repo.CatalogRow{
				"date":                r["date"],
				"time":                r["time"],
				"campus_name":         r["campus_name"],
				"childcare_available": r["childcare_available"],
			})
		}
		return out, nil
	case "events.upcoming.by_campus":
		campusID, err := e.campusID(ctx, tenantID, params)
		if err != nil {
			return nil, err
		}
		from := e.resolveDate(str(params, "from_date"))
		if from == "" {
			from = e.Anchor.Format("2006-01-02")
		}
		return e.store(e.Repo.QueryUpcomingEvents(ctx, tenantID, campusID, from, intParam(params, "limit")))
	case "faq.search":
		return e.faqSearch(ctx, tenantID, str(params, "query"))
	case "ministry.schedule.by_name":
		return e.store(e.Repo.QueryMinistries(ctx, tenantID, str(params, "name")))
	}
	return nil, domain.ValidationError{Msg: fmt.Sprintf("catalog op %q is not whitelisted", op)}
}

func (e Engine) serviceTimes(ctx context.Context, tenantID string, params map[string]any) ([]repo.CatalogRow, error) {
	campusID, err := e.campusID(ctx, tenantID, params)
	if err != nil {
		return nil, err
	}
	date := e.resolveDate(str(params, "date"))
	return e.store(e.Repo.QueryServices(ctx, tenantID, date, campusID, str(params, "time")))
}

func (e Engine) campusID(ctx context.Context, tenantID string, params map[string]any) (string, error) {
	name := str(params, "campus")
	if name == "" {
		return "", nil
	}
	id, err := e.Repo.ResolveCampusID(ctx, tenantID, name)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", domain.NotFoundError{Entity: "campus", ID: name}
		}
		return "", domain.TransientStoreError{Op: "resolve campus", Err: err}
	}
	return id, nil
}

// resolveDate maps relative date terms onto the anchored calendar.
// "next_sunday" is the first Sunday strictly after the anchor; when the
// anchor itself is a Sunday, that same date (the anchored service day).
func (e Engine) resolveDate(date string) string {
	switch date {
	case "next_sunday":
		d := e.Anchor
		for d.Weekday() != time.Sunday {
			d = d.AddDate(0, 0, 1)
		}
		return d.Format("2006-01-02")
	case "today", "anchor":
		return e.Anchor.Format("2006-01-02")
	}
	return date
}

const faqMinScore = 0

func (e Engine) faqSearch(ctx context.Context, tenantID, query string) ([]repo.CatalogRow, error) {
	faqs, err := e.Repo.ListFAQs(ctx, tenantID)
	if err != nil {
		return nil, domain.TransientStoreError{Op: "list faqs", Err: err}
	}
	if query == "" {
		return nil, domain.ValidationError{Msg: "faq.search requires a query"}
	}
	questions := make([]string, len(faqs))
	for i, f := range faqs {
		questions[i] = f.Question
	}
	matches := fuzzy.Find(query, questions)
	var out []repo.CatalogRow
	for _, m := range matches {
		if m.Score < faqMinScore {
			continue
		}
		f := faqs[m.Index]
		out = append(out, repo.CatalogRow{"id": f.ID, "question": f.Question, "answer": f.Answer, "score": m.Score})
		if len(out) == 3 {
			break
		}
	}
	return out, nil
}

func (e Engine) store(rows []repo.CatalogRow, err error) ([]repo.CatalogRow, error) {
	if err != nil {
		return nil, domain.TransientStoreError{Op: "catalog query", Err: err}
	}
	return rows, nil
}

func prune(params map[string]any, allowed []string) map[string]any {
	out := map[string]any{}
	for _, k := range allowed {
		if v, ok := params[k]; ok {
			out[k] = v
		}
	}
	return out
}

func str(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

func intParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
