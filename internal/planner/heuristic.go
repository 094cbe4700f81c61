package planner

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"steeple/internal/domain"
)

// Heuristic is the deterministic rule-based strategy: recognized phrase
// patterns map to fixed call and step templates. Always terminates; the
// default strategy when the LLM path is disabled.
type Heuristic struct {
	DefaultCampus string
}

func (h Heuristic) Plan(ctx context.Context, tenantID string, actor domain.Actor, rawText string, lane domain.Lane) (domain.Plan, error) {
	lower := strings.ToLower(rawText)
	p := domain.Plan{Strategy: "heuristic"}
	if lane == domain.LaneInfo || lane == domain.LaneHybrid {
		p.Calls = h.infoCalls(lower, rawText)
	}
	if lane == domain.LaneAction || lane == domain.LaneHybrid {
		p.Steps = h.actionSteps(lower, rawText)
	}
	if len(p.Calls) == 0 && len(p.Steps) == 0 {
		return domain.Plan{}, domain.ValidationError{Msg: "no plan could be derived from the request"}
	}
	return p, nil
}

func (h Heuristic) campus(lower string) string {
	for _, c := range []string{"north", "south", "main"} {
		if strings.Contains(lower, c+" campus") {
			return strings.ToUpper(c[:1]) + c[1:]
		}
	}
	return h.DefaultCampus
}

func (h Heuristic) infoCalls(lower, raw string) []domain.Call {
	campus := h.campus(lower)
	var calls []domain.Call
	add := func(op string, params map[string]any) {
		for _, c := range calls {
			if c.Op == op {
				return
			}
		}
		calls = append(calls, domain.Call{Op: op, Params: params})
	}

	if strings.Contains(lower, "childcare") || strings.Contains(lower, "nursery") {
		add("childcare.policy.by_service", map[string]any{"date": "next_sunday", "campus": campus})
	}
	if strings.Contains(lower, "what time") || strings.Contains(lower, "service") && containsAny(lower, "when", "time", "start") {
		add("service_times.by_date_and_campus", map[string]any{"date": "next_sunday", "campus": campus})
	}
	if strings.Contains(lower, "parking") {
		add("parking.by_campus", map[string]any{"campus": campus})
	}
	if containsAny(lower, "pastor", "staff", "who leads", "who is") {
		params := map[string]any{"campus": campus}
		if strings.Contains(lower, "pastor") {
			params["role"] = "pastor"
		}
		add("staff.lookup", params)
	}
	if containsAny(lower, "event", "upcoming", "happening") {
		add("events.upcoming.by_campus", map[string]any{"campus": campus, "from_date": "anchor", "limit": 5})
	}
	if containsAny(lower, "ministry", "group", "bible study", "youth") {
		add("ministry.schedule.by_name", map[string]any{"name": ministryName(lower)})
	}
	if len(calls) == 0 {
		add("faq.search", map[string]any{"query": raw})
	}
	return calls
}

// e.g. "we need 3 ushers and 2 greeters"
var roleCountRe = regexp.MustCompile(`(\d+)\s+(usher|greeter|host|volunteer|musician|helper)s?`)

// e.g. "book the fellowship hall from 2025-01-05T14:00:00Z to 2025-01-05T16:00:00Z".
// Matched against the raw text so RFC3339 timestamps keep their case.
var roomWindowRe = regexp.MustCompile(`(?i)(?:book|rent|reserve|hold)\s+(?:the\s+)?([a-z0-9_\- ]+?)\s+from\s+(\S+)\s+to\s+(\S+)`)

var sendRe = regexp.MustCompile(`(?:send|text)\s+(?:an?\s+)?(sms|email|message)?`)

var emailAddrRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

var phoneRe = regexp.MustCompile(`\+[0-9]{7,15}`)

func (h Heuristic) actionSteps(lower, raw string) []domain.Step {
	var steps []domain.Step

	if counts := roleCountRe.FindAllStringSubmatch(lower, -1); len(counts) > 0 {
		data := map[string]any{}
		for _, m := range counts {
			n, _ := strconv.Atoi(m[1])
			data[m[2]] = n
		}
		steps = append(steps, domain.Step{
			Verb: "create_record",
			Args: map[string]any{"kind": "volunteer_request", "data": data},
		})
	}

	if m := roomWindowRe.FindStringSubmatch(raw); m != nil {
		roomID := strings.ToLower(strings.TrimSpace(m[1]))
		steps = append(steps, domain.Step{
			Verb: "room.hold",
			Args: map[string]any{
				"room_id": strings.ReplaceAll(roomID, " ", "_"),
				"start":   m[2],
				"end":     m[3],
			},
		})
	}

	if containsAny(lower, "invite", "recruit") && containsAny(lower, "volunteer", "usher", "greeter", "team") {
		steps = append(steps, domain.Step{
			Verb: "people.search",
			Args: map[string]any{"query": volunteerQuery(lower)},
		})
	}

	if strings.Contains(lower, "notify") && strings.Contains(lower, "staff") {
		steps = append(steps, domain.Step{
			Verb: "notify.staff",
			Args: map[string]any{"staff_role": "staff", "body": lower},
		})
	} else if sendRe.MatchString(lower) {
		// Without a recognizable recipient there is no runnable send step;
		// a blank "to" would only fail validation at dispatch.
		if addr := emailAddrRe.FindString(raw); addr != "" {
			steps = append(steps, domain.Step{
				Verb: "email.send",
				Args: map[string]any{"to": addr, "body": raw},
			})
		} else if num := phoneRe.FindString(raw); num != "" {
			steps = append(steps, domain.Step{
				Verb: "sms.send",
				Args: map[string]any{"to": num, "body": raw},
			})
		}
	}

	return steps
}

func volunteerQuery(lower string) string {
	for _, role := range []string{"usher", "greeter", "musician", "host"} {
		if strings.Contains(lower, role) {
			return role
		}
	}
	return "volunteer"
}

func ministryName(lower string) string {
	for _, name := range []string{"youth", "bible study", "worship", "outreach"} {
		if strings.Contains(lower, name) {
			return name
		}
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
