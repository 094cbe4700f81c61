package planner_test

import (
	"context"
	"errors"
	"testing"

	"steeple/internal/domain"
	"steeple/internal/planner"
	"steeple/internal/verbs"
)

func verbNames() []string {
	return verbs.NewRegistry().Names()
}

func TestHeuristicVolunteerCounts(t *testing.T) {
	h := planner.Heuristic{DefaultCampus: "Main"}
	p, err := h.Plan(context.Background(), "t", domain.Actor{ID: "u"},
		"Create a volunteer request: we need 3 ushers and 2 greeters", domain.LaneAction)
	if err != nil {
		t.Fatal(err)
	}
	if err := planner.Validate(p, domain.LaneAction, verbNames()); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if p.Strategy != "heuristic" {
		t.Fatalf("strategy = %s", p.Strategy)
	}
	var found bool
	for _, s := range p.Steps {
		if s.Verb != "create_record" {
			continue
		}
		found = true
		data := s.Args["data"].(map[string]any)
		if data["usher"] != 3 || data["greeter"] != 2 {
			t.Fatalf("data = %v", data)
		}
	}
	if !found {
		t.Fatalf("no create_record step in %+v", p.Steps)
	}
}

func TestHeuristicRoomWindow(t *testing.T) {
	h := planner.Heuristic{DefaultCampus: "Main"}
	p, err := h.Plan(context.Background(), "t", domain.Actor{ID: "u"},
		"Book the gym from 2025-01-06T17:00:00Z to 2025-01-06T20:00:00Z", domain.LaneAction)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Steps) == 0 || p.Steps[0].Verb != "room.hold" {
		t.Fatalf("steps = %+v", p.Steps)
	}
	args := p.Steps[0].Args
	if args["room_id"] != "gym" || args["start"] != "2025-01-06T17:00:00Z" || args["end"] != "2025-01-06T20:00:00Z" {
		t.Fatalf("args = %v", args)
	}
}

func TestHeuristicInfoTemplates(t *testing.T) {
	h := planner.Heuristic{DefaultCampus: "Main"}
	p, err := h.Plan(context.Background(), "t", domain.Actor{ID: "u"},
		"What time are services next Sunday at the North campus?", domain.LaneInfo)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Calls) == 0 || p.Calls[0].Op != "service_times.by_date_and_campus" {
		t.Fatalf("calls = %+v", p.Calls)
	}
	if p.Calls[0].Params["campus"] != "North" || p.Calls[0].Params["date"] != "next_sunday" {
		t.Fatalf("params = %v", p.Calls[0].Params)
	}
}

func TestHeuristicFAQFallback(t *testing.T) {
	h := planner.Heuristic{DefaultCampus: "Main"}
	p, err := h.Plan(context.Background(), "t", domain.Actor{ID: "u"},
		"how do I get baptized", domain.LaneInfo)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Calls) != 1 || p.Calls[0].Op != "faq.search" {
		t.Fatalf("calls = %+v", p.Calls)
	}
}

func TestHeuristicSendResolvesRecipient(t *testing.T) {
	h := planner.Heuristic{DefaultCampus: "Main"}

	p, err := h.Plan(context.Background(), "t", domain.Actor{ID: "u"},
		"Text +15551234567 that the service moved to 10am", domain.LaneAction)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Steps) != 1 || p.Steps[0].Verb != "sms.send" || p.Steps[0].Args["to"] != "+15551234567" {
		t.Fatalf("steps = %+v", p.Steps)
	}

	p, err = h.Plan(context.Background(), "t", domain.Actor{ID: "u"},
		"Send pastor@church.example the updated schedule", domain.LaneAction)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Steps) != 1 || p.Steps[0].Verb != "email.send" || p.Steps[0].Args["to"] != "pastor@church.example" {
		t.Fatalf("steps = %+v", p.Steps)
	}
}

func TestHeuristicSendWithoutRecipientYieldsNoPlan(t *testing.T) {
	h := planner.Heuristic{DefaultCampus: "Main"}
	_, err := h.Plan(context.Background(), "t", domain.Actor{ID: "u"},
		"Please send a reminder about signups", domain.LaneAction)
	var ve domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want ValidationError (no runnable step)", err)
	}
}

func TestValidateRejectsUnknownVerb(t *testing.T) {
	p := domain.Plan{Steps: []domain.Step{{Verb: "drop.tables", Args: map[string]any{}}}}
	err := planner.Validate(p, domain.LaneAction, verbNames())
	var ve domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestValidateLaneShape(t *testing.T) {
	steps := domain.Plan{Steps: []domain.Step{{Verb: "sms.send", Args: map[string]any{}}}}
	var ve domain.ValidationError
	if err := planner.Validate(steps, domain.LaneInfo, verbNames()); !errors.As(err, &ve) {
		t.Fatalf("steps in info lane: %v", err)
	}
	calls := domain.Plan{Calls: []domain.Call{{Op: "faq.search", Params: map[string]any{}}}}
	if err := planner.Validate(calls, domain.LaneAction, verbNames()); !errors.As(err, &ve) {
		t.Fatalf("calls in action lane: %v", err)
	}
}

// scriptedProvider returns canned completions in order.
type scriptedProvider struct {
	replies []string
	errs    []error
	calls   int
}

func (p *scriptedProvider) Complete(ctx context.Context, prompt string) (string, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i < len(p.replies) {
		return p.replies[i], nil
	}
	return "", domain.ProviderError{Provider: "scripted", Msg: "no reply scripted"}
}

func TestLLMValidPlanFirstTry(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		`{"steps":[{"verb":"sms.send","args":{"to":"+1555","body":"hi"}}]}`,
	}}
	l := planner.LLM{Provider: provider, VerbNames: verbNames()}
	p, err := l.Plan(context.Background(), "t", domain.Actor{ID: "u"}, "text bob", domain.LaneAction)
	if err != nil {
		t.Fatal(err)
	}
	if p.Strategy != "llm" || len(p.Steps) != 1 {
		t.Fatalf("plan = %+v", p)
	}
	if provider.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", provider.calls)
	}
}

func TestLLMSingleRepairThenSuccess(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		`{"steps":[{"verb":"not.a.verb","args":{}}]}`,
		"```json\n{\"steps\":[{\"verb\":\"sms.send\",\"args\":{\"to\":\"+1555\",\"body\":\"hi\"}}]}\n```",
	}}
	l := planner.LLM{Provider: provider, VerbNames: verbNames()}
	p, err := l.Plan(context.Background(), "t", domain.Actor{ID: "u"}, "text bob", domain.LaneAction)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Steps) != 1 || p.Steps[0].Verb != "sms.send" {
		t.Fatalf("plan = %+v", p)
	}
	if provider.calls != 2 {
		t.Fatalf("provider calls = %d, want 2", provider.calls)
	}
}

func TestLLMHardFailAfterSecondInvalidPayload(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		`not json at all`,
		`{"steps":[{"verb":"still.not.a.verb","args":{}}]}`,
	}}
	l := planner.LLM{Provider: provider, VerbNames: verbNames()}
	_, err := l.Plan(context.Background(), "t", domain.Actor{ID: "u"}, "text bob", domain.LaneAction)
	var pe domain.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want ProviderError", err)
	}
	// Exactly one repair attempt, never a third call.
	if provider.calls != 2 {
		t.Fatalf("provider calls = %d, want 2", provider.calls)
	}
}

func TestLLMProviderErrorSurfacesFast(t *testing.T) {
	provider := &scriptedProvider{errs: []error{domain.ProviderError{Provider: "gemini", Msg: "timeout"}}}
	l := planner.LLM{Provider: provider, VerbNames: verbNames()}
	_, err := l.Plan(context.Background(), "t", domain.Actor{ID: "u"}, "text bob", domain.LaneAction)
	var pe domain.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want ProviderError", err)
	}
	if provider.calls != 1 {
		t.Fatalf("provider calls = %d, want 1 (no retry)", provider.calls)
	}
}
