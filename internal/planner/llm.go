package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"steeple/internal/catalog"
	"steeple/internal/domain"
	"steeple/internal/llm"
)

// LLM is the model-backed strategy. It prompts with the closed op and
// verb whitelists, validates the returned payload, and re-prompts exactly
// once with the validation error. A second invalid payload, a provider
// error or missing credentials all surface as hard failures; the caller
// never gets a partial plan or a silent switch to the heuristic.
type LLM struct {
	Provider  llm.Provider
	VerbNames []string
}

func (l LLM) Plan(ctx context.Context, tenantID string, actor domain.Actor, rawText string, lane domain.Lane) (domain.Plan, error) {
	if l.Provider == nil {
		return domain.Plan{}, domain.ProviderError{Provider: "llm", Msg: "no provider configured"}
	}
	prompt := l.prompt(rawText, lane)
	raw, err := l.Provider.Complete(ctx, prompt)
	if err != nil {
		return domain.Plan{}, err
	}
	p, verr := l.decode(raw, lane)
	if verr == nil {
		return p, nil
	}

	// One repair attempt: re-prompt with the validation error attached.
	repair := prompt + "\n\nYour previous reply was rejected: " + verr.Error() + "\nReply again with only the corrected JSON."
	raw, err = l.Provider.Complete(ctx, repair)
	if err != nil {
		return domain.Plan{}, err
	}
	p, verr = l.decode(raw, lane)
	if verr != nil {
		return domain.Plan{}, domain.ProviderError{Provider: "llm", Msg: fmt.Sprintf("plan invalid after repair: %v", verr)}
	}
	return p, nil
}

func (l LLM) prompt(rawText string, lane domain.Lane) string {
	ops := make([]string, 0, len(catalog.Ops))
	for op := range catalog.Ops {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	var b strings.Builder
	b.WriteString("You translate a church-operations request into a JSON plan.\n")
	switch lane {
	case domain.LaneInfo:
		b.WriteString(`Reply with only {"calls":[{"op":"...","params":{...}}]}.` + "\n")
	case domain.LaneAction:
		b.WriteString(`Reply with only {"steps":[{"verb":"...","args":{...}}]}.` + "\n")
	default:
		b.WriteString(`Reply with only {"calls":[...],"steps":[...]}; either list may be empty but not both.` + "\n")
	}
	b.WriteString("Allowed ops: " + strings.Join(ops, ", ") + "\n")
	b.WriteString("Allowed verbs: " + strings.Join(l.VerbNames, ", ") + "\n")
	b.WriteString("Request: " + rawText + "\n")
	return b.String()
}

func (l LLM) decode(raw string, lane domain.Lane) (domain.Plan, error) {
	raw = stripFences(raw)
	var payload struct {
		Calls []domain.Call `json:"calls"`
		Steps []domain.Step `json:"steps"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return domain.Plan{}, domain.ValidationError{Msg: fmt.Sprintf("payload is not valid JSON: %v", err)}
	}
	p := domain.Plan{Calls: payload.Calls, Steps: payload.Steps, Strategy: "llm"}
	if err := Validate(p, lane, l.VerbNames); err != nil {
		return domain.Plan{}, err
	}
	return p, nil
}

// stripFences tolerates models that wrap JSON in markdown code fences.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
