package planner

import (
	"context"
	"fmt"

	"steeple/internal/catalog"
	"steeple/internal/domain"
)

// Planner turns raw text into a plan for a lane. Plans are proposals;
// nothing here executes anything.
type Planner interface {
	Plan(ctx context.Context, tenantID string, actor domain.Actor, rawText string, lane domain.Lane) (domain.Plan, error)
}

// Validate checks a plan against the closed op and verb whitelists and
// the lane's shape: INFO plans carry calls, ACTION plans carry steps,
// HYBRID plans may carry both but never neither.
func Validate(p domain.Plan, lane domain.Lane, verbNames []string) error {
	verbs := map[string]bool{}
	for _, n := range verbNames {
		verbs[n] = true
	}
	switch lane {
	case domain.LaneInfo:
		if len(p.Steps) > 0 {
			return domain.ValidationError{Msg: "info plan must not contain steps"}
		}
		if len(p.Calls) == 0 {
			return domain.ValidationError{Msg: "info plan has no calls"}
		}
	case domain.LaneAction:
		if len(p.Calls) > 0 {
			return domain.ValidationError{Msg: "action plan must not contain calls"}
		}
		if len(p.Steps) == 0 {
			return domain.ValidationError{Msg: "action plan has no steps"}
		}
	case domain.LaneHybrid:
		if len(p.Calls) == 0 && len(p.Steps) == 0 {
			return domain.ValidationError{Msg: "hybrid plan is empty"}
		}
	default:
		return domain.ValidationError{Msg: fmt.Sprintf("unknown lane %q", lane)}
	}
	for _, c := range p.Calls {
		if !catalog.Allowed(c.Op) {
			return domain.ValidationError{Msg: fmt.Sprintf("call names unknown op %q", c.Op)}
		}
	}
	for _, s := range p.Steps {
		if !verbs[s.Verb] {
			return domain.ValidationError{Msg: fmt.Sprintf("step names unknown verb %q", s.Verb)}
		}
		if s.Args == nil {
			return domain.ValidationError{Msg: fmt.Sprintf("step %q has no argument mapping", s.Verb)}
		}
	}
	return nil
}
