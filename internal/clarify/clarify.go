package clarify

import (
	"fmt"

	"steeple/internal/domain"
)

// Signal is one notable post-execution state that may merit a follow-up
// question. Detection is pure so it stays unit-testable.
type Signal struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	RoomID    string         `json:"room_id,omitempty"`
	HoldID    string         `json:"hold_id,omitempty"`
	Needed    int            `json:"needed,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Detect scans plan steps and their results in order and emits signals.
func Detect(plan domain.Plan, results []domain.StepResult) []Signal {
	var signals []Signal
	for i, step := range plan.Steps {
		if i >= len(results) {
			break
		}
		res := results[i]
		switch step.Verb {
		case "create_record", "update_record":
			if kind, _ := step.Args["kind"].(string); kind != "volunteer_request" {
				continue
			}
			if !res.OK {
				continue
			}
			s := Signal{Type: "volunteer_request_created", RequestID: resultID(res), Needed: totalNeeded(step.Args)}
			if step.Verb == "update_record" {
				s.Type = "volunteer_request_updated"
				if id, _ := step.Args["id"].(string); id != "" {
					s.RequestID = id
				}
			}
			signals = append(signals, s)
		case "room.hold":
			roomID, _ := step.Args["room_id"].(string)
			if res.OK {
				signals = append(signals, Signal{Type: "room_hold_created", RoomID: roomID, HoldID: resultHoldID(res)})
			} else {
				signals = append(signals, Signal{Type: "room_hold_failed", RoomID: roomID})
			}
		}
	}
	return signals
}

// Question chooses at most one clarifying question, highest priority
// first: pending volunteer needs, then a failed room hold, then an
// unconfirmed hold.
func Question(signals []Signal) string {
	for _, s := range signals {
		if s.Type == "volunteer_request_created" && s.Needed > 0 {
			return fmt.Sprintf("The volunteer request needs %d people. Should I start inviting volunteers now?", s.Needed)
		}
	}
	for _, s := range signals {
		if s.Type == "volunteer_request_updated" && s.Needed > 0 {
			return fmt.Sprintf("The request now needs %d people. Want me to send more invitations?", s.Needed)
		}
	}
	for _, s := range signals {
		if s.Type == "room_hold_failed" {
			return fmt.Sprintf("I could not hold %s. Should I try a different room or time?", s.RoomID)
		}
	}
	for _, s := range signals {
		if s.Type == "room_hold_created" {
			return fmt.Sprintf("I placed a hold on %s. Should I confirm the booking?", s.RoomID)
		}
	}
	return ""
}

func totalNeeded(args map[string]any) int {
	data, _ := args["data"].(map[string]any)
	total := 0
	for _, v := range data {
		switch n := v.(type) {
		case int:
			total += n
		case float64:
			total += int(n)
		}
	}
	return total
}

func resultID(res domain.StepResult) string {
	if m, ok := res.Value.(map[string]any); ok {
		if id, ok := m["id"].(string); ok {
			return id
		}
	}
	return ""
}

func resultHoldID(res domain.StepResult) string {
	if m, ok := res.Value.(map[string]any); ok {
		if id, ok := m["hold_id"].(string); ok {
			return id
		}
	}
	return ""
}
