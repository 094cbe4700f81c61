package router

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"steeple/internal/domain"
)

// Router classifies inbound text into a lane and derives the event key a
// request belongs to. Classification is a pure function of the text plus
// the configured anchor date; it never reads the wall clock, so the same
// text always lands in the same event key.
type Router struct {
	AnchorDate    time.Time
	DefaultCampus string
}

// Decision is the routing outcome for one inbound message.
type Decision struct {
	Lane          domain.Lane `json:"lane"`
	EventKey      string      `json:"event_key"`
	CorrelationID string      `json:"correlation_id"`
}

var actionCues = []string{
	"invite", "assign", "unassign", "book", "rent", "reserve", "send",
	"notify", "create", "update", "hold", "confirm", "cancel", "release",
	"recruit", "pair", "match",
}

var infoCues = []string{
	"when", "where", "what time", "who", "which", "parking", "schedule",
	"how many", "how much", "is there", "are there", "childcare", "faq",
	"upcoming", "?",
}

// topics is the fixed program vocabulary for event keys. First match in
// order wins.
var topics = []string{"catalyst", "retreat", "camp", "outreach"}

var campuses = []string{"north", "south", "main"}

// Classify determines the lane from two disjoint cue sets. Text matching
// neither set defaults to INFO; read-only is the safe default.
func (r Router) Classify(text string) Decision {
	lower := strings.ToLower(text)
	action := containsAny(lower, actionCues)
	info := containsAny(lower, infoCues)

	lane := domain.LaneInfo
	switch {
	case action && info:
		lane = domain.LaneHybrid
	case action:
		lane = domain.LaneAction
	}

	return Decision{
		Lane:          lane,
		EventKey:      r.EventKey(lower),
		CorrelationID: uuid.New().String(),
	}
}

// EventKey builds "<Topic|General>@<ISO date>@<Campus>" from lowered text.
// The date is the configured anchor date; relative-date resolution lives
// downstream in the planner and catalog layers.
func (r Router) EventKey(lower string) string {
	topic := "General"
	for _, t := range topics {
		if strings.Contains(lower, t) {
			topic = title(t)
			break
		}
	}
	campus := r.DefaultCampus
	for _, c := range campuses {
		if strings.Contains(lower, c+" campus") {
			campus = title(c)
			break
		}
	}
	return topic + "@" + r.AnchorDate.Format("2006-01-02") + "@" + campus
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func containsAny(s string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(s, cue) {
			return true
		}
	}
	return false
}
