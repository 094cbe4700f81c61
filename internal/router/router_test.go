package router

import (
	"testing"
	"time"

	"steeple/internal/domain"
)

func testRouter() Router {
	return Router{
		AnchorDate:    time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		DefaultCampus: "Main",
	}
}

func TestClassifyLanes(t *testing.T) {
	r := testRouter()
	cases := []struct {
		text string
		want domain.Lane
	}{
		{"What time are services next Sunday?", domain.LaneInfo},
		{"Please invite the volunteers and tell me when service starts", domain.LaneHybrid},
		{"Book the gym from 2025-01-06T17:00:00Z to 2025-01-06T20:00:00Z", domain.LaneAction},
		{"Where do I park at the North campus?", domain.LaneInfo},
		{"Notify the staff about the retreat", domain.LaneAction},
		{"hello there", domain.LaneInfo}, // read-only is the safe default
	}
	for _, tc := range cases {
		if got := r.Classify(tc.text).Lane; got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestEventKeyDefaults(t *testing.T) {
	r := testRouter()
	d := r.Classify("hello there")
	if d.EventKey != "General@2025-01-05@Main" {
		t.Fatalf("event key = %s", d.EventKey)
	}
	if d.CorrelationID == "" {
		t.Fatal("correlation id missing")
	}
}

func TestEventKeyTopicAndCampus(t *testing.T) {
	r := testRouter()
	d := r.Classify("When does the Catalyst retreat start at the north campus?")
	// First topic in the fixed vocabulary wins.
	if d.EventKey != "Catalyst@2025-01-05@North" {
		t.Fatalf("event key = %s", d.EventKey)
	}
}

func TestClassifyIsClockFree(t *testing.T) {
	r := testRouter()
	a := r.Classify("What time are services next Sunday?")
	b := r.Classify("What time are services next Sunday?")
	if a.EventKey != b.EventKey {
		t.Fatalf("event keys differ: %s vs %s", a.EventKey, b.EventKey)
	}
	if a.CorrelationID == b.CorrelationID {
		t.Fatal("correlation ids must be unique per request")
	}
}
