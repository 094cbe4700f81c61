package verbs

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"steeple/internal/db"
	"steeple/internal/domain"
	"steeple/internal/migrate"
	"steeple/internal/repo"
)

const tenant = "t_test"

func newTestDeps(t *testing.T) (Deps, CallContext, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC)
	d := Deps{
		Repo: repo.Repo{DB: conn},
		Now:  func() time.Time { return now },
	}
	cc := CallContext{TenantID: tenant, Actor: domain.Actor{ID: "u_staff", Roles: []string{"staff"}}}
	return d, cc, context.Background()
}

func TestIdempotencyKeyExplicitWins(t *testing.T) {
	key := IdempotencyKey(tenant, "sms.send", map[string]any{
		"to": "+1555", "body": "a", "idempotency_key": "send-1",
	})
	if key != "send-1" {
		t.Fatalf("key = %s", key)
	}
}

func TestIdempotencyKeyDeterministic(t *testing.T) {
	a := IdempotencyKey(tenant, "sms.send", map[string]any{"to": "+1555", "body": "hi"})
	b := IdempotencyKey(tenant, "sms.send", map[string]any{"body": "hi", "to": "+1555"})
	if a != b {
		t.Fatalf("insertion order changed the key: %s vs %s", a, b)
	}
	if IdempotencyKey("t_other", "sms.send", map[string]any{"to": "+1555", "body": "hi"}) == a {
		t.Fatal("key must be tenant-scoped")
	}
	if IdempotencyKey(tenant, "email.send", map[string]any{"to": "+1555", "body": "hi"}) == a {
		t.Fatal("key must be verb-scoped")
	}
}

func TestRegistryUnknownVerb(t *testing.T) {
	_, err := NewRegistry().Get("no.such.verb")
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	names := NewRegistry().Names()
	if !sort.StringsAreSorted(names) {
		t.Fatalf("names not sorted: %v", names)
	}
	want := map[string]bool{
		"room.hold": true, "room.confirm": true, "sms.send": true,
		"guest_pairing.assign": true, "create_record": true,
	}
	for _, n := range names {
		delete(want, n)
	}
	if len(want) != 0 {
		t.Fatalf("missing verbs: %v", want)
	}
}

func TestRankGuestVolunteersScoreThenRotation(t *testing.T) {
	req := domain.GuestRequest{AgeRange: "30s", Gender: "f", MaritalStatus: "married"}
	vols := []domain.GuestVolunteer{
		{ID: "v_partial", AgeRange: "30s", Gender: "m", LastMatchedAt: "2025-01-01T00:00:00Z"},
		{ID: "v_full_recent", AgeRange: "30s", Gender: "f", MaritalStatus: "married", LastMatchedAt: "2025-01-04T00:00:00Z"},
		{ID: "v_full_idle", AgeRange: "30s", Gender: "f", MaritalStatus: "married", LastMatchedAt: "2025-01-02T00:00:00Z"},
		{ID: "v_busy", AgeRange: "30s", Gender: "f", MaritalStatus: "married", AssignedRequestID: "req_x"},
	}
	ranked := rankGuestVolunteers(req, vols)
	if len(ranked) != 3 {
		t.Fatalf("ranked = %d, want 3 (assigned volunteer excluded)", len(ranked))
	}
	// Full matches first; among equals the longest-idle volunteer leads.
	if ranked[0].vol.ID != "v_full_idle" || ranked[1].vol.ID != "v_full_recent" || ranked[2].vol.ID != "v_partial" {
		t.Fatalf("order = %s, %s, %s", ranked[0].vol.ID, ranked[1].vol.ID, ranked[2].vol.ID)
	}
	if ranked[0].score != 3 || ranked[2].score != 1 {
		t.Fatalf("scores = %d, %d", ranked[0].score, ranked[2].score)
	}
}

func TestGuestVolunteerRegisterUpsertsByPhone(t *testing.T) {
	d, cc, ctx := newTestDeps(t)
	register := guestVolunteerRegisterVerb()

	first, err := register.Handle(ctx, d, cc, map[string]any{"name": "Jo March", "phone": "+15550001111"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := register.Handle(ctx, d, cc, map[string]any{"name": "Josephine March", "phone": "+15550001111"})
	if err != nil {
		t.Fatal(err)
	}
	id1 := first.(map[string]any)["volunteer_id"].(string)
	id2 := second.(map[string]any)["volunteer_id"].(string)
	if id1 != id2 {
		t.Fatalf("re-registration created a new volunteer: %s vs %s", id1, id2)
	}
	v, err := d.Repo.FindGuestVolunteerByPhone(ctx, tenant, "+15550001111")
	if err != nil {
		t.Fatal(err)
	}
	if v.Name != "Josephine March" || !v.Active {
		t.Fatalf("volunteer = %+v", v)
	}
}

func TestGuestAssignRefusesDoubleBooking(t *testing.T) {
	d, cc, ctx := newTestDeps(t)

	reg, err := guestVolunteerRegisterVerb().Handle(ctx, d, cc, map[string]any{"name": "Host A", "phone": "+15550002222"})
	if err != nil {
		t.Fatal(err)
	}
	volID := reg.(map[string]any)["volunteer_id"].(string)

	createReq := func() string {
		out, err := guestRequestCreateVerb().Handle(ctx, d, cc, map[string]any{"guest_name": "New Guest", "contact": "guest@example.org"})
		if err != nil {
			t.Fatal(err)
		}
		return out.(map[string]any)["request_id"].(string)
	}
	req1, req2 := createReq(), createReq()

	assign := guestAssignVerb()
	out, err := assign.Handle(ctx, d, cc, map[string]any{"request_id": req1, "volunteer_id": volID})
	if err != nil {
		t.Fatal(err)
	}
	if out.(map[string]any)["status"] != domain.GuestRequestMatched {
		t.Fatalf("assign = %v", out)
	}

	// The matched request is no longer open.
	var ce domain.ConflictError
	_, err = assign.Handle(ctx, d, cc, map[string]any{"request_id": req1, "volunteer_id": volID})
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want ConflictError on matched request", err)
	}

	// The volunteer is already booked for req1.
	_, err = assign.Handle(ctx, d, cc, map[string]any{"request_id": req2, "volunteer_id": volID})
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want ConflictError on busy volunteer", err)
	}
}

func TestGuestMatchLimitsAndSkipsAssigned(t *testing.T) {
	d, cc, ctx := newTestDeps(t)
	register := guestVolunteerRegisterVerb()
	for _, p := range []string{"+1001", "+1002", "+1003", "+1004", "+1005"} {
		if _, err := register.Handle(ctx, d, cc, map[string]any{"name": "Host " + p, "phone": p}); err != nil {
			t.Fatal(err)
		}
	}
	reqOut, err := guestRequestCreateVerb().Handle(ctx, d, cc, map[string]any{"guest_name": "G", "contact": "g@example.org"})
	if err != nil {
		t.Fatal(err)
	}
	reqID := reqOut.(map[string]any)["request_id"].(string)

	out, err := guestMatchVerb().Handle(ctx, d, cc, map[string]any{"request_id": reqID})
	if err != nil {
		t.Fatal(err)
	}
	candidates := out.(map[string]any)["candidates"].([]map[string]any)
	if len(candidates) != 3 {
		t.Fatalf("candidates = %d, want default limit 3", len(candidates))
	}

	out, err = guestMatchVerb().Handle(ctx, d, cc, map[string]any{"request_id": reqID, "limit": 5})
	if err != nil {
		t.Fatal(err)
	}
	if n := len(out.(map[string]any)["candidates"].([]map[string]any)); n != 5 {
		t.Fatalf("candidates = %d, want 5", n)
	}
}
