package executor_test

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"steeple/internal/alloc"
	"steeple/internal/authz"
	"steeple/internal/db"
	"steeple/internal/domain"
	"steeple/internal/events"
	"steeple/internal/executor"
	"steeple/internal/locks"
	"steeple/internal/migrate"
	"steeple/internal/notify"
	"steeple/internal/repo"
	"steeple/internal/verbs"
)

const tenant = "t_test"

type testEnv struct {
	Exec executor.Executor
	Repo repo.Repo
	Ctx  context.Context
}

func newTestEnv(t *testing.T, grants map[string][]string) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	ctx := context.Background()
	if err := r.InsertRoom(ctx, domain.Room{ID: "gym", TenantID: tenant, CampusID: "c_main", Name: "Gym"}); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC)
	allocator := alloc.New(r, 120*time.Second)
	allocator.Now = func() time.Time { return now }
	ex := executor.Executor{
		Registry: verbs.NewRegistry(),
		Deps: verbs.Deps{
			Repo:   r,
			Alloc:  allocator,
			Sender: notify.OutboxSender{Repo: r},
			Now:    func() time.Time { return now },
		},
		Authz:  authz.New(grants),
		Locks:  locks.NewManager(),
		Events: events.Writer{DB: conn},
		Now:    func() time.Time { return now },
	}
	return testEnv{Exec: ex, Repo: r, Ctx: ctx}
}

func staffActor() domain.Actor {
	return domain.Actor{ID: "u_staff", Roles: []string{"staff"}}
}

func staffGrants() map[string][]string {
	return map[string][]string{
		"staff": {"volunteer.manage", "room.allocate", "message.send", "planning.create"},
	}
}

func cc() verbs.CallContext {
	return verbs.CallContext{TenantID: tenant, Actor: staffActor(), CorrelationID: "corr-1"}
}

func TestIdempotencyReplay(t *testing.T) {
	env := newTestEnv(t, staffGrants())
	plan := domain.Plan{Steps: []domain.Step{{
		Verb: "sms.send",
		Args: map[string]any{"to": "+15550000001", "body": "service moved to 10am"},
	}}}

	first := env.Exec.Execute(env.Ctx, cc(), plan)
	if len(first) != 1 || !first[0].OK || first[0].Replay {
		t.Fatalf("first = %+v", first)
	}
	second := env.Exec.Execute(env.Ctx, cc(), plan)
	if len(second) != 1 || !second[0].OK || !second[0].Replay {
		t.Fatalf("second = %+v", second)
	}

	// One net send regardless of how often the step is retried.
	n, err := env.Repo.CountOutbox(env.Ctx, tenant)
	if err != nil || n != 1 {
		t.Fatalf("outbox count = %d (%v), want 1", n, err)
	}
	replays, err := env.Repo.CountEvents(env.Ctx, tenant, "step.replayed", "REPLAY")
	if err != nil || replays != 1 {
		t.Fatalf("replay events = %d (%v), want 1", replays, err)
	}
}

func TestExplicitIdempotencyKeyWins(t *testing.T) {
	env := newTestEnv(t, staffGrants())
	run := func(body string) []domain.StepResult {
		return env.Exec.Execute(env.Ctx, cc(), domain.Plan{Steps: []domain.Step{{
			Verb: "sms.send",
			Args: map[string]any{"to": "+15550000001", "body": body, "idempotency_key": "send-1"},
		}}})
	}
	if res := run("first wording"); !res[0].OK || res[0].Replay {
		t.Fatalf("first = %+v", res)
	}
	// Different args, same explicit key: replay, not a second send.
	if res := run("second wording"); !res[0].Replay {
		t.Fatalf("second = %+v", res)
	}
	if n, _ := env.Repo.CountOutbox(env.Ctx, tenant); n != 1 {
		t.Fatalf("outbox count = %d, want 1", n)
	}
}

func TestDenialAbortsRemainingPlan(t *testing.T) {
	env := newTestEnv(t, map[string][]string{"sender": {"message.send"}})
	actor := domain.Actor{ID: "u_sender", Roles: []string{"sender"}}
	plan := domain.Plan{Steps: []domain.Step{
		{Verb: "room.hold", Args: map[string]any{
			"room_id": "gym", "start": "2025-01-06T17:00:00Z", "end": "2025-01-06T20:00:00Z",
		}},
		{Verb: "sms.send", Args: map[string]any{"to": "+15550000001", "body": "hi"}},
	}}
	results := env.Exec.Execute(env.Ctx, verbs.CallContext{TenantID: tenant, Actor: actor}, plan)
	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}
	if results[0].OK || results[0].Kind != domain.KindAuthz {
		t.Fatalf("step 1 = %+v", results[0])
	}
	if results[1].OK || results[1].Kind != domain.KindAuthz {
		t.Fatalf("step 2 = %+v, want skipped", results[1])
	}
	// The later, individually permitted step must not have run.
	if n, _ := env.Repo.CountOutbox(env.Ctx, tenant); n != 0 {
		t.Fatalf("outbox count = %d, want 0", n)
	}
	denied, err := env.Repo.CountEvents(env.Ctx, tenant, "step.denied", "DENIED")
	if err != nil || denied != 1 {
		t.Fatalf("denied events = %d (%v), want 1", denied, err)
	}
}

func TestUnknownVerbFailsWithoutAudit(t *testing.T) {
	env := newTestEnv(t, staffGrants())
	results := env.Exec.Execute(env.Ctx, cc(), domain.Plan{Steps: []domain.Step{
		{Verb: "no.such.verb", Args: map[string]any{}},
	}})
	if results[0].OK || results[0].Kind != domain.KindNotFound {
		t.Fatalf("result = %+v", results[0])
	}
	// Pre-dispatch rejection touched nothing, so nothing is audited.
	failed, _ := env.Repo.CountEvents(env.Ctx, tenant, "step.failed", "FAILED")
	if failed != 0 {
		t.Fatalf("failed events = %d, want 0", failed)
	}
}

func TestHandlerFailureContinuesPlan(t *testing.T) {
	env := newTestEnv(t, staffGrants())
	plan := domain.Plan{Steps: []domain.Step{
		{Verb: "room.hold", Args: map[string]any{
			"room_id": "no_such_room", "start": "2025-01-06T17:00:00Z", "end": "2025-01-06T20:00:00Z",
		}},
		{Verb: "sms.send", Args: map[string]any{"to": "+15550000001", "body": "hi"}},
	}}
	results := env.Exec.Execute(env.Ctx, cc(), plan)
	if results[0].OK || results[0].Kind != domain.KindNotFound {
		t.Fatalf("step 1 = %+v", results[0])
	}
	if !results[1].OK {
		t.Fatalf("step 2 = %+v, want OK", results[1])
	}
}

func TestConcurrentAssignsSerializeOnShard(t *testing.T) {
	env := newTestEnv(t, staffGrants())
	ts := "2025-01-05T08:00:00Z"
	req := domain.VolunteerRequest{
		ID: "vr1", TenantID: tenant,
		Needed:      map[string]int{"usher": 10},
		Assignments: map[string][]string{},
		CreatedAt:   ts, UpdatedAt: ts,
	}
	if err := env.Repo.UpsertVolunteerRequest(env.Ctx, req); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		if err := env.Repo.InsertPerson(env.Ctx, domain.Person{ID: "p_" + id, TenantID: tenant, Name: id}); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			personID := "p_" + string(rune('a'+i))
			env.Exec.Execute(env.Ctx, cc(), domain.Plan{Steps: []domain.Step{{
				Verb: "assign",
				Args: map[string]any{"request_id": "vr1", "person_id": personID, "role": "usher"},
			}}})
		}(i)
	}
	wg.Wait()

	got, err := env.Repo.GetVolunteerRequest(env.Ctx, tenant, "vr1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Assignments["usher"]) != 10 {
		t.Fatalf("assignments = %v, want all 10 (lost update)", got.Assignments["usher"])
	}
}

func TestBrokenReplayLookupDoesNotRedispatch(t *testing.T) {
	env := newTestEnv(t, staffGrants())
	env.Exec.Logger = log.New(io.Discard, "", 0)
	// Break the replay lookup path only; the verb itself would still work.
	if _, err := env.Repo.DB.Exec(`DROP TABLE idempotency`); err != nil {
		t.Fatal(err)
	}
	results := env.Exec.Execute(env.Ctx, cc(), domain.Plan{Steps: []domain.Step{{
		Verb: "sms.send",
		Args: map[string]any{"to": "+15550000001", "body": "hi"},
	}}})
	if results[0].OK || results[0].Kind != domain.KindTransient {
		t.Fatalf("result = %+v, want transient failure", results[0])
	}
	// The handler must not have run on a lookup it could not trust.
	if n, _ := env.Repo.CountOutbox(env.Ctx, tenant); n != 0 {
		t.Fatalf("outbox count = %d, want 0", n)
	}
}

func TestAuditAppendFailureSurfaces(t *testing.T) {
	env := newTestEnv(t, staffGrants())
	env.Exec.Logger = log.New(io.Discard, "", 0)
	if _, err := env.Repo.DB.Exec(`DROP TABLE events`); err != nil {
		t.Fatal(err)
	}
	plan := domain.Plan{Steps: []domain.Step{{
		Verb: "sms.send",
		Args: map[string]any{"to": "+15550000001", "body": "hi"},
	}}}
	results := env.Exec.Execute(env.Ctx, cc(), plan)
	if results[0].OK || results[0].Kind != domain.KindTransient {
		t.Fatalf("result = %+v, want transient failure", results[0])
	}
	// The send happened and was recorded, so a retry replays it instead
	// of sending twice.
	if n, _ := env.Repo.CountOutbox(env.Ctx, tenant); n != 1 {
		t.Fatalf("outbox count = %d, want 1", n)
	}
	results = env.Exec.Execute(env.Ctx, cc(), plan)
	if !results[0].Replay {
		t.Fatalf("retry = %+v, want replay", results[0])
	}
	if n, _ := env.Repo.CountOutbox(env.Ctx, tenant); n != 1 {
		t.Fatalf("outbox count after retry = %d, want 1", n)
	}
}

func TestConfirmLocksResourceNotHold(t *testing.T) {
	env := newTestEnv(t, staffGrants())
	hold := func(start, end string) string {
		res := env.Exec.Execute(env.Ctx, cc(), domain.Plan{Steps: []domain.Step{{
			Verb: "room.hold",
			Args: map[string]any{"room_id": "gym", "start": start, "end": end},
		}}})
		if !res[0].OK {
			t.Fatalf("hold failed: %+v", res[0])
		}
		return res[0].Value.(map[string]any)["hold_id"].(string)
	}
	h1 := hold("2025-01-06T17:00:00Z", "2025-01-06T20:00:00Z")
	h2 := hold("2025-01-06T18:00:00Z", "2025-01-06T21:00:00Z")

	var wg sync.WaitGroup
	results := make([][]domain.StepResult, 2)
	for i, id := range []string{h1, h2} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i] = env.Exec.Execute(env.Ctx, cc(), domain.Plan{Steps: []domain.Step{{
				Verb: "room.confirm",
				Args: map[string]any{"hold_id": id},
			}}})
		}(i, id)
	}
	wg.Wait()

	okCount := 0
	for _, res := range results {
		if res[0].OK {
			okCount++
		} else if res[0].Kind != domain.KindConflict {
			t.Fatalf("loser kind = %s, want conflict", res[0].Kind)
		}
	}
	if okCount != 1 {
		t.Fatalf("confirmed %d holds, want exactly 1", okCount)
	}
}
