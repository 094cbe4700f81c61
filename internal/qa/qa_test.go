package qa_test

import (
	"context"
	"testing"
	"time"

	"steeple/internal/catalog"
	"steeple/internal/db"
	"steeple/internal/domain"
	"steeple/internal/migrate"
	"steeple/internal/qa"
	"steeple/internal/repo"
	"steeple/internal/seed"
)

const tenant = "t_test"

var anchor = time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)

// stubPlanner returns a canned plan per exact question text.
type stubPlanner struct {
	calls int
	plans map[string]domain.Plan
}

func (p *stubPlanner) Plan(ctx context.Context, tenantID string, actor domain.Actor, rawText string, lane domain.Lane) (domain.Plan, error) {
	p.calls++
	return p.plans[rawText], nil
}

type testQA struct {
	Answerer qa.Answerer
	Planner  *stubPlanner
	Now      *time.Time
	Composed *int
	Ctx      context.Context
}

func newTestQA(t *testing.T, plans map[string]domain.Plan) testQA {
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
	if err := seed.Load(ctx, r, tenant, anchor); err != nil {
		t.Fatalf("seed: %v", err)
	}

	now := anchor
	cache := qa.NewCache(300 * time.Second)
	cache.Now = func() time.Time { return now }

	composed := 0
	sp := &stubPlanner{plans: plans}
	a := qa.Answerer{
		Planner: sp,
		Catalog: catalog.Engine{Repo: r, Anchor: anchor},
		Cache:   cache,
		Compose: func(ctx context.Context, question string, calls []domain.Call, results [][]repo.CatalogRow) (string, error) {
			composed++
			return "composed answer", nil
		},
	}
	return testQA{Answerer: a, Planner: sp, Now: &now, Composed: &composed, Ctx: ctx}
}

func faqPlan(query string) domain.Plan {
	return domain.Plan{
		Strategy: "heuristic",
		Calls:    []domain.Call{{Op: "faq.search", Params: map[string]any{"query": query}}},
	}
}

func TestExactRepeatServedFromCache(t *testing.T) {
	q := "how do i get baptized?"
	env := newTestQA(t, map[string]domain.Plan{q: faqPlan("baptized")})

	first, err := env.Answerer.Answer(env.Ctx, tenant, domain.Actor{ID: "u"}, q)
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached {
		t.Fatal("first answer must not be cached")
	}
	second, err := env.Answerer.Answer(env.Ctx, tenant, domain.Actor{ID: "u"}, q)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached || second.Answer != first.Answer {
		t.Fatalf("second = %+v", second)
	}
	// An exact hit never reaches the planner.
	if env.Planner.calls != 1 {
		t.Fatalf("planner calls = %d, want 1", env.Planner.calls)
	}
}

func TestCacheNormalizesWhitespaceAndCase(t *testing.T) {
	env := newTestQA(t, map[string]domain.Plan{
		"how do i get baptized?":     faqPlan("baptized"),
		"How  do I get   BAPTIZED?": faqPlan("baptized"),
	})
	if _, err := env.Answerer.Answer(env.Ctx, tenant, domain.Actor{ID: "u"}, "how do i get baptized?"); err != nil {
		t.Fatal(err)
	}
	res, err := env.Answerer.Answer(env.Ctx, tenant, domain.Actor{ID: "u"}, "How  do I get   BAPTIZED?")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Cached {
		t.Fatal("normalized variant should hit the cache")
	}
}

func TestCacheExpiresByTTL(t *testing.T) {
	q := "how do i get baptized?"
	env := newTestQA(t, map[string]domain.Plan{q: faqPlan("baptized")})

	if _, err := env.Answerer.Answer(env.Ctx, tenant, domain.Actor{ID: "u"}, q); err != nil {
		t.Fatal(err)
	}
	*env.Now = env.Now.Add(301 * time.Second)
	res, err := env.Answerer.Answer(env.Ctx, tenant, domain.Actor{ID: "u"}, q)
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Fatal("expired entry must not be served")
	}
	if *env.Composed != 2 {
		t.Fatalf("compose calls = %d, want 2", *env.Composed)
	}
}

func TestNearMatchNeedsIdenticalPlan(t *testing.T) {
	base := "how do i get baptized?"
	near := "how do i get baptized" // same question, trailing punctuation dropped
	env := newTestQA(t, map[string]domain.Plan{
		base: faqPlan("baptized"),
		near: faqPlan("baptized"),
	})

	if _, err := env.Answerer.Answer(env.Ctx, tenant, domain.Actor{ID: "u"}, base); err != nil {
		t.Fatal(err)
	}
	res, err := env.Answerer.Answer(env.Ctx, tenant, domain.Actor{ID: "u"}, near)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Cached {
		t.Fatal("near-identical question with the same plan should reuse the answer")
	}
	if *env.Composed != 1 {
		t.Fatalf("compose calls = %d, want 1", *env.Composed)
	}
}

func TestNearMatchRejectedWhenPlanDiffers(t *testing.T) {
	base := "how do i get baptized?"
	near := "how do i get baptized" // normalizes near the base but plans differently
	env := newTestQA(t, map[string]domain.Plan{
		base: faqPlan("baptized"),
		near: faqPlan("communion"),
	})

	if _, err := env.Answerer.Answer(env.Ctx, tenant, domain.Actor{ID: "u"}, base); err != nil {
		t.Fatal(err)
	}
	res, err := env.Answerer.Answer(env.Ctx, tenant, domain.Actor{ID: "u"}, near)
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Fatal("a different call list must bypass the near-match cache")
	}
	if *env.Composed != 2 {
		t.Fatalf("compose calls = %d, want 2", *env.Composed)
	}
}

func TestNearMatchRejectsDissimilarLengths(t *testing.T) {
	c := qa.NewCache(300 * time.Second)
	c.Put(qa.Signature(tenant, "services?"), "plan-a", "cached")
	if _, ok := c.GetNear(qa.Signature(tenant, "when are the sunday services held at the north campus?"), "plan-a"); ok {
		t.Fatal("length-dissimilar questions must not near-match")
	}
}

func TestCacheIsTenantScoped(t *testing.T) {
	c := qa.NewCache(300 * time.Second)
	q := "how do i get baptized?"
	c.Put(qa.Signature("t_a", q), "plan-a", "tenant a answer")
	if _, ok := c.Get(qa.Signature("t_b", q)); ok {
		t.Fatal("exact lookup crossed tenants")
	}
	if _, ok := c.GetNear(qa.Signature("t_b", q), "plan-a"); ok {
		t.Fatal("near-match lookup crossed tenants")
	}
	if answer, ok := c.Get(qa.Signature("t_a", q)); !ok || answer != "tenant a answer" {
		t.Fatalf("owner lookup = %q, %v", answer, ok)
	}
}

func TestAnswerDoesNotServeOtherTenantsCache(t *testing.T) {
	q := "how do i get baptized?"
	env := newTestQA(t, map[string]domain.Plan{q: faqPlan("baptized")})

	if _, err := env.Answerer.Answer(env.Ctx, tenant, domain.Actor{ID: "u"}, q); err != nil {
		t.Fatal(err)
	}
	res, err := env.Answerer.Answer(env.Ctx, "t_other", domain.Actor{ID: "u"}, q)
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Fatal("answer for a different tenant must not come from the cache")
	}
	if env.Planner.calls != 2 {
		t.Fatalf("planner calls = %d, want 2", env.Planner.calls)
	}
}

func TestHeuristicComposeFallsBackWhenUnset(t *testing.T) {
	q := "how do i get baptized?"
	env := newTestQA(t, map[string]domain.Plan{q: faqPlan("baptized")})
	env.Answerer.Compose = nil

	res, err := env.Answerer.Answer(env.Ctx, tenant, domain.Actor{ID: "u"}, q)
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer != "Attend the Baptism Class listed on the events page." {
		t.Fatalf("answer = %q", res.Answer)
	}
}
