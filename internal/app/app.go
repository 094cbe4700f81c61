package app

import (
	"context"
	"database/sql"
	"fmt"

	"steeple/internal/alloc"
	"steeple/internal/authz"
	"steeple/internal/catalog"
	"steeple/internal/clarify"
	"steeple/internal/config"
	"steeple/internal/db"
	"steeple/internal/domain"
	"steeple/internal/events"
	"steeple/internal/executor"
	"steeple/internal/llm"
	"steeple/internal/locks"
	"steeple/internal/migrate"
	"steeple/internal/notify"
	"steeple/internal/planner"
	"steeple/internal/qa"
	"steeple/internal/repo"
	"steeple/internal/router"
	"steeple/internal/verbs"
)

// Kernel wires the whole stack for one workspace: store, registry,
// executor, router, planner, catalog and QA flow. The CLI and the HTTP
// server both run on top of it.
type Kernel struct {
	Cfg      *config.Config
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Locks    *locks.Manager
	Registry *verbs.Registry
	Authz    authz.Engine
	Alloc    alloc.Allocator
	Exec     executor.Executor
	Router   router.Router
	Planner  planner.Planner
	Catalog  catalog.Engine
	QA       qa.Answerer
}

// Open builds a Kernel from the workspace config, running migrations.
func Open(workspace string) (*Kernel, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	k, err := New(cfg, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return k, nil
}

// New wires a Kernel onto an already-open migrated database.
func New(cfg *config.Config, conn *sql.DB) (*Kernel, error) {
	anchor, err := cfg.AnchorTime()
	if err != nil {
		return nil, err
	}
	r := repo.Repo{DB: conn}
	registry := verbs.NewRegistry()
	allocator := alloc.New(r, cfg.HoldTTLDuration())
	deps := verbs.Deps{Repo: r, Alloc: allocator, Sender: notify.OutboxSender{Repo: r}}
	writer := events.Writer{DB: conn}
	manager := locks.NewManager()
	grants := authz.New(cfg.Authz.Roles)

	var plannerImpl planner.Planner = planner.Heuristic{DefaultCampus: cfg.DefaultCampus}
	answerer := qa.Answerer{
		Planner:   plannerImpl,
		Catalog:   catalog.Engine{Repo: r, Anchor: anchor},
		Cache:     qa.NewCache(cfg.CacheTTLDuration()),
		VerbNames: registry.Names(),
	}
	if cfg.LLM.Enabled {
		provider := llm.Gemini{
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLMTimeout(),
		}
		plannerImpl = planner.LLM{Provider: provider, VerbNames: registry.Names()}
		answerer.Planner = plannerImpl
		answerer.Compose = qa.LLMComposer(provider)
	}

	return &Kernel{
		Cfg:      cfg,
		DB:       conn,
		Repo:     r,
		Events:   writer,
		Locks:    manager,
		Registry: registry,
		Authz:    grants,
		Alloc:    allocator,
		Exec: executor.Executor{
			Registry: registry,
			Deps:     deps,
			Authz:    grants,
			Locks:    manager,
			Events:   writer,
		},
		Router:  router.Router{AnchorDate: anchor, DefaultCampus: cfg.DefaultCampus},
		Planner: plannerImpl,
		Catalog: catalog.Engine{Repo: r, Anchor: anchor},
		QA:      answerer,
	}, nil
}

// ExecuteResult pairs ordered step results with an optional follow-up
// question derived from them.
type ExecuteResult struct {
	Results  []domain.StepResult `json:"results"`
	Question string              `json:"question,omitempty"`
}

// Execute runs a plan through the executor and derives the clarify
// follow-up. Execution only ever happens through this explicit call.
func (k *Kernel) Execute(ctx context.Context, actor domain.Actor, correlationID string, plan domain.Plan) (ExecuteResult, error) {
	if err := planner.Validate(plan, domain.LaneAction, k.Registry.Names()); err != nil {
		return ExecuteResult{}, err
	}
	cc := verbs.CallContext{TenantID: k.Cfg.Tenant, Actor: actor, CorrelationID: correlationID}
	results := k.Exec.Execute(ctx, cc, plan)
	return ExecuteResult{
		Results:  results,
		Question: clarify.Question(clarify.Detect(plan, results)),
	}, nil
}

// Close releases the underlying database.
func (k *Kernel) Close() error {
	if k.DB == nil {
		return nil
	}
	return k.DB.Close()
}
