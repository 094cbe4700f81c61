package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"steeple/internal/app"
	"steeple/internal/domain"
	"steeple/internal/qa"
	"steeple/internal/router"
)

// IngestRequest is one inbound natural-language message.
type IngestRequest struct {
	Text string `json:"text" minLength:"1"`
}

// IngestResponse is the lane-tagged routing output: an answer for the
// informational side, a proposed plan for the action side, or both for
// HYBRID. Plans are proposals; nothing is executed here.
type IngestResponse struct {
	Lane          domain.Lane  `json:"lane"`
	EventKey      string       `json:"event_key"`
	CorrelationID string       `json:"correlation_id"`
	Answer        string       `json:"answer,omitempty"`
	Cached        bool         `json:"cached,omitempty"`
	Plan          *domain.Plan `json:"plan,omitempty"`
}

func registerIngest(api huma.API, k *app.Kernel) {
	huma.Register(api, huma.Operation{
		OperationID: "ingest",
		Method:      http.MethodPost,
		Path:        "/ingest",
		Summary:     "Route a message and produce an answer and/or plan proposal",
		Errors:      []int{http.StatusBadRequest, http.StatusBadGateway, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body IngestRequest `json:"body"`
	}) (*struct {
		Body IngestResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d := k.Router.Classify(input.Body.Text)
		out := IngestResponse{Lane: d.Lane, EventKey: d.EventKey, CorrelationID: d.CorrelationID}

		// The informational answer comes first and is independent of
		// whether the action plan is ever executed.
		if d.Lane == domain.LaneInfo || d.Lane == domain.LaneHybrid {
			res, err := k.QA.Answer(ctx, k.Cfg.Tenant, actor, input.Body.Text)
			if err != nil {
				return nil, handleError(err)
			}
			out.Answer = res.Answer
			out.Cached = res.Cached
		}
		if d.Lane == domain.LaneAction || d.Lane == domain.LaneHybrid {
			plan, err := k.Planner.Plan(ctx, k.Cfg.Tenant, actor, input.Body.Text, domain.LaneAction)
			if err != nil {
				return nil, handleError(err)
			}
			out.Plan = &plan
		}
		return &struct {
			Body IngestResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerRoute(api huma.API, k *app.Kernel) {
	huma.Register(api, huma.Operation{
		OperationID: "route",
		Method:      http.MethodPost,
		Path:        "/route",
		Summary:     "Classify a message into a lane",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body IngestRequest `json:"body"`
	}) (*struct {
		Body router.Decision `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body router.Decision `json:"body"`
		}{Body: k.Router.Classify(input.Body.Text)}, nil
	})
}

func registerQA(api huma.API, k *app.Kernel) {
	huma.Register(api, huma.Operation{
		OperationID: "qa",
		Method:      http.MethodPost,
		Path:        "/qa",
		Summary:     "Answer an informational question",
		Errors:      []int{http.StatusBadRequest, http.StatusBadGateway, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body IngestRequest `json:"body"`
	}) (*struct {
		Body qa.Result `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := k.QA.Answer(ctx, k.Cfg.Tenant, actor, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body qa.Result `json:"body"`
		}{Body: res}, nil
	})
}

// PlanResponse tags a proposed plan with its lane.
type PlanResponse struct {
	Lane domain.Lane `json:"lane"`
	Plan domain.Plan `json:"plan"`
}

func registerPlan(api huma.API, k *app.Kernel) {
	huma.Register(api, huma.Operation{
		OperationID: "plan",
		Method:      http.MethodPost,
		Path:        "/plan",
		Summary:     "Produce a plan proposal without executing it",
		Errors:      []int{http.StatusBadRequest, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Body IngestRequest `json:"body"`
	}) (*struct {
		Body PlanResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d := k.Router.Classify(input.Body.Text)
		lane := d.Lane
		if lane == domain.LaneHybrid {
			lane = domain.LaneAction
		}
		plan, err := k.Planner.Plan(ctx, k.Cfg.Tenant, actor, input.Body.Text, lane)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PlanResponse `json:"body"`
		}{Body: PlanResponse{Lane: d.Lane, Plan: plan}}, nil
	})
}

// ExecuteRequest carries a previously proposed plan for explicit
// execution.
type ExecuteRequest struct {
	CorrelationID string      `json:"correlation_id,omitempty"`
	Plan          domain.Plan `json:"plan"`
}

func registerExecute(api huma.API, k *app.Kernel) {
	huma.Register(api, huma.Operation{
		OperationID: "execute",
		Method:      http.MethodPost,
		Path:        "/execute",
		Summary:     "Execute a proposed plan",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body ExecuteRequest `json:"body"`
	}) (*struct {
		Body app.ExecuteResult `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := k.Execute(ctx, actor, input.Body.CorrelationID, input.Body.Plan)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body app.ExecuteResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerHolds(api huma.API, k *app.Kernel) {
	huma.Register(api, huma.Operation{
		OperationID: "list-holds",
		Method:      http.MethodGet,
		Path:        "/holds",
		Summary:     "List holds",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Hold `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		holds, err := k.Repo.ListHolds(ctx, k.Cfg.Tenant)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Hold `json:"body"`
		}{Body: holds}, nil
	})
}

func registerEvents(api huma.API, k *app.Kernel) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent audit events",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.AuditEvent `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		evts, err := k.Repo.ListEvents(ctx, k.Cfg.Tenant, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AuditEvent `json:"body"`
		}{Body: evts}, nil
	})
}
