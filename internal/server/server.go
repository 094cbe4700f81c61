package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"steeple/internal/app"
	"steeple/internal/domain"
)

// Config for the HTTP API handler.
type Config struct {
	Kernel   *app.Kernel
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"authz_denied"`
	Message string         `json:"message" example:"verb room.confirm denied"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the kernel API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Steeple API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerIngest(group, cfg.Kernel)
	registerRoute(group, cfg.Kernel)
	registerQA(group, cfg.Kernel)
	registerPlan(group, cfg.Kernel)
	registerExecute(group, cfg.Kernel)
	registerHolds(group, cfg.Kernel)
	registerEvents(group, cfg.Kernel)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message, Details: details}}
}

// handleError maps the domain error taxonomy onto HTTP statuses.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	switch domain.ErrorKind(err) {
	case domain.KindValidation:
		return newAPIError(http.StatusBadRequest, "validation_error", err.Error(), nil)
	case domain.KindAuthz:
		return newAPIError(http.StatusForbidden, "authz_denied", err.Error(), nil)
	case domain.KindConflict:
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case domain.KindNotFound:
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case domain.KindProvider:
		return newAPIError(http.StatusBadGateway, "provider_error", err.Error(), nil)
	case domain.KindTransient:
		return newAPIError(http.StatusServiceUnavailable, "transient_store_error", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func actorFromContext(ctx context.Context) (domain.Actor, huma.StatusError) {
	p, authErr := requirePrincipal(ctx)
	if authErr != nil {
		return domain.Actor{}, authErr
	}
	return domain.Actor{ID: p.ActorID, Roles: p.Roles}, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}
