package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced in StepResult.Kind and API error codes.
const (
	KindValidation = "validation"
	KindAuthz      = "authz_denied"
	KindConflict   = "conflict"
	KindProvider   = "provider"
	KindNotFound   = "not_found"
	KindTransient  = "transient_store"
)

// ValidationError rejects a malformed plan, step or argument set before
// dispatch; no side effect has occurred.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

// AuthzDeniedError is the default-deny outcome. It is terminal for the
// step and, per policy, for the remaining plan.
type AuthzDeniedError struct {
	Verb   string
	Reason string
}

func (e AuthzDeniedError) Error() string {
	return fmt.Sprintf("denied %s: %s", e.Verb, e.Reason)
}

// ConflictError reports a confirm-time overlap with an already confirmed
// hold. Safe to retry with a new hold.
type ConflictError struct {
	Resource string
	Reason   string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Resource, e.Reason)
}

// ProviderError reports an LLM or outbound-message provider failure.
// Surfaced fast; never silently retried or substituted.
type ProviderError struct {
	Provider string
	Msg      string
}

func (e ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Msg)
}

// NotFoundError reports an unknown verb, op or resource id.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// TransientStoreError wraps a store failure the caller may retry.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e TransientStoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e TransientStoreError) Unwrap() error { return e.Err }

// ErrorKind classifies err into the taxonomy above; empty for nil and
// unclassified errors.
func ErrorKind(err error) string {
	var (
		validation ValidationError
		authz      AuthzDeniedError
		conflict   ConflictError
		provider   ProviderError
		notFound   NotFoundError
		transient  TransientStoreError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &authz):
		return KindAuthz
	case errors.As(err, &conflict):
		return KindConflict
	case errors.As(err, &provider):
		return KindProvider
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &transient):
		return KindTransient
	}
	return ""
}
