package verbs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"steeple/internal/alloc"
	"steeple/internal/domain"
	"steeple/internal/notify"
	"steeple/internal/repo"
)

// CallContext carries the identity of one executor invocation into a verb
// handler. Handlers never see the raw HTTP request or the lock manager.
type CallContext struct {
	TenantID      string
	Actor         domain.Actor
	CorrelationID string
}

// Deps are the collaborators a handler may touch. All mutation flows
// through these; handlers hold no state of their own.
type Deps struct {
	Repo   repo.Repo
	Alloc  alloc.Allocator
	Sender notify.Sender
	Now    func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Verb declares one named operation as data: the permission it requires,
// which shard keys it must lock, how its idempotency key derives, and the
// handler that performs it.
type Verb struct {
	Name       string
	Permission string
	ReadOnly   bool
	// ShardKeys derives the lock keys for a step. May consult the store
	// (e.g. resolving a hold id to its resource). Empty means no lock.
	ShardKeys func(ctx context.Context, d Deps, cc CallContext, args map[string]any) ([]string, error)
	Handle    func(ctx context.Context, d Deps, cc CallContext, args map[string]any) (any, error)
}

// Registry is the closed set of known verbs.
type Registry struct {
	verbs map[string]Verb
}

// NewRegistry builds the phase-1 verb set.
func NewRegistry() *Registry {
	r := &Registry{verbs: map[string]Verb{}}
	for _, v := range builtinVerbs() {
		r.verbs[v.Name] = v
	}
	return r
}

// Get returns the verb or a NotFoundError for unknown names.
func (r *Registry) Get(name string) (Verb, error) {
	v, ok := r.verbs[name]
	if !ok {
		return Verb{}, domain.NotFoundError{Entity: "verb", ID: name}
	}
	return v, nil
}

// Names lists registered verb names, sorted. Used for planner whitelists.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.verbs))
	for n := range r.verbs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IdempotencyKey derives the key that decides "same effect". An explicit
// idempotency_key argument wins; otherwise tenant, verb and a stable hash
// of the arguments determine it.
func IdempotencyKey(tenantID, verb string, args map[string]any) string {
	if explicit, ok := args["idempotency_key"].(string); ok && explicit != "" {
		return explicit
	}
	data, _ := json.Marshal(args) // map keys marshal in sorted order
	sum := sha256.Sum256(append([]byte(tenantID+"|"+verb+"|"), data...))
	return hex.EncodeToString(sum[:])
}

// --- argument helpers ---

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", domain.ValidationError{Msg: fmt.Sprintf("missing argument %q", key)}
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", domain.ValidationError{Msg: fmt.Sprintf("argument %q must be a non-empty string", key)}
	}
	return s, nil
}

func optionalStringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64: // JSON numbers decode as float64
		return int(v)
	}
	return fallback
}

func mapArg(args map[string]any, key string) map[string]any {
	m, _ := args[key].(map[string]any)
	return m
}
