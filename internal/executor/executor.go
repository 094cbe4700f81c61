package executor

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"steeple/internal/authz"
	"steeple/internal/domain"
	"steeple/internal/events"
	"steeple/internal/locks"
	"steeple/internal/repo"
	"steeple/internal/verbs"
)

// Executor runs action plans one step at a time. Each step passes the
// same gauntlet in order: shard locks, authorization, idempotency
// lookup, dispatch, then audit and idempotency persist. Steps never run
// in parallel; a plan's effects happen in plan order or not at all.
type Executor struct {
	Registry *verbs.Registry
	Deps     verbs.Deps
	Authz    authz.Engine
	Locks    *locks.Manager
	Events   events.Writer
	Now      func() time.Time
	Logger   *log.Logger
}

func (e Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Execute runs every step of the plan sequentially. An authorization
// denial aborts the remaining plan: later steps are reported as skipped
// and none of their effects happen. Any other failure marks its own
// step failed and execution moves on.
func (e Executor) Execute(ctx context.Context, cc verbs.CallContext, plan domain.Plan) []domain.StepResult {
	results := make([]domain.StepResult, 0, len(plan.Steps))
	for i, step := range plan.Steps {
		res, denied := e.runStep(ctx, cc, step)
		results = append(results, res)
		if denied {
			for _, rest := range plan.Steps[i+1:] {
				results = append(results, domain.StepResult{
					Verb:  rest.Verb,
					OK:    false,
					Error: "skipped: earlier step denied",
					Kind:  domain.KindAuthz,
				})
			}
			break
		}
	}
	return results
}

func (e Executor) runStep(ctx context.Context, cc verbs.CallContext, step domain.Step) (domain.StepResult, bool) {
	// Pre-dispatch rejections touch no resource and write no audit event.
	verb, err := e.Registry.Get(step.Verb)
	if err != nil {
		return stepError(step.Verb, err), false
	}

	keys, err := verb.ShardKeys(ctx, e.Deps, cc, step.Args)
	if err != nil {
		return stepError(step.Verb, err), false
	}
	for i, k := range keys {
		keys[i] = cc.TenantID + "|" + k
	}
	shard := joinShards(keys)

	// Locks are held across authz, replay lookup, dispatch and persist,
	// and released on every exit path.
	release := e.Locks.Acquire(keys)
	defer release()

	if err := e.Authz.Authorize(cc.Actor, verb.Name, verb.Permission); err != nil {
		e.audit(ctx, cc, "step.denied", shard, "DENIED", events.EventPayload{
			"verb":   verb.Name,
			"reason": err.Error(),
		})
		return domain.StepResult{Verb: verb.Name, OK: false, Error: err.Error(), Kind: domain.KindAuthz}, true
	}

	var idemKey string
	if !verb.ReadOnly {
		idemKey = verbs.IdempotencyKey(cc.TenantID, verb.Name, step.Args)
		rec, lerr := e.Deps.Repo.GetIdempotencyRecord(ctx, cc.TenantID, idemKey)
		if lerr == nil {
			var value any
			_ = json.Unmarshal([]byte(rec.ResultJSON), &value)
			e.audit(ctx, cc, "step.replayed", shard, "REPLAY", events.EventPayload{
				"verb": verb.Name,
				"key":  idemKey,
			})
			return domain.StepResult{Verb: verb.Name, OK: true, Replay: true, Value: value}, false
		}
		if !errors.Is(lerr, repo.ErrNotFound) {
			// A broken lookup must not pass for a miss: dispatching here
			// could repeat a side effect that was already performed.
			serr := domain.TransientStoreError{Op: "lookup idempotency", Err: lerr}
			return stepError(verb.Name, serr), false
		}
	}

	value, err := verb.Handle(ctx, e.Deps, cc, step.Args)
	if err != nil {
		return e.failed(ctx, cc, step, shard, err), false
	}

	if !verb.ReadOnly {
		resultJSON, merr := json.Marshal(value)
		if merr != nil {
			resultJSON = []byte("null")
		}
		rec := domain.IdempotencyRecord{
			Key:        idemKey,
			TenantID:   cc.TenantID,
			Verb:       verb.Name,
			ResultJSON: string(resultJSON),
			CreatedAt:  e.now().UTC().Format(time.RFC3339),
		}
		if perr := e.Deps.Repo.PutIdempotencyRecord(ctx, rec); perr != nil {
			// The effect happened but cannot be recorded; surface it so
			// the caller does not retry into a duplicate effect blindly.
			serr := domain.TransientStoreError{Op: "record idempotency", Err: perr}
			return e.failed(ctx, cc, step, shard, serr), false
		}
	}

	// The step is not reported successful without its audit event. A
	// retry replays from the idempotency record just written.
	if aerr := e.audit(ctx, cc, "step.executed", shard, "OK", events.EventPayload{
		"verb": verb.Name,
		"args": redactArgs(step.Args),
	}); aerr != nil {
		serr := domain.TransientStoreError{Op: "append audit", Err: aerr}
		return stepError(verb.Name, serr), false
	}
	return domain.StepResult{Verb: verb.Name, OK: true, Value: value}, false
}

func (e Executor) failed(ctx context.Context, cc verbs.CallContext, step domain.Step, shard string, err error) domain.StepResult {
	res := stepError(step.Verb, err)
	e.audit(ctx, cc, "step.failed", shard, "FAILED", events.EventPayload{
		"verb":  step.Verb,
		"kind":  res.Kind,
		"error": res.Error,
	})
	return res
}

func stepError(verb string, err error) domain.StepResult {
	return domain.StepResult{Verb: verb, OK: false, Error: err.Error(), Kind: domain.ErrorKind(err)}
}

func (e Executor) audit(ctx context.Context, cc verbs.CallContext, evtType, shard, outcome string, payload events.EventPayload) error {
	err := e.Events.Append(ctx, nil, events.Entry{
		Type:          evtType,
		TenantID:      cc.TenantID,
		CorrelationID: cc.CorrelationID,
		Shard:         shard,
		ActorID:       cc.Actor.ID,
		Outcome:       outcome,
		Payload:       payload,
	})
	if err != nil {
		e.logger().Printf("WARNING: audit append failed (type=%s shard=%s): %v", evtType, shard, err)
	}
	return err
}

func (e Executor) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

func joinShards(keys []string) string {
	switch len(keys) {
	case 0:
		return ""
	case 1:
		return keys[0]
	}
	out := keys[0]
	for _, k := range keys[1:] {
		out += "," + k
	}
	return out
}

// redactArgs masks contact-bearing argument values before they reach the
// audit log. Keys are kept so the trail still shows what was passed.
func redactArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		switch k {
		case "to", "phone", "contact":
			if s, ok := v.(string); ok {
				out[k] = mask(s)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
