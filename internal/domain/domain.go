package domain

// Lane selects which subsystem handles an inbound message.
type Lane string

const (
	LaneInfo   Lane = "INFO"
	LaneAction Lane = "ACTION"
	LaneHybrid Lane = "HYBRID"
)

// Hold states. A hold may only move HOLD -> CONFIRMED, HOLD -> RELEASED
// or HOLD -> EXPIRED; CONFIRMED and the terminal states never change.
const (
	HoldStatusHold      = "HOLD"
	HoldStatusConfirmed = "CONFIRMED"
	HoldStatusReleased  = "RELEASED"
	HoldStatusExpired   = "EXPIRED"
)

// Hold kinds: the contested resource class a hold reserves.
const (
	HoldKindRoom      = "room"
	HoldKindVolunteer = "volunteer"
)

// Actor is the principal attempting an action. Transient per request;
// only its id is persisted, via audit events.
type Actor struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// Step names a verb and carries its argument mapping.
type Step struct {
	Verb string         `json:"verb"`
	Args map[string]any `json:"args"`
}

// Call names a catalog op and carries its parameters.
type Call struct {
	Op     string         `json:"op"`
	Params map[string]any `json:"params"`
}

// Plan is an immutable ordered sequence of verb steps (action lane) or
// catalog calls (info lane). Produced by the planner, never auto-executed.
type Plan struct {
	Steps    []Step `json:"steps,omitempty"`
	Calls    []Call `json:"calls,omitempty"`
	Strategy string `json:"strategy,omitempty" enum:"heuristic,llm"`
}

// StepResult is the per-step outcome of an Executor invocation.
type StepResult struct {
	Verb   string `json:"verb"`
	OK     bool   `json:"ok"`
	Replay bool   `json:"replay,omitempty"`
	Value  any    `json:"value,omitempty"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// Hold is a tentative reservation of a contested resource for a window.
type Hold struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	Kind        string `json:"kind" enum:"room,volunteer"`
	ResourceID  string `json:"resource_id"`
	StartAt     string `json:"start_at" format:"date-time"`
	EndAt       string `json:"end_at" format:"date-time"`
	Status      string `json:"status" enum:"HOLD,CONFIRMED,RELEASED,EXPIRED"`
	RequestedBy string `json:"requested_by"`
	ExpiresAt   string `json:"expires_at" format:"date-time"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

// Room is a bookable space at a campus.
type Room struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	CampusID string `json:"campus_id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity,omitempty"`
}

// VolunteerRequest tracks how many volunteers are needed per role and who
// has been assigned so far.
type VolunteerRequest struct {
	ID          string              `json:"id"`
	TenantID    string              `json:"tenant_id"`
	Needed      map[string]int      `json:"needed"`
	Assignments map[string][]string `json:"assignments"`
	CreatedAt   string              `json:"created_at" format:"date-time"`
	UpdatedAt   string              `json:"updated_at" format:"date-time"`
}

// Person is a member of the people directory (volunteers, staff contacts).
type Person struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenant_id"`
	Name     string   `json:"name"`
	Phone    string   `json:"phone,omitempty"`
	Skills   []string `json:"skills,omitempty"`
}

// OutboxMessage is a recorded outbound message. The dev sender writes here
// instead of talking to a provider.
type OutboxMessage struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	Channel        string `json:"channel" enum:"sms,email,notify"`
	To             string `json:"to"`
	Body           string `json:"body"`
	IdempotencyKey string `json:"idempotency_key"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

// IdempotencyRecord maps a derived key to the step result it produced.
type IdempotencyRecord struct {
	Key        string `json:"key"`
	TenantID   string `json:"tenant_id"`
	Verb       string `json:"verb"`
	ResultJSON string `json:"result_json"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// AuditEvent is one append-only record per executed step (and per routing
// or planning decision).
type AuditEvent struct {
	ID            int64  `json:"id"`
	TS            string `json:"ts" format:"date-time"`
	Type          string `json:"type"`
	TenantID      string `json:"tenant_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Shard         string `json:"shard,omitempty"`
	ActorID       string `json:"actor_id"`
	Outcome       string `json:"outcome,omitempty"`
	Payload       string `json:"payload_json"`
}

// GuestVolunteer is a member who opted in to host newcomers.
type GuestVolunteer struct {
	ID                string `json:"id"`
	TenantID          string `json:"tenant_id"`
	Name              string `json:"name"`
	Phone             string `json:"phone"`
	AgeRange          string `json:"age_range"`
	Gender            string `json:"gender"`
	MaritalStatus     string `json:"marital_status"`
	Active            bool   `json:"active"`
	LastMatchedAt     string `json:"last_matched_at,omitempty" format:"date-time"`
	AssignedRequestID string `json:"assigned_request_id,omitempty"`
	CreatedAt         string `json:"created_at" format:"date-time"`
	UpdatedAt         string `json:"updated_at" format:"date-time"`
}

// Guest request states.
const (
	GuestRequestOpen    = "OPEN"
	GuestRequestMatched = "MATCHED"
	GuestRequestClosed  = "CLOSED"
)

// GuestRequest is a newcomer asking to be paired with a host volunteer.
type GuestRequest struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenant_id"`
	GuestName     string `json:"guest_name"`
	Contact       string `json:"contact"`
	AgeRange      string `json:"age_range"`
	Gender        string `json:"gender"`
	MaritalStatus string `json:"marital_status"`
	Status        string `json:"status" enum:"OPEN,MATCHED,CLOSED"`
	VolunteerID   string `json:"volunteer_id,omitempty"`
	Notes         string `json:"notes,omitempty"`
	CreatedAt     string `json:"created_at" format:"date-time"`
	UpdatedAt     string `json:"updated_at" format:"date-time"`
}
