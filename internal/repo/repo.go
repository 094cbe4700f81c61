package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"steeple/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- rooms ---

func (r Repo) InsertRoom(ctx context.Context, room domain.Room) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO rooms(id,tenant_id,campus_id,name,capacity) VALUES (?,?,?,?,?)`,
		room.ID, room.TenantID, room.CampusID, room.Name, room.Capacity)
	return err
}

func (r Repo) GetRoom(ctx context.Context, tenantID, id string) (domain.Room, error) {
	var room domain.Room
	err := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,campus_id,name,COALESCE(capacity,0) FROM rooms WHERE tenant_id=? AND id=?`, tenantID, id).
		Scan(&room.ID, &room.TenantID, &room.CampusID, &room.Name, &room.Capacity)
	if err == sql.ErrNoRows {
		return room, ErrNotFound
	}
	return room, err
}

func (r Repo) ListRooms(ctx context.Context, tenantID string) ([]domain.Room, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,campus_id,name,COALESCE(capacity,0) FROM rooms WHERE tenant_id=? ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Room
	for rows.Next() {
		var room domain.Room
		if err := rows.Scan(&room.ID, &room.TenantID, &room.CampusID, &room.Name, &room.Capacity); err != nil {
			return nil, err
		}
		res = append(res, room)
	}
	return res, rows.Err()
}

// --- people ---

func (r Repo) InsertPerson(ctx context.Context, p domain.Person) error {
	skills, err := json.Marshal(p.Skills)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO people(id,tenant_id,name,phone,skills_json) VALUES (?,?,?,?,?)`,
		p.ID, p.TenantID, p.Name, nullable(p.Phone), string(skills))
	return err
}

func (r Repo) GetPerson(ctx context.Context, tenantID, id string) (domain.Person, error) {
	var p domain.Person
	var phone sql.NullString
	var skills sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,name,phone,skills_json FROM people WHERE tenant_id=? AND id=?`, tenantID, id).
		Scan(&p.ID, &p.TenantID, &p.Name, &phone, &skills)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Phone = phone.String
	if skills.Valid && skills.String != "" {
		_ = json.Unmarshal([]byte(skills.String), &p.Skills)
	}
	return p, nil
}

func (r Repo) SearchPeople(ctx context.Context, tenantID, query string) ([]domain.Person, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,tenant_id,name,phone,skills_json FROM people WHERE tenant_id=? AND (lower(name) LIKE ? OR lower(COALESCE(skills_json,'')) LIKE ?) ORDER BY id`,
		tenantID, "%"+query+"%", "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Person
	for rows.Next() {
		var p domain.Person
		var phone, skills sql.NullString
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &phone, &skills); err != nil {
			return nil, err
		}
		p.Phone = phone.String
		if skills.Valid && skills.String != "" {
			_ = json.Unmarshal([]byte(skills.String), &p.Skills)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// --- volunteer requests ---

func (r Repo) saveVolunteerRequest(ctx context.Context, q queryer, req domain.VolunteerRequest) error {
	needed, err := json.Marshal(req.Needed)
	if err != nil {
		return err
	}
	assignments, err := json.Marshal(req.Assignments)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
INSERT INTO volunteer_requests(id,tenant_id,needed_json,assignments_json,created_at,updated_at)
VALUES (?,?,?,?,?,?)
ON CONFLICT(tenant_id,id) DO UPDATE SET needed_json=excluded.needed_json, assignments_json=excluded.assignments_json, updated_at=excluded.updated_at`,
		req.ID, req.TenantID, string(needed), string(assignments), req.CreatedAt, req.UpdatedAt)
	return err
}

func (r Repo) UpsertVolunteerRequest(ctx context.Context, req domain.VolunteerRequest) error {
	return r.saveVolunteerRequest(ctx, r.DB, req)
}

func (r Repo) UpsertVolunteerRequestTx(ctx context.Context, tx *sql.Tx, req domain.VolunteerRequest) error {
	return r.saveVolunteerRequest(ctx, tx, req)
}

func (r Repo) GetVolunteerRequest(ctx context.Context, tenantID, id string) (domain.VolunteerRequest, error) {
	var req domain.VolunteerRequest
	var needed, assignments string
	err := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,needed_json,assignments_json,created_at,updated_at FROM volunteer_requests WHERE tenant_id=? AND id=?`, tenantID, id).
		Scan(&req.ID, &req.TenantID, &needed, &assignments, &req.CreatedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return req, ErrNotFound
	}
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal([]byte(needed), &req.Needed); err != nil {
		return req, fmt.Errorf("decode needed_json: %w", err)
	}
	if err := json.Unmarshal([]byte(assignments), &req.Assignments); err != nil {
		return req, fmt.Errorf("decode assignments_json: %w", err)
	}
	return req, nil
}

// --- holds ---

func scanHold(scan func(dest ...any) error) (domain.Hold, error) {
	var h domain.Hold
	err := scan(&h.ID, &h.TenantID, &h.Kind, &h.ResourceID, &h.StartAt, &h.EndAt, &h.Status, &h.RequestedBy, &h.ExpiresAt, &h.CreatedAt, &h.UpdatedAt)
	return h, err
}

const holdCols = `id,tenant_id,kind,resource_id,start_at,end_at,status,requested_by,expires_at,created_at,updated_at`

func (r Repo) InsertHold(ctx context.Context, h domain.Hold) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO holds(`+holdCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		h.ID, h.TenantID, h.Kind, h.ResourceID, h.StartAt, h.EndAt, h.Status, h.RequestedBy, h.ExpiresAt, h.CreatedAt, h.UpdatedAt)
	return err
}

func (r Repo) GetHold(ctx context.Context, id string) (domain.Hold, error) {
	h, err := scanHold(r.DB.QueryRowContext(ctx, `SELECT `+holdCols+` FROM holds WHERE id=?`, id).Scan)
	if err == sql.ErrNoRows {
		return h, ErrNotFound
	}
	return h, err
}

// ListActiveHolds returns HOLD and CONFIRMED holds for a resource.
func (r Repo) ListActiveHolds(ctx context.Context, tenantID, kind, resourceID string) ([]domain.Hold, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+holdCols+` FROM holds WHERE tenant_id=? AND kind=? AND resource_id=? AND status IN ('HOLD','CONFIRMED') ORDER BY created_at`,
		tenantID, kind, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Hold
	for rows.Next() {
		h, err := scanHold(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func (r Repo) ListHolds(ctx context.Context, tenantID string) ([]domain.Hold, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+holdCols+` FROM holds WHERE tenant_id=? ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Hold
	for rows.Next() {
		h, err := scanHold(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// TransitionHold moves a hold from one status to another atomically.
// Returns false when the hold is not in the expected status.
func (r Repo) TransitionHold(ctx context.Context, id, from, to, updatedAt string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE holds SET status=?, updated_at=? WHERE id=? AND status=?`, to, updatedAt, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateHoldWindow re-windows a hold without touching its status.
func (r Repo) UpdateHoldWindow(ctx context.Context, id, startAt, endAt, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE holds SET start_at=?, end_at=?, updated_at=? WHERE id=?`, startAt, endAt, updatedAt, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- outbox ---

func (r Repo) InsertOutbox(ctx context.Context, m domain.OutboxMessage) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO outbox(id,tenant_id,channel,recipient,body,idempotency_key,created_at) VALUES (?,?,?,?,?,?,?)`,
		m.ID, m.TenantID, m.Channel, m.To, m.Body, m.IdempotencyKey, m.CreatedAt)
	return err
}

func (r Repo) CountOutbox(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE tenant_id=?`, tenantID).Scan(&n)
	return n, err
}

// --- idempotency ---

// PutIdempotencyRecord stores the result for a key. The first writer wins;
// a concurrent duplicate insert is ignored so the stored result never
// changes once written.
func (r Repo) PutIdempotencyRecord(ctx context.Context, rec domain.IdempotencyRecord) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO idempotency(key,tenant_id,verb,result_json,created_at) VALUES (?,?,?,?,?)`,
		rec.Key, rec.TenantID, rec.Verb, rec.ResultJSON, rec.CreatedAt)
	return err
}

func (r Repo) GetIdempotencyRecord(ctx context.Context, tenantID, key string) (domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := r.DB.QueryRowContext(ctx, `SELECT key,tenant_id,verb,result_json,created_at FROM idempotency WHERE tenant_id=? AND key=?`, tenantID, key).
		Scan(&rec.Key, &rec.TenantID, &rec.Verb, &rec.ResultJSON, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	return rec, err
}

// --- audit events ---

func (r Repo) ListEvents(ctx context.Context, tenantID string, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,ts,type,tenant_id,COALESCE(correlation_id,''),COALESCE(shard,''),actor_id,COALESCE(outcome,''),payload_json
		 FROM events WHERE tenant_id=? ORDER BY id DESC LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.TenantID, &e.CorrelationID, &e.Shard, &e.ActorID, &e.Outcome, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) CountEvents(ctx context.Context, tenantID, evtType, outcome string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE tenant_id=? AND type=? AND COALESCE(outcome,'')=?`,
		tenantID, evtType, outcome).Scan(&n)
	return n, err
}

// --- helpers ---

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
