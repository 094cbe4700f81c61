package repo

import (
	"context"
	"database/sql"

	"steeple/internal/domain"
)

const guestVolCols = `id,tenant_id,name,phone,age_range,gender,marital_status,active,COALESCE(last_matched_at,''),COALESCE(assigned_request_id,''),created_at,updated_at`

func scanGuestVolunteer(scan func(dest ...any) error) (domain.GuestVolunteer, error) {
	var v domain.GuestVolunteer
	err := scan(&v.ID, &v.TenantID, &v.Name, &v.Phone, &v.AgeRange, &v.Gender, &v.MaritalStatus, &v.Active, &v.LastMatchedAt, &v.AssignedRequestID, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func (r Repo) UpsertGuestVolunteer(ctx context.Context, v domain.GuestVolunteer) error {
	_, err := r.DB.ExecContext(ctx, `
INSERT INTO guest_volunteers(id,tenant_id,name,phone,age_range,gender,marital_status,active,last_matched_at,assigned_request_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(tenant_id,id) DO UPDATE SET
  name=excluded.name, phone=excluded.phone, age_range=excluded.age_range, gender=excluded.gender,
  marital_status=excluded.marital_status, active=excluded.active, last_matched_at=excluded.last_matched_at,
  assigned_request_id=excluded.assigned_request_id, updated_at=excluded.updated_at`,
		v.ID, v.TenantID, v.Name, v.Phone, v.AgeRange, v.Gender, v.MaritalStatus, v.Active,
		nullable(v.LastMatchedAt), nullable(v.AssignedRequestID), v.CreatedAt, v.UpdatedAt)
	return err
}

func (r Repo) GetGuestVolunteer(ctx context.Context, tenantID, id string) (domain.GuestVolunteer, error) {
	v, err := scanGuestVolunteer(r.DB.QueryRowContext(ctx,
		`SELECT `+guestVolCols+` FROM guest_volunteers WHERE tenant_id=? AND id=?`, tenantID, id).Scan)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	return v, err
}

func (r Repo) FindGuestVolunteerByPhone(ctx context.Context, tenantID, phone string) (domain.GuestVolunteer, error) {
	v, err := scanGuestVolunteer(r.DB.QueryRowContext(ctx,
		`SELECT `+guestVolCols+` FROM guest_volunteers WHERE tenant_id=? AND phone=?`, tenantID, phone).Scan)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	return v, err
}

func (r Repo) ListActiveGuestVolunteers(ctx context.Context, tenantID string) ([]domain.GuestVolunteer, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+guestVolCols+` FROM guest_volunteers WHERE tenant_id=? AND active=1 ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.GuestVolunteer
	for rows.Next() {
		v, err := scanGuestVolunteer(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

const guestReqCols = `id,tenant_id,guest_name,contact,age_range,gender,marital_status,status,COALESCE(volunteer_id,''),COALESCE(notes,''),created_at,updated_at`

func scanGuestRequest(scan func(dest ...any) error) (domain.GuestRequest, error) {
	var g domain.GuestRequest
	err := scan(&g.ID, &g.TenantID, &g.GuestName, &g.Contact, &g.AgeRange, &g.Gender, &g.MaritalStatus, &g.Status, &g.VolunteerID, &g.Notes, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

func (r Repo) UpsertGuestRequest(ctx context.Context, g domain.GuestRequest) error {
	_, err := r.DB.ExecContext(ctx, `
INSERT INTO guest_requests(id,tenant_id,guest_name,contact,age_range,gender,marital_status,status,volunteer_id,notes,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(tenant_id,id) DO UPDATE SET
  guest_name=excluded.guest_name, contact=excluded.contact, age_range=excluded.age_range, gender=excluded.gender,
  marital_status=excluded.marital_status, status=excluded.status, volunteer_id=excluded.volunteer_id,
  notes=excluded.notes, updated_at=excluded.updated_at`,
		g.ID, g.TenantID, g.GuestName, g.Contact, g.AgeRange, g.Gender, g.MaritalStatus, g.Status,
		nullable(g.VolunteerID), nullable(g.Notes), g.CreatedAt, g.UpdatedAt)
	return err
}

func (r Repo) GetGuestRequest(ctx context.Context, tenantID, id string) (domain.GuestRequest, error) {
	g, err := scanGuestRequest(r.DB.QueryRowContext(ctx,
		`SELECT `+guestReqCols+` FROM guest_requests WHERE tenant_id=? AND id=?`, tenantID, id).Scan)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	return g, err
}
