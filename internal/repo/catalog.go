package repo

import (
	"context"
	"database/sql"
)

// Read-only queries backing the catalog ops. Rows come back as generic
// maps since the catalog surface is schemaless by design.

type CatalogRow = map[string]any

type Campus struct {
	ID           string
	TenantID     string
	Name         string
	Address      string
	ParkingNotes string
}

func (r Repo) InsertCampus(ctx context.Context, c Campus) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO campuses(id,tenant_id,name,address,parking_notes) VALUES (?,?,?,?,?)`,
		c.ID, c.TenantID, c.Name, nullable(c.Address), nullable(c.ParkingNotes))
	return err
}

func (r Repo) ListCampuses(ctx context.Context, tenantID string) ([]Campus, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,name,COALESCE(address,''),COALESCE(parking_notes,'') FROM campuses WHERE tenant_id=? ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Campus
	for rows.Next() {
		var c Campus
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Address, &c.ParkingNotes); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ResolveCampusID accepts a campus id or name, case-insensitively.
func (r Repo) ResolveCampusID(ctx context.Context, tenantID, nameOrID string) (string, error) {
	var id string
	err := r.DB.QueryRowContext(ctx,
		`SELECT id FROM campuses WHERE tenant_id=? AND (lower(id)=lower(?) OR lower(name)=lower(?))`,
		tenantID, nameOrID, nameOrID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return id, err
}

func (r Repo) InsertService(ctx context.Context, tenantID, id, campusID, date, timeOfDay string, childcare bool) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO services(id,tenant_id,campus_id,svc_date,svc_time,childcare_available) VALUES (?,?,?,?,?,?)`,
		id, tenantID, campusID, date, timeOfDay, childcare)
	return err
}

// QueryServices filters by date and campus; empty filters match all rows.
func (r Repo) QueryServices(ctx context.Context, tenantID, date, campusID, timeOfDay string) ([]CatalogRow, error) {
	q := `SELECT s.id, s.svc_date, s.svc_time, c.name, s.childcare_available
	      FROM services s JOIN campuses c ON c.tenant_id=s.tenant_id AND c.id=s.campus_id
	      WHERE s.tenant_id=?`
	args := []any{tenantID}
	if date != "" {
		q += ` AND s.svc_date=?`
		args = append(args, date)
	}
	if campusID != "" {
		q += ` AND s.campus_id=?`
		args = append(args, campusID)
	}
	if timeOfDay != "" {
		q += ` AND s.svc_time=?`
		args = append(args, timeOfDay)
	}
	q += ` ORDER BY s.svc_date, s.svc_time`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CatalogRow
	for rows.Next() {
		var id, svcDate, svcTime, campus string
		var childcare bool
		if err := rows.Scan(&id, &svcDate, &svcTime, &campus, &childcare); err != nil {
			return nil, err
		}
		res = append(res, CatalogRow{
			"service_id": id, "date": svcDate, "time": svcTime,
			"campus_name": campus, "childcare_available": childcare,
		})
	}
	return res, rows.Err()
}

func (r Repo) InsertStaff(ctx context.Context, tenantID, id, name, role, campusID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO staff(id,tenant_id,name,role,campus_id) VALUES (?,?,?,?,?)`,
		id, tenantID, name, role, nullable(campusID))
	return err
}

func (r Repo) QueryStaff(ctx context.Context, tenantID, role, campusID string) ([]CatalogRow, error) {
	q := `SELECT s.id, s.name, s.role, COALESCE(c.name,'')
	      FROM staff s LEFT JOIN campuses c ON c.tenant_id=s.tenant_id AND c.id=s.campus_id
	      WHERE s.tenant_id=?`
	args := []any{tenantID}
	if role != "" {
		q += ` AND s.role=?`
		args = append(args, role)
	}
	if campusID != "" {
		q += ` AND s.campus_id=?`
		args = append(args, campusID)
	}
	q += ` ORDER BY s.id`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CatalogRow
	for rows.Next() {
		var id, name, staffRole, campus string
		if err := rows.Scan(&id, &name, &staffRole, &campus); err != nil {
			return nil, err
		}
		row := CatalogRow{"id": id, "name": name, "role": staffRole}
		if campus != "" {
			row["campus_name"] = campus
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

func (r Repo) QueryParking(ctx context.Context, tenantID, campusID string) ([]CatalogRow, error) {
	q := `SELECT name, COALESCE(parking_notes,'') FROM campuses WHERE tenant_id=?`
	args := []any{tenantID}
	if campusID != "" {
		q += ` AND id=?`
		args = append(args, campusID)
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CatalogRow
	for rows.Next() {
		var name, notes string
		if err := rows.Scan(&name, &notes); err != nil {
			return nil, err
		}
		res = append(res, CatalogRow{"campus_name": name, "parking_notes": notes})
	}
	return res, rows.Err()
}

func (r Repo) InsertChurchEvent(ctx context.Context, tenantID, id, campusID, name, startsAt string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO church_events(id,tenant_id,campus_id,name,starts_at) VALUES (?,?,?,?,?)`,
		id, tenantID, campusID, name, startsAt)
	return err
}

func (r Repo) QueryUpcomingEvents(ctx context.Context, tenantID, campusID, fromDate string, limit int) ([]CatalogRow, error) {
	if limit <= 0 {
		limit = 5
	}
	q := `SELECT e.id, e.name, e.starts_at, c.name
	      FROM church_events e JOIN campuses c ON c.tenant_id=e.tenant_id AND c.id=e.campus_id
	      WHERE e.tenant_id=? AND e.starts_at>=?`
	args := []any{tenantID, fromDate}
	if campusID != "" {
		q += ` AND e.campus_id=?`
		args = append(args, campusID)
	}
	q += ` ORDER BY e.starts_at LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CatalogRow
	for rows.Next() {
		var id, name, startsAt, campus string
		if err := rows.Scan(&id, &name, &startsAt, &campus); err != nil {
			return nil, err
		}
		res = append(res, CatalogRow{"id": id, "name": name, "starts_at": startsAt, "campus_name": campus})
	}
	return res, rows.Err()
}

type FAQ struct {
	ID       string
	Question string
	Answer   string
}

func (r Repo) InsertFAQ(ctx context.Context, tenantID, id, question, answer, tags string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO faqs(id,tenant_id,question,answer,tags) VALUES (?,?,?,?,?)`,
		id, tenantID, question, answer, nullable(tags))
	return err
}

func (r Repo) ListFAQs(ctx context.Context, tenantID string) ([]FAQ, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,question,answer FROM faqs WHERE tenant_id=? ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []FAQ
	for rows.Next() {
		var f FAQ
		if err := rows.Scan(&f.ID, &f.Question, &f.Answer); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

func (r Repo) InsertMinistry(ctx context.Context, tenantID, id, name, meetingDay, meetingTime, location, notes string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO ministries(id,tenant_id,name,meeting_day,meeting_time,location,notes) VALUES (?,?,?,?,?,?,?)`,
		id, tenantID, name, nullable(meetingDay), nullable(meetingTime), nullable(location), nullable(notes))
	return err
}

func (r Repo) QueryMinistries(ctx context.Context, tenantID, name string) ([]CatalogRow, error) {
	q := `SELECT id,name,COALESCE(meeting_day,''),COALESCE(meeting_time,''),COALESCE(location,''),COALESCE(notes,'') FROM ministries WHERE tenant_id=?`
	args := []any{tenantID}
	if name != "" {
		q += ` AND lower(name) LIKE ?`
		args = append(args, "%"+name+"%")
	}
	q += ` ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CatalogRow
	for rows.Next() {
		var id, mname, day, mtime, location, notes string
		if err := rows.Scan(&id, &mname, &day, &mtime, &location, &notes); err != nil {
			return nil, err
		}
		res = append(res, CatalogRow{
			"id": id, "name": mname, "meeting_day": day,
			"meeting_time": mtime, "location": location, "notes": notes,
		})
	}
	return res, rows.Err()
}
