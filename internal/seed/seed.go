package seed

import (
	"context"
	"fmt"
	"time"

	"steeple/internal/domain"
	"steeple/internal/repo"
)

// Load populates the deterministic dev dataset. Every date is the anchor
// plus a fixed offset; ids are stable; all inserts are INSERT OR IGNORE
// so reseeding is a no-op.
func Load(ctx context.Context, r repo.Repo, tenantID string, anchor time.Time) error {
	campuses := []repo.Campus{
		{ID: "c_main", TenantID: tenantID, Name: "Main", Address: "100 Hope Blvd", ParkingNotes: "West + overflow East"},
		{ID: "c_north", TenantID: tenantID, Name: "North", Address: "555 North Pkwy", ParkingNotes: "Shared lot; arrive early"},
		{ID: "c_south", TenantID: tenantID, Name: "South", Address: "88 South Ave", ParkingNotes: "Street + garage level 2"},
	}
	for _, c := range campuses {
		if err := r.InsertCampus(ctx, c); err != nil {
			return fmt.Errorf("seed campus %s: %w", c.ID, err)
		}
	}

	rooms := []domain.Room{
		{ID: "gym", Name: "Gym", Capacity: 400, CampusID: "c_main"},
		{ID: "chapel", Name: "Chapel", Capacity: 180, CampusID: "c_main"},
		{ID: "auditorium", Name: "Auditorium", Capacity: 1500, CampusID: "c_main"},
		{ID: "kids_a", Name: "Kids A", Capacity: 40, CampusID: "c_north"},
		{ID: "kids_b", Name: "Kids B", Capacity: 40, CampusID: "c_north"},
		{ID: "studio", Name: "Studio", Capacity: 25, CampusID: "c_south"},
		{ID: "conference_a", Name: "Conference A", Capacity: 30, CampusID: "c_main"},
		{ID: "cafe", Name: "Cafe", Capacity: 120, CampusID: "c_main"},
	}
	for _, room := range rooms {
		room.TenantID = tenantID
		if err := r.InsertRoom(ctx, room); err != nil {
			return fmt.Errorf("seed room %s: %w", room.ID, err)
		}
	}

	// Four Sundays of services at 09:00 and 11:00 per campus; Main adds a
	// 17:00 evening service on even weeks.
	for week := 0; week < 4; week++ {
		sunday := anchor.AddDate(0, 0, 7*week)
		date := sunday.Format("2006-01-02")
		for _, c := range campuses {
			for _, t := range []string{"09:00", "11:00"} {
				childcare := t == "09:00" || week%2 == 0
				id := fmt.Sprintf("svc_%s_%s_%s", c.ID, date, t)
				if err := r.InsertService(ctx, tenantID, id, c.ID, date, t, childcare); err != nil {
					return fmt.Errorf("seed service %s: %w", id, err)
				}
			}
		}
		if week%2 == 0 {
			id := fmt.Sprintf("svc_c_main_%s_17:00", date)
			if err := r.InsertService(ctx, tenantID, id, "c_main", date, "17:00", false); err != nil {
				return fmt.Errorf("seed service %s: %w", id, err)
			}
		}
	}

	staff := []struct{ id, name, role, campus string }{
		{"staff_0001", "Dana Whitfield", "pastor", "c_main"},
		{"staff_0002", "Miguel Torres", "pastor", "c_north"},
		{"staff_0003", "Ruth Adeyemi", "pastor", "c_south"},
		{"staff_0004", "Sam Okafor", "volunteer_coordinator", "c_main"},
		{"staff_0005", "Lena Park", "kids", "c_main"},
		{"staff_0006", "Theo Brandt", "worship", ""},
		{"staff_0007", "Ivy Chen", "facilities", "c_main"},
		{"staff_0008", "Noah Fields", "media", "c_north"},
	}
	for _, s := range staff {
		if err := r.InsertStaff(ctx, tenantID, s.id, s.name, s.role, s.campus); err != nil {
			return fmt.Errorf("seed staff %s: %w", s.id, err)
		}
	}

	people := []domain.Person{
		{ID: "p_alice", Name: "Alice Hong", Phone: "+15550000001", Skills: []string{"usher", "greeter"}},
		{ID: "p_bob", Name: "Bob Mwangi", Phone: "+15550000002", Skills: []string{"usher", "musician"}},
		{ID: "p_cara", Name: "Cara Diaz", Phone: "+15550000003", Skills: []string{"greeter", "host"}},
		{ID: "p_dev", Name: "Dev Patel", Phone: "+15550000004", Skills: []string{"musician"}},
		{ID: "p_emi", Name: "Emi Sato", Phone: "+15550000005", Skills: []string{"host", "usher"}},
	}
	for _, p := range people {
		p.TenantID = tenantID
		if err := r.InsertPerson(ctx, p); err != nil {
			return fmt.Errorf("seed person %s: %w", p.ID, err)
		}
	}

	eventNames := []string{
		"Youth Night", "Prayer Gathering", "Leadership Huddle", "Community Meal",
		"Choir Practice", "Baptism Class", "Volunteer Rally", "Family Movie Night",
	}
	eid := 1
	for week := 0; week < 4; week++ {
		monday := anchor.AddDate(0, 0, 7*week+1)
		for _, dh := range []struct{ offset, hour int }{{1, 18}, {3, 18}, {5, 9}} {
			day := monday.AddDate(0, 0, dh.offset)
			for _, c := range campuses {
				name := eventNames[(eid-1)%len(eventNames)]
				start := time.Date(day.Year(), day.Month(), day.Day(), dh.hour, 0, 0, 0, time.UTC)
				id := fmt.Sprintf("evt_%04d", eid)
				if err := r.InsertChurchEvent(ctx, tenantID, id, c.ID, name, start.Format(time.RFC3339)); err != nil {
					return fmt.Errorf("seed event %s: %w", id, err)
				}
				eid++
			}
		}
	}

	faqs := []struct{ id, q, a, tags string }{
		{"f_time", "What time are Sunday services?", "Services at Main, North, South: 9:00 & 11:00 AM.", "service_times"},
		{"f_childcare", "Is childcare available?", "Childcare during 9:00 at all campuses; 11:00 varies.", "childcare"},
		{"f_parking", "Where do I park?", "Main: West lot. North: Shared front. South: Garage Level 2.", "parking"},
		{"f_address", "What are campus addresses?", "Main 100 Hope Blvd; North 555 North Pkwy; South 88 South Ave.", "campus"},
		{"f_contact", "How do I contact a pastor?", "Email office@church.example and we'll route appropriately.", "contact"},
		{"f_giving", "How can I give?", "Online portal or drop boxes in the lobby.", "giving"},
		{"f_groups", "How do I join a small group?", "Visit the groups page or ask the welcome desk.", "groups"},
		{"f_baptism", "How do I get baptized?", "Attend the Baptism Class listed on the events page.", "baptism"},
		{"f_kids_checkin", "Where do I check in kids?", "Kids wing entrance near the south lobby.", "kids"},
		{"f_length", "How long are services?", "About 75 minutes.", "service_length"},
		{"f_communion", "How often is communion?", "First Sunday of each month.", "communion"},
	}
	for _, f := range faqs {
		if err := r.InsertFAQ(ctx, tenantID, f.id, f.q, f.a, f.tags); err != nil {
			return fmt.Errorf("seed faq %s: %w", f.id, err)
		}
	}

	ministries := []struct{ id, name, day, t, loc, notes string }{
		{"m_youth", "Youth", "Wednesday", "18:30", "Gym", "Grades 6-12"},
		{"m_bible", "Bible Study", "Tuesday", "19:00", "Conference A", "Open to all"},
		{"m_worship", "Worship", "Thursday", "19:30", "Auditorium", "Audition required"},
		{"m_outreach", "Outreach", "Saturday", "09:00", "Cafe", "Monthly city serve"},
	}
	for _, m := range ministries {
		if err := r.InsertMinistry(ctx, tenantID, m.id, m.name, m.day, m.t, m.loc, m.notes); err != nil {
			return fmt.Errorf("seed ministry %s: %w", m.id, err)
		}
	}

	// Two standing volunteer requests for demos and tests.
	ts := anchor.UTC().Format(time.RFC3339)
	requests := []domain.VolunteerRequest{
		{ID: "vr_static_1", Needed: map[string]int{"usher": 4, "greeter": 6}, Assignments: map[string][]string{}},
		{ID: "vr_static_2", Needed: map[string]int{"usher": 2, "greeter": 3}, Assignments: map[string][]string{"usher": {"p_alice"}}},
	}
	for _, req := range requests {
		req.TenantID = tenantID
		req.CreatedAt = ts
		req.UpdatedAt = ts
		if _, err := r.GetVolunteerRequest(ctx, tenantID, req.ID); err == nil {
			continue
		}
		if err := r.UpsertVolunteerRequest(ctx, req); err != nil {
			return fmt.Errorf("seed volunteer request %s: %w", req.ID, err)
		}
	}

	// One confirmed gym hold the Monday evening after the anchor, so
	// confirm-time conflicts are reproducible out of the box.
	monday := anchor.AddDate(0, 0, 1)
	hold := domain.Hold{
		ID:          "hold_gym_1",
		TenantID:    tenantID,
		Kind:        domain.HoldKindRoom,
		ResourceID:  "gym",
		StartAt:     time.Date(monday.Year(), monday.Month(), monday.Day(), 17, 0, 0, 0, time.UTC).Format(time.RFC3339),
		EndAt:       time.Date(monday.Year(), monday.Month(), monday.Day(), 20, 0, 0, 0, time.UTC).Format(time.RFC3339),
		Status:      domain.HoldStatusConfirmed,
		RequestedBy: "seed",
		ExpiresAt:   anchor.AddDate(1, 0, 0).Format(time.RFC3339),
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if _, err := r.GetHold(ctx, hold.ID); err != nil {
		if err := r.InsertHold(ctx, hold); err != nil {
			return fmt.Errorf("seed hold %s: %w", hold.ID, err)
		}
	}
	return nil
}
