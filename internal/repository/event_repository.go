package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/community-events/internal/model"
)

// eventCols lists the events columns in scan order.  Queries alias the
// events table as e.
const eventCols = `e.id, e.organizer_id, e.title, e.description, e.location, e.capacity, e.starts_at, e.ends_at,
       e.is_published, e.is_cancelled, e.created_at, e.updated_at`

// seatCountCol is a correlated subquery counting the seat-holding attendees
// of e.
var seatCountCol = `(SELECT COUNT(*) FROM attendees c WHERE c.event_id = e.id AND c.status IN (` + seatStatusList() + `))`

// seatStatusList renders model.SeatStatuses as a quoted SQL list.  The
// values are package constants, never user input.
func seatStatusList() string {
	parts := make([]string, len(model.SeatStatuses))
	for i, s := range model.SeatStatuses {
		parts[i] = "'" + string(s) + "'"
	}
	return strings.Join(parts, ", ")
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// eventDest returns scan destinations for eventCols plus a finish func that
// copies the nullable columns onto e.
func eventDest(e *model.Event) ([]any, func()) {
	var desc, loc sql.NullString
	var ends sql.NullTime
	dest := []any{
		&e.ID, &e.OrganizerID, &e.Title, &desc, &loc, &e.Capacity, &e.StartsAt, &ends,
		&e.IsPublished, &e.IsCancelled, &e.CreatedAt, &e.UpdatedAt,
	}
	return dest, func() {
		e.Description = nullString(desc)
		e.Location = nullString(loc)
		e.EndsAt = nullTime(ends)
	}
}

// scanEvent scans one event row, optionally followed by the seat count.
func scanEvent(row scanner, withCount bool) (*model.Event, error) {
	var e model.Event
	dest, finish := eventDest(&e)
	if withCount {
		dest = append(dest, &e.AttendeeCount)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	finish()
	return &e, nil
}

// CreateEvent inserts e.  The caller assigns the id and timestamps.
func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	const q = `INSERT INTO events (id, organizer_id, title, description, location, capacity, starts_at, ends_at,
	                               is_published, is_cancelled, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(q),
		e.ID, e.OrganizerID, e.Title, e.Description, e.Location, e.Capacity, e.StartsAt, e.EndsAt,
		e.IsPublished, e.IsCancelled, e.CreatedAt, e.UpdatedAt)
	return translate(err)
}

// GetEvent returns an event with its current seat count.
func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	q := `SELECT ` + eventCols + `, ` + seatCountCol + ` FROM events e WHERE e.id = ?`
	e, err := scanEvent(s.db.QueryRowContext(ctx, s.dialect.Rebind(q), id), true)
	return e, translate(err)
}

// ListEvents returns published, non-cancelled events starting at or after
// f.From, soonest first.  Title and Location match case-insensitive
// substrings.
func (s *Store) ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	where := []string{"e.is_published = ?", "e.is_cancelled = ?", "e.starts_at >= ?"}
	args := []any{true, false, f.From}
	if f.Title != "" {
		where = append(where, "LOWER(e.title) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Title)+"%")
	}
	if f.Location != "" {
		where = append(where, "LOWER(e.location) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Location)+"%")
	}
	q := `SELECT ` + eventCols + `, ` + seatCountCol + `
	      FROM events e
	      WHERE ` + strings.Join(where, " AND ") + `
	      ORDER BY e.starts_at ASC, e.id ASC
	      LIMIT ? OFFSET ?`
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(q), args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	out := make([]model.Event, 0, f.PageSize)
	for rows.Next() {
		e, err := scanEvent(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ListRegistrations returns every event userID has an attendee row on,
// paired with that row, ordered by event start.
func (s *Store) ListRegistrations(ctx context.Context, userID string) ([]model.Registration, error) {
	q := `SELECT ` + eventCols + `, ` + seatCountCol + `, ` + attendeeCols + `
	      FROM attendees a
	      JOIN events e ON e.id = a.event_id
	      WHERE a.user_id = ?
	      ORDER BY e.starts_at ASC, e.id ASC`
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(q), userID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	out := make([]model.Registration, 0)
	for rows.Next() {
		var r model.Registration
		edest, efinish := eventDest(&r.Event)
		adest, afinish := attendeeDest(&r.Attendee)
		dest := append(append(edest, &r.Event.AttendeeCount), adest...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		efinish()
		afinish()
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteEvent removes an event; attendee rows cascade.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM events WHERE id = ?`), id)
	return affectedOne(res, err)
}

// DueReminders returns live events starting in (from, to] whose reminder
// has not been sent.
func (s *Store) DueReminders(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	q := `SELECT ` + eventCols + `
	      FROM events e
	      WHERE e.is_published = ? AND e.is_cancelled = ? AND e.reminder_sent_at IS NULL
	        AND e.starts_at > ? AND e.starts_at <= ?
	      ORDER BY e.starts_at ASC`
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(q), true, false, from, to)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		e, err := scanEvent(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ClaimReminder marks the event's reminder as sent.  It reports false when
// another scanner got there first.
func (s *Store) ClaimReminder(ctx context.Context, id string, at time.Time) (bool, error) {
	const q = `UPDATE events SET reminder_sent_at = ? WHERE id = ? AND reminder_sent_at IS NULL`
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(q), at, id)
	if err != nil {
		return false, translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
