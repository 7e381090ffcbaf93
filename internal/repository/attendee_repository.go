package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/community-events/internal/database"
	"github.com/iliyamo/community-events/internal/model"
)

// attendeeCols lists the attendees columns in scan order.  Queries alias
// the attendees table as a.
const attendeeCols = `a.id, a.event_id, a.user_id, a.status, a.notes, a.checked_in_at, a.registered_at, a.updated_at`

func attendeeDest(a *model.Attendee) ([]any, func()) {
	var notes sql.NullString
	var checkedIn sql.NullTime
	dest := []any{&a.ID, &a.EventID, &a.UserID, &a.Status, &notes, &checkedIn, &a.RegisteredAt, &a.UpdatedAt}
	return dest, func() {
		a.Notes = nullString(notes)
		a.CheckedInAt = nullTime(checkedIn)
	}
}

func scanAttendee(row scanner) (*model.Attendee, error) {
	var a model.Attendee
	dest, finish := attendeeDest(&a)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	finish()
	return &a, nil
}

func countSeats(ctx context.Context, q querier, d database.Dialect, eventID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		d.Rebind(`SELECT COUNT(*) FROM attendees WHERE event_id = ? AND status IN (`+seatStatusList()+`)`),
		eventID).Scan(&n)
	return n, translate(err)
}

// IsRegistered reports whether userID has an attendee row on eventID, in
// any status.
func (s *Store) IsRegistered(ctx context.Context, eventID, userID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT 1 FROM attendees WHERE event_id = ? AND user_id = ?`),
		eventID, userID).Scan(&one)
	switch err = translate(err); err {
	case nil:
		return true, nil
	case ErrNotFound:
		return false, nil
	}
	return false, err
}

// ListAttendees returns the attendees of eventID with their display name
// and email, earliest registration first.  A nil status returns every row.
func (s *Store) ListAttendees(ctx context.Context, eventID string, status *model.Status) ([]model.AttendeeView, error) {
	q := `SELECT ` + attendeeCols + `, u.display_name, u.email
	      FROM attendees a
	      JOIN users u ON u.id = a.user_id
	      WHERE a.event_id = ?`
	args := []any{eventID}
	if status != nil {
		q += ` AND a.status = ?`
		args = append(args, string(*status))
	}
	q += ` ORDER BY a.registered_at ASC, a.id ASC`
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(q), args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	out := make([]model.AttendeeView, 0)
	for rows.Next() {
		var v model.AttendeeView
		dest, finish := attendeeDest(&v.Attendee)
		if err := rows.Scan(append(dest, &v.DisplayName, &v.Email)...); err != nil {
			return nil, err
		}
		finish()
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetAttendee returns an attendee row by id.
func (s *Store) GetAttendee(ctx context.Context, id string) (*model.Attendee, error) {
	q := `SELECT ` + attendeeCols + ` FROM attendees a WHERE a.id = ?`
	a, err := scanAttendee(s.db.QueryRowContext(ctx, s.dialect.Rebind(q), id))
	return a, translate(err)
}

// CountSeats counts the seat-holding attendees of eventID outside any
// transaction.
func (s *Store) CountSeats(ctx context.Context, eventID string) (int, error) {
	return countSeats(ctx, s.db, s.dialect, eventID)
}
