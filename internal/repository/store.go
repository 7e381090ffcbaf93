package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/community-events/internal/database"
	"github.com/iliyamo/community-events/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the same statement
// helpers serve pooled reads and transactional work.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is the unit of work handed to InTx callbacks.  Every method runs on
// the same database transaction; rows read through LockEvent and
// LockAttendee stay locked until the callback returns.
type Tx interface {
	// LockEvent reads the event row with an exclusive row lock.  All
	// seat-affecting writes for one event serialize on this lock.
	LockEvent(ctx context.Context, eventID string) (*model.Event, error)
	// CountSeats counts attendee rows in a seat-holding status.
	CountSeats(ctx context.Context, eventID string) (int, error)
	// FindAttendee locks and returns the (event, user) attendee row.
	FindAttendee(ctx context.Context, eventID, userID string) (*model.Attendee, error)
	// LockAttendee locks and returns an attendee row by id.
	LockAttendee(ctx context.Context, attendeeID string) (*model.Attendee, error)
	InsertAttendee(ctx context.Context, a *model.Attendee) error
	UpdateAttendee(ctx context.Context, a *model.Attendee) error
	DeleteAttendee(ctx context.Context, attendeeID string) error
	UpdateEvent(ctx context.Context, e *model.Event) error
}

// Store owns events and their attendees.  The two tables are written
// together under one transaction so they share a repository.
type Store struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewStore returns a Store bound to db speaking the given dialect.
func NewStore(db *sql.DB, d database.Dialect) *Store { return &Store{db: db, dialect: d} }

// DB exposes the underlying pool for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// InTx runs fn inside a READ COMMITTED transaction.  A nil return commits,
// anything else rolls back and is returned translated.  Combined with the
// event row lock, read committed guarantees the seat count taken after
// LockEvent sees every registration committed before the lock was granted.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return translate(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(ctx, &sqlTx{q: tx, d: s.dialect}); err != nil {
		return translate(err)
	}
	if err := tx.Commit(); err != nil {
		return translate(fmt.Errorf("commit: %w", err))
	}
	committed = true
	return nil
}

// sqlTx implements Tx on a *sql.Tx.
type sqlTx struct {
	q querier
	d database.Dialect
}

func (t *sqlTx) LockEvent(ctx context.Context, eventID string) (*model.Event, error) {
	q := `SELECT ` + eventCols + ` FROM events e WHERE e.id = ? FOR UPDATE`
	e, err := scanEvent(t.q.QueryRowContext(ctx, t.d.Rebind(q), eventID), false)
	return e, translate(err)
}

func (t *sqlTx) CountSeats(ctx context.Context, eventID string) (int, error) {
	return countSeats(ctx, t.q, t.d, eventID)
}

func (t *sqlTx) FindAttendee(ctx context.Context, eventID, userID string) (*model.Attendee, error) {
	q := `SELECT ` + attendeeCols + ` FROM attendees a WHERE a.event_id = ? AND a.user_id = ? FOR UPDATE`
	a, err := scanAttendee(t.q.QueryRowContext(ctx, t.d.Rebind(q), eventID, userID))
	return a, translate(err)
}

func (t *sqlTx) LockAttendee(ctx context.Context, attendeeID string) (*model.Attendee, error) {
	q := `SELECT ` + attendeeCols + ` FROM attendees a WHERE a.id = ? FOR UPDATE`
	a, err := scanAttendee(t.q.QueryRowContext(ctx, t.d.Rebind(q), attendeeID))
	return a, translate(err)
}

func (t *sqlTx) InsertAttendee(ctx context.Context, a *model.Attendee) error {
	const q = `INSERT INTO attendees (id, event_id, user_id, status, notes, checked_in_at, registered_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := t.q.ExecContext(ctx, t.d.Rebind(q),
		a.ID, a.EventID, a.UserID, string(a.Status), a.Notes, a.CheckedInAt, a.RegisteredAt, a.UpdatedAt)
	return translate(err)
}

func (t *sqlTx) UpdateAttendee(ctx context.Context, a *model.Attendee) error {
	const q = `UPDATE attendees SET status = ?, notes = ?, checked_in_at = ?, updated_at = ? WHERE id = ?`
	res, err := t.q.ExecContext(ctx, t.d.Rebind(q), string(a.Status), a.Notes, a.CheckedInAt, a.UpdatedAt, a.ID)
	return affectedOne(res, err)
}

func (t *sqlTx) DeleteAttendee(ctx context.Context, attendeeID string) error {
	res, err := t.q.ExecContext(ctx, t.d.Rebind(`DELETE FROM attendees WHERE id = ?`), attendeeID)
	return affectedOne(res, err)
}

func (t *sqlTx) UpdateEvent(ctx context.Context, e *model.Event) error {
	const q = `UPDATE events SET title = ?, description = ?, location = ?, capacity = ?, starts_at = ?, ends_at = ?,
	                  is_published = ?, is_cancelled = ?, updated_at = ?
	           WHERE id = ?`
	res, err := t.q.ExecContext(ctx, t.d.Rebind(q),
		e.Title, e.Description, e.Location, e.Capacity, e.StartsAt, e.EndsAt,
		e.IsPublished, e.IsCancelled, e.UpdatedAt, e.ID)
	return affectedOne(res, err)
}

// affectedOne turns a statement that matched no row into ErrNotFound.  The
// MySQL DSN sets clientFoundRows so unchanged rows still count as matched.
func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
