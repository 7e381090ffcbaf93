package model

import (
	"strings"
	"time"
)

// Event is a scheduled gathering owned by an organizer.  Capacity 0 means
// unlimited.  AttendeeCount is derived (seat-holding attendees) and only
// populated by reads that join it.
type Event struct {
	ID            string     `json:"id"`                    // events.id
	OrganizerID   string     `json:"organizer_id"`          // events.organizer_id
	Title         string     `json:"title"`                 // events.title
	Description   *string    `json:"description,omitempty"` // events.description (nullable)
	Location      *string    `json:"location,omitempty"`    // events.location (nullable)
	Capacity      int        `json:"capacity"`              // events.capacity
	StartsAt      time.Time  `json:"starts_at"`             // events.starts_at
	EndsAt        *time.Time `json:"ends_at,omitempty"`     // events.ends_at (nullable)
	IsPublished   bool       `json:"is_published"`          // events.is_published
	IsCancelled   bool       `json:"is_cancelled"`          // events.is_cancelled
	AttendeeCount int        `json:"attendee_count"`
	CreatedAt     time.Time  `json:"created_at"` // events.created_at
	UpdatedAt     time.Time  `json:"updated_at"` // events.updated_at
}

// Unlimited reports whether the event accepts any number of attendees.
func (e *Event) Unlimited() bool { return e.Capacity == 0 }

// HasStarted reports whether the event start is at or before now.
func (e *Event) HasStarted(now time.Time) bool { return !e.StartsAt.After(now) }

// Remaining returns the number of free seats, or -1 when unlimited.
func (e *Event) Remaining() int {
	if e.Unlimited() {
		return -1
	}
	if r := e.Capacity - e.AttendeeCount; r > 0 {
		return r
	}
	return 0
}

// EventInput is the payload for creating an event.
type EventInput struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	Capacity    int        `json:"capacity"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
	IsPublished bool       `json:"is_published"`
}

// EventPatch is a partial update.  Absent fields are left untouched; the
// nullable fields accept an explicit null to clear them.
type EventPatch struct {
	Title       Optional[string]     `json:"title"`
	Description Optional[*string]    `json:"description"`
	Location    Optional[*string]    `json:"location"`
	Capacity    Optional[int]        `json:"capacity"`
	StartsAt    Optional[time.Time]  `json:"starts_at"`
	EndsAt      Optional[*time.Time] `json:"ends_at"`
	IsPublished Optional[bool]       `json:"is_published"`
}

// Empty reports whether no field was supplied.
func (p EventPatch) Empty() bool {
	return !p.Title.Set && !p.Description.Set && !p.Location.Set && !p.Capacity.Set &&
		!p.StartsAt.Set && !p.EndsAt.Set && !p.IsPublished.Set
}

// NullField returns the JSON name of the first field that cannot be
// cleared but was sent as null, or "".
func (p EventPatch) NullField() string {
	switch {
	case p.Title.Null:
		return "title"
	case p.Capacity.Null:
		return "capacity"
	case p.StartsAt.Null:
		return "starts_at"
	case p.IsPublished.Null:
		return "is_published"
	}
	return ""
}

// Apply copies every supplied field onto e.
func (p EventPatch) Apply(e *Event) {
	p.Title.ApplyTo(&e.Title)
	p.Description.ApplyTo(&e.Description)
	p.Location.ApplyTo(&e.Location)
	p.Capacity.ApplyTo(&e.Capacity)
	p.StartsAt.ApplyTo(&e.StartsAt)
	p.EndsAt.ApplyTo(&e.EndsAt)
	p.IsPublished.ApplyTo(&e.IsPublished)
}

// Listing page sizes.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// EventFilter narrows public event listings.
type EventFilter struct {
	From     time.Time // only events starting at or after From
	Title    string    // case-insensitive substring of the title
	Location string    // case-insensitive substring of the location
	Page     int       // 1-based
	PageSize int
}

// Normalize fills defaults: first page, DefaultPageSize capped at
// MaxPageSize, and now as From.
func (f EventFilter) Normalize(now time.Time) EventFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	if f.From.IsZero() {
		f.From = now
	}
	f.Title = strings.TrimSpace(f.Title)
	f.Location = strings.TrimSpace(f.Location)
	return f
}
