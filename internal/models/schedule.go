package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/timeslot"
)

// Ref is an optional reference to a shared resource (room or instructor).
// An unassigned reference never participates in conflict matching, so two
// entries without a room can coexist at the same time.
type Ref struct {
	ID    string
	Valid bool
}

// Assigned builds a populated reference.
func Assigned(id string) Ref {
	return Ref{ID: id, Valid: true}
}

// Same reports whether both references are assigned to the same resource.
func (r Ref) Same(other Ref) bool {
	return r.Valid && other.Valid && r.ID == other.ID
}

// Scan implements sql.Scanner, mapping NULL to an unassigned reference.
func (r *Ref) Scan(value interface{}) error {
	if value == nil {
		*r = Ref{}
		return nil
	}
	switch v := value.(type) {
	case string:
		*r = Ref{ID: v, Valid: true}
	case []byte:
		*r = Ref{ID: string(v), Valid: true}
	default:
		return fmt.Errorf("scan Ref: unsupported type %T", value)
	}
	return nil
}

// Value implements driver.Valuer, mapping unassigned to NULL.
func (r Ref) Value() (driver.Value, error) {
	if !r.Valid {
		return nil, nil
	}
	return r.ID, nil
}

// MarshalJSON encodes unassigned references as null.
func (r Ref) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.ID)
}

// UnmarshalJSON accepts a string or null.
func (r *Ref) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Ref{}
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	*r = Ref{ID: id, Valid: true}
	return nil
}

// ScheduleEntry is one section meeting: a day, a time range and optional
// room/instructor assignments within a semester.
type ScheduleEntry struct {
	ID          string           `db:"id" json:"id"`
	SectionID   string           `db:"section_id" json:"section_id"`
	Semester    string           `db:"semester" json:"semester"`
	DayOfWeek   int              `db:"day_of_week" json:"day_of_week"`
	StartMinute timeslot.Minutes `db:"start_minute" json:"start_time"`
	EndMinute   timeslot.Minutes `db:"end_minute" json:"end_time"`
	RoomID      Ref              `db:"room_id" json:"room_id"`
	FacultyID   Ref              `db:"faculty_id" json:"faculty_id"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// ScheduleEntryFilter describes query params for listing entries.
type ScheduleEntryFilter struct {
	Semester  string
	DayOfWeek int
	SectionID string
}

// ConflictType names the shared resource that causes a conflict.
type ConflictType string

const (
	ConflictRoom    ConflictType = "room"
	ConflictFaculty ConflictType = "faculty"
	ConflictSection ConflictType = "section"
)

// ConflictReason explains one way a proposed entry collides with a
// persisted one.
type ConflictReason struct {
	Type               ConflictType `json:"type"`
	ConflictingEntryID string       `json:"conflicting_entry_id"`
	Message            string       `json:"message"`
}

// ConflictReport aggregates every reason found during one validation pass.
// An empty report means the proposal is acceptable.
type ConflictReport struct {
	Reasons []ConflictReason `json:"reasons"`
}

// Empty reports whether no conflicts were found.
func (r ConflictReport) Empty() bool {
	return len(r.Reasons) == 0
}

// ScheduleConflictError is returned when a proposed entry collides with
// persisted state. It carries the full report so callers can render every
// reason, not just the first.
type ScheduleConflictError struct {
	Report ConflictReport `json:"report"`
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if len(e.Report.Reasons) == 0 {
		return "schedule conflict"
	}
	return e.Report.Reasons[0].Message
}

// Pagination carries list metadata in the response envelope.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
