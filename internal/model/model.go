// Package model defines the core domain types for the event lifecycle
// and seat inventory engine.
package model

import (
	"encoding/json"
	"time"
)

// EventStatus is the approval state of an event.
type EventStatus string

const (
	EventStatusDraft           EventStatus = "DRAFT"
	EventStatusPendingApproval EventStatus = "PENDING_APPROVAL"
	EventStatusApproved        EventStatus = "APPROVED"
	EventStatusRejected        EventStatus = "REJECTED"
)

// RegistrationStatus is the state of a participant's registration.
type RegistrationStatus string

const (
	RegistrationStatusConfirmed  RegistrationStatus = "CONFIRMED"
	RegistrationStatusWaitlisted RegistrationStatus = "WAITLISTED"
	RegistrationStatusAttended   RegistrationStatus = "ATTENDED"
	RegistrationStatusCancelled  RegistrationStatus = "CANCELLED"
)

// AttendanceMethod records how attendance was verified.
type AttendanceMethod string

const (
	AttendanceMethodQR     AttendanceMethod = "QR"
	AttendanceMethodManual AttendanceMethod = "MANUAL"
)

// EditRequestStatus is the state of a post-approval edit request.
type EditRequestStatus string

const (
	EditRequestStatusPending  EditRequestStatus = "PENDING"
	EditRequestStatusApproved EditRequestStatus = "APPROVED"
	EditRequestStatusRejected EditRequestStatus = "REJECTED"
)

// Event represents a published or draft event with its seat inventory.
// SeatsAvailable only moves in lock-step with registration transitions
// that consume or release a seat; Version is the optimistic-lock counter
// checked on every write.
type Event struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Category       string      `json:"category"`
	Venue          string      `json:"venue"`
	StartTime      time.Time   `json:"start_time"`
	EndTime        time.Time   `json:"end_time"`
	TotalSeats     int         `json:"total_seats"`
	SeatsAvailable int         `json:"seats_available"`
	Status         EventStatus `json:"status"`
	OrganizerID    string      `json:"organizer_id"`
	Version        int64       `json:"version"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// ConsumedSeats returns the number of seats currently held by
// confirmed registrations.
func (e *Event) ConsumedSeats() int {
	return e.TotalSeats - e.SeatsAvailable
}

// EndsAt reports the event's end time. ok is false when the event has
// no resolvable end time, which blocks check-in token issuance.
func (e *Event) EndsAt() (t time.Time, ok bool) {
	if e.EndTime.IsZero() {
		return time.Time{}, false
	}
	return e.EndTime, true
}

// Registration represents a user's registration for an event.
// At most one non-cancelled registration exists per (user, event).
type Registration struct {
	ID           string             `json:"id"`
	EventID      string             `json:"event_id"`
	UserID       string             `json:"user_id"`
	Status       RegistrationStatus `json:"status"`
	RegisteredAt time.Time          `json:"registered_at"`
}

// Active reports whether the registration still counts against the
// one-per-(user,event) invariant.
func (r *Registration) Active() bool {
	return r.Status != RegistrationStatusCancelled
}

// AttendanceRecord is the single attendance mark for a (user, event)
// pair. A second marking attempt returns this record unchanged.
type AttendanceRecord struct {
	ID       string           `json:"id"`
	UserID   string           `json:"user_id"`
	EventID  string           `json:"event_id"`
	Method   AttendanceMethod `json:"method"`
	MarkedAt time.Time        `json:"marked_at"`
}

// EventPatch holds the requested field changes of an edit request.
// Nil fields are left untouched when the request is approved.
type EventPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Venue       *string    `json:"venue,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	TotalSeats  *int       `json:"total_seats,omitempty"`
}

// EventEditRequest is a proposed change to an already-approved event.
// OriginalData snapshots the event at proposal time for audit; the
// patch is applied to the live event only on approval.
type EventEditRequest struct {
	ID           string            `json:"id"`
	EventID      string            `json:"event_id"`
	RequesterID  string            `json:"requester_id"`
	OriginalData json.RawMessage   `json:"original_data"`
	Requested    EventPatch        `json:"requested"`
	Status       EditRequestStatus `json:"status"`
	AdminNotes   string            `json:"admin_notes,omitempty"`
	ProcessedBy  string            `json:"processed_by,omitempty"`
	ProcessedAt  *time.Time        `json:"processed_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// CreateEventRequest is the payload for creating a new draft event.
type CreateEventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Venue       string    `json:"venue"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	TotalSeats  int       `json:"total_seats"`
}

// UpdateEventRequest is the payload for directly updating a not-yet-approved
// event. Version must match the stored event or the update is rejected.
type UpdateEventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Venue       string    `json:"venue"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	TotalSeats  int       `json:"total_seats"`
	Version     int64     `json:"version"`
}

// MarkAttendanceRequest is the payload for an organizer check-in.
// Either Token (QR path) or UserID (manual override) must be set.
type MarkAttendanceRequest struct {
	Token  string `json:"token,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

// ProcessEditRequest is the admin decision payload for an edit request.
type ProcessEditRequest struct {
	Decision EditRequestStatus `json:"decision"`
	Notes    string            `json:"notes,omitempty"`
}

// ErrorResponse is the standard JSON error envelope. Code is a stable
// machine-readable identifier for the failed invariant.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
