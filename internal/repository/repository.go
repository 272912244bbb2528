// Package repository defines the persistence ports for the engine and
// implements them for PostgreSQL (pgx, no ORM) and in-memory storage.
package repository

import (
	"context"
	"errors"

	"github.com/eventsphere/engine/internal/model"
)

// ErrVersionConflict is returned by optimistic-lock-aware updates when
// the stored version no longer matches the caller's copy. Callers are
// expected to re-read and retry.
var ErrVersionConflict = errors.New("version conflict")

// EventRepository handles persistence for events. Update is
// optimistic-lock-aware: it writes only if the stored version matches
// the caller's copy, then bumps the version.
type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	List(ctx context.Context, status model.EventStatus) ([]model.Event, error)
	Update(ctx context.Context, event *model.Event) error
}

// RegistrationRepository handles persistence for registrations.
type RegistrationRepository interface {
	Create(ctx context.Context, reg *model.Registration) error
	GetByID(ctx context.Context, id string) (*model.Registration, error)
	// GetActiveByEventAndUser returns the single non-cancelled
	// registration for the pair, or model.ErrRegistrationNotFound.
	GetActiveByEventAndUser(ctx context.Context, eventID, userID string) (*model.Registration, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	ListByUser(ctx context.Context, userID string) ([]model.Registration, error)
	UpdateStatus(ctx context.Context, id string, status model.RegistrationStatus) error
}

// AttendanceRepository handles persistence for attendance records.
type AttendanceRepository interface {
	Create(ctx context.Context, rec *model.AttendanceRecord) error
	GetByEventAndUser(ctx context.Context, eventID, userID string) (*model.AttendanceRecord, error)
	// ListByEvent returns records newest first.
	ListByEvent(ctx context.Context, eventID string) ([]model.AttendanceRecord, error)
}

// EditRequestRepository handles persistence for event edit requests.
type EditRequestRepository interface {
	Create(ctx context.Context, req *model.EventEditRequest) error
	GetByID(ctx context.Context, id string) (*model.EventEditRequest, error)
	ListPending(ctx context.Context) ([]model.EventEditRequest, error)
	Update(ctx context.Context, req *model.EventEditRequest) error
}

// Store bundles the four persistence ports so the service layer takes
// one dependency.
type Store struct {
	Events        EventRepository
	Registrations RegistrationRepository
	Attendance    AttendanceRepository
	EditRequests  EditRequestRepository
}
