package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eventsphere/engine/internal/model"
	"github.com/eventsphere/engine/internal/notify"
	"github.com/eventsphere/engine/internal/repository"
)

// EventService owns event CRUD and the approval lifecycle
// DRAFT → PENDING_APPROVAL → {APPROVED, REJECTED}.
type EventService struct {
	store    *repository.Store
	seats    *SeatInventory
	notifier notify.Notifier
	log      *logrus.Logger
}

// Create validates the request and stores a new DRAFT event with a full
// seat inventory.
func (s *EventService) Create(ctx context.Context, req model.CreateEventRequest, organizerID string) (*model.Event, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || organizerID == "" {
		return nil, model.ErrInvalidInput
	}
	if req.TotalSeats < 0 {
		return nil, model.ErrInvalidInput
	}
	if !req.EndTime.IsZero() && !req.StartTime.IsZero() && req.EndTime.Before(req.StartTime) {
		return nil, model.ErrInvalidInput
	}

	now := time.Now().UTC()
	event := &model.Event{
		ID:             uuid.New().String(),
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		Venue:          req.Venue,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		TotalSeats:     req.TotalSeats,
		SeatsAvailable: req.TotalSeats,
		Status:         model.EventStatusDraft,
		OrganizerID:    organizerID,
		Version:        0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Events.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// Get returns a single event.
func (s *EventService) Get(ctx context.Context, id string) (*model.Event, error) {
	return s.store.Events.GetByID(ctx, id)
}

// List returns events, optionally filtered by status.
func (s *EventService) List(ctx context.Context, status model.EventStatus) ([]model.Event, error) {
	return s.store.Events.List(ctx, status)
}

// Update mutates a not-yet-approved event directly. The request carries
// the version the caller read; a mismatch is surfaced as a concurrent
// modification rather than silently overwriting. Approved events are
// locked: their fields only change through the edit request workflow.
func (s *EventService) Update(ctx context.Context, id string, req model.UpdateEventRequest, requesterID string) (*model.Event, error) {
	event, err := s.store.Events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != requesterID {
		return nil, model.ErrForbidden
	}
	if event.Status == model.EventStatusApproved {
		return nil, model.ErrEventLocked
	}
	if event.Version != req.Version {
		return nil, model.ErrConcurrentModification
	}

	event.Title = strings.TrimSpace(req.Title)
	event.Description = req.Description
	event.Category = req.Category
	event.Venue = req.Venue
	event.StartTime = req.StartTime
	event.EndTime = req.EndTime
	resize(event, req.TotalSeats)

	if err := s.store.Events.Update(ctx, event); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, model.ErrConcurrentModification
		}
		return nil, err
	}
	return event, nil
}

// SubmitForApproval moves the requester's own event into
// PENDING_APPROVAL. Only the owning organizer may submit.
func (s *EventService) SubmitForApproval(ctx context.Context, eventID, requesterID string) error {
	event, err := s.store.Events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if event.OrganizerID != requesterID {
		return model.ErrForbidden
	}

	_, err = updateEvent(ctx, s.store.Events, s.seats.retries, eventID, func(e *model.Event) (bool, error) {
		if e.Status == model.EventStatusPendingApproval {
			return false, nil
		}
		e.Status = model.EventStatusPendingApproval
		return true, nil
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(ctx, notify.KindEventSubmitted, map[string]string{
		"event_id": eventID, "organizer_id": requesterID,
	})
	return nil
}

// Approve marks the event APPROVED, opening it for registration.
// Approving a non-pending event overwrites its status; the stricter
// pending-only guard is deliberately not enforced here.
func (s *EventService) Approve(ctx context.Context, eventID string) error {
	return s.decide(ctx, eventID, model.EventStatusApproved)
}

// Reject marks the event REJECTED. The organizer may revise and
// resubmit.
func (s *EventService) Reject(ctx context.Context, eventID string) error {
	return s.decide(ctx, eventID, model.EventStatusRejected)
}

func (s *EventService) decide(ctx context.Context, eventID string, status model.EventStatus) error {
	_, err := updateEvent(ctx, s.store.Events, s.seats.retries, eventID, func(e *model.Event) (bool, error) {
		if e.Status == status {
			return false, nil
		}
		e.Status = status
		return true, nil
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(ctx, notify.KindEventDecided, map[string]string{
		"event_id": eventID, "status": string(status),
	})
	return nil
}
