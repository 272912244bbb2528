package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eventsphere/engine/internal/model"
	"github.com/eventsphere/engine/internal/notify"
	"github.com/eventsphere/engine/internal/repository"
)

// EditRequestService lets organizers propose changes to an approved
// event without mutating it directly. The live event only changes when
// an admin approves the request, and the diff is applied against the
// event's state at approval time.
type EditRequestService struct {
	store    *repository.Store
	seats    *SeatInventory
	notifier notify.Notifier
	log      *logrus.Logger
}

// Propose snapshots the event's current fields for audit and stores the
// requested changes as a PENDING edit request.
func (s *EditRequestService) Propose(ctx context.Context, eventID, requesterID string, patch model.EventPatch) (*model.EventEditRequest, error) {
	if requesterID == "" {
		return nil, model.ErrInvalidInput
	}
	event, err := s.store.Events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	original, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("snapshot event: %w", err)
	}

	req := &model.EventEditRequest{
		ID:           uuid.New().String(),
		EventID:      eventID,
		RequesterID:  requesterID,
		OriginalData: original,
		Requested:    patch,
		Status:       model.EditRequestStatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.EditRequests.Create(ctx, req); err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notify.KindEditRequestCreated, map[string]string{
		"request_id": req.ID, "event_id": eventID, "requester_id": requesterID,
	})
	return req, nil
}

// Process records the admin decision. On approval each present field of
// the patch is applied to the live event, with a capacity change going
// through the seat resize so already-consumed seats are preserved. On
// rejection only the decision is recorded and the event is untouched.
func (s *EditRequestService) Process(ctx context.Context, requestID string, decision model.ProcessEditRequest, adminID string) (*model.EventEditRequest, error) {
	if decision.Decision != model.EditRequestStatusApproved && decision.Decision != model.EditRequestStatusRejected {
		return nil, model.ErrInvalidInput
	}

	req, err := s.store.EditRequests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	// Apply the diff before recording the decision: a failed apply must
	// leave the request PENDING, not approved-but-unapplied. A request
	// whose apply succeeded but whose decision write failed stays
	// PENDING and reprocessing reapplies the same absolute values.
	if decision.Decision == model.EditRequestStatusApproved {
		if err := s.applyPatch(ctx, req.EventID, req.Requested); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	req.Status = decision.Decision
	req.AdminNotes = decision.Notes
	req.ProcessedBy = adminID
	req.ProcessedAt = &now
	if err := s.store.EditRequests.Update(ctx, req); err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notify.KindEditRequestProcessed, map[string]string{
		"request_id": requestID, "decision": string(decision.Decision), "admin_id": adminID,
	})
	return req, nil
}

func (s *EditRequestService) applyPatch(ctx context.Context, eventID string, patch model.EventPatch) error {
	_, err := updateEvent(ctx, s.store.Events, s.seats.retries, eventID, func(e *model.Event) (bool, error) {
		if patch.Title != nil {
			e.Title = *patch.Title
		}
		if patch.Description != nil {
			e.Description = *patch.Description
		}
		if patch.Category != nil {
			e.Category = *patch.Category
		}
		if patch.Venue != nil {
			e.Venue = *patch.Venue
		}
		if patch.StartTime != nil {
			e.StartTime = *patch.StartTime
		}
		if patch.EndTime != nil {
			e.EndTime = *patch.EndTime
		}
		if patch.TotalSeats != nil && *patch.TotalSeats >= 0 {
			resize(e, *patch.TotalSeats)
		}
		return true, nil
	})
	return err
}

// ListPending returns the edit requests awaiting an admin decision,
// newest first.
func (s *EditRequestService) ListPending(ctx context.Context) ([]model.EventEditRequest, error) {
	return s.store.EditRequests.ListPending(ctx)
}
