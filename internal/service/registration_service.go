package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eventsphere/engine/internal/model"
	"github.com/eventsphere/engine/internal/notify"
	"github.com/eventsphere/engine/internal/repository"
)

// RegistrationService is the registration ledger: it enforces the
// one-registration-per-(user,event) invariant and drives the seat
// inventory from registration state transitions.
type RegistrationService struct {
	store    *repository.Store
	seats    *SeatInventory
	notifier notify.Notifier
	log      *logrus.Logger
}

// Register books one seat on an approved event for the user. The seat
// reservation and the registration insert form one logical transaction:
// if the insert fails after the seat was consumed, the seat is released
// again before the error is returned.
func (s *RegistrationService) Register(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	if eventID == "" || userID == "" {
		return nil, model.ErrInvalidInput
	}

	event, err := s.store.Events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status != model.EventStatusApproved {
		return nil, model.ErrEventNotApproved
	}

	if _, err := s.store.Registrations.GetActiveByEventAndUser(ctx, eventID, userID); err == nil {
		return nil, model.ErrAlreadyRegistered
	} else if !errors.Is(err, model.ErrRegistrationNotFound) {
		return nil, err
	}

	reserved, err := s.seats.TryReserve(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !reserved {
		return nil, model.ErrEventFull
	}

	reg := &model.Registration{
		ID:           uuid.New().String(),
		EventID:      eventID,
		UserID:       userID,
		Status:       model.RegistrationStatusConfirmed,
		RegisteredAt: time.Now().UTC(),
	}
	if err := s.store.Registrations.Create(ctx, reg); err != nil {
		// Compensate: the seat was consumed but the registration was
		// never written. Give it back before surfacing the error.
		if relErr := s.seats.Release(ctx, eventID); relErr != nil {
			s.log.WithError(relErr).WithField("event_id", eventID).
				Error("seat release after failed registration insert")
		}
		return nil, fmt.Errorf("create registration: %w", err)
	}

	s.notifier.Notify(ctx, notify.KindRegistrationCreated, map[string]string{
		"registration_id": reg.ID, "event_id": eventID, "user_id": userID,
	})
	return reg, nil
}

// Cancel marks the user's registration CANCELLED, releasing its seat if
// it held one. Cancelling an already-cancelled registration is a no-op
// success.
func (s *RegistrationService) Cancel(ctx context.Context, registrationID, userID string) error {
	reg, err := s.store.Registrations.GetByID(ctx, registrationID)
	if err != nil {
		return err
	}
	if reg.UserID != userID {
		return model.ErrRegistrationNotFound
	}
	if reg.Status == model.RegistrationStatusCancelled {
		return nil
	}

	// Record the cancellation before freeing the seat. The other order
	// opens a window where a concurrent registrant takes the freed seat
	// while this registration is still CONFIRMED, and a failed status
	// write then leaves confirmed registrations exceeding consumed seats.
	heldSeat := reg.Status == model.RegistrationStatusConfirmed
	if err := s.store.Registrations.UpdateStatus(ctx, registrationID, model.RegistrationStatusCancelled); err != nil {
		return fmt.Errorf("cancel registration: %w", err)
	}

	if heldSeat {
		if err := s.seats.Release(ctx, reg.EventID); err != nil {
			// The cancellation stands; an unreleased seat only
			// understates availability.
			s.log.WithError(err).WithField("event_id", reg.EventID).
				Error("seat release after cancellation")
		}
	}

	s.notifier.Notify(ctx, notify.KindRegistrationCancelled, map[string]string{
		"registration_id": registrationID, "event_id": reg.EventID, "user_id": userID,
	})
	return nil
}

// MarkAttended flips a confirmed registration to ATTENDED. Invoked by
// the attendance recorder, not by participants.
func (s *RegistrationService) MarkAttended(ctx context.Context, registrationID string) error {
	reg, err := s.store.Registrations.GetByID(ctx, registrationID)
	if err != nil {
		return err
	}
	if reg.Status != model.RegistrationStatusConfirmed {
		return nil
	}
	return s.store.Registrations.UpdateStatus(ctx, registrationID, model.RegistrationStatusAttended)
}

// ListForEvent returns an event's registrations, oldest first.
func (s *RegistrationService) ListForEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	if _, err := s.store.Events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.Registrations.ListByEvent(ctx, eventID)
}

// ListForUser returns a user's registrations, newest first.
func (s *RegistrationService) ListForUser(ctx context.Context, userID string) ([]model.Registration, error) {
	return s.store.Registrations.ListByUser(ctx, userID)
}

// ExportCSV renders an event's registrations as CSV for download.
func (s *RegistrationService) ExportCSV(ctx context.Context, eventID string) ([]byte, error) {
	event, err := s.store.Events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	regs, err := s.store.Registrations.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("RegistrationId,EventId,EventTitle,UserId,Status,RegisteredAt\n")
	for _, reg := range regs {
		sb.WriteString(reg.ID)
		sb.WriteByte(',')
		sb.WriteString(event.ID)
		sb.WriteByte(',')
		sb.WriteString(escapeCSV(event.Title))
		sb.WriteByte(',')
		sb.WriteString(escapeCSV(reg.UserID))
		sb.WriteByte(',')
		sb.WriteString(string(reg.Status))
		sb.WriteByte(',')
		sb.WriteString(reg.RegisteredAt.UTC().Format(time.RFC3339))
		sb.WriteByte('\n')
	}
	return []byte(sb.String()), nil
}

func escapeCSV(value string) string {
	v := strings.ReplaceAll(value, `"`, `""`)
	if strings.ContainsAny(v, ",\n\r") {
		return `"` + v + `"`
	}
	return v
}
