package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eventsphere/engine/internal/model"
	"github.com/eventsphere/engine/internal/notify"
	"github.com/eventsphere/engine/internal/repository"
	"github.com/eventsphere/engine/internal/token"
)

// AttendanceService issues single-use check-in tokens and converts a
// presented token (or an organizer's manual override) into exactly one
// attendance record per (user, event).
type AttendanceService struct {
	store    *repository.Store
	tokens   token.Store
	notifier notify.Notifier
	log      *logrus.Logger
	grace    time.Duration
}

// IssueToken creates a fresh check-in token for the user and event,
// valid until the event's end time plus the grace window. Issuing a new
// token replaces — and thereby revokes — any previous token for the
// same (user, event) pair.
func (s *AttendanceService) IssueToken(ctx context.Context, userID, eventID string) (string, error) {
	event, err := s.store.Events.GetByID(ctx, eventID)
	if err != nil {
		return "", err
	}

	endsAt, ok := event.EndsAt()
	if !ok {
		return "", model.ErrEventEndTimeUndefined
	}
	expiresAt := endsAt.Add(s.grace)
	if time.Now().After(expiresAt) {
		return "", model.ErrEventAlreadyEnded
	}

	tok, err := token.New()
	if err != nil {
		return "", err
	}
	rec := token.Record{
		Token:     tok,
		UserID:    userID,
		EventID:   eventID,
		ExpiresAt: expiresAt,
	}
	if err := s.tokens.Put(ctx, rec); err != nil {
		return "", err
	}
	return tok, nil
}

// Mark records attendance for the event on behalf of its organizer.
// The participant is resolved either by consuming a presented token
// (method QR) or from an explicit user id (method MANUAL). Marking the
// same participant twice returns the existing record unchanged.
func (s *AttendanceService) Mark(ctx context.Context, organizerID, eventID string, req model.MarkAttendanceRequest) (*model.AttendanceRecord, error) {
	event, err := s.store.Events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != organizerID {
		return nil, model.ErrForbidden
	}

	var userID string
	var method model.AttendanceMethod
	switch {
	case req.Token != "":
		userID, err = s.consumeToken(ctx, req.Token, eventID)
		if err != nil {
			return nil, err
		}
		method = model.AttendanceMethodQR
	case req.UserID != "":
		userID = req.UserID
		method = model.AttendanceMethodManual
	default:
		return nil, model.ErrInvalidInput
	}

	// Idempotence: a participant is marked at most once per event.
	if existing, err := s.store.Attendance.GetByEventAndUser(ctx, eventID, userID); err == nil {
		return existing, nil
	} else if !errors.Is(err, model.ErrAttendanceNotFound) {
		return nil, err
	}

	rec := &model.AttendanceRecord{
		ID:       uuid.New().String(),
		UserID:   userID,
		EventID:  eventID,
		Method:   method,
		MarkedAt: time.Now().UTC(),
	}
	if err := s.store.Attendance.Create(ctx, rec); err != nil {
		return nil, err
	}

	// Flip a confirmed registration to ATTENDED. A walk-in without a
	// registration still gets an attendance record.
	if reg, err := s.store.Registrations.GetActiveByEventAndUser(ctx, eventID, userID); err == nil {
		if reg.Status == model.RegistrationStatusConfirmed {
			if err := s.store.Registrations.UpdateStatus(ctx, reg.ID, model.RegistrationStatusAttended); err != nil {
				s.log.WithError(err).WithField("registration_id", reg.ID).
					Warn("mark registration attended")
			}
		}
	} else if !errors.Is(err, model.ErrRegistrationNotFound) {
		return nil, err
	}

	s.notifier.Notify(ctx, notify.KindAttendanceMarked, map[string]string{
		"event_id": eventID, "user_id": userID, "method": string(method),
	})
	return rec, nil
}

// consumeToken resolves and single-use-consumes a presented token,
// returning the user it was issued to. The (user, event) binding is
// enforced by server-side lookup: a token issued for another event is
// invalid here no matter who presents it.
func (s *AttendanceService) consumeToken(ctx context.Context, tok, eventID string) (string, error) {
	rec, err := s.tokens.GetByToken(ctx, tok)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return "", model.ErrTokenInvalid
		}
		return "", err
	}
	if rec.EventID != eventID {
		return "", model.ErrTokenInvalid
	}
	if rec.Used {
		return "", model.ErrTokenAlreadyUsed
	}
	if time.Now().After(rec.ExpiresAt) {
		// Purge the dead entry; expiry is enforced lazily here rather
		// than by a background sweep.
		if delErr := s.tokens.Delete(ctx, rec.UserID, rec.EventID); delErr != nil {
			s.log.WithError(delErr).Warn("purge expired token")
		}
		return "", model.ErrTokenExpired
	}
	// The store's consume is the atomic step: whoever loses the race
	// between the read above and this write gets already-used here.
	if err := s.tokens.Consume(ctx, *rec); err != nil {
		switch {
		case errors.Is(err, token.ErrAlreadyUsed):
			return "", model.ErrTokenAlreadyUsed
		case errors.Is(err, token.ErrNotFound):
			return "", model.ErrTokenInvalid
		}
		return "", err
	}
	return rec.UserID, nil
}

// Logs returns the event's attendance records, newest first. Only the
// owning organizer may read them.
func (s *AttendanceService) Logs(ctx context.Context, organizerID, eventID string) ([]model.AttendanceRecord, error) {
	event, err := s.store.Events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != organizerID {
		return nil, model.ErrForbidden
	}
	return s.store.Attendance.ListByEvent(ctx, eventID)
}
