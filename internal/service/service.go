// Package service implements the engine's business logic: the event
// approval lifecycle, seat inventory, registration ledger, attendance
// token protocol, and the post-approval edit workflow.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eventsphere/engine/internal/model"
	"github.com/eventsphere/engine/internal/notify"
	"github.com/eventsphere/engine/internal/repository"
	"github.com/eventsphere/engine/internal/token"
)

// Options carries the domain tunables shared by the services.
type Options struct {
	// GraceWindow is how long past an event's end time check-in
	// tokens remain valid.
	GraceWindow time.Duration
	// SeatRetries bounds the optimistic retry loop on event mutations.
	SeatRetries int
}

// Services bundles the wired service layer.
type Services struct {
	Events        *EventService
	Registrations *RegistrationService
	Attendance    *AttendanceService
	EditRequests  *EditRequestService
}

// New wires all services over one store, token store, and notifier.
func New(store *repository.Store, tokens token.Store, notifier notify.Notifier, log *logrus.Logger, opts Options) *Services {
	if opts.SeatRetries <= 0 {
		opts.SeatRetries = 3
	}
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = 2 * time.Hour
	}

	seats := &SeatInventory{events: store.Events, retries: opts.SeatRetries}
	return &Services{
		Events:        &EventService{store: store, seats: seats, notifier: notifier, log: log},
		Registrations: &RegistrationService{store: store, seats: seats, notifier: notifier, log: log},
		Attendance:    &AttendanceService{store: store, tokens: tokens, notifier: notifier, log: log, grace: opts.GraceWindow},
		EditRequests:  &EditRequestService{store: store, seats: seats, notifier: notifier, log: log},
	}
}

// updateEvent is the optimistic transaction helper: it loads the event,
// lets fn mutate the copy, and writes it back, retrying the whole
// read-compute-write cycle on version conflict up to the retry budget.
// fn returns false to skip the write (the decision not to change is
// still made against a fresh read). After the budget is exhausted the
// conflict surfaces as model.ErrConcurrentModification.
func updateEvent(ctx context.Context, events repository.EventRepository, retries int, eventID string, fn func(*model.Event) (bool, error)) (*model.Event, error) {
	for attempt := 0; attempt <= retries; attempt++ {
		e, err := events.GetByID(ctx, eventID)
		if err != nil {
			return nil, err
		}
		changed, err := fn(e)
		if err != nil {
			return nil, err
		}
		if !changed {
			return e, nil
		}
		err = events.Update(ctx, e)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, model.ErrConcurrentModification
}
