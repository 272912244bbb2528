package service

import (
	"context"

	"github.com/eventsphere/engine/internal/model"
	"github.com/eventsphere/engine/internal/repository"
)

// SeatInventory owns the (totalSeats, seatsAvailable) pair of each
// event. All mutations go through the optimistic retry helper, so
// concurrent reservations for the same event serialize on the event's
// version counter and seatsAvailable can neither go negative nor exceed
// totalSeats.
type SeatInventory struct {
	events  repository.EventRepository
	retries int
}

// TryReserve atomically consumes one seat if any is available.
// reserved is false when the event is sold out — an expected outcome,
// not an error. A version conflict that survives the retry budget is
// returned as model.ErrConcurrentModification.
func (s *SeatInventory) TryReserve(ctx context.Context, eventID string) (reserved bool, err error) {
	_, err = updateEvent(ctx, s.events, s.retries, eventID, func(e *model.Event) (bool, error) {
		if e.SeatsAvailable <= 0 {
			reserved = false
			return false, nil
		}
		e.SeatsAvailable--
		reserved = true
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return reserved, nil
}

// Release returns one seat, clamped to totalSeats so a duplicate
// release from a retried cancellation cannot overshoot capacity.
func (s *SeatInventory) Release(ctx context.Context, eventID string) error {
	_, err := updateEvent(ctx, s.events, s.retries, eventID, func(e *model.Event) (bool, error) {
		if e.SeatsAvailable >= e.TotalSeats {
			return false, nil
		}
		e.SeatsAvailable++
		return true, nil
	})
	return err
}

// Resize changes the event's capacity, re-deriving seatsAvailable from
// the seats already consumed.
func (s *SeatInventory) Resize(ctx context.Context, eventID string, newTotal int) error {
	_, err := updateEvent(ctx, s.events, s.retries, eventID, func(e *model.Event) (bool, error) {
		resize(e, newTotal)
		return true, nil
	})
	return err
}

// resize recomputes the seat pair for a new capacity: already-consumed
// seats are never revoked, so seatsAvailable is what remains of the new
// total after them, clamped to [0, newTotal].
func resize(e *model.Event, newTotal int) {
	consumed := e.ConsumedSeats()
	avail := newTotal - consumed
	if avail < 0 {
		avail = 0
	}
	if avail > newTotal {
		avail = newTotal
	}
	e.TotalSeats = newTotal
	e.SeatsAvailable = avail
}
