package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/eventsphere/engine/internal/model"
	"github.com/eventsphere/engine/internal/notify"
	"github.com/eventsphere/engine/internal/repository"
	"github.com/eventsphere/engine/internal/token"
)

type testEnv struct {
	svc    *Services
	store  *repository.Store
	tokens *token.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	store := repository.NewMemoryStore()
	tokens := token.NewMemoryStore()
	svc := New(store, tokens, &notify.LogNotifier{Log: log}, log, Options{})
	return &testEnv{svc: svc, store: store, tokens: tokens}
}

// newApprovedEvent creates an event for the organizer and moves it
// straight to APPROVED.
func (env *testEnv) newApprovedEvent(t *testing.T, organizerID string, seats int, start, end time.Time) *model.Event {
	t.Helper()
	ctx := context.Background()

	event, err := env.svc.Events.Create(ctx, model.CreateEventRequest{
		Title:      "Go Conference",
		Venue:      "Hall A",
		StartTime:  start,
		EndTime:    end,
		TotalSeats: seats,
	}, organizerID)
	require.NoError(t, err)

	require.NoError(t, env.svc.Events.SubmitForApproval(ctx, event.ID, organizerID))
	require.NoError(t, env.svc.Events.Approve(ctx, event.ID))

	event, err = env.svc.Events.Get(ctx, event.ID)
	require.NoError(t, err)
	return event
}
