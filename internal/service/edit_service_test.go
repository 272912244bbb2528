package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventsphere/engine/internal/model"
	"github.com/eventsphere/engine/internal/repository"
)

func TestProposeSnapshotsOriginal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := env.newApprovedEvent(t, "org-1", 10, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))

	newTitle := "Renamed"
	req, err := env.svc.EditRequests.Propose(ctx, event.ID, "org-1", model.EventPatch{Title: &newTitle})
	require.NoError(t, err)
	assert.Equal(t, model.EditRequestStatusPending, req.Status)

	var snapshot model.Event
	require.NoError(t, json.Unmarshal(req.OriginalData, &snapshot))
	assert.Equal(t, event.Title, snapshot.Title)
	assert.Equal(t, event.TotalSeats, snapshot.TotalSeats)

	pending, err := env.svc.EditRequests.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)
}

func TestApproveEditAppliesPatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := env.newApprovedEvent(t, "org-1", 10, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))

	// Consume some seats so the capacity change has to respect them.
	_, err := env.svc.Registrations.Register(ctx, event.ID, "user-1")
	require.NoError(t, err)
	_, err = env.svc.Registrations.Register(ctx, event.ID, "user-2")
	require.NoError(t, err)

	newTitle := "Bigger Venue"
	newSeats := 3
	req, err := env.svc.EditRequests.Propose(ctx, event.ID, "org-1", model.EventPatch{
		Title:      &newTitle,
		TotalSeats: &newSeats,
	})
	require.NoError(t, err)

	processed, err := env.svc.EditRequests.Process(ctx, req.ID, model.ProcessEditRequest{
		Decision: model.EditRequestStatusApproved,
		Notes:    "ok",
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, model.EditRequestStatusApproved, processed.Status)
	assert.Equal(t, "admin-1", processed.ProcessedBy)
	require.NotNil(t, processed.ProcessedAt)

	got, err := env.svc.Events.Get(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bigger Venue", got.Title)
	assert.Equal(t, 3, got.TotalSeats)
	// 2 of the 3 seats are already consumed.
	assert.Equal(t, 1, got.SeatsAvailable)
	// Fields not in the patch are untouched.
	assert.Equal(t, event.Venue, got.Venue)

	pending, err := env.svc.EditRequests.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRejectEditLeavesEventUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := env.newApprovedEvent(t, "org-1", 10, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))

	newTitle := "Should Not Apply"
	req, err := env.svc.EditRequests.Propose(ctx, event.ID, "org-1", model.EventPatch{Title: &newTitle})
	require.NoError(t, err)

	processed, err := env.svc.EditRequests.Process(ctx, req.ID, model.ProcessEditRequest{
		Decision: model.EditRequestStatusRejected,
		Notes:    "venue conflict",
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, model.EditRequestStatusRejected, processed.Status)
	assert.Equal(t, "venue conflict", processed.AdminNotes)

	got, err := env.svc.Events.Get(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, event.Title, got.Title)
	assert.Equal(t, event.Version, got.Version)
}

// flakyEventRepo fails Update on demand to exercise the partial-failure
// paths.
type flakyEventRepo struct {
	repository.EventRepository
	failUpdate bool
}

func (f *flakyEventRepo) Update(ctx context.Context, e *model.Event) error {
	if f.failUpdate {
		return errors.New("storage offline")
	}
	return f.EventRepository.Update(ctx, e)
}

func TestApplyFailureLeavesRequestPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := env.newApprovedEvent(t, "org-1", 10, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))

	newTitle := "Renamed"
	req, err := env.svc.EditRequests.Propose(ctx, event.ID, "org-1", model.EventPatch{Title: &newTitle})
	require.NoError(t, err)

	flaky := &flakyEventRepo{EventRepository: env.store.Events, failUpdate: true}
	env.store.Events = flaky

	// The diff could not be applied, so the decision must not be
	// recorded: an APPROVED request whose patch never landed would be
	// unrecoverable.
	_, err = env.svc.EditRequests.Process(ctx, req.ID, model.ProcessEditRequest{
		Decision: model.EditRequestStatusApproved,
	}, "admin-1")
	require.Error(t, err)

	stored, err := env.store.EditRequests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EditRequestStatusPending, stored.Status)

	got, err := env.svc.Events.Get(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, event.Title, got.Title)

	// Reprocessing after storage recovers applies the patch and records
	// the decision.
	flaky.failUpdate = false
	processed, err := env.svc.EditRequests.Process(ctx, req.ID, model.ProcessEditRequest{
		Decision: model.EditRequestStatusApproved,
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, model.EditRequestStatusApproved, processed.Status)

	got, _ = env.svc.Events.Get(ctx, event.ID)
	assert.Equal(t, "Renamed", got.Title)
}

func TestProcessEditValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.EditRequests.Process(ctx, "whatever", model.ProcessEditRequest{Decision: "MAYBE"}, "admin-1")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = env.svc.EditRequests.Process(ctx, "missing", model.ProcessEditRequest{Decision: model.EditRequestStatusApproved}, "admin-1")
	assert.ErrorIs(t, err, model.ErrEditRequestNotFound)
}

func TestShrinkBelowConsumedClampsToZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := env.newApprovedEvent(t, "org-1", 3, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))

	for _, u := range []string{"user-1", "user-2"} {
		_, err := env.svc.Registrations.Register(ctx, event.ID, u)
		require.NoError(t, err)
	}

	one := 1
	req, err := env.svc.EditRequests.Propose(ctx, event.ID, "org-1", model.EventPatch{TotalSeats: &one})
	require.NoError(t, err)
	_, err = env.svc.EditRequests.Process(ctx, req.ID, model.ProcessEditRequest{Decision: model.EditRequestStatusApproved}, "admin-1")
	require.NoError(t, err)

	got, err := env.svc.Events.Get(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalSeats)
	assert.Equal(t, 0, got.SeatsAvailable)

	// Existing registrations survive the shrink; new ones are shut out.
	_, err = env.svc.Registrations.Register(ctx, event.ID, "user-3")
	assert.ErrorIs(t, err, model.ErrEventFull)
}
