package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventsphere/engine/internal/model"
	"github.com/eventsphere/engine/internal/repository"
)

func TestRegisterConsumesSeat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := env.newApprovedEvent(t, "org-1", 2, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))

	reg, err := env.svc.Registrations.Register(ctx, event.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.RegistrationStatusConfirmed, reg.Status)

	got, err := env.svc.Events.Get(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SeatsAvailable)
}

func TestRegisterRequiresApprovedEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	event, err := env.svc.Events.Create(ctx, model.CreateEventRequest{Title: "Draft", TotalSeats: 10}, "org-1")
	require.NoError(t, err)

	_, err = env.svc.Registrations.Register(ctx, event.ID, "user-1")
	assert.ErrorIs(t, err, model.ErrEventNotApproved)
}

func TestRegisterDuplicateRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := env.newApprovedEvent(t, "org-1", 5, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))

	_, err := env.svc.Registrations.Register(ctx, event.ID, "user-1")
	require.NoError(t, err)

	_, err = env.svc.Registrations.Register(ctx, event.ID, "user-1")
	assert.ErrorIs(t, err, model.ErrAlreadyRegistered)

	// Only one seat was consumed.
	got, _ := env.svc.Events.Get(ctx, event.ID)
	assert.Equal(t, 4, got.SeatsAvailable)
}

func TestRegisterSoldOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := env.newApprovedEvent(t, "org-1", 1, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))

	_, err := env.svc.Registrations.Register(ctx, event.ID, "user-1")
	require.NoError(t, err)

	_, err = env.svc.Registrations.Register(ctx, event.ID, "user-2")
	assert.ErrorIs(t, err, model.ErrEventFull)
}

func TestRegisterZeroCapacity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := env.newApprovedEvent(t, "org-1", 0, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))

	_, err := env.svc.Registrations.Register(ctx, event.ID, "user-1")
	assert.ErrorIs(t, err, model.ErrEventFull)
}

func TestConcurrentRegistrationsNeverOversell(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := env.newApprovedEvent(t, "org-1", 1, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))

	const contenders = 8
	errs := make([]error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Registrations.Register(ctx, event.ID, fmt.Sprintf("user-%d", i))
		}(i)
	}
	wg.Wait()

	var wins, fulls int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, model.ErrEventFull):
			fulls++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, contenders-1, fulls)

	got, _ := env.svc.Events.Get(ctx, event.ID)
	assert.Equal(t, 0, got.SeatsAvailable)
}

func TestConcurrentDuplicateRegistrationsSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := env.newApprovedEvent(t, "org-1", 5, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))

	// The same user races itself: the store's pair-uniqueness check must
	// hold even when every call passes the duplicate pre-check first.
	const contenders = 8
	errs := make([]error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Registrations.Register(ctx, event.ID, "user-1")
		}(i)
	}
	wg.Wait()

	var wins, dups int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, model.ErrAlreadyRegistered):
			dups++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, contenders-1, dups)

	// Losing racers gave their reserved seat back.
	got, err := env.svc.Events.Get(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.SeatsAvailable)

	regs, err := env.svc.Registrations.ListForEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Len(t, regs, 1)
}

// flakyRegistrationRepo fails UpdateStatus on demand to exercise the
// partial-failure paths.
type flakyRegistrationRepo struct {
	repository.RegistrationRepository
	failUpdateStatus bool
}

func (f *flakyRegistrationRepo) UpdateStatus(ctx context.Context, id string, status model.RegistrationStatus) error {
	if f.failUpdateStatus {
		return errors.New("storage offline")
	}
	return f.RegistrationRepository.UpdateStatus(ctx, id, status)
}

func TestCancelKeepsSeatWhenStatusWriteFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := env.newApprovedEvent(t, "org-1", 1, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))

	reg, err := env.svc.Registrations.Register(ctx, event.ID, "user-1")
	require.NoError(t, err)

	flaky := &flakyRegistrationRepo{RegistrationRepository: env.store.Registrations, failUpdateStatus: true}
	env.store.Registrations = flaky

	// The cancellation write fails before the seat is freed, so no
	// concurrent registrant can take a seat still backed by a CONFIRMED
	// registration.
	err = env.svc.Registrations.Cancel(ctx, reg.ID, "user-1")
	require.Error(t, err)

	got, err := env.svc.Events.Get(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.SeatsAvailable)

	stored, err := env.store.Registrations.GetByID(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RegistrationStatusConfirmed, stored.Status)

	// Once storage recovers the cancel goes through and frees the seat.
	flaky.failUpdateStatus = false
	require.NoError(t, env.svc.Registrations.Cancel(ctx, reg.ID, "user-1"))
	got, _ = env.svc.Events.Get(ctx, event.ID)
	assert.Equal(t, 1, got.SeatsAvailable)
}

func TestCancelReleasesSeat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := env.newApprovedEvent(t, "org-1", 1, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))

	reg, err := env.svc.Registrations.Register(ctx, event.ID, "user-1")
	require.NoError(t, err)

	require.NoError(t, env.svc.Registrations.Cancel(ctx, reg.ID, "user-1"))
	got, _ := env.svc.Events.Get(ctx, event.ID)
	assert.Equal(t, 1, got.SeatsAvailable)

	// Cancelling again is a quiet no-op and must not double-release.
	require.NoError(t, env.svc.Registrations.Cancel(ctx, reg.ID, "user-1"))
	got, _ = env.svc.Events.Get(ctx, event.ID)
	assert.Equal(t, 1, got.SeatsAvailable)

	// The freed seat is bookable again, by anyone.
	_, err = env.svc.Registrations.Register(ctx, event.ID, "user-2")
	require.NoError(t, err)
}

func TestCancelSomeoneElsesRegistration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := env.newApprovedEvent(t, "org-1", 2, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))

	reg, err := env.svc.Registrations.Register(ctx, event.ID, "user-1")
	require.NoError(t, err)

	// Existence is not leaked to other users.
	err = env.svc.Registrations.Cancel(ctx, reg.ID, "user-2")
	assert.ErrorIs(t, err, model.ErrRegistrationNotFound)
}

func TestReRegisterAfterCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event := env.newApprovedEvent(t, "org-1", 3, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))

	reg, err := env.svc.Registrations.Register(ctx, event.ID, "user-1")
	require.NoError(t, err)
	require.NoError(t, env.svc.Registrations.Cancel(ctx, reg.ID, "user-1"))

	// A cancelled registration no longer blocks the pair.
	again, err := env.svc.Registrations.Register(ctx, event.ID, "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, reg.ID, again.ID)

	regs, err := env.svc.Registrations.ListForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, regs, 2)
}

func TestExportCSV(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	event, err := env.svc.Events.Create(ctx, model.CreateEventRequest{
		Title:      `Go "Live", 2026`,
		TotalSeats: 5,
	}, "org-1")
	require.NoError(t, err)
	require.NoError(t, env.svc.Events.Approve(ctx, event.ID))

	reg, err := env.svc.Registrations.Register(ctx, event.ID, "user-1")
	require.NoError(t, err)

	out, err := env.svc.Registrations.ExportCSV(ctx, event.ID)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "RegistrationId,EventId,EventTitle,UserId,Status,RegisteredAt", lines[0])
	assert.Contains(t, lines[1], reg.ID)
	assert.Contains(t, lines[1], `"Go ""Live"", 2026"`)
	assert.Contains(t, lines[1], string(model.RegistrationStatusConfirmed))
}
