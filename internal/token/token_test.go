package token

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := New()
		require.NoError(t, err)
		// 24 bytes, base64url without padding.
		assert.Len(t, tok, 32)
		assert.NotContains(t, tok, "=")
		assert.NotContains(t, tok, "+")
		assert.NotContains(t, tok, "/")
		assert.False(t, seen[tok], "duplicate token generated")
		seen[tok] = true
	}
}

func TestMemoryStorePutAndResolve(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := Record{Token: "tok-1", UserID: "u1", EventID: "e1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.GetByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "e1", got.EventID)
	assert.False(t, got.Used)

	_, err = s.GetByToken(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreReplaceRevokesOldToken(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Put(ctx, Record{Token: "old", UserID: "u1", EventID: "e1"}))
	require.NoError(t, s.Put(ctx, Record{Token: "new", UserID: "u1", EventID: "e1"}))

	_, err := s.GetByToken(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetByToken(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
}

func TestMemoryStoreConsume(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := Record{Token: "tok-1", UserID: "u1", EventID: "e1"}
	require.NoError(t, s.Put(ctx, rec))
	require.NoError(t, s.Consume(ctx, rec))

	got, err := s.GetByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, got.Used)

	// A second consumption of the same record loses.
	err = s.Consume(ctx, rec)
	assert.ErrorIs(t, err, ErrAlreadyUsed)

	// Consuming a superseded token fails instead of touching the live one.
	require.NoError(t, s.Put(ctx, Record{Token: "tok-2", UserID: "u1", EventID: "e1"}))
	err = s.Consume(ctx, rec)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreConcurrentConsumeSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := Record{Token: "tok-1", UserID: "u1", EventID: "e1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.Put(ctx, rec))

	const contenders = 8
	errs := make([]error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Consume(ctx, rec)
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, ErrAlreadyUsed):
			losses++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, contenders-1, losses)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Put(ctx, Record{Token: "tok-1", UserID: "u1", EventID: "e1"}))
	require.NoError(t, s.Delete(ctx, "u1", "e1"))

	_, err := s.GetByToken(ctx, "tok-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is not an error.
	require.NoError(t, s.Delete(ctx, "u1", "e1"))
}
