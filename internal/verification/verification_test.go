package verification

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heirloom/internal/notify"
	"heirloom/internal/trigger/engine"
	id "heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
	"heirloom/pkg/requestcontext"
)

func TestStatusCanTransition(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusExpired, true},
		{StatusPending, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusExpired, true},
		{StatusInProgress, StatusRequiresManualReview, true},
		{StatusCompleted, StatusInProgress, false},
		{StatusFailed, StatusPending, false},
		{StatusExpired, StatusInProgress, false},
		{StatusRequiresManualReview, StatusCompleted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func newRequest(userID id.UserID, expiresAt time.Time) Request {
	return Request{
		ID:        uuid.New(),
		UserID:    userID,
		TriggerID: id.NewTriggerID(),
		Status:    StatusPending,
		Reason:    "confirm before unlocking",
		CreatedAt: expiresAt.Add(-72 * time.Hour),
		ExpiresAt: expiresAt,
	}
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	userID := id.NewUserID()

	t.Run("happy path to completed", func(t *testing.T) {
		store := NewInMemoryStore()
		request := newRequest(userID, now.Add(time.Hour))
		require.NoError(t, store.Create(ctx, request))

		advanced, err := store.Advance(ctx, request.ID, StatusInProgress, "", now)
		require.NoError(t, err)
		assert.Equal(t, StatusInProgress, advanced.Status)

		advanced, err = store.Advance(ctx, request.ID, StatusCompleted, "", now)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, advanced.Status)
	})

	t.Run("illegal transition", func(t *testing.T) {
		store := NewInMemoryStore()
		request := newRequest(userID, now.Add(time.Hour))
		require.NoError(t, store.Create(ctx, request))

		_, err := store.Advance(ctx, request.ID, StatusCompleted, "", now)
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	})

	t.Run("terminal states reject every move", func(t *testing.T) {
		store := NewInMemoryStore()
		request := newRequest(userID, now.Add(time.Hour))
		require.NoError(t, store.Create(ctx, request))
		_, err := store.Advance(ctx, request.ID, StatusInProgress, "", now)
		require.NoError(t, err)
		_, err = store.Advance(ctx, request.ID, StatusFailed, "", now)
		require.NoError(t, err)

		_, err = store.Advance(ctx, request.ID, StatusInProgress, "", now)
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	})

	t.Run("duplicate create conflicts", func(t *testing.T) {
		store := NewInMemoryStore()
		request := newRequest(userID, now.Add(time.Hour))
		require.NoError(t, store.Create(ctx, request))
		assert.ErrorIs(t, store.Create(ctx, request), sentinel.ErrConflict)
	})

	t.Run("unknown request", func(t *testing.T) {
		store := NewInMemoryStore()
		_, err := store.Get(ctx, uuid.New(), now)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

// Justification: expiry is lazy, so the transition to expired must
// happen on the next read regardless of which accessor performs it.
func TestLazyExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	userID := id.NewUserID()

	t.Run("get expires an overdue request", func(t *testing.T) {
		store := NewInMemoryStore()
		request := newRequest(userID, now.Add(-time.Minute))
		require.NoError(t, store.Create(ctx, request))

		got, err := store.Get(ctx, request.ID, now)
		require.NoError(t, err)
		assert.Equal(t, StatusExpired, got.Status)
	})

	t.Run("advance on an overdue request reports expiry", func(t *testing.T) {
		store := NewInMemoryStore()
		request := newRequest(userID, now.Add(-time.Minute))
		require.NoError(t, store.Create(ctx, request))

		_, err := store.Advance(ctx, request.ID, StatusInProgress, "", now)
		assert.ErrorIs(t, err, sentinel.ErrExpired)

		got, err := store.Get(ctx, request.ID, now)
		require.NoError(t, err)
		assert.Equal(t, StatusExpired, got.Status)
	})

	t.Run("list expires overdue requests in place", func(t *testing.T) {
		store := NewInMemoryStore()
		overdue := newRequest(userID, now.Add(-time.Minute))
		live := newRequest(userID, now.Add(time.Hour))
		live.CreatedAt = overdue.CreatedAt.Add(time.Second)
		require.NoError(t, store.Create(ctx, overdue))
		require.NoError(t, store.Create(ctx, live))

		requests, err := store.ListByUser(ctx, userID, now)
		require.NoError(t, err)
		require.Len(t, requests, 2)
		assert.Equal(t, StatusExpired, requests[0].Status)
		assert.Equal(t, StatusPending, requests[1].Status)
	})

	t.Run("a request already terminal never flips to expired", func(t *testing.T) {
		store := NewInMemoryStore()
		request := newRequest(userID, now.Add(time.Hour))
		require.NoError(t, store.Create(ctx, request))
		_, err := store.Advance(ctx, request.ID, StatusInProgress, "", now)
		require.NoError(t, err)
		_, err = store.Advance(ctx, request.ID, StatusCompleted, "", now)
		require.NoError(t, err)

		got, err := store.Get(ctx, request.ID, now.Add(48*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, got.Status)
	})
}

func TestIssuer(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	store := NewInMemoryStore()
	dispatcher := notify.NewInMemoryDispatcher()
	issuer := NewIssuer(store, nil, WithDispatcher(dispatcher))

	userID := id.NewUserID()
	triggerID := id.NewTriggerID()
	err := issuer.Issue(ctx, engine.ApprovalRequest{
		UserID:    userID,
		TriggerID: triggerID,
		Reason:    "beneficiary petition approved",
		ExpiresAt: now.Add(72 * time.Hour),
	})
	require.NoError(t, err)

	requests, err := store.ListByUser(ctx, userID, now)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, StatusPending, requests[0].Status)
	assert.Equal(t, triggerID, requests[0].TriggerID)
	assert.Equal(t, now, requests[0].CreatedAt)
	assert.Equal(t, now.Add(72*time.Hour), requests[0].ExpiresAt)
	assert.NotEmpty(t, requests[0].TokenHash)

	t.Run("token goes out through the dispatcher, never the store", func(t *testing.T) {
		sent := dispatcher.SentFor(userID)
		require.Len(t, sent, 1)
		assert.Equal(t, "verification_token", sent[0].Type)
		token := sent[0].Payload["token"]
		require.NotEmpty(t, token)
		assert.NotEqual(t, token, requests[0].TokenHash)
	})
}

// Justification: completion is the transition that unlocks downstream
// access, so it alone must demand the delivered token; failing or
// escalating a request needs no credential.
func TestApprovalToken(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	userID := id.NewUserID()

	issue := func(t *testing.T) (*InMemoryStore, Request, string) {
		store := NewInMemoryStore()
		dispatcher := notify.NewInMemoryDispatcher()
		issuer := NewIssuer(store, nil, WithDispatcher(dispatcher))
		require.NoError(t, issuer.Issue(ctx, engine.ApprovalRequest{
			UserID:    userID,
			TriggerID: id.NewTriggerID(),
			Reason:    "confirm before unlocking",
			ExpiresAt: now.Add(time.Hour),
		}))
		requests, err := store.ListByUser(ctx, userID, now)
		require.NoError(t, err)
		require.Len(t, requests, 1)
		sent := dispatcher.SentFor(userID)
		require.Len(t, sent, 1)
		return store, requests[0], sent[0].Payload["token"]
	}

	t.Run("matching token completes", func(t *testing.T) {
		store, request, token := issue(t)
		_, err := store.Advance(ctx, request.ID, StatusInProgress, "", now)
		require.NoError(t, err)
		advanced, err := store.Advance(ctx, request.ID, StatusCompleted, token, now)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, advanced.Status)
	})

	t.Run("wrong token is rejected and the request stays open", func(t *testing.T) {
		store, request, _ := issue(t)
		_, err := store.Advance(ctx, request.ID, StatusInProgress, "", now)
		require.NoError(t, err)
		_, err = store.Advance(ctx, request.ID, StatusCompleted, "not-the-token", now)
		assert.ErrorIs(t, err, sentinel.ErrTokenMismatch)

		got, err := store.Get(ctx, request.ID, now)
		require.NoError(t, err)
		assert.Equal(t, StatusInProgress, got.Status)
	})

	t.Run("non-completing transitions ignore the token", func(t *testing.T) {
		store, request, _ := issue(t)
		_, err := store.Advance(ctx, request.ID, StatusInProgress, "", now)
		require.NoError(t, err)
		advanced, err := store.Advance(ctx, request.ID, StatusRequiresManualReview, "", now)
		require.NoError(t, err)
		assert.Equal(t, StatusRequiresManualReview, advanced.Status)
	})
}
