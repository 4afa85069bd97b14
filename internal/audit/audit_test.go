package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "heirloom/pkg/domain"
)

func event(userID id.UserID, action AuditAction, result string) Event {
	return Event{
		Timestamp: time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC),
		UserID:    userID,
		Subject:   userID.String(),
		Action:    string(action),
		Result:    result,
	}
}

func TestChainLinks(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	userID := id.NewUserID()

	require.NoError(t, store.Append(ctx, event(userID, EventTriggerCreated, "created")))
	require.NoError(t, store.Append(ctx, event(userID, EventTriggerEvaluated, "triggered")))
	require.NoError(t, store.Append(ctx, event(userID, EventGrantIssued, "issued")))

	entries, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Empty(t, entries[0].PrevHash, "chain root has an empty previous hash")
	assert.Equal(t, entries[0].Hash, entries[1].PrevHash)
	assert.Equal(t, entries[1].Hash, entries[2].PrevHash)
	assert.Equal(t, -1, VerifyChain(entries))
}

// Justification: the chain only earns its keep if edits are detectable;
// every field must be covered by the hash.
func TestChainDetectsTampering(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	userID := id.NewUserID()

	require.NoError(t, store.Append(ctx, event(userID, EventTriggerCreated, "created")))
	require.NoError(t, store.Append(ctx, event(userID, EventPermissionChecked, "denied")))
	require.NoError(t, store.Append(ctx, event(userID, EventPermissionChecked, "allowed")))

	entries, err := store.ListAll(ctx)
	require.NoError(t, err)

	t.Run("edited result", func(t *testing.T) {
		tampered := append([]Entry{}, entries...)
		tampered[1].Event.Result = "allowed"
		assert.Equal(t, 1, VerifyChain(tampered))
	})

	t.Run("dropped entry", func(t *testing.T) {
		tampered := []Entry{entries[0], entries[2]}
		assert.Equal(t, 1, VerifyChain(tampered))
	})

	t.Run("reordered entries", func(t *testing.T) {
		tampered := []Entry{entries[1], entries[0], entries[2]}
		assert.NotEqual(t, -1, VerifyChain(tampered))
	})
}

func TestPublisherDefaults(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	publisher := NewPublisher(store)
	userID := id.NewUserID()

	require.NoError(t, publisher.Emit(ctx, Event{
		UserID:  userID,
		Subject: userID.String(),
		Action:  string(EventGrantIssued),
		Result:  "issued",
	}))

	entries, err := publisher.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Event.Timestamp.IsZero(), "timestamp defaults to now")
	assert.Equal(t, RiskCritical, entries[0].Event.Risk, "risk defaults from the action taxonomy")

	broken, err := publisher.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, -1, broken)
}

func TestAsyncPublisher(t *testing.T) {
	ctx := context.Background()
	userID := id.NewUserID()

	t.Run("enqueues with defaults applied", func(t *testing.T) {
		inbox := make(chan Event, 1)
		publisher := NewAsyncPublisher(inbox)
		require.NoError(t, publisher.Emit(ctx, event(userID, EventOverrideApplied, "allowed")))

		queued := <-inbox
		assert.Equal(t, RiskCritical, queued.Risk)
	})

	t.Run("full buffer drops rather than blocks", func(t *testing.T) {
		inbox := make(chan Event, 1)
		publisher := NewAsyncPublisher(inbox)
		require.NoError(t, publisher.Emit(ctx, event(userID, EventTriggerCreated, "created")))
		assert.Error(t, publisher.Emit(ctx, event(userID, EventTriggerCreated, "created")))
	})
}

func TestActionRisk(t *testing.T) {
	assert.Equal(t, RiskCritical, EventGrantIssued.Risk())
	assert.Equal(t, RiskCritical, EventOverrideApplied.Risk())
	assert.Equal(t, RiskLow, EventPermissionChecked.Risk())
	assert.Equal(t, RiskMedium, AuditAction("unknown_action").Risk())
}

func TestListByUserFilters(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	alice := id.NewUserID()
	bob := id.NewUserID()

	require.NoError(t, store.Append(ctx, event(alice, EventTriggerCreated, "created")))
	require.NoError(t, store.Append(ctx, event(bob, EventTriggerCreated, "created")))
	require.NoError(t, store.Append(ctx, event(alice, EventTriggerDeleted, "deleted")))

	entries, err := store.ListByUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, alice, entry.Event.UserID)
	}
}
