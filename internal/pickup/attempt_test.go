package pickup

import (
	"context"
	"testing"
	"time"

	redisclient "github.com/agaseke/agaseke-backend/pkg/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisStore(t *testing.T, ttl time.Duration) (AttemptStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisclient.NewFromRaw(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	store, err := NewRedisAttemptStore(client, ttl)
	require.NoError(t, err)
	return store, mr
}

func TestAttemptStoreRoundTrip(t *testing.T) {
	store, _ := newMiniredisStore(t, time.Minute)
	ctx := context.Background()
	agentID, buyerID := uuid.New(), uuid.New()

	missing, err := store.Load(ctx, agentID, buyerID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	attempt := &Attempt{
		AgentID:     agentID,
		BuyerID:     buyerID,
		OrderIDs:    []string{"ORD-AAAA0001", "ORD-AAAA0002"},
		Stage:       StageOTPRequested,
		SessionID:   "abc",
		OTPRequests: 2,
		UpdatedAt:   time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(ctx, attempt))

	got, err := store.Load(ctx, agentID, buyerID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, attempt.OrderIDs, got.OrderIDs)
	assert.Equal(t, StageOTPRequested, got.Stage)
	assert.Equal(t, 2, got.OTPRequests)
	assert.True(t, attempt.UpdatedAt.Equal(got.UpdatedAt))

	other, err := store.Load(ctx, uuid.New(), buyerID)
	require.NoError(t, err)
	assert.Nil(t, other, "attempts are scoped to the agent")

	require.NoError(t, store.Delete(ctx, agentID, buyerID))
	gone, err := store.Load(ctx, agentID, buyerID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestAttemptStoreExpires(t *testing.T) {
	store, mr := newMiniredisStore(t, time.Minute)
	ctx := context.Background()
	attempt := &Attempt{AgentID: uuid.New(), BuyerID: uuid.New(), Stage: StageCredentialsVerified}
	require.NoError(t, store.Save(ctx, attempt))

	mr.FastForward(61 * time.Second)

	got, err := store.Load(ctx, attempt.AgentID, attempt.BuyerID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAttemptStoreRejectsCorruptValue(t *testing.T) {
	store, mr := newMiniredisStore(t, time.Minute)
	agentID, buyerID := uuid.New(), uuid.New()
	key := redisclient.NewFromRaw(nil).PickupAttemptKey(agentID.String(), buyerID.String())
	require.NoError(t, mr.Set(key, "{not json"))

	_, err := store.Load(context.Background(), agentID, buyerID)
	require.Error(t, err)
}

func TestAttemptCovers(t *testing.T) {
	a := &Attempt{OrderIDs: []string{"ORD-1", "ORD-2", "ORD-3"}}
	assert.True(t, a.Covers([]string{"ORD-1", "ORD-3"}))
	assert.True(t, a.Covers(nil))
	assert.False(t, a.Covers([]string{"ORD-1", "ORD-9"}))
}

func TestNewRedisAttemptStoreRequiresClient(t *testing.T) {
	_, err := NewRedisAttemptStore(nil, time.Minute)
	require.Error(t, err)
}
