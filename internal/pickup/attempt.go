package pickup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisclient "github.com/agaseke/agaseke-backend/pkg/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Stage is how far an agent has progressed with one buyer's handover.
type Stage string

const (
	StageCredentialsVerified Stage = "credentials_verified"
	StageOTPRequested        Stage = "otp_requested"
	StageOTPVerified         Stage = "otp_verified"
)

// Attempt is the resumable record of one handover between an agent and a buyer.
type Attempt struct {
	AgentID     uuid.UUID `json:"agent_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	OrderIDs    []string  `json:"order_ids"`
	Stage       Stage     `json:"stage"`
	SessionID   string    `json:"session_id,omitempty"`
	OTPRequests int       `json:"otp_requests"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Covers reports whether every ref belongs to the attempt.
func (a *Attempt) Covers(refs []string) bool {
	set := make(map[string]struct{}, len(a.OrderIDs))
	for _, id := range a.OrderIDs {
		set[id] = struct{}{}
	}
	for _, ref := range refs {
		if _, ok := set[ref]; !ok {
			return false
		}
	}
	return true
}

// AttemptStore persists attempts keyed by agent and buyer.
type AttemptStore interface {
	Load(ctx context.Context, agentID, buyerID uuid.UUID) (*Attempt, error)
	Save(ctx context.Context, attempt *Attempt) error
	Delete(ctx context.Context, agentID, buyerID uuid.UUID) error
}

type kvStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	PickupAttemptKey(agentID, buyerID string) string
}

type redisAttemptStore struct {
	kv  kvStore
	ttl time.Duration
}

// NewRedisAttemptStore keeps attempts in Redis; each save refreshes the TTL.
func NewRedisAttemptStore(client *redisclient.Client, ttl time.Duration) (AttemptStore, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	return newRedisAttemptStore(client, ttl), nil
}

func newRedisAttemptStore(kv kvStore, ttl time.Duration) *redisAttemptStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &redisAttemptStore{kv: kv, ttl: ttl}
}

// Load returns nil without error when no attempt exists.
func (s *redisAttemptStore) Load(ctx context.Context, agentID, buyerID uuid.UUID) (*Attempt, error) {
	raw, err := s.kv.Get(ctx, s.kv.PickupAttemptKey(agentID.String(), buyerID.String()))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var attempt Attempt
	if err := json.Unmarshal([]byte(raw), &attempt); err != nil {
		return nil, fmt.Errorf("decode pickup attempt: %w", err)
	}
	return &attempt, nil
}

func (s *redisAttemptStore) Save(ctx context.Context, attempt *Attempt) error {
	if attempt == nil {
		return errors.New("attempt required")
	}
	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("encode pickup attempt: %w", err)
	}
	return s.kv.Set(ctx, s.kv.PickupAttemptKey(attempt.AgentID.String(), attempt.BuyerID.String()), payload, s.ttl)
}

func (s *redisAttemptStore) Delete(ctx context.Context, agentID, buyerID uuid.UUID) error {
	return s.kv.Del(ctx, s.kv.PickupAttemptKey(agentID.String(), buyerID.String()))
}
