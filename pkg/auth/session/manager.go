package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agaseke/agaseke-backend/pkg/auth"
	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	redisclient "github.com/agaseke/agaseke-backend/pkg/redis"
	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
)

const refreshTokenBytes = 32

var ErrInvalidRefreshToken = errors.New("invalid refresh token")

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GetDel(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

type sessionKeyer interface {
	AccessSessionKey(accessID string) string
	RefreshSessionKey(digest string) string
}

// Subject is the identity an access grant is bound to.
type Subject struct {
	UserID uuid.UUID
	Role   enums.Role
}

// Grant is an access credential paired with its single-use refresh credential.
type Grant struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	TokenType        string    `json:"token_type"`

	AccessID string  `json:"-"`
	Subject  Subject `json:"-"`
}

type refreshRecord struct {
	UserID    uuid.UUID  `json:"user_id"`
	Role      enums.Role `json:"role"`
	AccessID  string     `json:"access_id"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Manager mints access grants and rotates refresh credentials.
type Manager struct {
	store      sessionStore
	keyer      sessionKeyer
	jwt        config.JWTConfig
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// AccessSessionChecker exposes the read-only surface needed by middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// NewManager constructs a session manager backed by Redis.
func NewManager(client *redisclient.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return newManager(client, client, cfg)
}

func newManager(store sessionStore, keyer sessionKeyer, cfg config.JWTConfig) (*Manager, error) {
	refreshTTL := cfg.RefreshTokenTTL()
	if refreshTTL <= 0 {
		return nil, fmt.Errorf("refresh token ttl must be positive")
	}
	accessTTL := cfg.AccessTokenTTL()
	if accessTTL <= 0 {
		return nil, fmt.Errorf("access token ttl must be positive")
	}
	if refreshTTL <= accessTTL {
		return nil, fmt.Errorf("refresh token ttl (%s) must exceed access token ttl (%s)", refreshTTL, accessTTL)
	}
	return &Manager{
		store:      store,
		keyer:      keyer,
		jwt:        cfg,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// Issue mints a fresh access/refresh pair for subject.
func (m *Manager) Issue(ctx context.Context, subject Subject) (*Grant, error) {
	if subject.UserID == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}
	if !subject.Role.IsValid() {
		return nil, fmt.Errorf("invalid role %q", subject.Role)
	}

	now := m.now().UTC()
	accessID := NewAccessID()
	accessToken, err := auth.MintAccessToken(m.jwt, now, auth.AccessTokenPayload{
		UserID: subject.UserID,
		Role:   subject.Role,
		JTI:    accessID,
	})
	if err != nil {
		return nil, err
	}

	refreshToken, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}
	digest := digestRefreshToken(refreshToken)
	record := refreshRecord{
		UserID:    subject.UserID,
		Role:      subject.Role,
		AccessID:  accessID,
		ExpiresAt: now.Add(m.refreshTTL),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode refresh record: %w", err)
	}

	// The access session value points back at the refresh digest so logout can drop both.
	if err := m.store.Set(ctx, m.keyer.AccessSessionKey(accessID), digest, m.accessTTL); err != nil {
		return nil, fmt.Errorf("store access session: %w", err)
	}
	if err := m.store.Set(ctx, m.keyer.RefreshSessionKey(digest), string(payload), m.refreshTTL); err != nil {
		return nil, fmt.Errorf("store refresh session: %w", err)
	}

	return &Grant{
		AccessToken:      accessToken,
		AccessExpiresAt:  now.Add(m.accessTTL),
		RefreshToken:     refreshToken,
		RefreshExpiresAt: record.ExpiresAt,
		TokenType:        "Bearer",
		AccessID:         accessID,
		Subject:          subject,
	}, nil
}

// Refresh redeems a refresh credential exactly once and issues a successor grant.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	raw, err := m.store.GetDel(ctx, m.keyer.RefreshSessionKey(digestRefreshToken(refreshToken)))
	if err != nil {
		return nil, wrapNotFound(err)
	}

	var record refreshRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, ErrInvalidRefreshToken
	}
	if !m.now().UTC().Before(record.ExpiresAt) {
		return nil, ErrInvalidRefreshToken
	}

	if record.AccessID != "" {
		if err := m.store.Del(ctx, m.keyer.AccessSessionKey(record.AccessID)); err != nil {
			return nil, fmt.Errorf("revoke predecessor access session: %w", err)
		}
	}

	return m.Issue(ctx, Subject{UserID: record.UserID, Role: record.Role})
}

// Revoke ends the access session and the refresh credential issued with it.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return fmt.Errorf("access id is required")
	}
	digest, err := m.store.GetDel(ctx, m.keyer.AccessSessionKey(accessID))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil
		}
		return err
	}
	if digest == "" {
		return nil
	}
	return m.store.Del(ctx, m.keyer.RefreshSessionKey(digest))
}

// HasSession reports whether the access ID still has a live session.
func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, fmt.Errorf("access id is required")
	}
	return m.store.Exists(ctx, m.keyer.AccessSessionKey(accessID))
}

// NewAccessID produces a stable identifier used as the JWT jti/Redis key.
func NewAccessID() string {
	return uuid.NewString()
}

func generateRefreshToken() (string, error) {
	bytes := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

func digestRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func wrapNotFound(err error) error {
	if errors.Is(err, redislib.Nil) || errors.Is(err, ErrInvalidRefreshToken) {
		return ErrInvalidRefreshToken
	}
	return err
}
