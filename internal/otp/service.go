package otp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/agaseke/agaseke-backend/internal/delivery"
	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/db"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/agaseke/agaseke-backend/pkg/metrics"
	"github.com/agaseke/agaseke-backend/pkg/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	sessionIDBytes         = 16
	defaultDeliveryTimeout = 10 * time.Second
)

// Service issues and verifies one-time codes scoped to a purpose.
type Service interface {
	Create(ctx context.Context, recipient Recipient, purpose enums.OTPPurpose) (*Session, error)
	Verify(ctx context.Context, sessionID, code string, purpose enums.OTPPurpose) (*VerificationResult, error)
	Owner(ctx context.Context, sessionID string, purpose enums.OTPPurpose) (uuid.UUID, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Recipient is the identity a code is issued for and the address it goes to.
type Recipient struct {
	UserID  uuid.UUID
	Address string
}

// RecipientFor prefers the phone number and falls back to email.
func RecipientFor(user *models.User) Recipient {
	if user == nil {
		return Recipient{}
	}
	address := user.Email
	if user.Phone != nil && strings.TrimSpace(*user.Phone) != "" {
		address = strings.TrimSpace(*user.Phone)
	}
	return Recipient{UserID: user.ID, Address: address}
}

// Session is the public view of an issued code. The code itself is never returned.
type Session struct {
	SessionID string           `json:"session_id"`
	UserID    uuid.UUID        `json:"-"`
	Purpose   enums.OTPPurpose `json:"purpose"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// ExpiresIn returns the seconds left at now, rounded up and floored at zero.
func (s Session) ExpiresIn(now time.Time) int64 {
	left := s.ExpiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int64((left + time.Second - 1) / time.Second)
}

// VerificationResult identifies whose code was accepted.
type VerificationResult struct {
	SessionID  string
	UserID     uuid.UUID
	Purpose    enums.OTPPurpose
	VerifiedAt time.Time
}

// ServiceParams wires the OTP session manager.
type ServiceParams struct {
	Repo            Repository
	DB              txRunner
	Channel         delivery.Channel
	Config          config.OTPConfig
	DeliveryTimeout time.Duration
	Logger          *logger.Logger
	Metrics         *metrics.ProtocolMetrics
}

type service struct {
	repo            Repository
	tx              txRunner
	channel         delivery.Channel
	cfg             config.OTPConfig
	deliveryTimeout time.Duration
	logg            *logger.Logger
	metrics         *metrics.ProtocolMetrics
	now             func() time.Time
}

// NewService validates the policy and dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "otp repository required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Channel == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "delivery channel required")
	}
	cfg := params.Config
	if cfg.TTL <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "otp ttl must be positive")
	}
	if cfg.CodeLength <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "otp code length must be positive")
	}
	if cfg.MaxAttempts <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "otp max attempts must be positive")
	}
	if cfg.CASRetries < 0 {
		cfg.CASRetries = 0
	}
	timeout := params.DeliveryTimeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	return &service{
		repo:            params.Repo,
		tx:              params.DB,
		channel:         params.Channel,
		cfg:             cfg,
		deliveryTimeout: timeout,
		logg:            params.Logger,
		metrics:         params.Metrics,
		now:             func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create supersedes any live session for the recipient and purpose, stores a
// new one and delivers its code, all in one transaction. A delivery failure
// leaves storage untouched.
func (s *service) Create(ctx context.Context, recipient Recipient, purpose enums.OTPPurpose) (*Session, error) {
	if recipient.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "identity required")
	}
	if strings.TrimSpace(recipient.Address) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery address required")
	}
	if !purpose.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid otp purpose")
	}

	code, err := security.GenerateNumericCode(s.cfg.CodeLength)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate code")
	}
	sessionID, err := security.GenerateToken(sessionIDBytes)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate session id")
	}

	now := s.now()
	record := &models.OTPSession{
		SessionID: sessionID,
		UserID:    recipient.UserID,
		Purpose:   purpose,
		CodeHash:  security.HashCode(code),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}

	msg := delivery.Message{
		SessionID: sessionID,
		UserID:    recipient.UserID,
		Purpose:   purpose,
		Address:   recipient.Address,
		Code:      code,
		ExpiresAt: record.ExpiresAt,
	}
	for attempt := 0; ; attempt++ {
		err = s.issue(ctx, record, msg)
		if !pkgerrors.IsCode(err, pkgerrors.CodePersistenceConflict) || attempt >= s.cfg.CASRetries {
			break
		}
	}
	if err != nil {
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{"user_id": recipient.UserID.String(), "purpose": purpose.String()})
			s.logg.Warn(logCtx, "otp session not created: "+err.Error())
		}
		return nil, err
	}

	return &Session{
		SessionID: record.SessionID,
		UserID:    record.UserID,
		Purpose:   record.Purpose,
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// issue runs one supersede, insert and deliver transaction. A unique
// violation on insert means another live session won the race; nothing was
// delivered yet, so the caller may run it again.
func (s *service) issue(ctx context.Context, record *models.OTPSession, msg delivery.Message) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.SupersedeLive(ctx, record.UserID, record.Purpose, record.CreatedAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "supersede live sessions")
		}
		if err := repo.Insert(ctx, record); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodePersistenceConflict, err, "concurrent session issued")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert session")
		}

		deliverCtx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
		defer cancel()
		if err := s.channel.Deliver(deliverCtx, msg); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDeliveryFailure, err, "deliver verification code")
		}
		return nil
	})
}

// Verify checks code against the session. Checks run in a fixed order:
// unknown or foreign purpose, expiry, consumption, attempt budget, and only
// then the code itself, counting the attempt whether or not it matches.
func (s *service) Verify(ctx context.Context, sessionID, code string, purpose enums.OTPPurpose) (*VerificationResult, error) {
	result, err := s.verify(ctx, strings.TrimSpace(sessionID), code, purpose)
	s.metrics.OTPVerification(purpose.String(), metrics.Outcome(err, pkgerrors.CodeOf))
	return result, err
}

func (s *service) verify(ctx context.Context, sessionID, code string, purpose enums.OTPPurpose) (*VerificationResult, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeSessionNotFound, "session not found")
	}

	for attempt := 0; attempt <= s.cfg.CASRetries; attempt++ {
		session, err := s.repo.FindByID(ctx, sessionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeSessionNotFound, "session not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session")
		}
		if session.Purpose != purpose {
			return nil, pkgerrors.New(pkgerrors.CodeSessionNotFound, "session not found")
		}

		now := s.now()
		if now.After(session.ExpiresAt) {
			return nil, pkgerrors.New(pkgerrors.CodeSessionExpired, "verification code expired")
		}
		if session.Consumed {
			return nil, pkgerrors.New(pkgerrors.CodeSessionAlreadyConsumed, "verification code already used")
		}
		if session.AttemptCount >= s.cfg.MaxAttempts {
			return nil, pkgerrors.New(pkgerrors.CodeAttemptsExceeded, "too many verification attempts")
		}

		next := *session
		next.AttemptCount++
		matched := security.CodeMatches(code, session.CodeHash)
		if matched {
			next.Consumed = true
			next.ConsumedAt = &now
		}

		swapped, err := s.repo.CompareAndSwap(ctx, &next, session.Version)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update session")
		}
		if !swapped {
			// lost the race; re-read and re-evaluate
			continue
		}

		if !matched {
			remaining := s.cfg.MaxAttempts - next.AttemptCount
			return nil, pkgerrors.New(pkgerrors.CodeCodeMismatch, "invalid verification code").
				WithDetails(map[string]any{"attempts_remaining": remaining})
		}
		return &VerificationResult{
			SessionID:  session.SessionID,
			UserID:     session.UserID,
			Purpose:    session.Purpose,
			VerifiedAt: now,
		}, nil
	}

	return nil, pkgerrors.New(pkgerrors.CodePersistenceConflict, "session updated concurrently")
}

// Owner returns the identity a session was issued for without touching its
// state. Unknown sessions and sessions of another purpose are not found.
func (s *service) Owner(ctx context.Context, sessionID string, purpose enums.OTPPurpose) (uuid.UUID, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeSessionNotFound, "session not found")
	}
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeSessionNotFound, "session not found")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session")
	}
	if session.Purpose != purpose {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeSessionNotFound, "session not found")
	}
	return session.UserID, nil
}

// PurgeExpired removes sessions whose expiry plus the grace window is before now.
func (s *service) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.UTC().Add(-s.cfg.GraceWindow)
	deleted, err := s.repo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge expired sessions")
	}
	return deleted, nil
}
