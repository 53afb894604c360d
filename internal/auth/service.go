package auth

import (
	"context"
	"errors"
	"time"

	"github.com/agaseke/agaseke-backend/internal/otp"
	"github.com/agaseke/agaseke-backend/internal/users"
	"github.com/agaseke/agaseke-backend/pkg/auth/session"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const invalidCredentialsMessage = "invalid credentials"

// Service defines the behavior needed by the auth controller. Login is two
// phase: credentials first, then the delivered one-time code.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginChallenge, error)
	VerifyLogin(ctx context.Context, req VerifyLoginRequest) (*LoginResponse, error)
	Refresh(ctx context.Context, refreshCredential string) (*RefreshResponse, error)
	Logout(ctx context.Context, accessID string) error
}

type credentialVerifier interface {
	Verify(ctx context.Context, identity, secret string) (*models.User, error)
}

type userRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type otpService interface {
	Create(ctx context.Context, recipient otp.Recipient, purpose enums.OTPPurpose) (*otp.Session, error)
	Verify(ctx context.Context, sessionID, code string, purpose enums.OTPPurpose) (*otp.VerificationResult, error)
}

type sessionManager interface {
	Issue(ctx context.Context, subject session.Subject) (*session.Grant, error)
	Refresh(ctx context.Context, refreshToken string) (*session.Grant, error)
	Revoke(ctx context.Context, accessID string) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Verifier       credentialVerifier
	UserRepo       userRepository
	OTP            otpService
	SessionManager sessionManager
	Logger         *logger.Logger
}

type service struct {
	verifier credentialVerifier
	users    userRepository
	otp      otpService
	session  sessionManager
	logg     *logger.Logger
	now      func() time.Time
}

// NewService constructs a login service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "credential verifier required")
	}
	if params.UserRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "user repository required")
	}
	if params.OTP == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "otp service required")
	}
	if params.SessionManager == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "session manager required")
	}
	return &service{
		verifier: params.Verifier,
		users:    params.UserRepo,
		otp:      params.OTP,
		session:  params.SessionManager,
		logg:     params.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginChallenge, error) {
	user, err := s.verifier.Verify(ctx, req.Identity, req.Secret)
	if err != nil {
		return nil, err
	}

	sess, err := s.otp.Create(ctx, otp.RecipientFor(user), enums.OTPPurposeLogin)
	if err != nil {
		return nil, err
	}
	return &LoginChallenge{
		SessionID: sess.SessionID,
		ExpiresIn: sess.ExpiresIn(sess.CreatedAt),
	}, nil
}

func (s *service) VerifyLogin(ctx context.Context, req VerifyLoginRequest) (*LoginResponse, error) {
	result, err := s.otp.Verify(ctx, req.SessionID, req.Code, enums.OTPPurposeLogin)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, result.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeAuthFailure, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeAuthFailure, invalidCredentialsMessage)
	}

	if err := s.recordLogin(ctx, user, result.VerifiedAt); err != nil {
		return nil, err
	}

	grant, err := s.session.Issue(ctx, session.Subject{UserID: user.ID, Role: user.Role})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue access grant")
	}

	return &LoginResponse{
		User:  users.FromModel(user),
		Grant: grant,
	}, nil
}

func (s *service) Refresh(ctx context.Context, refreshCredential string) (*RefreshResponse, error) {
	grant, err := s.session.Refresh(ctx, refreshCredential)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidRefresh, "invalid or expired refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate refresh token")
	}
	return &RefreshResponse{Grant: grant}, nil
}

func (s *service) Logout(ctx context.Context, accessID string) error {
	if accessID == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "access session missing")
	}
	if err := s.session.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (s *service) recordLogin(ctx context.Context, user *models.User, at time.Time) error {
	if at.IsZero() {
		at = s.now()
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID, at); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update last login")
	}
	user.LastLoginAt = &at
	return nil
}
