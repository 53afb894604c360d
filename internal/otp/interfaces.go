package otp

import (
	"context"
	"time"

	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists OTP sessions. Every write after insert is a
// compare-and-swap on the session version.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, session *models.OTPSession) error
	FindByID(ctx context.Context, sessionID string) (*models.OTPSession, error)
	SupersedeLive(ctx context.Context, userID uuid.UUID, purpose enums.OTPPurpose, at time.Time) (int64, error)
	CompareAndSwap(ctx context.Context, next *models.OTPSession, expectedVersion int64) (bool, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
