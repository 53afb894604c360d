package otp

import (
	"context"
	"time"

	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an OTP session repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, session *models.OTPSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repository) FindByID(ctx context.Context, sessionID string) (*models.OTPSession, error) {
	var session models.OTPSession
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// SupersedeLive closes every unconsumed session for the identity and purpose.
func (r *repository) SupersedeLive(ctx context.Context, userID uuid.UUID, purpose enums.OTPPurpose, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OTPSession{}).
		Where("user_id = ? AND purpose = ? AND consumed = ?", userID, purpose, false).
		Updates(map[string]any{
			"consumed":    true,
			"superseded":  true,
			"consumed_at": at,
			"version":     gorm.Expr("version + 1"),
		})
	return res.RowsAffected, res.Error
}

// CompareAndSwap writes the mutable fields of next only when the stored
// version still equals expectedVersion. next.Version is advanced on success.
func (r *repository) CompareAndSwap(ctx context.Context, next *models.OTPSession, expectedVersion int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OTPSession{}).
		Where("session_id = ? AND version = ?", next.SessionID, expectedVersion).
		Updates(map[string]any{
			"attempt_count": next.AttemptCount,
			"consumed":      next.Consumed,
			"consumed_at":   next.ConsumedAt,
			"superseded":    next.Superseded,
			"version":       expectedVersion + 1,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected != 1 {
		return false, nil
	}
	next.Version = expectedVersion + 1
	return true, nil
}

func (r *repository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&models.OTPSession{})
	return res.RowsAffected, res.Error
}
