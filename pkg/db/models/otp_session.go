package models

import (
	"time"

	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/google/uuid"
)

// OTPSession is a single issued verification code. Only the code digest is stored.
type OTPSession struct {
	SessionID    string           `gorm:"column:session_id;type:text;primaryKey"`
	UserID       uuid.UUID        `gorm:"column:user_id;type:uuid;not null;index:idx_otp_sessions_user_purpose"`
	Purpose      enums.OTPPurpose `gorm:"column:purpose;type:text;not null;index:idx_otp_sessions_user_purpose"`
	CodeHash     string           `gorm:"column:code_hash;type:text;not null"`
	CreatedAt    time.Time        `gorm:"column:created_at;not null"`
	ExpiresAt    time.Time        `gorm:"column:expires_at;not null;index"`
	Consumed     bool             `gorm:"column:consumed;not null;default:false"`
	ConsumedAt   *time.Time       `gorm:"column:consumed_at"`
	Superseded   bool             `gorm:"column:superseded;not null;default:false"`
	AttemptCount int              `gorm:"column:attempt_count;not null;default:0"`
	Version      int64            `gorm:"column:version;not null;default:0"`
}

func (OTPSession) TableName() string { return "otp_sessions" }
