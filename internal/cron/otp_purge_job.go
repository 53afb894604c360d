package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/agaseke/agaseke-backend/pkg/logger"
)

type OTPPurgeJobParams struct {
	Logger *logger.Logger
	OTP    otpPurger
}

type otpPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// NewOTPPurgeJob removes verification sessions that expired more than the
// configured grace window ago.
func NewOTPPurgeJob(params OTPPurgeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.OTP == nil {
		return nil, fmt.Errorf("otp service required")
	}
	return &otpPurgeJob{
		logg: params.Logger,
		otp:  params.OTP,
		now:  time.Now,
	}, nil
}

type otpPurgeJob struct {
	logg *logger.Logger
	otp  otpPurger
	now  func() time.Time
}

func (j *otpPurgeJob) Name() string { return "otp-purge" }

func (j *otpPurgeJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	deleted, err := j.otp.PurgeExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("otp purge: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"now":          now,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "otp purge complete")
	return nil
}
