package delivery

import (
	"context"

	"github.com/agaseke/agaseke-backend/pkg/logger"
)

// LogChannel writes deliveries to the structured log. The code itself is only
// included when exposeCode is set, which cmd/api does for dev environments.
type LogChannel struct {
	logg       *logger.Logger
	exposeCode bool
}

func NewLogChannel(logg *logger.Logger, exposeCode bool) *LogChannel {
	return &LogChannel{logg: logg, exposeCode: exposeCode}
}

func (c *LogChannel) Deliver(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.logg == nil {
		return nil
	}
	fields := map[string]any{
		"session_id": msg.SessionID,
		"user_id":    msg.UserID.String(),
		"purpose":    msg.Purpose.String(),
		"address":    maskAddress(msg.Address),
		"expires_at": msg.ExpiresAt,
	}
	if c.exposeCode {
		fields["code"] = msg.Code
	}
	c.logg.Info(c.logg.WithFields(ctx, fields), "verification code delivered")
	return nil
}
