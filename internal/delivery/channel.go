package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/google/uuid"
)

// Message is a verification code addressed to a single recipient.
type Message struct {
	SessionID string           `json:"session_id"`
	UserID    uuid.UUID        `json:"user_id"`
	Purpose   enums.OTPPurpose `json:"purpose"`
	Address   string           `json:"address"`
	Code      string           `json:"code"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Channel delivers a code to an address. Implementations must honour ctx.
type Channel interface {
	Deliver(ctx context.Context, msg Message) error
}

// ChannelFunc adapts a function into a Channel.
type ChannelFunc func(ctx context.Context, msg Message) error

func (f ChannelFunc) Deliver(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

func (m Message) validate() error {
	if strings.TrimSpace(m.Address) == "" {
		return fmt.Errorf("delivery address required")
	}
	if m.Code == "" {
		return fmt.Errorf("delivery code required")
	}
	if m.SessionID == "" {
		return fmt.Errorf("delivery session id required")
	}
	return nil
}

// maskAddress keeps the first and last characters so log lines stay useful.
func maskAddress(address string) string {
	address = strings.TrimSpace(address)
	if len(address) <= 4 {
		return "****"
	}
	return address[:2] + strings.Repeat("*", len(address)-4) + address[len(address)-2:]
}
