package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

const defaultPublishTimeout = 10 * time.Second

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type gcpPublisher struct {
	pub *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.pub.Publish(ctx, msg)
}

// PubSubChannel hands codes to the notification fan-out topic and waits for
// the server ack, so a failed publish fails the delivery.
type PubSubChannel struct {
	pub     publisher
	timeout time.Duration
}

// NewPubSubChannel wraps a topic publisher.
func NewPubSubChannel(pub *gcppubsub.Publisher, timeout time.Duration) (*PubSubChannel, error) {
	if pub == nil {
		return nil, errors.New("pubsub publisher required")
	}
	return newPubSubChannel(gcpPublisher{pub: pub}, timeout), nil
}

func newPubSubChannel(pub publisher, timeout time.Duration) *PubSubChannel {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &PubSubChannel{pub: pub, timeout: timeout}
}

func (c *PubSubChannel) Deliver(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode delivery message: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result := c.pub.Publish(publishCtx, &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"session_id": msg.SessionID,
			"purpose":    msg.Purpose.String(),
			"created_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	})
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publish verification code: %w", err)
	}
	return nil
}
