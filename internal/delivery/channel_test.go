package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/google/uuid"
)

type stubResult struct {
	id  string
	err error
}

func (r stubResult) Get(ctx context.Context) (string, error) {
	return r.id, r.err
}

type stubPublisher struct {
	msgs   []*gcppubsub.Message
	result publishResult
}

func (p *stubPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.msgs = append(p.msgs, msg)
	return p.result
}

func sampleMessage() Message {
	return Message{
		SessionID: "abc123",
		UserID:    uuid.New(),
		Purpose:   enums.OTPPurposePickup,
		Address:   "buyer@example.com",
		Code:      "042917",
		ExpiresAt: time.Date(2026, 1, 5, 9, 5, 0, 0, time.UTC),
	}
}

func TestPubSubChannelPublishesMessage(t *testing.T) {
	pub := &stubPublisher{result: stubResult{id: "msg-1"}}
	ch := newPubSubChannel(pub, time.Second)

	msg := sampleMessage()
	if err := ch.Deliver(context.Background(), msg); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("expected one publish, got %d", len(pub.msgs))
	}
	got := pub.msgs[0]
	if got.Attributes["session_id"] != "abc123" || got.Attributes["purpose"] != "pickup" {
		t.Fatalf("unexpected attributes %+v", got.Attributes)
	}
	var decoded Message
	if err := json.Unmarshal(got.Data, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.Code != msg.Code || decoded.Address != msg.Address {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}

func TestPubSubChannelSurfacesPublishError(t *testing.T) {
	pub := &stubPublisher{result: stubResult{err: errors.New("unavailable")}}
	ch := newPubSubChannel(pub, time.Second)

	if err := ch.Deliver(context.Background(), sampleMessage()); err == nil {
		t.Fatal("expected publish failure")
	}
}

func TestPubSubChannelRejectsInvalidMessage(t *testing.T) {
	pub := &stubPublisher{result: stubResult{id: "x"}}
	ch := newPubSubChannel(pub, time.Second)

	msg := sampleMessage()
	msg.Address = " "
	if err := ch.Deliver(context.Background(), msg); err == nil {
		t.Fatal("expected validation error")
	}
	if len(pub.msgs) != 0 {
		t.Fatal("invalid message must not be published")
	}
}

func TestNewPubSubChannelRequiresPublisher(t *testing.T) {
	if _, err := NewPubSubChannel(nil, time.Second); err == nil {
		t.Fatal("expected error for nil publisher")
	}
}

func TestLogChannelMasksAddressAndHidesCode(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})

	if err := NewLogChannel(logg, false).Deliver(context.Background(), sampleMessage()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "042917") {
		t.Fatalf("code leaked into log: %s", out)
	}
	if strings.Contains(out, "buyer@example.com") {
		t.Fatalf("address not masked: %s", out)
	}

	buf.Reset()
	if err := NewLogChannel(logg, true).Deliver(context.Background(), sampleMessage()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !strings.Contains(buf.String(), "042917") {
		t.Fatalf("expected code in dev log: %s", buf.String())
	}
}

func TestLogChannelHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewLogChannel(nil, false).Deliver(ctx, sampleMessage()); err == nil {
		t.Fatal("expected cancelled context error")
	}
}

func TestMaskAddress(t *testing.T) {
	if got := maskAddress("abc"); got != "****" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := maskAddress("+250788123456"); got != "+2*********56" {
		t.Fatalf("unexpected mask %q", got)
	}
}
