package purchases

import (
	"testing"
	"time"

	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
)

var allStatuses = []enums.PurchaseStatus{
	enums.PurchaseStatusPending,
	enums.PurchaseStatusAwaitingPickup,
	enums.PurchaseStatusAwaitingDelivery,
	enums.PurchaseStatusOutForDelivery,
	enums.PurchaseStatusCompleted,
	enums.PurchaseStatusCancelled,
}

var allEvents = []enums.PurchaseEvent{
	enums.PurchaseEventReadyForPickup,
	enums.PurchaseEventReadyForDelivery,
	enums.PurchaseEventDispatch,
	enums.PurchaseEventComplete,
	enums.PurchaseEventCancel,
}

func TestTransitionWhitelist(t *testing.T) {
	at := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	type want struct {
		next    enums.PurchaseStatus
		settle  bool
		restore bool
	}
	legal := map[enums.DeliveryMethod]map[transitionKey]want{
		enums.DeliveryMethodPickup: {
			{enums.PurchaseStatusPending, enums.PurchaseEventReadyForPickup}:  {next: enums.PurchaseStatusAwaitingPickup},
			{enums.PurchaseStatusPending, enums.PurchaseEventCancel}:          {next: enums.PurchaseStatusCancelled},
			{enums.PurchaseStatusAwaitingPickup, enums.PurchaseEventComplete}: {next: enums.PurchaseStatusCompleted, settle: true},
			{enums.PurchaseStatusAwaitingPickup, enums.PurchaseEventCancel}:   {next: enums.PurchaseStatusCancelled, restore: true},
			// statuses a pickup purchase cannot reach still follow the table
			{enums.PurchaseStatusAwaitingDelivery, enums.PurchaseEventComplete}: {next: enums.PurchaseStatusCompleted, settle: true},
			{enums.PurchaseStatusAwaitingDelivery, enums.PurchaseEventCancel}:   {next: enums.PurchaseStatusCancelled, restore: true},
			{enums.PurchaseStatusOutForDelivery, enums.PurchaseEventComplete}:   {next: enums.PurchaseStatusCompleted, settle: true},
			{enums.PurchaseStatusOutForDelivery, enums.PurchaseEventCancel}:     {next: enums.PurchaseStatusCancelled, restore: true},
		},
		enums.DeliveryMethodDelivery: {
			{enums.PurchaseStatusPending, enums.PurchaseEventReadyForDelivery}:  {next: enums.PurchaseStatusAwaitingDelivery},
			{enums.PurchaseStatusPending, enums.PurchaseEventCancel}:            {next: enums.PurchaseStatusCancelled},
			{enums.PurchaseStatusAwaitingDelivery, enums.PurchaseEventDispatch}: {next: enums.PurchaseStatusOutForDelivery},
			{enums.PurchaseStatusAwaitingDelivery, enums.PurchaseEventComplete}: {next: enums.PurchaseStatusCompleted, settle: true},
			{enums.PurchaseStatusAwaitingDelivery, enums.PurchaseEventCancel}:   {next: enums.PurchaseStatusCancelled, restore: true},
			{enums.PurchaseStatusOutForDelivery, enums.PurchaseEventComplete}:   {next: enums.PurchaseStatusCompleted, settle: true},
			{enums.PurchaseStatusOutForDelivery, enums.PurchaseEventCancel}:     {next: enums.PurchaseStatusCancelled, restore: true},
			{enums.PurchaseStatusAwaitingPickup, enums.PurchaseEventComplete}:   {next: enums.PurchaseStatusCompleted, settle: true},
			{enums.PurchaseStatusAwaitingPickup, enums.PurchaseEventCancel}:     {next: enums.PurchaseStatusCancelled, restore: true},
		},
	}

	for method, table := range legal {
		for _, status := range allStatuses {
			for _, event := range allEvents {
				p := models.Purchase{Status: status, DeliveryMethod: method}
				next, effects, err := Transition(p, event, at)
				expected, ok := table[transitionKey{from: status, event: event}]

				switch {
				case status.IsTerminal():
					if !pkgerrors.IsCode(err, pkgerrors.CodeAlreadyTerminal) {
						t.Fatalf("%s/%s/%s: expected ALREADY_TERMINAL, got %v", method, status, event, err)
					}
					if next.Status != status {
						t.Fatalf("%s/%s/%s: terminal purchase mutated", method, status, event)
					}
				case ok:
					if err != nil {
						t.Fatalf("%s/%s/%s: unexpected error %v", method, status, event, err)
					}
					if next.Status != expected.next || effects.Settle != expected.settle || effects.RestoreInventory != expected.restore {
						t.Fatalf("%s/%s/%s: got %s %+v", method, status, event, next.Status, effects)
					}
				default:
					if !pkgerrors.IsCode(err, pkgerrors.CodeIllegalTransition) {
						t.Fatalf("%s/%s/%s: expected ILLEGAL_TRANSITION, got %v", method, status, event, err)
					}
					if next.Status != status {
						t.Fatalf("%s/%s/%s: illegal transition changed status", method, status, event)
					}
				}
			}
		}
	}
}

func TestTransitionStampsTimestampsWithoutMutatingInput(t *testing.T) {
	at := time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)
	p := models.Purchase{Status: enums.PurchaseStatusAwaitingPickup, DeliveryMethod: enums.DeliveryMethodPickup}

	done, effects, err := Transition(p, enums.PurchaseEventComplete, at)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !effects.Settle || done.CompletedAt == nil || !done.CompletedAt.Equal(at) {
		t.Fatalf("unexpected completion %+v %+v", done, effects)
	}
	if p.Status != enums.PurchaseStatusAwaitingPickup || p.CompletedAt != nil {
		t.Fatalf("input purchase was modified: %+v", p)
	}

	_, _, err = Transition(done, enums.PurchaseEventComplete, at)
	if !pkgerrors.IsCode(err, pkgerrors.CodeAlreadyTerminal) {
		t.Fatalf("expected second completion to be rejected, got %v", err)
	}

	cancelled, effects, err := Transition(models.Purchase{Status: enums.PurchaseStatusPending}, enums.PurchaseEventCancel, at)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if effects.RestoreInventory {
		t.Fatal("pending cancellation holds no reservation to restore")
	}
	if cancelled.CancelledAt == nil {
		t.Fatal("expected cancelled_at to be stamped")
	}
}

func TestTransitionRejectsUnknownEvent(t *testing.T) {
	_, _, err := Transition(models.Purchase{Status: enums.PurchaseStatusPending}, enums.PurchaseEvent("refund"), time.Now())
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAllowed(t *testing.T) {
	got := Allowed(enums.PurchaseStatusPending, enums.DeliveryMethodDelivery)
	if len(got) != 2 || got[0] != enums.PurchaseEventReadyForDelivery || got[1] != enums.PurchaseEventCancel {
		t.Fatalf("unexpected events %v", got)
	}
	if got := Allowed(enums.PurchaseStatusCompleted, enums.DeliveryMethodPickup); len(got) != 0 {
		t.Fatalf("terminal status should allow nothing, got %v", got)
	}
}

func TestReadyEventFollowsDeliveryMethod(t *testing.T) {
	if got := ReadyEvent(enums.DeliveryMethodPickup); got != enums.PurchaseEventReadyForPickup {
		t.Fatalf("pickup: got %s", got)
	}
	if got := ReadyEvent(enums.DeliveryMethodDelivery); got != enums.PurchaseEventReadyForDelivery {
		t.Fatalf("delivery: got %s", got)
	}
}
