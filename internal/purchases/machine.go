package purchases

import (
	"fmt"
	"time"

	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
)

type transitionKey struct {
	from  enums.PurchaseStatus
	event enums.PurchaseEvent
}

// transitions is the complete whitelist. Pairs absent here are illegal.
var transitions = map[transitionKey]enums.PurchaseStatus{
	{enums.PurchaseStatusPending, enums.PurchaseEventReadyForPickup}:    enums.PurchaseStatusAwaitingPickup,
	{enums.PurchaseStatusPending, enums.PurchaseEventReadyForDelivery}:  enums.PurchaseStatusAwaitingDelivery,
	{enums.PurchaseStatusAwaitingDelivery, enums.PurchaseEventDispatch}: enums.PurchaseStatusOutForDelivery,
	{enums.PurchaseStatusAwaitingPickup, enums.PurchaseEventComplete}:   enums.PurchaseStatusCompleted,
	{enums.PurchaseStatusAwaitingDelivery, enums.PurchaseEventComplete}: enums.PurchaseStatusCompleted,
	{enums.PurchaseStatusOutForDelivery, enums.PurchaseEventComplete}:   enums.PurchaseStatusCompleted,
	{enums.PurchaseStatusPending, enums.PurchaseEventCancel}:            enums.PurchaseStatusCancelled,
	{enums.PurchaseStatusAwaitingPickup, enums.PurchaseEventCancel}:     enums.PurchaseStatusCancelled,
	{enums.PurchaseStatusAwaitingDelivery, enums.PurchaseEventCancel}:   enums.PurchaseStatusCancelled,
	{enums.PurchaseStatusOutForDelivery, enums.PurchaseEventCancel}:     enums.PurchaseStatusCancelled,
}

// requiredMethod pins readiness events to the purchase's delivery method.
var requiredMethod = map[enums.PurchaseEvent]enums.DeliveryMethod{
	enums.PurchaseEventReadyForPickup:   enums.DeliveryMethodPickup,
	enums.PurchaseEventReadyForDelivery: enums.DeliveryMethodDelivery,
	enums.PurchaseEventDispatch:         enums.DeliveryMethodDelivery,
}

// Effects lists the side effects a transition obliges the caller to run.
type Effects struct {
	Settle           bool
	RestoreInventory bool
}

// Transition applies event to p and returns the successor record. p itself is
// never modified, so a rejected event leaves the caller's copy intact.
func Transition(p models.Purchase, event enums.PurchaseEvent, at time.Time) (models.Purchase, Effects, error) {
	if !event.IsValid() {
		return p, Effects{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown purchase event %q", event))
	}
	if p.Status.IsTerminal() {
		return p, Effects{}, pkgerrors.New(pkgerrors.CodeAlreadyTerminal, "purchase already finalized").
			WithDetails(map[string]any{"status": p.Status, "event": event})
	}

	next, ok := transitions[transitionKey{from: p.Status, event: event}]
	if ok {
		if method, pinned := requiredMethod[event]; pinned && p.DeliveryMethod != method {
			ok = false
		}
	}
	if !ok {
		return p, Effects{}, pkgerrors.New(pkgerrors.CodeIllegalTransition,
			fmt.Sprintf("cannot apply %s to a %s purchase", event, p.Status)).
			WithDetails(map[string]any{"status": p.Status, "event": event})
	}

	out := p
	out.Status = next
	effects := Effects{}
	switch next {
	case enums.PurchaseStatusCompleted:
		ts := at
		out.CompletedAt = &ts
		effects.Settle = true
	case enums.PurchaseStatusCancelled:
		ts := at
		out.CancelledAt = &ts
		effects.RestoreInventory = p.Status.IsAwaitingHandover()
	}
	return out, effects, nil
}

// Allowed reports the events accepted from status for the given delivery method.
func Allowed(status enums.PurchaseStatus, method enums.DeliveryMethod) []enums.PurchaseEvent {
	events := []enums.PurchaseEvent{}
	for _, event := range []enums.PurchaseEvent{
		enums.PurchaseEventReadyForPickup,
		enums.PurchaseEventReadyForDelivery,
		enums.PurchaseEventDispatch,
		enums.PurchaseEventComplete,
		enums.PurchaseEventCancel,
	} {
		if _, ok := transitions[transitionKey{from: status, event: event}]; !ok {
			continue
		}
		if m, pinned := requiredMethod[event]; pinned && m != method {
			continue
		}
		events = append(events, event)
	}
	return events
}

// ReadyEvent is the event a vendor applies to release a purchase for its delivery method.
func ReadyEvent(method enums.DeliveryMethod) enums.PurchaseEvent {
	if method == enums.DeliveryMethodDelivery {
		return enums.PurchaseEventReadyForDelivery
	}
	return enums.PurchaseEventReadyForPickup
}
