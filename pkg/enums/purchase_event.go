package enums

// PurchaseEvent is an input to the purchase state machine.
type PurchaseEvent string

const (
	PurchaseEventReadyForPickup   PurchaseEvent = "ready_for_pickup"
	PurchaseEventReadyForDelivery PurchaseEvent = "ready_for_delivery"
	PurchaseEventDispatch         PurchaseEvent = "dispatch"
	PurchaseEventComplete         PurchaseEvent = "complete"
	PurchaseEventCancel           PurchaseEvent = "cancel"
)

var purchaseEvents = newSet("purchase event", PurchaseEventReadyForPickup, PurchaseEventReadyForDelivery, PurchaseEventDispatch, PurchaseEventComplete, PurchaseEventCancel)

func (e PurchaseEvent) IsValid() bool { return purchaseEvents.has(e) }

// ParsePurchaseEvent converts raw input into a PurchaseEvent.
func ParsePurchaseEvent(value string) (PurchaseEvent, error) { return purchaseEvents.parse(value) }

func (e PurchaseEvent) String() string { return string(e) }
