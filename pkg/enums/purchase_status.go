package enums

// PurchaseStatus tracks the lifecycle of a purchase.
type PurchaseStatus string

const (
	PurchaseStatusPending          PurchaseStatus = "pending"
	PurchaseStatusAwaitingPickup   PurchaseStatus = "awaiting_pickup"
	PurchaseStatusAwaitingDelivery PurchaseStatus = "awaiting_delivery"
	PurchaseStatusOutForDelivery   PurchaseStatus = "out_for_delivery"
	PurchaseStatusCompleted        PurchaseStatus = "completed"
	PurchaseStatusCancelled        PurchaseStatus = "cancelled"
)

var purchaseStatuses = newSet("purchase status", PurchaseStatusPending, PurchaseStatusAwaitingPickup, PurchaseStatusAwaitingDelivery, PurchaseStatusOutForDelivery, PurchaseStatusCompleted, PurchaseStatusCancelled)

func (s PurchaseStatus) IsValid() bool { return purchaseStatuses.has(s) }

// ParsePurchaseStatus converts raw input into a PurchaseStatus.
func ParsePurchaseStatus(value string) (PurchaseStatus, error) { return purchaseStatuses.parse(value) }

// IsTerminal reports whether no further transition is possible.
func (s PurchaseStatus) IsTerminal() bool {
	return s == PurchaseStatusCompleted || s == PurchaseStatusCancelled
}

// IsAwaitingHandover reports whether the purchase can be handed to the buyer.
func (s PurchaseStatus) IsAwaitingHandover() bool {
	switch s {
	case PurchaseStatusAwaitingPickup, PurchaseStatusAwaitingDelivery, PurchaseStatusOutForDelivery:
		return true
	}
	return false
}
