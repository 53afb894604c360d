package purchases

import (
	"time"

	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateInput is supplied by the checkout collaborator once inventory is reserved.
type CreateInput struct {
	BuyerID        uuid.UUID
	VendorID       uuid.UUID
	ProductID      uuid.UUID
	Quantity       int
	UnitPrice      decimal.Decimal
	DeliveryFee    decimal.Decimal
	DeliveryMethod enums.DeliveryMethod
	PaymentMethod  enums.PaymentMethod
}

// TransitionInput names the purchase, the event and who is applying it. An
// empty ActorRole marks an internal caller and skips ownership checks.
type TransitionInput struct {
	OrderID   string
	Event     enums.PurchaseEvent
	ActorID   uuid.UUID
	ActorRole enums.Role
}

// TransitionResult carries the persisted purchase and any obligations the
// caller must still discharge.
type TransitionResult struct {
	Purchase           *models.Purchase
	From               enums.PurchaseStatus
	SettlementRequired bool
}

// SettlementDTO is the split attached to a settled purchase.
type SettlementDTO struct {
	VendorAmount decimal.Decimal `json:"vendor_amount"`
	AgentAmount  decimal.Decimal `json:"agent_amount"`
	SettledAt    time.Time       `json:"settled_at"`
}

// PurchaseDTO is the transport shape of a purchase.
type PurchaseDTO struct {
	OrderID        string                `json:"order_id"`
	BuyerID        uuid.UUID             `json:"buyer_id"`
	VendorID       uuid.UUID             `json:"vendor_id"`
	ProductID      uuid.UUID             `json:"product_id"`
	Quantity       int                   `json:"quantity"`
	UnitPrice      decimal.Decimal       `json:"unit_price"`
	DeliveryFee    decimal.Decimal       `json:"delivery_fee"`
	TotalAmount    decimal.Decimal       `json:"total_amount"`
	DeliveryMethod enums.DeliveryMethod  `json:"delivery_method"`
	PaymentMethod  enums.PaymentMethod   `json:"payment_method"`
	Status         enums.PurchaseStatus  `json:"status"`
	AllowedEvents  []enums.PurchaseEvent `json:"allowed_events"`
	Settlement     *SettlementDTO        `json:"settlement,omitempty"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
	CancelledAt    *time.Time            `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

func FromModel(p *models.Purchase) *PurchaseDTO {
	if p == nil {
		return nil
	}
	dto := &PurchaseDTO{
		OrderID:        p.OrderID,
		BuyerID:        p.BuyerID,
		VendorID:       p.VendorID,
		ProductID:      p.ProductID,
		Quantity:       p.Quantity,
		UnitPrice:      p.UnitPrice,
		DeliveryFee:    p.DeliveryFee,
		TotalAmount:    p.TotalAmount,
		DeliveryMethod: p.DeliveryMethod,
		PaymentMethod:  p.PaymentMethod,
		Status:         p.Status,
		AllowedEvents:  Allowed(p.Status, p.DeliveryMethod),
		CompletedAt:    p.CompletedAt,
		CancelledAt:    p.CancelledAt,
		CreatedAt:      p.CreatedAt,
	}
	if p.IsSettled() && p.VendorAmount != nil && p.AgentAmount != nil {
		dto.Settlement = &SettlementDTO{
			VendorAmount: *p.VendorAmount,
			AgentAmount:  *p.AgentAmount,
			SettledAt:    *p.SettledAt,
		}
	}
	return dto
}

func FromModels(rows []models.Purchase) []PurchaseDTO {
	out := make([]PurchaseDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}
