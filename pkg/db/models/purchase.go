package models

import (
	"time"

	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Purchase is a buyer's order for a single product line.
type Purchase struct {
	ID             uuid.UUID            `gorm:"type:uuid;primaryKey"`
	OrderID        string               `gorm:"column:order_id;type:text;not null;uniqueIndex"`
	BuyerID        uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null;index"`
	VendorID       uuid.UUID            `gorm:"column:vendor_id;type:uuid;not null;index"`
	ProductID      uuid.UUID            `gorm:"column:product_id;type:uuid;not null"`
	Quantity       int                  `gorm:"column:quantity;not null"`
	UnitPrice      decimal.Decimal      `gorm:"column:unit_price;type:numeric(12,2);not null"`
	DeliveryFee    decimal.Decimal      `gorm:"column:delivery_fee;type:numeric(12,2);not null"`
	TotalAmount    decimal.Decimal      `gorm:"column:total_amount;type:numeric(12,2);not null"`
	DeliveryMethod enums.DeliveryMethod `gorm:"column:delivery_method;type:text;not null"`
	PaymentMethod  enums.PaymentMethod  `gorm:"column:payment_method;type:text;not null"`
	Status         enums.PurchaseStatus `gorm:"column:status;type:text;not null;index"`

	VendorAmount *decimal.Decimal `gorm:"column:vendor_amount;type:numeric(12,2)"`
	AgentAmount  *decimal.Decimal `gorm:"column:agent_amount;type:numeric(12,2)"`
	SettledAt    *time.Time       `gorm:"column:settled_at"`

	AgentID     *uuid.UUID `gorm:"column:agent_id;type:uuid"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`
	Version     int64      `gorm:"column:version;not null;default:0"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Purchase) TableName() string { return "purchases" }

// ProductPrice is the purchase value excluding the delivery fee.
func (p Purchase) ProductPrice() decimal.Decimal {
	return p.UnitPrice.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// IsSettled reports whether a settlement split has been recorded.
func (p Purchase) IsSettled() bool {
	return p.SettledAt != nil
}
