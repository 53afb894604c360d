package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem is the stock row a cancelled purchase gives its quantity
// back to. Quantities never go negative.
type InventoryItem struct {
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	// AvailableQty can be sold now; ReservedQty is held by open purchases.
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	ReservedQty  int       `gorm:"column:reserved_qty;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryItem) TableName() string { return "inventory_items" }
