package purchases

import (
	"context"
	"time"

	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Repository defines persistence operations for the purchases table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, purchase *models.Purchase) error
	FindByOrderID(ctx context.Context, orderID string) (*models.Purchase, error)
	FindByOrderIDs(ctx context.Context, orderIDs []string) ([]models.Purchase, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, statuses []enums.PurchaseStatus) ([]models.Purchase, error)
	ListCompletedUnsettled(ctx context.Context, limit int) ([]models.Purchase, error)
	CompareAndSwap(ctx context.Context, next *models.Purchase, expectedStatus enums.PurchaseStatus, expectedVersion int64) (bool, error)
	RecordSettlement(ctx context.Context, id uuid.UUID, vendorAmount, agentAmount decimal.Decimal, at time.Time) (bool, error)
}

// InventoryRestorer returns reserved stock when a handed-over purchase is cancelled.
type InventoryRestorer interface {
	Restore(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
