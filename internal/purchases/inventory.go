package purchases

import (
	"context"

	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type inventoryRestorerImpl struct{}

// NewInventoryRestorer exposes the default inventory restore implementation.
func NewInventoryRestorer() InventoryRestorer {
	return inventoryRestorerImpl{}
}

// Restore moves qty units from reserved back to available. Products without an
// inventory row are left alone.
func (inventoryRestorerImpl) Restore(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory restore")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET available_qty = available_qty + ?,
			reserved_qty = CASE WHEN reserved_qty >= ? THEN reserved_qty - ? ELSE 0 END,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ?
	`, qty, qty, qty, productID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restore inventory")
	}
	return nil
}
