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

const defaultUnsettledBatch = 100

type repository struct {
	db *gorm.DB
}

// NewRepository builds a purchases repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, purchase *models.Purchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *repository) FindByOrderID(ctx context.Context, orderID string) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&purchase).Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (r *repository) FindByOrderIDs(ctx context.Context, orderIDs []string) ([]models.Purchase, error) {
	var rows []models.Purchase
	if len(orderIDs) == 0 {
		return rows, nil
	}
	err := r.db.WithContext(ctx).
		Where("order_id IN ?", orderIDs).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, statuses []enums.PurchaseStatus) ([]models.Purchase, error) {
	var rows []models.Purchase
	query := r.db.WithContext(ctx).Where("buyer_id = ?", buyerID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	err := query.Order("created_at ASC").Order("order_id ASC").Find(&rows).Error
	return rows, err
}

// ListCompletedUnsettled returns completed purchases still missing a settlement, oldest first.
func (r *repository) ListCompletedUnsettled(ctx context.Context, limit int) ([]models.Purchase, error) {
	if limit <= 0 {
		limit = defaultUnsettledBatch
	}
	var rows []models.Purchase
	err := r.db.WithContext(ctx).
		Where("status = ? AND settled_at IS NULL", enums.PurchaseStatusCompleted).
		Order("completed_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// CompareAndSwap persists next only if the row still holds expectedStatus at expectedVersion.
func (r *repository) CompareAndSwap(ctx context.Context, next *models.Purchase, expectedStatus enums.PurchaseStatus, expectedVersion int64) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status = ? AND version = ?", next.ID, expectedStatus, expectedVersion).
		Updates(map[string]any{
			"status":       next.Status,
			"agent_id":     next.AgentID,
			"completed_at": next.CompletedAt,
			"cancelled_at": next.CancelledAt,
			"version":      expectedVersion + 1,
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected != 1 {
		return false, nil
	}
	next.Version = expectedVersion + 1
	next.UpdatedAt = now
	return true, nil
}

// RecordSettlement writes the split once. It reports false when the purchase
// is not completed or already carries a settlement.
func (r *repository) RecordSettlement(ctx context.Context, id uuid.UUID, vendorAmount, agentAmount decimal.Decimal, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND status = ? AND settled_at IS NULL", id, enums.PurchaseStatusCompleted).
		Updates(map[string]any{
			"vendor_amount": vendorAmount,
			"agent_amount":  agentAmount,
			"settled_at":    at,
			"version":       gorm.Expr("version + 1"),
			"updated_at":    at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
