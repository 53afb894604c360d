package purchases

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/db"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/agaseke/agaseke-backend/pkg/metrics"
	"github.com/agaseke/agaseke-backend/pkg/security"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	orderIDPrefix     = "ORD-"
	orderIDBytes      = 4
	orderIDAttempts   = 5
	defaultCASRetries = 3
	defaultListLimit  = 100
	amountScale       = 2
)

// Service governs the purchase lifecycle.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Purchase, error)
	Get(ctx context.Context, orderID string) (*models.Purchase, error)
	GetMany(ctx context.Context, orderIDs []string) ([]models.Purchase, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, statuses ...enums.PurchaseStatus) ([]models.Purchase, error)
	ListCompletedUnsettled(ctx context.Context, limit int) ([]models.Purchase, error)
	Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error)
}

// ServiceParams wires the purchase lifecycle service.
type ServiceParams struct {
	Repo       Repository
	DB         txRunner
	Inventory  InventoryRestorer
	Settlement config.SettlementConfig
	Logger     *logger.Logger
	Metrics    *metrics.ProtocolMetrics
}

type service struct {
	repo        Repository
	tx          txRunner
	inventory   InventoryRestorer
	deliveryFee decimal.Decimal
	retries     int
	logg        *logger.Logger
	metrics     *metrics.ProtocolMetrics
	now         func() time.Time
}

// NewService validates dependencies and the delivery fee policy.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "purchases repository required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Inventory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "inventory restorer required")
	}
	fee, err := params.Settlement.DeliveryFee()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "delivery fee")
	}
	retries := params.Settlement.TransitionRetries
	if retries <= 0 {
		retries = defaultCASRetries
	}
	return &service{
		repo:        params.Repo,
		tx:          params.DB,
		inventory:   params.Inventory,
		deliveryFee: fee,
		retries:     retries,
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create records a pending purchase. Delivery purchases without a fee get the
// configured default; pickup purchases never carry one.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Purchase, error) {
	if input.BuyerID == uuid.Nil || input.VendorID == uuid.Nil || input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer, vendor and product are required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if input.UnitPrice.IsNegative() || input.DeliveryFee.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amounts must not be negative")
	}
	if !input.DeliveryMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery method")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}

	fee := input.DeliveryFee
	switch input.DeliveryMethod {
	case enums.DeliveryMethodPickup:
		fee = decimal.Zero
	case enums.DeliveryMethodDelivery:
		if fee.IsZero() {
			fee = s.deliveryFee
		}
	}
	unitPrice := input.UnitPrice.Round(amountScale)
	fee = fee.Round(amountScale)

	purchase := &models.Purchase{
		ID:             uuid.New(),
		BuyerID:        input.BuyerID,
		VendorID:       input.VendorID,
		ProductID:      input.ProductID,
		Quantity:       input.Quantity,
		UnitPrice:      unitPrice,
		DeliveryFee:    fee,
		TotalAmount:    unitPrice.Mul(decimal.NewFromInt(int64(input.Quantity))).Add(fee),
		DeliveryMethod: input.DeliveryMethod,
		PaymentMethod:  input.PaymentMethod,
		Status:         enums.PurchaseStatusPending,
		CreatedAt:      s.now(),
	}

	for attempt := 0; attempt < orderIDAttempts; attempt++ {
		orderID, err := newOrderID()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order id")
		}
		purchase.OrderID = orderID
		err = s.repo.Create(ctx, purchase)
		if err == nil {
			return purchase, nil
		}
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create purchase")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodePersistenceConflict, "could not allocate order id")
}

func newOrderID() (string, error) {
	token, err := security.GenerateToken(orderIDBytes)
	if err != nil {
		return "", err
	}
	return orderIDPrefix + strings.ToUpper(token), nil
}

func (s *service) Get(ctx context.Context, orderID string) (*models.Purchase, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	purchase, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase")
	}
	return purchase, nil
}

// GetMany loads the referenced purchases; any unknown reference is NOT_FOUND.
func (s *service) GetMany(ctx context.Context, orderIDs []string) ([]models.Purchase, error) {
	refs := dedupe(orderIDs)
	if len(refs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one order id required")
	}
	rows, err := s.repo.FindByOrderIDs(ctx, refs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchases")
	}
	if len(rows) != len(refs) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "one or more purchases not found")
	}
	return rows, nil
}

func (s *service) ListByBuyer(ctx context.Context, buyerID uuid.UUID, statuses ...enums.PurchaseStatus) ([]models.Purchase, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	rows, err := s.repo.ListByBuyer(ctx, buyerID, statuses)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list buyer purchases")
	}
	return rows, nil
}

func (s *service) ListCompletedUnsettled(ctx context.Context, limit int) ([]models.Purchase, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.repo.ListCompletedUnsettled(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unsettled purchases")
	}
	return rows, nil
}

// Transition applies an event under a status and version compare-and-swap.
// Inventory restoration runs in the same transaction as the status write.
// Lost races are retried against fresh state a bounded number of times.
func (s *service) Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	result, err := s.transition(ctx, input)
	s.metrics.Transition(input.Event.String(), metrics.Outcome(err, pkgerrors.CodeOf))
	return result, err
}

func (s *service) transition(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	orderID := strings.TrimSpace(input.OrderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		var result *TransitionResult
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			current, err := repo.FindByOrderID(ctx, orderID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase")
			}
			if err := authorize(current, input); err != nil {
				return err
			}

			next, effects, err := Transition(*current, input.Event, s.now())
			if err != nil {
				return err
			}
			if input.Event == enums.PurchaseEventComplete && input.ActorRole == enums.RoleAgent {
				agentID := input.ActorID
				next.AgentID = &agentID
			}

			swapped, err := repo.CompareAndSwap(ctx, &next, current.Status, current.Version)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist transition")
			}
			if !swapped {
				return pkgerrors.New(pkgerrors.CodePersistenceConflict, "purchase updated concurrently")
			}

			if effects.RestoreInventory {
				if err := s.inventory.Restore(ctx, tx, current.ProductID, current.Quantity); err != nil {
					return err
				}
			}

			result = &TransitionResult{
				Purchase:           &next,
				From:               current.Status,
				SettlementRequired: effects.Settle,
			}
			return nil
		})
		if err == nil {
			return result, nil
		}
		if !pkgerrors.IsCode(err, pkgerrors.CodePersistenceConflict) {
			return nil, err
		}
		lastErr = err
		if s.logg != nil {
			s.logg.Warn(s.logg.WithOrderID(ctx, orderID), "purchase transition conflict, retrying")
		}
	}
	return nil, lastErr
}

// authorize checks the actor may apply the event to this purchase.
func authorize(p *models.Purchase, input TransitionInput) error {
	if input.ActorRole == "" || input.ActorRole == enums.RoleAdmin {
		return nil
	}
	switch input.Event {
	case enums.PurchaseEventReadyForPickup, enums.PurchaseEventReadyForDelivery:
		if input.ActorRole != enums.RoleVendor || p.VendorID != input.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the purchase vendor can mark it ready")
		}
	case enums.PurchaseEventDispatch, enums.PurchaseEventComplete:
		if input.ActorRole != enums.RoleAgent {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only an agent can hand over purchases")
		}
	case enums.PurchaseEventCancel:
		if input.ActorRole != enums.RoleBuyer || p.BuyerID != input.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the purchase buyer can cancel it")
		}
	}
	return nil
}

func dedupe(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}
