package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/agaseke/agaseke-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	SourcePickup    = "pickup"
	SourceReconcile = "reconcile"

	defaultReconcileBatch = 100
)

type purchaseStore interface {
	FindByOrderID(ctx context.Context, orderID string) (*models.Purchase, error)
	ListCompletedUnsettled(ctx context.Context, limit int) ([]models.Purchase, error)
	RecordSettlement(ctx context.Context, id uuid.UUID, vendorAmount, agentAmount decimal.Decimal, at time.Time) (bool, error)
}

// Service persists settlements at most once per purchase.
type Service interface {
	Settle(ctx context.Context, purchase *models.Purchase, source string) (*Result, error)
	Reconcile(ctx context.Context, limit int) (*ReconcileReport, error)
}

// Result describes the settlement now stored for a purchase. Applied is false
// when an earlier call had already written it.
type Result struct {
	OrderID   string    `json:"order_id"`
	Split     Split     `json:"split"`
	SettledAt time.Time `json:"settled_at"`
	Applied   bool      `json:"applied"`
}

// ReconcileReport summarizes one reconciliation sweep.
type ReconcileReport struct {
	Scanned int
	Settled int
	Failed  int
}

type ServiceParams struct {
	Store      purchaseStore
	Calculator *Calculator
	Logger     *logger.Logger
	Metrics    *metrics.ProtocolMetrics
}

type service struct {
	store   purchaseStore
	calc    *Calculator
	logg    *logger.Logger
	metrics *metrics.ProtocolMetrics
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "purchase store required")
	}
	if params.Calculator == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "settlement calculator required")
	}
	return &service{
		store:   params.Store,
		calc:    params.Calculator,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Settle computes and stores the split for a completed purchase. Re-running it
// for an already settled purchase returns the stored split untouched.
func (s *service) Settle(ctx context.Context, purchase *models.Purchase, source string) (*Result, error) {
	result, err := s.settle(ctx, purchase)
	s.metrics.Settlement(source, metrics.Outcome(err, pkgerrors.CodeOf))
	return result, err
}

func (s *service) settle(ctx context.Context, purchase *models.Purchase) (*Result, error) {
	if purchase == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase required")
	}
	if purchase.IsSettled() {
		return storedResult(purchase), nil
	}
	if purchase.Status != enums.PurchaseStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeIllegalTransition, "only completed purchases can be settled").
			WithDetails(map[string]any{"status": purchase.Status})
	}

	split, err := s.calc.Split(*purchase)
	if err != nil {
		return nil, err
	}

	at := s.now()
	applied, err := s.store.RecordSettlement(ctx, purchase.ID, split.VendorAmount, split.AgentAmount, at)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record settlement")
	}
	if applied {
		return &Result{OrderID: purchase.OrderID, Split: split, SettledAt: at, Applied: true}, nil
	}

	// someone else settled first, or the purchase moved; report what is stored
	current, err := s.store.FindByOrderID(ctx, purchase.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload purchase")
	}
	if !current.IsSettled() {
		return nil, pkgerrors.New(pkgerrors.CodeIllegalTransition, "only completed purchases can be settled").
			WithDetails(map[string]any{"status": current.Status})
	}
	return storedResult(current), nil
}

func storedResult(p *models.Purchase) *Result {
	res := &Result{OrderID: p.OrderID, Applied: false}
	if p.VendorAmount != nil {
		res.Split.VendorAmount = *p.VendorAmount
	}
	if p.AgentAmount != nil {
		res.Split.AgentAmount = *p.AgentAmount
	}
	if p.SettledAt != nil {
		res.SettledAt = *p.SettledAt
	}
	return res
}

// Reconcile settles completed purchases that were left without a settlement,
// for example when a process died between completion and settlement.
func (s *service) Reconcile(ctx context.Context, limit int) (*ReconcileReport, error) {
	if limit <= 0 {
		limit = defaultReconcileBatch
	}
	rows, err := s.store.ListCompletedUnsettled(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unsettled purchases")
	}

	report := &ReconcileReport{Scanned: len(rows)}
	var errs error
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return report, multierr.Append(errs, err)
		}
		purchase := rows[i]
		res, err := s.Settle(ctx, &purchase, SourceReconcile)
		if err != nil {
			report.Failed++
			errs = multierr.Append(errs, fmt.Errorf("settle %s: %w", purchase.OrderID, err))
			continue
		}
		if res.Applied {
			report.Settled++
			if s.logg != nil {
				s.logg.Info(s.logg.WithOrderID(ctx, purchase.OrderID), "settlement reconciled")
			}
		}
	}
	return report, errs
}
