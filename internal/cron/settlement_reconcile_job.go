package cron

import (
	"context"
	"fmt"

	"github.com/agaseke/agaseke-backend/internal/settlement"
	"github.com/agaseke/agaseke-backend/pkg/logger"
)

const defaultReconcileBatch = 200

type SettlementReconcileJobParams struct {
	Logger     *logger.Logger
	Settlement settlementReconciler
	BatchSize  int
}

type settlementReconciler interface {
	Reconcile(ctx context.Context, limit int) (*settlement.ReconcileReport, error)
}

// NewSettlementReconcileJob settles completed purchases whose settlement was
// never recorded.
func NewSettlementReconcileJob(params SettlementReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &settlementReconcileJob{
		logg:  params.Logger,
		svc:   params.Settlement,
		batch: batch,
	}, nil
}

type settlementReconcileJob struct {
	logg  *logger.Logger
	svc   settlementReconciler
	batch int
}

func (j *settlementReconcileJob) Name() string { return "settlement-reconcile" }

func (j *settlementReconcileJob) Run(ctx context.Context) error {
	report, err := j.svc.Reconcile(ctx, j.batch)
	if report != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"batch":   j.batch,
			"scanned": report.Scanned,
			"settled": report.Settled,
			"failed":  report.Failed,
		})
		j.logg.Info(logCtx, "settlement reconcile complete")
	}
	if err != nil {
		return fmt.Errorf("settlement reconcile: %w", err)
	}
	return nil
}
