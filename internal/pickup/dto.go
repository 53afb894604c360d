package pickup

import (
	"github.com/agaseke/agaseke-backend/internal/purchases"
	"github.com/agaseke/agaseke-backend/internal/settlement"
	"github.com/agaseke/agaseke-backend/internal/users"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Resolution is what an agent sees after scanning a buyer's QR code.
type Resolution struct {
	Buyer     *users.UserDTO          `json:"buyer"`
	Purchases []purchases.PurchaseDTO `json:"purchases"`
}

// CredentialsInput carries the buyer credentials collected on site.
type CredentialsInput struct {
	Identity string   `json:"identity" validate:"required"`
	Secret   string   `json:"secret" validate:"required"`
	OrderIDs []string `json:"order_ids" validate:"required,min=1,max=50,dive,required,order_ref"`
}

// OTPChallenge is returned to the agent; the code itself goes to the buyer.
type OTPChallenge struct {
	SessionID         string `json:"session_id"`
	ExpiresIn         int64  `json:"expires_in"`
	RestartsRemaining int    `json:"restarts_remaining"`
}

// CompletedPurchase is one purchase handed over and settled.
type CompletedPurchase struct {
	OrderID      string          `json:"order_id"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	VendorAmount decimal.Decimal `json:"vendor_amount"`
	AgentAmount  decimal.Decimal `json:"agent_amount"`
}

// FailedPurchase is a purchase the pickup could not complete or settle.
type FailedPurchase struct {
	OrderID string `json:"order_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CompletionReport summarizes a batch handover.
type CompletionReport struct {
	Completed   []CompletedPurchase `json:"completed"`
	Failed      []FailedPurchase    `json:"failed"`
	TotalAmount decimal.Decimal     `json:"total_amount"`
	VendorTotal decimal.Decimal     `json:"vendor_total"`
	AgentTotal  decimal.Decimal     `json:"agent_total"`
}

func newCompletionReport() *CompletionReport {
	return &CompletionReport{
		Completed:   []CompletedPurchase{},
		Failed:      []FailedPurchase{},
		TotalAmount: decimal.Zero,
		VendorTotal: decimal.Zero,
		AgentTotal:  decimal.Zero,
	}
}

func (r *CompletionReport) add(p *models.Purchase, settled *settlement.Result) {
	r.Completed = append(r.Completed, CompletedPurchase{
		OrderID:      p.OrderID,
		TotalAmount:  p.TotalAmount,
		VendorAmount: settled.Split.VendorAmount,
		AgentAmount:  settled.Split.AgentAmount,
	})
	r.TotalAmount = r.TotalAmount.Add(p.TotalAmount)
	r.VendorTotal = r.VendorTotal.Add(settled.Split.VendorAmount)
	r.AgentTotal = r.AgentTotal.Add(settled.Split.AgentAmount)
}

func (r *CompletionReport) fail(orderID string, err error) {
	entry := FailedPurchase{OrderID: orderID, Code: string(pkgerrors.CodeInternal), Message: err.Error()}
	if typed := pkgerrors.As(err); typed != nil {
		entry.Code = string(typed.Code())
		entry.Message = typed.Message()
	}
	r.Failed = append(r.Failed, entry)
}
