package settlement

import (
	"fmt"

	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Split is the division of a purchase's funds. VendorAmount + AgentAmount
// always equals the purchase total exactly.
type Split struct {
	VendorAmount decimal.Decimal `json:"vendor_amount"`
	AgentAmount  decimal.Decimal `json:"agent_amount"`
}

// Calculator computes settlement splits. It holds no state beyond policy.
type Calculator struct {
	rate  decimal.Decimal
	base  enums.CommissionBase
	scale int32
}

// NewCalculator reads the agent rate and commission base from config.
func NewCalculator(cfg config.SettlementConfig) (*Calculator, error) {
	rate, err := cfg.AgentRate()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "agent rate")
	}
	base, err := enums.ParseCommissionBase(cfg.CommissionBase)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "commission base")
	}
	scale := cfg.Scale
	if scale < 0 {
		scale = 2
	}
	return &Calculator{rate: rate, base: base, scale: scale}, nil
}

// Rate returns the agent rate as a fraction.
func (c *Calculator) Rate() decimal.Decimal { return c.rate }

// Base returns the configured commission base.
func (c *Calculator) Base() enums.CommissionBase { return c.base }

// Split computes the vendor and agent shares of p.
//
// With the total base the agent takes rate x total_amount and the vendor the
// rest. With the product base the agent takes rate x product price plus the
// whole delivery fee and the vendor keeps the remaining product price. Only
// the agent share is rounded; the vendor share is the exact remainder.
func (c *Calculator) Split(p models.Purchase) (Split, error) {
	if p.Quantity <= 0 {
		return Split{}, pkgerrors.New(pkgerrors.CodeValidation, "purchase quantity must be positive")
	}
	if p.UnitPrice.IsNegative() || p.DeliveryFee.IsNegative() || p.TotalAmount.IsNegative() {
		return Split{}, pkgerrors.New(pkgerrors.CodeValidation, "purchase amounts must not be negative")
	}
	product := p.ProductPrice()
	if !product.Add(p.DeliveryFee).Equal(p.TotalAmount) {
		return Split{}, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("total %s does not match product price %s plus delivery fee %s", p.TotalAmount, product, p.DeliveryFee))
	}

	switch c.base {
	case enums.CommissionBaseProduct:
		commission := c.rate.Mul(product).Round(c.scale)
		return Split{
			VendorAmount: product.Sub(commission),
			AgentAmount:  commission.Add(p.DeliveryFee),
		}, nil
	default:
		agent := c.rate.Mul(p.TotalAmount).Round(c.scale)
		return Split{
			VendorAmount: p.TotalAmount.Sub(agent),
			AgentAmount:  agent,
		}, nil
	}
}
