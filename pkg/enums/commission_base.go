package enums

// CommissionBase selects which amount the agent rate applies to.
type CommissionBase string

const (
	CommissionBaseTotal   CommissionBase = "total"
	CommissionBaseProduct CommissionBase = "product"
)

var commissionBases = newSet("commission base", CommissionBaseTotal, CommissionBaseProduct)

func (c CommissionBase) IsValid() bool { return commissionBases.has(c) }

// ParseCommissionBase converts raw input into a CommissionBase.
func ParseCommissionBase(value string) (CommissionBase, error) { return commissionBases.parse(value) }
