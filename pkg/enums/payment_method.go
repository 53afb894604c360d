package enums

// PaymentMethod records how the buyer settled with the vendor: mobile money
// up front, or credit carried on the vendor's book.
type PaymentMethod string

const (
	PaymentMethodMobileMoney PaymentMethod = "mobile_money"
	PaymentMethodCredit      PaymentMethod = "credit"
)

var paymentMethods = newSet("payment method", PaymentMethodMobileMoney, PaymentMethodCredit)

func (p PaymentMethod) IsValid() bool { return paymentMethods.has(p) }

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) { return paymentMethods.parse(value) }
