package enums

// DeliveryMethod describes how goods reach the buyer.
type DeliveryMethod string

const (
	DeliveryMethodPickup   DeliveryMethod = "pickup"
	DeliveryMethodDelivery DeliveryMethod = "delivery"
)

var deliveryMethods = newSet("delivery method", DeliveryMethodPickup, DeliveryMethodDelivery)

func (d DeliveryMethod) IsValid() bool { return deliveryMethods.has(d) }

// ParseDeliveryMethod converts raw input into a DeliveryMethod.
func ParseDeliveryMethod(value string) (DeliveryMethod, error) { return deliveryMethods.parse(value) }
