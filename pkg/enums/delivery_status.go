package enums

import "fmt"

// DeliveryStatus is the buyer-reported delivery sub-state of a held transaction.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusConfirmed DeliveryStatus = "confirmed"
	DeliveryStatusDisputed  DeliveryStatus = "disputed"
)

var validDeliveryStatuses = []DeliveryStatus{
	DeliveryStatusPending,
	DeliveryStatusConfirmed,
	DeliveryStatusDisputed,
}

func (d DeliveryStatus) String() string {
	return string(d)
}

func (d DeliveryStatus) IsValid() bool {
	return member(d, validDeliveryStatuses)
}

// DeliveryOutcome is what the buyer reports when confirming delivery.
type DeliveryOutcome string

const (
	DeliveryOutcomeDelivered DeliveryOutcome = "delivered"
	DeliveryOutcomeDispute   DeliveryOutcome = "dispute"
)

// ParseDeliveryOutcome converts raw input into a DeliveryOutcome.
func ParseDeliveryOutcome(value string) (DeliveryOutcome, error) {
	switch DeliveryOutcome(value) {
	case DeliveryOutcomeDelivered, DeliveryOutcomeDispute:
		return DeliveryOutcome(value), nil
	default:
		return "", fmt.Errorf("invalid delivery outcome %q", value)
	}
}
