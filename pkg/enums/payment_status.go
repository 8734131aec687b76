package enums

// PaymentStatus is the state of one gateway checkout session.
// Pending is the only non-terminal value.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusExpired  PaymentStatus = "expired"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

var paymentStatuses = []PaymentStatus{
	PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed,
	PaymentStatusExpired, PaymentStatusRefunded,
}

func (p PaymentStatus) IsValid() bool { return member(p, paymentStatuses) }

// IsSettled is true once the gateway has given a final answer.
func (p PaymentStatus) IsSettled() bool {
	return p.IsValid() && p != PaymentStatusPending
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parse("payment status", value, paymentStatuses)
}
