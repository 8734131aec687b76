package enums

// TransactionStatus tracks where the money of a single-product purchase sits.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusHeld      TransactionStatus = "held"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusHeld,
	TransactionStatusCompleted,
	TransactionStatusCancelled,
	TransactionStatusRefunded,
}

// String implements fmt.Stringer.
func (s TransactionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TransactionStatus.
func (s TransactionStatus) IsValid() bool {
	return member(s, validTransactionStatuses)
}

// IsTerminal reports whether no further lifecycle event is accepted.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusCompleted, TransactionStatusCancelled, TransactionStatusRefunded:
		return true
	default:
		return false
	}
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	return parse("transaction status", value, validTransactionStatuses)
}

// TransactionEvent is an input to the transaction state machine.
type TransactionEvent string

const (
	TransactionEventPaymentSucceeded TransactionEvent = "payment_succeeded"
	TransactionEventPaymentFailed    TransactionEvent = "payment_failed"
	TransactionEventCancel           TransactionEvent = "cancel"
	TransactionEventRelease          TransactionEvent = "release"
	TransactionEventRefund           TransactionEvent = "refund"
)

func (e TransactionEvent) String() string {
	return string(e)
}
