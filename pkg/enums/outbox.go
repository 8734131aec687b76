package enums

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateTransaction    OutboxAggregateType = "transaction"
	AggregatePaymentSession OutboxAggregateType = "payment_session"
	AggregateInvoice        OutboxAggregateType = "invoice"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateTransaction,
	AggregatePaymentSession,
	AggregateInvoice,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return member(a, validAggregateTypes)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", value, validAggregateTypes)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventPaymentHeld          OutboxEventType = "payment_held"
	EventPaymentFailed        OutboxEventType = "payment_failed"
	EventPaymentOrphaned      OutboxEventType = "payment_orphaned"
	EventInvoiceIssued        OutboxEventType = "invoice_issued"
	EventDeliveryConfirmed    OutboxEventType = "delivery_confirmed"
	EventDeliveryDisputed     OutboxEventType = "delivery_disputed"
	EventFundsReleased        OutboxEventType = "funds_released"
	EventTransactionRefunded  OutboxEventType = "transaction_refunded"
	EventTransactionCancelled OutboxEventType = "transaction_cancelled"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPaymentHeld,
	EventPaymentFailed,
	EventPaymentOrphaned,
	EventInvoiceIssued,
	EventDeliveryConfirmed,
	EventDeliveryDisputed,
	EventFundsReleased,
	EventTransactionRefunded,
	EventTransactionCancelled,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	return member(e, validOutboxEventTypes)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", value, validOutboxEventTypes)
}
