package enums

// LedgerEventType classifies money movements recorded against a transaction.
type LedgerEventType string

const (
	LedgerEventTypePaymentHeld      LedgerEventType = "payment_held"
	LedgerEventTypeVendorPayout     LedgerEventType = "vendor_payout"
	LedgerEventTypeCommissionEarned LedgerEventType = "commission_earned"
	LedgerEventTypeRefund           LedgerEventType = "refund"
)

var validLedgerEventTypes = []LedgerEventType{
	LedgerEventTypePaymentHeld,
	LedgerEventTypeVendorPayout,
	LedgerEventTypeCommissionEarned,
	LedgerEventTypeRefund,
}

// IsValid reports whether the value matches the canonical ledger event enum.
func (t LedgerEventType) IsValid() bool {
	return member(t, validLedgerEventTypes)
}

// ParseLedgerEventType converts raw input into LedgerEventType.
func ParseLedgerEventType(value string) (LedgerEventType, error) {
	return parse("ledger event type", value, validLedgerEventTypes)
}
