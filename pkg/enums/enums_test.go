package enums

import "testing"

func TestTransactionStatusTerminal(t *testing.T) {
	terminal := map[TransactionStatus]bool{
		TransactionStatusPending:   false,
		TransactionStatusHeld:      false,
		TransactionStatusCompleted: true,
		TransactionStatusCancelled: true,
		TransactionStatusRefunded:  true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Fatalf("%s: expected terminal=%v got %v", status, want, got)
		}
	}
}

func TestParseTransactionStatusRejectsUnknown(t *testing.T) {
	if _, err := ParseTransactionStatus("shipped"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	got, err := ParseTransactionStatus("held")
	if err != nil || got != TransactionStatusHeld {
		t.Fatalf("expected held, got %q (%v)", got, err)
	}
}

func TestPaymentStatusSettled(t *testing.T) {
	if PaymentStatusPending.IsSettled() {
		t.Fatal("pending must not be settled")
	}
	for _, status := range []PaymentStatus{PaymentStatusPaid, PaymentStatusFailed, PaymentStatusExpired} {
		if !status.IsSettled() {
			t.Fatalf("%s should be settled", status)
		}
	}
}

func TestOutboxEnumsRoundTrip(t *testing.T) {
	for _, eventType := range validOutboxEventTypes {
		parsed, err := ParseOutboxEventType(string(eventType))
		if err != nil || parsed != eventType {
			t.Fatalf("failed to parse %q", eventType)
		}
	}
	if AggregateType := OutboxAggregateType("vendor_order"); AggregateType.IsValid() {
		t.Fatal("unexpected aggregate type accepted")
	}
}

func TestParseCurrencyNormalizesCase(t *testing.T) {
	got, err := ParseCurrency(" eur ")
	if err != nil || got != CurrencyEUR {
		t.Fatalf("expected EUR, got %q (%v)", got, err)
	}
	if CurrencyEUR.Lower() != "eur" {
		t.Fatalf("unexpected lower form %q", CurrencyEUR.Lower())
	}
	if _, err := ParseCurrency("USD"); err == nil {
		t.Fatal("expected USD to be rejected")
	}
}

func TestOutboxDLQReasonParse(t *testing.T) {
	if r, err := ParseOutboxDLQErrorReason("max_attempts"); err != nil || r != OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected reason %q (%v)", r, err)
	}
	if _, err := ParseOutboxDLQErrorReason("gave_up"); err == nil {
		t.Fatal("expected unknown reason to be rejected")
	}
}
