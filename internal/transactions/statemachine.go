package transactions

import (
	"fmt"

	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
)

// transitions is the full lifecycle table. Anything absent is rejected, which
// makes completed, cancelled and refunded terminal.
var transitions = map[enums.TransactionStatus]map[enums.TransactionEvent]enums.TransactionStatus{
	enums.TransactionStatusPending: {
		enums.TransactionEventPaymentSucceeded: enums.TransactionStatusHeld,
		enums.TransactionEventPaymentFailed:    enums.TransactionStatusCancelled,
		enums.TransactionEventCancel:           enums.TransactionStatusCancelled,
	},
	enums.TransactionStatusHeld: {
		enums.TransactionEventRelease: enums.TransactionStatusCompleted,
		enums.TransactionEventRefund:  enums.TransactionStatusRefunded,
	},
}

// Transition returns the status reached by applying event to current.
func Transition(current enums.TransactionStatus, event enums.TransactionEvent) (enums.TransactionStatus, error) {
	next, ok := transitions[current][event]
	if !ok {
		return "", invalidState(fmt.Sprintf("cannot apply %s to a %s transaction", event, current), map[string]any{
			"status": current,
			"event":  event,
		})
	}
	return next, nil
}

// DeliveryTransition returns the delivery status reached when the buyer
// reports outcome. A confirmed delivery can still be disputed until funds are
// released.
func DeliveryTransition(current enums.DeliveryStatus, outcome enums.DeliveryOutcome) (enums.DeliveryStatus, error) {
	switch {
	case current == enums.DeliveryStatusPending && outcome == enums.DeliveryOutcomeDelivered:
		return enums.DeliveryStatusConfirmed, nil
	case current == enums.DeliveryStatusPending && outcome == enums.DeliveryOutcomeDispute:
		return enums.DeliveryStatusDisputed, nil
	case current == enums.DeliveryStatusConfirmed && outcome == enums.DeliveryOutcomeDispute:
		return enums.DeliveryStatusDisputed, nil
	}
	return "", invalidState(fmt.Sprintf("cannot report %s on a %s delivery", outcome, current), map[string]any{
		"delivery_status": current,
		"outcome":         outcome,
	})
}

func invalidState(message string, details map[string]any) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).WithDetails(details)
}
