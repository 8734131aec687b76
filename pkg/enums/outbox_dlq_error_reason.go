package enums

import "fmt"

// OutboxDLQErrorReason explains why an outbox row was dead-lettered.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts means publishing kept failing until the
	// attempt budget ran out.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable means the row can never be published,
	// e.g. an unregistered event type.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) String() string {
	return string(r)
}

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable:
		return true
	default:
		return false
	}
}

// ParseOutboxDLQErrorReason converts a stored value back into a reason.
func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	reason := OutboxDLQErrorReason(value)
	if !reason.IsValid() {
		return "", fmt.Errorf("invalid outbox dlq reason %q", value)
	}
	return reason, nil
}
