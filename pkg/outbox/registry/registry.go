// Package registry routes outbox rows to Pub/Sub topics and decodes their payloads.
package registry

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/relivv-escrow/pkg/config"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	"github.com/angelmondragon/relivv-escrow/pkg/outbox"
	"github.com/angelmondragon/relivv-escrow/pkg/outbox/payloads"
)

type channel int

const (
	escrowChannel channel = iota
	notificationChannel
)

type route struct {
	aggregate enums.OutboxAggregateType
	channel   channel
	payload   func() any
}

// Lifecycle events feed the escrow topic. Anything a buyer or seller is told
// about goes to the notification topic.
var routes = map[enums.OutboxEventType]route{
	enums.EventPaymentHeld:          {enums.AggregateTransaction, escrowChannel, func() any { return &payloads.PaymentHeldEvent{} }},
	enums.EventPaymentOrphaned:      {enums.AggregateTransaction, escrowChannel, func() any { return &payloads.PaymentOrphanedEvent{} }},
	enums.EventFundsReleased:        {enums.AggregateTransaction, escrowChannel, func() any { return &payloads.FundsReleasedEvent{} }},
	enums.EventTransactionRefunded:  {enums.AggregateTransaction, escrowChannel, func() any { return &payloads.TransactionClosedEvent{} }},
	enums.EventPaymentFailed:        {enums.AggregateTransaction, notificationChannel, func() any { return &payloads.PaymentFailedEvent{} }},
	enums.EventInvoiceIssued:        {enums.AggregateInvoice, notificationChannel, func() any { return &payloads.InvoiceIssuedEvent{} }},
	enums.EventDeliveryConfirmed:    {enums.AggregateTransaction, notificationChannel, func() any { return &payloads.DeliveryUpdatedEvent{} }},
	enums.EventDeliveryDisputed:     {enums.AggregateTransaction, notificationChannel, func() any { return &payloads.DeliveryUpdatedEvent{} }},
	enums.EventTransactionCancelled: {enums.AggregateTransaction, notificationChannel, func() any { return &payloads.TransactionClosedEvent{} }},
}

// EventDescriptor is the resolved routing for one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is an outbox row with its envelope and typed payload decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will never publish no matter how often it is retried.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable"
	}
	return "non-retryable: " + e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err carries a NonRetryableError.
func IsNonRetryable(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}

type EventRegistry struct {
	topics [2]string
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	switch {
	case cfg.EscrowTopic == "":
		return nil, errors.New("escrow topic is required")
	case cfg.NotificationTopic == "":
		return nil, errors.New("notification topic is required")
	}
	return &EventRegistry{topics: [2]string{cfg.EscrowTopic, cfg.NotificationTopic}}, nil
}

// Resolve checks the row against its route and decodes the payload.
// Every failure is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	rt, ok := routes[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %q", event.EventType))
	case rt.aggregate != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("%s belongs to %s, row says %s", event.EventType, rt.aggregate, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(fmt.Errorf("%s row has no aggregate id", event.EventType))
	}

	payload := rt.payload()
	envelope, err := outbox.OpenEnvelope(event.Payload, payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	return &ResolvedEvent{
		Descriptor: EventDescriptor{
			EventType:     event.EventType,
			AggregateType: rt.aggregate,
			Topic:         r.topics[rt.channel],
		},
		Envelope: envelope,
		Payload:  payload,
	}, nil
}
