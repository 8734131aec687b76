// Package outbox queues domain events in the same database transaction as the
// state change that caused them. cmd/outbox-publisher ships them to Pub/Sub.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

// DomainEvent is what callers hand to Emit. Zero Version and OccurredAt are
// filled in when the envelope is sealed.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

type appender interface {
	Append(tx *gorm.DB, event *models.OutboxEvent) (bool, error)
}

type Service struct {
	repo appender
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit queues event inside tx. Each event type is queued at most once per
// aggregate; queued reports whether this call wrote the row.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) (queued bool, err error) {
	if tx == nil {
		return false, errNoTx
	}
	envelope, raw, err := sealEnvelope(event, s.now())
	if err != nil {
		return false, err
	}
	row := models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       json.RawMessage(raw),
	}
	if queued, err = s.repo.Append(tx, &row); err != nil {
		return false, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":       envelope.EventID,
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
	})
	if queued {
		s.logg.Info(ctx, "outbox event queued")
	} else {
		s.logg.Info(ctx, "outbox event already queued")
	}
	return queued, nil
}
