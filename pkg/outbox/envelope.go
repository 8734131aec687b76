package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is stamped on events that do not pick their own schema version.
const EnvelopeVersion = 1

// ErrEmptyEnvelopeData is returned by OpenEnvelope when the data field is absent or null.
var ErrEmptyEnvelopeData = errors.New("envelope data is empty")

// ActorRef identifies who produced the event. System jobs leave it nil.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope wraps every payload stored in outbox_events.payload.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func sealEnvelope(event DomainEvent, now time.Time) (PayloadEnvelope, []byte, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return PayloadEnvelope{}, nil, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	env := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	if env.Version <= 0 {
		env.Version = EnvelopeVersion
	}
	if event.OccurredAt.IsZero() {
		env.OccurredAt = now.UTC()
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return PayloadEnvelope{}, nil, fmt.Errorf("encode envelope: %w", err)
	}
	return env, raw, nil
}

// OpenEnvelope decodes a stored payload and, when into is non-nil, its data.
func OpenEnvelope(raw []byte, into any) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return env, ErrEmptyEnvelopeData
	}
	if into == nil {
		return env, nil
	}
	if err := json.Unmarshal(data, into); err != nil {
		return env, fmt.Errorf("decode envelope data: %w", err)
	}
	return env, nil
}
