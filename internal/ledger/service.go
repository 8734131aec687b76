package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	"github.com/angelmondragon/relivv-escrow/pkg/money"
)

// Service records money movements. Each (transaction, type) pair is written
// at most once, so retries of release or refund never double-book.
type Service interface {
	RecordEvent(ctx context.Context, tx *gorm.DB, input RecordLedgerEventInput) (bool, error)
	HasEvent(ctx context.Context, transactionID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
	ListForTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.LedgerEvent, error)
}

type service struct {
	repo Repository
}

// RecordLedgerEventInput captures the immutable data a ledger event requires.
type RecordLedgerEventInput struct {
	TransactionID uuid.UUID             `json:"transaction_id"`
	Type          enums.LedgerEventType `json:"type"`
	Amount        decimal.Decimal       `json:"amount"`
	Currency      enums.Currency        `json:"currency"`
	Metadata      map[string]any        `json:"metadata,omitempty"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) RecordEvent(ctx context.Context, tx *gorm.DB, input RecordLedgerEventInput) (bool, error) {
	if input.TransactionID == uuid.Nil {
		return false, fmt.Errorf("transaction id is required")
	}
	if !input.Type.IsValid() {
		return false, fmt.Errorf("invalid ledger event type %q", input.Type)
	}
	if input.Amount.IsNegative() {
		return false, fmt.Errorf("ledger amount must not be negative")
	}
	if input.Currency == "" {
		input.Currency = money.DefaultCurrency
	}

	var metadata json.RawMessage
	if len(input.Metadata) > 0 {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return false, fmt.Errorf("encode ledger metadata: %w", err)
		}
		metadata = raw
	}

	event := &models.LedgerEvent{
		TransactionID: input.TransactionID,
		Type:          input.Type,
		Amount:        money.Round(input.Amount),
		Currency:      input.Currency,
		Metadata:      metadata,
	}
	return s.repo.WithTx(tx).CreateOnce(ctx, event)
}

func (s *service) HasEvent(ctx context.Context, transactionID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	if transactionID == uuid.Nil {
		return false, fmt.Errorf("transaction id is required")
	}
	if !eventType.IsValid() {
		return false, fmt.Errorf("invalid ledger event type %q", eventType)
	}

	events, err := s.repo.ListByTransactionID(ctx, transactionID)
	if err != nil {
		return false, err
	}
	for _, event := range events {
		if event.Type == eventType {
			return true, nil
		}
	}
	return false, nil
}

func (s *service) ListForTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.LedgerEvent, error) {
	return s.repo.ListByTransactionID(ctx, transactionID)
}
