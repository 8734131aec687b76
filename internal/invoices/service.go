package invoices

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/pkg/auth"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/money"
)

// ListResult is one page of invoices.
type ListResult struct {
	Items      []models.Invoice `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// Service issues and reads invoices.
type Service struct {
	repo *Repository
}

func NewService(repo *Repository) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("invoice repository required")
	}
	return &Service{repo: repo}, nil
}

// FormatNumber renders INV-YYYY-NNNNN.
func FormatNumber(year, seq int) string {
	return fmt.Sprintf("INV-%d-%05d", year, seq)
}

// Ensure returns the transaction's invoice, issuing it first if needed. It
// must run inside the DB transaction that moves txn to held or completed.
// The boolean reports whether this call created the invoice.
func (s *Service) Ensure(ctx context.Context, tx *gorm.DB, txn *models.Transaction, at time.Time) (*models.Invoice, bool, error) {
	repo := s.repo.WithTx(tx)

	existing, err := repo.FindByTransactionID(ctx, txn.ID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	at = at.UTC()
	seq, err := repo.NextNumber(ctx, at.Year())
	if err != nil {
		return nil, false, err
	}
	invoice := &models.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: FormatNumber(at.Year(), seq),
		TransactionID: txn.ID,
		BuyerID:       txn.BuyerID,
		SellerID:      txn.SellerID,
		ProductID:     txn.ProductID,
		Amount:        txn.Amount,
		Commission:    txn.Commission,
		VATAmount:     money.VAT(txn.TotalAmount),
		TotalAmount:   txn.TotalAmount,
		Currency:      txn.Currency,
		PaymentStatus: enums.PaymentStatusPaid,
		InvoiceStatus: enums.InvoiceStatusPaid,
		IssuedAt:      at,
	}
	created, err := repo.CreateIfAbsent(ctx, invoice)
	if err != nil {
		return nil, false, err
	}
	if created {
		return invoice, true, nil
	}

	// A concurrent issuer won; the sequence value we took is skipped.
	existing, err = repo.FindByTransactionID(ctx, txn.ID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("invoice for transaction %s vanished after conflict", txn.ID)
	}
	return existing, false, nil
}

// MarkRefunded flips the transaction's invoice to refunded. Transactions that
// never reached held have no invoice and are left alone.
func (s *Service) MarkRefunded(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (bool, error) {
	return s.repo.WithTx(tx).UpdateStatus(ctx, transactionID, enums.InvoiceStatusRefunded, enums.PaymentStatusRefunded)
}

// Get returns the invoice if the actor is its buyer, its seller or an admin.
func (s *Service) Get(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() || invoice.BuyerID == actor.UserID || invoice.SellerID == actor.UserID {
		return invoice, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
}

// List returns the user's invoices as buyer, seller or both.
func (s *Service) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	if filter.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	return s.list(ctx, filter)
}

// ListAll is the admin view across every user.
func (s *Service) ListAll(ctx context.Context, filter ListFilter) (*ListResult, error) {
	filter.UserID = uuid.Nil
	filter.Role = ""
	return s.list(ctx, filter)
}

func (s *Service) list(ctx context.Context, filter ListFilter) (*ListResult, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid invoice status")
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must not be after to")
	}
	items, next, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &ListResult{Items: items, NextCursor: next}, nil
}
