package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/relivv-escrow/internal/repo"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/pagination"
)

// nextNumberSQL bumps the per-year counter atomically. Both Postgres and
// sqlite (3.35+) support upsert with RETURNING.
const nextNumberSQL = `
INSERT INTO invoice_sequences (year, last_value) VALUES (?, 1)
ON CONFLICT (year) DO UPDATE SET last_value = invoice_sequences.last_value + 1
RETURNING last_value`

// ListFilter narrows invoice listings. A zero UserID lists every invoice (admin).
type ListFilter struct {
	UserID uuid.UUID
	Role   enums.PartyRole
	Status enums.InvoiceStatus
	From   *time.Time
	To     *time.Time
	pagination.Params
}

type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

// NextNumber reserves the next sequence value for year.
func (r *Repository) NextNumber(ctx context.Context, year int) (int, error) {
	var value int
	if err := r.DB(ctx).Raw(nextNumberSQL, year).Scan(&value).Error; err != nil {
		return 0, fmt.Errorf("next invoice number: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("next invoice number: sequence returned %d", value)
	}
	return value, nil
}

// CreateIfAbsent inserts the invoice unless the transaction already has one.
func (r *Repository) CreateIfAbsent(ctx context.Context, invoice *models.Invoice) (bool, error) {
	res := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoNothing: true,
		}).
		Create(invoice)
	if res.Error != nil {
		return false, fmt.Errorf("create invoice: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// FindByTransactionID returns nil, nil when the transaction has no invoice yet.
func (r *Repository) FindByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.DB(ctx).Where("transaction_id = ?", transactionID).Take(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load invoice by transaction: %w", err)
	}
	return &invoice, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.DB(ctx).First(&invoice, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	return &invoice, nil
}

// UpdateStatus sets both status columns of the transaction's invoice, if any.
func (r *Repository) UpdateStatus(ctx context.Context, transactionID uuid.UUID, invoiceStatus enums.InvoiceStatus, paymentStatus enums.PaymentStatus) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Invoice{}).
		Where("transaction_id = ?", transactionID).
		Updates(map[string]any{
			"invoice_status": invoiceStatus,
			"payment_status": paymentStatus,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("update invoice status: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// List returns one page of invoices ordered by issue date, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Invoice, string, error) {
	q := r.DB(ctx).Model(&models.Invoice{})

	if filter.UserID != uuid.Nil {
		switch filter.Role {
		case enums.PartyRoleBuyer:
			q = q.Where("buyer_id = ?", filter.UserID)
		case enums.PartyRoleSeller:
			q = q.Where("seller_id = ?", filter.UserID)
		default:
			q = q.Where("buyer_id = ? OR seller_id = ?", filter.UserID, filter.UserID)
		}
	}
	if filter.Status != "" {
		q = q.Where("invoice_status = ?", filter.Status)
	}
	if filter.From != nil {
		q = q.Where("issued_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("issued_at <= ?", filter.To.UTC())
	}

	cursor, err := pagination.ParseCursor(filter.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		q = q.Where("(issued_at < ?) OR (issued_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Invoice
	if err := q.Order("issued_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(filter.Limit)).
		Find(&rows).Error; err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoices")
	}
	page, next := pagination.Trim(rows, filter.Limit, func(inv models.Invoice) pagination.Cursor {
		return pagination.Cursor{CreatedAt: inv.IssuedAt, ID: inv.ID}
	})
	return page, next, nil
}
