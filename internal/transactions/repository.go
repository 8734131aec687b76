package transactions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/internal/repo"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/pagination"
)

// ListFilter narrows a user's transaction history.
type ListFilter struct {
	UserID uuid.UUID
	Role   enums.PartyRole
	Status enums.TransactionStatus
	From   *time.Time
	To     *time.Time
	pagination.Params
}

// Repository persists transactions. Every status write goes through Update,
// which is guarded by the row version.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

func (r *Repository) Create(ctx context.Context, txn *models.Transaction) error {
	if txn.Version == 0 {
		txn.Version = 1
	}
	return r.DB(ctx).Create(txn).Error
}

// FindByID loads the transaction or returns NOT_FOUND.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return r.find(r.DB(ctx), id)
}

// FindByIDForUpdate row-locks the transaction on Postgres. sqlite has no row
// locks and serialises writers instead.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return r.find(r.Locked(ctx), id)
}

func (r *Repository) find(db *gorm.DB, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	if err := db.First(&txn, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	return &txn, nil
}

// ListBySessionID returns every transaction linked to a gateway session.
func (r *Repository) ListBySessionID(ctx context.Context, sessionID string) ([]models.Transaction, error) {
	var rows []models.Transaction
	if err := r.DB(ctx).
		Where("payment_session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list session transactions")
	}
	return rows, nil
}

// ListReleaseDue returns held, confirmed transactions whose auto-release time has passed.
func (r *Repository) ListReleaseDue(ctx context.Context, now time.Time, limit int) ([]models.Transaction, error) {
	var rows []models.Transaction
	if err := r.DB(ctx).
		Where("status = ? AND delivery_status = ? AND auto_release_at <= ?",
			enums.TransactionStatusHeld, enums.DeliveryStatusConfirmed, now.UTC()).
		Order("auto_release_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list release-due transactions")
	}
	return rows, nil
}

// ListUnpaidBefore returns pending transactions created before cutoff that
// never got a payment session, oldest first.
func (r *Repository) ListUnpaidBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error) {
	var rows []models.Transaction
	if err := r.DB(ctx).
		Where("status = ? AND payment_session_id IS NULL AND created_at < ?",
			enums.TransactionStatusPending, cutoff.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unpaid transactions")
	}
	return rows, nil
}

// List returns one page of a user's history, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Transaction, string, error) {
	q := r.DB(ctx).Model(&models.Transaction{})

	switch filter.Role {
	case enums.PartyRoleBuyer:
		q = q.Where("buyer_id = ?", filter.UserID)
	case enums.PartyRoleSeller:
		q = q.Where("seller_id = ?", filter.UserID)
	default:
		q = q.Where("buyer_id = ? OR seller_id = ?", filter.UserID, filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("created_at <= ?", filter.To.UTC())
	}

	cursor, err := pagination.ParseCursor(filter.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Transaction
	if err := q.Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(filter.Limit)).
		Find(&rows).Error; err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}

	page, next := pagination.Trim(rows, filter.Limit, func(t models.Transaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	return page, next, nil
}

// LinkSession stamps the gateway session id on still-pending transactions.
func (r *Repository) LinkSession(ctx context.Context, ids []uuid.UUID, sessionID string) error {
	if len(ids) == 0 {
		return nil
	}
	res := r.DB(ctx).
		Model(&models.Transaction{}).
		Where("id IN ? AND status = ?", ids, enums.TransactionStatusPending).
		Updates(map[string]any{
			"payment_session_id": sessionID,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "link payment session")
	}
	if res.RowsAffected != int64(len(ids)) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction changed concurrently")
	}
	return nil
}

// Update writes changes only if the row still carries txn.Version. On success
// txn.Version is bumped to match the stored row.
func (r *Repository) Update(ctx context.Context, txn *models.Transaction, changes map[string]any) error {
	now := time.Now().UTC()
	changes["version"] = txn.Version + 1
	changes["updated_at"] = now

	res := r.DB(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND version = ?", txn.ID, txn.Version).
		Updates(changes)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update transaction")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction changed concurrently").
			WithDetails(map[string]any{"transaction_id": txn.ID, "version": txn.Version})
	}
	txn.Version++
	txn.UpdatedAt = now
	return nil
}
