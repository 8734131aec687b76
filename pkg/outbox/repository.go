package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
)

var errNoTx = errors.New("outbox: caller transaction required")

// Repository reads and writes outbox_events. Every method runs on the
// caller's transaction.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Append inserts event unless its (event_type, aggregate_type, aggregate_id)
// is already queued. ON CONFLICT DO NOTHING keeps a duplicate from aborting
// the surrounding Postgres transaction.
func (r *Repository) Append(tx *gorm.DB, event *models.OutboxEvent) (bool, error) {
	if tx == nil {
		return false, errNoTx
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_type"}, {Name: "aggregate_type"}, {Name: "aggregate_id"}},
		DoNothing: true,
	}).Create(event)
	return res.RowsAffected > 0, res.Error
}

// FetchUnpublishedForPublish row-locks up to limit pending rows, oldest first.
// SKIP LOCKED lets several publishers drain the table side by side.
func (r *Repository) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	q := tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked}).
		Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	var rows []models.OutboxEvent
	err := q.Order("created_at, id").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	return r.update(tx, id, map[string]any{"published_at": time.Now().UTC()})
}

// MarkFailedTx records err and counts one more attempt.
func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	return r.update(tx, id, map[string]any{
		"last_error":    errorText(err),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// MarkTerminalTx pins attempt_count at the ceiling so the fetch never returns
// the row again.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	return r.update(tx, id, map[string]any{
		"last_error":    errorText(err),
		"attempt_count": terminalAttempts,
	})
}

func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, errNoTx
	}
	res := tx.WithContext(ctx).
		Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func (r *Repository) update(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(fields).Error
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
