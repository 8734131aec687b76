package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/internal/repo"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
)

// SessionRepository persists payment sessions.
type SessionRepository struct {
	repo.Base
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{Base: repo.NewBase(db)}
}

func (r *SessionRepository) WithTx(tx *gorm.DB) *SessionRepository {
	return &SessionRepository{Base: r.Bind(tx)}
}

func (r *SessionRepository) Create(ctx context.Context, sess *models.PaymentSession) error {
	if err := r.DB(ctx).Create(sess).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment session")
	}
	return nil
}

func (r *SessionRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.PaymentSession, error) {
	var sess models.PaymentSession
	if err := r.DB(ctx).Where("session_id = ?", sessionID).Take(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment session")
	}
	return &sess, nil
}

// SettleFromPending moves a pending session to status. It reports false when
// another writer already settled the session, in which case nothing changed.
func (r *SessionRepository) SettleFromPending(ctx context.Context, sessionID string, status enums.PaymentStatus) (bool, error) {
	res := r.DB(ctx).
		Model(&models.PaymentSession{}).
		Where("session_id = ? AND payment_status = ?", sessionID, enums.PaymentStatusPending).
		Updates(map[string]any{
			"payment_status": status,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "settle payment session")
	}
	return res.RowsAffected == 1, nil
}

// MarkRefunded flips a paid session to refunded.
func (r *SessionRepository) MarkRefunded(ctx context.Context, sessionID string) (bool, error) {
	res := r.DB(ctx).
		Model(&models.PaymentSession{}).
		Where("session_id = ? AND payment_status = ?", sessionID, enums.PaymentStatusPaid).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusRefunded,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "refund payment session")
	}
	return res.RowsAffected == 1, nil
}

// ListPendingBefore returns sessions still pending that were opened before cutoff, oldest first.
func (r *SessionRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentSession, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.PaymentSession
	err := r.DB(ctx).
		Where("payment_status = ? AND created_at < ?", enums.PaymentStatusPending, cutoff.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list pending sessions: %w", err)
	}
	return rows, nil
}
