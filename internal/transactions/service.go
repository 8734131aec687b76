package transactions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/internal/cart"
	"github.com/angelmondragon/relivv-escrow/pkg/auth"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type reserver interface {
	ReserveTx(ctx context.Context, tx *gorm.DB, productID, buyerID uuid.UUID) (*models.Transaction, error)
}

type deliveryNotifier interface {
	DeliveryUpdated(ctx context.Context, tx *gorm.DB, txn *models.Transaction, at time.Time) error
}

// ListResult is one page of transaction history.
type ListResult struct {
	Items      []models.Transaction `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// Service exposes the party-facing transaction operations.
type Service struct {
	tx       txRunner
	repo     *Repository
	ledger   *Ledger
	gate     reserver
	cart     *cart.Repository
	notifier deliveryNotifier
	logg     *logger.Logger
	now      func() time.Time
}

type ServiceParams struct {
	Tx       txRunner
	Repo     *Repository
	Ledger   *Ledger
	Gate     reserver
	Cart     *cart.Repository
	Notifier deliveryNotifier
	Logger   *logger.Logger
	Now      func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case p.Repo == nil:
		return nil, fmt.Errorf("transaction repository required")
	case p.Ledger == nil:
		return nil, fmt.Errorf("ledger required")
	case p.Gate == nil:
		return nil, fmt.Errorf("reservation gate required")
	case p.Cart == nil:
		return nil, fmt.Errorf("cart repository required")
	case p.Notifier == nil:
		return nil, fmt.Errorf("notifier required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Service{
		tx:       p.Tx,
		repo:     p.Repo,
		ledger:   p.Ledger,
		gate:     p.Gate,
		cart:     p.Cart,
		notifier: p.Notifier,
		logg:     p.Logger,
		now:      p.Now,
	}, nil
}

// Create reserves the product and opens a pending transaction for buyerID.
// The product leaves the buyer's cart in the same DB transaction. Checkout of
// the product then pays for this transaction instead of reserving again.
func (s *Service) Create(ctx context.Context, buyerID, productID uuid.UUID) (*models.Transaction, error) {
	if buyerID == uuid.Nil || productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer and product are required")
	}
	var txn *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if txn, err = s.gate.ReserveTx(ctx, tx, productID, buyerID); err != nil {
			return err
		}
		if _, err = s.cart.WithTx(tx).Remove(ctx, buyerID, productID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart line")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithTransactionID(ctx, txn.ID.String()), "transaction created")
	return txn, nil
}

// Get returns the transaction if the caller is a party to it or an admin.
func (s *Service) Get(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Transaction, error) {
	txn, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !txn.IsParty(actor.UserID) {
		// Hide existence from strangers.
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	return txn, nil
}

// List returns the caller's history as buyer, seller or both.
func (s *Service) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	if filter.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
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

// ConfirmDelivery records the buyer's delivery outcome. Repeating the outcome
// already stored returns the transaction unchanged.
func (s *Service) ConfirmDelivery(ctx context.Context, id, buyerID uuid.UUID, outcome enums.DeliveryOutcome) (*models.Transaction, error) {
	if _, err := enums.ParseDeliveryOutcome(string(outcome)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery outcome")
	}
	ctx = s.logg.WithTransactionID(ctx, id.String())

	var result *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if txn.BuyerID != buyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can report delivery")
		}
		if alreadyReported(txn.DeliveryStatus, outcome) {
			result = txn
			return nil
		}

		now := s.now()
		if err := s.ledger.ApplyDelivery(ctx, tx, txn, outcome, now); err != nil {
			return err
		}
		if err := s.notifier.DeliveryUpdated(ctx, tx, txn, now); err != nil {
			return err
		}
		result = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "delivery_status", result.DeliveryStatus), "delivery reported")
	return result, nil
}

func alreadyReported(current enums.DeliveryStatus, outcome enums.DeliveryOutcome) bool {
	return (current == enums.DeliveryStatusConfirmed && outcome == enums.DeliveryOutcomeDelivered) ||
		(current == enums.DeliveryStatusDisputed && outcome == enums.DeliveryOutcomeDispute)
}
