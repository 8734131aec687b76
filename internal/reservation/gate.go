// Package reservation claims a product for exactly one buyer and opens the
// pending transaction that owns the claim.
package reservation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/internal/products"
	"github.com/angelmondragon/relivv-escrow/internal/transactions"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
	"github.com/angelmondragon/relivv-escrow/pkg/money"
)

// Conflict reasons surfaced in error details.
const (
	ReasonAlreadyReserved = "already_reserved"
	ReasonSelfPurchase    = "self_purchase"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Gate reserves products. All writes of one reservation share a DB transaction.
type Gate struct {
	tx       txRunner
	products *products.Repository
	txns     *transactions.Repository
	logg     *logger.Logger
}

func NewGate(tx txRunner, productRepo *products.Repository, txnRepo *transactions.Repository, logg *logger.Logger) (*Gate, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if productRepo == nil || txnRepo == nil {
		return nil, fmt.Errorf("product and transaction repositories required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Gate{tx: tx, products: productRepo, txns: txnRepo, logg: logg}, nil
}

// AlreadyReserved builds the conflict returned when the product is taken.
func AlreadyReserved(productID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "product already reserved").
		WithDetails(map[string]any{"reason": ReasonAlreadyReserved, "product_id": productID})
}

// SelfPurchase builds the conflict returned when a seller tries to buy their own listing.
func SelfPurchase(productID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "cannot purchase your own product").
		WithDetails(map[string]any{"reason": ReasonSelfPurchase, "product_id": productID})
}

// Reserve claims productID for buyerID in its own DB transaction.
func (g *Gate) Reserve(ctx context.Context, productID, buyerID uuid.UUID) (*models.Transaction, error) {
	var txn *models.Transaction
	err := g.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		txn, err = g.ReserveTx(ctx, tx, productID, buyerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	g.logg.Info(g.logg.WithTransactionID(ctx, txn.ID.String()), "product reserved")
	return txn, nil
}

// ReserveTx runs the reservation inside the caller's transaction so several
// products can be reserved all-or-nothing. The transaction row is inserted
// before the claim so the product's reserved_transaction_id always points at a
// real row; losing the claim returns an error and the caller rolls both back.
func (g *Gate) ReserveTx(ctx context.Context, tx *gorm.DB, productID, buyerID uuid.UUID) (*models.Transaction, error) {
	productRepo := g.products.WithTx(tx)

	product, err := productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.SellerID == buyerID {
		return nil, SelfPurchase(productID)
	}
	if product.IsSold {
		return nil, AlreadyReserved(productID)
	}

	split := money.Split(product.Price)
	currency := product.Currency
	if currency == "" {
		currency = money.DefaultCurrency
	}
	txn := &models.Transaction{
		ID:              uuid.New(),
		ProductID:       product.ID,
		BuyerID:         buyerID,
		SellerID:        product.SellerID,
		Amount:          split.Amount,
		CommissionRate:  split.CommissionRate,
		Commission:      split.Commission,
		TotalAmount:     split.Total,
		Currency:        currency,
		Status:          enums.TransactionStatusPending,
		PaymentProvider: enums.PaymentProviderStripe,
		DeliveryStatus:  enums.DeliveryStatusPending,
		Version:         1,
	}
	if err := g.txns.WithTx(tx).Create(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction")
	}

	claimed, err := productRepo.Claim(ctx, productID, txn.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, AlreadyReserved(productID)
	}
	return txn, nil
}
