// Package checkout opens a gateway payment session for one product or a whole
// cart. Products are reserved before the gateway is called so two buyers can
// never pay for the same item.
package checkout

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/internal/cart"
	"github.com/angelmondragon/relivv-escrow/internal/payments"
	"github.com/angelmondragon/relivv-escrow/internal/products"
	"github.com/angelmondragon/relivv-escrow/internal/transactions"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
	"github.com/angelmondragon/relivv-escrow/pkg/metrics"
	"github.com/angelmondragon/relivv-escrow/pkg/money"
)

// compensationTimeout bounds the rollback of reservations after a failed
// checkout. It runs detached from the request.
const compensationTimeout = 10 * time.Second

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type reserver interface {
	ReserveTx(ctx context.Context, tx *gorm.DB, productID, buyerID uuid.UUID) (*models.Transaction, error)
}

// Result is returned to the buyer, who is redirected to RedirectURL.
type Result struct {
	SessionID    string               `json:"session_id"`
	RedirectURL  string               `json:"redirect_url"`
	Amount       decimal.Decimal      `json:"amount"`
	Currency     enums.Currency       `json:"currency"`
	Transactions []models.Transaction `json:"transactions"`
	Skipped      []uuid.UUID          `json:"skipped_product_ids,omitempty"`
}

// Service executes checkout orchestration.
type Service interface {
	CheckoutProduct(ctx context.Context, buyerID, productID uuid.UUID, origin string) (*Result, error)
	CheckoutCart(ctx context.Context, buyerID uuid.UUID, origin string) (*Result, error)
}

type ServiceParams struct {
	Tx           txRunner
	Gate         reserver
	Products     *products.Repository
	Transactions *transactions.Repository
	Ledger       *transactions.Ledger
	Sessions     *payments.SessionRepository
	Cart         *cart.Repository
	Gateway      payments.Gateway
	Metrics      *metrics.PaymentMetrics
	Logger       *logger.Logger
	Now          func() time.Time
}

type service struct {
	tx       txRunner
	gate     reserver
	products *products.Repository
	txns     *transactions.Repository
	ledger   *transactions.Ledger
	sessions *payments.SessionRepository
	cart     *cart.Repository
	gateway  payments.Gateway
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the checkout service.
func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case p.Gate == nil:
		return nil, fmt.Errorf("reservation gate required")
	case p.Products == nil || p.Transactions == nil || p.Sessions == nil || p.Cart == nil:
		return nil, fmt.Errorf("product, transaction, session and cart repositories required")
	case p.Ledger == nil:
		return nil, fmt.Errorf("transaction ledger required")
	case p.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &service{
		tx:       p.Tx,
		gate:     p.Gate,
		products: p.Products,
		txns:     p.Transactions,
		ledger:   p.Ledger,
		sessions: p.Sessions,
		cart:     p.Cart,
		gateway:  p.Gateway,
		metrics:  p.Metrics,
		logg:     p.Logger,
		now:      p.Now,
	}, nil
}

// reserved pairs a transaction with the product title shown at checkout.
// existing marks a pending transaction the buyer opened earlier; compensation
// leaves it alone.
type reserved struct {
	txn      *models.Transaction
	title    string
	existing bool
}

// pendingFor returns the buyer's own pending transaction on product when no
// payment session has been opened for it yet, or nil.
func (s *service) pendingFor(ctx context.Context, tx *gorm.DB, product *models.Product, buyerID uuid.UUID) (*models.Transaction, error) {
	if !product.IsSold || product.ReservedTransactionID == nil {
		return nil, nil
	}
	txn, err := s.txns.WithTx(tx).FindByIDForUpdate(ctx, *product.ReservedTransactionID)
	if err != nil {
		return nil, err
	}
	if txn.BuyerID != buyerID || txn.Status != enums.TransactionStatusPending || txn.PaymentSessionID != nil {
		return nil, nil
	}
	return txn, nil
}

// claim reuses the buyer's unpaid pending transaction or reserves afresh.
func (s *service) claim(ctx context.Context, tx *gorm.DB, product *models.Product, buyerID uuid.UUID) (reserved, error) {
	txn, err := s.pendingFor(ctx, tx, product, buyerID)
	if err != nil {
		return reserved{}, err
	}
	if txn != nil {
		return reserved{txn: txn, title: product.Title, existing: true}, nil
	}
	if txn, err = s.gate.ReserveTx(ctx, tx, product.ID, buyerID); err != nil {
		return reserved{}, err
	}
	return reserved{txn: txn, title: product.Title}, nil
}

func (s *service) CheckoutProduct(ctx context.Context, buyerID, productID uuid.UUID, origin string) (*Result, error) {
	if buyerID == uuid.Nil || productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer and product are required")
	}
	urls, err := BuildReturnURLs(origin, enums.CheckoutSourceProduct)
	if err != nil {
		return nil, err
	}

	var items []reserved
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		product, err := s.products.WithTx(tx).FindByID(ctx, productID)
		if err != nil {
			return err
		}
		item, err := s.claim(ctx, tx, product, buyerID)
		if err != nil {
			return err
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		s.observe(enums.CheckoutSourceProduct, err)
		return nil, err
	}

	result, err := s.open(ctx, buyerID, enums.CheckoutSourceProduct, urls, items)
	s.observe(enums.CheckoutSourceProduct, err)
	return result, err
}

func (s *service) CheckoutCart(ctx context.Context, buyerID uuid.UUID, origin string) (*Result, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer is required")
	}
	urls, err := BuildReturnURLs(origin, enums.CheckoutSourceCart)
	if err != nil {
		return nil, err
	}

	var (
		items   []reserved
		skipped []uuid.UUID
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		lines, err := s.cart.WithTx(tx).ListByBuyer(ctx, buyerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(lines) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}
		ids := make([]uuid.UUID, 0, len(lines))
		for _, line := range lines {
			ids = append(ids, line.ProductID)
		}
		byID, err := s.products.WithTx(tx).FindByIDs(ctx, ids)
		if err != nil {
			return err
		}

		for _, line := range lines {
			product, ok := byID[line.ProductID]
			if !ok {
				skipped = append(skipped, line.ProductID)
				continue
			}
			own, err := s.pendingFor(ctx, tx, &product, buyerID)
			switch {
			case err != nil:
				return err
			case own != nil:
				items = append(items, reserved{txn: own, title: product.Title, existing: true})
			case product.IsSold:
				skipped = append(skipped, line.ProductID)
			default:
				// All or nothing: an error here rolls back earlier claims.
				txn, err := s.gate.ReserveTx(ctx, tx, product.ID, buyerID)
				if err != nil {
					return err
				}
				items = append(items, reserved{txn: txn, title: product.Title})
			}
		}
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "no items in the cart are available").
				WithDetails(map[string]any{"skipped_product_ids": skipped})
		}
		return nil
	})
	if err != nil {
		s.observe(enums.CheckoutSourceCart, err)
		return nil, err
	}

	result, err := s.open(ctx, buyerID, enums.CheckoutSourceCart, urls, items)
	if result != nil {
		result.Skipped = skipped
	}
	s.observe(enums.CheckoutSourceCart, err)
	return result, err
}

// open creates the gateway session for already reserved transactions and
// persists it. Any failure cancels the reservations.
func (s *service) open(ctx context.Context, buyerID uuid.UUID, source enums.CheckoutSource, urls ReturnURLs, items []reserved) (*Result, error) {
	req := payments.CheckoutRequest{
		BuyerID:    buyerID,
		Currency:   items[0].txn.Currency,
		SuccessURL: urls.Success,
		CancelURL:  urls.Cancel,
		Metadata: map[string]string{
			"buyer_id":          buyerID.String(),
			"source":            string(source),
			"transaction_count": strconv.Itoa(len(items)),
		},
	}
	if len(items) == 1 {
		req.Metadata["transaction_id"] = items[0].txn.ID.String()
		req.Metadata["product_id"] = items[0].txn.ProductID.String()
	}
	ids := make([]uuid.UUID, 0, len(items))
	totals := make([]decimal.Decimal, 0, len(items))
	for _, item := range items {
		req.Items = append(req.Items, payments.LineItem{TransactionID: item.txn.ID, Name: item.title, Amount: item.txn.TotalAmount})
		ids = append(ids, item.txn.ID)
		totals = append(totals, item.txn.TotalAmount)
	}

	created, err := s.gateway.CreateCheckoutSession(ctx, req)
	if err != nil {
		s.compensate(ctx, items)
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeGateway, err, "create checkout session")
		}
		return nil, err
	}

	sess := &models.PaymentSession{
		SessionID:     created.SessionID,
		Provider:      enums.PaymentProviderStripe,
		BuyerID:       buyerID,
		Amount:        money.Sum(totals...),
		Currency:      req.Currency,
		PaymentStatus: enums.PaymentStatusPending,
		RedirectURL:   created.RedirectURL,
		Source:        source,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.sessions.WithTx(tx).Create(ctx, sess); err != nil {
			return err
		}
		if err := s.txns.WithTx(tx).LinkSession(ctx, ids, sess.SessionID); err != nil {
			return err
		}
		if source == enums.CheckoutSourceCart {
			if err := s.cart.WithTx(tx).Clear(ctx, buyerID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
			}
		}
		return nil
	})
	if err != nil {
		// The gateway session expires unused.
		s.compensate(ctx, items)
		return nil, err
	}

	result := &Result{
		SessionID:   sess.SessionID,
		RedirectURL: sess.RedirectURL,
		Amount:      sess.Amount,
		Currency:    sess.Currency,
	}
	for _, item := range items {
		item.txn.PaymentSessionID = &sess.SessionID
		result.Transactions = append(result.Transactions, *item.txn)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"session_id": sess.SessionID,
		"buyer_id":   buyerID.String(),
		"items":      len(items),
	}), "checkout session opened")
	return result, nil
}

// compensate cancels the reservations this checkout made. It outlives the
// request so a disconnecting buyer does not leave products reserved.
func (s *service) compensate(ctx context.Context, items []reserved) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for _, item := range items {
			if item.existing {
				continue
			}
			txn, err := s.txns.WithTx(tx).FindByIDForUpdate(ctx, item.txn.ID)
			if err != nil {
				return err
			}
			if txn.Status != enums.TransactionStatusPending {
				continue
			}
			if err := s.ledger.Apply(ctx, tx, txn, enums.TransactionEventCancel, s.now()); err != nil {
				return err
			}
			if _, err := s.products.WithTx(tx).ReleaseReservation(ctx, txn.ProductID, txn.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logg.Error(ctx, "checkout compensation failed; reservation expiry will release the products", err)
	}
}

func (s *service) observe(source enums.CheckoutSource, err error) {
	result := "created"
	switch {
	case err == nil:
	case pkgerrors.IsCode(err, pkgerrors.CodeGateway):
		result = "gateway_error"
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		result = "conflict"
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation):
		result = "rejected"
	default:
		result = "error"
	}
	s.metrics.ObserveCheckout(string(source), result)
}
