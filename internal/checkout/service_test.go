package checkout_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/relivv-escrow/internal/cart"
	"github.com/angelmondragon/relivv-escrow/internal/checkout"
	"github.com/angelmondragon/relivv-escrow/internal/escrowtest"
	"github.com/angelmondragon/relivv-escrow/internal/payments"
	"github.com/angelmondragon/relivv-escrow/pkg/db/dbtest"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
)

const origin = "https://shop.relivv.test"

type fixture struct {
	h    *escrowtest.Harness
	cart *cart.Repository
	svc  checkout.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := escrowtest.New(t)
	cartRepo := cart.NewRepository(h.DB)
	svc, err := checkout.NewService(checkout.ServiceParams{
		Tx:           h.Client,
		Gate:         h.Gate,
		Products:     h.Products,
		Transactions: h.Transactions,
		Ledger:       h.Ledger,
		Sessions:     h.Sessions,
		Cart:         cartRepo,
		Gateway:      h.Gateway,
		Metrics:      h.Metrics,
		Now:          h.Now,
	})
	require.NoError(t, err)
	return &fixture{h: h, cart: cartRepo, svc: svc}
}

func (f *fixture) addToCart(t *testing.T, buyer uuid.UUID, productIDs ...uuid.UUID) {
	t.Helper()
	for i, id := range productIDs {
		added, err := f.cart.Add(context.Background(), &models.CartItem{
			BuyerID:   buyer,
			ProductID: id,
			AddedAt:   f.h.Now().Add(timeStep(i)).UTC(),
		})
		require.NoError(t, err)
		require.True(t, added)
	}
}

func TestCheckoutProductOpensSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := uuid.New()
	product := dbtest.MustCreateProduct(t, f.h.DB, uuid.New(), "100.00")

	var captured payments.CheckoutRequest
	f.h.Gateway.CreateFn = func(_ context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
		captured = req
		return &payments.CheckoutSession{SessionID: "cs_test_single", RedirectURL: "https://checkout.stripe.test/single"}, nil
	}

	res, err := f.svc.CheckoutProduct(ctx, buyer, product.ID, origin+"/")
	require.NoError(t, err)
	require.Equal(t, "cs_test_single", res.SessionID)
	require.Equal(t, "https://checkout.stripe.test/single", res.RedirectURL)
	require.Equal(t, "105", res.Amount.String())
	require.Len(t, res.Transactions, 1)

	require.Equal(t, origin+"/payment-success?session_id={CHECKOUT_SESSION_ID}", captured.SuccessURL)
	require.Equal(t, origin+"/browse", captured.CancelURL)
	require.Len(t, captured.Items, 1)
	require.Equal(t, product.Title, captured.Items[0].Name)
	require.Equal(t, res.Transactions[0].ID.String(), captured.Metadata["transaction_id"])

	sess, err := f.h.Sessions.FindBySessionID(ctx, "cs_test_single")
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusPending, sess.PaymentStatus)
	require.Equal(t, enums.CheckoutSourceProduct, sess.Source)
	require.Equal(t, buyer, sess.BuyerID)

	txn := f.h.Reload(t, res.Transactions[0].ID)
	require.Equal(t, enums.TransactionStatusPending, txn.Status)
	require.NotNil(t, txn.PaymentSessionID)
	require.Equal(t, "cs_test_single", *txn.PaymentSessionID)

	stored := dbtest.MustReload[models.Product](t, f.h.DB, product.ID)
	require.True(t, stored.IsSold)
}

func TestCheckoutProductRejectsReservedProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, f.h.DB, uuid.New(), "40.00")

	_, err := f.svc.CheckoutProduct(ctx, uuid.New(), product.ID, origin)
	require.NoError(t, err)

	_, err = f.svc.CheckoutProduct(ctx, uuid.New(), product.ID, origin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
	require.EqualValues(t, 1, f.h.Gateway.CreateCalls.Load())
}

func TestCheckoutProductGatewayFailureReleasesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, f.h.DB, uuid.New(), "60.00")
	f.h.Gateway.CreateFn = func(context.Context, payments.CheckoutRequest) (*payments.CheckoutSession, error) {
		return nil, errors.New("connection reset")
	}

	_, err := f.svc.CheckoutProduct(ctx, uuid.New(), product.ID, origin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway), "got %v", err)

	stored := dbtest.MustReload[models.Product](t, f.h.DB, product.ID)
	require.False(t, stored.IsSold)
	require.Nil(t, stored.ReservedTransactionID)

	var txns []models.Transaction
	require.NoError(t, f.h.DB.Where("product_id = ?", product.ID).Find(&txns).Error)
	require.Len(t, txns, 1)
	require.Equal(t, enums.TransactionStatusCancelled, txns[0].Status)

	// The product can be bought again once released.
	f.h.Gateway.CreateFn = nil
	_, err = f.svc.CheckoutProduct(ctx, uuid.New(), product.ID, origin)
	require.NoError(t, err)
}

func TestCheckoutProductReleasesReservationWhenRequestIsCancelled(t *testing.T) {
	f := newFixture(t)
	product := dbtest.MustCreateProduct(t, f.h.DB, uuid.New(), "60.00")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.h.Gateway.CreateFn = func(c context.Context, _ payments.CheckoutRequest) (*payments.CheckoutSession, error) {
		// The buyer hangs up while the gateway call is in flight.
		cancel()
		return nil, c.Err()
	}

	_, err := f.svc.CheckoutProduct(ctx, uuid.New(), product.ID, origin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway), "got %v", err)

	stored := dbtest.MustReload[models.Product](t, f.h.DB, product.ID)
	require.False(t, stored.IsSold)
	require.Nil(t, stored.ReservedTransactionID)

	var txns []models.Transaction
	require.NoError(t, f.h.DB.Where("product_id = ?", product.ID).Find(&txns).Error)
	require.Len(t, txns, 1)
	require.Equal(t, enums.TransactionStatusCancelled, txns[0].Status)
	require.Nil(t, txns[0].PaymentSessionID)

	f.h.Gateway.CreateFn = nil
	_, err = f.svc.CheckoutProduct(context.Background(), uuid.New(), product.ID, origin)
	require.NoError(t, err)
}

func TestCheckoutProductPaysForBuyersPendingTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := uuid.New()
	product := dbtest.MustCreateProduct(t, f.h.DB, uuid.New(), "100.00")
	created, err := f.h.Gate.Reserve(ctx, product.ID, buyer)
	require.NoError(t, err)

	_, err = f.svc.CheckoutProduct(ctx, uuid.New(), product.ID, origin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)

	var captured payments.CheckoutRequest
	f.h.Gateway.CreateFn = func(_ context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
		captured = req
		return &payments.CheckoutSession{SessionID: "cs_test_existing", RedirectURL: "https://checkout.stripe.test/existing"}, nil
	}
	res, err := f.svc.CheckoutProduct(ctx, buyer, product.ID, origin)
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	require.Equal(t, created.ID, res.Transactions[0].ID)
	require.Equal(t, created.ID.String(), captured.Metadata["transaction_id"])

	txn := f.h.Reload(t, created.ID)
	require.Equal(t, enums.TransactionStatusPending, txn.Status)
	require.NotNil(t, txn.PaymentSessionID)
	require.Equal(t, "cs_test_existing", *txn.PaymentSessionID)

	var n int64
	require.NoError(t, f.h.DB.Model(&models.Transaction{}).Where("product_id = ?", product.ID).Count(&n).Error)
	require.EqualValues(t, 1, n)

	// A session is open now, so a second checkout would double-charge.
	_, err = f.svc.CheckoutProduct(ctx, buyer, product.ID, origin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
}

func TestCheckoutGatewayFailureKeepsBuyersPendingTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := uuid.New()
	product := dbtest.MustCreateProduct(t, f.h.DB, uuid.New(), "45.00")
	created, err := f.h.Gate.Reserve(ctx, product.ID, buyer)
	require.NoError(t, err)
	f.h.Gateway.CreateFn = func(context.Context, payments.CheckoutRequest) (*payments.CheckoutSession, error) {
		return nil, errors.New("connection reset")
	}

	_, err = f.svc.CheckoutProduct(ctx, buyer, product.ID, origin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway), "got %v", err)
	require.Equal(t, enums.TransactionStatusPending, f.h.Reload(t, created.ID).Status)

	f.h.Gateway.CreateFn = nil
	res, err := f.svc.CheckoutProduct(ctx, buyer, product.ID, origin)
	require.NoError(t, err)
	require.Equal(t, created.ID, res.Transactions[0].ID)
}

func TestCheckoutCartIncludesBuyersPendingTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := uuid.New()
	fresh := dbtest.MustCreateProduct(t, f.h.DB, uuid.New(), "20.00")
	held := dbtest.MustCreateProduct(t, f.h.DB, uuid.New(), "30.00")
	created, err := f.h.Gate.Reserve(ctx, held.ID, buyer)
	require.NoError(t, err)
	f.addToCart(t, buyer, fresh.ID, held.ID)

	res, err := f.svc.CheckoutCart(ctx, buyer, origin)
	require.NoError(t, err)
	require.Empty(t, res.Skipped)
	require.Len(t, res.Transactions, 2)

	txn := f.h.Reload(t, created.ID)
	require.NotNil(t, txn.PaymentSessionID)
	require.Equal(t, res.SessionID, *txn.PaymentSessionID)
}

func TestCheckoutRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := dbtest.MustCreateProduct(t, f.h.DB, uuid.New(), "10.00")

	_, err := f.svc.CheckoutProduct(ctx, uuid.Nil, product.ID, origin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.CheckoutProduct(ctx, uuid.New(), product.ID, "javascript:alert(1)")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.CheckoutProduct(ctx, uuid.New(), uuid.New(), origin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.CheckoutProduct(ctx, product.SellerID, product.ID, origin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	require.Zero(t, f.h.Gateway.CreateCalls.Load())
}

func TestCheckoutCartReservesAvailableItemsAndClearsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := uuid.New()
	a := dbtest.MustCreateProduct(t, f.h.DB, uuid.New(), "20.00")
	b := dbtest.MustCreateProduct(t, f.h.DB, uuid.New(), "30.00")
	sold := dbtest.MustCreateProduct(t, f.h.DB, uuid.New(), "99.00")
	_, err := f.h.Gate.Reserve(ctx, sold.ID, uuid.New())
	require.NoError(t, err)
	f.addToCart(t, buyer, a.ID, sold.ID, b.ID)

	var captured payments.CheckoutRequest
	f.h.Gateway.CreateFn = func(_ context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
		captured = req
		return &payments.CheckoutSession{SessionID: "cs_test_cart", RedirectURL: "https://checkout.stripe.test/cart"}, nil
	}

	res, err := f.svc.CheckoutCart(ctx, buyer, origin)
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)
	require.Equal(t, []uuid.UUID{sold.ID}, res.Skipped)
	require.Equal(t, "52.5", res.Amount.String())

	require.True(t, strings.HasSuffix(captured.SuccessURL, "&cart=true"))
	require.Equal(t, origin+"/cart", captured.CancelURL)
	require.Len(t, captured.Items, 2)
	require.Equal(t, "2", captured.Metadata["transaction_count"])

	linked, err := f.h.Transactions.ListBySessionID(ctx, "cs_test_cart")
	require.NoError(t, err)
	require.Len(t, linked, 2)

	remaining, err := f.cart.ListByBuyer(ctx, buyer)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestCheckoutCartIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := uuid.New()
	a := dbtest.MustCreateProduct(t, f.h.DB, uuid.New(), "20.00")
	own := dbtest.MustCreateProduct(t, f.h.DB, buyer, "30.00")
	f.addToCart(t, buyer, a.ID, own.ID)

	_, err := f.svc.CheckoutCart(ctx, buyer, origin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)

	stored := dbtest.MustReload[models.Product](t, f.h.DB, a.ID)
	require.False(t, stored.IsSold)
	var n int64
	require.NoError(t, f.h.DB.Model(&models.Transaction{}).Count(&n).Error)
	require.Zero(t, n)

	remaining, err := f.cart.ListByBuyer(ctx, buyer)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
}

func TestCheckoutCartGatewayFailureKeepsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := uuid.New()
	a := dbtest.MustCreateProduct(t, f.h.DB, uuid.New(), "20.00")
	b := dbtest.MustCreateProduct(t, f.h.DB, uuid.New(), "25.00")
	f.addToCart(t, buyer, a.ID, b.ID)
	f.h.Gateway.CreateFn = func(context.Context, payments.CheckoutRequest) (*payments.CheckoutSession, error) {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "stripe unavailable")
	}

	_, err := f.svc.CheckoutCart(ctx, buyer, origin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		stored := dbtest.MustReload[models.Product](t, f.h.DB, id)
		require.False(t, stored.IsSold)
	}
	remaining, err := f.cart.ListByBuyer(ctx, buyer)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
}

func TestCheckoutCartEmptyOrUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := uuid.New()

	_, err := f.svc.CheckoutCart(ctx, buyer, origin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	sold := dbtest.MustCreateProduct(t, f.h.DB, uuid.New(), "15.00")
	_, err = f.h.Gate.Reserve(ctx, sold.ID, uuid.New())
	require.NoError(t, err)
	f.addToCart(t, buyer, sold.ID)

	_, err = f.svc.CheckoutCart(ctx, buyer, origin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Zero(t, f.h.Gateway.CreateCalls.Load())
}

func TestBuildReturnURLs(t *testing.T) {
	urls, err := checkout.BuildReturnURLs("https://relivv.test", enums.CheckoutSourceProduct)
	require.NoError(t, err)
	require.Equal(t, "https://relivv.test/payment-success?session_id={CHECKOUT_SESSION_ID}", urls.Success)
	require.Equal(t, "https://relivv.test/browse", urls.Cancel)

	_, err = checkout.BuildReturnURLs("", enums.CheckoutSourceCart)
	require.Error(t, err)
}

func timeStep(i int) time.Duration { return time.Duration(i) * time.Second }
