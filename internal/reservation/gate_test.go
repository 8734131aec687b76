package reservation_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/internal/products"
	"github.com/angelmondragon/relivv-escrow/internal/reservation"
	"github.com/angelmondragon/relivv-escrow/internal/transactions"
	"github.com/angelmondragon/relivv-escrow/pkg/db/dbtest"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
)

func conflictReason(t *testing.T, err error) string {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, pkgerrors.CodeConflict, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	reason, _ := details["reason"].(string)
	return reason
}

func TestReserveCreatesPendingTransaction(t *testing.T) {
	client, db := dbtest.OpenClient(t)
	gate, err := reservation.NewGate(client, products.NewRepository(db), transactions.NewRepository(db), nil)
	require.NoError(t, err)

	seller, buyer := uuid.New(), uuid.New()
	product := dbtest.MustCreateProduct(t, db, seller, "100.00")

	txn, err := gate.Reserve(context.Background(), product.ID, buyer)
	require.NoError(t, err)
	require.Equal(t, enums.TransactionStatusPending, txn.Status)
	require.Equal(t, enums.DeliveryStatusPending, txn.DeliveryStatus)
	require.Equal(t, seller, txn.SellerID)
	require.True(t, txn.Amount.Equal(decimal.RequireFromString("100.00")))
	require.True(t, txn.Commission.Equal(decimal.RequireFromString("5.00")))
	require.True(t, txn.TotalAmount.Equal(decimal.RequireFromString("105.00")))

	stored := dbtest.MustReload[models.Product](t, db, product.ID)
	require.True(t, stored.IsSold)
	require.NotNil(t, stored.ReservedTransactionID)
	require.Equal(t, txn.ID, *stored.ReservedTransactionID)
}

func TestReserveRejectsSoldProduct(t *testing.T) {
	client, db := dbtest.OpenClient(t)
	gate, err := reservation.NewGate(client, products.NewRepository(db), transactions.NewRepository(db), nil)
	require.NoError(t, err)
	product := dbtest.MustCreateProduct(t, db, uuid.New(), "10.00")

	_, err = gate.Reserve(context.Background(), product.ID, uuid.New())
	require.NoError(t, err)

	_, err = gate.Reserve(context.Background(), product.ID, uuid.New())
	require.Equal(t, reservation.ReasonAlreadyReserved, conflictReason(t, err))

	var count int64
	require.NoError(t, db.Model(&models.Transaction{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestReserveRejectsSelfPurchase(t *testing.T) {
	client, db := dbtest.OpenClient(t)
	gate, err := reservation.NewGate(client, products.NewRepository(db), transactions.NewRepository(db), nil)
	require.NoError(t, err)
	seller := uuid.New()
	product := dbtest.MustCreateProduct(t, db, seller, "10.00")

	_, err = gate.Reserve(context.Background(), product.ID, seller)
	require.Equal(t, reservation.ReasonSelfPurchase, conflictReason(t, err))
	require.False(t, dbtest.MustReload[models.Product](t, db, product.ID).IsSold)
}

func TestReserveMissingProduct(t *testing.T) {
	client, db := dbtest.OpenClient(t)
	gate, err := reservation.NewGate(client, products.NewRepository(db), transactions.NewRepository(db), nil)
	require.NoError(t, err)

	_, err = gate.Reserve(context.Background(), uuid.New(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestReserveConcurrentCallersHaveOneWinner(t *testing.T) {
	client, db := dbtest.OpenClient(t)
	gate, err := reservation.NewGate(client, products.NewRepository(db), transactions.NewRepository(db), nil)
	require.NoError(t, err)
	product := dbtest.MustCreateProduct(t, db, uuid.New(), "25.00")

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gate.Reserve(context.Background(), product.ID, uuid.New())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, winners)
	require.Equal(t, callers-1, conflicts)

	var count int64
	require.NoError(t, db.Model(&models.Transaction{}).Count(&count).Error)
	require.EqualValues(t, 1, count, "losers must not leave transactions behind")
}

func TestReserveTxRollsBackWithCaller(t *testing.T) {
	client, db := dbtest.OpenClient(t)
	gate, err := reservation.NewGate(client, products.NewRepository(db), transactions.NewRepository(db), nil)
	require.NoError(t, err)
	buyer := uuid.New()
	first := dbtest.MustCreateProduct(t, db, uuid.New(), "10.00")
	second := dbtest.MustCreateProduct(t, db, buyer, "12.00")

	err = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if _, err := gate.ReserveTx(context.Background(), tx, first.ID, buyer); err != nil {
			return err
		}
		_, err := gate.ReserveTx(context.Background(), tx, second.ID, buyer)
		return err
	})
	require.Equal(t, reservation.ReasonSelfPurchase, conflictReason(t, err))
	require.False(t, dbtest.MustReload[models.Product](t, db, first.ID).IsSold, "first claim rolled back")
}
