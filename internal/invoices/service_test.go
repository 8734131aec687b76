package invoices

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/pkg/auth"
	"github.com/angelmondragon/relivv-escrow/pkg/db/dbtest"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/pagination"
)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	return svc, db
}

func heldTxn(buyer, seller uuid.UUID) *models.Transaction {
	return &models.Transaction{
		ID:          uuid.New(),
		ProductID:   uuid.New(),
		BuyerID:     buyer,
		SellerID:    seller,
		Amount:      decimal.RequireFromString("100.00"),
		Commission:  decimal.RequireFromString("5.00"),
		TotalAmount: decimal.RequireFromString("105.00"),
		Currency:    enums.CurrencyEUR,
		Status:      enums.TransactionStatusHeld,
	}
}

func TestFormatNumber(t *testing.T) {
	if got := FormatNumber(2026, 7); got != "INV-2026-00007" {
		t.Fatalf("unexpected invoice number %q", got)
	}
	if got := FormatNumber(2027, 123456); got != "INV-2027-123456" {
		t.Fatalf("unexpected invoice number %q", got)
	}
}

func TestNextNumberIsMonotonicPerYear(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := repo.NextNumber(ctx, 2026)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	got, err := repo.NextNumber(ctx, 2027)
	require.NoError(t, err)
	require.Equal(t, 1, got, "each year starts its own sequence")
}

func TestEnsureIssuesOnce(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	txn := heldTxn(uuid.New(), uuid.New())
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	first, created, err := svc.Ensure(ctx, db, txn, at)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "INV-2026-00001", first.InvoiceNumber)
	require.Equal(t, enums.InvoiceStatusPaid, first.InvoiceStatus)
	require.Equal(t, enums.PaymentStatusPaid, first.PaymentStatus)
	require.True(t, first.VATAmount.Equal(decimal.RequireFromString("22.05")), "vat %s", first.VATAmount)
	require.True(t, first.TotalAmount.Equal(txn.TotalAmount))

	second, created, err := svc.Ensure(ctx, db, txn, at.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.Invoice{}).Where("transaction_id = ?", txn.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)

	other, _, err := svc.Ensure(ctx, db, heldTxn(uuid.New(), uuid.New()), at)
	require.NoError(t, err)
	require.Equal(t, "INV-2026-00002", other.InvoiceNumber)
}

func TestCreateIfAbsentIgnoresDuplicateTransaction(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	txn := heldTxn(uuid.New(), uuid.New())

	build := func(number string) *models.Invoice {
		return &models.Invoice{
			InvoiceNumber: number,
			TransactionID: txn.ID,
			BuyerID:       txn.BuyerID,
			SellerID:      txn.SellerID,
			ProductID:     txn.ProductID,
			Amount:        txn.Amount,
			Commission:    txn.Commission,
			VATAmount:     decimal.Zero,
			TotalAmount:   txn.TotalAmount,
			Currency:      enums.CurrencyEUR,
			PaymentStatus: enums.PaymentStatusPaid,
			InvoiceStatus: enums.InvoiceStatusPaid,
			IssuedAt:      time.Now().UTC(),
		}
	}

	created, err := repo.CreateIfAbsent(ctx, build("INV-2026-00001"))
	require.NoError(t, err)
	require.True(t, created)

	created, err = repo.CreateIfAbsent(ctx, build("INV-2026-00002"))
	require.NoError(t, err)
	require.False(t, created)
}

func TestMarkRefunded(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	txn := heldTxn(uuid.New(), uuid.New())

	updated, err := svc.MarkRefunded(ctx, db, txn.ID)
	require.NoError(t, err)
	require.False(t, updated, "no invoice yet")

	inv, _, err := svc.Ensure(ctx, db, txn, time.Now().UTC())
	require.NoError(t, err)

	updated, err = svc.MarkRefunded(ctx, db, txn.ID)
	require.NoError(t, err)
	require.True(t, updated)

	stored := dbtest.MustReload[models.Invoice](t, db, inv.ID)
	require.Equal(t, enums.InvoiceStatusRefunded, stored.InvoiceStatus)
	require.Equal(t, enums.PaymentStatusRefunded, stored.PaymentStatus)
}

func TestGetRestrictsToPartiesAndAdmins(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	buyer, seller := uuid.New(), uuid.New()
	inv, _, err := svc.Ensure(ctx, db, heldTxn(buyer, seller), time.Now().UTC())
	require.NoError(t, err)

	for name, actor := range map[string]auth.Actor{
		"buyer":  {UserID: buyer, Role: enums.UserRoleUser},
		"seller": {UserID: seller, Role: enums.UserRoleUser},
		"admin":  {UserID: uuid.New(), Role: enums.UserRoleAdmin},
	} {
		got, err := svc.Get(ctx, inv.ID, actor)
		require.NoError(t, err, name)
		require.Equal(t, inv.ID, got.ID, name)
	}

	_, err = svc.Get(ctx, inv.ID, auth.Actor{UserID: uuid.New(), Role: enums.UserRoleUser})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)

	_, err = svc.Get(ctx, uuid.New(), auth.Actor{UserID: buyer, Role: enums.UserRoleUser})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	user, other := uuid.New(), uuid.New()
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	// user buys three items and sells one; other has an unrelated invoice.
	for i := 0; i < 3; i++ {
		_, _, err := svc.Ensure(ctx, db, heldTxn(user, uuid.New()), base.Add(time.Duration(i)*24*time.Hour))
		require.NoError(t, err)
	}
	sold := heldTxn(uuid.New(), user)
	_, _, err := svc.Ensure(ctx, db, sold, base.Add(10*24*time.Hour))
	require.NoError(t, err)
	_, _, err = svc.Ensure(ctx, db, heldTxn(other, uuid.New()), base)
	require.NoError(t, err)
	_, err = svc.MarkRefunded(ctx, db, sold.ID)
	require.NoError(t, err)

	all, err := svc.List(ctx, ListFilter{UserID: user})
	require.NoError(t, err)
	require.Len(t, all.Items, 4)
	require.True(t, all.Items[0].IssuedAt.After(all.Items[1].IssuedAt), "newest first")

	asBuyer, err := svc.List(ctx, ListFilter{UserID: user, Role: enums.PartyRoleBuyer})
	require.NoError(t, err)
	require.Len(t, asBuyer.Items, 3)

	refunded, err := svc.List(ctx, ListFilter{UserID: user, Status: enums.InvoiceStatusRefunded})
	require.NoError(t, err)
	require.Len(t, refunded.Items, 1)
	require.Equal(t, sold.ID, refunded.Items[0].TransactionID)

	from := base.Add(24 * time.Hour)
	to := base.Add(2 * 24 * time.Hour)
	window, err := svc.List(ctx, ListFilter{UserID: user, From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, window.Items, 2)

	page, err := svc.List(ctx, ListFilter{UserID: user, Params: pagination.Params{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := svc.List(ctx, ListFilter{UserID: user, Params: pagination.Params{Limit: 2, Cursor: page.NextCursor}})
	require.NoError(t, err)
	require.Len(t, rest.Items, 2)
	require.Empty(t, rest.NextCursor)
	require.NotEqual(t, page.Items[1].ID, rest.Items[0].ID)

	everyone, err := svc.ListAll(ctx, ListFilter{UserID: user})
	require.NoError(t, err)
	require.Len(t, everyone.Items, 5)
}

func TestListValidatesInput(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.List(ctx, ListFilter{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.List(ctx, ListFilter{UserID: uuid.New(), Status: "bogus"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	from := time.Now().UTC()
	to := from.Add(-time.Hour)
	_, err = svc.List(ctx, ListFilter{UserID: uuid.New(), From: &from, To: &to})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
