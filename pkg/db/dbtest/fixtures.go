package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
)

// MustCreateProduct seeds an unsold listing owned by sellerID.
func MustCreateProduct(t testing.TB, db *gorm.DB, sellerID uuid.UUID, price string) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:       uuid.New(),
		SellerID: sellerID,
		Title:    "Vintage jacket " + uuid.NewString()[:8],
		Price:    decimal.RequireFromString(price),
		Currency: enums.CurrencyEUR,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

// MustReload fetches the current row for the given model pointer by primary key.
func MustReload[T any](t testing.TB, db *gorm.DB, id uuid.UUID) *T {
	t.Helper()
	var row T
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		t.Fatalf("reload %T %s: %v", row, id, err)
	}
	return &row
}
