package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		price      string
		commission string
		total      string
	}{
		{price: "100", commission: "5", total: "105"},
		{price: "19.99", commission: "1", total: "20.99"},
		{price: "0.10", commission: "0.01", total: "0.11"},
		{price: "12.30", commission: "0.62", total: "12.92"},
	}

	for _, tc := range cases {
		t.Run(tc.price, func(t *testing.T) {
			got := Split(decimal.RequireFromString(tc.price))
			assert.True(t, got.Commission.Equal(decimal.RequireFromString(tc.commission)), "commission %s", got.Commission)
			assert.True(t, got.Total.Equal(decimal.RequireFromString(tc.total)), "total %s", got.Total)
			assert.True(t, got.Total.Equal(got.Amount.Add(got.Commission)))
		})
	}
}

func TestVAT(t *testing.T) {
	assert.Equal(t, "22.05", VAT(decimal.RequireFromString("105")).StringFixed(2))
	assert.Equal(t, "4.41", VAT(decimal.RequireFromString("20.99")).StringFixed(2))
}

func TestCents(t *testing.T) {
	require.Equal(t, int64(2099), ToCents(decimal.RequireFromString("20.99")))
	require.Equal(t, int64(10500), ToCents(decimal.RequireFromString("105")))
	require.True(t, FromCents(2099).Equal(decimal.RequireFromString("20.99")))
}

func TestSum(t *testing.T) {
	got := Sum(decimal.RequireFromString("105"), decimal.RequireFromString("20.99"))
	assert.Equal(t, "125.99", got.StringFixed(2))
	assert.True(t, Sum().IsZero())
}
