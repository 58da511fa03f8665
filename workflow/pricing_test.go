package workflow

import (
	"testing"

	"github.com/kendall-kelly/repairshop-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLineTotal(t *testing.T) {
	tests := []struct {
		name     string
		line     models.QuotationLine
		expected string
	}{
		{"discount then vat", line(2, "100", "10", "19", true), "214.2"},
		{"no discount no vat", line(3, "12.50", "0", "0", true), "37.5"},
		{"full discount", line(1, "80", "100", "19", true), "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LineTotal(tt.line)
			assert.True(t, dec(tt.expected).Equal(got), "got %s", got)
		})
	}
}

func TestPriceExample(t *testing.T) {
	o := orderAt(StatusQuotation)
	o.ShippingPrice = dec("20")
	o.ReviewFee = dec("50")

	q := Price(o, []models.QuotationLine{line(2, "100", "10", "19", true)})
	assert.True(t, dec("214.2").Equal(q.Subtotal), "subtotal %s", q.Subtotal)
	assert.True(t, dec("234.2").Equal(q.Total), "total %s", q.Total)
	assert.True(t, dec("50").Equal(q.ReviewFee))
	assert.True(t, q.Total.Equal(q.AmountDue), "pending quote is charged at total")
}

func TestPriceAmountDue(t *testing.T) {
	lines := []models.QuotationLine{line(2, "100", "10", "19", true)}
	o := orderAt(StatusQuotation)
	o.ShippingPrice = dec("20")
	o.ReviewFee = dec("50")

	o.ClientApproved = boolPtr(true)
	assert.True(t, dec("234.2").Equal(Price(o, lines).AmountDue))

	o.ClientApproved = boolPtr(false)
	q := Price(o, lines)
	assert.True(t, dec("50").Equal(q.AmountDue), "rejected quote owes only the review fee")
	assert.True(t, dec("234.2").Equal(q.Total))
}

func TestPriceRework(t *testing.T) {
	o := orderAt(StatusQuotation)
	o.IsRework = true
	o.ShippingPrice = dec("15")
	o.ReviewFee = dec("50")

	for _, lines := range [][]models.QuotationLine{
		{line(1, "999.99", "0", "19", true)},
		{line(5, "10", "5", "19", false), line(1, "3", "0", "0", true)},
	} {
		o.ClientApproved = nil
		q := Price(o, lines)
		assert.True(t, q.Total.IsZero())
		assert.True(t, q.AmountDue.IsZero())
		assert.True(t, q.Rework)

		o.ClientApproved = boolPtr(false)
		assert.True(t, Price(o, lines).AmountDue.IsZero())
	}
}

func TestPriceRoundsToCents(t *testing.T) {
	o := orderAt(StatusQuotation)
	q := Price(o, []models.QuotationLine{line(1, "10.01", "3", "19", true)})
	// 10.01 * 0.97 * 1.19 = 11.554543
	assert.Equal(t, "11.55", q.Total.StringFixed(2))
	assert.True(t, q.AllInStock)
}
