package workflow

import (
	"github.com/kendall-kelly/repairshop-api/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Quote is the priced view of an order's quotation.
type Quote struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Shipping   decimal.Decimal `json:"shipping"`
	Total      decimal.Decimal `json:"total"`
	ReviewFee  decimal.Decimal `json:"review_fee"`
	AmountDue  decimal.Decimal `json:"amount_due"`
	Rework     bool            `json:"rework"`
	AllInStock bool            `json:"all_in_stock"`
}

// LineTotal applies the discount first and VAT on the discounted amount.
func LineTotal(l models.QuotationLine) decimal.Decimal {
	discount := decimal.NewFromInt(1).Sub(l.DiscountPct.Div(hundred))
	vat := decimal.NewFromInt(1).Add(l.VATPct.Div(hundred))
	return decimal.NewFromInt(int64(l.Quantity)).Mul(l.UnitPrice).Mul(discount).Mul(vat)
}

// Price computes the quote. The review fee is never part of Total; it is
// what the client owes instead when they reject the quote.
func Price(o *models.Order, lines []models.QuotationLine) Quote {
	q := Quote{
		Shipping:   o.ShippingPrice.Round(2),
		ReviewFee:  o.ReviewFee.Round(2),
		Rework:     o.IsRework,
		AllInStock: AllInStock(lines),
	}
	if o.IsRework {
		q.Subtotal = decimal.Zero
		q.Total = decimal.Zero
		q.AmountDue = decimal.Zero
		return q
	}

	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(LineTotal(l))
	}
	q.Subtotal = subtotal.Round(2)
	q.Total = subtotal.Add(o.ShippingPrice).Round(2)

	if o.ClientApproved != nil && !*o.ClientApproved {
		q.AmountDue = q.ReviewFee
	} else {
		q.AmountDue = q.Total
	}
	return q
}
