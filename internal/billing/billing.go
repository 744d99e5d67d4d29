// Package billing computes live and frozen order totals.
package billing

import (
	"errors"
	"time"

	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/shopspring/decimal"
)

// ErrFrozen is returned when a paid order would be recomputed.
var ErrFrozen = errors.New("order is paid, totals are frozen")

// ErrInvalidRate is returned for VAT rates outside [0, 100].
var ErrInvalidRate = errors.New("vat rate must be between 0 and 100")

var hundred = decimal.NewFromInt(100)

// VatConfig is the process-wide tax setting. Rate is a percentage.
type VatConfig struct {
	Enabled   bool            `json:"enabled"`
	Rate      decimal.Decimal `json:"rate"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Validate checks the rate range.
func (v VatConfig) Validate() error {
	if v.Rate.IsNegative() || v.Rate.GreaterThan(hundred) {
		return ErrInvalidRate
	}
	return nil
}

// EffectiveRate is zero when VAT is disabled.
func (v VatConfig) EffectiveRate() decimal.Decimal {
	if !v.Enabled {
		return decimal.Zero
	}
	return v.Rate
}

// Breakdown is the full computation of one order.
type Breakdown struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Taxable  decimal.Decimal `json:"taxable"`
	TaxRate  decimal.Decimal `json:"tax_rate"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
	Frozen   bool            `json:"frozen"`
}

// Calculator rounds tax to Places decimal places.
type Calculator struct {
	Places int32
}

// Subtotal sums price × quantity over non-cancelled items.
func Subtotal(o order.Order) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		if it.Status == order.ItemCancelled {
			continue
		}
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// Compute returns the frozen breakdown for paid orders and a live one otherwise.
func (c Calculator) Compute(o order.Order, vat VatConfig) Breakdown {
	if o.IsPaid() {
		return c.frozen(o)
	}
	return c.live(o, vat)
}

// Recompute is the live computation for callers that must never touch a paid order.
func (c Calculator) Recompute(o order.Order, vat VatConfig) (Breakdown, error) {
	if o.IsPaid() {
		return Breakdown{}, ErrFrozen
	}
	return c.live(o, vat), nil
}

// Total is Compute(...).Total.
func (c Calculator) Total(o order.Order, vat VatConfig) decimal.Decimal {
	return c.Compute(o, vat).Total
}

func (c Calculator) live(o order.Order, vat VatConfig) Breakdown {
	subtotal := Subtotal(o)
	taxable := subtotal.Sub(o.DiscountAmount)
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}
	rate := vat.EffectiveRate()
	tax := taxable.Mul(rate).Div(hundred).Round(c.Places)
	return Breakdown{
		Subtotal: subtotal,
		Discount: o.DiscountAmount,
		Taxable:  taxable,
		TaxRate:  rate,
		Tax:      tax,
		Total:    taxable.Add(tax),
	}
}

func (c Calculator) frozen(o order.Order) Breakdown {
	b := Breakdown{
		Subtotal: Subtotal(o),
		Discount: o.DiscountAmount,
		Total:    o.Total,
		Frozen:   true,
	}
	if o.TaxRate != nil {
		b.TaxRate = *o.TaxRate
	}
	if o.TaxAmount != nil {
		b.Tax = *o.TaxAmount
	}
	b.Taxable = b.Total.Sub(b.Tax)
	return b
}

// Freeze snapshots the live computation onto the order and marks it paid.
func (c Calculator) Freeze(o *order.Order, vat VatConfig, now time.Time) error {
	b, err := c.Recompute(*o, vat)
	if err != nil {
		return err
	}
	rate, tax := b.TaxRate, b.Tax
	o.TaxRate = &rate
	o.TaxAmount = &tax
	o.Total = b.Total
	o.PaymentStatus = order.PaymentPaid
	paidAt := now
	o.PaidAt = &paidAt
	o.UpdatedAt = now
	return nil
}

// Summary aggregates a set of orders.
type Summary struct {
	Orders      int             `json:"orders"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Paid        decimal.Decimal `json:"paid"`
	Statement   decimal.Decimal `json:"statement"`
}

// Summarize sums orders with billable lines. Outstanding covers unpaid ones only;
// Statement covers paid and unpaid alike.
func (c Calculator) Summarize(orders []order.Order, vat VatConfig) Summary {
	s := Summary{Outstanding: decimal.Zero, Paid: decimal.Zero, Statement: decimal.Zero}
	for _, o := range orders {
		if !o.Billable() {
			continue
		}
		s.Orders++
		total := c.Total(o, vat)
		s.Statement = s.Statement.Add(total)
		if o.IsPaid() {
			s.Paid = s.Paid.Add(total)
		} else {
			s.Outstanding = s.Outstanding.Add(total)
		}
	}
	return s
}
