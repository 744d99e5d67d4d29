package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/floorops/internal/enum"
	"github.com/shopspring/decimal"
)

// Errors returned by order mutations.
var (
	ErrEmptyItems        = errors.New("items are required")
	ErrInvalidQuantity   = errors.New("quantity must be > 0")
	ErrInvalidPrice      = errors.New("price must be >= 0")
	ErrMissingName       = errors.New("item name is required")
	ErrInvalidTable      = errors.New("table number must be > 0")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnknownStatus     = errors.New("unknown status")
	ErrUnknownStation    = errors.New("unknown station")
	ErrItemNotFound      = errors.New("item not found")
	ErrWrongStation      = errors.New("item belongs to another station")
	ErrStaleStatus       = errors.New("item status changed")
	ErrStationNotReady   = errors.New("station still has items in preparation")
	ErrInvalidDiscount   = errors.New("discount must be >= 0")
	ErrOrderPaid         = errors.New("order is already paid")
)

// PaymentStatus tracks settlement of an order.
type PaymentStatus string

const (
	PaymentUnpaid              PaymentStatus = enum.PaymentStatusUnpaid
	PaymentPendingVerification PaymentStatus = enum.PaymentStatusPendingVerification
	PaymentPaid                PaymentStatus = enum.PaymentStatusPaid
)

// Order is the unit customers place and stations fulfill.
// Status is always derived from Items, see DeriveOrderStatus.
type Order struct {
	ID                uuid.UUID        `json:"id"`
	TableNumber       int              `json:"table_number"`
	SessionID         string           `json:"session_id,omitempty"`
	Date              time.Time        `json:"date"`
	Items             []Item           `json:"items"`
	Status            Status           `json:"status"`
	PaymentStatus     PaymentStatus    `json:"payment_status"`
	DiscountAmount    decimal.Decimal  `json:"discount_amount"`
	TaxRate           *decimal.Decimal `json:"tax_rate,omitempty"`
	TaxAmount         *decimal.Decimal `json:"tax_amount,omitempty"`
	Total             decimal.Decimal  `json:"total"`
	IsKitchenArchived bool             `json:"is_kitchen_archived"`
	IsBarArchived     bool             `json:"is_bar_archived"`
	PaidAt            *time.Time       `json:"paid_at,omitempty"`
	Version           int64            `json:"version"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// NewItem is the customer-supplied part of an ordered item.
type NewItem struct {
	ID                  string
	Name                string
	Price               decimal.Decimal
	Quantity            int32
	RequiresPreparation *bool
	Customization       *Customization
	TargetTime          *time.Time
}

// New validates input and builds a pending, unpaid order.
func New(tableNumber int, sessionID string, items []NewItem, now time.Time) (Order, error) {
	if tableNumber <= 0 {
		return Order{}, ErrInvalidTable
	}
	if len(items) == 0 {
		return Order{}, ErrEmptyItems
	}
	out := make([]Item, len(items))
	for i, ni := range items {
		if strings.TrimSpace(ni.Name) == "" {
			return Order{}, fmt.Errorf("item[%d]: %w", i, ErrMissingName)
		}
		if ni.Quantity <= 0 {
			return Order{}, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		if ni.Price.IsNegative() {
			return Order{}, fmt.Errorf("item[%d]: %w", i, ErrInvalidPrice)
		}
		prep := true
		if ni.RequiresPreparation != nil {
			prep = *ni.RequiresPreparation
		}
		out[i] = Item{
			ID:                  ni.ID,
			Name:                strings.TrimSpace(ni.Name),
			Price:               ni.Price,
			Quantity:            ni.Quantity,
			RequiresPreparation: prep,
			Status:              ItemPending,
			Customization:       ni.Customization,
			TargetTime:          ni.TargetTime,
		}
	}
	return Order{
		ID:            uuid.New(),
		TableNumber:   tableNumber,
		SessionID:     strings.TrimSpace(sessionID),
		Date:          now,
		Items:         out,
		Status:        StatusPending,
		PaymentStatus: PaymentUnpaid,
		UpdatedAt:     now,
	}, nil
}

// Clone returns a deep copy so callers can mutate without touching shared snapshots.
func (o Order) Clone() Order {
	c := o
	c.Items = make([]Item, len(o.Items))
	for i, it := range o.Items {
		c.Items[i] = it
		if it.Customization != nil {
			cu := *it.Customization
			cu.ExcludedIngredients = append([]string(nil), it.Customization.ExcludedIngredients...)
			c.Items[i].Customization = &cu
		}
	}
	return c
}

// IsPaid reports whether the order's totals are frozen.
func (o Order) IsPaid() bool {
	return o.PaymentStatus == PaymentPaid
}

// Billable reports whether any item still counts toward the bill. A
// force-cancelled order keeps the lines its other station delivered.
func (o Order) Billable() bool {
	for _, it := range o.Items {
		if it.Status != ItemCancelled {
			return true
		}
	}
	return false
}

// IsCancelled reports whether the whole order is cancelled.
func (o Order) IsCancelled() bool {
	return o.Status == StatusCancelled
}

// Refresh re-derives Status from the items.
func (o *Order) Refresh(policy CancelPolicy) {
	o.Status = DeriveOrderStatus(o.Items, policy)
}

// PartitionStatus aggregates one station's items; PartitionNone when it has none.
func (o Order) PartitionStatus(s Station) PartitionStatus {
	return DerivePartitionStatus(Partitions(o.Items)[s])
}

// FullyDelivered is true when every present station is done or cancelled.
func (o Order) FullyDelivered() bool {
	for _, s := range Stations {
		ps := o.PartitionStatus(s)
		if ps != PartitionNone && !ps.Closed() {
			return false
		}
	}
	return true
}

// StationArchived reports the station-local archive flag.
func (o Order) StationArchived(s Station) bool {
	if s == Kitchen {
		return o.IsKitchenArchived
	}
	return o.IsBarArchived
}

func (o *Order) setStationArchived(s Station, v bool) {
	if s == Kitchen {
		o.IsKitchenArchived = v
		return
	}
	o.IsBarArchived = v
}

// HasStation reports whether any item belongs to s.
func (o Order) HasStation(s Station) bool {
	for _, it := range o.Items {
		if it.Station() == s {
			return true
		}
	}
	return false
}

// ItemAt returns the item at a raw index.
func (o Order) ItemAt(raw int) (Item, error) {
	if raw < 0 || raw >= len(o.Items) {
		return Item{}, fmt.Errorf("%w: index %d", ErrItemNotFound, raw)
	}
	return o.Items[raw], nil
}

// Transition is a guarded item status change: "move item Raw from one of From to To".
// An empty From skips the guard. An empty Actor means any station may act.
type Transition struct {
	Raw   int
	From  []ItemStatus
	To    ItemStatus
	Actor Station
}

// Apply performs t on the order and re-derives its status.
func (o *Order) Apply(t Transition, policy CancelPolicy, now time.Time) error {
	it, err := o.ItemAt(t.Raw)
	if err != nil {
		return err
	}
	if t.Actor != "" && it.Station() != t.Actor {
		return fmt.Errorf("%w: item %d is %s", ErrWrongStation, t.Raw, it.Station())
	}
	if len(t.From) > 0 && !contains(normalizeAll(t.From), it.Status.normalized()) {
		return fmt.Errorf("%w: item %d is %s", ErrStaleStatus, t.Raw, it.Status)
	}
	if err := o.Items[t.Raw].apply(t.To, now); err != nil {
		return err
	}
	if t.To == ItemPending && it.Status == ItemCancelled {
		// recovered work reopens the station
		o.setStationArchived(it.Station(), false)
	}
	o.Refresh(policy)
	o.UpdatedAt = now
	return nil
}

// Toggle applies the single-tap rule to the item at raw.
func (o *Order) Toggle(raw int, actor Station, policy CancelPolicy, now time.Time) error {
	it, err := o.ItemAt(raw)
	if err != nil {
		return err
	}
	next, err := ToggleTarget(it.Status)
	if err != nil {
		return err
	}
	return o.Apply(Transition{Raw: raw, From: []ItemStatus{it.Status}, To: next, Actor: actor}, policy, now)
}

// CancelItem cancels the item at raw.
func (o *Order) CancelItem(raw int, actor Station, policy CancelPolicy, now time.Time) error {
	return o.Apply(Transition{Raw: raw, To: ItemCancelled, Actor: actor}, policy, now)
}

// RecoverItem brings a cancelled item back to pending.
func (o *Order) RecoverItem(raw int, actor Station, policy CancelPolicy, now time.Time) error {
	return o.Apply(Transition{Raw: raw, From: []ItemStatus{ItemCancelled}, To: ItemPending, Actor: actor}, policy, now)
}

// ClearStation finishes a station's share of the order ("clear ticket").
// Ready and served items become completed and the station-local flag is set;
// the order completes only when every station is done.
func (o *Order) ClearStation(s Station, policy CancelPolicy, now time.Time) error {
	ps := o.PartitionStatus(s)
	switch ps {
	case PartitionNone:
		return fmt.Errorf("%w: order has no %s items", ErrItemNotFound, s)
	case PartitionReady, PartitionDone, PartitionCancelled:
	default:
		return fmt.Errorf("%w: %s is %s", ErrStationNotReady, s, ps)
	}
	for i := range o.Items {
		it := &o.Items[i]
		if it.Station() != s {
			continue
		}
		if it.Status == ItemReady || it.Status == ItemServed {
			it.Status = ItemCompleted
		}
	}
	o.setStationArchived(s, true)
	o.Refresh(policy)
	o.UpdatedAt = now
	return nil
}

// Cancel explicitly cancels the whole order. Orders with delivered items
// cannot be cancelled as a whole; their remaining items are cancelled one by one.
func (o *Order) Cancel(now time.Time) error {
	if o.IsPaid() {
		return ErrOrderPaid
	}
	for i, it := range o.Items {
		if it.Status == ItemServed || it.Status == ItemCompleted {
			return fmt.Errorf("%w: item %d is already %s", ErrInvalidTransition, i, it.Status)
		}
	}
	for i := range o.Items {
		o.Items[i].Status = ItemCancelled
	}
	o.Status = StatusCancelled
	o.UpdatedAt = now
	return nil
}

// SetDiscount replaces the order-level discount on an unpaid order.
func (o *Order) SetDiscount(amount decimal.Decimal, now time.Time) error {
	if o.IsPaid() {
		return ErrOrderPaid
	}
	if amount.IsNegative() {
		return ErrInvalidDiscount
	}
	o.DiscountAmount = amount
	o.UpdatedAt = now
	return nil
}

func normalizeAll(in []ItemStatus) []ItemStatus {
	out := make([]ItemStatus, len(in))
	for i, s := range in {
		out[i] = s.normalized()
	}
	return out
}
