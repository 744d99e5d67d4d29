// Package store persists active orders, order history, table bookings and the VAT config.
//
// Every write is per entity and guarded by a version: UpdateOrder, SaveBooking and
// SaveVat only succeed when the caller's Version matches the stored one, and bump it.
// ArchiveOrders moves a set of orders to history all at once or not at all.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiwari-pos/floorops/internal/billing"
	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/kiwari-pos/floorops/internal/table"
)

// Errors returned by every store implementation.
var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
)

// Collection names shared by the document backends.
const (
	CollectionActiveOrders  = "active_orders"
	CollectionOrderHistory  = "order_history"
	CollectionTableSessions = "table_sessions"
	CollectionVatConfig     = "vat_config"
)

// OrderStore holds active and archived orders.
type OrderStore interface {
	// ListOrders returns active orders in placement order.
	ListOrders(ctx context.Context) ([]order.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (order.Order, error)
	// CreateOrder stores a new order at version 1.
	CreateOrder(ctx context.Context, o order.Order) (order.Order, error)
	// UpdateOrder replaces o if its Version still matches and returns it with the next version.
	UpdateOrder(ctx context.Context, o order.Order) (order.Order, error)
	// ArchiveOrders moves orders from active to history. Each order's Version must match.
	ArchiveOrders(ctx context.Context, orders []order.Order) error
	// ListHistory returns archived orders, newest first. limit <= 0 means all.
	ListHistory(ctx context.Context, limit int) ([]order.Order, error)
}

// BookingStore holds manual table bookings.
type BookingStore interface {
	// ListBookings returns bookings ordered by table number.
	ListBookings(ctx context.Context) ([]table.Booking, error)
	GetBooking(ctx context.Context, tableNumber int) (table.Booking, error)
	// SaveBooking creates the booking when Version is 0, otherwise compare-and-swaps it.
	SaveBooking(ctx context.Context, b table.Booking) (table.Booking, error)
}

// VatStore holds the single VAT config record.
type VatStore interface {
	// GetVat returns the zero config at version 0 when nothing was saved yet.
	GetVat(ctx context.Context) (billing.VatConfig, error)
	SaveVat(ctx context.Context, v billing.VatConfig) (billing.VatConfig, error)
}

// Store is the full persistence surface used by the floor service.
type Store interface {
	OrderStore
	BookingStore
	VatStore
	Close(ctx context.Context) error
}
