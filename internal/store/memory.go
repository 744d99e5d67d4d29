package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/kiwari-pos/floorops/internal/billing"
	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/kiwari-pos/floorops/internal/table"
)

// Memory is an in-process Store. Values are copied on the way in and out.
type Memory struct {
	mu       sync.RWMutex
	seq      []uuid.UUID
	orders   map[uuid.UUID]order.Order
	history  []order.Order
	bookings map[int]table.Booking
	vat      billing.VatConfig
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		orders:   map[uuid.UUID]order.Order{},
		bookings: map[int]table.Booking{},
	}
}

func (m *Memory) ListOrders(ctx context.Context) ([]order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]order.Order, 0, len(m.seq))
	for _, id := range m.seq {
		out = append(out, m.orders[id].Clone())
	}
	return out, nil
}

func (m *Memory) GetOrder(ctx context.Context, id uuid.UUID) (order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return order.Order{}, ErrNotFound
	}
	return o.Clone(), nil
}

func (m *Memory) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return order.Order{}, ErrVersionConflict
	}
	o = o.Clone()
	o.Version = 1
	m.orders[o.ID] = o
	m.seq = append(m.seq, o.ID)
	return o.Clone(), nil
}

func (m *Memory) UpdateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[o.ID]
	if !ok {
		return order.Order{}, ErrNotFound
	}
	if cur.Version != o.Version {
		return order.Order{}, ErrVersionConflict
	}
	o = o.Clone()
	o.Version++
	m.orders[o.ID] = o
	return o.Clone(), nil
}

func (m *Memory) ArchiveOrders(ctx context.Context, orders []order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range orders {
		cur, ok := m.orders[o.ID]
		if !ok {
			return ErrNotFound
		}
		if cur.Version != o.Version {
			return ErrVersionConflict
		}
	}
	gone := make(map[uuid.UUID]bool, len(orders))
	for _, o := range orders {
		gone[o.ID] = true
		m.history = append(m.history, o.Clone())
		delete(m.orders, o.ID)
	}
	seq := m.seq[:0]
	for _, id := range m.seq {
		if !gone[id] {
			seq = append(seq, id)
		}
	}
	m.seq = seq
	return nil
}

func (m *Memory) ListHistory(ctx context.Context, limit int) ([]order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []order.Order
	for i := len(m.history) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.history[i].Clone())
	}
	return out, nil
}

func (m *Memory) ListBookings(ctx context.Context) ([]table.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]table.Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		out = append(out, cloneBooking(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableNumber < out[j].TableNumber })
	return out, nil
}

func (m *Memory) GetBooking(ctx context.Context, tableNumber int) (table.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[tableNumber]
	if !ok {
		return table.Booking{}, ErrNotFound
	}
	return cloneBooking(b), nil
}

func (m *Memory) SaveBooking(ctx context.Context, b table.Booking) (table.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.bookings[b.TableNumber]
	switch {
	case !ok && b.Version != 0:
		return table.Booking{}, ErrNotFound
	case ok && cur.Version != b.Version:
		return table.Booking{}, ErrVersionConflict
	}
	b = cloneBooking(b)
	b.Version++
	m.bookings[b.TableNumber] = b
	return cloneBooking(b), nil
}

func (m *Memory) GetVat(ctx context.Context) (billing.VatConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vat, nil
}

func (m *Memory) SaveVat(ctx context.Context, v billing.VatConfig) (billing.VatConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.Version != m.vat.Version {
		return billing.VatConfig{}, ErrVersionConflict
	}
	v.Version++
	m.vat = v
	return v, nil
}

func (m *Memory) Close(ctx context.Context) error { return nil }

func cloneBooking(b table.Booking) table.Booking {
	b.Groups = append([]table.Group(nil), b.Groups...)
	return b
}
