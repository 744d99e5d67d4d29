package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiwari-pos/floorops/internal/billing"
	"github.com/kiwari-pos/floorops/internal/enum"
	"github.com/kiwari-pos/floorops/internal/events"
	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/kiwari-pos/floorops/internal/store"
	"github.com/kiwari-pos/floorops/internal/table"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TableUpdate changes the configuration of a table. Nil fields are left alone.
type TableUpdate struct {
	Capacity *int
	Occupied *bool
}

// BookGroup seats a named group at a table if it has room for every guest.
func (s *FloorService) BookGroup(ctx context.Context, tableNumber, guests int, name string) (table.Group, error) {
	var g table.Group
	_, err := s.mutateBooking(ctx, tableNumber, func(b *table.Booking) error {
		var err error
		g, err = b.AddGroup(guests, name, s.now())
		return err
	})
	if err != nil {
		return table.Group{}, err
	}
	s.log.Info("group booked",
		zap.Int("table", tableNumber), zap.String("group_id", g.ID), zap.Int("guests", guests))
	s.publish(ctx, s.tableEvent(tableNumber))
	return g, nil
}

// SetTable updates capacity or the manual occupancy flag of a table.
func (s *FloorService) SetTable(ctx context.Context, tableNumber int, upd TableUpdate) (table.Booking, error) {
	b, err := s.mutateBooking(ctx, tableNumber, func(b *table.Booking) error {
		if upd.Capacity != nil {
			if *upd.Capacity <= 0 || *upd.Capacity < b.Guests() {
				return fmt.Errorf("%w: capacity %d for %d seated guests", table.ErrCapacity, *upd.Capacity, b.Guests())
			}
			b.Capacity = *upd.Capacity
		}
		if upd.Occupied != nil {
			if !*upd.Occupied {
				b.Release(s.now())
			} else {
				b.Occupied = true
			}
		}
		b.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return table.Booking{}, err
	}
	s.publish(ctx, s.tableEvent(tableNumber))
	return b, nil
}

// Tables derives the session of every known table.
func (s *FloorService) Tables(ctx context.Context) ([]table.Session, error) {
	return s.sessions(ctx)
}

// Table derives one table's session. Unknown tables come back free and empty.
func (s *FloorService) Table(ctx context.Context, tableNumber int) (table.Session, error) {
	if tableNumber <= 0 {
		return table.Session{}, table.ErrInvalidTable
	}
	sessions, err := s.sessions(ctx)
	if err != nil {
		return table.Session{}, err
	}
	for _, sess := range sessions {
		if sess.TableNumber == tableNumber {
			return sess, nil
		}
	}
	return table.Build(table.NewBooking(tableNumber), nil, s.totals(billing.VatConfig{})), nil
}

// mutateBooking applies fn to the table's booking, creating a default one when
// the table was never configured, and retries on version conflicts.
func (s *FloorService) mutateBooking(ctx context.Context, tableNumber int, fn func(b *table.Booking) error) (table.Booking, error) {
	if tableNumber <= 0 {
		return table.Booking{}, table.ErrInvalidTable
	}
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		b, err := s.store.GetBooking(ctx, tableNumber)
		if errors.Is(err, store.ErrNotFound) {
			b = table.NewBooking(tableNumber)
		} else if err != nil {
			return table.Booking{}, storeErr("get booking", err)
		}
		if err := fn(&b); err != nil {
			return table.Booking{}, err
		}
		saved, err := s.store.SaveBooking(ctx, b)
		if errors.Is(err, store.ErrVersionConflict) {
			s.log.Debug("booking version conflict, retrying",
				zap.Int("table", tableNumber), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return table.Booking{}, storeErr("save booking", err)
		}
		return saved, nil
	}
	return table.Booking{}, ErrConflict
}

// sessions loads bookings, orders and VAT and derives every table session.
func (s *FloorService) sessions(ctx context.Context) ([]table.Session, error) {
	bookings, err := s.store.ListBookings(ctx)
	if err != nil {
		return nil, storeErr("list bookings", err)
	}
	orders, err := s.store.ListOrders(ctx)
	if err != nil {
		return nil, storeErr("list orders", err)
	}
	vat, err := s.store.GetVat(ctx)
	if err != nil {
		return nil, storeErr("get vat", err)
	}
	return table.BuildAll(bookings, orders, s.totals(vat)), nil
}

func (s *FloorService) totals(vat billing.VatConfig) table.Totals {
	return func(orders []order.Order) (decimal.Decimal, decimal.Decimal) {
		sum := s.calc.Summarize(orders, vat)
		return sum.Statement, sum.Outstanding
	}
}

func (s *FloorService) tableEvent(tableNumber int) events.Event {
	e := events.New(enum.EventTableUpdated, s.now(), events.TopicAdmin, events.TableTopic(tableNumber))
	e.TableNumber = tableNumber
	return e
}
