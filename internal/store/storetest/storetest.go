// Package storetest runs the same behavioural checks against every store backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/kiwari-pos/floorops/internal/store"
	"github.com/kiwari-pos/floorops/internal/table"
	"github.com/shopspring/decimal"
)

// Run executes the suite. newStore must return an empty store for each call.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("OrderLifecycle", func(t *testing.T) { testOrderLifecycle(t, newStore(t)) })
	t.Run("StaleUpdate", func(t *testing.T) { testStaleUpdate(t, newStore(t)) })
	t.Run("ArchiveAllOrNothing", func(t *testing.T) { testArchiveAllOrNothing(t, newStore(t)) })
	t.Run("Bookings", func(t *testing.T) { testBookings(t, newStore(t)) })
	t.Run("Vat", func(t *testing.T) { testVat(t, newStore(t)) })
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newOrder(t *testing.T, tableNumber int) order.Order {
	t.Helper()
	o, err := order.New(tableNumber, "", []order.NewItem{
		{Name: "Momo", Price: decimal.NewFromInt(300), Quantity: 2,
			Customization: &order.Customization{SpiceLevel: "hot", ExcludedIngredients: []string{"onion"}}},
	}, now)
	if err != nil {
		t.Fatalf("new order: %v", err)
	}
	return o
}

func testOrderLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	first, err := s.CreateOrder(ctx, newOrder(t, 1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("expected version 1, got %d", first.Version)
	}
	second, err := s.CreateOrder(ctx, newOrder(t, 2))
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	got, err := s.GetOrder(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Items[0].Customization == nil || got.Items[0].Customization.SpiceLevel != "hot" {
		t.Fatalf("customization lost: %+v", got.Items[0])
	}
	if !got.Items[0].Price.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("price lost: %s", got.Items[0].Price)
	}

	got.Items[0].Status = order.ItemCooking
	updated, err := s.UpdateOrder(ctx, got)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}

	list, err := s.ListOrders(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("expected placement order, got %d orders", len(list))
	}
	if list[0].Items[0].Status != order.ItemCooking {
		t.Fatalf("expected persisted status, got %s", list[0].Items[0].Status)
	}

	if _, err := s.GetOrder(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func testStaleUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	o, err := s.CreateOrder(ctx, newOrder(t, 1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	kitchen, bar := o.Clone(), o.Clone()

	kitchen.Items[0].Status = order.ItemCooking
	if _, err := s.UpdateOrder(ctx, kitchen); err != nil {
		t.Fatalf("first writer: %v", err)
	}
	bar.PaymentStatus = order.PaymentPaid
	if _, err := s.UpdateOrder(ctx, bar); !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict for stale writer, got: %v", err)
	}
	got, _ := s.GetOrder(ctx, o.ID)
	if got.Items[0].Status != order.ItemCooking || got.PaymentStatus != order.PaymentUnpaid {
		t.Fatalf("lost update: status=%s payment=%s", got.Items[0].Status, got.PaymentStatus)
	}

	missing := newOrder(t, 3)
	missing.Version = 1
	if _, err := s.UpdateOrder(ctx, missing); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func testArchiveAllOrNothing(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, _ := s.CreateOrder(ctx, newOrder(t, 1))
	b, _ := s.CreateOrder(ctx, newOrder(t, 1))

	staleB := b.Clone()
	b.Items[0].Status = order.ItemCooking
	if _, err := s.UpdateOrder(ctx, b); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.ArchiveOrders(ctx, []order.Order{a, staleB}); !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got: %v", err)
	}
	list, _ := s.ListOrders(ctx)
	if len(list) != 2 {
		t.Fatalf("failed archive must not remove anything, %d orders left", len(list))
	}

	fresh, _ := s.GetOrder(ctx, b.ID)
	if err := s.ArchiveOrders(ctx, []order.Order{a, fresh}); err != nil {
		t.Fatalf("archive: %v", err)
	}
	list, _ = s.ListOrders(ctx)
	if len(list) != 0 {
		t.Fatalf("expected empty active list, got %d", len(list))
	}
	hist, err := s.ListHistory(ctx, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 archived orders, got %d", len(hist))
	}
	if err := s.ArchiveOrders(ctx, []order.Order{a}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second archive, got: %v", err)
	}
	if hist, _ := s.ListHistory(ctx, 1); len(hist) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(hist))
	}
}

func testBookings(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.GetBooking(ctx, 4); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
	b := table.NewBooking(4)
	if _, err := b.AddGroup(2, "Window", now); err != nil {
		t.Fatal(err)
	}
	saved, err := s.SaveBooking(ctx, b)
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	if saved.Version != 1 || len(saved.Groups) != 1 {
		t.Fatalf("unexpected booking: %+v", saved)
	}
	if _, err := s.SaveBooking(ctx, b); !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict on duplicate create, got: %v", err)
	}
	saved.Release(now)
	if _, err := s.SaveBooking(ctx, saved); err != nil {
		t.Fatalf("update booking: %v", err)
	}
	got, err := s.GetBooking(ctx, 4)
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if got.Version != 2 || got.Occupied || len(got.Groups) != 0 {
		t.Fatalf("unexpected stored booking: %+v", got)
	}
	all, _ := s.ListBookings(ctx)
	if len(all) != 1 {
		t.Fatalf("expected 1 booking, got %d", len(all))
	}
}

func testVat(t *testing.T, s store.Store) {
	ctx := context.Background()
	v, err := s.GetVat(ctx)
	if err != nil {
		t.Fatalf("get vat: %v", err)
	}
	if v.Version != 0 || v.Enabled {
		t.Fatalf("expected empty config, got %+v", v)
	}
	v.Enabled, v.Rate = true, decimal.NewFromInt(13)
	saved, err := s.SaveVat(ctx, v)
	if err != nil {
		t.Fatalf("save vat: %v", err)
	}
	if _, err := s.SaveVat(ctx, v); !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got: %v", err)
	}
	got, _ := s.GetVat(ctx)
	if got.Version != saved.Version || !got.Rate.Equal(decimal.NewFromInt(13)) {
		t.Fatalf("unexpected vat: %+v", got)
	}
}
