package order

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func boolPtr(b bool) *bool { return &b }

// mixedOrder has two kitchen items and one bar item, bar item in the middle.
func mixedOrder(t *testing.T) Order {
	t.Helper()
	o, err := New(4, "", []NewItem{
		{ID: "m1", Name: "Momo", Price: decimal.NewFromInt(300), Quantity: 1},
		{ID: "d1", Name: "Lemonade", Price: decimal.NewFromInt(150), Quantity: 2, RequiresPreparation: boolPtr(false)},
		{ID: "m2", Name: "Chowmein", Price: decimal.NewFromInt(250), Quantity: 1},
	}, now)
	if err != nil {
		t.Fatalf("new order: %v", err)
	}
	return o
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(0, "", []NewItem{{Name: "a", Quantity: 1}}, now); !errors.Is(err, ErrInvalidTable) {
		t.Fatalf("expected ErrInvalidTable, got: %v", err)
	}
	if _, err := New(1, "", nil, now); !errors.Is(err, ErrEmptyItems) {
		t.Fatalf("expected ErrEmptyItems, got: %v", err)
	}
	if _, err := New(1, "", []NewItem{{Name: "a", Quantity: 0}}, now); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got: %v", err)
	}
	if _, err := New(1, "", []NewItem{{Name: " ", Quantity: 1}}, now); !errors.Is(err, ErrMissingName) {
		t.Fatalf("expected ErrMissingName, got: %v", err)
	}
	if _, err := New(1, "", []NewItem{{Name: "a", Quantity: 1, Price: decimal.NewFromInt(-1)}}, now); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got: %v", err)
	}
}

func TestNew_DefaultsToKitchen(t *testing.T) {
	o := mixedOrder(t)
	if o.Items[0].Station() != Kitchen || o.Items[1].Station() != Bar {
		t.Fatalf("unexpected stations: %s %s", o.Items[0].Station(), o.Items[1].Station())
	}
	if o.Status != StatusPending || o.PaymentStatus != PaymentUnpaid {
		t.Fatalf("unexpected initial state: %s %s", o.Status, o.PaymentStatus)
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from ItemStatus
		to   ItemStatus
		prep bool
		ok   bool
	}{
		{ItemPending, ItemQueue, true, true},
		{ItemPending, ItemCooking, true, true},
		{ItemPending, ItemCancelled, true, true},
		{ItemPending, ItemReady, true, false},
		{ItemPending, ItemServed, false, true},
		{ItemQueue, ItemCooking, true, true},
		{ItemQueue, ItemReady, true, false},
		{ItemCooking, ItemReady, true, true},
		{ItemCooking, ItemServed, true, false},
		{ItemReady, ItemCooking, true, true},
		{ItemReady, ItemServed, true, true},
		{ItemReady, ItemCompleted, true, true},
		{ItemCancelled, ItemPending, true, true},
		{ItemCancelled, ItemCooking, true, false},
		{ItemCancelled, ItemServed, false, false},
		{ItemCompleted, ItemPending, true, false},
	}
	for _, tt := range tests {
		it := Item{Status: tt.from, RequiresPreparation: tt.prep}
		err := it.CanTransition(tt.to)
		if tt.ok && err != nil {
			t.Errorf("%s -> %s (prep=%v): unexpected error: %v", tt.from, tt.to, tt.prep, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s -> %s (prep=%v): expected ErrInvalidTransition, got: %v", tt.from, tt.to, tt.prep, err)
		}
	}
}

func TestToggle_Cycle(t *testing.T) {
	o := mixedOrder(t)
	want := []ItemStatus{ItemCooking, ItemReady, ItemCooking, ItemReady}
	for i, w := range want {
		if err := o.Toggle(0, Kitchen, DefaultCancelPolicy, now); err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
		if o.Items[0].Status != w {
			t.Fatalf("toggle %d: expected %s, got %s", i, w, o.Items[0].Status)
		}
	}
	if o.Items[0].StartTime == nil {
		t.Fatal("expected start time to be stamped")
	}
}

func TestToggle_CancelledRejected(t *testing.T) {
	o := mixedOrder(t)
	if err := o.CancelItem(0, Kitchen, DefaultCancelPolicy, now); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := o.Toggle(0, Kitchen, DefaultCancelPolicy, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got: %v", err)
	}
	if o.Items[0].Status != ItemCancelled {
		t.Fatalf("expected state preserved, got %s", o.Items[0].Status)
	}
}

func TestPartitionIndependence(t *testing.T) {
	o := mixedOrder(t)
	before := []ItemStatus{o.Items[0].Status, o.Items[2].Status}
	for _, to := range []ItemStatus{ItemReady, ItemServed} {
		if err := o.Apply(Transition{Raw: 1, To: to, Actor: Bar}, DefaultCancelPolicy, now); err != nil {
			t.Fatalf("bar transition to %s: %v", to, err)
		}
	}
	if o.Items[0].Status != before[0] || o.Items[2].Status != before[1] {
		t.Fatalf("kitchen items changed: %s %s", o.Items[0].Status, o.Items[2].Status)
	}

	if err := o.Toggle(0, Kitchen, DefaultCancelPolicy, now); err != nil {
		t.Fatalf("kitchen toggle: %v", err)
	}
	if o.Items[1].Status != ItemServed {
		t.Fatalf("bar item changed by kitchen: %s", o.Items[1].Status)
	}
}

func TestApply_WrongStation(t *testing.T) {
	o := mixedOrder(t)
	if err := o.Toggle(1, Kitchen, DefaultCancelPolicy, now); !errors.Is(err, ErrWrongStation) {
		t.Fatalf("expected ErrWrongStation, got: %v", err)
	}
	if o.Items[1].Status != ItemPending {
		t.Fatalf("bar item touched: %s", o.Items[1].Status)
	}
}

func TestApply_StaleFromSet(t *testing.T) {
	o := mixedOrder(t)
	if err := o.Toggle(0, Kitchen, DefaultCancelPolicy, now); err != nil {
		t.Fatal(err)
	}
	err := o.Apply(Transition{Raw: 0, From: []ItemStatus{ItemPending}, To: ItemCooking}, DefaultCancelPolicy, now)
	if !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus, got: %v", err)
	}
}

func TestApply_IndexOutOfRange(t *testing.T) {
	o := mixedOrder(t)
	if err := o.Toggle(9, Kitchen, DefaultCancelPolicy, now); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got: %v", err)
	}
}

func TestScenario_KitchenReadyThenBarServed(t *testing.T) {
	o := mixedOrder(t)
	for _, raw := range []int{0, 2} {
		for i := 0; i < 2; i++ {
			if err := o.Toggle(raw, Kitchen, DefaultCancelPolicy, now); err != nil {
				t.Fatalf("toggle %d: %v", raw, err)
			}
		}
	}
	if got := o.PartitionStatus(Kitchen); got != PartitionReady {
		t.Fatalf("expected kitchen ready, got %s", got)
	}
	if o.Status == StatusCompleted {
		t.Fatal("order must not complete while bar is pending")
	}

	if err := o.Apply(Transition{Raw: 1, To: ItemServed, Actor: Bar}, DefaultCancelPolicy, now); err != nil {
		t.Fatalf("bar served: %v", err)
	}
	if o.Status != StatusCompleted {
		t.Fatalf("expected completed once the bar delivered, got %s", o.Status)
	}
	// the kitchen still holds its ready plates until it clears the ticket
	if o.FullyDelivered() {
		t.Fatal("kitchen share is ready, not delivered")
	}
	if len(Board([]Order{o}, Kitchen)) != 1 {
		t.Fatal("kitchen board should still show the order")
	}

	if err := o.ClearStation(Kitchen, DefaultCancelPolicy, now); err != nil {
		t.Fatalf("clear kitchen: %v", err)
	}
	if !o.FullyDelivered() || o.Status != StatusCompleted {
		t.Fatalf("expected delivered and completed, got %v %s", o.FullyDelivered(), o.Status)
	}
}

func TestClearStation_KeepsOrderActiveForOtherStation(t *testing.T) {
	o := mixedOrder(t)
	for _, raw := range []int{0, 2} {
		_ = o.Toggle(raw, Kitchen, DefaultCancelPolicy, now)
		_ = o.Toggle(raw, Kitchen, DefaultCancelPolicy, now)
	}
	if err := o.ClearStation(Kitchen, DefaultCancelPolicy, now); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !o.IsKitchenArchived {
		t.Fatal("expected kitchen flag set")
	}
	if o.Status == StatusCompleted {
		t.Fatal("order must stay active for the bar")
	}
	if len(Board([]Order{o}, Kitchen)) != 0 {
		t.Fatal("kitchen board should be empty")
	}
	if len(Board([]Order{o}, Bar)) != 1 {
		t.Fatal("bar board should still show the order")
	}
}

func TestClearStation_NotReady(t *testing.T) {
	o := mixedOrder(t)
	if err := o.ClearStation(Kitchen, DefaultCancelPolicy, now); !errors.Is(err, ErrStationNotReady) {
		t.Fatalf("expected ErrStationNotReady, got: %v", err)
	}
}

func TestCancelAndRecover(t *testing.T) {
	o := mixedOrder(t)
	_ = o.CancelItem(0, Kitchen, DefaultCancelPolicy, now)
	if o.Status == StatusCancelled {
		t.Fatal("one of two kitchen items cancelled must not cancel order")
	}
	_ = o.CancelItem(2, Kitchen, DefaultCancelPolicy, now)
	if o.Status != StatusCancelled {
		t.Fatalf("expected cancelled order, got %s", o.Status)
	}
	if err := o.RecoverItem(2, Kitchen, DefaultCancelPolicy, now); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if o.Status == StatusCancelled || o.Items[2].Status != ItemPending {
		t.Fatalf("expected recovered item, got order %s item %s", o.Status, o.Items[2].Status)
	}
	if err := o.RecoverItem(2, Kitchen, DefaultCancelPolicy, now); !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus on double recover, got: %v", err)
	}
}

func TestCancelBarItem_PolicyConfigurable(t *testing.T) {
	o := mixedOrder(t)
	_ = o.CancelItem(1, Bar, DefaultCancelPolicy, now)
	if o.Status == StatusCancelled {
		t.Fatal("default policy must not cancel order on bar cancellation")
	}
	o = mixedOrder(t)
	_ = o.CancelItem(1, Bar, CancelPolicy{Kitchen: true, Bar: true}, now)
	if o.Status != StatusCancelled {
		t.Fatalf("bar policy should cancel order, got %s", o.Status)
	}
}

func TestRawIndexMapping(t *testing.T) {
	o := mixedOrder(t)
	for _, st := range Stations {
		var want []int
		for raw, it := range o.Items {
			if it.RequiresPreparation == (st == Kitchen) {
				want = append(want, raw)
			}
		}
		v, ok := o.View(st)
		if !ok {
			t.Fatalf("expected %s view", st)
		}
		if len(v.Items) != len(want) {
			t.Fatalf("%s: expected %d items, got %d", st, len(want), len(v.Items))
		}
		for filtered, raw := range want {
			got, err := v.RawIndex(filtered)
			if err != nil {
				t.Fatalf("raw index: %v", err)
			}
			if got != raw || v.Items[filtered].Item.Name != o.Items[raw].Name {
				t.Fatalf("%s position %d: got raw %d, want %d", st, filtered, got, raw)
			}
		}
	}
	v, _ := o.View(Kitchen)
	if _, err := v.RawIndex(5); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got: %v", err)
	}
}

func TestView_FullyDelivered(t *testing.T) {
	o := mixedOrder(t)
	if v, _ := o.View(Bar); v.FullyDelivered {
		t.Fatal("fresh order cannot be delivered")
	}
	if err := o.Apply(Transition{Raw: 1, To: ItemServed, Actor: Bar}, DefaultCancelPolicy, now); err != nil {
		t.Fatalf("bar served: %v", err)
	}
	_ = o.CancelItem(0, Kitchen, CancelPolicy{}, now)
	if err := o.Apply(Transition{Raw: 2, To: ItemCooking}, CancelPolicy{}, now); err != nil {
		t.Fatalf("cook: %v", err)
	}
	if v, _ := o.View(Bar); v.FullyDelivered {
		t.Fatal("kitchen is still cooking")
	}
	_ = o.Apply(Transition{Raw: 2, To: ItemReady}, CancelPolicy{}, now)
	_ = o.Apply(Transition{Raw: 2, To: ItemServed}, CancelPolicy{}, now)
	v, _ := o.View(Kitchen)
	if !v.FullyDelivered || !o.FullyDelivered() {
		t.Fatal("served and cancelled items count as delivered")
	}
}

func TestCancelOrder_DeliveredItemsRejected(t *testing.T) {
	o := mixedOrder(t)
	if err := o.Apply(Transition{Raw: 1, To: ItemServed, Actor: Bar}, DefaultCancelPolicy, now); err != nil {
		t.Fatalf("bar served: %v", err)
	}
	before := o.Clone()
	if err := o.Cancel(now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got: %v", err)
	}
	for i := range o.Items {
		if o.Items[i].Status != before.Items[i].Status {
			t.Fatalf("item %d changed to %s", i, o.Items[i].Status)
		}
	}
	if o.Status == StatusCancelled {
		t.Fatal("order must stay open")
	}
}

func TestCancelOrder_CancelsEveryItem(t *testing.T) {
	o := mixedOrder(t)
	_ = o.Toggle(0, Kitchen, DefaultCancelPolicy, now)
	if err := o.Cancel(now); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if o.Status != StatusCancelled || o.Billable() {
		t.Fatalf("expected cancelled with nothing billable, got %s", o.Status)
	}
}

func TestCancelOrder_PaidRejected(t *testing.T) {
	o := mixedOrder(t)
	o.PaymentStatus = PaymentPaid
	if err := o.Cancel(now); !errors.Is(err, ErrOrderPaid) {
		t.Fatalf("expected ErrOrderPaid, got: %v", err)
	}
	if err := o.SetDiscount(decimal.NewFromInt(10), now); !errors.Is(err, ErrOrderPaid) {
		t.Fatalf("expected ErrOrderPaid, got: %v", err)
	}
}

func TestFingerprint(t *testing.T) {
	var nilC *Customization
	if nilC.Fingerprint() != StandardFingerprint {
		t.Fatal("nil customization should be standard")
	}
	a := &Customization{SpiceLevel: "hot", ExcludedIngredients: []string{"onion", "garlic"}}
	b := &Customization{SpiceLevel: "hot", ExcludedIngredients: []string{"garlic", "onion"}}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("expected equal fingerprints: %s vs %s", a.Fingerprint(), b.Fingerprint())
	}
	c := &Customization{SpiceLevel: "mild"}
	if a.Fingerprint() == c.Fingerprint() {
		t.Fatal("different customizations must differ")
	}
}
