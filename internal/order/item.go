package order

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/kiwari-pos/floorops/internal/enum"
	"github.com/shopspring/decimal"
)

// ItemStatus is the fulfillment state of a single ordered item.
type ItemStatus string

const (
	ItemPending   ItemStatus = enum.ItemStatusPending
	ItemQueue     ItemStatus = enum.ItemStatusQueue
	ItemCooking   ItemStatus = enum.ItemStatusCooking
	ItemPreparing ItemStatus = enum.ItemStatusPreparing
	ItemReady     ItemStatus = enum.ItemStatusReady
	ItemServed    ItemStatus = enum.ItemStatusServed
	ItemCompleted ItemStatus = enum.ItemStatusCompleted
	ItemCancelled ItemStatus = enum.ItemStatusCancelled
)

// ItemStatuses lists every status an item can hold, legacy alias excluded.
var ItemStatuses = []ItemStatus{
	ItemPending, ItemQueue, ItemCooking, ItemReady, ItemServed, ItemCompleted, ItemCancelled,
}

// ParseItemStatus validates s. The legacy "preparing" value is accepted as is.
func ParseItemStatus(s string) (ItemStatus, error) {
	st := ItemStatus(s)
	switch st {
	case ItemPending, ItemQueue, ItemCooking, ItemPreparing, ItemReady,
		ItemServed, ItemCompleted, ItemCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Finished reports whether the item has left the preparation flow.
func (s ItemStatus) Finished() bool {
	return s == ItemServed || s == ItemCompleted || s == ItemCancelled
}

// normalized folds the legacy alias into its canonical state.
func (s ItemStatus) normalized() ItemStatus {
	if s == ItemPreparing {
		return ItemCooking
	}
	return s
}

// Station is a physical fulfillment point.
type Station string

const (
	Kitchen Station = enum.StationKitchen
	Bar     Station = enum.StationBar
)

// Stations lists both stations in display order.
var Stations = []Station{Kitchen, Bar}

// ParseStation validates s.
func ParseStation(s string) (Station, error) {
	switch Station(s) {
	case Kitchen, Bar:
		return Station(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStation, s)
}

// Customization carries the options that make two identical dishes differ.
type Customization struct {
	Portion             string   `json:"portion,omitempty"`
	SpiceLevel          string   `json:"spice_level,omitempty"`
	IsVeg               *bool    `json:"is_veg,omitempty"`
	ExcludedIngredients []string `json:"excluded_ingredients,omitempty"`
}

// StandardFingerprint identifies items ordered without customization.
const StandardFingerprint = "standard"

// Fingerprint returns a canonical serialization used to batch identical preparations.
func (c *Customization) Fingerprint() string {
	if c == nil || (c.Portion == "" && c.SpiceLevel == "" && c.IsVeg == nil && len(c.ExcludedIngredients) == 0) {
		return StandardFingerprint
	}
	excluded := append([]string(nil), c.ExcludedIngredients...)
	sort.Strings(excluded)
	canonical := struct {
		Portion    string   `json:"portion"`
		SpiceLevel string   `json:"spiceLevel"`
		IsVeg      *bool    `json:"isVeg"`
		Excluded   []string `json:"excludedIngredients"`
	}{c.Portion, c.SpiceLevel, c.IsVeg, excluded}
	b, err := json.Marshal(canonical)
	if err != nil {
		return StandardFingerprint
	}
	return string(b)
}

// Item is one line of an order. It is owned by its order and addressed by raw index.
type Item struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Price               decimal.Decimal `json:"price"`
	Quantity            int32           `json:"quantity"`
	RequiresPreparation bool            `json:"requires_preparation"`
	Status              ItemStatus      `json:"status"`
	Customization       *Customization  `json:"customization,omitempty"`
	StartTime           *time.Time      `json:"start_time,omitempty"`
	TargetTime          *time.Time      `json:"target_time,omitempty"`
}

// Station reports which station prepares the item.
func (it Item) Station() Station {
	if it.RequiresPreparation {
		return Kitchen
	}
	return Bar
}

// LineTotal is price × quantity.
func (it Item) LineTotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt32(it.Quantity))
}

// allowedTransitions defines valid item status transitions.
// Key is current status, value is the set of statuses it can transition to.
var allowedTransitions = map[ItemStatus][]ItemStatus{
	ItemPending:   {ItemQueue, ItemCooking, ItemCancelled},
	ItemQueue:     {ItemCooking, ItemCancelled},
	ItemCooking:   {ItemReady, ItemCancelled},
	ItemReady:     {ItemCooking, ItemServed, ItemCompleted},
	ItemServed:    {ItemCompleted},
	ItemCancelled: {ItemPending},
}

// barShortcuts lets items that need no preparation skip the cooking step.
var barShortcuts = map[ItemStatus][]ItemStatus{
	ItemPending: {ItemReady, ItemServed},
	ItemQueue:   {ItemReady, ItemServed},
}

// CanTransition checks if the item may move from its current status to next.
func (it Item) CanTransition(next ItemStatus) error {
	current := it.Status.normalized()
	next = next.normalized()
	if contains(allowedTransitions[current], next) {
		return nil
	}
	if !it.RequiresPreparation && contains(barShortcuts[current], next) {
		return nil
	}
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, it.Status, next)
}

// ToggleTarget returns the status the common single-tap action leads to:
// {pending, queue} -> cooking -> ready -> cooking.
func ToggleTarget(s ItemStatus) (ItemStatus, error) {
	switch s.normalized() {
	case ItemPending, ItemQueue:
		return ItemCooking, nil
	case ItemCooking:
		return ItemReady, nil
	case ItemReady:
		return ItemCooking, nil
	}
	return "", fmt.Errorf("%w: cannot toggle %s item", ErrInvalidTransition, s)
}

// apply moves the item to next after validation, stamping start time on first cook.
func (it *Item) apply(next ItemStatus, now time.Time) error {
	if err := it.CanTransition(next); err != nil {
		return err
	}
	next = next.normalized()
	if next == ItemCooking && it.StartTime == nil {
		t := now
		it.StartTime = &t
	}
	it.Status = next
	return nil
}

func contains(set []ItemStatus, s ItemStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
