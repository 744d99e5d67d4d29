// Package table derives table occupancy and billable groups from bookings and orders.
package table

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/floorops/internal/enum"
	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/shopspring/decimal"
)

var (
	ErrCapacity      = errors.New("table capacity exceeded")
	ErrInvalidGuests = errors.New("guests must be > 0")
	ErrInvalidTable  = errors.New("table number must be > 0")
	ErrGroupNotFound = errors.New("group not found")
)

// DefaultCapacity applies to tables that were never configured.
const DefaultCapacity = 4

// Status is table occupancy.
type Status string

const (
	StatusFree     Status = enum.TableStatusFree
	StatusOccupied Status = enum.TableStatusOccupied
)

// Group is a manually booked party.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Guests    int       `json:"guests"`
	StartTime time.Time `json:"start_time"`
}

// Booking is the stored, manually maintained state of one table.
type Booking struct {
	TableNumber int       `json:"table_number"`
	Capacity    int       `json:"capacity"`
	Occupied    bool      `json:"occupied"`
	Groups      []Group   `json:"groups"`
	Version     int64     `json:"version"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewBooking returns an empty booking for a table.
func NewBooking(tableNumber int) Booking {
	return Booking{TableNumber: tableNumber, Capacity: DefaultCapacity}
}

// Guests sums the booked guests.
func (b Booking) Guests() int {
	n := 0
	for _, g := range b.Groups {
		n += g.Guests
	}
	return n
}

// Remaining is the number of free seats.
func (b Booking) Remaining() int {
	return b.Capacity - b.Guests()
}

// AddGroup seats a new party ("split/shared table") under a fresh session id.
func (b *Booking) AddGroup(guests int, name string, now time.Time) (Group, error) {
	if guests <= 0 {
		return Group{}, ErrInvalidGuests
	}
	remaining := b.Remaining()
	if remaining <= 0 {
		return Group{}, fmt.Errorf("%w: table %d is full (%d/%d seats taken)", ErrCapacity, b.TableNumber, b.Guests(), b.Capacity)
	}
	if guests > remaining {
		return Group{}, fmt.Errorf("%w: table %d has %d free seats, %d requested", ErrCapacity, b.TableNumber, remaining, guests)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Group %d", len(b.Groups)+1)
	}
	g := Group{ID: uuid.NewString(), Name: name, Guests: guests, StartTime: now}
	b.Groups = append(b.Groups, g)
	b.Occupied = true
	b.UpdatedAt = now
	return g, nil
}

// RemoveGroup drops a group. When no group remains the table is released.
func (b *Booking) RemoveGroup(id string, now time.Time) bool {
	for i, g := range b.Groups {
		if g.ID == id {
			b.Groups = append(b.Groups[:i:i], b.Groups[i+1:]...)
			if len(b.Groups) == 0 {
				b.Occupied = false
			}
			b.UpdatedAt = now
			return true
		}
	}
	return false
}

// Release frees the table and forgets every group.
func (b *Booking) Release(now time.Time) {
	b.Groups = nil
	b.Occupied = false
	b.UpdatedAt = now
}

// HasGroup reports whether id is a manual group of this table.
func (b Booking) HasGroup(id string) bool {
	for _, g := range b.Groups {
		if g.ID == id {
			return true
		}
	}
	return false
}

// LegacyGroupID names the synthesized group for session-less orders.
func LegacyGroupID(tableNumber int) string {
	return fmt.Sprintf("legacy_%d", tableNumber)
}

// SessionGroup is a group merged with the orders it owns.
type SessionGroup struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Guests            int             `json:"guests"`
	StartTime         time.Time       `json:"start_time"`
	Legacy            bool            `json:"legacy"`
	Orders            []order.Order   `json:"active_orders"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
}

// OrderIDs lists the ids of the group's orders.
func (g SessionGroup) OrderIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(g.Orders))
	for i, o := range g.Orders {
		ids[i] = o.ID
	}
	return ids
}

// Session is the derived view of a table.
type Session struct {
	TableNumber       int             `json:"table_number"`
	Status            Status          `json:"status"`
	Capacity          int             `json:"capacity"`
	Guests            int             `json:"guests"`
	Groups            []SessionGroup  `json:"groups"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	ActiveOrders      []order.Order   `json:"active_orders"`
	Version           int64           `json:"version"`
}

// Group finds a group of the session by id.
func (s Session) Group(id string) (SessionGroup, bool) {
	for _, g := range s.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return SessionGroup{}, false
}

// Totals reports a statement total (all non-cancelled orders) and an
// outstanding total (non-cancelled, unpaid orders).
type Totals func(orders []order.Order) (statement, outstanding decimal.Decimal)

// Build merges a booking with the orders of its table.
// Orders join the manual group whose id equals their session id; when the table
// has exactly one manual group, session-less orders join it too. Every other
// order lands in a legacy group keyed by its session id or "legacy_<table>".
func Build(b Booking, orders []order.Order, totals Totals) Session {
	s := Session{
		TableNumber: b.TableNumber,
		Capacity:    b.Capacity,
		Version:     b.Version,
	}
	byID := map[string]*SessionGroup{}
	var ids []string
	for _, g := range b.Groups {
		byID[g.ID] = &SessionGroup{ID: g.ID, Name: g.Name, Guests: g.Guests, StartTime: g.StartTime}
		ids = append(ids, g.ID)
	}

	occupied := b.Occupied
	for _, o := range orders {
		if o.TableNumber != b.TableNumber {
			continue
		}
		s.ActiveOrders = append(s.ActiveOrders, o)
		if o.Billable() {
			occupied = true
		}
		key := o.SessionID
		switch {
		case key != "" && byID[key] != nil:
		case key == "" && len(b.Groups) == 1:
			key = b.Groups[0].ID
		default:
			if key == "" {
				key = LegacyGroupID(b.TableNumber)
			}
			if byID[key] == nil {
				byID[key] = &SessionGroup{ID: key, Name: "Walk-in", Legacy: true, StartTime: o.Date}
				ids = append(ids, key)
			}
		}
		g := byID[key]
		g.Orders = append(g.Orders, o)
		if g.Legacy && o.Date.Before(g.StartTime) {
			g.StartTime = o.Date
		}
	}

	s.TotalAmount, s.OutstandingAmount = decimal.Zero, decimal.Zero
	for _, id := range ids {
		g := byID[id]
		g.TotalAmount, g.OutstandingAmount = decimal.Zero, decimal.Zero
		if totals != nil {
			g.TotalAmount, g.OutstandingAmount = totals(g.Orders)
		}
		s.Guests += g.Guests
		s.TotalAmount = s.TotalAmount.Add(g.TotalAmount)
		s.OutstandingAmount = s.OutstandingAmount.Add(g.OutstandingAmount)
		s.Groups = append(s.Groups, *g)
	}

	s.Status = StatusFree
	if occupied {
		s.Status = StatusOccupied
	}
	return s
}

// BuildAll derives a session for every booked table and every table referenced by an order.
func BuildAll(bookings []Booking, orders []order.Order, totals Totals) []Session {
	byTable := map[int]Booking{}
	for _, b := range bookings {
		byTable[b.TableNumber] = b
	}
	for _, o := range orders {
		if _, ok := byTable[o.TableNumber]; !ok {
			byTable[o.TableNumber] = NewBooking(o.TableNumber)
		}
	}
	tables := make([]int, 0, len(byTable))
	for n := range byTable {
		tables = append(tables, n)
	}
	sort.Ints(tables)

	out := make([]Session, 0, len(tables))
	for _, n := range tables {
		out = append(out, Build(byTable[n], orders, totals))
	}
	return out
}

// FindGroup locates a group id among sessions.
func FindGroup(sessions []Session, id string) (Session, SessionGroup, error) {
	for _, s := range sessions {
		if g, ok := s.Group(id); ok {
			return s, g, nil
		}
	}
	return Session{}, SessionGroup{}, fmt.Errorf("%w: %s", ErrGroupNotFound, id)
}
