// Package ticket batches identical kitchen preparations across orders.
package ticket

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/floorops/internal/order"
)

// Ref addresses one raw item of one order. Status, when set, is the item
// status the caller last saw and guards against acting on stale data.
type Ref struct {
	OrderID  uuid.UUID        `json:"order_id"`
	RawIndex int              `json:"raw_index"`
	Status   order.ItemStatus `json:"status,omitempty"`
}

// Ticket is the share of one variant contributed by one order in one status.
type Ticket struct {
	OrderID       uuid.UUID        `json:"order_id"`
	TableNumber   int              `json:"table_number"`
	Status        order.ItemStatus `json:"status"`
	Quantity      int32            `json:"quantity"`
	EarliestStart *time.Time       `json:"earliest_start,omitempty"`
	RawIndices    []int            `json:"raw_indices"`
}

// Refs expands the ticket into per-item references.
func (t Ticket) Refs() []Ref {
	refs := make([]Ref, len(t.RawIndices))
	for i, raw := range t.RawIndices {
		refs[i] = Ref{OrderID: t.OrderID, RawIndex: raw, Status: t.Status}
	}
	return refs
}

// Variant is one customization of a dish.
type Variant struct {
	Fingerprint   string               `json:"fingerprint"`
	Customization *order.Customization `json:"customization,omitempty"`
	Quantity      int32                `json:"quantity"`
	Tickets       []Ticket             `json:"tickets"`
}

// Refs returns references to every raw item of the variant.
func (v Variant) Refs() []Ref {
	var refs []Ref
	for _, t := range v.Tickets {
		refs = append(refs, t.Refs()...)
	}
	return refs
}

// Group collects every variant of one dish name.
type Group struct {
	Name     string    `json:"name"`
	Quantity int32     `json:"quantity"`
	Variants []Variant `json:"variants"`
}

// TicketCount is the number of tickets across all variants.
func (g Group) TicketCount() int {
	n := 0
	for _, v := range g.Variants {
		n += len(v.Tickets)
	}
	return n
}

type ticketKey struct {
	orderID uuid.UUID
	status  order.ItemStatus
}

// batchable lists the item states that still represent kitchen work.
var batchable = map[order.ItemStatus]bool{
	order.ItemPending:   true,
	order.ItemQueue:     true,
	order.ItemCooking:   true,
	order.ItemPreparing: true,
	order.ItemReady:     true,
}

// Aggregate groups active kitchen items of the raw order list by name, then
// customization fingerprint, then (order, status). Only groups with more than
// one ticket or more than one variant are returned.
func Aggregate(orders []order.Order) []Group {
	type variantAcc struct {
		custom  *order.Customization
		tickets map[ticketKey]*Ticket
	}
	byName := map[string]map[string]*variantAcc{}

	for _, o := range orders {
		if o.IsKitchenArchived || o.Status == order.StatusCancelled {
			continue
		}
		for raw, it := range o.Items {
			if it.Station() != order.Kitchen || !batchable[it.Status] {
				continue
			}
			fp := it.Customization.Fingerprint()
			variants, ok := byName[it.Name]
			if !ok {
				variants = map[string]*variantAcc{}
				byName[it.Name] = variants
			}
			acc, ok := variants[fp]
			if !ok {
				acc = &variantAcc{custom: it.Customization, tickets: map[ticketKey]*Ticket{}}
				variants[fp] = acc
			}
			key := ticketKey{orderID: o.ID, status: it.Status}
			t, ok := acc.tickets[key]
			if !ok {
				t = &Ticket{OrderID: o.ID, TableNumber: o.TableNumber, Status: it.Status}
				acc.tickets[key] = t
			}
			t.Quantity += it.Quantity
			t.RawIndices = append(t.RawIndices, raw)
			if it.StartTime != nil && (t.EarliestStart == nil || it.StartTime.Before(*t.EarliestStart)) {
				start := *it.StartTime
				t.EarliestStart = &start
			}
		}
	}

	var out []Group
	for name, variants := range byName {
		g := Group{Name: name}
		for fp, acc := range variants {
			v := Variant{Fingerprint: fp, Customization: acc.custom}
			for _, t := range acc.tickets {
				v.Quantity += t.Quantity
				v.Tickets = append(v.Tickets, *t)
			}
			sortTickets(v.Tickets)
			g.Quantity += v.Quantity
			g.Variants = append(g.Variants, v)
		}
		if len(g.Variants) < 2 && g.TicketCount() < 2 {
			continue
		}
		sort.Slice(g.Variants, func(i, j int) bool {
			a, b := g.Variants[i].Fingerprint, g.Variants[j].Fingerprint
			if (a == order.StandardFingerprint) != (b == order.StandardFingerprint) {
				return a == order.StandardFingerprint
			}
			return a < b
		})
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// sortTickets orders by earliest start (unstarted last), then table, order and status.
func sortTickets(ts []Ticket) {
	sort.Slice(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		switch {
		case a.EarliestStart != nil && b.EarliestStart == nil:
			return true
		case a.EarliestStart == nil && b.EarliestStart != nil:
			return false
		case a.EarliestStart != nil && !a.EarliestStart.Equal(*b.EarliestStart):
			return a.EarliestStart.Before(*b.EarliestStart)
		}
		if a.TableNumber != b.TableNumber {
			return a.TableNumber < b.TableNumber
		}
		if a.OrderID != b.OrderID {
			return a.OrderID.String() < b.OrderID.String()
		}
		return a.Status < b.Status
	})
}

// ByOrder groups refs per order, keeping first-seen order and dropping
// duplicate item positions, so a batch touches each order once.
func ByOrder(refs []Ref) ([]uuid.UUID, map[uuid.UUID][]Ref) {
	var ids []uuid.UUID
	out := map[uuid.UUID][]Ref{}
	type pos struct {
		id  uuid.UUID
		raw int
	}
	seen := map[pos]bool{}
	for _, r := range refs {
		p := pos{r.OrderID, r.RawIndex}
		if seen[p] {
			continue
		}
		seen[p] = true
		if _, ok := out[r.OrderID]; !ok {
			ids = append(ids, r.OrderID)
		}
		out[r.OrderID] = append(out[r.OrderID], r)
	}
	return ids, out
}
