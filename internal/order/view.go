package order

import (
	"fmt"

	"github.com/google/uuid"
)

// ViewItem is an item as one station sees it, with a back-reference into the raw order.
type ViewItem struct {
	RawIndex int  `json:"raw_index"`
	Item     Item `json:"item"`
}

// StationView is the filtered, station-specific projection of a raw order.
// Actions taken on a view must be translated through RawIndex before touching the order.
type StationView struct {
	OrderID     uuid.UUID       `json:"order_id"`
	TableNumber int             `json:"table_number"`
	SessionID   string          `json:"session_id,omitempty"`
	Station     Station         `json:"station"`
	Status      PartitionStatus `json:"status"`
	OrderStatus Status          `json:"order_status"`
	Archived    bool            `json:"archived"`
	Items       []ViewItem      `json:"items"`

	// FullyDelivered is order-wide: every station is done or cancelled.
	FullyDelivered bool `json:"fully_delivered"`
}

// View projects the order onto a station. ok is false when the station has no items.
func (o Order) View(s Station) (StationView, bool) {
	v := StationView{
		OrderID:     o.ID,
		TableNumber: o.TableNumber,
		SessionID:   o.SessionID,
		Station:     s,
		OrderStatus: o.Status,
		Archived:    o.StationArchived(s),

		FullyDelivered: o.FullyDelivered(),
	}
	var items []Item
	for raw, it := range o.Items {
		if it.Station() != s {
			continue
		}
		v.Items = append(v.Items, ViewItem{RawIndex: raw, Item: it})
		items = append(items, it)
	}
	if len(items) == 0 {
		return StationView{}, false
	}
	v.Status = DerivePartitionStatus(items)
	return v, true
}

// RawIndex maps a filtered position back to the raw item index.
func (v StationView) RawIndex(filtered int) (int, error) {
	if filtered < 0 || filtered >= len(v.Items) {
		return 0, fmt.Errorf("%w: %s index %d", ErrItemNotFound, v.Station, filtered)
	}
	return v.Items[filtered].RawIndex, nil
}

// Board returns a view for every order that has items for s
// and whose station-local archive flag is unset.
func Board(orders []Order, s Station) []StationView {
	var out []StationView
	for _, o := range orders {
		if o.StationArchived(s) {
			continue
		}
		v, ok := o.View(s)
		if !ok {
			continue
		}
		// cancelled views stay on the board so staff can recover them
		out = append(out, v)
	}
	return out
}
