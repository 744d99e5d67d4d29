package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiwari-pos/floorops/internal/enum"
	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/kiwari-pos/floorops/internal/ticket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PlaceOrderRequest is the validated input for placing an order.
type PlaceOrderRequest struct {
	TableNumber int
	SessionID   string
	Items       []order.NewItem
}

// ItemRef addresses one item of an order on behalf of an actor.
type ItemRef struct {
	OrderID  uuid.UUID
	RawIndex int
	// Station is the acting station; empty for admin actions.
	Station order.Station
	// Seen is the status the actor last saw; empty skips the stale check.
	Seen order.ItemStatus
}

// TransitionRequest moves one item to To, optionally only from one of From.
type TransitionRequest struct {
	ItemRef
	From []order.ItemStatus
	To   order.ItemStatus
}

// BatchResult is the outcome of one reference in a batch action.
type BatchResult struct {
	Ref    ticket.Ref `json:"ref"`
	Status string     `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// Batch outcome statuses.
const (
	BatchOK             = "ok"
	BatchAlreadyHandled = "already_handled"
	BatchRejected       = "rejected"
	BatchUnavailable    = "unavailable"
)

// PlaceOrder validates and stores a new pending order.
func (s *FloorService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (order.Order, error) {
	o, err := order.New(req.TableNumber, req.SessionID, req.Items, s.now())
	if err != nil {
		return order.Order{}, err
	}
	o.Refresh(s.policy)
	saved, err := s.store.CreateOrder(ctx, o)
	if err != nil {
		return order.Order{}, storeErr("create order", err)
	}
	s.log.Info("order placed",
		zap.String("order_id", saved.ID.String()),
		zap.Int("table", saved.TableNumber),
		zap.Int("items", len(saved.Items)))
	s.publish(ctx, s.orderEvent(enum.EventOrderPlaced, saved))
	return saved, nil
}

// GetOrder returns an active order.
func (s *FloorService) GetOrder(ctx context.Context, id uuid.UUID) (order.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return order.Order{}, storeErr("get order", err)
	}
	return o, nil
}

// ListOrders returns active orders, optionally only those of one table.
func (s *FloorService) ListOrders(ctx context.Context, tableNumber int) ([]order.Order, error) {
	all, err := s.store.ListOrders(ctx)
	if err != nil {
		return nil, storeErr("list orders", err)
	}
	if tableNumber <= 0 {
		return all, nil
	}
	out := []order.Order{}
	for _, o := range all {
		if o.TableNumber == tableNumber {
			out = append(out, o)
		}
	}
	return out, nil
}

// TransitionItem applies a guarded status change to one item.
func (s *FloorService) TransitionItem(ctx context.Context, req TransitionRequest) (order.Order, error) {
	from := req.From
	if req.Seen != "" {
		from = append(append([]order.ItemStatus{}, from...), req.Seen)
	}
	return s.updateOrder(ctx, req.OrderID, func(o *order.Order) error {
		return o.Apply(order.Transition{Raw: req.RawIndex, From: from, To: req.To, Actor: req.Station}, s.policy, s.now())
	})
}

// ToggleItem advances one item by the single-tap rule.
func (s *FloorService) ToggleItem(ctx context.Context, ref ItemRef) (order.Order, error) {
	return s.updateOrder(ctx, ref.OrderID, func(o *order.Order) error {
		return s.toggle(o, ref)
	})
}

// ToggleViewItem toggles the item at a position of the station-filtered view.
func (s *FloorService) ToggleViewItem(ctx context.Context, orderID uuid.UUID, station order.Station, filtered int, seen order.ItemStatus) (order.Order, error) {
	cur, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return order.Order{}, storeErr("get order", err)
	}
	view, ok := cur.View(station)
	if !ok {
		return order.Order{}, fmt.Errorf("%w: order has no %s items", order.ErrItemNotFound, station)
	}
	raw, err := view.RawIndex(filtered)
	if err != nil {
		return order.Order{}, err
	}
	return s.ToggleItem(ctx, ItemRef{OrderID: orderID, RawIndex: raw, Station: station, Seen: seen})
}

func (s *FloorService) toggle(o *order.Order, ref ItemRef) error {
	if ref.Seen == "" {
		return o.Toggle(ref.RawIndex, ref.Station, s.policy, s.now())
	}
	next, err := order.ToggleTarget(ref.Seen)
	if err != nil {
		return err
	}
	return o.Apply(order.Transition{
		Raw:   ref.RawIndex,
		From:  []order.ItemStatus{ref.Seen},
		To:    next,
		Actor: ref.Station,
	}, s.policy, s.now())
}

// CancelItem cancels one item.
func (s *FloorService) CancelItem(ctx context.Context, ref ItemRef) (order.Order, error) {
	return s.updateOrder(ctx, ref.OrderID, func(o *order.Order) error {
		if ref.Seen != "" {
			return o.Apply(order.Transition{
				Raw:   ref.RawIndex,
				From:  []order.ItemStatus{ref.Seen},
				To:    order.ItemCancelled,
				Actor: ref.Station,
			}, s.policy, s.now())
		}
		return o.CancelItem(ref.RawIndex, ref.Station, s.policy, s.now())
	})
}

// RecoverItem brings a cancelled item back to pending.
func (s *FloorService) RecoverItem(ctx context.Context, ref ItemRef) (order.Order, error) {
	return s.updateOrder(ctx, ref.OrderID, func(o *order.Order) error {
		return o.RecoverItem(ref.RawIndex, ref.Station, s.policy, s.now())
	})
}

// CancelOrder cancels every unfinished item of an unpaid order.
func (s *FloorService) CancelOrder(ctx context.Context, id uuid.UUID) (order.Order, error) {
	return s.updateOrder(ctx, id, func(o *order.Order) error {
		if o.IsCancelled() {
			return fmt.Errorf("%w: order already cancelled", ErrAlreadyHandled)
		}
		return o.Cancel(s.now())
	})
}

// ClearStation finishes a station's share of an order.
func (s *FloorService) ClearStation(ctx context.Context, id uuid.UUID, station order.Station) (order.Order, error) {
	return s.updateOrder(ctx, id, func(o *order.Order) error {
		if o.StationArchived(station) {
			return fmt.Errorf("%w: %s already cleared", ErrAlreadyHandled, station)
		}
		return o.ClearStation(station, s.policy, s.now())
	})
}

// SetDiscount replaces the discount of an unpaid order.
func (s *FloorService) SetDiscount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (order.Order, error) {
	return s.updateOrder(ctx, id, func(o *order.Order) error {
		return o.SetDiscount(amount, s.now())
	})
}

// BatchTransition toggles every referenced item independently. One stale or
// invalid reference never blocks the others; each gets its own result.
func (s *FloorService) BatchTransition(ctx context.Context, station order.Station, refs []ticket.Ref) []BatchResult {
	ids, byOrder := ticket.ByOrder(refs)
	var results []BatchResult
	for _, id := range ids {
		results = append(results, s.batchOrder(ctx, station, id, byOrder[id])...)
	}
	return results
}

// batchOrder applies one order's refs in a single versioned write.
func (s *FloorService) batchOrder(ctx context.Context, station order.Station, id uuid.UUID, refs []ticket.Ref) []BatchResult {
	var results []BatchResult
	applied := 0
	saved, err := s.mutateOrder(ctx, id, func(o *order.Order) error {
		results = make([]BatchResult, len(refs))
		applied = 0
		for i, r := range refs {
			results[i] = BatchResult{Ref: r, Status: BatchOK}
			err := s.toggle(o, ItemRef{OrderID: id, RawIndex: r.RawIndex, Station: station, Seen: r.Status})
			if err != nil {
				results[i] = batchFailure(r, err)
				continue
			}
			applied++
		}
		if applied == 0 {
			return errNothingApplied
		}
		return nil
	})
	switch {
	case errors.Is(err, errNothingApplied):
		return results
	case err != nil:
		out := make([]BatchResult, len(refs))
		for i, r := range refs {
			out[i] = batchFailure(r, err)
		}
		return out
	}
	s.publish(ctx, s.orderEvent(enum.EventOrderUpdated, saved))
	return results
}

var errNothingApplied = errors.New("nothing applied")

func batchFailure(r ticket.Ref, err error) BatchResult {
	res := BatchResult{Ref: r, Status: BatchRejected, Error: err.Error()}
	switch {
	case errors.Is(err, ErrAlreadyHandled), errors.Is(err, order.ErrStaleStatus):
		res.Status = BatchAlreadyHandled
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrConflict):
		res.Status = BatchUnavailable
	}
	return res
}

// updateOrder is mutateOrder plus logging and the change event.
func (s *FloorService) updateOrder(ctx context.Context, id uuid.UUID, fn func(o *order.Order) error) (order.Order, error) {
	saved, err := s.mutateOrder(ctx, id, fn)
	if err != nil {
		return order.Order{}, err
	}
	s.log.Debug("order updated",
		zap.String("order_id", saved.ID.String()),
		zap.String("status", string(saved.Status)),
		zap.Int64("version", saved.Version))
	s.publish(ctx, s.orderEvent(enum.EventOrderUpdated, saved))
	return saved, nil
}
