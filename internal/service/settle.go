package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/floorops/internal/billing"
	"github.com/kiwari-pos/floorops/internal/enum"
	"github.com/kiwari-pos/floorops/internal/events"
	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/kiwari-pos/floorops/internal/store"
	"github.com/kiwari-pos/floorops/internal/table"
	"go.uber.org/zap"
)

// Scope selects what a payment or clear acts on.
type Scope string

const (
	ScopeTable Scope = enum.ScopeTable
	ScopeGroup Scope = enum.ScopeGroup
)

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeTable, ScopeGroup:
		return Scope(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidScope, s)
}

// ClearResult reports what a clear did. A repeated clear reports AlreadyCleared
// and changes nothing.
type ClearResult struct {
	Scope          Scope       `json:"scope"`
	ID             string      `json:"id"`
	TableNumber    int         `json:"table_number"`
	Archived       []uuid.UUID `json:"archived"`
	AlreadyCleared bool        `json:"already_cleared"`
	TableReleased  bool        `json:"table_released"`
}

// StatementLine is one order of a statement with its bill.
type StatementLine struct {
	Order order.Order       `json:"order"`
	Bill  billing.Breakdown `json:"bill"`
}

// Statement is the bill of a table or group.
type Statement struct {
	Scope       Scope             `json:"scope"`
	ID          string            `json:"id"`
	TableNumber int               `json:"table_number"`
	GroupName   string            `json:"group_name,omitempty"`
	Lines       []StatementLine   `json:"lines"`
	Summary     billing.Summary   `json:"summary"`
	Vat         billing.VatConfig `json:"vat"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// RequestPayment flags an unpaid order as awaiting verification.
func (s *FloorService) RequestPayment(ctx context.Context, id uuid.UUID) (order.Order, error) {
	return s.updateOrder(ctx, id, func(o *order.Order) error {
		switch o.PaymentStatus {
		case order.PaymentPaid:
			return fmt.Errorf("%w: %w", ErrAlreadyHandled, order.ErrOrderPaid)
		case order.PaymentPendingVerification:
			return fmt.Errorf("%w: payment already requested", ErrAlreadyHandled)
		}
		if !o.Billable() {
			return fmt.Errorf("%w: order has nothing to pay", order.ErrInvalidTransition)
		}
		o.PaymentStatus = order.PaymentPendingVerification
		o.UpdatedAt = s.now()
		return nil
	})
}

// RejectPayment returns an order awaiting verification to unpaid.
func (s *FloorService) RejectPayment(ctx context.Context, id uuid.UUID) (order.Order, error) {
	return s.updateOrder(ctx, id, func(o *order.Order) error {
		switch o.PaymentStatus {
		case order.PaymentPaid:
			return ErrPaidRegression
		case order.PaymentUnpaid:
			return fmt.Errorf("%w: no payment pending", ErrAlreadyHandled)
		}
		o.PaymentStatus = order.PaymentUnpaid
		o.UpdatedAt = s.now()
		return nil
	})
}

// MarkPaid freezes and marks paid every unpaid order with billable lines in the
// scope using the VAT config current at this moment. Already paid orders are
// left untouched, so the call is safe to repeat.
func (s *FloorService) MarkPaid(ctx context.Context, scope Scope, id string) ([]order.Order, error) {
	sessions, err := s.sessions(ctx)
	if err != nil {
		return nil, err
	}
	tableNumber, orders, err := resolveScope(sessions, scope, id)
	if err != nil {
		return nil, err
	}
	vat, err := s.store.GetVat(ctx)
	if err != nil {
		return nil, storeErr("get vat", err)
	}

	var paid []order.Order
	for _, o := range orders {
		if o.IsPaid() || !o.Billable() {
			continue
		}
		saved, err := s.mutateOrder(ctx, o.ID, func(o *order.Order) error {
			if o.IsPaid() || !o.Billable() {
				return errSkip
			}
			return s.calc.Freeze(o, vat, s.now())
		})
		if errors.Is(err, errSkip) || errors.Is(err, ErrAlreadyHandled) {
			continue
		}
		if err != nil {
			return paid, err
		}
		paid = append(paid, saved)
		s.publish(ctx, s.orderEvent(enum.EventOrderUpdated, saved))
	}
	s.log.Info("orders marked paid",
		zap.String("scope", string(scope)), zap.String("id", id),
		zap.Int("table", tableNumber), zap.Int("count", len(paid)))
	return paid, nil
}

var errSkip = errors.New("skip")

// Clear settles a table or group: its orders are marked completed and paid,
// moved to history in one atomic step, and the group or table is released.
// Clearing something already cleared is a reported no-op.
func (s *FloorService) Clear(ctx context.Context, scope Scope, id string) (ClearResult, error) {
	res := ClearResult{Scope: scope, ID: id}
	if _, err := ParseScope(string(scope)); err != nil {
		return res, err
	}

	var archived []order.Order
	for attempt := 0; ; attempt++ {
		if attempt == maxConflictRetries {
			return res, ErrConflict
		}
		sessions, err := s.sessions(ctx)
		if err != nil {
			return res, err
		}
		tableNumber, orders, err := resolveScope(sessions, scope, id)
		if errors.Is(err, table.ErrGroupNotFound) {
			res.AlreadyCleared = true
			return res, nil
		}
		if err != nil {
			return res, err
		}
		res.TableNumber = tableNumber

		vat, err := s.store.GetVat(ctx)
		if err != nil {
			return res, storeErr("get vat", err)
		}
		archived, err = s.settle(orders, vat)
		if err != nil {
			return res, err
		}
		if len(archived) == 0 {
			break
		}
		err = s.store.ArchiveOrders(ctx, archived)
		if errors.Is(err, store.ErrVersionConflict) || errors.Is(err, store.ErrNotFound) {
			s.log.Debug("archive raced, retrying", zap.String("scope", string(scope)), zap.String("id", id))
			continue
		}
		if err != nil {
			return res, storeErr("archive orders", err)
		}
		break
	}

	released, touched, err := s.releaseBooking(ctx, scope, id, res.TableNumber)
	if err != nil {
		return res, err
	}
	res.TableReleased = released
	for _, o := range archived {
		res.Archived = append(res.Archived, o.ID)
	}
	if len(archived) == 0 && !touched {
		res.AlreadyCleared = true
		return res, nil
	}

	s.log.Info("cleared",
		zap.String("scope", string(scope)), zap.String("id", id),
		zap.Int("table", res.TableNumber), zap.Int("archived", len(archived)),
		zap.Bool("table_released", released))
	if len(archived) > 0 {
		e := events.New(enum.EventOrdersArchived, s.now(),
			events.TopicAdmin, events.TopicKitchen, events.TopicBar, events.TableTopic(res.TableNumber))
		e.OrderIDs = res.Archived
		e.TableNumber = res.TableNumber
		s.publish(ctx, e)
	}
	s.publish(ctx, s.tableEvent(res.TableNumber))
	return res, nil
}

// settle prepares the final history record of each order.
func (s *FloorService) settle(orders []order.Order, vat billing.VatConfig) ([]order.Order, error) {
	now := s.now()
	out := make([]order.Order, 0, len(orders))
	for _, o := range orders {
		o = o.Clone()
		if o.Billable() {
			if !o.IsPaid() {
				if err := s.calc.Freeze(&o, vat, now); err != nil {
					return nil, err
				}
			}
			for i := range o.Items {
				switch o.Items[i].Status {
				case order.ItemCancelled, order.ItemCompleted:
				default:
					o.Items[i].Status = order.ItemCompleted
				}
			}
			o.Status = order.StatusCompleted
			o.IsKitchenArchived, o.IsBarArchived = true, true
		}
		o.UpdatedAt = now
		out = append(out, o)
	}
	return out, nil
}

// releaseBooking removes the cleared group, or frees the whole table.
// touched reports whether the booking changed.
func (s *FloorService) releaseBooking(ctx context.Context, scope Scope, id string, tableNumber int) (released, touched bool, err error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		b, err := s.store.GetBooking(ctx, tableNumber)
		if errors.Is(err, store.ErrNotFound) {
			return false, false, nil
		}
		if err != nil {
			return false, false, storeErr("get booking", err)
		}
		now := s.now()
		switch scope {
		case ScopeGroup:
			if !b.HasGroup(id) {
				return false, false, nil
			}
			b.RemoveGroup(id, now)
		default:
			if !b.Occupied && len(b.Groups) == 0 {
				return false, false, nil
			}
			b.Release(now)
		}
		_, err = s.store.SaveBooking(ctx, b)
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return false, false, storeErr("save booking", err)
		}
		return !b.Occupied, true, nil
	}
	return false, false, ErrConflict
}

// Statement builds the live bill of a table or group.
func (s *FloorService) Statement(ctx context.Context, scope Scope, id string) (Statement, error) {
	if _, err := ParseScope(string(scope)); err != nil {
		return Statement{}, err
	}
	sessions, err := s.sessions(ctx)
	if err != nil {
		return Statement{}, err
	}
	tableNumber, orders, err := resolveScope(sessions, scope, id)
	if err != nil {
		return Statement{}, err
	}
	vat, err := s.store.GetVat(ctx)
	if err != nil {
		return Statement{}, storeErr("get vat", err)
	}
	st := Statement{
		Scope:       scope,
		ID:          id,
		TableNumber: tableNumber,
		Lines:       []StatementLine{},
		Summary:     s.calc.Summarize(orders, vat),
		Vat:         vat,
		GeneratedAt: s.now(),
	}
	if scope == ScopeGroup {
		_, g, _ := table.FindGroup(sessions, id)
		st.GroupName = g.Name
	}
	for _, o := range orders {
		st.Lines = append(st.Lines, StatementLine{Order: o, Bill: s.calc.Compute(o, vat)})
	}
	return st, nil
}

// resolveScope maps a table number or group id to its active orders.
func resolveScope(sessions []table.Session, scope Scope, id string) (int, []order.Order, error) {
	switch scope {
	case ScopeTable:
		n, err := strconv.Atoi(id)
		if err != nil || n <= 0 {
			return 0, nil, table.ErrInvalidTable
		}
		for _, sess := range sessions {
			if sess.TableNumber == n {
				return n, sess.ActiveOrders, nil
			}
		}
		return n, nil, nil
	case ScopeGroup:
		sess, g, err := table.FindGroup(sessions, id)
		if err != nil {
			return 0, nil, err
		}
		return sess.TableNumber, g.Orders, nil
	}
	return 0, nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
}
