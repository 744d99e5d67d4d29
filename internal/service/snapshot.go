package service

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/kiwari-pos/floorops/internal/billing"
	"github.com/kiwari-pos/floorops/internal/enum"
	"github.com/kiwari-pos/floorops/internal/events"
	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/kiwari-pos/floorops/internal/table"
	"github.com/kiwari-pos/floorops/internal/ticket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Snapshot is the full floor state shared by every surface.
type Snapshot struct {
	Orders  []order.Order                `json:"orders"`
	Bills   map[string]billing.Breakdown `json:"bills"`
	Tables  []table.Session              `json:"tables"`
	Vat     billing.VatConfig            `json:"vat"`
	ETag    string                       `json:"etag"`
	TakenAt time.Time                    `json:"taken_at"`
	// Delivered lists the orders whose every station is done or cancelled.
	Delivered []string `json:"delivered"`
	// Stale is set when the store could not be read and the last good
	// snapshot is served instead.
	Stale bool `json:"stale,omitempty"`
}

// Snapshot reads the whole floor. When the store fails and an earlier
// snapshot exists, that one is returned marked Stale together with the error.
func (s *FloorService) Snapshot(ctx context.Context) (Snapshot, error) {
	snap, err := s.readSnapshot(ctx)
	if err != nil {
		s.mu.Lock()
		last := s.lastGood
		s.mu.Unlock()
		if last == nil {
			return Snapshot{}, err
		}
		s.log.Warn("serving last good snapshot", zap.Error(err))
		stale := *last
		stale.Stale = true
		return stale, err
	}
	s.mu.Lock()
	s.lastGood = &snap
	s.mu.Unlock()
	return snap, nil
}

func (s *FloorService) readSnapshot(ctx context.Context) (Snapshot, error) {
	bookings, err := s.store.ListBookings(ctx)
	if err != nil {
		return Snapshot{}, storeErr("list bookings", err)
	}
	orders, err := s.store.ListOrders(ctx)
	if err != nil {
		return Snapshot{}, storeErr("list orders", err)
	}
	vat, err := s.store.GetVat(ctx)
	if err != nil {
		return Snapshot{}, storeErr("get vat", err)
	}
	snap := Snapshot{
		Orders:  orders,
		Bills:   make(map[string]billing.Breakdown, len(orders)),
		Tables:  table.BuildAll(bookings, orders, s.totals(vat)),
		Vat:     vat,
		ETag:    etag(orders, bookings, vat),
		TakenAt: s.now(),
	}
	snap.Delivered = []string{}
	for _, o := range orders {
		snap.Bills[o.ID.String()] = s.calc.Compute(o, vat)
		if o.FullyDelivered() {
			snap.Delivered = append(snap.Delivered, o.ID.String())
		}
	}
	return snap, nil
}

// ETag fingerprints the current floor state.
func (s *FloorService) ETag(ctx context.Context) (string, error) {
	snap, err := s.readSnapshot(ctx)
	if err != nil {
		return "", err
	}
	return snap.ETag, nil
}

// etag hashes every record identity and version. Any committed write bumps a
// version, so equal tags mean nothing changed.
func etag(orders []order.Order, bookings []table.Booking, vat billing.VatConfig) string {
	h := fnv.New64a()
	var buf [8]byte
	putInt := func(v int64) {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	for _, o := range orders {
		h.Write(o.ID[:])
		putInt(o.Version)
	}
	h.Write([]byte{0})
	for _, b := range bookings {
		putInt(int64(b.TableNumber))
		putInt(b.Version)
	}
	h.Write([]byte{0})
	putInt(vat.Version)
	return fmt.Sprintf("%016x", h.Sum64())
}

// StationBoard lists the station-filtered views of active orders.
func (s *FloorService) StationBoard(ctx context.Context, station order.Station) ([]order.StationView, error) {
	orders, err := s.store.ListOrders(ctx)
	if err != nil {
		return nil, storeErr("list orders", err)
	}
	return order.Board(orders, station), nil
}

// Tickets aggregates batchable kitchen work across active orders.
func (s *FloorService) Tickets(ctx context.Context) ([]ticket.Group, error) {
	orders, err := s.store.ListOrders(ctx)
	if err != nil {
		return nil, storeErr("list orders", err)
	}
	return ticket.Aggregate(orders), nil
}

// History returns archived orders, newest first.
func (s *FloorService) History(ctx context.Context, limit int) ([]order.Order, error) {
	if limit < 0 {
		return nil, ErrInvalidLimit
	}
	out, err := s.store.ListHistory(ctx, limit)
	if err != nil {
		return nil, storeErr("list history", err)
	}
	return out, nil
}

// Vat returns the current VAT config.
func (s *FloorService) Vat(ctx context.Context) (billing.VatConfig, error) {
	v, err := s.store.GetVat(ctx)
	if err != nil {
		return billing.VatConfig{}, storeErr("get vat", err)
	}
	return v, nil
}

// SetVat replaces the VAT config. Paid orders keep their frozen tax.
func (s *FloorService) SetVat(ctx context.Context, enabled bool, rate decimal.Decimal) (billing.VatConfig, error) {
	next := billing.VatConfig{Enabled: enabled, Rate: rate}
	if err := next.Validate(); err != nil {
		return billing.VatConfig{}, err
	}
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		cur, err := s.store.GetVat(ctx)
		if err != nil {
			return billing.VatConfig{}, storeErr("get vat", err)
		}
		next.Version = cur.Version
		next.UpdatedAt = s.now()
		saved, err := s.store.SaveVat(ctx, next)
		if err == nil {
			s.log.Info("vat updated", zap.Bool("enabled", enabled), zap.String("rate", rate.String()))
			e := events.New(enum.EventVatUpdated, s.now(), events.TopicAdmin)
			s.publish(ctx, e)
			return saved, nil
		}
		if !isConflict(err) {
			return billing.VatConfig{}, storeErr("save vat", err)
		}
	}
	return billing.VatConfig{}, ErrConflict
}
