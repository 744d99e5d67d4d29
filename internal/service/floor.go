package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/floorops/internal/billing"
	"github.com/kiwari-pos/floorops/internal/events"
	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/kiwari-pos/floorops/internal/store"
	"go.uber.org/zap"
)

const maxConflictRetries = 3

// Errors returned by the floor service.
var (
	// ErrAlreadyHandled reports that the referenced order, item state or group
	// no longer exists because another actor got there first.
	ErrAlreadyHandled = errors.New("already handled")
	// ErrConflict is returned when a write kept losing version races.
	ErrConflict = errors.New("concurrent update, please retry")
	// ErrUnavailable wraps persistence failures.
	ErrUnavailable = errors.New("store unavailable")

	ErrPaidRegression = errors.New("paid order cannot go back to unpaid")
	ErrInvalidScope   = errors.New("scope must be table or group")
	ErrInvalidLimit   = errors.New("limit must be >= 0")
)

// Options configures a FloorService. Zero values get sensible defaults.
type Options struct {
	Publisher  events.Publisher
	Calculator billing.Calculator
	Policy     order.CancelPolicy
	Logger     *zap.Logger
	Now        func() time.Time
}

// FloorService runs every floor command: ordering, station work, tables and billing.
// All writes go through version-checked store updates.
type FloorService struct {
	store  store.Store
	pub    events.Publisher
	calc   billing.Calculator
	policy order.CancelPolicy
	log    *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastGood *Snapshot
}

// NewFloorService creates a new FloorService.
func NewFloorService(st store.Store, opts Options) *FloorService {
	s := &FloorService{
		store:  st,
		pub:    opts.Publisher,
		calc:   opts.Calculator,
		policy: opts.Policy,
		log:    opts.Logger,
		now:    opts.Now,
	}
	if s.pub == nil {
		s.pub = events.Nop{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Policy returns the cancellation policy in effect.
func (s *FloorService) Policy() order.CancelPolicy {
	return s.policy
}

// storeErr maps store sentinels onto service errors.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrAlreadyHandled)
	case errors.Is(err, store.ErrVersionConflict):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
}

// mutateOrder re-reads the order, applies fn to a copy and writes it back,
// retrying up to maxConflictRetries times when another writer wins the race.
// fn runs against the freshest state on every attempt.
func (s *FloorService) mutateOrder(ctx context.Context, id uuid.UUID, fn func(o *order.Order) error) (order.Order, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		cur, err := s.store.GetOrder(ctx, id)
		if err != nil {
			return order.Order{}, storeErr("get order", err)
		}
		next := cur.Clone()
		if err := fn(&next); err != nil {
			if errors.Is(err, order.ErrStaleStatus) {
				return order.Order{}, fmt.Errorf("%w: %w", ErrAlreadyHandled, err)
			}
			return order.Order{}, err
		}
		if cur.IsPaid() && !next.IsPaid() {
			return order.Order{}, ErrPaidRegression
		}
		saved, err := s.store.UpdateOrder(ctx, next)
		if errors.Is(err, store.ErrVersionConflict) {
			s.log.Debug("order version conflict, retrying",
				zap.String("order_id", id.String()), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return order.Order{}, storeErr("update order", err)
		}
		return saved, nil
	}
	return order.Order{}, ErrConflict
}

// publish emits e after a committed write. Delivery failures are logged, never returned.
func (s *FloorService) publish(ctx context.Context, e events.Event) {
	if err := s.pub.Publish(ctx, e); err != nil {
		s.log.Warn("publish event", zap.String("type", e.Type), zap.Error(err))
	}
}

// orderTopics addresses an order change to the stations it touches, admin and its table.
func orderTopics(o order.Order) []string {
	topics := []string{events.TopicAdmin, events.TableTopic(o.TableNumber)}
	if o.HasStation(order.Kitchen) {
		topics = append(topics, events.TopicKitchen)
	}
	if o.HasStation(order.Bar) {
		topics = append(topics, events.TopicBar)
	}
	return topics
}

func (s *FloorService) orderEvent(typ string, o order.Order) events.Event {
	e := events.New(typ, s.now(), orderTopics(o)...)
	e.OrderIDs = []uuid.UUID{o.ID}
	e.TableNumber = o.TableNumber
	return e
}

func isConflict(err error) bool {
	return errors.Is(err, store.ErrVersionConflict)
}
