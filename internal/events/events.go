// Package events is the changefeed boundary. The floor service publishes an
// Event after every committed command; transports decide how to deliver it.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Topics a subscriber can follow.
const (
	TopicFloor   = "floor"
	TopicKitchen = "kitchen"
	TopicBar     = "bar"
	TopicAdmin   = "admin"
)

// TableTopic is the per-table topic customers subscribe to.
func TableTopic(tableNumber int) string {
	return fmt.Sprintf("table.%d", tableNumber)
}

// Event describes a committed change. Payload is a small, already encoded JSON body.
type Event struct {
	ID          uuid.UUID   `json:"id"`
	Type        string      `json:"type"`
	Topics      []string    `json:"topics"`
	OrderIDs    []uuid.UUID `json:"order_ids,omitempty"`
	TableNumber int         `json:"table_number,omitempty"`
	ETag        string      `json:"etag,omitempty"`
	At          time.Time   `json:"at"`
	Payload     []byte      `json:"payload,omitempty"`
}

// New stamps an event with an id and time and addresses it to the floor
// topic plus any extra topics.
func New(typ string, at time.Time, topics ...string) Event {
	return Event{
		ID:     uuid.New(),
		Type:   typ,
		Topics: append([]string{TopicFloor}, topics...),
		At:     at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Fanout delivers to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }
