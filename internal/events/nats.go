package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix namespaces floor subjects, e.g. "floor.kitchen".
const SubjectPrefix = "floor"

// NATS publishes each event once per topic on subject "floor.<topic>".
type NATS struct {
	conn *nats.Conn
}

func NewNATS(url string) (*NATS, error) {
	conn, err := nats.Connect(url, nats.Name("floorops"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATS{conn: conn}, nil
}

// Subject maps a topic to its NATS subject.
func Subject(topic string) string {
	if topic == TopicFloor {
		return SubjectPrefix
	}
	return SubjectPrefix + "." + topic
}

func (n *NATS) Publish(ctx context.Context, e Event) error {
	msg, err := json.Marshal(e)
	if err != nil {
		return err
	}
	for _, topic := range e.Topics {
		if err := n.conn.Publish(Subject(topic), msg); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
	}
	return nil
}

func (n *NATS) Close() error {
	n.conn.Close()
	return nil
}
