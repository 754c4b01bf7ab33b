package outbox

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/segmentio/kafka-go"
)

// ErrUnknownTopic is returned when a record targets a topic no event type is routed to.
var ErrUnknownTopic = errors.New("outbox: topic not in event catalog")

// EventPublisher writes framed check-in and gym events through one multi-topic writer.
// Records are keyed by partition key, so a user's check-ins land on one partition in order.
type EventPublisher struct {
	writer *kafka.Writer
	topics map[string]struct{}
}

// NewEventPublisher returns a publisher for the topics of the event catalog.
func NewEventPublisher(brokers []string) *EventPublisher {
	topics := make(map[string]struct{}, len(catalog))
	for _, topic := range Topics() {
		topics[topic] = struct{}{}
	}
	return &EventPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			Compression:            kafka.Snappy,
			AllowAutoTopicCreation: true,
		},
		topics: topics,
	}
}

// Publish writes records in a single call. Every record must name its Topic.
func (p *EventPublisher) Publish(ctx context.Context, records ...kafka.Message) error {
	for _, record := range records {
		if _, ok := p.topics[record.Topic]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownTopic, record.Topic)
		}
	}
	if len(records) == 0 {
		return nil
	}
	return p.writer.WriteMessages(ctx, records...)
}

// Close flushes and releases the writer.
func (p *EventPublisher) Close() error {
	return p.writer.Close()
}

// Topics lists the distinct topics events are routed to, sorted.
func Topics() []string {
	seen := make(map[string]struct{}, len(catalog))
	topics := make([]string, 0, len(catalog))
	for _, route := range catalog {
		if _, ok := seen[route.Topic]; ok {
			continue
		}
		seen[route.Topic] = struct{}{}
		topics = append(topics, route.Topic)
	}
	sort.Strings(topics)
	return topics
}
