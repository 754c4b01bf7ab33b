// Package outbox persists and delivers domain events to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Store claims outbox rows and records their delivery result.
type Store interface {
	Claim(ctx context.Context, limit int) ([]Message, error)
	MarkPublished(ctx context.Context, ids []int64) error
	MoveToDLQ(ctx context.Context, msg Message, reason string) error
}

type publisher interface {
	Publish(context.Context, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Dispatcher drains the outbox table and delivers events to Kafka using Schema Registry ids.
type Dispatcher struct {
	store            Store
	publisher        publisher
	registry         schemaRegistrar
	logger           *zap.Logger
	pollInterval     time.Duration
	batchSize        int
	schemaIDs        sync.Map
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(store Store, publisher publisher, registry schemaRegistrar, logger *zap.Logger, pollInterval time.Duration, batchSize int) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		store:            store,
		publisher:        publisher,
		registry:         registry,
		logger:           logger,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		shutdownComplete: make(chan struct{}),
	}
}

// Start runs the polling loop until ctx is cancelled. Call it in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox dispatch failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start has returned.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	messages, err := d.store.Claim(ctx, d.batchSize)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	start := time.Now()
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	if err := d.deliver(ctx, messages); err != nil {
		d.logger.Warn("outbox delivery failed, routing batch to DLQ",
			zap.Int("messages", len(messages)),
			zap.Error(err),
		)
		failedCounter.Add(float64(len(messages)))
		for _, msg := range messages {
			if dlqErr := d.store.MoveToDLQ(ctx, msg, fmt.Sprintf("%s (topic=%s)", err, msg.Topic)); dlqErr != nil {
				return dlqErr
			}
			dlqCounter.WithLabelValues(msg.Topic).Inc()
		}
		return d.store.MarkPublished(ctx, eventIDs(messages))
	}

	deliveredCounter.Add(float64(len(messages)))
	return d.store.MarkPublished(ctx, eventIDs(messages))
}

// deliver frames every claimed row and publishes them together. Kafka batches per topic.
func (d *Dispatcher) deliver(ctx context.Context, messages []Message) error {
	records := make([]kafka.Message, 0, len(messages))
	for _, msg := range messages {
		route, ok := Lookup(msg.EventType)
		if !ok {
			return fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
		}

		schemaID, err := d.schemaID(ctx, msg.SchemaSubject, route.Schema)
		if err != nil {
			return err
		}

		records = append(records, kafka.Message{
			Topic: msg.Topic,
			Key:   []byte(msg.PartitionKey),
			Value: encodeWireFormat(schemaID, msg.Payload),
			Time:  time.Now().UTC(),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(msg.EventType)},
				{Key: "schema_subject", Value: []byte(msg.SchemaSubject)},
				{Key: "aggregate_id", Value: []byte(msg.AggregateID)},
			},
		})
	}
	return d.publisher.Publish(ctx, records...)
}

func (d *Dispatcher) schemaID(ctx context.Context, subject, schema string) (int, error) {
	if cached, ok := d.schemaIDs.Load(subject); ok {
		return cached.(int), nil
	}
	id, err := d.registry.EnsureSchema(ctx, subject, schema)
	if err != nil {
		return 0, err
	}
	d.schemaIDs.Store(subject, id)
	return id, nil
}

func eventIDs(messages []Message) []int64 {
	ids := make([]int64, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.EventID)
	}
	return ids
}

// encodeWireFormat applies Confluent framing: magic byte 0, big-endian schema id, payload.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
