// Package consumer reads check-in events back off Kafka and hands them to a Handler.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Reader is the subset of *kafka.Reader the processor drives.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded events.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is an outbox event with its wire framing removed.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	AggregateID   string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger used for dropped and failed events.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithClock sets the time source used to measure event lag.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

// Processor feeds records from one reader into a Handler.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *zap.Logger
	now     func() time.Time
}

// NewProcessor constructs a Processor.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes until ctx is cancelled or the reader reports cancellation.
// A record's offset is committed once its handler succeeds. Undecodable records are
// committed straight away; a failed handler leaves the offset for redelivery.
func (p *Processor) Run(ctx context.Context) error {
	for {
		record, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Warn("fetch failed", zap.Error(err))
			continue
		}
		p.process(ctx, record)
	}
}

func (p *Processor) process(ctx context.Context, record kafka.Message) {
	msg, err := decodeMessage(record)
	if err != nil {
		var decodeErr *decodeError
		reason := "unknown"
		if errors.As(err, &decodeErr) {
			reason = decodeErr.reason
		}
		recordDecodeFailure(record.Topic, reason)
		p.logger.Warn("dropping undecodable record",
			zap.String("topic", record.Topic),
			zap.Int("partition", record.Partition),
			zap.Int64("offset", record.Offset),
			zap.Error(err),
		)
		if err := p.reader.CommitMessages(ctx, record); err != nil {
			p.logger.Error("commit after decode failure", zap.Error(err))
		}
		return
	}

	log := p.logger.With(
		zap.String("event_type", msg.EventType),
		zap.String("aggregate_id", msg.AggregateID),
		zap.Int64("offset", msg.Offset),
	)
	if err := p.handler.Handle(ctx, msg); err != nil {
		recordOutcome(msg, outcomeHandlerError)
		log.Error("handler failed", zap.Error(err))
		return
	}
	if err := p.reader.CommitMessages(ctx, record); err != nil {
		recordOutcome(msg, outcomeCommitError)
		log.Error("commit failed", zap.Error(err))
		return
	}
	recordOutcome(msg, outcomeProcessed)
	observeLag(msg, p.now())
}

type decodeError struct {
	reason string
	detail string
}

func (e *decodeError) Error() string {
	return e.reason + ": " + e.detail
}

// decodeMessage strips the magic byte and schema id prepended by the outbox dispatcher.
func decodeMessage(record kafka.Message) (Message, error) {
	if len(record.Value) < 5 {
		return Message{}, &decodeError{reason: "short_frame", detail: fmt.Sprintf("%d bytes", len(record.Value))}
	}
	if record.Value[0] != 0 {
		return Message{}, &decodeError{reason: "magic_byte", detail: fmt.Sprintf("got %d", record.Value[0])}
	}

	headers := make(map[string]string, len(record.Headers))
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	eventType := headers["event_type"]
	if eventType == "" {
		return Message{}, &decodeError{reason: "missing_event_type", detail: "event_type header absent"}
	}

	return Message{
		Topic:         record.Topic,
		Partition:     record.Partition,
		Offset:        record.Offset,
		Timestamp:     record.Time,
		EventType:     eventType,
		AggregateID:   headers["aggregate_id"],
		SchemaSubject: headers["schema_subject"],
		SchemaID:      int(binary.BigEndian.Uint32(record.Value[1:5])),
		Payload:       json.RawMessage(append([]byte(nil), record.Value[5:]...)),
	}, nil
}
