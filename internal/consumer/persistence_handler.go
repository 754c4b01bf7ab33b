package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"example.com/gymcheckin/internal/events"
)

// PersistenceHandler writes consumed events into the checkin_event_log table.
// Redelivered records are ignored by the (topic, partition, record_offset) key.
type PersistenceHandler struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPersistenceHandler constructs a handler backed by the provided pool.
func NewPersistenceHandler(pool *pgxpool.Pool, logger *zap.Logger) *PersistenceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersistenceHandler{pool: pool, logger: logger}
}

// Handle validates the payload for known event types and appends it to the log.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	if err := validatePayload(msg); err != nil {
		return err
	}

	tag, err := h.pool.Exec(ctx,
		`INSERT INTO checkin_event_log (event_type, aggregate_id, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		msg.EventType,
		msg.AggregateID,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		msg.Timestamp,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		h.logger.Debug("event already recorded",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
		)
	}
	return nil
}

func validatePayload(msg Message) error {
	switch msg.EventType {
	case events.TypeCheckInCreated:
		var payload events.CheckInCreated
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		if payload.CheckInID == "" || payload.UserID == "" || payload.GymID == "" {
			return fmt.Errorf("%s payload missing identifiers", msg.EventType)
		}
	case events.TypeGymCreated:
		var payload events.GymCreated
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		if payload.GymID == "" {
			return fmt.Errorf("%s payload missing gym_id", msg.EventType)
		}
	}
	return nil
}
