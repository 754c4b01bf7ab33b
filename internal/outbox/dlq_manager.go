package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DLQEntry is an outbox_dlq row selected for replay.
type DLQEntry struct {
	ID            int64
	EventID       int64
	EventType     string
	Topic         string
	Payload       json.RawMessage
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}

// DLQStore abstracts the dead-letter table so DLQManager can be driven without Postgres.
type DLQStore interface {
	Due(ctx context.Context, limit int) ([]DLQEntry, error)
	Requeue(ctx context.Context, entry DLQEntry) error
	ScheduleRetry(ctx context.Context, entry DLQEntry, delay time.Duration, reason string) error
	Quarantine(ctx context.Context, entry DLQEntry, reason string) error
	Backlog(ctx context.Context) (int, error)
}

// DLQManager replays dead-lettered events into the outbox and quarantines entries that
// keep failing.
type DLQManager struct {
	store      DLQStore
	logger     *zap.Logger
	maxRetries int
	baseDelay  time.Duration
}

// NewDLQManager constructs a DLQManager. Non-positive settings fall back to 5 retries and a
// one minute base delay.
func NewDLQManager(store DLQStore, logger *zap.Logger, maxRetries int, baseDelay time.Duration) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DLQManager{store: store, logger: logger, maxRetries: maxRetries, baseDelay: baseDelay}
}

// RunOnce processes a batch of due entries and returns how many were re-queued.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	entries, err := m.store.Due(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, entry := range entries {
		ok, handleErr := m.handleEntry(ctx, entry)
		if handleErr != nil {
			err = errors.Join(err, handleErr)
			continue
		}
		if ok {
			requeued++
		}
	}

	if backlog, backlogErr := m.store.Backlog(ctx); backlogErr == nil {
		dlqBacklogGauge.Set(float64(backlog))
	}
	return requeued, err
}

func (m *DLQManager) handleEntry(ctx context.Context, entry DLQEntry) (bool, error) {
	if entry.RetryCount >= m.maxRetries {
		if err := m.store.Quarantine(ctx, entry, "retry limit reached"); err != nil {
			return false, err
		}
		recordDLQQuarantined(entry)
		m.logger.Warn("dlq entry quarantined",
			zap.Int64("dlq_id", entry.ID),
			zap.String("event_type", entry.EventType),
			zap.String("aggregate_id", entry.AggregateID),
			zap.Int("retries", entry.RetryCount),
		)
		return false, nil
	}

	if requeueErr := m.store.Requeue(ctx, entry); requeueErr != nil {
		delay := m.backoffDelay(entry.RetryCount + 1)
		if err := m.store.ScheduleRetry(ctx, entry, delay, requeueErr.Error()); err != nil {
			return false, err
		}
		recordDLQRetry(entry)
		m.logger.Info("dlq replay deferred",
			zap.Int64("dlq_id", entry.ID),
			zap.Duration("delay", delay),
			zap.Error(requeueErr),
		)
		return false, nil
	}

	recordDLQRequeued(entry)
	return true, nil
}

// backoffDelay doubles baseDelay per attempt, capped at one hour.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 31 {
		return time.Hour
	}
	delay := time.Duration(1<<uint(attempt-1)) * m.baseDelay
	if delay > time.Hour || delay <= 0 {
		delay = time.Hour
	}
	return delay
}

// PostgresDLQStore implements DLQStore on the outbox_dlq table.
type PostgresDLQStore struct {
	pool *pgxpool.Pool
}

// NewPostgresDLQStore constructs a PostgresDLQStore.
func NewPostgresDLQStore(pool *pgxpool.Pool) *PostgresDLQStore {
	return &PostgresDLQStore{pool: pool}
}

// Due returns unquarantined entries whose retry time has passed, oldest first.
func (s *PostgresDLQStore) Due(ctx context.Context, limit int) ([]DLQEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT dlq_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
           FROM outbox_dlq
          WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
          ORDER BY created_at
          LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DLQEntry, error) {
		var e DLQEntry
		err := row.Scan(&e.ID, &e.EventID, &e.EventType, &e.Topic, &e.Payload, &e.Reason,
			&e.AggregateType, &e.AggregateID, &e.SchemaSubject, &e.PartitionKey, &e.RetryCount)
		return e, err
	})
}

// Requeue moves the entry back into the outbox. The replayed row carries no dedupe key.
func (s *PostgresDLQStore) Requeue(ctx context.Context, entry DLQEntry) error {
	if entry.SchemaSubject == "" {
		return fmt.Errorf("missing schema_subject for dlq entry %d", entry.ID)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		entry.AggregateType, entry.AggregateID, entry.EventType, entry.Topic, entry.SchemaSubject, entry.PartitionKey, entry.Payload,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ScheduleRetry bumps the retry counter and pushes next_retry_at out by delay.
func (s *PostgresDLQStore) ScheduleRetry(ctx context.Context, entry DLQEntry, delay time.Duration, reason string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox_dlq
            SET retry_count = retry_count + 1,
                last_attempt_at = NOW(),
                next_retry_at = NOW() + $1::interval,
                reason = $2
          WHERE dlq_id = $3`,
		delay, reason, entry.ID)
	return err
}

// Quarantine parks the entry for manual inspection.
func (s *PostgresDLQStore) Quarantine(ctx context.Context, entry DLQEntry, reason string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
		reason, entry.ID)
	return err
}

// Backlog counts entries still eligible for replay.
func (s *PostgresDLQStore) Backlog(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&count)
	return count, err
}
