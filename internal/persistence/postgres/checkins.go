package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/gymcheckin/internal/domain"
	"example.com/gymcheckin/internal/events"
	"example.com/gymcheckin/internal/observability"
	"example.com/gymcheckin/internal/outbox"
)

const (
	checkInColumns = `check_in_id::text, user_id, gym_id::text, created_at, validated_at`

	uniqueViolation   = "23505"
	userDayConstraint = "check_ins_user_day_key"
)

// CheckInRepository persists check-ins. The user/day unique constraint is the authoritative
// guard against concurrent same-day check-ins.
type CheckInRepository struct {
	pool *pgxpool.Pool
}

// NewCheckInRepository constructs a CheckInRepository.
func NewCheckInRepository(pool *pgxpool.Pool) *CheckInRepository {
	return &CheckInRepository{pool: pool}
}

// Create inserts the check-in and its checkin.created outbox event in one transaction.
// A user/day constraint violation is reported as domain.ErrMaxCheckInsPerDayExceeded.
func (r *CheckInRepository) Create(ctx context.Context, checkIn domain.CheckIn) (*domain.CheckIn, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	day, _ := domain.DayBounds(checkIn.CreatedAt)
	_, err = tx.Exec(ctx,
		`INSERT INTO check_ins (check_in_id, user_id, gym_id, created_at, checkin_date, validated_at)
         VALUES ($1,$2,$3,$4,$5,$6)`,
		checkIn.ID,
		checkIn.UserID,
		checkIn.GymID,
		checkIn.CreatedAt,
		pgtype.Date{Time: time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC), Valid: true},
		checkIn.ValidatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == userDayConstraint {
			return nil, domain.ErrMaxCheckInsPerDayExceeded
		}
		return nil, err
	}

	if err := outbox.Enqueue(ctx, tx, "check_in", checkIn.ID, events.TypeCheckInCreated, checkIn.UserID, events.CheckInCreated{
		CheckInID: checkIn.ID,
		UserID:    checkIn.UserID,
		GymID:     checkIn.GymID,
		CreatedAt: checkIn.CreatedAt,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	observability.RecordCheckInPersisted(checkIn.CreatedAt)
	return &checkIn, nil
}

// FindByUserIDOnDate returns the user's check-in on date's calendar day, or (nil, nil).
func (r *CheckInRepository) FindByUserIDOnDate(ctx context.Context, userID string, date time.Time) (*domain.CheckIn, error) {
	start, end := domain.DayBounds(date)
	row := r.pool.QueryRow(ctx,
		`SELECT `+checkInColumns+` FROM check_ins
         WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
         LIMIT 1`,
		userID, start, end,
	)
	checkIn, err := scanCheckIn(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &checkIn, nil
}

// ListByUser returns the user's check-ins ordered newest first.
func (r *CheckInRepository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.CheckIn, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := `SELECT ` + checkInColumns + ` FROM check_ins WHERE user_id = $1`
	if cursor != nil {
		query += ` AND (created_at, check_in_id::text) < ($3, $4)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	query += ` ORDER BY created_at DESC, check_in_id::text DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CheckIn, error) {
		return scanCheckIn(row)
	})
	if err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, next, nil
}

// CountByUser returns the number of check-ins stored for the user.
func (r *CheckInRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM check_ins WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}

func scanCheckIn(row pgx.Row) (domain.CheckIn, error) {
	var checkIn domain.CheckIn
	err := row.Scan(&checkIn.ID, &checkIn.UserID, &checkIn.GymID, &checkIn.CreatedAt, &checkIn.ValidatedAt)
	return checkIn, err
}
