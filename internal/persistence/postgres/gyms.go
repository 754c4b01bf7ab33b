// Package postgres provides Postgres-backed repositories for gyms and check-ins.
package postgres

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/gymcheckin/internal/domain"
	"example.com/gymcheckin/internal/events"
	"example.com/gymcheckin/internal/geo"
	"example.com/gymcheckin/internal/outbox"
)

const gymColumns = `gym_id::text, title, description, phone, latitude, longitude`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// GymRepository persists gyms.
type GymRepository struct {
	pool *pgxpool.Pool
}

// NewGymRepository constructs a GymRepository.
func NewGymRepository(pool *pgxpool.Pool) *GymRepository {
	return &GymRepository{pool: pool}
}

// Create inserts the gym and its gym.created outbox event in one transaction.
func (r *GymRepository) Create(ctx context.Context, gym domain.Gym) (*domain.Gym, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	coordinate := geo.Coordinate{Latitude: gym.Latitude, Longitude: gym.Longitude}
	_, err = tx.Exec(ctx,
		`INSERT INTO gyms (gym_id, title, description, phone, latitude, longitude, geohash)
         VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		gym.ID, gym.Title, gym.Description, gym.Phone, gym.Latitude, gym.Longitude, geo.Encode(coordinate),
	)
	if err != nil {
		return nil, err
	}

	if err := outbox.Enqueue(ctx, tx, "gym", gym.ID, events.TypeGymCreated, gym.ID, events.GymCreated{
		GymID:     gym.ID,
		Title:     gym.Title,
		Latitude:  gym.Latitude,
		Longitude: gym.Longitude,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &gym, nil
}

// FindByID returns (nil, nil) when the gym does not exist, including when id is not a UUID.
func (r *GymRepository) FindByID(ctx context.Context, id string) (*domain.Gym, error) {
	gymID, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}
	row := r.pool.QueryRow(ctx, `SELECT `+gymColumns+` FROM gyms WHERE gym_id = $1`, gymID.String())
	gym, err := scanGym(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &gym, nil
}

// SearchByTitle returns gyms whose title contains query, case-insensitively.
func (r *GymRepository) SearchByTitle(ctx context.Context, query string, page int) ([]domain.Gym, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+gymColumns+` FROM gyms
         WHERE title ILIKE '%' || $1 || '%'
         ORDER BY created_at, gym_id
         LIMIT $2 OFFSET $3`,
		likeEscaper.Replace(query), domain.PageSize, offset(page),
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Gym, error) {
		return scanGym(row)
	})
}

// FindNearby prefilters candidates by geohash cell and keeps those within maxDistanceKm,
// nearest first. Around the poles there is no usable cell block and every gym is scanned.
func (r *GymRepository) FindNearby(ctx context.Context, origin geo.Coordinate, maxDistanceKm float64, page int) ([]domain.Gym, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if area := geo.SearchPrefixes(origin, maxDistanceKm); len(area.Prefixes) > 0 {
		rows, err = r.pool.Query(ctx,
			`SELECT `+gymColumns+` FROM gyms WHERE left(geohash, $1) = ANY($2)`,
			area.Precision, area.Prefixes,
		)
	} else {
		rows, err = r.pool.Query(ctx, `SELECT `+gymColumns+` FROM gyms`)
	}
	if err != nil {
		return nil, err
	}
	candidates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Gym, error) {
		return scanGym(row)
	})
	if err != nil {
		return nil, err
	}

	type ranked struct {
		gym      domain.Gym
		distance float64
	}
	within := make([]ranked, 0, len(candidates))
	for _, gym := range candidates {
		d := geo.Distance(origin, geo.Coordinate{Latitude: gym.Latitude, Longitude: gym.Longitude})
		if d <= maxDistanceKm {
			within = append(within, ranked{gym: gym, distance: d})
		}
	}
	sort.SliceStable(within, func(i, j int) bool { return within[i].distance < within[j].distance })

	start := offset(page)
	if start >= len(within) {
		return []domain.Gym{}, nil
	}
	end := min(start+domain.PageSize, len(within))

	out := make([]domain.Gym, 0, end-start)
	for _, item := range within[start:end] {
		out = append(out, item.gym)
	}
	return out, nil
}

func scanGym(row pgx.Row) (domain.Gym, error) {
	var gym domain.Gym
	err := row.Scan(&gym.ID, &gym.Title, &gym.Description, &gym.Phone, &gym.Latitude, &gym.Longitude)
	return gym, err
}

func offset(page int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * domain.PageSize
}
