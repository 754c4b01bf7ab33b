//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/gymcheckin/internal/db/migrate"
	"example.com/gymcheckin/internal/domain"
	"example.com/gymcheckin/internal/geo"
)

func TestGymRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewGymRepository(pool)

	phone := "11 99999-0000"
	gym := domain.Gym{ID: uuid.NewString(), Title: "Ironberg 100%", Phone: &phone, Latitude: -23.5617, Longitude: -46.6560}
	_, err := repo.Create(ctx, gym)
	require.NoError(t, err)

	stored, err := repo.FindByID(ctx, gym.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, gym.Title, stored.Title)
	require.Nil(t, stored.Description)
	require.Equal(t, phone, *stored.Phone)

	missing, err := repo.FindByID(ctx, uuid.NewString())
	require.NoError(t, err)
	require.Nil(t, missing)

	for _, id := range []string{"gym-1", "", "'; DROP TABLE gyms; --"} {
		notUUID, err := repo.FindByID(ctx, id)
		require.NoError(t, err, "id %q", id)
		require.Nil(t, notUUID, "id %q", id)
	}

	found, err := repo.SearchByTitle(ctx, "100%", 1)
	require.NoError(t, err)
	require.Len(t, found, 1)

	none, err := repo.SearchByTitle(ctx, "_", 1)
	require.NoError(t, err)
	require.Empty(t, none, "underscore must match literally")

	nearby, err := repo.FindNearby(ctx, geo.Coordinate{Latitude: -23.5620, Longitude: -46.6555}, domain.MaxNearbyDistanceKm, 1)
	require.NoError(t, err)
	require.Len(t, nearby, 1)

	var queued int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE aggregate_id = $1`, gym.ID).Scan(&queued))
	require.Equal(t, 1, queued)

	arctic := domain.Gym{ID: uuid.NewString(), Title: "Polar Station Gym", Latitude: 84.0, Longitude: 15.47}
	_, err = repo.Create(ctx, arctic)
	require.NoError(t, err)

	// Two precision-4 cells east of the gym yet under 9km away.
	eastOfTown := geo.Coordinate{Latitude: 84.0, Longitude: 16.20}
	require.Less(t, geo.Distance(eastOfTown, geo.Coordinate{Latitude: arctic.Latitude, Longitude: arctic.Longitude}), domain.MaxNearbyDistanceKm)
	nearby, err = repo.FindNearby(ctx, eastOfTown, domain.MaxNearbyDistanceKm, 1)
	require.NoError(t, err)
	require.Len(t, nearby, 1)
	require.Equal(t, arctic.ID, nearby[0].ID)
}

func TestCheckInRepositoryEnforcesOnePerDay(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	gyms := NewGymRepository(pool)
	repo := NewCheckInRepository(pool)

	gymID := uuid.NewString()
	_, err := gyms.Create(ctx, domain.Gym{ID: gymID, Title: "Ironberg", Latitude: -23.5617, Longitude: -46.6560})
	require.NoError(t, err)

	morning := time.Date(2024, time.September, 13, 8, 0, 0, 0, time.UTC)
	_, err = repo.Create(ctx, domain.CheckIn{ID: uuid.NewString(), UserID: "user-1", GymID: gymID, CreatedAt: morning})
	require.NoError(t, err)

	_, err = repo.Create(ctx, domain.CheckIn{ID: uuid.NewString(), UserID: "user-1", GymID: gymID, CreatedAt: morning.Add(10 * time.Hour)})
	require.True(t, errors.Is(err, domain.ErrMaxCheckInsPerDayExceeded))

	_, err = repo.Create(ctx, domain.CheckIn{ID: uuid.NewString(), UserID: "user-1", GymID: gymID, CreatedAt: morning.Add(24 * time.Hour)})
	require.NoError(t, err)

	sameDay, err := repo.FindByUserIDOnDate(ctx, "user-1", morning.Add(3*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, sameDay)
	require.True(t, sameDay.CreatedAt.Equal(morning))

	otherUser, err := repo.FindByUserIDOnDate(ctx, "user-2", morning)
	require.NoError(t, err)
	require.Nil(t, otherUser)

	count, err := repo.CountByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	page, next, err := repo.ListByUser(ctx, "user-1", nil, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.NotNil(t, next)
	require.True(t, page[0].CreatedAt.After(morning))

	rest, next, err := repo.ListByUser(ctx, "user-1", next, 1)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.True(t, rest[0].CreatedAt.Equal(morning))
	require.NotNil(t, next)

	empty, next, err := repo.ListByUser(ctx, "user-1", next, 1)
	require.NoError(t, err)
	require.Empty(t, empty)
	require.Nil(t, next)
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("gymcheckin"),
		postgrescontainer.WithUsername("gympass"),
		postgrescontainer.WithPassword("gympass"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))
	require.NoError(t, migrate.Run(connStr, "up"))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
