// Package domain defines the business logic for the gym check-in service.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/gymcheckin/internal/geo"
	"example.com/gymcheckin/internal/observability"
)

const (
	// MaxDistanceKm is the geofence radius a user must be within to check in.
	MaxDistanceKm = 0.1
	// MaxNearbyDistanceKm bounds the nearby gyms search.
	MaxNearbyDistanceKm = 10.0
	// PageSize is the number of gyms returned per search page.
	PageSize = 20
)

var (
	// ErrResourceNotFound is returned when the referenced gym does not exist.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrMaxDistanceExceeded is returned when the user is outside the gym geofence.
	ErrMaxDistanceExceeded = errors.New("max distance exceeded")
	// ErrMaxCheckInsPerDayExceeded is returned when the user already checked in today.
	ErrMaxCheckInsPerDayExceeded = errors.New("max check-ins per day exceeded")
	// ErrInvalidGym is returned when a gym cannot be created from the supplied input.
	ErrInvalidGym = errors.New("invalid gym")
)

// GymLookup is the read contract the check-in engine needs from gym storage.
// FindByID returns (nil, nil) when the gym does not exist.
type GymLookup interface {
	FindByID(ctx context.Context, id string) (*Gym, error)
}

// CheckInLedger is the contract the check-in engine needs from check-in storage.
// FindByUserIDOnDate returns (nil, nil) when the user has no check-in on date's calendar day.
type CheckInLedger interface {
	Create(ctx context.Context, checkIn CheckIn) (*CheckIn, error)
	FindByUserIDOnDate(ctx context.Context, userID string, date time.Time) (*CheckIn, error)
}

// GymRepository captures gym persistence operations.
type GymRepository interface {
	GymLookup
	Create(ctx context.Context, gym Gym) (*Gym, error)
	SearchByTitle(ctx context.Context, query string, page int) ([]Gym, error)
	FindNearby(ctx context.Context, origin geo.Coordinate, maxDistanceKm float64, page int) ([]Gym, error)
}

// CheckInRepository captures check-in persistence operations.
type CheckInRepository interface {
	CheckInLedger
	ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]CheckIn, *Cursor, error)
	CountByUser(ctx context.Context, userID string) (int, error)
}

// Clock returns the current time.
type Clock func() time.Time

// Option configures optional Service behaviour.
type Option func(*Service)

// WithClock overrides the time source used for check-in timestamps and day boundaries.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		s.now = clock
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service orchestrates gym and check-in workflows.
type Service struct {
	gyms     GymRepository
	checkIns CheckInRepository
	now      Clock
	logger   *zap.Logger
}

// NewService constructs a Service.
func NewService(gyms GymRepository, checkIns CheckInRepository, opts ...Option) *Service {
	s := &Service{
		gyms:     gyms,
		checkIns: checkIns,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckInInput captures a check-in attempt.
type CheckInInput struct {
	UserID        string
	GymID         string
	UserLatitude  float64
	UserLongitude float64
}

// CheckIn validates the attempt against the gym geofence and the one-per-day rule, then
// persists a new check-in. Rules are evaluated in order and the first violation is returned.
func (s *Service) CheckIn(ctx context.Context, input CheckInInput) (*CheckIn, error) {
	gym, err := s.gyms.FindByID(ctx, input.GymID)
	if err != nil {
		observability.RecordCheckInOutcome(observability.OutcomeError)
		return nil, err
	}
	if gym == nil {
		s.reject(input, "gym_not_found")
		observability.RecordCheckInOutcome(observability.OutcomeGymNotFound)
		return nil, ErrResourceNotFound
	}

	distance := geo.Distance(
		geo.Coordinate{Latitude: input.UserLatitude, Longitude: input.UserLongitude},
		geo.Coordinate{Latitude: gym.Latitude, Longitude: gym.Longitude},
	)
	observability.RecordCheckInDistance(distance)
	if distance > MaxDistanceKm {
		s.reject(input, "too_far", zap.Float64("distance_km", distance))
		observability.RecordCheckInOutcome(observability.OutcomeTooFar)
		return nil, ErrMaxDistanceExceeded
	}

	now := s.now()
	existing, err := s.checkIns.FindByUserIDOnDate(ctx, input.UserID, now)
	if err != nil {
		observability.RecordCheckInOutcome(observability.OutcomeError)
		return nil, err
	}
	if existing != nil {
		s.reject(input, "daily_limit", zap.String("existing_check_in_id", existing.ID))
		observability.RecordCheckInOutcome(observability.OutcomeDailyLimit)
		return nil, ErrMaxCheckInsPerDayExceeded
	}

	created, err := s.checkIns.Create(ctx, CheckIn{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		GymID:     gym.ID,
		CreatedAt: now,
	})
	if err != nil {
		if errors.Is(err, ErrMaxCheckInsPerDayExceeded) {
			s.reject(input, "daily_limit_constraint")
			observability.RecordCheckInOutcome(observability.OutcomeDailyLimit)
		} else {
			observability.RecordCheckInOutcome(observability.OutcomeError)
		}
		return nil, err
	}

	observability.RecordCheckInOutcome(observability.OutcomeCreated)
	s.logger.Info("check-in created",
		zap.String("check_in_id", created.ID),
		zap.String("user_id", created.UserID),
		zap.String("gym_id", created.GymID),
	)
	return created, nil
}

func (s *Service) reject(input CheckInInput, reason string, fields ...zap.Field) {
	fields = append([]zap.Field{
		zap.String("user_id", input.UserID),
		zap.String("gym_id", input.GymID),
		zap.String("reason", reason),
	}, fields...)
	s.logger.Info("check-in rejected", fields...)
}

// CreateGymInput captures the payload for a new gym.
type CreateGymInput struct {
	Title       string
	Description *string
	Phone       *string
	Latitude    float64
	Longitude   float64
}

// CreateGym registers a new gym.
func (s *Service) CreateGym(ctx context.Context, input CreateGymInput) (*Gym, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrInvalidGym
	}

	return s.gyms.Create(ctx, Gym{
		ID:          uuid.NewString(),
		Title:       title,
		Description: input.Description,
		Phone:       input.Phone,
		Latitude:    input.Latitude,
		Longitude:   input.Longitude,
	})
}

// SearchGyms returns gyms whose title contains query, one page at a time.
func (s *Service) SearchGyms(ctx context.Context, query string, page int) ([]Gym, error) {
	return s.gyms.SearchByTitle(ctx, strings.TrimSpace(query), normalizePage(page))
}

// FetchNearbyGyms returns gyms within MaxNearbyDistanceKm of the user.
func (s *Service) FetchNearbyGyms(ctx context.Context, latitude, longitude float64, page int) ([]Gym, error) {
	origin := geo.Coordinate{Latitude: latitude, Longitude: longitude}
	return s.gyms.FindNearby(ctx, origin, MaxNearbyDistanceKm, normalizePage(page))
}

// ListCheckIns returns a user's check-ins, newest first, with cursor pagination.
func (s *Service) ListCheckIns(ctx context.Context, userID string, cursor *Cursor, limit int) ([]CheckIn, *Cursor, error) {
	if limit <= 0 {
		limit = PageSize
	}
	return s.checkIns.ListByUser(ctx, userID, cursor, limit)
}

// CountCheckIns returns the total number of check-ins recorded for a user.
func (s *Service) CountCheckIns(ctx context.Context, userID string) (int, error) {
	return s.checkIns.CountByUser(ctx, userID)
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
