// Package memory provides in-memory repositories for tests and local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"example.com/gymcheckin/internal/domain"
	"example.com/gymcheckin/internal/geo"
)

// GymRepository stores gyms in insertion order and scans them linearly.
type GymRepository struct {
	mu   sync.RWMutex
	gyms []domain.Gym
}

// NewGymRepository constructs a repository populated with the provided gyms.
func NewGymRepository(seed ...domain.Gym) *GymRepository {
	gyms := make([]domain.Gym, len(seed))
	copy(gyms, seed)
	return &GymRepository{gyms: gyms}
}

// Create implements domain.GymRepository.
func (r *GymRepository) Create(ctx context.Context, gym domain.Gym) (*domain.Gym, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gyms = append(r.gyms, gym)
	return &gym, nil
}

// FindByID implements domain.GymLookup.
func (r *GymRepository) FindByID(ctx context.Context, id string) (*domain.Gym, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, gym := range r.gyms {
		if gym.ID == id {
			found := gym
			return &found, nil
		}
	}
	return nil, nil
}

// SearchByTitle performs a case-insensitive substring match on titles.
func (r *GymRepository) SearchByTitle(ctx context.Context, query string, page int) ([]domain.Gym, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	normalized := strings.ToLower(query)
	matches := make([]domain.Gym, 0)
	for _, gym := range r.gyms {
		if strings.Contains(strings.ToLower(gym.Title), normalized) {
			matches = append(matches, gym)
		}
	}
	return paginate(matches, page), nil
}

// FindNearby returns gyms within maxDistanceKm of origin, nearest first.
func (r *GymRepository) FindNearby(ctx context.Context, origin geo.Coordinate, maxDistanceKm float64, page int) ([]domain.Gym, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]domain.Gym, 0)
	distances := make(map[string]float64)
	for _, gym := range r.gyms {
		d := geo.Distance(origin, geo.Coordinate{Latitude: gym.Latitude, Longitude: gym.Longitude})
		if d <= maxDistanceKm {
			matches = append(matches, gym)
			distances[gym.ID] = d
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return distances[matches[i].ID] < distances[matches[j].ID]
	})
	return paginate(matches, page), nil
}

func paginate[T any](items []T, page int) []T {
	if page < 1 {
		page = 1
	}
	start := (page - 1) * domain.PageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + domain.PageSize
	if end > len(items) {
		end = len(items)
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out
}
