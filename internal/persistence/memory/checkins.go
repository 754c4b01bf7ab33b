package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/gymcheckin/internal/domain"
)

// CheckInRepository stores check-ins in insertion order and scans them linearly.
type CheckInRepository struct {
	mu       sync.RWMutex
	checkIns []domain.CheckIn
}

// NewCheckInRepository constructs an empty repository.
func NewCheckInRepository() *CheckInRepository {
	return &CheckInRepository{}
}

// Create implements domain.CheckInLedger.
func (r *CheckInRepository) Create(ctx context.Context, checkIn domain.CheckIn) (*domain.CheckIn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.checkIns = append(r.checkIns, checkIn)
	return &checkIn, nil
}

// FindByUserIDOnDate implements domain.CheckInLedger.
func (r *CheckInRepository) FindByUserIDOnDate(ctx context.Context, userID string, date time.Time) (*domain.CheckIn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, checkIn := range r.checkIns {
		if checkIn.UserID == userID && domain.SameDay(checkIn.CreatedAt, date) {
			found := checkIn
			return &found, nil
		}
	}
	return nil, nil
}

// ListByUser returns the user's check-ins ordered newest first.
func (r *CheckInRepository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.CheckIn, *domain.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owned := make([]domain.CheckIn, 0)
	for _, checkIn := range r.checkIns {
		if checkIn.UserID == userID {
			owned = append(owned, checkIn)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return after(owned[i], owned[j].CreatedAt, owned[j].ID)
	})

	results := make([]domain.CheckIn, 0, limit)
	for _, checkIn := range owned {
		if cursor != nil && !after(domain.CheckIn{CreatedAt: cursor.CreatedAt, ID: cursor.ID}, checkIn.CreatedAt, checkIn.ID) {
			continue
		}
		results = append(results, checkIn)
		if len(results) == limit {
			break
		}
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, next, nil
}

// CountByUser returns the number of check-ins stored for the user.
func (r *CheckInRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, checkIn := range r.checkIns {
		if checkIn.UserID == userID {
			count++
		}
	}
	return count, nil
}

// after orders check-ins by (CreatedAt, ID) descending.
func after(c domain.CheckIn, createdAt time.Time, id string) bool {
	if c.CreatedAt.Equal(createdAt) {
		return c.ID > id
	}
	return c.CreatedAt.After(createdAt)
}
