package domain

import "time"

// Gym is a physical location users check in at.
type Gym struct {
	ID          string
	Title       string
	Description *string
	Phone       *string
	Latitude    float64
	Longitude   float64
}

// CheckIn records a user's presence at a gym.
type CheckIn struct {
	ID          string
	UserID      string
	GymID       string
	CreatedAt   time.Time
	ValidatedAt *time.Time
}

// Cursor models the check-in history pagination token.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// DayBounds returns the start of t's calendar day and the start of the following day,
// both in t's location.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// SameDay reports whether a falls on the calendar day of ref, using ref's location.
func SameDay(a, ref time.Time) bool {
	start, end := DayBounds(ref)
	a = a.In(ref.Location())
	return !a.Before(start) && a.Before(end)
}
