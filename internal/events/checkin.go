// Package events defines the payloads published for check-in lifecycle changes.
package events

import "time"

// Event types carried in the outbox and the Kafka event_type header.
const (
	TypeCheckInCreated = "checkin.created"
	TypeGymCreated     = "gym.created"
)

// CheckInCreated is emitted when a check-in is accepted.
type CheckInCreated struct {
	CheckInID string    `json:"check_in_id"`
	UserID    string    `json:"user_id"`
	GymID     string    `json:"gym_id"`
	CreatedAt time.Time `json:"created_at"`
}

// GymCreated is emitted when a gym is registered.
type GymCreated struct {
	GymID     string  `json:"gym_id"`
	Title     string  `json:"title"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
