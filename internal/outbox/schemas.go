package outbox

import "example.com/gymcheckin/internal/events"

const checkInCreatedSchema = `{
  "type": "object",
  "title": "CheckInCreated",
  "properties": {
    "check_in_id": {"type": "string"},
    "user_id": {"type": "string"},
    "gym_id": {"type": "string"},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["check_in_id", "user_id", "gym_id", "created_at"],
  "additionalProperties": false
}`

const gymCreatedSchema = `{
  "type": "object",
  "title": "GymCreated",
  "properties": {
    "gym_id": {"type": "string"},
    "title": {"type": "string"},
    "latitude": {"type": "number"},
    "longitude": {"type": "number"}
  },
  "required": ["gym_id", "title", "latitude", "longitude"],
  "additionalProperties": false
}`

// Route describes where an event type is published.
type Route struct {
	Topic         string
	SchemaSubject string
	Schema        string
}

var catalog = map[string]Route{
	events.TypeCheckInCreated: {
		Topic:         "checkin_events",
		SchemaSubject: "checkin_events-value",
		Schema:        checkInCreatedSchema,
	},
	events.TypeGymCreated: {
		Topic:         "gym_events",
		SchemaSubject: "gym_events-value",
		Schema:        gymCreatedSchema,
	},
}

// Lookup returns the route for eventType.
func Lookup(eventType string) (Route, bool) {
	route, ok := catalog[eventType]
	return route, ok
}
