package auth

// OAuth scopes understood by the check-in API.
const (
	ScopeGymsWrite     = "gyms:write"
	ScopeGymsRead      = "gyms:read"
	ScopeCheckInsWrite = "checkins:write"
	ScopeCheckInsRead  = "checkins:read"
)
