// Package api exposes HTTP handlers for the gym check-in service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"example.com/gymcheckin/internal/auth"
	"example.com/gymcheckin/internal/domain"
	"example.com/gymcheckin/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	logger  *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/gyms", h.createGym)
	mux.HandleFunc("GET /v1/gyms/search", h.searchGyms)
	mux.HandleFunc("GET /v1/gyms/nearby", h.nearbyGyms)
	mux.HandleFunc("POST /v1/gyms/{gymId}/check-ins", h.createCheckIn)
	mux.HandleFunc("GET /v1/check-ins/history", h.checkInHistory)
	mux.HandleFunc("GET /v1/check-ins/metrics", h.checkInMetrics)
	mux.HandleFunc("GET /healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) createGym(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireScope(w, r, auth.ScopeGymsWrite); !ok {
		return
	}

	var req CreateGymRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	gym, err := h.service.CreateGym(r.Context(), domain.CreateGymInput{
		Title:       req.Title,
		Description: req.Description,
		Phone:       req.Phone,
		Latitude:    *req.Latitude,
		Longitude:   *req.Longitude,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGymView(*gym))
}

func (h *Handler) searchGyms(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireScope(w, r, auth.ScopeGymsRead); !ok {
		return
	}

	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing q parameter")
		return
	}

	gyms, err := h.service.SearchGyms(r.Context(), query, parsePage(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGymList(gyms))
}

func (h *Handler) nearbyGyms(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireScope(w, r, auth.ScopeGymsRead); !ok {
		return
	}

	latitude, longitude, err := parseCoordinates(r.URL.Query().Get("latitude"), r.URL.Query().Get("longitude"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	gyms, err := h.service.FetchNearbyGyms(r.Context(), latitude, longitude, parsePage(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGymList(gyms))
}

func (h *Handler) createCheckIn(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeCheckInsWrite)
	if !ok {
		return
	}

	var req CreateCheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := validateCoordinates(req.Latitude, req.Longitude); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	checkIn, err := h.service.CheckIn(r.Context(), domain.CheckInInput{
		UserID:        claims.Subject,
		GymID:         r.PathValue("gymId"),
		UserLatitude:  *req.Latitude,
		UserLongitude: *req.Longitude,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCheckInView(*checkIn))
}

func (h *Handler) checkInHistory(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeCheckInsRead)
	if !ok {
		return
	}

	limit := domain.PageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, 100)
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	checkIns, next, err := h.service.ListCheckIns(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	items := make([]CheckInView, 0, len(checkIns))
	for _, c := range checkIns {
		items = append(items, toCheckInView(c))
	}
	writeJSON(w, http.StatusOK, ListCheckInsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) checkInMetrics(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeCheckInsRead)
	if !ok {
		return
	}

	count, err := h.service.CountCheckIns(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckInMetricsResponse{CheckInsCount: count})
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrResourceNotFound):
		writeError(w, http.StatusNotFound, "resource_not_found", err.Error())
	case errors.Is(err, domain.ErrMaxDistanceExceeded):
		writeError(w, http.StatusUnprocessableEntity, "max_distance_exceeded", err.Error())
	case errors.Is(err, domain.ErrMaxCheckInsPerDayExceeded):
		writeError(w, http.StatusConflict, "max_check_ins_per_day_exceeded", err.Error())
	case errors.Is(err, domain.ErrInvalidGym):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "server_error", "internal server error")
	}
}

func parsePage(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func parseCoordinates(rawLat, rawLng string) (float64, float64, error) {
	if rawLat == "" || rawLng == "" {
		return 0, 0, errors.New("latitude and longitude are required")
	}
	latitude, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return 0, 0, errors.New("latitude must be a number")
	}
	longitude, err := strconv.ParseFloat(rawLng, 64)
	if err != nil {
		return 0, 0, errors.New("longitude must be a number")
	}
	if err := validateCoordinates(&latitude, &longitude); err != nil {
		return 0, 0, err
	}
	return latitude, longitude, nil
}

func validateCoordinates(latitude, longitude *float64) error {
	if latitude == nil || longitude == nil {
		return errors.New("latitude and longitude are required")
	}
	if *latitude < -90 || *latitude > 90 {
		return errors.New("latitude must be between -90 and 90")
	}
	if *longitude < -180 || *longitude > 180 {
		return errors.New("longitude must be between -180 and 180")
	}
	return nil
}

// CreateGymRequest is the payload for POST /v1/gyms.
type CreateGymRequest struct {
	Title       string   `json:"title"`
	Description *string  `json:"description"`
	Phone       *string  `json:"phone"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

// Validate ensures request correctness.
func (r CreateGymRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("title is required")
	}
	return validateCoordinates(r.Latitude, r.Longitude)
}

// CreateCheckInRequest is the payload for POST /v1/gyms/{gymId}/check-ins.
type CreateCheckInRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// GymView is the JSON representation of a gym.
type GymView struct {
	GymID       string  `json:"gym_id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Phone       *string `json:"phone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// GymListResponse packages gym search results.
type GymListResponse struct {
	Gyms []GymView `json:"gyms"`
}

// CheckInView is the JSON representation of a check-in.
type CheckInView struct {
	CheckInID   string     `json:"check_in_id"`
	UserID      string     `json:"user_id"`
	GymID       string     `json:"gym_id"`
	CreatedAt   time.Time  `json:"created_at"`
	ValidatedAt *time.Time `json:"validated_at"`
}

// ListCheckInsResponse packages history results.
type ListCheckInsResponse struct {
	Items      []CheckInView `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// CheckInMetricsResponse reports how many check-ins a user has.
type CheckInMetricsResponse struct {
	CheckInsCount int `json:"check_ins_count"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toGymView(g domain.Gym) GymView {
	return GymView{
		GymID:       g.ID,
		Title:       g.Title,
		Description: g.Description,
		Phone:       g.Phone,
		Latitude:    g.Latitude,
		Longitude:   g.Longitude,
	}
}

func toGymList(gyms []domain.Gym) GymListResponse {
	views := make([]GymView, 0, len(gyms))
	for _, g := range gyms {
		views = append(views, toGymView(g))
	}
	return GymListResponse{Gyms: views}
}

func toCheckInView(c domain.CheckIn) CheckInView {
	return CheckInView{
		CheckInID:   c.ID,
		UserID:      c.UserID,
		GymID:       c.GymID,
		CreatedAt:   c.CreatedAt,
		ValidatedAt: c.ValidatedAt,
	}
}
