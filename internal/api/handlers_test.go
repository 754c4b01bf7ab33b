package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"example.com/gymcheckin/internal/auth"
	"example.com/gymcheckin/internal/domain"
	"example.com/gymcheckin/internal/persistence/memory"
)

const (
	ironbergLat = -23.5617
	ironbergLng = -46.6560
)

type testServer struct {
	mux      *http.ServeMux
	checkIns *memory.CheckInRepository
	now      time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		checkIns: memory.NewCheckInRepository(),
		now:      time.Date(2024, time.September, 13, 20, 25, 0, 0, time.UTC),
	}
	gyms := memory.NewGymRepository(domain.Gym{
		ID:        "gym-1",
		Title:     "Ironberg",
		Latitude:  ironbergLat,
		Longitude: ironbergLng,
	})
	service := domain.NewService(gyms, ts.checkIns, domain.WithClock(func() time.Time { return ts.now }))

	ts.mux = http.NewServeMux()
	NewHandler(service, zaptest.NewLogger(t)).RegisterRoutes(ts.mux)
	return ts
}

func (ts *testServer) do(t *testing.T, method, target string, body interface{}, scopes ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if scopes != nil {
		granted := make(map[string]struct{}, len(scopes))
		for _, s := range scopes {
			granted[s] = struct{}{}
		}
		req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{
			Subject:   "user-1",
			Scopes:    granted,
			ExpiresAt: time.Now().Add(time.Hour),
		}))
	}

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body["type"]
}

func TestCreateCheckInSuccess(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/v1/gyms/gym-1/check-ins",
		map[string]float64{"latitude": ironbergLat, "longitude": ironbergLng}, auth.ScopeCheckInsWrite)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var view CheckInView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	require.Equal(t, "user-1", view.UserID)
	require.Equal(t, "gym-1", view.GymID)
	require.NotEmpty(t, view.CheckInID)
	require.True(t, view.CreatedAt.Equal(ts.now))
	require.Nil(t, view.ValidatedAt)
}

func TestCreateCheckInMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		lat    float64
		status int
		code   string
	}{
		{name: "unknown gym", path: "/v1/gyms/missing/check-ins", lat: ironbergLat, status: http.StatusNotFound, code: "resource_not_found"},
		{name: "too far", path: "/v1/gyms/gym-1/check-ins", lat: ironbergLat + 0.01, status: http.StatusUnprocessableEntity, code: "max_distance_exceeded"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			rr := ts.do(t, http.MethodPost, tc.path,
				map[string]float64{"latitude": tc.lat, "longitude": ironbergLng}, auth.ScopeCheckInsWrite)
			require.Equal(t, tc.status, rr.Code)
			require.Equal(t, tc.code, decodeError(t, rr))
		})
	}
}

func TestCreateCheckInTwiceSameDayConflicts(t *testing.T) {
	ts := newTestServer(t)
	body := map[string]float64{"latitude": ironbergLat, "longitude": ironbergLng}

	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/v1/gyms/gym-1/check-ins", body, auth.ScopeCheckInsWrite).Code)

	rr := ts.do(t, http.MethodPost, "/v1/gyms/gym-1/check-ins", body, auth.ScopeCheckInsWrite)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "max_check_ins_per_day_exceeded", decodeError(t, rr))
}

func TestCreateCheckInValidatesCoordinates(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/v1/gyms/gym-1/check-ins", map[string]float64{"latitude": 91, "longitude": 0}, auth.ScopeCheckInsWrite)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "validation_failed", decodeError(t, rr))

	rr = ts.do(t, http.MethodPost, "/v1/gyms/gym-1/check-ins", map[string]float64{"latitude": 0}, auth.ScopeCheckInsWrite)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRoutesRequireClaimsAndScopes(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/v1/check-ins/metrics", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.do(t, http.MethodGet, "/v1/check-ins/metrics", nil, auth.ScopeGymsRead)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, "forbidden", decodeError(t, rr))

	rr = ts.do(t, http.MethodDelete, "/v1/check-ins/metrics", nil, auth.ScopeCheckInsRead)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestCreateAndSearchGyms(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/v1/gyms", map[string]interface{}{
		"title":     "JavaScript Gym",
		"phone":     "1199999999",
		"latitude":  -27.2092052,
		"longitude": -49.6401091,
	}, auth.ScopeGymsWrite)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created GymView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.NotEmpty(t, created.GymID)
	require.Nil(t, created.Description)

	rr = ts.do(t, http.MethodGet, "/v1/gyms/search?q=javascript", nil, auth.ScopeGymsRead)
	require.Equal(t, http.StatusOK, rr.Code)
	var list GymListResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Gyms, 1)
	require.Equal(t, created.GymID, list.Gyms[0].GymID)

	rr = ts.do(t, http.MethodGet, "/v1/gyms/search", nil, auth.ScopeGymsRead)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateGymRequiresTitle(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/v1/gyms", map[string]interface{}{
		"title":     "  ",
		"latitude":  0,
		"longitude": 0,
	}, auth.ScopeGymsWrite)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "validation_failed", decodeError(t, rr))
}

func TestNearbyGyms(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/v1/gyms/nearby?latitude=-23.5620&longitude=-46.6555", nil, auth.ScopeGymsRead)
	require.Equal(t, http.StatusOK, rr.Code)
	var list GymListResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Gyms, 1)

	rr = ts.do(t, http.MethodGet, "/v1/gyms/nearby?latitude=abc&longitude=0", nil, auth.ScopeGymsRead)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCheckInHistoryAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	body := map[string]float64{"latitude": ironbergLat, "longitude": ironbergLng}

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/v1/gyms/gym-1/check-ins", body, auth.ScopeCheckInsWrite).Code)
		ts.now = ts.now.AddDate(0, 0, 1)
	}

	rr := ts.do(t, http.MethodGet, "/v1/check-ins/history?limit=2", nil, auth.ScopeCheckInsRead)
	require.Equal(t, http.StatusOK, rr.Code)
	var page ListCheckInsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)
	require.True(t, page.Items[0].CreatedAt.After(page.Items[1].CreatedAt))

	rr = ts.do(t, http.MethodGet, "/v1/check-ins/history?limit=2&cursor="+page.NextCursor, nil, auth.ScopeCheckInsRead)
	require.Equal(t, http.StatusOK, rr.Code)
	var rest ListCheckInsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rest))
	require.Len(t, rest.Items, 1)
	require.Empty(t, rest.NextCursor)

	rr = ts.do(t, http.MethodGet, "/v1/check-ins/history?cursor=not-a-cursor!", nil, auth.ScopeCheckInsRead)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(t, http.MethodGet, "/v1/check-ins/metrics", nil, auth.ScopeCheckInsRead)
	require.Equal(t, http.StatusOK, rr.Code)
	var metrics CheckInMetricsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &metrics))
	require.Equal(t, 3, metrics.CheckInsCount)
}

func TestHealthzIsOpen(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}
