package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "i5e.identity"}

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":    "user-1",
		"iss":    "i5e.identity",
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": "checkins:write checkins:read",
	}
}

func TestParseValidToken(t *testing.T) {
	claims, err := Parse(signToken(t, validClaims(), testConfig.Secret), testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.True(t, claims.HasScope(ScopeCheckInsWrite))
	require.True(t, claims.HasScope(ScopeCheckInsRead))
	require.False(t, claims.HasScope(ScopeGymsWrite))
}

func TestParseScopeList(t *testing.T) {
	raw := validClaims()
	raw["scopes"] = []interface{}{"gyms:write", "", 42}

	claims, err := Parse(signToken(t, raw, testConfig.Secret), testConfig)
	require.NoError(t, err)
	require.True(t, claims.HasScope(ScopeGymsWrite))
	require.Len(t, claims.Scopes, 1)
}

func TestParseRejectsInvalidTokens(t *testing.T) {
	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "someone-else"

	noSubject := validClaims()
	delete(noSubject, "sub")

	noExpiry := validClaims()
	delete(noExpiry, "exp")

	cases := map[string]string{
		"expired":      signToken(t, expired, testConfig.Secret),
		"wrong issuer": signToken(t, wrongIssuer, testConfig.Secret),
		"no subject":   signToken(t, noSubject, testConfig.Secret),
		"no expiry":    signToken(t, noExpiry, testConfig.Secret),
		"wrong secret": signToken(t, validClaims(), "other-secret"),
		"garbage":      "not-a-jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(token, testConfig)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err := Parse("  ", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewMiddleware(testConfig, func(r *http.Request) bool {
		return r.URL.Path == "/healthz"
	}).Wrap(next)

	req := httptest.NewRequest(http.MethodGet, "/v1/check-ins/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/check-ins/metrics", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, validClaims(), testConfig.Secret))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.NotNil(t, seen)
	require.Equal(t, "user-1", seen.Subject)

	seen = nil
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Nil(t, seen)
}
