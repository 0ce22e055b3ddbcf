package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"shareit/internal/config"
	"shareit/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"
)

func TestIdentityResolver_Header(t *testing.T) {
	r := NewIdentityResolver("")

	id, err := r.Resolve(" 7 ", "")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	_, err = r.Resolve("", "")
	assert.ErrorIs(t, err, errMissingUser)

	for _, raw := range []string{"abc", "0", "-3"} {
		_, err = r.Resolve(raw, "")
		assert.ErrorIs(t, err, errInvalidUser, raw)
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(userIDMetadataKey, "9"))
	id, err = r.ResolveMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
}

func TestIdentityResolver_Token(t *testing.T) {
	const secret = "s3cret"
	r := NewIdentityResolver(secret)

	token, err := IssueToken(secret, 42, time.Hour)
	require.NoError(t, err)

	id, err := r.Resolve("", "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	t.Run("HeaderIgnored", func(t *testing.T) {
		_, err := r.Resolve("42", "")
		assert.ErrorIs(t, err, errMissingUser)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		forged, err := IssueToken("other", 42, time.Hour)
		require.NoError(t, err)
		_, err = r.Resolve("", "Bearer "+forged)
		assert.ErrorIs(t, err, errInvalidToken)
	})

	t.Run("Expired", func(t *testing.T) {
		expired, err := IssueToken(secret, 42, -time.Minute)
		require.NoError(t, err)
		_, err = r.Resolve("", "Bearer "+expired)
		assert.ErrorIs(t, err, errInvalidToken)
	})

	t.Run("NoneAlgorithm", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 42}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = r.Resolve("", "Bearer "+unsigned)
		assert.ErrorIs(t, err, errInvalidToken)
	})
}

func TestIdentityMiddlewareWithTokens(t *testing.T) {
	const secret = "s3cret"
	cfg := config.APIConfig{Auth: config.APIAuthConfig{JWTSecret: secret}}
	ts := newTestHTTPServer(t, cfg, newTestServices(newTestDB(t), nil))

	resp := call(t, http.MethodGet, ts.URL+"/bookings", 1, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = call(t, http.MethodPost, ts.URL+"/users", 0, map[string]any{"name": "Ann", "email": "ann@example.com"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	userID := decode[idBody](t, resp).ID

	token, err := IssueToken(secret, userID, time.Hour)
	require.NoError(t, err)

	resp = call(t, http.MethodGet, ts.URL+"/bookings", 0, nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUserRateLimit(t *testing.T) {
	cfg := config.APIConfig{UserRateLimit: config.UserRateLimit{Enabled: true, Requests: 2, WindowSeconds: 60}}
	ts := newTestHTTPServer(t, cfg, newTestServices(newTestDB(t), repository.NewMemoryRateLimiter()))

	for i := 0; i < 2; i++ {
		resp := call(t, http.MethodGet, ts.URL+"/bookings", 1, nil)
		assert.NotEqual(t, http.StatusTooManyRequests, resp.StatusCode)
	}

	resp := call(t, http.MethodGet, ts.URL+"/bookings", 1, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp = call(t, http.MethodGet, ts.URL+"/bookings", 2, nil)
	assert.NotEqual(t, http.StatusTooManyRequests, resp.StatusCode)

	resp = call(t, http.MethodGet, ts.URL+"/healthz", 0, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
