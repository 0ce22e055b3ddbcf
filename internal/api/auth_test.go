package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"shareit/internal/config"
	"shareit/internal/models"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func authConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true},
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "reader-key", Extra: "reader-extra", Permissions: []string{permReadBookings}},
				{Key: "admin-key", Extra: "admin-extra"},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 100, Burst: 200},
	}
}

func TestAuthInterceptor(t *testing.T) {
	cfg := authConfig()
	interceptor := NewAuthInterceptor(&cfg).Unary()

	handler := func(_ context.Context, req any) (any, error) {
		return "ok", nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: methodGetBooking}

	t.Run("Success", func(t *testing.T) {
		md := metadata.Pairs("x-api-key", "reader-key", "x-api-extra", "reader-extra")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		resp, err := interceptor(ctx, "req", info, handler)
		assert.NoError(t, err)
		assert.Equal(t, "ok", resp)
	})

	t.Run("MissingMetadata", func(t *testing.T) {
		_, err := interceptor(context.Background(), "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("MissingHeaders", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs())
		_, err := interceptor(ctx, "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidKey", func(t *testing.T) {
		md := metadata.Pairs("x-api-key", "invalid", "x-api-extra", "reader-extra")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		_, err := interceptor(ctx, "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidExtra", func(t *testing.T) {
		md := metadata.Pairs("x-api-key", "reader-key", "x-api-extra", "invalid")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		_, err := interceptor(ctx, "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("PermissionDenied", func(t *testing.T) {
		md := metadata.Pairs("x-api-key", "reader-key", "x-api-extra", "reader-extra")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		_, err := interceptor(ctx, "req", &grpc.UnaryServerInfo{FullMethod: methodDecideBooking}, handler)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("EmptyPermissionsAllowAll", func(t *testing.T) {
		md := metadata.Pairs("x-api-key", "admin-key", "x-api-extra", "admin-extra")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		_, err := interceptor(ctx, "req", &grpc.UnaryServerInfo{FullMethod: methodCreateBooking}, handler)
		assert.NoError(t, err)
	})
}

func TestAuthInterceptor_RateLimit(t *testing.T) {
	cfg := config.APIConfig{
		Enabled:   true,
		RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 1},
	}

	interceptor := NewAuthInterceptor(&cfg).Unary()
	info := &grpc.UnaryServerInfo{FullMethod: methodGetBooking}
	handler := func(_ context.Context, req any) (any, error) { return "ok", nil }

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "key1"))

	_, err := interceptor(ctx, "req", info, handler)
	assert.NoError(t, err)

	_, err = interceptor(ctx, "req", info, handler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	other := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "key2"))
	_, err = interceptor(other, "req", info, handler)
	assert.NoError(t, err)
}

func TestLoggingAndRecoveryInterceptors(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: methodGetBooking}

	resp, err := LoggingUnaryInterceptor(nil)(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "ok", resp)

	_, err = RecoveryUnaryInterceptor(nil)(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestRequiredPermission(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{methodCreateBooking, permWriteBookings},
		{methodDecideBooking, permWriteBookings},
		{methodGetBooking, permReadBookings},
		{methodListBookerBookings, permReadBookings},
		{methodListOwnerBookings, permReadBookings},
		{"other", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, requiredPermission(tt.method), tt.method)
	}
}

func TestRequiredPermissionHTTP(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/bookings/1", permReadBookings},
		{http.MethodPatch, "/bookings/1", permWriteBookings},
		{http.MethodPost, "/bookings", permWriteBookings},
		{http.MethodGet, "/items/search", permReadCatalog},
		{http.MethodPost, "/users", permWriteCatalog},
		{http.MethodGet, "/healthz", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(tt.method, tt.path, http.NoBody)
		assert.Equal(t, tt.want, requiredPermissionHTTP(r), tt.method+" "+tt.path)
	}
}

func TestHTTPAuth(t *testing.T) {
	ts := newTestHTTPServer(t, authConfig(), newTestServices(newTestDB(t), nil))

	resp := call(t, http.MethodGet, ts.URL+"/bookings", 1, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = call(t, http.MethodPost, ts.URL+"/bookings", 1, models.BookingRequest{ItemID: 1, Start: futureStart, End: futureEnd},
		"x-api-key", "reader-key", "x-api-extra", "reader-extra")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = call(t, http.MethodPost, ts.URL+"/users", 0, map[string]any{"name": "Ann", "email": "ann@example.com"},
		"x-api-key", "admin-key", "x-api-extra", "admin-extra")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHTTPAuth_RateLimit(t *testing.T) {
	cfg := config.APIConfig{
		Enabled:   true,
		HTTP:      config.APIHTTPConfig{Enabled: true},
		RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 1},
	}
	ts := newTestHTTPServer(t, cfg, newTestServices(newTestDB(t), nil))

	resp := call(t, http.MethodGet, ts.URL+"/healthz", 0, nil, "x-api-key", "k")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = call(t, http.MethodGet, ts.URL+"/healthz", 0, nil, "x-api-key", "k")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
