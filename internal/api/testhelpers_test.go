package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"shareit/internal/config"
	"shareit/internal/database"
	"shareit/internal/domain"
	"shareit/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	futureStart = "2030-01-10T10:00:00"
	futureEnd   = "2030-01-10T12:00:00"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestServices(db *database.DB, limiter domain.RateLimiter) Services {
	logger := zerolog.New(io.Discard)
	return Services{
		Bookings: service.NewBookingService(db, nil, nil, &logger),
		Items:    service.NewItemService(db, nil, &logger),
		Users:    service.NewUserService(db, &logger),
		Limiter:  limiter,
	}
}

func newTestHTTPServer(t *testing.T, cfg config.APIConfig, svc Services) *httptest.Server {
	t.Helper()
	logger := zerolog.New(io.Discard)
	server := NewHTTPServer(cfg, svc, 10, &logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// call performs a JSON request; userID 0 omits the acting user header.
func call(t *testing.T, method, url string, userID int64, body any, headers ...string) *http.Response {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		req.Header.Set("X-Sharer-User-Id", strconv.FormatInt(userID, 10))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type idBody struct {
	ID int64 `json:"id"`
}

// seedRental creates an owner, a booker and an available item of the owner.
func seedRental(t *testing.T, baseURL string) (ownerID, bookerID, itemID int64) {
	t.Helper()

	resp := call(t, http.MethodPost, baseURL+"/users", 0, map[string]any{"name": "Olga", "email": "olga@example.com"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ownerID = decode[idBody](t, resp).ID

	resp = call(t, http.MethodPost, baseURL+"/users", 0, map[string]any{"name": "Boris", "email": "boris@example.com"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	bookerID = decode[idBody](t, resp).ID

	resp = call(t, http.MethodPost, baseURL+"/items", ownerID, map[string]any{"name": "Drill", "description": "Cordless drill", "available": true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	itemID = decode[idBody](t, resp).ID
	return ownerID, bookerID, itemID
}
