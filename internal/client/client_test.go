package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"shareit/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBooking(status models.BookingStatus) models.BookingResponse {
	return models.BookingResponse{
		ID:     7,
		Start:  "2030-01-10T10:00:00",
		End:    "2030-01-10T12:00:00",
		Status: status,
		Booker: models.UserSummary{ID: 2, Name: "Boris"},
		Item:   models.ItemSummary{ID: 5, Name: "Drill", OwnerID: 1},
	}
}

func TestClientBookingCalls(t *testing.T) {
	var gets atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/bookings", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.Header.Get(models.UserIDHeader))
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		switch r.Method {
		case http.MethodPost:
			var req models.BookingRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, int64(5), req.ItemID)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(sampleBooking(models.StatusWaiting))
		case http.MethodGet:
			assert.Equal(t, "FUTURE", r.URL.Query().Get("state"))
			assert.Equal(t, "0", r.URL.Query().Get("from"))
			assert.Equal(t, "2", r.URL.Query().Get("size"))
			_ = json.NewEncoder(w).Encode([]models.BookingResponse{sampleBooking(models.StatusWaiting)})
		}
	})
	mux.HandleFunc("/bookings/7", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			gets.Add(1)
			_ = json.NewEncoder(w).Encode(sampleBooking(models.StatusWaiting))
		case http.MethodPatch:
			assert.Equal(t, "true", r.URL.Query().Get("approved"))
			_ = json.NewEncoder(w).Encode(sampleBooking(models.StatusApproved))
		}
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := New(ts.URL+"/", 2).WithAPIKey("key", "extra")
	c.UseRedisCache(rdb, time.Minute)
	ctx := context.Background()

	created, err := c.CreateBooking(ctx, models.BookingRequest{ItemID: 5, Start: "2030-01-10T10:00:00", End: "2030-01-10T12:00:00"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, created.Status)

	for i := 0; i < 3; i++ {
		got, err := c.GetBooking(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "Drill", got.Item.Name)
	}
	assert.Equal(t, int32(1), gets.Load())
	assert.True(t, mr.Exists("booking:2:7"))

	decided, err := c.DecideBooking(ctx, 7, true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, decided.Status)
	assert.False(t, mr.Exists("booking:2:7"))

	list, err := c.ListBookings(ctx, false, "FUTURE", &models.Page{From: 0, Size: 2, Set: true})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestClientErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"booking not found"}`))
	}))
	t.Cleanup(ts.Close)

	_, err := New(ts.URL, 2).GetBooking(context.Background(), 1)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "http 404: booking not found", apiErr.Error())

	err = New(ts.URL, 2).ExportOwnerBookings(context.Background(), "", &bytes.Buffer{})
	assert.True(t, errors.As(err, &apiErr))
}

func TestClientToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get(models.UserIDHeader))
		assert.Equal(t, "/bookings/owner/export", r.URL.Path)
		_, _ = w.Write([]byte("xlsx"))
	}))
	t.Cleanup(ts.Close)

	var buf bytes.Buffer
	require.NoError(t, New(ts.URL, 2).WithToken("abc").ExportOwnerBookings(context.Background(), "", &buf))
	assert.Equal(t, "xlsx", buf.String())
}
