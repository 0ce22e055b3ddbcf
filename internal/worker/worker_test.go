package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"shareit/internal/config"
	"shareit/internal/database"
	"shareit/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testView(id int64) *models.BookingView {
	start := time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC)
	return &models.BookingView{
		ID:     id,
		Start:  start,
		End:    start.Add(24 * time.Hour),
		Status: models.StatusWaiting,
		Booker: models.UserSummary{ID: 2, Name: "booker"},
		Item:   models.ItemSummary{ID: 10, Name: "camera", OwnerID: 1},
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	w := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	require.NoError(t, w.EnqueueTask(ctx, TaskUpsert, testView(1)))

	task, ok := w.tryLocalQueue()
	require.True(t, ok, "expected task in local queue")
	w.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusCompleted, status)
	assert.Zero(t, retryCount)
	assert.False(t, nextRetry.Valid)
	require.Len(t, sheets.upserted, 1)
	assert.Equal(t, "camera", sheets.upserted[0].Item.Name)
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("boom")}
	w := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, nil)

	ctx := context.Background()
	require.NoError(t, w.EnqueueTask(ctx, TaskUpsert, testView(2)))

	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	w.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusRetry, status)
	assert.Equal(t, 1, retryCount)
	require.True(t, nextRetry.Valid)
	assert.True(t, nextRetry.Time.After(time.Now()))
}

func TestProcessTaskFailToDeadLetter(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	db := newTestDB(t)
	w := NewSheetsWorker(db, &fakeSheets{err: errors.New("fatal")}, client, RetryPolicy{MaxRetries: 1}, nil)

	ctx := context.Background()
	require.NoError(t, w.EnqueueTask(ctx, TaskUpdateStatus, testView(3)))

	task, ok := w.tryRedis(ctx)
	require.True(t, ok, "expected task in redis queue")
	w.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusFailed, status)

	dead, err := s.List("sheets:deadletter")
	require.NoError(t, err)
	require.Len(t, dead, 1)

	var deadTask models.SyncTask
	require.NoError(t, json.Unmarshal([]byte(dead[0]), &deadTask))
	assert.Equal(t, int64(3), deadTask.BookingID)
}

func TestPollPicksUpPendingTasks(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	w := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	payload, err := json.Marshal(sheetTaskPayload{BookingID: 9, Status: "APPROVED"})
	require.NoError(t, err)
	task := models.SyncTask{TaskType: TaskUpdateStatus, BookingID: 9, Payload: string(payload)}
	require.NoError(t, db.CreateSyncTask(ctx, &task))

	assert.Equal(t, 1, w.pollOnce(ctx))
	assert.Equal(t, []string{"APPROVED"}, sheets.statuses)
	assert.Equal(t, 0, w.pollOnce(ctx))
}

func TestStartStopsOnCancel(t *testing.T) {
	db := newTestDB(t)
	w := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	w.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestSheetsWorker_HandleSheetTask(t *testing.T) {
	sheets := &fakeSheets{}
	w := NewSheetsWorker(nil, sheets, nil, RetryPolicy{MaxRetries: 3}, nil)
	ctx := context.Background()

	require.NoError(t, w.handleSheetTask(ctx, TaskUpsert, sheetTaskPayload{Booking: testView(1)}))
	assert.Len(t, sheets.upserted, 1)

	require.NoError(t, w.handleSheetTask(ctx, TaskUpdateStatus, sheetTaskPayload{BookingID: 123, Status: "REJECTED"}))
	assert.Equal(t, []string{"REJECTED"}, sheets.statuses)

	assert.Error(t, w.handleSheetTask(ctx, TaskUpsert, sheetTaskPayload{}))
	assert.Error(t, w.handleSheetTask(ctx, TaskUpdateStatus, sheetTaskPayload{BookingID: 1}))
	assert.Error(t, w.handleSheetTask(ctx, "delete", sheetTaskPayload{BookingID: 1}))
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	assert.Equal(t, 5*time.Second, policy.NextDelay(5))
	assert.Equal(t, 5*time.Second, policy.NextDelay(1000))
	assert.Equal(t, 2*time.Second, RetryPolicy{}.NextDelay(0))

	now := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(2*time.Second), policy.NextRetryAt(now, 2))
}

func TestNewRetryPolicyFromConfig(t *testing.T) {
	policy := NewRetryPolicy(config.SheetsRetryConfig{MaxRetries: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second, BackoffFactor: 3})

	assert.Equal(t, RetryPolicy{MaxRetries: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second, BackoffFactor: 3}, policy)
	assert.Equal(t, 1500*time.Millisecond, policy.NextDelay(2))
	assert.False(t, policy.Exhausted(2))
	assert.True(t, policy.Exhausted(3))

	assert.Equal(t, RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}, NewRetryPolicy(config.SheetsRetryConfig{}))
}

func TestSheetsWorker_EnqueueTask(t *testing.T) {
	db := newTestDB(t)
	w := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	assert.NoError(t, w.EnqueueTask(ctx, TaskUpsert, testView(1)))
	assert.Error(t, w.EnqueueTask(ctx, "", testView(1)))
	assert.Error(t, w.EnqueueTask(ctx, TaskUpsert, nil))
	assert.Error(t, w.EnqueueTask(ctx, TaskUpsert, &models.BookingView{}))
}

func TestDecodePayload(t *testing.T) {
	decoded, err := decodePayload(`{"booking_id":123,"status":"APPROVED"}`)
	require.NoError(t, err)
	assert.Equal(t, int64(123), decoded.BookingID)
	assert.Equal(t, "APPROVED", decoded.Status)

	_, err = decodePayload(`invalid json`)
	assert.Error(t, err)
}

type fakeSheets struct {
	mu       sync.Mutex
	err      error
	upserted []*models.BookingView
	statuses []string
}

func (f *fakeSheets) UpsertBooking(_ context.Context, b *models.BookingView) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, b)
	return f.err
}

func (f *fakeSheets) UpdateBookingStatus(_ context.Context, _ int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return f.err
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.db")
	logger := zerolog.Nop()
	db, err := database.NewDB(path, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	require.NoError(t, row.Scan(&status, &retryCount, &nextRetry))
	return status, retryCount, nextRetry
}
