package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"shareit/internal/database"
	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore connects to SHAREIT_TEST_POSTGRES_DSN and empties the tables.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("SHAREIT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SHAREIT_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	logger := zerolog.Nop()
	store, err := Open(ctx, dsn, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.pool.Exec(ctx, `TRUNCATE sync_queue, comments, bookings, items, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return store
}

func TestStoreBookingLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	owner := &models.User{Name: "Owner", Email: "owner@example.com"}
	booker := &models.User{Name: "Booker", Email: "booker@example.com"}
	require.NoError(t, store.CreateUser(ctx, owner))
	require.NoError(t, store.CreateUser(ctx, booker))
	assert.ErrorIs(t, store.CreateUser(ctx, &models.User{Name: "Dup", Email: "owner@example.com"}), domain.ErrConflict)

	item := &models.Item{Name: "Drill", Description: "Cordless", Available: true, OwnerID: owner.ID}
	require.NoError(t, store.CreateItem(ctx, item))

	found, err := store.SearchAvailableItems(ctx, "dRiLl")
	require.NoError(t, err)
	require.Len(t, found, 1)

	start := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	booking := &models.Booking{ItemID: item.ID, BookerID: booker.ID, Start: start, End: start.Add(2 * time.Hour)}
	require.NoError(t, store.CreateBookingWithLock(ctx, booking))
	assert.Equal(t, models.StatusWaiting, booking.Status)

	own := &models.Booking{ItemID: item.ID, BookerID: owner.ID, Start: start, End: start.Add(time.Hour)}
	assert.ErrorIs(t, store.CreateBookingWithLock(ctx, own), domain.ErrOwnItem)

	byOwner, err := store.GetBookingsByOwner(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, byOwner, 1)
	assert.True(t, byOwner[0].Start.Equal(start))

	const attempts = 5
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.UpdateBookingStatusWithVersion(ctx, booking.ID, 1, models.StatusApproved)
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, database.ErrConcurrentModification)
	}
	assert.Equal(t, 1, succeeded)

	stored, err := store.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
	assert.Equal(t, int64(2), stored.Version)

	item.Available = false
	require.NoError(t, store.UpdateItem(ctx, item))
	late := &models.Booking{ItemID: item.ID, BookerID: booker.ID, Start: start, End: start.Add(time.Hour)}
	assert.ErrorIs(t, store.CreateBookingWithLock(ctx, late), database.ErrNotAvailable)

	_, err = store.GetBooking(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestStoreCommentsAndSyncQueue(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	author := &models.User{Name: "Author", Email: "author@example.com"}
	require.NoError(t, store.CreateUser(ctx, author))
	item := &models.Item{Name: "Saw", Description: "Hand saw", Available: true, OwnerID: author.ID}
	require.NoError(t, store.CreateItem(ctx, item))

	require.NoError(t, store.CreateComment(ctx, &models.Comment{Text: "sharp", ItemID: item.ID, AuthorID: author.ID}))
	comments, err := store.GetCommentsByItem(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Author", comments[0].AuthorName)

	task := &models.SyncTask{TaskType: "upsert", BookingID: 1, Payload: "{}"}
	require.NoError(t, store.CreateSyncTask(ctx, task))
	pending, err := store.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil))
	pending, err = store.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStoreDeleteUserWithReferences(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	owner := &models.User{Name: "Owner", Email: "owner@example.com"}
	booker := &models.User{Name: "Booker", Email: "booker@example.com"}
	require.NoError(t, store.CreateUser(ctx, owner))
	require.NoError(t, store.CreateUser(ctx, booker))
	item := &models.Item{Name: "Drill", Description: "Cordless", Available: true, OwnerID: owner.ID}
	require.NoError(t, store.CreateItem(ctx, item))

	start := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	booking := &models.Booking{ItemID: item.ID, BookerID: booker.ID, Start: start, End: start.Add(time.Hour)}
	require.NoError(t, store.CreateBookingWithLock(ctx, booking))

	assert.ErrorIs(t, store.DeleteUser(ctx, booker.ID), domain.ErrUserInUse)
	assert.ErrorIs(t, store.DeleteUser(ctx, owner.ID), domain.ErrConflict)
	assert.ErrorIs(t, store.DeleteUser(ctx, 999), domain.ErrUserNotFound)
}
