package database

import (
	"context"
	"io"
	"testing"
	"time"

	"shareit/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	assert.NoError(t, err)
	db.Close()

	ctx := context.Background()

	t.Run("CreateUser_Error", func(t *testing.T) {
		err := db.CreateUser(ctx, &models.User{Name: "x", Email: "x@example.com"})
		assert.Error(t, err)
	})

	t.Run("GetUserByID_Error", func(t *testing.T) {
		_, err := db.GetUserByID(ctx, 1)
		assert.Error(t, err)
	})

	t.Run("CreateItem_Error", func(t *testing.T) {
		err := db.CreateItem(ctx, &models.Item{Name: "drill"})
		assert.Error(t, err)
	})

	t.Run("CreateBookingWithLock_Error", func(t *testing.T) {
		err := db.CreateBookingWithLock(ctx, &models.Booking{ItemID: 1, BookerID: 2, Start: time.Now(), End: time.Now().Add(time.Hour)})
		assert.Error(t, err)
	})

	t.Run("GetBookingsByOwner_Error", func(t *testing.T) {
		_, err := db.GetBookingsByOwner(ctx, 1)
		assert.Error(t, err)
	})

	t.Run("UpdateBookingStatus_Error", func(t *testing.T) {
		err := db.UpdateBookingStatusWithVersion(ctx, 1, 1, models.StatusApproved)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrConcurrentModification)
	})

	t.Run("CreateComment_Error", func(t *testing.T) {
		err := db.CreateComment(ctx, &models.Comment{Text: "hi"})
		assert.Error(t, err)
	})

	t.Run("CreateSyncTask_Error", func(t *testing.T) {
		err := db.CreateSyncTask(ctx, &models.SyncTask{})
		assert.Error(t, err)
	})
}
