package domain

import (
	"context"
	"time"

	"shareit/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UserDirectory is the read side of the user store consumed by the booking engine.
type UserDirectory interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// ItemCatalog is the read side of the item store consumed by the booking engine.
type ItemCatalog interface {
	GetItemByID(ctx context.Context, id int64) (*models.Item, error)
}

type UserStore interface {
	UserDirectory
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
	GetAllUsers(ctx context.Context) ([]*models.User, error)
	DeleteUser(ctx context.Context, id int64) error
}

type ItemStore interface {
	ItemCatalog
	CreateItem(ctx context.Context, item *models.Item) error
	UpdateItem(ctx context.Context, item *models.Item) error
	GetItemsByOwner(ctx context.Context, ownerID int64) ([]*models.Item, error)
	SearchAvailableItems(ctx context.Context, text string) ([]*models.Item, error)
}

type BookingStore interface {
	// CreateBookingWithLock re-reads the item inside the insert transaction.
	CreateBookingWithLock(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	// UpdateBookingStatusWithVersion only moves a WAITING booking whose version matches.
	UpdateBookingStatusWithVersion(ctx context.Context, id, version int64, status models.BookingStatus) error
	GetBookingsByBooker(ctx context.Context, bookerID int64) ([]*models.Booking, error)
	GetBookingsByOwner(ctx context.Context, ownerID int64) ([]*models.Booking, error)
	GetBookingsByItem(ctx context.Context, itemID int64) ([]*models.Booking, error)
}

type CommentStore interface {
	CreateComment(ctx context.Context, comment *models.Comment) error
	GetCommentsByItem(ctx context.Context, itemID int64) ([]models.Comment, error)
}

type SyncQueue interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// BookingRepository is what the booking engine reads and writes.
type BookingRepository interface {
	UserDirectory
	ItemCatalog
	BookingStore
}

// CatalogRepository backs the item catalog and comments.
type CatalogRepository interface {
	UserDirectory
	ItemStore
	CommentStore
	GetBookingsByItem(ctx context.Context, itemID int64) ([]*models.Booking, error)
}

// Repository is implemented by every storage engine.
type Repository interface {
	UserStore
	ItemStore
	BookingStore
	CommentStore
	SyncQueue
	Close() error
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.BookingView) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
