// Package bot is the Telegram front end of the booking engine. Users are
// matched to chats by their telegram_chat_id.
package bot

import (
	"context"
	"time"

	"shareit/internal/domain"
	"shareit/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	updateTimeout  = 30 * time.Second
	listLimit      = 10
	rateLimitCount = 20
	rateLimitSpan  = time.Minute
)

// TelegramAPI is the part of *tgbotapi.BotAPI the bot drives.
type TelegramAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	StopReceivingUpdates()
}

// BookingOperations is what the bot asks of the booking engine.
type BookingOperations interface {
	DecideBooking(ctx context.Context, userID, bookingID int64, approved bool) (*models.BookingView, error)
	ListBookerBookings(ctx context.Context, userID int64, state string, page models.Page) ([]*models.BookingView, error)
	ListOwnerBookings(ctx context.Context, ownerID int64, state string, page models.Page) ([]*models.BookingView, error)
}

type UserLister interface {
	ListUsers(ctx context.Context) ([]*models.User, error)
}

type Bot struct {
	api      TelegramAPI
	bookings BookingOperations
	users    UserLister
	limiter  domain.RateLimiter
	metrics  *Metrics
	logger   *zerolog.Logger
}

func NewBot(api TelegramAPI, bookings BookingOperations, users UserLister, limiter domain.RateLimiter, metrics *Metrics, logger *zerolog.Logger) *Bot {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Bot{
		api:      api,
		bookings: bookings,
		users:    users,
		limiter:  limiter,
		metrics:  metrics,
		logger:   logger,
	}
}

// Start consumes updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info().Msg("Telegram bot started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.UpdateProcessingTime.Observe(time.Since(start).Seconds())
		}
	}()

	updateCtx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.NewString()).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		chatID := chatOf(update)
		if chatID == 0 {
			return
		}

		if !b.allow(updateCtx, chatID) {
			if update.Message != nil {
				b.sendText(chatID, "You are sending messages too often. Please wait a moment.")
			}
			return
		}

		switch {
		case update.CallbackQuery != nil:
			b.handleCallback(updateCtx, update.CallbackQuery)
		case update.Message != nil && update.Message.IsCommand():
			b.handleCommand(updateCtx, update.Message)
		}
	})
}

func chatOf(update tgbotapi.Update) int64 {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		return update.CallbackQuery.Message.Chat.ID
	case update.Message != nil:
		return update.Message.Chat.ID
	default:
		return 0
	}
}

// allow applies the per-chat rate limit; limiter errors let the update through.
func (b *Bot) allow(ctx context.Context, chatID int64) bool {
	if b.limiter == nil {
		return true
	}
	allowed, err := b.limiter.CheckRateLimit(ctx, chatKey(chatID), rateLimitCount, rateLimitSpan)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", chatID).Msg("Rate limit check failed")
		return true
	}
	if !allowed {
		zerolog.Ctx(ctx).Warn().Int64("chat_id", chatID).Msg("Rate limit exceeded")
	}
	return allowed
}

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			if b.metrics != nil {
				b.metrics.ErrorsTotal.Inc()
			}
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

// userByChat finds the user linked to chatID.
func (b *Bot) userByChat(ctx context.Context, chatID int64) (*models.User, bool) {
	users, err := b.users.ListUsers(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to list users")
		return nil, false
	}
	for _, u := range users {
		if u.TelegramChatID != nil && *u.TelegramChatID == chatID {
			return u, true
		}
	}
	return nil, false
}

func (b *Bot) sendText(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(msg tgbotapi.Chattable) {
	if _, err := b.api.Send(msg); err != nil {
		if b.metrics != nil {
			b.metrics.ErrorsTotal.Inc()
		}
		b.logger.Error().Err(err).Msg("Failed to send telegram message")
	}
}
