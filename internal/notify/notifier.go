package notify

import (
	"context"
	"fmt"
	"time"

	"shareit/internal/domain"
	"shareit/internal/events"
	"shareit/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	timeLayout  = "02.01.2006 15:04"
	sendTimeout = 5 * time.Second
)

// Notifier delivers booking and comment events to the Telegram chats of the
// users involved. Users without a chat id are skipped.
type Notifier struct {
	bot    domain.TelegramSender
	users  domain.UserDirectory
	logger *zerolog.Logger
}

func NewNotifier(bot domain.TelegramSender, users domain.UserDirectory, logger *zerolog.Logger) *Notifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Notifier{bot: bot, users: users, logger: logger}
}

// Attach subscribes the notifier to every event type it understands.
func (n *Notifier) Attach(bus *events.EventBus) {
	bus.SubscribeAll(n.Handle)
}

func (n *Notifier) Handle(event *events.Event) error {
	switch event.Type {
	case events.EventBookingCreated, events.EventBookingApproved, events.EventBookingRejected:
		var p events.BookingEventPayload
		if err := event.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", event.Type, err)
		}
		return n.notifyBooking(event.Type, p)
	case events.EventCommentAdded:
		var p events.CommentEventPayload
		if err := event.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", event.Type, err)
		}
		return n.send(p.OwnerID, commentText(p))
	}
	return nil
}

func (n *Notifier) notifyBooking(eventType string, p events.BookingEventPayload) error {
	if eventType == events.EventBookingCreated {
		return n.send(p.OwnerID, bookingText(eventType, p))
	}
	return n.send(p.BookerID, bookingText(eventType, p))
}

func (n *Notifier) send(userID int64, text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	user, err := n.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve recipient %d: %w", userID, err)
	}
	if user.TelegramChatID == nil {
		n.logger.Debug().Int64("user_id", userID).Msg("No telegram chat, notification skipped")
		return nil
	}

	msg := tgbotapi.NewMessage(*user.TelegramChatID, text)
	msg.ParseMode = models.ParseModeMarkdown
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	n.logger.Info().Int64("user_id", userID).Msg("Notification sent")
	return nil
}

func bookingText(eventType string, p events.BookingEventPayload) string {
	item := escape(p.ItemName)
	period := fmt.Sprintf("%s - %s", p.Start.Format(timeLayout), p.End.Format(timeLayout))

	switch eventType {
	case events.EventBookingCreated:
		return fmt.Sprintf("*New booking request* #%d\nItem: %s\nPeriod: %s\nAwaiting your decision.", p.BookingID, item, period)
	case events.EventBookingApproved:
		return fmt.Sprintf("*Booking approved* #%d\nItem: %s\nPeriod: %s", p.BookingID, item, period)
	default:
		return fmt.Sprintf("*Booking rejected* #%d\nItem: %s\nPeriod: %s", p.BookingID, item, period)
	}
}

func commentText(p events.CommentEventPayload) string {
	return fmt.Sprintf("*New comment* on item #%d:\n%s", p.ItemID, escape(p.Text))
}

func escape(s string) string {
	return tgbotapi.EscapeText(models.ParseModeMarkdown, s)
}
