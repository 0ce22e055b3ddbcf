package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"shareit/internal/domain"
	"shareit/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	cmdStart    = "start"
	cmdHelp     = "help"
	cmdBookings = "bookings"
	cmdRequests = "requests"

	callbackApprove = "approve:"
	callbackReject  = "reject:"

	timeLayout = "02.01.2006 15:04"
)

const helpText = `/bookings - your bookings as a renter
/requests - booking requests waiting for your decision`

func chatKey(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if b.metrics != nil {
		b.metrics.CommandsProcessed.WithLabelValues(msg.Command()).Inc()
	}

	chatID := msg.Chat.ID
	user, linked := b.userByChat(ctx, chatID)

	switch msg.Command() {
	case cmdStart, cmdHelp:
		if !linked {
			b.sendText(chatID, fmt.Sprintf("This chat is not linked to an account. Set telegram_chat_id to %d in your profile.", chatID))
			return
		}
		b.sendText(chatID, fmt.Sprintf("Hello, %s!\n%s", user.Name, helpText))
	case cmdBookings:
		if !linked {
			b.sendText(chatID, "This chat is not linked to an account.")
			return
		}
		b.sendBookerBookings(ctx, chatID, user.ID)
	case cmdRequests:
		if !linked {
			b.sendText(chatID, "This chat is not linked to an account.")
			return
		}
		b.sendPendingRequests(ctx, chatID, user.ID)
	default:
		b.sendText(chatID, helpText)
	}
}

func (b *Bot) sendBookerBookings(ctx context.Context, chatID, userID int64) {
	views, err := b.bookings.ListBookerBookings(ctx, userID, "ALL", models.NewPage(0, listLimit))
	if err != nil {
		b.reportError(ctx, chatID, err)
		return
	}
	if len(views) == 0 {
		b.sendText(chatID, "You have no bookings yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Your bookings:\n")
	for _, v := range views {
		sb.WriteString(describe(v))
		sb.WriteString("\n")
	}
	b.sendText(chatID, sb.String())
}

// sendPendingRequests sends one message per WAITING booking with decision buttons.
func (b *Bot) sendPendingRequests(ctx context.Context, chatID, ownerID int64) {
	views, err := b.bookings.ListOwnerBookings(ctx, ownerID, string(models.StatusWaiting), models.NewPage(0, listLimit))
	if err != nil {
		b.reportError(ctx, chatID, err)
		return
	}
	if len(views) == 0 {
		b.sendText(chatID, "No requests are waiting for you.")
		return
	}

	for _, v := range views {
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("%s\nRenter: %s", describe(v), v.Booker.Name))
		msg.ReplyMarkup = decisionKeyboard(v.ID)
		b.send(msg)
	}
}

func decisionKeyboard(bookingID int64) tgbotapi.InlineKeyboardMarkup {
	id := strconv.FormatInt(bookingID, 10)
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Approve", callbackApprove+id),
			tgbotapi.NewInlineKeyboardButtonData("Reject", callbackReject+id),
		),
	)
}

func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	// убираем "часики" сразу
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("Callback answer failed")
	}

	var approved bool
	var raw string
	switch {
	case strings.HasPrefix(callback.Data, callbackApprove):
		approved, raw = true, strings.TrimPrefix(callback.Data, callbackApprove)
	case strings.HasPrefix(callback.Data, callbackReject):
		raw = strings.TrimPrefix(callback.Data, callbackReject)
	default:
		return
	}

	chatID := callback.Message.Chat.ID
	bookingID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return
	}

	owner, linked := b.userByChat(ctx, chatID)
	if !linked {
		b.sendText(chatID, "This chat is not linked to an account.")
		return
	}

	view, err := b.bookings.DecideBooking(ctx, owner.ID, bookingID, approved)
	if err != nil {
		b.reportError(ctx, chatID, err)
		return
	}

	if b.metrics != nil {
		b.metrics.Decisions.WithLabelValues(view.Status.String()).Inc()
	}
	edit := tgbotapi.NewEditMessageText(chatID, callback.Message.MessageID, fmt.Sprintf("%s\nRenter: %s", describe(view), view.Booker.Name))
	b.send(edit)
}

// reportError answers with the error text for rejected requests and a generic
// message otherwise.
func (b *Bot) reportError(ctx context.Context, chatID int64, err error) {
	switch domain.Kind(err) {
	case domain.ErrNotFound, domain.ErrInvalidArgument, domain.ErrInvalidState:
		b.sendText(chatID, "Cannot do that: "+err.Error())
		return
	}
	zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", chatID).Msg("Bot request failed")
	if b.metrics != nil {
		b.metrics.ErrorsTotal.Inc()
	}
	b.sendText(chatID, "Something went wrong, please try again later.")
}

func describe(v *models.BookingView) string {
	return fmt.Sprintf("#%d %s, %s - %s [%s]", v.ID, v.Item.Name, v.Start.Format(timeLayout), v.End.Format(timeLayout), v.Status)
}
