package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"shareit/internal/domain"
	"shareit/internal/events"
	"shareit/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

type userMap map[int64]*models.User

func (m userMap) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func chat(id int64) *int64 { return &id }

func setup() (*fakeBot, *events.EventBus) {
	users := userMap{
		1: {ID: 1, Name: "Owner", TelegramChatID: chat(100)},
		2: {ID: 2, Name: "Booker", TelegramChatID: chat(200)},
		3: {ID: 3, Name: "Silent"},
	}
	bot := &fakeBot{}
	bus := events.NewEventBus()
	NewNotifier(bot, users, nil).Attach(bus)
	return bot, bus
}

func bookingPayload(bookerID int64) events.BookingEventPayload {
	start := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	return events.BookingEventPayload{
		BookingID: 9, ItemID: 5, ItemName: "Drill_X", OwnerID: 1, BookerID: bookerID,
		Status: "WAITING", Start: start, End: start.Add(2 * time.Hour),
	}
}

func TestCreatedGoesToOwner(t *testing.T) {
	bot, bus := setup()
	require.NoError(t, bus.PublishJSON(events.EventBookingCreated, bookingPayload(2)))

	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(100), bot.sent[0].ChatID)
	assert.Equal(t, models.ParseModeMarkdown, bot.sent[0].ParseMode)
	assert.Contains(t, bot.sent[0].Text, "#9")
	assert.Contains(t, bot.sent[0].Text, `Drill\_X`)
	assert.Contains(t, bot.sent[0].Text, "10.01.2025 10:00 - 10.01.2025 12:00")
}

func TestDecisionGoesToBooker(t *testing.T) {
	bot, bus := setup()
	require.NoError(t, bus.PublishJSON(events.EventBookingApproved, bookingPayload(2)))
	require.NoError(t, bus.PublishJSON(events.EventBookingRejected, bookingPayload(2)))

	require.Len(t, bot.sent, 2)
	assert.Equal(t, int64(200), bot.sent[0].ChatID)
	assert.Contains(t, bot.sent[0].Text, "approved")
	assert.Contains(t, bot.sent[1].Text, "rejected")
}

func TestRecipientWithoutChatIsSkipped(t *testing.T) {
	bot, bus := setup()
	require.NoError(t, bus.PublishJSON(events.EventBookingApproved, bookingPayload(3)))
	assert.Empty(t, bot.sent)
}

func TestCommentGoesToOwner(t *testing.T) {
	bot, bus := setup()
	require.NoError(t, bus.PublishJSON(events.EventCommentAdded, events.CommentEventPayload{CommentID: 1, ItemID: 5, OwnerID: 1, AuthorID: 2, Text: "great"}))
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(100), bot.sent[0].ChatID)
	assert.Contains(t, bot.sent[0].Text, "great")
}

func TestFailuresReachErrorHandler(t *testing.T) {
	bot := &fakeBot{err: errors.New("telegram down")}
	bus := events.NewEventBus()
	NewNotifier(bot, userMap{1: {ID: 1, TelegramChatID: chat(100)}}, nil).Attach(bus)

	var failures []error
	bus.OnError(func(_ *events.Event, err error) { failures = append(failures, err) })

	require.NoError(t, bus.PublishJSON(events.EventBookingCreated, bookingPayload(2)))
	require.NoError(t, bus.PublishJSON(events.EventBookingApproved, bookingPayload(42)))

	require.Len(t, failures, 2)
	assert.ErrorContains(t, failures[0], "telegram down")
	assert.ErrorIs(t, failures[1], domain.ErrNotFound)
}
