package bot

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"shareit/internal/domain"
	"shareit/internal/models"
	"shareit/internal/repository"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests int
	updates  chan tgbotapi.Update
	stopped  bool
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return f.updates }

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

type decision struct {
	userID, bookingID int64
	approved          bool
}

type fakeBookings struct {
	views     []*models.BookingView
	decisions []decision
	err       error
	panics    bool
}

func (f *fakeBookings) DecideBooking(_ context.Context, userID, bookingID int64, approved bool) (*models.BookingView, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.decisions = append(f.decisions, decision{userID, bookingID, approved})
	v := *f.views[0]
	v.Status = models.StatusRejected
	if approved {
		v.Status = models.StatusApproved
	}
	return &v, nil
}

func (f *fakeBookings) ListBookerBookings(context.Context, int64, string, models.Page) ([]*models.BookingView, error) {
	if f.panics {
		panic("boom")
	}
	return f.views, f.err
}

func (f *fakeBookings) ListOwnerBookings(_ context.Context, _ int64, state string, _ models.Page) ([]*models.BookingView, error) {
	if state != string(models.StatusWaiting) {
		return nil, errors.New("unexpected state " + state)
	}
	return f.views, f.err
}

type fakeUsers []*models.User

func (f fakeUsers) ListUsers(context.Context) ([]*models.User, error) { return f, nil }

const (
	ownerChat    int64 = 1001
	strangerChat int64 = 2002
)

func newTestBot(bookings *fakeBookings, limiter domain.RateLimiter) (*Bot, *fakeAPI, *Metrics) {
	chat := ownerChat
	users := fakeUsers{{ID: 1, Name: "Olga", TelegramChatID: &chat}}
	api := &fakeAPI{updates: make(chan tgbotapi.Update, 4)}
	metrics := NewMetrics(prometheus.NewRegistry())
	logger := zerolog.New(io.Discard)
	return NewBot(api, bookings, users, limiter, metrics, &logger), api, metrics
}

func waitingView() *models.BookingView {
	start := time.Date(2030, 1, 10, 10, 0, 0, 0, time.UTC)
	return &models.BookingView{
		ID:     7,
		Start:  start,
		End:    start.Add(2 * time.Hour),
		Status: models.StatusWaiting,
		Booker: models.UserSummary{ID: 2, Name: "Boris"},
		Item:   models.ItemSummary{ID: 5, Name: "Drill", OwnerID: 1},
	}
}

func command(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}}
}

func callback(chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 55, Chat: &tgbotapi.Chat{ID: chatID}},
	}}
}

func TestRequestsCommandSendsDecisionButtons(t *testing.T) {
	b, api, metrics := newTestBot(&fakeBookings{views: []*models.BookingView{waitingView()}}, nil)

	b.processUpdate(context.Background(), command(ownerChat, "/requests"))

	require.Len(t, api.sent, 1)
	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Contains(t, msg.Text, "#7 Drill, 10.01.2030 10:00 - 10.01.2030 12:00 [WAITING]")
	assert.Contains(t, msg.Text, "Boris")

	keyboard, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, keyboard.InlineKeyboard[0], 2)
	assert.Equal(t, "approve:7", *keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "reject:7", *keyboard.InlineKeyboard[0][1].CallbackData)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CommandsProcessed.WithLabelValues("requests")))
}

func TestDecisionCallback(t *testing.T) {
	bookings := &fakeBookings{views: []*models.BookingView{waitingView()}}
	b, api, metrics := newTestBot(bookings, nil)

	b.processUpdate(context.Background(), callback(ownerChat, "approve:7"))

	assert.Equal(t, 1, api.requests)
	require.Len(t, bookings.decisions, 1)
	assert.Equal(t, decision{userID: 1, bookingID: 7, approved: true}, bookings.decisions[0])

	texts := api.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "[APPROVED]")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Decisions.WithLabelValues("APPROVED")))

	b.processUpdate(context.Background(), callback(ownerChat, "unknown:7"))
	assert.Len(t, bookings.decisions, 1)
}

func TestDecisionCallbackReportsRejection(t *testing.T) {
	bookings := &fakeBookings{views: []*models.BookingView{waitingView()}, err: domain.ErrAlreadyDecided}
	b, api, _ := newTestBot(bookings, nil)

	b.processUpdate(context.Background(), callback(ownerChat, "reject:7"))

	assert.Equal(t, []string{"Cannot do that: booking status already decided"}, api.texts())
}

func TestUnlinkedChat(t *testing.T) {
	bookings := &fakeBookings{views: []*models.BookingView{waitingView()}}
	b, api, _ := newTestBot(bookings, nil)

	b.processUpdate(context.Background(), command(strangerChat, "/start"))
	b.processUpdate(context.Background(), callback(strangerChat, "approve:7"))

	texts := api.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "2002")
	assert.Empty(t, bookings.decisions)
}

func TestBookingsCommand(t *testing.T) {
	b, api, _ := newTestBot(&fakeBookings{}, nil)
	b.processUpdate(context.Background(), command(ownerChat, "/bookings"))
	assert.Equal(t, []string{"You have no bookings yet."}, api.texts())

	b, api, metrics := newTestBot(&fakeBookings{err: errors.New("db down")}, nil)
	b.processUpdate(context.Background(), command(ownerChat, "/bookings"))
	assert.Equal(t, []string{"Something went wrong, please try again later."}, api.texts())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ErrorsTotal))
}

func TestRecoveryAndRateLimit(t *testing.T) {
	b, _, metrics := newTestBot(&fakeBookings{panics: true}, nil)
	assert.NotPanics(t, func() {
		b.processUpdate(context.Background(), command(ownerChat, "/bookings"))
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ErrorsTotal))

	b, api, _ := newTestBot(&fakeBookings{}, repository.NewMemoryRateLimiter())
	for i := 0; i < rateLimitCount+1; i++ {
		b.processUpdate(context.Background(), command(ownerChat, "/help"))
	}
	texts := api.texts()
	require.Len(t, texts, rateLimitCount+1)
	assert.Contains(t, texts[rateLimitCount], "too often")
}

func TestStartStopsOnCancel(t *testing.T) {
	b, api, _ := newTestBot(&fakeBookings{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		b.Start(ctx)
		close(done)
	}()

	api.updates <- command(ownerChat, "/help")
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bot did not stop")
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	assert.True(t, api.stopped)
}
