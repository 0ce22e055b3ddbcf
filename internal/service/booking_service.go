package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"shareit/internal/database"
	"shareit/internal/domain"
	"shareit/internal/events"
	"shareit/internal/metrics"
	"shareit/internal/models"

	"github.com/rs/zerolog"
)

const (
	syncTaskUpsert       = "upsert"
	syncTaskUpdateStatus = "update_status"
)

// BookingService is the booking lifecycle engine: creation, the approval
// decision, retrieval and filtered listings.
type BookingService struct {
	repo         domain.BookingRepository
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	logger       *zerolog.Logger
	now          func() time.Time
}

func NewBookingService(repo domain.BookingRepository, eventBus domain.EventPublisher, sheetsWorker domain.SyncWorker, logger *zerolog.Logger) *BookingService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		repo:         repo,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock replaces the time source used for list classification.
func (s *BookingService) WithClock(now func() time.Time) *BookingService {
	s.now = now
	return s
}

func (s *BookingService) CreateBooking(ctx context.Context, bookerID int64, req models.NewBooking) (*models.BookingView, error) {
	defer metrics.ObserveDuration("create", time.Now())

	booker, err := s.repo.GetUserByID(ctx, bookerID)
	if err != nil {
		return nil, s.fail("create", err)
	}

	item, err := s.repo.GetItemByID(ctx, req.ItemID)
	if err != nil {
		return nil, s.fail("create", err)
	}

	if !item.Available {
		return nil, s.fail("create", domain.ErrItemUnavailable)
	}

	if item.OwnerID == bookerID {
		return nil, s.fail("create", domain.ErrOwnItem)
	}

	if err := validateRange(req.Start, req.End); err != nil {
		return nil, s.fail("create", err)
	}

	booking := &models.Booking{
		ItemID:   item.ID,
		BookerID: bookerID,
		Start:    req.Start,
		End:      req.End,
	}
	if err := s.repo.CreateBookingWithLock(ctx, booking); err != nil {
		if errors.Is(err, database.ErrNotAvailable) {
			err = domain.ErrItemUnavailable
		}
		return nil, s.fail("create", err)
	}

	metrics.IncBookingCreated()
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("item_id", item.ID).
		Int64("booker_id", bookerID).
		Msg("Booking created")

	view := project(booking, booker, item)
	s.publishEvent(events.EventBookingCreated, view, bookerID)
	s.enqueueSync(ctx, syncTaskUpsert, view)

	return view, nil
}

func validateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return domain.ErrMissingTime
	}
	if !start.Before(end) {
		return domain.ErrInvalidRange
	}
	return nil
}

// DecideBooking moves a WAITING booking to APPROVED or REJECTED on behalf of
// the item owner. Only one of several concurrent decisions can succeed.
func (s *BookingService) DecideBooking(ctx context.Context, userID, bookingID int64, approved bool) (*models.BookingView, error) {
	defer metrics.ObserveDuration("decide", time.Now())

	access, err := s.resolveAccess(ctx, userID, bookingID)
	if err != nil {
		return nil, s.fail("decide", err)
	}
	if !access.canDecide() {
		return nil, s.fail("decide", domain.ErrNotBookingOwner)
	}

	booking := access.booking
	if booking.Status != models.StatusWaiting {
		return nil, s.fail("decide", domain.ErrAlreadyDecided)
	}

	status := models.StatusRejected
	if approved {
		status = models.StatusApproved
	}

	if err := s.repo.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version, status); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			err = domain.ErrAlreadyDecided
		}
		return nil, s.fail("decide", err)
	}
	booking.Status = status
	booking.Version++

	booker, err := s.repo.GetUserByID(ctx, booking.BookerID)
	if err != nil {
		return nil, s.fail("decide", err)
	}

	metrics.IncDecision(status.String())
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("owner_id", userID).
		Str("status", status.String()).
		Msg("Booking decided")

	view := project(booking, booker, access.item)
	eventType := events.EventBookingRejected
	if approved {
		eventType = events.EventBookingApproved
	}
	s.publishEvent(eventType, view, userID)
	s.enqueueSync(ctx, syncTaskUpdateStatus, view)

	return view, nil
}

// GetBooking returns a booking to its booker or its item owner. Anyone else
// gets the same error as for a missing booking.
func (s *BookingService) GetBooking(ctx context.Context, userID, bookingID int64) (*models.BookingView, error) {
	access, err := s.resolveAccess(ctx, userID, bookingID)
	if err != nil {
		return nil, s.fail("get", err)
	}
	if !access.canView() {
		return nil, s.fail("get", domain.ErrBookingHidden)
	}

	booker, err := s.repo.GetUserByID(ctx, access.booking.BookerID)
	if err != nil {
		return nil, s.fail("get", err)
	}
	return project(access.booking, booker, access.item), nil
}

// ListBookerBookings lists the bookings made by userID that match state.
func (s *BookingService) ListBookerBookings(ctx context.Context, userID int64, state string, page models.Page) ([]*models.BookingView, error) {
	return s.list(ctx, "list_booker", userID, state, page, s.repo.GetBookingsByBooker)
}

// ListOwnerBookings lists the bookings of items owned by ownerID that match state.
func (s *BookingService) ListOwnerBookings(ctx context.Context, ownerID int64, state string, page models.Page) ([]*models.BookingView, error) {
	return s.list(ctx, "list_owner", ownerID, state, page, s.repo.GetBookingsByOwner)
}

type bookingFetcher func(ctx context.Context, userID int64) ([]*models.Booking, error)

func (s *BookingService) list(ctx context.Context, op string, userID int64, rawState string, page models.Page, fetch bookingFetcher) ([]*models.BookingView, error) {
	defer metrics.ObserveDuration(op, time.Now())

	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		return nil, s.fail(op, err)
	}

	state, ok := models.ParseBookingState(rawState)
	if !ok {
		return nil, s.fail(op, domain.Errorf(domain.ErrInvalidArgument, "unknown state: %s", rawState))
	}

	if !page.Valid() {
		return nil, s.fail(op, domain.ErrInvalidPage)
	}

	candidates, err := fetch(ctx, userID)
	if err != nil {
		return nil, s.fail(op, err)
	}

	now := s.now()
	matched := filterBookings(candidates, state, now)
	sortNewestFirst(matched)

	lo, hi := page.Bounds(len(matched))
	views, err := s.projectAll(ctx, matched[lo:hi])
	if err != nil {
		return nil, s.fail(op, err)
	}
	return views, nil
}

func filterBookings(bookings []*models.Booking, state models.BookingState, now time.Time) []*models.Booking {
	matched := make([]*models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if state.Matches(b, now) {
			matched = append(matched, b)
		}
	}
	return matched
}

func sortNewestFirst(bookings []*models.Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		if !bookings[i].Start.Equal(bookings[j].Start) {
			return bookings[i].Start.After(bookings[j].Start)
		}
		return bookings[i].ID > bookings[j].ID
	})
}

// projectAll resolves booker and item summaries, loading each once.
func (s *BookingService) projectAll(ctx context.Context, bookings []*models.Booking) ([]*models.BookingView, error) {
	users := make(map[int64]*models.User)
	items := make(map[int64]*models.Item)

	views := make([]*models.BookingView, 0, len(bookings))
	for _, b := range bookings {
		booker, ok := users[b.BookerID]
		if !ok {
			u, err := s.repo.GetUserByID(ctx, b.BookerID)
			if err != nil {
				return nil, err
			}
			users[b.BookerID] = u
			booker = u
		}

		item, ok := items[b.ItemID]
		if !ok {
			it, err := s.repo.GetItemByID(ctx, b.ItemID)
			if err != nil {
				return nil, err
			}
			items[b.ItemID] = it
			item = it
		}

		views = append(views, project(b, booker, item))
	}
	return views, nil
}

func project(b *models.Booking, booker *models.User, item *models.Item) *models.BookingView {
	return &models.BookingView{
		ID:     b.ID,
		Start:  b.Start,
		End:    b.End,
		Status: b.Status,
		Booker: models.UserSummary{ID: booker.ID, Name: booker.Name},
		Item:   models.ItemSummary{ID: item.ID, Name: item.Name, OwnerID: item.OwnerID},
	}
}

func (s *BookingService) fail(op string, err error) error {
	metrics.IncError(op, domain.KindName(err))
	if domain.Kind(err) == nil {
		s.logger.Error().Err(err).Str("operation", op).Msg("Booking operation failed")
	}
	return err
}

func (s *BookingService) publishEvent(eventType string, view *models.BookingView, actorID int64) {
	if s.eventBus == nil {
		return
	}
	payload := events.BookingEventPayload{
		BookingID: view.ID,
		ItemID:    view.Item.ID,
		ItemName:  view.Item.Name,
		OwnerID:   view.Item.OwnerID,
		BookerID:  view.Booker.ID,
		Status:    view.Status.String(),
		Start:     view.Start,
		End:       view.End,
		ActorID:   actorID,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Int64("booking_id", view.ID).Msg("Failed to publish event")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, taskType string, view *models.BookingView) {
	if s.sheetsWorker == nil {
		return
	}
	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, view); err != nil {
		s.logger.Error().Err(err).Str("task_type", taskType).Int64("booking_id", view.ID).Msg("Failed to enqueue sync task")
	}
}
