package service

import (
	"context"
	"strings"
	"time"

	"shareit/internal/domain"
	"shareit/internal/events"
	"shareit/internal/models"

	"github.com/rs/zerolog"
)

// ItemService is the item catalog with comments.
type ItemService struct {
	repo     domain.CatalogRepository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewItemService(repo domain.CatalogRepository, eventBus domain.EventPublisher, logger *zerolog.Logger) *ItemService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ItemService{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source used for booking hints and comment checks.
func (s *ItemService) WithClock(now func() time.Time) *ItemService {
	s.now = now
	return s
}

func (s *ItemService) CreateItem(ctx context.Context, ownerID int64, req models.NewItem) (*models.Item, error) {
	if _, err := s.repo.GetUserByID(ctx, ownerID); err != nil {
		return nil, err
	}

	item := &models.Item{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		OwnerID:     ownerID,
		RequestID:   req.RequestID,
	}
	switch {
	case item.Name == "":
		return nil, domain.NewError(domain.ErrInvalidArgument, "name is required")
	case item.Description == "":
		return nil, domain.NewError(domain.ErrInvalidArgument, "description is required")
	case req.Available == nil:
		return nil, domain.NewError(domain.ErrInvalidArgument, "available is required")
	}
	item.Available = *req.Available

	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("item_id", item.ID).Int64("owner_id", ownerID).Msg("Item created")
	return item, nil
}

// UpdateItem applies the non-nil, non-blank fields of patch. Only the owner may update.
func (s *ItemService) UpdateItem(ctx context.Context, userID, itemID int64, patch models.ItemPatch) (*models.Item, error) {
	item, err := s.repo.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != userID {
		return nil, domain.ErrNotItemOwner
	}

	if patch.Name != nil && strings.TrimSpace(*patch.Name) != "" {
		item.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil && strings.TrimSpace(*patch.Description) != "" {
		item.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Available != nil {
		item.Available = *patch.Available
	}

	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// GetItem returns the item with its comments. Booking hints are only
// included when userID owns the item.
func (s *ItemService) GetItem(ctx context.Context, userID, itemID int64) (*models.ItemDetails, error) {
	item, err := s.repo.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, item, item.OwnerID == userID, s.now())
}

// ListOwnerItems returns the owner's items with booking hints, ordered by id.
func (s *ItemService) ListOwnerItems(ctx context.Context, ownerID int64) ([]*models.ItemDetails, error) {
	if _, err := s.repo.GetUserByID(ctx, ownerID); err != nil {
		return nil, err
	}

	items, err := s.repo.GetItemsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := make([]*models.ItemDetails, 0, len(items))
	for _, item := range items {
		d, err := s.details(ctx, item, true, now)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}

// SearchItems matches available items by name or description. Blank text finds nothing.
func (s *ItemService) SearchItems(ctx context.Context, text string) ([]*models.Item, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []*models.Item{}, nil
	}
	items, err := s.repo.SearchAvailableItems(ctx, text)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*models.Item{}
	}
	return items, nil
}

// AddComment stores a comment from a user who has finished an approved booking of the item.
func (s *ItemService) AddComment(ctx context.Context, authorID, itemID int64, text string) (*models.Comment, error) {
	author, err := s.repo.GetUserByID(ctx, authorID)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ErrEmptyComment
	}

	bookings, err := s.repo.GetBookingsByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !hasFinishedBooking(bookings, authorID, now) {
		return nil, domain.ErrNotBooked
	}

	comment := &models.Comment{
		Text:       text,
		ItemID:     itemID,
		AuthorID:   authorID,
		AuthorName: author.Name,
		Created:    now,
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, err
	}

	if s.eventBus != nil {
		payload := events.CommentEventPayload{
			CommentID: comment.ID,
			ItemID:    itemID,
			OwnerID:   item.OwnerID,
			AuthorID:  authorID,
			Text:      text,
		}
		if err := s.eventBus.PublishJSON(events.EventCommentAdded, payload); err != nil {
			s.logger.Error().Err(err).Int64("comment_id", comment.ID).Msg("Failed to publish event")
		}
	}

	return comment, nil
}

func hasFinishedBooking(bookings []*models.Booking, bookerID int64, now time.Time) bool {
	for _, b := range bookings {
		if b.BookerID == bookerID && b.Status == models.StatusApproved && b.End.Before(now) {
			return true
		}
	}
	return false
}

func (s *ItemService) details(ctx context.Context, item *models.Item, withHints bool, now time.Time) (*models.ItemDetails, error) {
	comments, err := s.repo.GetCommentsByItem(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []models.Comment{}
	}

	d := &models.ItemDetails{Item: *item, Comments: comments}
	if !withHints {
		return d, nil
	}

	bookings, err := s.repo.GetBookingsByItem(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	d.LastBooking, d.NextBooking = bookingHints(bookings, now)
	return d, nil
}

// bookingHints picks the latest approved booking that started before now and
// the earliest approved booking that starts after now.
func bookingHints(bookings []*models.Booking, now time.Time) (last, next *models.BookingShort) {
	var lastB, nextB *models.Booking
	for _, b := range bookings {
		if b.Status != models.StatusApproved {
			continue
		}
		if b.Start.Before(now) && (lastB == nil || b.Start.After(lastB.Start)) {
			lastB = b
		}
		if b.Start.After(now) && (nextB == nil || b.Start.Before(nextB.Start)) {
			nextB = b
		}
	}
	return shortOf(lastB), shortOf(nextB)
}

func shortOf(b *models.Booking) *models.BookingShort {
	if b == nil {
		return nil
	}
	return &models.BookingShort{ID: b.ID, BookerID: b.BookerID, Start: b.Start, End: b.End}
}
