package service

import (
	"context"

	"shareit/internal/models"
)

type accessRole int

const (
	roleStranger accessRole = iota
	roleBooker
	roleOwner
)

// bookingAccess is the capability an acting user holds over one booking.
type bookingAccess struct {
	booking *models.Booking
	item    *models.Item
	role    accessRole
}

func (a *bookingAccess) canView() bool {
	return a.role != roleStranger
}

func (a *bookingAccess) canDecide() bool {
	return a.role == roleOwner
}

// resolveAccess loads the booking with its item and tags the caller's role.
// An item owner who also booked the item is treated as the owner.
func (s *BookingService) resolveAccess(ctx context.Context, userID, bookingID int64) (*bookingAccess, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.GetItemByID(ctx, booking.ItemID)
	if err != nil {
		return nil, err
	}

	access := &bookingAccess{booking: booking, item: item, role: roleStranger}
	switch userID {
	case item.OwnerID:
		access.role = roleOwner
	case booking.BookerID:
		access.role = roleBooker
	}
	return access, nil
}
