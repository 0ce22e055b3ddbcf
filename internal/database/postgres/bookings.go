package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shareit/internal/database"
	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
)

var _ domain.Repository = (*Store)(nil)

var bookingColumns = []any{
	goqu.I("b.id"), goqu.I("b.item_id"), goqu.I("b.booker_id"), goqu.I("b.start_date"), goqu.I("b.end_date"),
	goqu.I("b.status"), goqu.I("b.version"), goqu.I("b.created_at"), goqu.I("b.updated_at"),
}

func bookingsFrom() *goqu.SelectDataset {
	return dialect.From(goqu.T(tableBookings).As("b")).Select(bookingColumns...)
}

// CreateBookingWithLock locks the item row, re-checks availability and
// ownership, and inserts a WAITING booking in the same transaction.
func (s *Store) CreateBookingWithLock(ctx context.Context, booking *models.Booking) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query, args, err := lockItemQuery(booking.ItemID)
	if err != nil {
		return fmt.Errorf("failed to build lock query: %w", err)
	}
	var available bool
	var ownerID int64
	err = tx.QueryRow(ctx, query, args...).Scan(&available, &ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrItemNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check item in tx: %w", err)
	}
	if !available {
		return database.ErrNotAvailable
	}
	if ownerID == booking.BookerID {
		return domain.ErrOwnItem
	}

	query, args, err = dialect.From(tableUsers).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.C("id").Eq(booking.BookerID)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build booker query: %w", err)
	}
	var bookers int
	if err := tx.QueryRow(ctx, query, args...).Scan(&bookers); err != nil {
		return fmt.Errorf("failed to check booker in tx: %w", err)
	}
	if bookers == 0 {
		return domain.ErrUserNotFound
	}

	now := s.now()
	query, args, err = dialect.Insert(tableBookings).
		Rows(goqu.Record{
			"item_id":    booking.ItemID,
			"booker_id":  booking.BookerID,
			"start_date": booking.Start.UTC(),
			"end_date":   booking.End.UTC(),
			"status":     string(models.StatusWaiting),
			"version":    1,
			"created_at": now,
			"updated_at": now,
		}).
		Returning("id").
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	var id int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.ID = id
	booking.Status = models.StatusWaiting
	booking.Version = 1
	booking.CreatedAt = now
	booking.UpdatedAt = now
	return nil
}

func lockItemQuery(itemID int64) (string, []any, error) {
	return dialect.From(tableItems).
		Select("available", "owner_id").
		Where(goqu.C("id").Eq(itemID)).
		ForUpdate(exp.Wait).
		Prepared(true).
		ToSQL()
}

func (s *Store) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query, args, err := bookingsFrom().
		Where(goqu.I("b.id").Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	booking, err := scanBooking(s.queryRow(ctx, query, args))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// UpdateBookingStatusWithVersion moves a WAITING booking to status when the
// stored version still equals version.
func (s *Store) UpdateBookingStatusWithVersion(ctx context.Context, id, version int64, status models.BookingStatus) error {
	query, args, err := decideQuery(id, version, status, s.now())
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	affected, err := s.exec(ctx, query, args)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	if affected == 0 {
		s.logger.Info().Int64("booking_id", id).Int64("expected_version", version).Msg("concurrency conflict detected")
		return database.ErrConcurrentModification
	}
	return nil
}

func decideQuery(id, version int64, status models.BookingStatus, now time.Time) (string, []any, error) {
	return dialect.Update(tableBookings).
		Set(goqu.Record{
			"status":     string(status),
			"version":    goqu.L("version + 1"),
			"updated_at": now,
		}).
		Where(goqu.Ex{
			"id":      id,
			"version": version,
			"status":  string(models.StatusWaiting),
		}).
		Prepared(true).
		ToSQL()
}

func (s *Store) GetBookingsByBooker(ctx context.Context, bookerID int64) ([]*models.Booking, error) {
	query, args, err := bookingsFrom().
		Where(goqu.I("b.booker_id").Eq(bookerID)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}
	return s.queryBookings(ctx, query, args)
}

func (s *Store) GetBookingsByOwner(ctx context.Context, ownerID int64) ([]*models.Booking, error) {
	query, args, err := ownerBookingsQuery(ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}
	return s.queryBookings(ctx, query, args)
}

func ownerBookingsQuery(ownerID int64) (string, []any, error) {
	return bookingsFrom().
		Join(goqu.T(tableItems).As("i"), goqu.On(goqu.I("i.id").Eq(goqu.I("b.item_id")))).
		Where(goqu.I("i.owner_id").Eq(ownerID)).
		Prepared(true).
		ToSQL()
}

func (s *Store) GetBookingsByItem(ctx context.Context, itemID int64) ([]*models.Booking, error) {
	query, args, err := bookingsFrom().
		Where(goqu.I("b.item_id").Eq(itemID)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}
	return s.queryBookings(ctx, query, args)
}

func (s *Store) queryBookings(ctx context.Context, query string, args []any) ([]*models.Booking, error) {
	rows, err := s.query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var b models.Booking
	var status string
	err := row.Scan(
		&b.ID, &b.ItemID, &b.BookerID, &b.Start, &b.End, &status,
		&b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = models.BookingStatus(status)
	return &b, nil
}
