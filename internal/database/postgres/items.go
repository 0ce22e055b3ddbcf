package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"
)

var itemColumns = []any{"id", "name", "description", "available", "owner_id", "request_id", "created_at", "updated_at"}

func (s *Store) CreateItem(ctx context.Context, item *models.Item) error {
	now := s.now()
	query, args, err := dialect.Insert(tableItems).
		Rows(goqu.Record{
			"name":        item.Name,
			"description": item.Description,
			"available":   item.Available,
			"owner_id":    item.OwnerID,
			"request_id":  item.RequestID,
			"created_at":  now,
			"updated_at":  now,
		}).
		Returning("id").
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if err := s.queryRow(ctx, query, args).Scan(&item.ID); err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	return nil
}

func (s *Store) UpdateItem(ctx context.Context, item *models.Item) error {
	now := s.now()
	query, args, err := dialect.Update(tableItems).
		Set(goqu.Record{
			"name":        item.Name,
			"description": item.Description,
			"available":   item.Available,
			"updated_at":  now,
		}).
		Where(goqu.C("id").Eq(item.ID)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	affected, err := s.exec(ctx, query, args)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	if affected == 0 {
		return domain.ErrItemNotFound
	}
	item.UpdatedAt = now
	return nil
}

func (s *Store) GetItemByID(ctx context.Context, id int64) (*models.Item, error) {
	query, args, err := dialect.From(tableItems).
		Select(itemColumns...).
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	item, err := scanItem(s.queryRow(ctx, query, args))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

func (s *Store) GetItemsByOwner(ctx context.Context, ownerID int64) ([]*models.Item, error) {
	query, args, err := dialect.From(tableItems).
		Select(itemColumns...).
		Where(goqu.C("owner_id").Eq(ownerID)).
		Order(goqu.C("id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}
	return s.queryItems(ctx, query, args)
}

func (s *Store) SearchAvailableItems(ctx context.Context, text string) ([]*models.Item, error) {
	query, args, err := searchItemsQuery(text)
	if err != nil {
		return nil, fmt.Errorf("failed to build search query: %w", err)
	}
	return s.queryItems(ctx, query, args)
}

// searchItemsQuery matches available items whose name or description contains
// text, ignoring case. LIKE wildcards in text are matched literally.
func searchItemsQuery(text string) (string, []any, error) {
	pattern := "%" + escapeLike(text) + "%"
	return dialect.From(tableItems).
		Select(itemColumns...).
		Where(
			goqu.C("available").IsTrue(),
			goqu.Or(
				goqu.C("name").ILike(pattern),
				goqu.C("description").ILike(pattern),
			),
		).
		Order(goqu.C("id").Asc()).
		Prepared(true).
		ToSQL()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (s *Store) queryItems(ctx context.Context, query string, args []any) ([]*models.Item, error) {
	rows, err := s.query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(row pgx.Row) (*models.Item, error) {
	var item models.Item
	err := row.Scan(
		&item.ID, &item.Name, &item.Description, &item.Available,
		&item.OwnerID, &item.RequestID, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}
