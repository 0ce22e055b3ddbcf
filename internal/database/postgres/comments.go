package postgres

import (
	"context"
	"fmt"

	"shareit/internal/models"

	"github.com/doug-martin/goqu/v9"
)

func (s *Store) CreateComment(ctx context.Context, comment *models.Comment) error {
	if comment.Created.IsZero() {
		comment.Created = s.now()
	}
	query, args, err := dialect.Insert(tableComments).
		Rows(goqu.Record{
			"text":      comment.Text,
			"item_id":   comment.ItemID,
			"author_id": comment.AuthorID,
			"created":   comment.Created.UTC(),
		}).
		Returning("id").
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if err := s.queryRow(ctx, query, args).Scan(&comment.ID); err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

// GetCommentsByItem returns comments oldest first with the author name resolved.
func (s *Store) GetCommentsByItem(ctx context.Context, itemID int64) ([]models.Comment, error) {
	query, args, err := dialect.From(goqu.T(tableComments).As("c")).
		Select(
			goqu.I("c.id"), goqu.I("c.text"), goqu.I("c.item_id"), goqu.I("c.author_id"),
			goqu.COALESCE(goqu.I("u.name"), ""), goqu.I("c.created"),
		).
		LeftJoin(goqu.T(tableUsers).As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("c.author_id")))).
		Where(goqu.I("c.item_id").Eq(itemID)).
		Order(goqu.I("c.created").Asc(), goqu.I("c.id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := s.query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to get comments: %w", err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.Text, &c.ItemID, &c.AuthorID, &c.AuthorName, &c.Created); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
