package postgres

import (
	"context"
	"errors"
	"fmt"

	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"
)

var userColumns = []any{"id", "name", "email", "telegram_chat_id", "created_at", "updated_at"}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	now := s.now()
	query, args, err := dialect.Insert(tableUsers).
		Rows(goqu.Record{
			"name":             user.Name,
			"email":            user.Email,
			"telegram_chat_id": user.TelegramChatID,
			"created_at":       now,
			"updated_at":       now,
		}).
		Returning("id").
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if err := s.queryRow(ctx, query, args).Scan(&user.ID); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, user *models.User) error {
	now := s.now()
	query, args, err := dialect.Update(tableUsers).
		Set(goqu.Record{
			"name":             user.Name,
			"email":            user.Email,
			"telegram_chat_id": user.TelegramChatID,
			"updated_at":       now,
		}).
		Where(goqu.C("id").Eq(user.ID)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	affected, err := s.exec(ctx, query, args)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	if affected == 0 {
		return domain.ErrUserNotFound
	}
	user.UpdatedAt = now
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query, args, err := dialect.From(tableUsers).
		Select(userColumns...).
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	user, err := scanUser(s.queryRow(ctx, query, args))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *Store) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	query, args, err := dialect.From(tableUsers).
		Select(userColumns...).
		Order(goqu.C("id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := s.query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	query, args, err := dialect.Delete(tableUsers).
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}

	affected, err := s.exec(ctx, query, args)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrUserInUse
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if affected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.TelegramChatID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}
