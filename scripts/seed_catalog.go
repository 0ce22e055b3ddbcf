package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"shareit/internal/database"
	"shareit/internal/database/postgres"
	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

type seedUser struct {
	Name           string `yaml:"name"`
	Email          string `yaml:"email"`
	TelegramChatID *int64 `yaml:"telegram_chat_id"`
}

type seedItem struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Available   *bool  `yaml:"available"`
	OwnerEmail  string `yaml:"owner_email"`
}

type catalogFile struct {
	Users []seedUser `yaml:"users"`
	Items []seedItem `yaml:"items"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		catalogPath = flag.String("catalog", "configs/catalog.yaml", "path to catalog yaml")
		dbPath      = flag.String("db", "./data/shareit.db", "path to sqlite db")
		pgDSN       = flag.String("postgres", "", "postgres DSN, replaces -db")
	)
	flag.Parse()

	data, err := os.ReadFile(*catalogPath)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var catalog catalogFile
	if err = yaml.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	if len(catalog.Users) == 0 && len(catalog.Items) == 0 {
		return fmt.Errorf("catalog is empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := openStore(ctx, *dbPath, *pgDSN, &logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	owners, usersCreated, err := seedUsers(ctx, repo, catalog.Users)
	if err != nil {
		return err
	}
	itemsCreated, itemsUpdated, err := seedItems(ctx, repo, owners, catalog.Items)
	if err != nil {
		return err
	}

	fmt.Printf("done: users_created=%d items_created=%d items_updated=%d\n", usersCreated, itemsCreated, itemsUpdated)
	return nil
}

func openStore(ctx context.Context, dbPath, dsn string, logger *zerolog.Logger) (domain.Repository, error) {
	if dsn != "" {
		store, err := postgres.Open(ctx, dsn, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return store, nil
	}
	db, err := database.NewDB(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}

// seedUsers creates missing users and returns every known user keyed by email.
func seedUsers(ctx context.Context, repo domain.Repository, users []seedUser) (map[string]int64, int, error) {
	existing, err := repo.GetAllUsers(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	byEmail := make(map[string]int64, len(existing)+len(users))
	for _, u := range existing {
		byEmail[strings.ToLower(u.Email)] = u.ID
	}

	created := 0
	for _, su := range users {
		email := strings.ToLower(strings.TrimSpace(su.Email))
		if email == "" || byEmail[email] != 0 {
			continue
		}
		now := time.Now()
		user := &models.User{Name: su.Name, Email: email, TelegramChatID: su.TelegramChatID, CreatedAt: now, UpdatedAt: now}
		if err := repo.CreateUser(ctx, user); err != nil {
			return nil, 0, fmt.Errorf("create user %s: %w", email, err)
		}
		byEmail[email] = user.ID
		created++
	}
	return byEmail, created, nil
}

// seedItems matches items by owner and name; matches are updated in place.
func seedItems(ctx context.Context, repo domain.Repository, owners map[string]int64, items []seedItem) (int, int, error) {
	created, updated := 0, 0
	for _, si := range items {
		if si.Name == "" {
			continue
		}
		ownerID := owners[strings.ToLower(strings.TrimSpace(si.OwnerEmail))]
		if ownerID == 0 {
			return created, updated, fmt.Errorf("item %s: unknown owner %q", si.Name, si.OwnerEmail)
		}
		available := si.Available == nil || *si.Available

		current, err := repo.GetItemsByOwner(ctx, ownerID)
		if err != nil {
			return created, updated, fmt.Errorf("list items of %d: %w", ownerID, err)
		}

		var match *models.Item
		for _, it := range current {
			if it.Name == si.Name {
				match = it
				break
			}
		}

		now := time.Now()
		if match != nil {
			match.Description = si.Description
			match.Available = available
			match.UpdatedAt = now
			if err := repo.UpdateItem(ctx, match); err != nil {
				return created, updated, fmt.Errorf("update %s: %w", si.Name, err)
			}
			updated++
			continue
		}

		item := &models.Item{Name: si.Name, Description: si.Description, Available: available, OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}
		if err := repo.CreateItem(ctx, item); err != nil {
			return created, updated, fmt.Errorf("create %s: %w", si.Name, err)
		}
		created++
	}
	return created, updated, nil
}
