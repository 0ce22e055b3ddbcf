package models

import "time"

type User struct {
	ID             int64     `json:"id" yaml:"id"`
	Name           string    `json:"name" yaml:"name"`
	Email          string    `json:"email" yaml:"email"`
	TelegramChatID *int64    `json:"telegram_chat_id,omitempty" yaml:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time `json:"created_at" yaml:"-"`
	UpdatedAt      time.Time `json:"updated_at" yaml:"-"`
}

type NewUser struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	TelegramChatID *int64 `json:"telegram_chat_id,omitempty"`
}

// UserPatch holds optional fields for a partial update.
type UserPatch struct {
	Name           *string `json:"name"`
	Email          *string `json:"email"`
	TelegramChatID *int64  `json:"telegram_chat_id"`
}
