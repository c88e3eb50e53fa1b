package store

import (
	"context"
	"time"
)

// User is a dashboard account that owns bots.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserStore manages dashboard accounts.
type UserStore interface {
	// Create returns ErrDuplicate when the email is taken.
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
}

// BotUser is a Telegram user that talked to one bot.
type BotUser struct {
	ID         int64     `json:"id"`
	BotID      int64     `json:"bot_id"`
	TelegramID int64     `json:"telegram_id"`
	Username   string    `json:"username,omitempty"`
	FirstName  string    `json:"first_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// BotUserStore tracks the audience of each bot.
type BotUserStore interface {
	GetOrCreate(ctx context.Context, botID, telegramID int64, username, firstName string) (*BotUser, error)
	ListTelegramIDs(ctx context.Context, botID int64) ([]int64, error)
	Count(ctx context.Context, botID int64) (int, error)
}
