package store

import (
	"context"
	"time"
)

// Verification statuses.
const (
	VerificationPending  = "pending"
	VerificationApproved = "approved"
	VerificationRejected = "rejected"
)

// Verification is a student verification request.
type Verification struct {
	ID         int64      `json:"id"`
	BotID      int64      `json:"bot_id"`
	TelegramID int64      `json:"telegram_id"`
	Username   string     `json:"username,omitempty"`
	StudentID  string     `json:"student_id"`
	FullName   string     `json:"full_name"`
	Status     string     `json:"status"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type VerificationStore interface {
	Create(ctx context.Context, v *Verification) error
	// GetLatest returns the most recent request of a user, or ErrNotFound.
	GetLatest(ctx context.Context, botID, telegramID int64) (*Verification, error)
	Get(ctx context.Context, id int64) (*Verification, error)
	ListPending(ctx context.Context, botID int64, limit int) ([]Verification, error)
	ListByBot(ctx context.Context, botID int64, status string) ([]Verification, error)
	SetStatus(ctx context.Context, id int64, status string) error
}
