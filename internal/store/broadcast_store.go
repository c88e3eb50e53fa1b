package store

import (
	"context"
	"time"
)

// Broadcast statuses.
const (
	BroadcastSending   = "sending"
	BroadcastCompleted = "completed"
)

type Broadcast struct {
	ID              int64     `json:"id"`
	BotID           int64     `json:"bot_id"`
	Message         string    `json:"message"`
	RecipientsCount int       `json:"recipients_count"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// BroadcastStore records broadcast history.
type BroadcastStore interface {
	Create(ctx context.Context, b *Broadcast) error
	SetResult(ctx context.Context, id int64, recipients int, status string) error
	ListByBot(ctx context.Context, botID int64, limit int) ([]Broadcast, error)
}
