package store

import (
	"context"
	"time"
)

// Bot types. Each one maps to a registered handler variant.
const (
	BotTypeStore        = "store"
	BotTypeVerification = "verification"
	BotTypePointsVerify = "points_verify"
	BotTypeCustom       = "custom"
)

// BotTypes lists every known bot type.
var BotTypes = []string{BotTypeStore, BotTypeVerification, BotTypePointsVerify, BotTypeCustom}

// ValidBotType reports whether t names a known bot type.
func ValidBotType(t string) bool {
	for _, known := range BotTypes {
		if t == known {
			return true
		}
	}
	return false
}

// BotConfig is a snapshot of one bot row. It is re-read on every load.
type BotConfig struct {
	ID            int64     `json:"id"`
	OwnerID       int64     `json:"user_id"`
	Name          string    `json:"bot_name"`
	Username      string    `json:"bot_username"`
	Type          string    `json:"bot_type"`
	Token         string    `json:"-"`
	PaymentSlug   string    `json:"pakasir_slug,omitempty"`
	PaymentAPIKey string    `json:"-"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PaymentConfigured reports whether the bot carries payment gateway credentials.
func (c BotConfig) PaymentConfigured() bool {
	return c.PaymentSlug != "" && c.PaymentAPIKey != ""
}

// BotStore manages bot records.
type BotStore interface {
	ListActive(ctx context.Context) ([]BotConfig, error)
	Get(ctx context.Context, id int64) (*BotConfig, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]BotConfig, error)
	GetForOwner(ctx context.Context, id, ownerID int64) (*BotConfig, error)
	Create(ctx context.Context, b *BotConfig) error
	// Update applies a partial update. Only known columns are written.
	Update(ctx context.Context, id int64, updates map[string]any) error
	Delete(ctx context.Context, id int64) error
	SetActive(ctx context.Context, id int64, active bool) error
}
