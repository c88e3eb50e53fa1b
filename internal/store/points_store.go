package store

import (
	"context"
	"errors"
	"time"
)

// Card key redemption failures.
var (
	ErrKeyNotFound    = errors.New("card key not found")
	ErrKeyExhausted   = errors.New("card key exhausted")
	ErrKeyExpired     = errors.New("card key expired")
	ErrKeyAlreadyUsed = errors.New("card key already used")
	// ErrInsufficientBalance is returned by Deduct when the balance is too low.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

type PointsUser struct {
	ID          int64      `json:"id"`
	BotID       int64      `json:"bot_id"`
	TelegramID  int64      `json:"telegram_id"`
	Username    string     `json:"username,omitempty"`
	FullName    string     `json:"full_name,omitempty"`
	Balance     int        `json:"balance"`
	IsBlocked   bool       `json:"is_blocked"`
	InvitedBy   *int64     `json:"invited_by,omitempty"`
	LastCheckin *time.Time `json:"last_checkin,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type CardKey struct {
	ID          int64      `json:"id"`
	BotID       int64      `json:"bot_id"`
	Code        string     `json:"key_code"`
	Balance     int        `json:"balance"`
	MaxUses     int        `json:"max_uses"`
	CurrentUses int        `json:"current_uses"`
	ExpiresAt   *time.Time `json:"expire_at,omitempty"`
	CreatedBy   int64      `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

// PointsStore backs the points_verify bot type.
type PointsStore interface {
	// GetOrCreate registers a user. On first registration with a valid,
	// different inviter, the invitee earns inviteeBonus and the inviter
	// inviterBonus. created reports whether the row was new.
	GetOrCreate(ctx context.Context, botID, telegramID int64, username, fullName string, inviterID *int64, inviteeBonus, inviterBonus int) (u *PointsUser, created bool, err error)
	Get(ctx context.Context, botID, telegramID int64) (*PointsUser, error)
	// CheckIn adds points once per calendar day. It reports false when the
	// user already checked in on day.
	CheckIn(ctx context.Context, botID, telegramID int64, day time.Time, points int) (bool, error)
	// Deduct removes points and returns the remaining balance.
	Deduct(ctx context.Context, botID, telegramID int64, points int) (int, error)
	// AddBalance and SetBlocked return ErrNotFound for unknown users.
	AddBalance(ctx context.Context, botID, telegramID int64, points int) (int, error)
	SetBlocked(ctx context.Context, botID, telegramID int64, blocked bool) error
	Blacklist(ctx context.Context, botID int64, limit int) ([]PointsUser, error)
	// AddVerification charges cost and records a completed verification in
	// one transaction. It returns the remaining balance.
	AddVerification(ctx context.Context, botID, telegramID int64, kind string, cost int) (int, error)
	CreateCardKey(ctx context.Context, k *CardKey) error
	ListCardKeys(ctx context.Context, botID int64, limit int) ([]CardKey, error)
	// UseCardKey redeems a key and returns the points credited.
	UseCardKey(ctx context.Context, botID int64, code string, telegramID int64, now time.Time) (int, error)
	ListTelegramIDs(ctx context.Context, botID int64) ([]int64, error)
}
