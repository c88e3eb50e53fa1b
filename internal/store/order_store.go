package store

import (
	"context"
	"time"
)

// Order statuses.
const (
	OrderPending   = "pending"
	OrderPaid      = "paid"
	OrderCancelled = "cancelled"
	OrderExpired   = "expired"
)

type Order struct {
	ID            int64      `json:"id"`
	BotID         int64      `json:"bot_id"`
	BotUserID     int64      `json:"bot_user_id"`
	ProductID     int64      `json:"product_id"`
	OrderID       string     `json:"order_id"`
	Amount        int64      `json:"amount"`
	Fee           int64      `json:"fee"`
	Total         int64      `json:"total"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	QRISString    string     `json:"-"`
	ExpiredAt     *time.Time `json:"expired_at,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`

	// Joined fields, filled by list queries.
	ProductName   string `json:"product_name,omitempty"`
	BuyerUsername string `json:"username,omitempty"`
	BuyerName     string `json:"first_name,omitempty"`
	TelegramID    int64  `json:"telegram_id,omitempty"`
}

// PaymentDetails is what the payment gateway returned for a new transaction.
type PaymentDetails struct {
	Fee           int64
	Total         int64
	PaymentMethod string
	QRISString    string
	ExpiredAt     *time.Time
}

type OrderStats struct {
	TotalTransactions     int   `json:"total_transactions"`
	CompletedTransactions int   `json:"completed_transactions"`
	TotalRevenue          int64 `json:"total_revenue"`
}

type BotStats struct {
	TotalProducts int   `json:"total_products"`
	TotalUsers    int   `json:"total_users"`
	TotalOrders   int   `json:"total_orders"`
	TotalRevenue  int64 `json:"total_revenue"`
}

// OrderStore manages store-bot orders.
type OrderStore interface {
	Create(ctx context.Context, o *Order) error
	GetByOrderID(ctx context.Context, orderID string) (*Order, error)
	UpdatePayment(ctx context.Context, orderID string, p PaymentDetails) error
	// MarkPaid flips a pending order to paid. It reports false when the
	// order was no longer pending.
	MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (bool, error)
	SetStatus(ctx context.Context, orderID, status string) error
	ListByBot(ctx context.Context, botID int64, limit int) ([]Order, error)
	ListByUser(ctx context.Context, botID, botUserID int64, limit int) ([]Order, error)
	// ExpirePending marks pending orders whose expiry passed as expired.
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
	Stats(ctx context.Context, botID int64) (*OrderStats, error)
	BotStats(ctx context.Context, botID int64) (*BotStats, error)
}
