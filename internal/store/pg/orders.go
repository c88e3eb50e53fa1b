package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// PGOrderStore implements store.OrderStore backed by Postgres.
type PGOrderStore struct {
	db *sql.DB
}

func NewPGOrderStore(db *sql.DB) *PGOrderStore {
	return &PGOrderStore{db: db}
}

const orderSelectCols = `o.id, o.bot_id, o.bot_user_id, COALESCE(o.product_id, 0), o.order_id, o.amount, o.fee, o.total,
	o.status, o.payment_method, o.qris_string, o.expired_at, o.paid_at, o.created_at,
	COALESCE(p.name, ''), COALESCE(u.username, ''), COALESCE(u.first_name, ''), COALESCE(u.telegram_id, 0)`

const orderFrom = ` FROM orders o
	LEFT JOIN products p ON p.id = o.product_id
	LEFT JOIN bot_users u ON u.id = o.bot_user_id`

func (s *PGOrderStore) Create(ctx context.Context, o *store.Order) error {
	if o.Status == "" {
		o.Status = store.OrderPending
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO orders (bot_id, bot_user_id, product_id, order_id, amount, fee, total, status, payment_method, qris_string, expired_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id, created_at`,
		o.BotID, o.BotUserID, o.ProductID, o.OrderID, o.Amount, o.Fee, o.Total, o.Status,
		o.PaymentMethod, o.QRISString, nilTime(o.ExpiredAt),
	).Scan(&o.ID, &o.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *PGOrderStore) GetByOrderID(ctx context.Context, orderID string) (*store.Order, error) {
	o, err := scanOrderRow(s.db.QueryRowContext(ctx,
		`SELECT `+orderSelectCols+orderFrom+` WHERE o.order_id = $1`, orderID))
	if err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

func (s *PGOrderStore) UpdatePayment(ctx context.Context, orderID string, p store.PaymentDetails) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET fee = $1, total = $2, payment_method = $3, qris_string = $4, expired_at = $5
		 WHERE order_id = $6`,
		p.Fee, p.Total, p.PaymentMethod, p.QRISString, nilTime(p.ExpiredAt), orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGOrderStore) MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = 'paid', paid_at = $1 WHERE order_id = $2 AND status = 'pending'`,
		paidAt, orderID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *PGOrderStore) SetStatus(ctx context.Context, orderID, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE orders SET status = $1 WHERE order_id = $2`, status, orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGOrderStore) ListByBot(ctx context.Context, botID int64, limit int) ([]store.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderSelectCols+orderFrom+` WHERE o.bot_id = $1 ORDER BY o.created_at DESC LIMIT $2`,
		botID, limit)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

func (s *PGOrderStore) ListByUser(ctx context.Context, botID, botUserID int64, limit int) ([]store.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderSelectCols+orderFrom+` WHERE o.bot_id = $1 AND o.bot_user_id = $2 ORDER BY o.created_at DESC LIMIT $3`,
		botID, botUserID, limit)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

func (s *PGOrderStore) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = 'expired' WHERE status = 'pending' AND expired_at IS NOT NULL AND expired_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PGOrderStore) Stats(ctx context.Context, botID int64) (*store.OrderStats, error) {
	var st store.OrderStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'paid'),
		        COALESCE(SUM(amount) FILTER (WHERE status = 'paid'), 0)
		 FROM orders WHERE bot_id = $1`, botID,
	).Scan(&st.TotalTransactions, &st.CompletedTransactions, &st.TotalRevenue)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *PGOrderStore) BotStats(ctx context.Context, botID int64) (*store.BotStats, error) {
	var st store.BotStats
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM products WHERE bot_id = $1),
		        (SELECT COUNT(*) FROM bot_users WHERE bot_id = $1),
		        (SELECT COUNT(*) FROM orders WHERE bot_id = $1),
		        (SELECT COALESCE(SUM(amount), 0) FROM orders WHERE bot_id = $1 AND status = 'paid')`, botID,
	).Scan(&st.TotalProducts, &st.TotalUsers, &st.TotalOrders, &st.TotalRevenue)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func scanOrderRow(row rowScanner) (store.Order, error) {
	var o store.Order
	var expiredAt, paidAt sql.NullTime
	err := row.Scan(&o.ID, &o.BotID, &o.BotUserID, &o.ProductID, &o.OrderID, &o.Amount, &o.Fee, &o.Total,
		&o.Status, &o.PaymentMethod, &o.QRISString, &expiredAt, &paidAt, &o.CreatedAt,
		&o.ProductName, &o.BuyerUsername, &o.BuyerName, &o.TelegramID)
	o.ExpiredAt = timePtr(expiredAt)
	o.PaidAt = timePtr(paidAt)
	return o, err
}

func scanOrders(rows *sql.Rows) ([]store.Order, error) {
	defer rows.Close()
	var result []store.Order
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}
