package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// PGPointsStore implements store.PointsStore backed by Postgres.
type PGPointsStore struct {
	db *sql.DB
}

func NewPGPointsStore(db *sql.DB) *PGPointsStore {
	return &PGPointsStore{db: db}
}

const pointsUserSelectCols = `id, bot_id, telegram_id, username, full_name, balance, is_blocked, invited_by, last_checkin, created_at`

func (s *PGPointsStore) GetOrCreate(ctx context.Context, botID, telegramID int64, username, fullName string, inviterID *int64, inviteeBonus, inviterBonus int) (*store.PointsUser, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO pv_users (bot_id, telegram_id, username, full_name)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (bot_id, telegram_id) DO NOTHING RETURNING id`,
		botID, telegramID, username, fullName,
	).Scan(&id)
	created := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	if created && inviterID != nil && *inviterID != telegramID {
		res, err := tx.ExecContext(ctx,
			`UPDATE pv_users SET balance = balance + $1 WHERE bot_id = $2 AND telegram_id = $3`,
			inviterBonus, botID, *inviterID)
		if err != nil {
			return nil, false, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE pv_users SET balance = balance + $1, invited_by = $2 WHERE id = $3`,
				inviteeBonus, *inviterID, id); err != nil {
				return nil, false, err
			}
		}
	}

	u, err := scanPointsUserRow(tx.QueryRowContext(ctx,
		`SELECT `+pointsUserSelectCols+` FROM pv_users WHERE bot_id = $1 AND telegram_id = $2`, botID, telegramID))
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return &u, created, nil
}

func (s *PGPointsStore) Get(ctx context.Context, botID, telegramID int64) (*store.PointsUser, error) {
	u, err := scanPointsUserRow(s.db.QueryRowContext(ctx,
		`SELECT `+pointsUserSelectCols+` FROM pv_users WHERE bot_id = $1 AND telegram_id = $2`, botID, telegramID))
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *PGPointsStore) CheckIn(ctx context.Context, botID, telegramID int64, day time.Time, points int) (bool, error) {
	d := day.Format("2006-01-02")
	res, err := s.db.ExecContext(ctx,
		`UPDATE pv_users SET balance = balance + $1, last_checkin = $2::date
		 WHERE bot_id = $3 AND telegram_id = $4 AND (last_checkin IS NULL OR last_checkin < $2::date)`,
		points, d, botID, telegramID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *PGPointsStore) Deduct(ctx context.Context, botID, telegramID int64, points int) (int, error) {
	var balance int
	err := s.db.QueryRowContext(ctx,
		`UPDATE pv_users SET balance = balance - $1
		 WHERE bot_id = $2 AND telegram_id = $3 AND balance >= $1 RETURNING balance`,
		points, botID, telegramID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrInsufficientBalance
	}
	return balance, err
}

func (s *PGPointsStore) AddBalance(ctx context.Context, botID, telegramID int64, points int) (int, error) {
	var balance int
	err := s.db.QueryRowContext(ctx,
		`UPDATE pv_users SET balance = balance + $1 WHERE bot_id = $2 AND telegram_id = $3 RETURNING balance`,
		points, botID, telegramID).Scan(&balance)
	if err != nil {
		return 0, notFound(err)
	}
	return balance, nil
}

func (s *PGPointsStore) SetBlocked(ctx context.Context, botID, telegramID int64, blocked bool) error {
	return execOne(ctx, s.db,
		`UPDATE pv_users SET is_blocked = $1 WHERE bot_id = $2 AND telegram_id = $3`, blocked, botID, telegramID)
}

func (s *PGPointsStore) Blacklist(ctx context.Context, botID int64, limit int) ([]store.PointsUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pointsUserSelectCols+` FROM pv_users WHERE bot_id = $1 AND is_blocked = true ORDER BY id LIMIT $2`,
		botID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []store.PointsUser
	for rows.Next() {
		u, err := scanPointsUserRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (s *PGPointsStore) AddVerification(ctx context.Context, botID, telegramID int64, kind string, cost int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var balance int
	err = tx.QueryRowContext(ctx,
		`UPDATE pv_users SET balance = balance - $1
		 WHERE bot_id = $2 AND telegram_id = $3 AND balance >= $1 RETURNING balance`,
		cost, botID, telegramID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrInsufficientBalance
	}
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pv_verifications (bot_id, telegram_id, kind, cost) VALUES ($1, $2, $3, $4)`,
		botID, telegramID, kind, cost); err != nil {
		return 0, err
	}
	return balance, tx.Commit()
}

func (s *PGPointsStore) CreateCardKey(ctx context.Context, k *store.CardKey) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO pv_card_keys (bot_id, key_code, balance, max_uses, expire_at, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		k.BotID, k.Code, k.Balance, k.MaxUses, nilTime(k.ExpiresAt), k.CreatedBy,
	).Scan(&k.ID, &k.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *PGPointsStore) ListCardKeys(ctx context.Context, botID int64, limit int) ([]store.CardKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bot_id, key_code, balance, max_uses, current_uses, expire_at, created_by, created_at
		 FROM pv_card_keys WHERE bot_id = $1 ORDER BY created_at DESC LIMIT $2`, botID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []store.CardKey
	for rows.Next() {
		var k store.CardKey
		var expires sql.NullTime
		if err := rows.Scan(&k.ID, &k.BotID, &k.Code, &k.Balance, &k.MaxUses, &k.CurrentUses, &expires, &k.CreatedBy, &k.CreatedAt); err != nil {
			return nil, err
		}
		k.ExpiresAt = timePtr(expires)
		result = append(result, k)
	}
	return result, rows.Err()
}

func (s *PGPointsStore) UseCardKey(ctx context.Context, botID int64, code string, telegramID int64, now time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var keyID int64
	var balance, maxUses, uses int
	var expires sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT id, balance, max_uses, current_uses, expire_at FROM pv_card_keys
		 WHERE bot_id = $1 AND key_code = $2 FOR UPDATE`, botID, code,
	).Scan(&keyID, &balance, &maxUses, &uses, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrKeyNotFound
	}
	if err != nil {
		return 0, err
	}
	if uses >= maxUses {
		return 0, store.ErrKeyExhausted
	}
	if expires.Valid && now.After(expires.Time) {
		return 0, store.ErrKeyExpired
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO pv_card_key_uses (key_id, telegram_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, keyID, telegramID)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, store.ErrKeyAlreadyUsed
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE pv_card_keys SET current_uses = current_uses + 1 WHERE id = $1`, keyID); err != nil {
		return 0, err
	}
	res, err = tx.ExecContext(ctx,
		`UPDATE pv_users SET balance = balance + $1 WHERE bot_id = $2 AND telegram_id = $3`, balance, botID, telegramID)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, store.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *PGPointsStore) ListTelegramIDs(ctx context.Context, botID int64) ([]int64, error) {
	return queryIDs(ctx, s.db,
		`SELECT telegram_id FROM pv_users WHERE bot_id = $1 AND is_blocked = false ORDER BY id`, botID)
}

func scanPointsUserRow(row rowScanner) (store.PointsUser, error) {
	var u store.PointsUser
	var invitedBy sql.NullInt64
	var lastCheckin sql.NullTime
	err := row.Scan(&u.ID, &u.BotID, &u.TelegramID, &u.Username, &u.FullName, &u.Balance, &u.IsBlocked,
		&invitedBy, &lastCheckin, &u.CreatedAt)
	u.InvitedBy = int64Ptr(invitedBy)
	u.LastCheckin = timePtr(lastCheckin)
	return u, err
}
