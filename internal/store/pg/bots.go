package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// PGBotStore implements store.BotStore backed by Postgres.
type PGBotStore struct {
	db *sql.DB
}

func NewPGBotStore(db *sql.DB) *PGBotStore {
	return &PGBotStore{db: db}
}

const botSelectCols = `id, user_id, bot_name, bot_username, bot_type, telegram_token, pakasir_slug, pakasir_api_key, is_active, created_at, updated_at`

var botUpdatableCols = map[string]bool{
	"bot_name":        true,
	"bot_username":    true,
	"telegram_token":  true,
	"pakasir_slug":    true,
	"pakasir_api_key": true,
	"is_active":       true,
}

func (s *PGBotStore) ListActive(ctx context.Context) ([]store.BotConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+botSelectCols+` FROM bots WHERE is_active = true ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return scanBots(rows)
}

func (s *PGBotStore) Get(ctx context.Context, id int64) (*store.BotConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+botSelectCols+` FROM bots WHERE id = $1`, id)
	return scanBot(row)
}

func (s *PGBotStore) ListByOwner(ctx context.Context, ownerID int64) ([]store.BotConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+botSelectCols+` FROM bots WHERE user_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	return scanBots(rows)
}

func (s *PGBotStore) GetForOwner(ctx context.Context, id, ownerID int64) (*store.BotConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+botSelectCols+` FROM bots WHERE id = $1 AND user_id = $2`, id, ownerID)
	return scanBot(row)
}

func (s *PGBotStore) Create(ctx context.Context, b *store.BotConfig) error {
	now := time.Now()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO bots (user_id, bot_name, bot_username, bot_type, telegram_token, pakasir_slug, pakasir_api_key, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) RETURNING id`,
		b.OwnerID, b.Name, b.Username, b.Type, b.Token, b.PaymentSlug, b.PaymentAPIKey, b.IsActive, now,
	).Scan(&b.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("bot token: %w", store.ErrDuplicate)
		}
		return err
	}
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

func (s *PGBotStore) Update(ctx context.Context, id int64, updates map[string]any) error {
	cols := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		cols[k] = v
	}
	cols["updated_at"] = time.Now()
	allowed := map[string]bool{"updated_at": true}
	for k := range botUpdatableCols {
		allowed[k] = true
	}
	n, err := execUpdate(ctx, s.db, "bots", id, cols, allowed)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("bot token: %w", store.ErrDuplicate)
		}
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGBotStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bots WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGBotStore) SetActive(ctx context.Context, id int64, active bool) error {
	return s.Update(ctx, id, map[string]any{"is_active": active})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBotRow(row rowScanner) (store.BotConfig, error) {
	var b store.BotConfig
	err := row.Scan(&b.ID, &b.OwnerID, &b.Name, &b.Username, &b.Type, &b.Token,
		&b.PaymentSlug, &b.PaymentAPIKey, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func scanBot(row *sql.Row) (*store.BotConfig, error) {
	b, err := scanBotRow(row)
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func scanBots(rows *sql.Rows) ([]store.BotConfig, error) {
	defer rows.Close()
	var result []store.BotConfig
	for rows.Next() {
		b, err := scanBotRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}
