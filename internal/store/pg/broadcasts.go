package pg

import (
	"context"
	"database/sql"

	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// PGBroadcastStore implements store.BroadcastStore backed by Postgres.
type PGBroadcastStore struct {
	db *sql.DB
}

func NewPGBroadcastStore(db *sql.DB) *PGBroadcastStore {
	return &PGBroadcastStore{db: db}
}

func (s *PGBroadcastStore) Create(ctx context.Context, b *store.Broadcast) error {
	if b.Status == "" {
		b.Status = store.BroadcastSending
	}
	return s.db.QueryRowContext(ctx,
		`INSERT INTO broadcasts (bot_id, message, recipients_count, status) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		b.BotID, b.Message, b.RecipientsCount, b.Status,
	).Scan(&b.ID, &b.CreatedAt)
}

func (s *PGBroadcastStore) SetResult(ctx context.Context, id int64, recipients int, status string) error {
	return execOne(ctx, s.db, `UPDATE broadcasts SET recipients_count = $1, status = $2 WHERE id = $3`, recipients, status, id)
}

func (s *PGBroadcastStore) ListByBot(ctx context.Context, botID int64, limit int) ([]store.Broadcast, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bot_id, message, recipients_count, status, created_at
		 FROM broadcasts WHERE bot_id = $1 ORDER BY created_at DESC LIMIT $2`, botID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []store.Broadcast
	for rows.Next() {
		var b store.Broadcast
		if err := rows.Scan(&b.ID, &b.BotID, &b.Message, &b.RecipientsCount, &b.Status, &b.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}
