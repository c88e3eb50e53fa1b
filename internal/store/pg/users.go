package pg

import (
	"context"
	"database/sql"
	"strings"

	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// PGUserStore implements store.UserStore backed by Postgres.
type PGUserStore struct {
	db *sql.DB
}

func NewPGUserStore(db *sql.DB) *PGUserStore {
	return &PGUserStore{db: db}
}

const userSelectCols = `id, email, password_hash, name, created_at`

func (s *PGUserStore) Create(ctx context.Context, u *store.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash, name) VALUES ($1, $2, $3) RETURNING id, created_at`,
		u.Email, u.PasswordHash, u.Name,
	).Scan(&u.ID, &u.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *PGUserStore) GetByEmail(ctx context.Context, email string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userSelectCols+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

func (s *PGUserStore) GetByID(ctx context.Context, id int64) (*store.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userSelectCols+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*store.User, error) {
	var u store.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// PGBotUserStore implements store.BotUserStore backed by Postgres.
type PGBotUserStore struct {
	db *sql.DB
}

func NewPGBotUserStore(db *sql.DB) *PGBotUserStore {
	return &PGBotUserStore{db: db}
}

// GetOrCreate upserts the user and refreshes the username and first name.
func (s *PGBotUserStore) GetOrCreate(ctx context.Context, botID, telegramID int64, username, firstName string) (*store.BotUser, error) {
	u := store.BotUser{BotID: botID, TelegramID: telegramID}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO bot_users (bot_id, telegram_id, username, first_name)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (bot_id, telegram_id) DO UPDATE SET
		   username = EXCLUDED.username,
		   first_name = EXCLUDED.first_name
		 RETURNING id, username, first_name, created_at`,
		botID, telegramID, username, firstName,
	).Scan(&u.ID, &u.Username, &u.FirstName, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PGBotUserStore) ListTelegramIDs(ctx context.Context, botID int64) ([]int64, error) {
	return queryIDs(ctx, s.db, `SELECT telegram_id FROM bot_users WHERE bot_id = $1 ORDER BY id`, botID)
}

func (s *PGBotUserStore) Count(ctx context.Context, botID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bot_users WHERE bot_id = $1`, botID).Scan(&n)
	return n, err
}

func queryIDs(ctx context.Context, db *sql.DB, q string, args ...any) ([]int64, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
