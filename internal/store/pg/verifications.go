package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// PGVerificationStore implements store.VerificationStore backed by Postgres.
type PGVerificationStore struct {
	db *sql.DB
}

func NewPGVerificationStore(db *sql.DB) *PGVerificationStore {
	return &PGVerificationStore{db: db}
}

const verificationSelectCols = `id, bot_id, telegram_id, username, student_id, full_name, status, verified_at, created_at`

func (s *PGVerificationStore) Create(ctx context.Context, v *store.Verification) error {
	if v.Status == "" {
		v.Status = store.VerificationPending
	}
	return s.db.QueryRowContext(ctx,
		`INSERT INTO verifications (bot_id, telegram_id, username, student_id, full_name, status)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		v.BotID, v.TelegramID, v.Username, v.StudentID, v.FullName, v.Status,
	).Scan(&v.ID, &v.CreatedAt)
}

func (s *PGVerificationStore) GetLatest(ctx context.Context, botID, telegramID int64) (*store.Verification, error) {
	v, err := scanVerificationRow(s.db.QueryRowContext(ctx,
		`SELECT `+verificationSelectCols+` FROM verifications
		 WHERE bot_id = $1 AND telegram_id = $2 ORDER BY created_at DESC, id DESC LIMIT 1`, botID, telegramID))
	if err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

func (s *PGVerificationStore) Get(ctx context.Context, id int64) (*store.Verification, error) {
	v, err := scanVerificationRow(s.db.QueryRowContext(ctx,
		`SELECT `+verificationSelectCols+` FROM verifications WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

func (s *PGVerificationStore) ListPending(ctx context.Context, botID int64, limit int) ([]store.Verification, error) {
	return s.list(ctx,
		`SELECT `+verificationSelectCols+` FROM verifications WHERE bot_id = $1 AND status = 'pending' ORDER BY created_at LIMIT $2`,
		botID, limit)
}

// ListByBot lists every request of a bot, optionally filtered by status.
func (s *PGVerificationStore) ListByBot(ctx context.Context, botID int64, status string) ([]store.Verification, error) {
	if status == "" {
		return s.list(ctx,
			`SELECT `+verificationSelectCols+` FROM verifications WHERE bot_id = $1 ORDER BY created_at DESC`, botID)
	}
	return s.list(ctx,
		`SELECT `+verificationSelectCols+` FROM verifications WHERE bot_id = $1 AND status = $2 ORDER BY created_at DESC`,
		botID, status)
}

// SetStatus stamps verified_at when the request is approved.
func (s *PGVerificationStore) SetStatus(ctx context.Context, id int64, status string) error {
	var verifiedAt any
	if status == store.VerificationApproved {
		verifiedAt = time.Now()
	}
	return execOne(ctx, s.db, `UPDATE verifications SET status = $1, verified_at = $2 WHERE id = $3`, status, verifiedAt, id)
}

func (s *PGVerificationStore) list(ctx context.Context, q string, args ...any) ([]store.Verification, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []store.Verification
	for rows.Next() {
		v, err := scanVerificationRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func scanVerificationRow(row rowScanner) (store.Verification, error) {
	var v store.Verification
	var verifiedAt sql.NullTime
	err := row.Scan(&v.ID, &v.BotID, &v.TelegramID, &v.Username, &v.StudentID, &v.FullName, &v.Status, &verifiedAt, &v.CreatedAt)
	v.VerifiedAt = timePtr(verifiedAt)
	return v, err
}
