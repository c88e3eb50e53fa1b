package pg

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/botfleet/internal/store"
)

var botColumns = []string{"id", "user_id", "bot_name", "bot_username", "bot_type", "telegram_token",
	"pakasir_slug", "pakasir_api_key", "is_active", "created_at", "updated_at"}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestBotStoreListActive(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM bots WHERE is_active = true ORDER BY id`).
		WillReturnRows(sqlmock.NewRows(botColumns).
			AddRow(1, 10, "Shop", "shopbot", "store", "111:aaa", "slug", "key", true, now, now).
			AddRow(2, 10, "Verify", "verifybot", "verification", "222:bbb", "", "", true, now, now))

	bots, err := NewPGBotStore(db).ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, bots, 2)
	assert.Equal(t, int64(1), bots[0].ID)
	assert.Equal(t, "111:aaa", bots[0].Token)
	assert.True(t, bots[0].PaymentConfigured())
	assert.False(t, bots[1].PaymentConfigured())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBotStoreGetNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT .* FROM bots WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)

	_, err := NewPGBotStore(db).Get(context.Background(), 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBotStoreCreateDuplicateToken(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO bots`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := NewPGBotStore(db).Create(context.Background(), &store.BotConfig{OwnerID: 1, Token: "1:x", Type: "store"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestBotStoreUpdateIgnoresUnknownColumns(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`UPDATE bots SET bot_name = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs("New name", sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewPGBotStore(db).Update(context.Background(), 7, map[string]any{
		"bot_name": "New name",
		"user_id":  99,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBotStoreUpdateMissingRow(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`UPDATE bots SET is_active`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewPGBotStore(db).SetActive(context.Background(), 5, false)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
