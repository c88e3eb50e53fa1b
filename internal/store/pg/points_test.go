package pg

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/botfleet/internal/store"
)

func TestUseCardKey(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	keyCols := []string{"id", "balance", "max_uses", "current_uses", "expire_at"}

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		want    int
		wantErr error
	}{
		{
			name: "not found",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM pv_card_keys`).WillReturnError(sql.ErrNoRows)
			},
			wantErr: store.ErrKeyNotFound,
		},
		{
			name: "exhausted",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM pv_card_keys`).
					WillReturnRows(sqlmock.NewRows(keyCols).AddRow(1, 5, 1, 1, nil))
			},
			wantErr: store.ErrKeyExhausted,
		},
		{
			name: "expired",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM pv_card_keys`).
					WillReturnRows(sqlmock.NewRows(keyCols).AddRow(1, 5, 3, 0, now.Add(-time.Hour)))
			},
			wantErr: store.ErrKeyExpired,
		},
		{
			name: "already used",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM pv_card_keys`).
					WillReturnRows(sqlmock.NewRows(keyCols).AddRow(1, 5, 3, 1, nil))
				mock.ExpectExec(`INSERT INTO pv_card_key_uses`).WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: store.ErrKeyAlreadyUsed,
		},
		{
			name: "success",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM pv_card_keys`).
					WillReturnRows(sqlmock.NewRows(keyCols).AddRow(1, 5, 3, 1, now.Add(time.Hour)))
				mock.ExpectExec(`INSERT INTO pv_card_key_uses`).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(`UPDATE pv_card_keys SET current_uses`).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(`UPDATE pv_users SET balance`).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			want: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectBegin()
			tt.setup(mock)
			if tt.wantErr != nil {
				mock.ExpectRollback()
			}

			got, err := NewPGPointsStore(db).UseCardKey(context.Background(), 1, "ABCD1234", 77, now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAddVerificationInsufficientBalance(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE pv_users SET balance = balance - \$1`).
		WithArgs(1, int64(2), int64(3)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := NewPGPointsStore(db).AddVerification(context.Background(), 2, 3, "gemini", 1)
	assert.ErrorIs(t, err, store.ErrInsufficientBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckInOncePerDay(t *testing.T) {
	db, mock := newMock(t)
	day := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE pv_users SET balance = balance \+ \$1, last_checkin`).
		WithArgs(1, "2026-03-01", int64(1), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := NewPGPointsStore(db).CheckIn(context.Background(), 1, 5, day, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
