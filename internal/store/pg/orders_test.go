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

func TestOrderStoreMarkPaidOnlyOnce(t *testing.T) {
	db, mock := newMock(t)
	s := NewPGOrderStore(db)
	paidAt := time.Now()

	mock.ExpectExec(`UPDATE orders SET status = 'paid'`).
		WithArgs(paidAt, "ORD-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE orders SET status = 'paid'`).
		WithArgs(paidAt, "ORD-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.MarkPaid(context.Background(), "ORD-1", paidAt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkPaid(context.Background(), "ORD-1", paidAt)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderStoreStats(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"total", "completed", "revenue"}).AddRow(5, 2, 30000))

	st, err := NewPGOrderStore(db).Stats(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, store.OrderStats{TotalTransactions: 5, CompletedTransactions: 2, TotalRevenue: 30000}, *st)
}

func TestOrderStoreGetByOrderIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT .* FROM orders o`).
		WithArgs("ORD-missing").
		WillReturnError(sql.ErrNoRows)

	_, err := NewPGOrderStore(db).GetByOrderID(context.Background(), "ORD-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCatalogTakeStockSoldOut(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT unlimited, content FROM products`).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"unlimited", "content"}).AddRow(false, ""))
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := NewPGCatalogStore(db).TakeStock(context.Background(), 9, "ORD-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogTakeStockClaimsItem(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT unlimited, content FROM products`).
		WillReturnRows(sqlmock.NewRows([]string{"unlimited", "content"}).AddRow(false, ""))
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "content"}).AddRow(31, "user@mail:pass"))
	mock.ExpectExec(`UPDATE product_stock SET is_sold = true`).
		WithArgs("ORD-3", sqlmock.AnyArg(), int64(31)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	item, err := NewPGCatalogStore(db).TakeStock(context.Background(), 9, "ORD-3")
	require.NoError(t, err)
	assert.Equal(t, "user@mail:pass", item.Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogAddStockSkipsBlankLines(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO product_stock`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := NewPGCatalogStore(db).AddStock(context.Background(), 4, []string{"a", "  ", "b", ""})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = NewPGCatalogStore(db).AddStock(context.Background(), 4, []string{" "})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
