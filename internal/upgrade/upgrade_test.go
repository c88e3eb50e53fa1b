package upgrade

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSchema(t *testing.T) {
	tests := []struct {
		name    string
		exists  bool
		version int64
		dirty   bool
		wantErr error
	}{
		{name: "fresh database", exists: false, wantErr: ErrSchemaOutdated},
		{name: "up to date", exists: true, version: 1},
		{name: "dirty", exists: true, version: 1, dirty: true, wantErr: ErrSchemaDirty},
		{name: "ahead", exists: true, version: 2, wantErr: ErrSchemaAhead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectQuery("information_schema.tables").
				WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(tt.exists))
			if tt.exists {
				mock.ExpectQuery("SELECT version, dirty FROM schema_migrations").
					WillReturnRows(sqlmock.NewRows([]string{"version", "dirty"}).AddRow(tt.version, tt.dirty))
			}

			s, err := CheckSchema(context.Background(), db)
			require.NoError(t, err)
			assert.Equal(t, uint(tt.version), s.CurrentVersion)
			assert.Equal(t, tt.wantErr, s.Err())
			assert.Equal(t, tt.wantErr == nil, s.Compatible())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDescribe(t *testing.T) {
	assert.Contains(t, Describe(&SchemaStatus{CurrentVersion: 1, RequiredVersion: 1, Dirty: true}), "migrate force 0")
	assert.Contains(t, Describe(&SchemaStatus{CurrentVersion: 0, RequiredVersion: 1}), "migrate up")
	assert.Contains(t, Describe(&SchemaStatus{CurrentVersion: 1, RequiredVersion: 1}), "up to date")
}

func TestRunPendingHooks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS data_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM data_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectExec("UPDATE users SET email = LOWER").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO data_migrations").
		WithArgs("001_normalize_user_emails", uint(1)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	n, err := RunPendingHooks(context.Background(), db, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunPendingHooksSkipsApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS data_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM data_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("001_normalize_user_emails"))

	n, err := RunPendingHooks(context.Background(), db, 1)
	require.NoError(t, err)
	assert.Zero(t, n)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS data_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM data_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("001_normalize_user_emails"))
	pending, err := PendingHooks(context.Background(), db)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.NoError(t, mock.ExpectationsWereMet())
}
