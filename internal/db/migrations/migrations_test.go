package migrations

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMigrations = []*Migration{
	{
		ID:      "001_test",
		Name:    "001_test",
		UpSQL:   "CREATE TABLE test1 (id INTEGER);",
		DownSQL: "DROP TABLE test1;",
	},
	{
		ID:      "002_test",
		Name:    "002_test",
		UpSQL:   "CREATE TABLE test2 (id INTEGER);",
		DownSQL: "DROP TABLE test2;",
	},
}

func newMock(t *testing.T) (*Migrator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func expectApplied(mock sqlmock.Sqlmock, names ...string) {
	rows := sqlmock.NewRows([]string{"name"})
	for _, n := range names {
		rows.AddRow(n)
	}
	mock.ExpectQuery(`SELECT name FROM schema_migrations ORDER BY id`).WillReturnRows(rows)
}

func expectStep(mock sqlmock.Sqlmock, stmt, record, name string) {
	mock.ExpectBegin()
	mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(record).WithArgs(name).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func TestAll(t *testing.T) {
	all := All()
	require.Len(t, all, 2)
	assert.Equal(t, "001_initial_schema", all[0].Name)
	assert.Equal(t, "002_retention_policies", all[1].Name)

	for _, table := range []string{"calibration_runs", "sefd_measurements", "pipeline_stats"} {
		assert.Contains(t, all[0].UpSQL, "CREATE TABLE IF NOT EXISTS "+table)
		assert.Contains(t, all[0].DownSQL, "DROP TABLE IF EXISTS "+table)
	}
	assert.Contains(t, all[0].UpSQL, "create_hypertable('sefd_measurements', 'time')")
	assert.Contains(t, all[1].UpSQL, "sefd_daily")
	assert.True(t, strings.Contains(all[1].DownSQL, "remove_retention_policy('sefd_measurements')"))
}

func TestMigratorInitialize(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "successful initialization",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
					WillReturnError(sql.ErrConnDone)
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, mock := newMock(t)
			tt.setupMock(mock)

			err := m.Initialize(context.Background())
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMigratorApplied(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(sqlmock.Sqlmock)
		expectError bool
		want        map[string]bool
	}{
		{
			name:      "no applied migrations",
			setupMock: func(mock sqlmock.Sqlmock) { expectApplied(mock) },
			want:      map[string]bool{},
		},
		{
			name: "multiple applied migrations",
			setupMock: func(mock sqlmock.Sqlmock) {
				expectApplied(mock, "001_initial_schema", "002_retention_policies")
			},
			want: map[string]bool{"001_initial_schema": true, "002_retention_policies": true},
		},
		{
			name: "query error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT name FROM schema_migrations`).WillReturnError(sql.ErrConnDone)
			},
			expectError: true,
		},
		{
			name: "row error",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"name"}).
					AddRow("001_initial_schema").
					RowError(0, sql.ErrNoRows)
				mock.ExpectQuery(`SELECT name FROM schema_migrations`).WillReturnRows(rows)
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, mock := newMock(t)
			tt.setupMock(mock)

			got, err := m.Applied(context.Background())
			if tt.expectError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMigratorPending(t *testing.T) {
	m, mock := newMock(t)
	expectApplied(mock, "001_test")

	pending, err := m.Pending(context.Background(), testMigrations)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "002_test", pending[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigratorApplyAndRevert(t *testing.T) {
	mig := testMigrations[0]

	tests := []struct {
		name        string
		revert      bool
		setupMock   func(sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "apply",
			setupMock: func(mock sqlmock.Sqlmock) {
				expectStep(mock, `CREATE TABLE test1`, `INSERT INTO schema_migrations`, "001_test")
			},
		},
		{
			name:   "revert",
			revert: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				expectStep(mock, `DROP TABLE test1`, `DELETE FROM schema_migrations WHERE name`, "001_test")
			},
		},
		{
			name: "begin error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(sql.ErrConnDone)
			},
			expectError: true,
		},
		{
			name: "statement error rolls back",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`CREATE TABLE test1`).WillReturnError(sql.ErrConnDone)
				mock.ExpectRollback()
			},
			expectError: true,
		},
		{
			name:   "record error rolls back",
			revert: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`DROP TABLE test1`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(`DELETE FROM schema_migrations`).WithArgs("001_test").WillReturnError(sql.ErrConnDone)
				mock.ExpectRollback()
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, mock := newMock(t)
			tt.setupMock(mock)

			var err error
			if tt.revert {
				err = m.Revert(context.Background(), mig)
			} else {
				err = m.Apply(context.Background(), mig)
			}
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMigratorMigrate(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(sqlmock.Sqlmock)
		want        int
		expectError bool
	}{
		{
			name: "all pending",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
				expectApplied(mock)
				expectStep(mock, `CREATE TABLE test1`, `INSERT INTO schema_migrations`, "001_test")
				expectStep(mock, `CREATE TABLE test2`, `INSERT INTO schema_migrations`, "002_test")
			},
			want: 2,
		},
		{
			name: "partially applied",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
				expectApplied(mock, "001_test")
				expectStep(mock, `CREATE TABLE test2`, `INSERT INTO schema_migrations`, "002_test")
			},
			want: 1,
		},
		{
			name: "up to date",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
				expectApplied(mock, "001_test", "002_test")
			},
			want: 0,
		},
		{
			name: "second migration fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
				expectApplied(mock)
				expectStep(mock, `CREATE TABLE test1`, `INSERT INTO schema_migrations`, "001_test")
				mock.ExpectBegin()
				mock.ExpectExec(`CREATE TABLE test2`).WillReturnError(sql.ErrConnDone)
				mock.ExpectRollback()
			},
			want:        1,
			expectError: true,
		},
		{
			name: "initialization error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnError(sql.ErrConnDone)
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, mock := newMock(t)
			tt.setupMock(mock)

			n, err := m.Migrate(context.Background(), testMigrations)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, n)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMigratorRollback(t *testing.T) {
	t.Run("rolls back the last applied", func(t *testing.T) {
		m, mock := newMock(t)
		expectApplied(mock, "001_test", "002_test")
		expectStep(mock, `DROP TABLE test2`, `DELETE FROM schema_migrations WHERE name`, "002_test")

		last, err := m.Rollback(context.Background(), testMigrations)
		require.NoError(t, err)
		assert.Equal(t, "002_test", last.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nothing applied", func(t *testing.T) {
		m, mock := newMock(t)
		expectApplied(mock)

		_, err := m.Rollback(context.Background(), testMigrations)
		assert.ErrorIs(t, err, ErrNothingToRollback)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		m, mock := newMock(t)
		mock.ExpectQuery(`SELECT name FROM schema_migrations`).WillReturnError(sql.ErrConnDone)

		_, err := m.Rollback(context.Background(), testMigrations)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
