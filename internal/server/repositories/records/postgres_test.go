package records

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

const (
	insertQuery = `(?s)^INSERT\s+INTO\s+records\s*\(id,\s*owner_id,\s*blob\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3\)\s*$`
	selectQuery = `(?s)^SELECT\s+id,\s*blob,\s*created_at,\s*updated_at\s+FROM\s+records\s+WHERE\s+owner_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at,\s*id\s*$`
	updateQuery = `(?s)^UPDATE\s+records\s+SET\s+blob\s*=\s*\$3,\s*updated_at\s*=\s*clock_timestamp\(\)\s+WHERE\s+owner_id\s*=\s*\$1\s+AND\s+id\s*=\s*\$2\s*$`
	deleteQuery = `(?s)^DELETE\s+FROM\s+records\s+WHERE\s+owner_id\s*=\s*\$1\s+AND\s+id\s*=\s*\$2\s*$`
)

func TestInsert(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(insertQuery).
		WithArgs(sqlmock.AnyArg(), "owner", []byte("blob")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := repo.Insert(context.Background(), "owner", []byte("blob"))
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(insertQuery).WillReturnError(errors.New("db down"))

	_, err := repo.Insert(context.Background(), "owner", []byte("blob"))
	require.ErrorContains(t, err, "db error: db down")
}

func TestFetchAll(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "blob", "created_at", "updated_at"}).
		AddRow("a", []byte("1"), t0, t0).
		AddRow("b", []byte("2"), t0.Add(time.Second), t0.Add(time.Hour))
	mock.ExpectQuery(selectQuery).WithArgs("owner").WillReturnRows(rows)

	got, err := repo.FetchAll(context.Background(), "owner")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "owner", got[0].OwnerID)
	assert.Equal(t, []byte("2"), got[1].Blob)
	assert.True(t, got[1].UpdatedAt.Equal(t0.Add(time.Hour)))
}

func TestFetchAll_Empty(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(selectQuery).WithArgs("owner").
		WillReturnRows(sqlmock.NewRows([]string{"id", "blob", "created_at", "updated_at"}))

	got, err := repo.FetchAll(context.Background(), "owner")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetchAll_RowError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	rows := sqlmock.NewRows([]string{"id", "blob", "created_at", "updated_at"}).
		AddRow("a", []byte("1"), time.Now(), time.Now()).
		RowError(0, errors.New("connection reset"))
	mock.ExpectQuery(selectQuery).WithArgs("owner").WillReturnRows(rows)

	_, err := repo.FetchAll(context.Background(), "owner")
	require.ErrorContains(t, err, "connection reset")
}

func TestUpdate(t *testing.T) {
	id := uuid.NewString()

	tests := []struct {
		name    string
		setup   func(sqlmock.Sqlmock)
		id      string
		wantErr error
	}{
		{
			name: "updated",
			id:   id,
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec(updateQuery).WithArgs("owner", id, []byte("new")).WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "missing or foreign",
			id:   id,
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec(updateQuery).WithArgs("owner", id, []byte("new")).WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: common.ErrorNotFound,
		},
		{
			name:    "not a uuid",
			id:      "rec-1",
			setup:   func(sqlmock.Sqlmock) {},
			wantErr: common.ErrorNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepoWithMock(t)
			tt.setup(mock)

			err := repo.Update(context.Background(), "owner", tt.id, []byte("new"))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDelete(t *testing.T) {
	id := uuid.NewString()

	t.Run("deleted", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(deleteQuery).WithArgs("owner", id).WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.Delete(context.Background(), "owner", id))
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(deleteQuery).WithArgs("owner", id).WillReturnResult(sqlmock.NewResult(0, 0))
		require.ErrorIs(t, repo.Delete(context.Background(), "owner", id), common.ErrorNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(deleteQuery).WithArgs("owner", id).WillReturnError(sql.ErrConnDone)
		err := repo.Delete(context.Background(), "owner", id)
		require.ErrorIs(t, err, sql.ErrConnDone)
		require.NotErrorIs(t, err, common.ErrorNotFound)
	})
}
