package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock, now: time.Now}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS engine_snapshots`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	payload := []byte(`[[],0]`)

	mock.ExpectExec(`INSERT INTO engine_snapshots`).
		WithArgs(pgxmock.AnyArg(), 2, payload, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec, err := s.Save(context.Background(), 2, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 2, rec.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO engine_snapshots`).
		WithArgs(pgxmock.AnyArg(), 2, []byte(`[]`), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))

	_, err := s.Save(context.Background(), 2, []byte(`[]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save snapshot")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Latest_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, version, payload, saved_at FROM engine_snapshots`).
		WillReturnError(pgx.ErrNoRows)

	rec, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Latest(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	saved := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, version, payload, saved_at FROM engine_snapshots ORDER BY seq DESC LIMIT 1`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "version", "payload", "saved_at"}).
			AddRow("snap-1", 1, []byte(`["x"]`), saved))

	rec, err := s.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "snap-1", rec.ID)
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, []byte(`["x"]`), rec.Payload)
	assert.Equal(t, saved, rec.SavedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	saved := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, version, payload, saved_at FROM engine_snapshots ORDER BY seq DESC LIMIT \$1`).
		WithArgs(20).
		WillReturnRows(pgxmock.NewRows([]string{"id", "version", "payload", "saved_at"}).
			AddRow("b", 2, []byte(`[]`), saved.Add(time.Minute)).
			AddRow("a", 2, []byte(`[]`), saved))

	list, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Prune(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM engine_snapshots WHERE seq NOT IN`).
		WithArgs(1).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.Prune(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
