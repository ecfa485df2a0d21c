package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prism/internal/asset"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS asset_loads`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceRegion(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	records := []asset.Record{
		bridge("ON-001", "Ontario", asset.ConditionCritical),
		bridge("ON-002", "Ontario", asset.ConditionPoor),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO asset_loads`).
		WithArgs(pgxmock.AnyArg(), "Ontario", "bridge", "bridges.csv", 2, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM assets WHERE region = \$1 AND kind = \$2`).
		WithArgs("Ontario", "bridge").
		WillReturnResult(pgxmock.NewResult("DELETE", 5))
	mock.ExpectCopyFrom(pgx.Identifier{"assets"}, assetColumns).WillReturnResult(2)
	mock.ExpectCommit()

	load, err := s.ReplaceRegion(context.Background(), "Ontario", asset.KindBridge, "bridges.csv", records)
	require.NoError(t, err)
	assert.Equal(t, 2, load.Records)
	assert.Equal(t, asset.KindBridge, load.Kind)
	assert.NotEmpty(t, load.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceRegion_CopyFailsRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO asset_loads`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM assets`).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"assets"}, assetColumns).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := s.ReplaceRegion(context.Background(), "Ontario", asset.KindRoad, "", []asset.Record{road("RD-1", "Ontario")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy assets")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceRegion_BeginFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err := s.ReplaceRegion(context.Background(), "Ontario", asset.KindRoad, "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin replace")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListAssets(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	b := bridge("ON-001", "Ontario", asset.ConditionCritical)
	data, err := encodeRecord(b)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, data FROM assets WHERE region = \$1 ORDER BY kind, id`).
		WithArgs("Ontario").
		WillReturnRows(pgxmock.NewRows([]string{"id", "data"}).AddRow("ON-001", data))

	got, err := s.ListAssets(context.Background(), "Ontario")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b, got[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListAssets_CorruptRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, data FROM assets`).
		WithArgs("Ontario").
		WillReturnRows(pgxmock.NewRows([]string{"id", "data"}).AddRow("ON-001", []byte(`{"kind":"bridge"}`)))

	_, err := s.ListAssets(context.Background(), "Ontario")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stored record ON-001")
}

func TestPostgresStore_ListLoads(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, region, kind, source, record_count, loaded_at FROM asset_loads`).
		WithArgs("Ontario", 50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "region", "kind", "source", "record_count", "loaded_at"}).
			AddRow("load-1", "Ontario", "road", "roads.xlsx", 12, at))

	got, err := s.ListLoads(context.Background(), "Ontario", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Load{ID: "load-1", Region: "Ontario", Kind: asset.KindRoad, Source: "roads.xlsx", Records: 12, LoadedAt: at}, got[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Regions(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT region, kind, COUNT\(\*\) FROM assets`).
		WillReturnRows(pgxmock.NewRows([]string{"region", "kind", "count"}).
			AddRow("Ontario", "bridge", int64(4)).
			AddRow("Ontario", "road", int64(2)).
			AddRow("Quebec", "bridge", int64(1)))

	got, err := s.Regions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []RegionSummary{
		{Region: "Ontario", Bridges: 4, Roads: 2},
		{Region: "Quebec", Bridges: 1},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	closed := false
	s := &PostgresStore{closeFn: func() { closed = true }}
	require.NoError(t, s.Close())
	assert.True(t, closed)
}
