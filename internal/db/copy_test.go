package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "assets", []string{"id", "data"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"assets"}, []string{"id", "region"}).WillReturnResult(3)

	rows := [][]any{{"B-1", "Ontario"}, {"B-2", "Ontario"}, {"B-3", "Quebec"}}
	n, err := CopyFrom(context.Background(), mock, "assets", []string{"id", "region"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_SchemaQualified(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"prism", "assets"}, []string{"id"}).WillReturnResult(1)

	n, err := CopyFrom(context.Background(), mock, "prism.assets", []string{"id"}, [][]any{{"B-1"}})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"assets"}, []string{"id"}).WillReturnError(fmt.Errorf("permission denied"))

	_, err = CopyFrom(context.Background(), mock, "assets", []string{"id"}, [][]any{{"B-1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO assets")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_ShortWrite(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"assets"}, []string{"id"}).WillReturnResult(1)

	n, err := CopyFrom(context.Background(), mock, "assets", []string{"id"}, [][]any{{"B-1"}, {"B-2"}})
	require.Error(t, err)
	assert.Equal(t, int64(1), n)
	assert.Contains(t, err.Error(), "wrote 1 of 2 rows")
}
