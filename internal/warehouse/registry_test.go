package warehouse

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredAdapters(t *testing.T) {
	assert.True(t, IsRegistered("duckdb"))
	assert.True(t, IsRegistered("postgres"))
	assert.False(t, IsRegistered("bigtable"))

	names := ListAdapters()
	assert.Contains(t, names, "duckdb")
	assert.Contains(t, names, "postgres")
}

func TestOpen_UnknownType(t *testing.T) {
	_, err := Open(context.Background(), Config{Type: "snowball"}, nil)
	require.Error(t, err)

	var uerr *UnknownAdapterError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "snowball", uerr.Type)
	assert.Contains(t, uerr.Available, "duckdb")
}

func TestOpen_MissingType(t *testing.T) {
	_, err := Open(context.Background(), Config{}, nil)
	assert.Error(t, err)
}

func TestScanAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"month", "region", "amount"}).
			AddRow("2024-01-01", []byte("us"), 100.5).
			AddRow("2024-02-01", []byte("eu"), 200.0),
	)

	rows, err := db.Query("SELECT month, region, amount FROM t")
	require.NoError(t, err)

	records, err := ScanAll(&Rows{Rows: rows})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "2024-01-01", records[0]["month"])
	assert.Equal(t, "us", records[0]["region"])
	assert.Equal(t, 100.5, records[0]["amount"])
	assert.Equal(t, "eu", records[1]["region"])

	assert.NoError(t, mock.ExpectationsWereMet())
}
