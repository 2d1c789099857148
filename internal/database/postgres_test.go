package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPostgresDatabases(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	rows := sqlmock.NewRows([]string{"datname"}).
		AddRow("appdb").
		AddRow("orders").
		AddRow("postgres")
	mock.ExpectQuery("SELECT datname FROM pg_database WHERE datistemplate = false").WillReturnRows(rows)

	names, err := listPostgresDatabases(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, []string{"appdb", "orders", "postgres"}, names)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPostgresDatabasesQueryError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery("SELECT datname FROM pg_database").WillReturnError(assert.AnError)

	_, err = listPostgresDatabases(context.Background(), conn)
	assert.Error(t, err)
}
