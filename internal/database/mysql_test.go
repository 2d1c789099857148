package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbguardian/internal/logging"
)

func TestListMySQLDatabases(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	rows := sqlmock.NewRows([]string{"Database"}).
		AddRow("information_schema").
		AddRow("appdb").
		AddRow("mysql").
		AddRow("orders").
		AddRow("performance_schema").
		AddRow("sys")
	mock.ExpectQuery("SHOW DATABASES").WillReturnRows(rows)

	names, err := listMySQLDatabases(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, []string{"appdb", "orders"}, names, "system schemas are filtered out")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMySQLDatabasesQueryError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery("SHOW DATABASES").WillReturnError(assert.AnError)

	_, err = listMySQLDatabases(context.Background(), conn)
	assert.Error(t, err)
}

func TestCaptureMySQLGrants(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	accounts := sqlmock.NewRows([]string{"user", "host"}).
		AddRow("app", "%").
		AddRow("readonly", "localhost")
	mock.ExpectQuery("SELECT user, host FROM mysql.user").WillReturnRows(accounts)

	mock.ExpectQuery("SHOW GRANTS FOR 'app'@'%'").WillReturnRows(
		sqlmock.NewRows([]string{"Grants"}).
			AddRow("GRANT USAGE ON *.* TO `app`@`%`").
			AddRow("GRANT ALL PRIVILEGES ON `appdb`.* TO `app`@`%`"))
	mock.ExpectQuery("SHOW GRANTS FOR 'readonly'@'localhost'").WillReturnRows(
		sqlmock.NewRows([]string{"Grants"}).
			AddRow("GRANT SELECT ON `appdb`.* TO `readonly`@`localhost`"))

	grants, err := captureMySQLGrants(context.Background(), conn, logging.NewNopLogger())
	require.NoError(t, err)

	out := string(grants)
	assert.Contains(t, out, "-- Grants captured at backup time\n")
	assert.Contains(t, out, "GRANT ALL PRIVILEGES ON `appdb`.* TO `app`@`%`;\n")
	assert.Contains(t, out, "GRANT SELECT ON `appdb`.* TO `readonly`@`localhost`;\n")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCaptureMySQLGrantsSkipsUnreadableAccount(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	accounts := sqlmock.NewRows([]string{"user", "host"}).
		AddRow("ghost", "%").
		AddRow("app", "%")
	mock.ExpectQuery("SELECT user, host FROM mysql.user").WillReturnRows(accounts)

	mock.ExpectQuery("SHOW GRANTS FOR 'ghost'@'%'").WillReturnError(assert.AnError)
	mock.ExpectQuery("SHOW GRANTS FOR 'app'@'%'").WillReturnRows(
		sqlmock.NewRows([]string{"Grants"}).
			AddRow("GRANT SELECT ON `appdb`.* TO `app`@`%`"))

	grants, err := captureMySQLGrants(context.Background(), conn, logging.NewNopLogger())
	require.NoError(t, err, "one unreadable account does not fail the capture")
	assert.Contains(t, string(grants), "GRANT SELECT ON `appdb`.* TO `app`@`%`;\n")
}
