package database

import (
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbguardian/internal/backup"
	"dbguardian/internal/logging"
)

func TestNewAdapter(t *testing.T) {
	logger := logging.NewNopLogger()

	adapter, err := NewAdapter("mysql", logger)
	require.NoError(t, err)
	assert.Equal(t, "mysql", adapter.Type())
	assert.Equal(t, ".sql", adapter.Extension())

	adapter, err = NewAdapter("postgres", logger)
	require.NoError(t, err)
	assert.Equal(t, "postgres", adapter.Type())

	adapter, err = NewAdapter("postgresql", logger)
	require.NoError(t, err)
	assert.Equal(t, "postgres", adapter.Type(), "postgresql is an alias")
}

func TestNewAdapterUnknownType(t *testing.T) {
	_, err := NewAdapter("oracle", logging.NewNopLogger())
	require.Error(t, err)
	var opErr *backup.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, backup.ErrorKindValidation, opErr.Kind)
}

func TestClassifyExecError(t *testing.T) {
	exitErr := errors.New("exit status 1")

	tests := []struct {
		name   string
		err    error
		output string
		kind   backup.ErrorKind
	}{
		{
			name: "tool not installed",
			err:  &exec.Error{Name: "mysqldump", Err: exec.ErrNotFound},
			kind: backup.ErrorKindValidation,
		},
		{
			name:   "mysql access denied",
			err:    exitErr,
			output: "mysqldump: Got error: 1045: Access denied for user 'backup'@'%'",
			kind:   backup.ErrorKindValidation,
		},
		{
			name:   "postgres authentication failed",
			err:    exitErr,
			output: `psql: error: FATAL: password authentication failed for user "backup"`,
			kind:   backup.ErrorKindValidation,
		},
		{
			name:   "connection refused",
			err:    exitErr,
			output: "mysqldump: Got error: 2002: Can't connect to MySQL server: Connection refused",
			kind:   backup.ErrorKindInfrastructure,
		},
		{
			name:   "postgres could not connect",
			err:    exitErr,
			output: "pg_dump: error: could not connect to server",
			kind:   backup.ErrorKindInfrastructure,
		},
		{
			name:   "database starting up",
			err:    exitErr,
			output: "psql: error: FATAL: the database system is starting up",
			kind:   backup.ErrorKindInfrastructure,
		},
		{
			name:   "unknown host",
			err:    exitErr,
			output: "pg_dump: error: could not translate host name: No such host is known",
			kind:   backup.ErrorKindInfrastructure,
		},
		{
			name:   "tool reported failure",
			err:    exitErr,
			output: "mysqldump: Couldn't execute 'SHOW TRIGGERS': table is corrupt",
			kind:   backup.ErrorKindTool,
		},
		{
			name: "no output at all",
			err:  exitErr,
			kind: backup.ErrorKindTool,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyExecError("testtool", tt.err, tt.output)
			var opErr *backup.OperationError
			require.ErrorAs(t, err, &opErr)
			assert.Equal(t, tt.kind, opErr.Kind)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassifyExecErrorRetrySemantics(t *testing.T) {
	transient := classifyExecError("mysql", errors.New("exit status 1"), "ERROR 2002: Connection refused")
	assert.True(t, backup.IsRetryable(transient), "an unreachable server is worth retrying")

	denied := classifyExecError("mysql", errors.New("exit status 1"), "Access denied for user")
	assert.False(t, backup.IsRetryable(denied), "bad credentials never fix themselves")
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "first", firstLine("first\nsecond\nthird"))
	assert.Equal(t, "only", firstLine("  only  \n"))
	assert.Equal(t, "", firstLine(""))

	long := strings.Repeat("x", 500)
	assert.Len(t, firstLine(long), 300)
}
