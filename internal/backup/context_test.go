package backup

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOperation(t *testing.T) {
	op := testOperation(KindBackup)

	assert.NotEmpty(t, op.ID)
	assert.Equal(t, KindBackup, op.Kind)
	assert.Equal(t, StatusPending, op.Status)
	assert.Nil(t, op.StartedAt)
	assert.NotNil(t, op.Validations)

	other := testOperation(KindBackup)
	assert.NotEqual(t, op.ID, other.ID)
}

func TestOperationLifecycle(t *testing.T) {
	op := testOperation(KindBackup)

	require.NoError(t, op.Start())
	assert.Equal(t, StatusRunning, op.Status)
	require.NotNil(t, op.StartedAt)

	require.NoError(t, op.Complete())
	assert.Equal(t, StatusCompleted, op.Status)
	require.NotNil(t, op.EndedAt)
	assert.True(t, op.IsTerminal())
}

func TestOperationFail(t *testing.T) {
	op := testOperation(KindRestore)
	require.NoError(t, op.Start())

	require.NoError(t, op.Fail("psql exited with status 3"))
	assert.Equal(t, StatusFailed, op.Status)
	assert.Equal(t, "psql exited with status 3", op.ErrorMessage)
	assert.True(t, op.IsTerminal())
}

func TestOperationInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		run  func(op *Operation) error
	}{
		{"start twice", func(op *Operation) error {
			_ = op.Start()
			return op.Start()
		}},
		{"complete before start", func(op *Operation) error {
			return op.Complete()
		}},
		{"fail before start", func(op *Operation) error {
			return op.Fail("boom")
		}},
		{"complete after fail", func(op *Operation) error {
			_ = op.Start()
			_ = op.Fail("boom")
			return op.Complete()
		}},
		{"start after complete", func(op *Operation) error {
			_ = op.Start()
			_ = op.Complete()
			return op.Start()
		}},
		{"reject after start", func(op *Operation) error {
			_ = op.Start()
			return op.Reject("boom")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(testOperation(KindBackup))
			require.Error(t, err)
			var opErr *OperationError
			require.ErrorAs(t, err, &opErr)
			assert.Equal(t, ErrorKindValidation, opErr.Kind)
		})
	}
}

func TestOperationReject(t *testing.T) {
	op := testOperation(KindBackup)

	require.NoError(t, op.Reject("missing storage configuration"))
	assert.Equal(t, StatusFailed, op.Status)
	assert.Equal(t, "missing storage configuration", op.ErrorMessage)
	assert.True(t, op.IsTerminal())
	assert.Nil(t, op.StartedAt)

	_, ok := op.Duration()
	assert.False(t, ok, "a rejected operation has no duration")
}

func TestMarkRolledBack(t *testing.T) {
	op := testOperation(KindRestore)
	require.NoError(t, op.Start())
	require.NoError(t, op.Fail("restore failed"))

	require.NoError(t, op.MarkRolledBack())
	assert.Equal(t, StatusRolledBack, op.Status)
	assert.True(t, op.IsTerminal())
}

func TestMarkRolledBackRequiresFailedRestore(t *testing.T) {
	t.Run("backup operations cannot roll back", func(t *testing.T) {
		op := testOperation(KindBackup)
		require.NoError(t, op.Start())
		require.NoError(t, op.Fail("boom"))
		assert.Error(t, op.MarkRolledBack())
	})

	t.Run("completed restores cannot roll back", func(t *testing.T) {
		op := testOperation(KindRestore)
		require.NoError(t, op.Start())
		require.NoError(t, op.Complete())
		assert.Error(t, op.MarkRolledBack())
	})
}

func TestOperationDuration(t *testing.T) {
	op := testOperation(KindBackup)

	_, ok := op.Duration()
	assert.False(t, ok, "duration is undefined before start")

	start := time.Now().Add(-90 * time.Second)
	end := start.Add(90 * time.Second)
	op.Status = StatusCompleted
	op.StartedAt = &start
	op.EndedAt = &end

	d, ok := op.Duration()
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, d)
}

func TestCompressionRatio(t *testing.T) {
	op := testOperation(KindBackup)

	_, ok := op.CompressionRatio()
	assert.False(t, ok)

	op.RawSizeBytes = 1000
	op.CompressedSizeBytes = 250
	ratio, ok := op.CompressionRatio()
	require.True(t, ok)
	assert.InDelta(t, 4.0, ratio, 0.001)
}

func TestRecordValidation(t *testing.T) {
	op := testOperation(KindBackup)
	op.Validations = nil

	op.RecordValidation("checksum_computed", true)
	op.RecordValidation("sidecar_present", false)

	assert.True(t, op.Validations["checksum_computed"])
	assert.False(t, op.Validations["sidecar_present"])
}

func TestBuildReportOmitsPassword(t *testing.T) {
	op := testOperation(KindBackup)
	op.Database.Username = "backup"
	op.Database.Password = "s3cret"
	require.NoError(t, op.Start())
	require.NoError(t, op.Complete())

	report := op.BuildReport()
	require.NotNil(t, report)
	assert.Equal(t, op.ID, report.ID)
	assert.Equal(t, "appdb", report.DatabaseName)

	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "s3cret")
}
