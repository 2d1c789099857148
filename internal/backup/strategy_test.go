package backup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbguardian/internal/logging"
)

func testStrategyDeps() StrategyDeps {
	return StrategyDeps{
		Storage:     newMemStorage(),
		Compression: NewCompressionManager(),
		Validator:   NewIntegrityValidator(),
		Logger:      logging.NewNopLogger(),
	}
}

func TestRegistryBuiltins(t *testing.T) {
	registry := NewRegistry()
	assert.Equal(t, []string{StrategyNameBackup, StrategyNameRestore}, registry.Names())

	backup, err := registry.Resolve(StrategyNameBackup, testStrategyDeps())
	require.NoError(t, err)
	assert.IsType(t, &BackupStrategy{}, backup)
	assert.Equal(t, StrategyNameBackup, backup.Name())

	restore, err := registry.Resolve(StrategyNameRestore, testStrategyDeps())
	require.NoError(t, err)
	assert.IsType(t, &RestoreStrategy{}, restore)
	assert.Equal(t, StrategyNameRestore, restore.Name())
}

func TestRegistryUnknownName(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Resolve("incremental", testStrategyDeps())

	require.Error(t, err)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, ErrorKindValidation, opErr.Kind)
	assert.Contains(t, opErr.Message, "incremental")
	assert.Contains(t, opErr.Message, "available")
	assert.False(t, IsRetryable(err), "an unknown strategy is a configuration error, never retried")
}

func TestRegistryRegisterCustom(t *testing.T) {
	registry := NewRegistry()
	registry.Register("noop", func(deps StrategyDeps) Strategy {
		return &stubStrategy{name: "noop"}
	})

	assert.Equal(t, []string{StrategyNameBackup, "noop", StrategyNameRestore}, registry.Names())

	strategy, err := registry.Resolve("noop", testStrategyDeps())
	require.NoError(t, err)
	assert.Equal(t, "noop", strategy.Name())
}

func TestRegistryRegisterReplaces(t *testing.T) {
	registry := NewRegistry()
	replacement := &stubStrategy{name: StrategyNameBackup}
	registry.Register(StrategyNameBackup, func(deps StrategyDeps) Strategy { return replacement })

	strategy, err := registry.Resolve(StrategyNameBackup, testStrategyDeps())
	require.NoError(t, err)
	assert.Same(t, replacement, strategy)
}
