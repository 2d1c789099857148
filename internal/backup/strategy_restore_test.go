package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runBackup produces a real artifact in storage for restore tests to consume.
func runBackup(t *testing.T, storage *memStorage, dump string, policy func(*BackupPolicy)) string {
	t.Helper()
	adapter := &fakeAdapter{dump: []byte(dump)}
	op := testOperation(KindBackup)
	op.Policy.WorkDir = t.TempDir()
	if policy != nil {
		policy(op.Policy)
	}
	require.NoError(t, NewBackupStrategy(backupDeps(adapter, storage)).Execute(context.Background(), op))
	return op.StorageLocation
}

func TestRestoreStrategyExecute(t *testing.T) {
	storage := newMemStorage()
	location := runBackup(t, storage, "CREATE TABLE users (id INT);\n", nil)

	adapter := &fakeAdapter{}
	strategy := NewRestoreStrategy(backupDeps(adapter, storage))

	op := testOperation(KindRestore)
	op.Policy.WorkDir = t.TempDir()
	op.SourceBackupID = location

	require.NoError(t, strategy.Execute(context.Background(), op))

	assert.Equal(t, "CREATE TABLE users (id INT);\n", string(adapter.restored))
	assert.True(t, op.Validations["checksum_verified"])
	assert.NotEmpty(t, op.Checksum)
}

func TestRestoreStrategyDecompressesBeforeApply(t *testing.T) {
	storage := newMemStorage()
	location := runBackup(t, storage, strings.Repeat("INSERT INTO t VALUES (1);\n", 200), func(p *BackupPolicy) {
		p.Compression = CompressionTypeZstd
		p.CompressionLevel = 3
	})
	require.True(t, strings.HasSuffix(location, ".zst"))

	adapter := &fakeAdapter{}
	strategy := NewRestoreStrategy(backupDeps(adapter, storage))

	op := testOperation(KindRestore)
	op.Policy.WorkDir = t.TempDir()
	op.SourceBackupID = location

	require.NoError(t, strategy.Execute(context.Background(), op))

	assert.Contains(t, string(adapter.restored), "INSERT INTO t VALUES (1);")
	assert.True(t, strings.HasSuffix(adapter.restoreFrom, ".sql"),
		"the adapter receives the decompressed dump")
}

func TestRestoreStrategyRequiresSource(t *testing.T) {
	strategy := NewRestoreStrategy(backupDeps(&fakeAdapter{}, newMemStorage()))
	op := testOperation(KindRestore)

	err := strategy.Execute(context.Background(), op)

	require.Error(t, err)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, ErrorKindValidation, opErr.Kind)
}

func TestRestoreStrategyUnknownSource(t *testing.T) {
	strategy := NewRestoreStrategy(backupDeps(&fakeAdapter{}, newMemStorage()))
	op := testOperation(KindRestore)
	op.Policy.WorkDir = t.TempDir()
	op.SourceBackupID = "20240101T000000_mysql_ghost.sql"

	err := strategy.Execute(context.Background(), op)

	require.Error(t, err)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, ErrorKindValidation, opErr.Kind)
	assert.Contains(t, opErr.Message, "not found")
}

func TestRestoreStrategyChecksumMismatch(t *testing.T) {
	storage := newMemStorage()
	location := runBackup(t, storage, "CREATE TABLE users (id INT);\n", nil)

	// Corrupt the stored artifact after the sidecar was written.
	storage.put(location, []byte("tampered contents"))

	adapter := &fakeAdapter{}
	strategy := NewRestoreStrategy(backupDeps(adapter, storage))

	op := testOperation(KindRestore)
	op.Policy.WorkDir = t.TempDir()
	op.SourceBackupID = location

	err := strategy.Execute(context.Background(), op)

	require.Error(t, err)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, ErrorKindIntegrity, opErr.Kind)
	assert.False(t, op.Validations["checksum_verified"])
	assert.Nil(t, adapter.restored, "a corrupt artifact never reaches the database")
}

func TestRestoreStrategyMissingSidecarIsTolerated(t *testing.T) {
	storage := newMemStorage()
	location := runBackup(t, storage, "SELECT 1;\n", nil)
	require.NoError(t, storage.Delete(context.Background(), location+".meta.json"))

	adapter := &fakeAdapter{}
	strategy := NewRestoreStrategy(backupDeps(adapter, storage))

	op := testOperation(KindRestore)
	op.Policy.WorkDir = t.TempDir()
	op.SourceBackupID = location

	require.NoError(t, strategy.Execute(context.Background(), op))
	assert.False(t, op.Validations["checksum_verified"], "verification is recorded as skipped, not passed")
	assert.Equal(t, "SELECT 1;\n", string(adapter.restored))
}

func TestRestoreStrategyEncryptionKeyMismatch(t *testing.T) {
	storage := newMemStorage()
	backupAdapter := &fakeAdapter{dump: []byte(`[{"id":"1","name":"n","type":"t","data":{}}]`)}
	backupDepsSet := backupDeps(backupAdapter, storage)
	backupDepsSet.EncryptionKeyHash = HashEncryptionKey([]byte("source-key"))

	backupOp := testOperation(KindBackup)
	backupOp.Policy.WorkDir = t.TempDir()
	require.NoError(t, NewBackupStrategy(backupDepsSet).Execute(context.Background(), backupOp))

	restoreDeps := backupDeps(&fakeAdapter{}, storage)
	restoreDeps.EncryptionKeyHash = HashEncryptionKey([]byte("different-key"))
	strategy := NewRestoreStrategy(restoreDeps)

	op := testOperation(KindRestore)
	op.Policy.WorkDir = t.TempDir()
	op.SourceBackupID = backupOp.StorageLocation

	err := strategy.Execute(context.Background(), op)

	require.Error(t, err)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, ErrorKindEncryptionKey, opErr.Kind)
	assert.False(t, op.Validations["encryption_key_verified"])
}

func TestRollbackRestoreSkipsValidation(t *testing.T) {
	storage := newMemStorage()
	location := runBackup(t, storage, "SELECT 1;\n", nil)

	// Corrupt the artifact; rollback mode must still apply it.
	storage.put(location, []byte("SELECT 2;\n"))

	adapter := &fakeAdapter{}
	strategy := NewRollbackRestoreStrategy(backupDeps(adapter, storage))

	op := testOperation(KindRestore)
	op.Policy.WorkDir = t.TempDir()
	op.SourceBackupID = location

	require.NoError(t, strategy.Execute(context.Background(), op))
	assert.Equal(t, "SELECT 2;\n", string(adapter.restored))
}

func TestRestoreStrategyRewritesDatabaseName(t *testing.T) {
	storage := newMemStorage()
	dump := "CREATE DATABASE `sourcedb`;\nUSE `sourcedb`;\nCREATE TABLE t (id INT);\n"
	adapter := &fakeAdapter{dump: []byte(dump)}
	backupOp := testOperation(KindBackup)
	backupOp.Database.Database = "sourcedb"
	backupOp.Policy.WorkDir = t.TempDir()
	require.NoError(t, NewBackupStrategy(backupDeps(adapter, storage)).Execute(context.Background(), backupOp))

	restoreAdapter := &fakeAdapter{}
	strategy := NewRestoreStrategy(backupDeps(restoreAdapter, storage))

	op := testOperation(KindRestore)
	op.Database.Database = "targetdb"
	op.Policy.WorkDir = t.TempDir()
	op.SourceBackupID = backupOp.StorageLocation

	require.NoError(t, strategy.Execute(context.Background(), op))

	restored := string(restoreAdapter.restored)
	assert.Contains(t, restored, "CREATE DATABASE `targetdb`;")
	assert.Contains(t, restored, "USE `targetdb`;")
	assert.NotContains(t, restored, "sourcedb")
	assert.Contains(t, restored, "CREATE TABLE t (id INT);", "data statements are untouched")
}

func TestRestoreStrategyLocalFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manual-dump.sql")
	require.NoError(t, os.WriteFile(path, []byte("SELECT 42;\n"), 0o600))

	adapter := &fakeAdapter{}
	strategy := NewRestoreStrategy(backupDeps(adapter, newMemStorage()))

	op := testOperation(KindRestore)
	op.Policy.WorkDir = t.TempDir()
	op.SourceBackupID = path

	require.NoError(t, strategy.Execute(context.Background(), op))
	assert.Equal(t, "SELECT 42;\n", string(adapter.restored))
}
