package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactName(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 30, 45, 0, time.UTC)
	assert.Equal(t, "20240305T143045_mysql_appdb", ArtifactName(ts, "mysql", "appdb"))
}

func TestArtifactNameNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	local := time.Date(2024, 3, 5, 17, 30, 45, 0, loc)
	assert.Equal(t, "20240305T143045_mysql_appdb", ArtifactName(local, "mysql", "appdb"))
}

func TestParseArtifactName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		dbType  string
		dbName  string
		wantErr bool
	}{
		{"bare", "20240305T143045_mysql_appdb", "mysql", "appdb", false},
		{"sql extension", "20240305T143045_postgres_orders.sql", "postgres", "orders", false},
		{"compressed", "20240305T143045_mysql_appdb.sql.gz", "mysql", "appdb", false},
		{"zstd compressed json", "20240305T143045_workflow_credentials.json.zst", "workflow", "credentials", false},
		{"underscores in database name", "20240305T143045_mysql_my_app_db.sql", "mysql", "my_app_db", false},
		{"missing parts", "20240305T143045_mysql", "", "", true},
		{"bad timestamp", "notadate_mysql_appdb.sql", "", "", true},
		{"unrelated file", "README.md", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, dbType, dbName, err := ParseArtifactName(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, time.Date(2024, 3, 5, 14, 30, 45, 0, time.UTC), ts)
			assert.Equal(t, tt.dbType, dbType)
			assert.Equal(t, tt.dbName, dbName)
		})
	}
}

func TestHashEncryptionKey(t *testing.T) {
	assert.Empty(t, HashEncryptionKey(nil))
	assert.Empty(t, HashEncryptionKey([]byte{}))

	first := HashEncryptionKey([]byte("key-material"))
	assert.Len(t, first, 64)
	assert.Equal(t, first, HashEncryptionKey([]byte("key-material")))
	assert.NotEqual(t, first, HashEncryptionKey([]byte("other-key")))
}

func TestVerifyEncryptionKey(t *testing.T) {
	key := []byte("key-material")

	t.Run("matching key", func(t *testing.T) {
		meta := &ArtifactMetadata{EncryptionKeyHash: HashEncryptionKey(key)}
		assert.NoError(t, meta.VerifyEncryptionKey(key))
	})

	t.Run("mismatched key", func(t *testing.T) {
		meta := &ArtifactMetadata{EncryptionKeyHash: HashEncryptionKey(key)}
		err := meta.VerifyEncryptionKey([]byte("wrong-key"))
		require.Error(t, err)
		var opErr *OperationError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, ErrorKindEncryptionKey, opErr.Kind)
	})

	t.Run("source had no key", func(t *testing.T) {
		meta := &ArtifactMetadata{}
		assert.NoError(t, meta.VerifyEncryptionKey(key))
		assert.NoError(t, meta.VerifyEncryptionKey(nil))
	})
}

func TestSidecarRoundTrip(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "20240305T143045_mysql_appdb.sql.gz")
	require.NoError(t, os.WriteFile(artifact, []byte("compressed dump"), 0o600))

	meta := &ArtifactMetadata{
		BackupID:       "op-1234",
		CreatedAt:      time.Date(2024, 3, 5, 14, 30, 45, 0, time.UTC),
		Hostname:       "db-host-01",
		Type:           "mysql",
		FileCount:      1,
		TotalSizeBytes: 8192,
		ChecksumSHA256: "abc123",
		ToolVersion:    ToolVersion,
	}
	require.NoError(t, meta.WriteSidecar(artifact))

	assert.Equal(t, artifact+".meta.json", SidecarPath(artifact))

	loaded, err := ReadSidecar(artifact)
	require.NoError(t, err)
	assert.Equal(t, meta, loaded)
}

func TestReadSidecarMissing(t *testing.T) {
	_, err := ReadSidecar(filepath.Join(t.TempDir(), "nothing.sql"))
	require.Error(t, err)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, ErrorKindStorage, opErr.Kind)
}

func TestReadSidecarCorrupt(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "backup.sql")
	require.NoError(t, os.WriteFile(SidecarPath(artifact), []byte("{not json"), 0o600))

	_, err := ReadSidecar(artifact)
	require.Error(t, err)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, ErrorKindIntegrity, opErr.Kind)
}
