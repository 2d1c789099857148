package backup

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupPolicySetDefaults(t *testing.T) {
	policy := &BackupPolicy{}
	policy.SetDefaults()

	assert.Equal(t, os.TempDir(), policy.WorkDir)
	assert.Equal(t, CompressionTypeGzip, policy.Compression)
	assert.Equal(t, 6, policy.CompressionLevel)
}

func TestBackupPolicySetDefaultsKeepsExplicitValues(t *testing.T) {
	policy := &BackupPolicy{WorkDir: "/var/tmp/dbguardian", Compression: CompressionTypeZstd, CompressionLevel: 3}
	policy.SetDefaults()

	assert.Equal(t, "/var/tmp/dbguardian", policy.WorkDir)
	assert.Equal(t, CompressionTypeZstd, policy.Compression)
	assert.Equal(t, 3, policy.CompressionLevel)
}

func TestBackupPolicyValidate(t *testing.T) {
	policy := &BackupPolicy{Compression: CompressionTypeLZ4}
	assert.NoError(t, policy.Validate())

	policy.Compression = CompressionType("SNAPPY")
	err := policy.Validate()
	require.Error(t, err)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, ErrorKindValidation, opErr.Kind)
}

func TestBackupPolicyLoadFromEnvironment(t *testing.T) {
	t.Setenv("DBGUARDIAN_WORK_DIR", "/mnt/scratch")
	t.Setenv("DBGUARDIAN_COMPRESSION", "zstd")
	t.Setenv("DBGUARDIAN_COMPRESSION_LEVEL", "9")
	t.Setenv("DBGUARDIAN_CAPTURE_GRANTS", "true")
	t.Setenv("DBGUARDIAN_CLEANUP", "TRUE")

	policy := &BackupPolicy{}
	policy.LoadFromEnvironment()

	assert.Equal(t, "/mnt/scratch", policy.WorkDir)
	assert.Equal(t, CompressionTypeZstd, policy.Compression, "compression names are case-insensitive")
	assert.Equal(t, 9, policy.CompressionLevel)
	assert.True(t, policy.CaptureGrants)
	assert.True(t, policy.Cleanup)
}

func TestRetentionPolicyLoadFromEnvironment(t *testing.T) {
	t.Setenv("DBGUARDIAN_RETENTION_HOURLY", "48")
	t.Setenv("DBGUARDIAN_RETENTION_MONTHLY", "6")
	t.Setenv("DBGUARDIAN_RETENTION_DAILY", "not-a-number")

	policy := &RetentionPolicy{Daily: 7}
	policy.LoadFromEnvironment()

	assert.Equal(t, 48, policy.Hourly)
	assert.Equal(t, 6, policy.Monthly)
	assert.Equal(t, 7, policy.Daily, "unparseable values leave the existing setting untouched")
}

func TestExecutorConfigSetDefaults(t *testing.T) {
	config := &ExecutorConfig{}
	config.SetDefaults()
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, 10*time.Second, config.RetryDelay)
}

func TestExecutorConfigValidate(t *testing.T) {
	assert.NoError(t, (&ExecutorConfig{MaxRetries: 1, RetryDelay: time.Second}).Validate())
	assert.Error(t, (&ExecutorConfig{MaxRetries: -1}).Validate())
	assert.Error(t, (&ExecutorConfig{RetryDelay: -time.Second}).Validate())
}

func TestExecutorConfigLoadFromEnvironment(t *testing.T) {
	t.Setenv("DBGUARDIAN_MAX_RETRIES", "5")
	t.Setenv("DBGUARDIAN_RETRY_DELAY", "250ms")

	config := &ExecutorConfig{}
	config.LoadFromEnvironment()

	assert.Equal(t, 5, config.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, config.RetryDelay)
}

func TestStorageConfigSetDefaults(t *testing.T) {
	config := &StorageConfig{}
	config.SetDefaults()

	assert.Equal(t, StorageProviderLocal, config.Provider)
	require.NotNil(t, config.Local)
	assert.Equal(t, "./backups", config.Local.BasePath)
	assert.Equal(t, os.FileMode(0o755), config.Local.Permissions)
}

func TestStorageConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  StorageConfig
		wantErr bool
	}{
		{"valid local", StorageConfig{Provider: StorageProviderLocal, Local: &LocalConfig{BasePath: "/backups"}}, false},
		{"local missing base path", StorageConfig{Provider: StorageProviderLocal, Local: &LocalConfig{}}, true},
		{"local missing section", StorageConfig{Provider: StorageProviderLocal}, true},
		{"valid s3", StorageConfig{Provider: StorageProviderS3, S3: &S3Config{Bucket: "backups"}}, false},
		{"s3 missing bucket", StorageConfig{Provider: StorageProviderS3, S3: &S3Config{}}, true},
		{"valid gcs", StorageConfig{Provider: StorageProviderGCS, GCS: &GCSConfig{Bucket: "backups"}}, false},
		{"valid azure", StorageConfig{Provider: StorageProviderAzure, Azure: &AzureConfig{AccountName: "acct", AccountKey: "key", ContainerName: "backups"}}, false},
		{"azure missing key", StorageConfig{Provider: StorageProviderAzure, Azure: &AzureConfig{AccountName: "acct", ContainerName: "backups"}}, true},
		{"unknown provider", StorageConfig{Provider: "FTP"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStorageConfigLoadFromEnvironment(t *testing.T) {
	t.Setenv("DBGUARDIAN_STORAGE_PROVIDER", "s3")
	t.Setenv("DBGUARDIAN_S3_BUCKET", "prod-backups")
	t.Setenv("DBGUARDIAN_S3_REGION", "eu-west-1")

	config := &StorageConfig{}
	config.LoadFromEnvironment()

	assert.Equal(t, StorageProviderS3, config.Provider)
	require.NotNil(t, config.S3)
	assert.Equal(t, "prod-backups", config.S3.Bucket)
	assert.Equal(t, "eu-west-1", config.S3.Region)
}
