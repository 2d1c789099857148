package backup

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BackupPolicy controls how an individual backup attempt behaves
type BackupPolicy struct {
	// WorkDir is the local directory dumps are written to before upload
	WorkDir string `json:"work_dir" yaml:"work_dir"`
	// Compression selects the artifact compression algorithm; CompressionTypeNone disables it
	Compression      CompressionType `json:"compression" yaml:"compression"`
	CompressionLevel int             `json:"compression_level" yaml:"compression_level"`
	// CaptureGrants prepends access-control statements to the dump so a restore
	// into a fresh instance recreates grants and roles
	CaptureGrants bool `json:"capture_grants" yaml:"capture_grants"`
	// Cleanup removes local working artifacts after the operation finishes
	Cleanup   bool            `json:"cleanup" yaml:"cleanup"`
	Retention RetentionPolicy `json:"retention" yaml:"retention"`
}

// SetDefaults sets default values for the backup policy
func (p *BackupPolicy) SetDefaults() {
	if p.WorkDir == "" {
		p.WorkDir = os.TempDir()
	}
	if p.Compression == "" {
		p.Compression = CompressionTypeGzip
	}
	if p.CompressionLevel == 0 {
		p.CompressionLevel = 6
	}
	p.Retention.SetDefaults()
}

// Validate checks the backup policy for consistency
func (p *BackupPolicy) Validate() error {
	switch p.Compression {
	case CompressionTypeNone, CompressionTypeGzip, CompressionTypeZstd, CompressionTypeLZ4:
	default:
		return NewValidationError("unsupported compression type: "+string(p.Compression), nil)
	}
	return p.Retention.Validate()
}

// LoadFromEnvironment loads policy settings from environment variables
func (p *BackupPolicy) LoadFromEnvironment() {
	if val := os.Getenv("DBGUARDIAN_WORK_DIR"); val != "" {
		p.WorkDir = val
	}
	if val := os.Getenv("DBGUARDIAN_COMPRESSION"); val != "" {
		p.Compression = CompressionType(strings.ToUpper(val))
	}
	if val := os.Getenv("DBGUARDIAN_COMPRESSION_LEVEL"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			p.CompressionLevel = parsed
		}
	}
	if val := os.Getenv("DBGUARDIAN_CAPTURE_GRANTS"); val != "" {
		p.CaptureGrants = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("DBGUARDIAN_CLEANUP"); val != "" {
		p.Cleanup = strings.ToLower(val) == "true"
	}
	p.Retention.LoadFromEnvironment()
}

// RetentionPolicy is the tier-count configuration for keep/discard decisions.
// Each tier is an independent "keep the last N of these" window; a backup is
// kept if it falls within any configured tier window.
type RetentionPolicy struct {
	Hourly  int `json:"hourly" yaml:"hourly"`
	Daily   int `json:"daily" yaml:"daily"`
	Weekly  int `json:"weekly" yaml:"weekly"`
	Monthly int `json:"monthly" yaml:"monthly"`
}

// SetDefaults sets default retention tiers
func (rp *RetentionPolicy) SetDefaults() {
	if rp.Hourly == 0 && rp.Daily == 0 && rp.Weekly == 0 && rp.Monthly == 0 {
		rp.Daily = 7
		rp.Weekly = 4
		rp.Monthly = 12
	}
}

// Validate checks the retention tiers
func (rp *RetentionPolicy) Validate() error {
	if rp.Hourly < 0 || rp.Daily < 0 || rp.Weekly < 0 || rp.Monthly < 0 {
		return NewValidationError("retention tier counts cannot be negative", nil)
	}
	return nil
}

// LoadFromEnvironment loads retention tiers from environment variables
func (rp *RetentionPolicy) LoadFromEnvironment() {
	for env, target := range map[string]*int{
		"DBGUARDIAN_RETENTION_HOURLY":  &rp.Hourly,
		"DBGUARDIAN_RETENTION_DAILY":   &rp.Daily,
		"DBGUARDIAN_RETENTION_WEEKLY":  &rp.Weekly,
		"DBGUARDIAN_RETENTION_MONTHLY": &rp.Monthly,
	} {
		if val := os.Getenv(env); val != "" {
			if parsed, err := strconv.Atoi(val); err == nil {
				*target = parsed
			}
		}
	}
}

// ExecutorConfig controls the executor's attempt loop
type ExecutorConfig struct {
	// MaxRetries is the total attempt budget, not retries in addition to the
	// first try. Values below 1 are treated as 1.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
	// RetryDelay is the fixed sleep between attempts. Transient failures here
	// are almost always "daemon not yet ready" rather than rate-limiting, so
	// the delay is deliberately uniform instead of exponential.
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`
}

// UnmarshalYAML accepts human-readable durations like "30s" for the retry
// delay, which yaml cannot decode into time.Duration on its own
func (ec *ExecutorConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		MaxRetries int    `yaml:"max_retries"`
		RetryDelay string `yaml:"retry_delay"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	ec.MaxRetries = raw.MaxRetries
	if raw.RetryDelay != "" {
		delay, err := time.ParseDuration(raw.RetryDelay)
		if err != nil {
			return NewValidationError("invalid retry delay: "+raw.RetryDelay, err)
		}
		ec.RetryDelay = delay
	}
	return nil
}

// SetDefaults sets default executor settings
func (ec *ExecutorConfig) SetDefaults() {
	if ec.MaxRetries == 0 {
		ec.MaxRetries = 3
	}
	if ec.RetryDelay == 0 {
		ec.RetryDelay = 10 * time.Second
	}
}

// Validate checks the executor configuration
func (ec *ExecutorConfig) Validate() error {
	if ec.MaxRetries < 0 {
		return NewValidationError("max retries cannot be negative", nil)
	}
	if ec.RetryDelay < 0 {
		return NewValidationError("retry delay cannot be negative", nil)
	}
	return nil
}

// LoadFromEnvironment loads executor settings from environment variables
func (ec *ExecutorConfig) LoadFromEnvironment() {
	if val := os.Getenv("DBGUARDIAN_MAX_RETRIES"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			ec.MaxRetries = parsed
		}
	}
	if val := os.Getenv("DBGUARDIAN_RETRY_DELAY"); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			ec.RetryDelay = parsed
		}
	}
}

// StorageConfig defines the storage target for backup artifacts
type StorageConfig struct {
	Provider StorageProviderType `json:"provider" yaml:"provider"`
	Local    *LocalConfig        `json:"local,omitempty" yaml:"local,omitempty"`
	S3       *S3Config           `json:"s3,omitempty" yaml:"s3,omitempty"`
	GCS      *GCSConfig          `json:"gcs,omitempty" yaml:"gcs,omitempty"`
	Azure    *AzureConfig        `json:"azure,omitempty" yaml:"azure,omitempty"`
}

// StorageProviderType identifies a storage backend
type StorageProviderType string

const (
	StorageProviderLocal StorageProviderType = "LOCAL"
	StorageProviderS3    StorageProviderType = "S3"
	StorageProviderGCS   StorageProviderType = "GCS"
	StorageProviderAzure StorageProviderType = "AZURE"
)

// LocalConfig for local file system storage
type LocalConfig struct {
	BasePath    string      `json:"base_path" yaml:"base_path"`
	Permissions os.FileMode `json:"permissions" yaml:"permissions"`
}

// Validate checks the local storage configuration
func (lc *LocalConfig) Validate() error {
	if lc.BasePath == "" {
		return NewValidationError("local storage base path is required", nil)
	}
	return nil
}

// SetDefaults sets default values for local storage
func (lc *LocalConfig) SetDefaults() {
	if lc.BasePath == "" {
		lc.BasePath = "./backups"
	}
	if lc.Permissions == 0 {
		lc.Permissions = 0o755
	}
}

// S3Config for Amazon S3 storage
type S3Config struct {
	Bucket    string `json:"bucket" yaml:"bucket"`
	Region    string `json:"region" yaml:"region"`
	Prefix    string `json:"prefix" yaml:"prefix"`
	AccessKey string `json:"-" yaml:"access_key"`
	SecretKey string `json:"-" yaml:"secret_key"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// Validate checks the S3 configuration
func (s3c *S3Config) Validate() error {
	if s3c.Bucket == "" {
		return NewValidationError("s3 bucket is required", nil)
	}
	return nil
}

// SetDefaults sets default values for S3 storage
func (s3c *S3Config) SetDefaults() {
	if s3c.Region == "" {
		s3c.Region = "us-east-1"
	}
}

// GCSConfig for Google Cloud Storage
type GCSConfig struct {
	Bucket          string `json:"bucket" yaml:"bucket"`
	Prefix          string `json:"prefix" yaml:"prefix"`
	CredentialsPath string `json:"credentials_path" yaml:"credentials_path"`
}

// Validate checks the GCS configuration
func (gc *GCSConfig) Validate() error {
	if gc.Bucket == "" {
		return NewValidationError("gcs bucket is required", nil)
	}
	return nil
}

// SetDefaults sets default values for GCS storage
func (gc *GCSConfig) SetDefaults() {
	if gc.CredentialsPath == "" {
		gc.CredentialsPath = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
}

// AzureConfig for Azure Blob Storage
type AzureConfig struct {
	AccountName   string `json:"account_name" yaml:"account_name"`
	AccountKey    string `json:"-" yaml:"account_key"`
	ContainerName string `json:"container_name" yaml:"container_name"`
	Prefix        string `json:"prefix" yaml:"prefix"`
}

// Validate checks the Azure configuration
func (ac *AzureConfig) Validate() error {
	if ac.AccountName == "" || ac.AccountKey == "" || ac.ContainerName == "" {
		return NewValidationError("azure account name, account key and container name are required", nil)
	}
	return nil
}

// SetDefaults sets default values for the storage configuration
func (sc *StorageConfig) SetDefaults() {
	if sc.Provider == "" {
		sc.Provider = StorageProviderLocal
	}
	switch sc.Provider {
	case StorageProviderLocal:
		if sc.Local == nil {
			sc.Local = &LocalConfig{}
		}
		sc.Local.SetDefaults()
	case StorageProviderS3:
		if sc.S3 == nil {
			sc.S3 = &S3Config{}
		}
		sc.S3.SetDefaults()
	case StorageProviderGCS:
		if sc.GCS == nil {
			sc.GCS = &GCSConfig{}
		}
		sc.GCS.SetDefaults()
	}
}

// Validate checks the storage configuration
func (sc *StorageConfig) Validate() error {
	switch sc.Provider {
	case StorageProviderLocal:
		if sc.Local == nil {
			return NewValidationError("local storage configuration is required", nil)
		}
		return sc.Local.Validate()
	case StorageProviderS3:
		if sc.S3 == nil {
			return NewValidationError("s3 storage configuration is required", nil)
		}
		return sc.S3.Validate()
	case StorageProviderGCS:
		if sc.GCS == nil {
			return NewValidationError("gcs storage configuration is required", nil)
		}
		return sc.GCS.Validate()
	case StorageProviderAzure:
		if sc.Azure == nil {
			return NewValidationError("azure storage configuration is required", nil)
		}
		return sc.Azure.Validate()
	default:
		return NewValidationError("unsupported storage provider: "+string(sc.Provider), nil)
	}
}

// LoadFromEnvironment loads storage configuration from environment variables
func (sc *StorageConfig) LoadFromEnvironment() {
	if val := os.Getenv("DBGUARDIAN_STORAGE_PROVIDER"); val != "" {
		sc.Provider = StorageProviderType(strings.ToUpper(val))
	}
	switch sc.Provider {
	case StorageProviderLocal:
		if sc.Local == nil {
			sc.Local = &LocalConfig{}
		}
		if val := os.Getenv("DBGUARDIAN_BACKUP_ROOT"); val != "" {
			sc.Local.BasePath = val
		}
	case StorageProviderS3:
		if sc.S3 == nil {
			sc.S3 = &S3Config{}
		}
		if val := os.Getenv("DBGUARDIAN_S3_BUCKET"); val != "" {
			sc.S3.Bucket = val
		}
		if val := os.Getenv("DBGUARDIAN_S3_REGION"); val != "" {
			sc.S3.Region = val
		}
		if val := os.Getenv("AWS_ACCESS_KEY_ID"); val != "" {
			sc.S3.AccessKey = val
		}
		if val := os.Getenv("AWS_SECRET_ACCESS_KEY"); val != "" {
			sc.S3.SecretKey = val
		}
	case StorageProviderGCS:
		if sc.GCS == nil {
			sc.GCS = &GCSConfig{}
		}
		if val := os.Getenv("DBGUARDIAN_GCS_BUCKET"); val != "" {
			sc.GCS.Bucket = val
		}
		if val := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); val != "" {
			sc.GCS.CredentialsPath = val
		}
	case StorageProviderAzure:
		if sc.Azure == nil {
			sc.Azure = &AzureConfig{}
		}
		if val := os.Getenv("DBGUARDIAN_AZURE_ACCOUNT_NAME"); val != "" {
			sc.Azure.AccountName = val
		}
		if val := os.Getenv("DBGUARDIAN_AZURE_ACCOUNT_KEY"); val != "" {
			sc.Azure.AccountKey = val
		}
		if val := os.Getenv("DBGUARDIAN_AZURE_CONTAINER"); val != "" {
			sc.Azure.ContainerName = val
		}
	}
}
