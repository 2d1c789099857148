package backup

import (
	"context"
	"fmt"
)

// NewStorageProvider builds the configured storage backend
func NewStorageProvider(ctx context.Context, config *StorageConfig) (StorageProvider, error) {
	if config == nil {
		return nil, NewValidationError("storage configuration is required", nil)
	}

	switch config.Provider {
	case StorageProviderLocal:
		return NewLocalStorageProvider(config.Local)
	case StorageProviderS3:
		return NewS3StorageProvider(config.S3)
	case StorageProviderGCS:
		return NewGCSStorageProvider(ctx, config.GCS)
	case StorageProviderAzure:
		return NewAzureStorageProvider(config.Azure)
	default:
		return nil, NewValidationError(fmt.Sprintf("unsupported storage provider: %s", config.Provider), nil)
	}
}
