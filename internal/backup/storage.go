package backup

import (
	"context"
	"time"
)

// StorageProvider abstracts the artifact store backing backup operations.
// Keys are provider-relative paths; providers may prepend a configured prefix.
type StorageProvider interface {
	Upload(ctx context.Context, key string, localPath string) error
	Download(ctx context.Context, key string, localPath string) error
	List(ctx context.Context, prefix string) ([]ArtifactInfo, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// HealthChecker is implemented by providers that can verify their own access
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ArtifactInfo describes one stored backup artifact
type ArtifactInfo struct {
	Key       string    `json:"key"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}
