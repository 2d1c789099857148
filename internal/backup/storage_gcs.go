package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStorageProvider implements StorageProvider for Google Cloud Storage
type GCSStorageProvider struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStorageProvider creates a new GCSStorageProvider instance
func NewGCSStorageProvider(ctx context.Context, config *GCSConfig) (*GCSStorageProvider, error) {
	if config == nil {
		return nil, NewValidationError("gcs storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid gcs storage configuration", err)
	}

	var opts []option.ClientOption
	if config.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, NewStorageError("failed to create GCS client", err)
	}

	return &GCSStorageProvider{
		client: client,
		bucket: config.Bucket,
		prefix: config.Prefix,
	}, nil
}

// Upload stores a local artifact under the given key
func (g *GCSStorageProvider) Upload(ctx context.Context, key string, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return NewStorageError("failed to open artifact for upload", err)
	}
	defer file.Close()

	writer := g.client.Bucket(g.bucket).Object(g.objectKey(key)).NewWriter(ctx)
	if _, err := io.Copy(writer, file); err != nil {
		writer.Close()
		return NewStorageError("failed to upload artifact to gcs", err)
	}
	if err := writer.Close(); err != nil {
		return NewStorageError("failed to finalize gcs upload", err)
	}
	return nil
}

// Download retrieves a stored artifact into a local file
func (g *GCSStorageProvider) Download(ctx context.Context, key string, localPath string) error {
	reader, err := g.client.Bucket(g.bucket).Object(g.objectKey(key)).NewReader(ctx)
	if err != nil {
		return NewStorageError("failed to open gcs object for download", err)
	}
	defer reader.Close()

	file, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return NewStorageError("failed to create download file", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return NewStorageError("failed to download artifact from gcs", err)
	}
	return nil
}

// List returns metadata for stored artifacts matching the prefix
func (g *GCSStorageProvider) List(ctx context.Context, prefix string) ([]ArtifactInfo, error) {
	var artifacts []ArtifactInfo

	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{
		Prefix: g.objectKey(prefix),
	})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, NewStorageError("failed to list artifacts in gcs", err)
		}
		key := strings.TrimPrefix(attrs.Name, g.prefixWithSlash())
		if strings.HasSuffix(key, ".meta.json") {
			continue
		}
		info := ArtifactInfo{
			Key:       key,
			SizeBytes: attrs.Size,
			CreatedAt: attrs.Created,
		}
		if ts, _, _, err := ParseArtifactName(path.Base(key)); err == nil {
			info.CreatedAt = ts
		}
		artifacts = append(artifacts, info)
	}
	return artifacts, nil
}

// Delete removes a stored artifact and its sidecar
func (g *GCSStorageProvider) Delete(ctx context.Context, key string) error {
	if err := g.client.Bucket(g.bucket).Object(g.objectKey(key)).Delete(ctx); err != nil {
		return NewStorageError("failed to delete artifact from gcs", err)
	}
	// Sidecar removal is best effort.
	_ = g.client.Bucket(g.bucket).Object(g.objectKey(key) + ".meta.json").Delete(ctx)
	return nil
}

// Exists reports whether a stored artifact is present
func (g *GCSStorageProvider) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.client.Bucket(g.bucket).Object(g.objectKey(key)).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, NewStorageError("failed to check artifact existence in gcs", err)
	}
	return true, nil
}

// HealthCheck verifies bucket access
func (g *GCSStorageProvider) HealthCheck(ctx context.Context) error {
	_, err := g.client.Bucket(g.bucket).Attrs(ctx)
	if err != nil {
		return NewStorageError(fmt.Sprintf("gcs bucket %s is not accessible", g.bucket), err)
	}
	return nil
}

// Close releases the underlying client
func (g *GCSStorageProvider) Close() error {
	return g.client.Close()
}

func (g *GCSStorageProvider) objectKey(key string) string {
	if g.prefix == "" {
		return key
	}
	return path.Join(g.prefix, key)
}

func (g *GCSStorageProvider) prefixWithSlash() string {
	if g.prefix == "" {
		return ""
	}
	return strings.TrimSuffix(g.prefix, "/") + "/"
}
