package backup

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStorageProvider implements StorageProvider for local file system storage
type LocalStorageProvider struct {
	basePath    string
	permissions os.FileMode
}

// NewLocalStorageProvider creates a new LocalStorageProvider instance
func NewLocalStorageProvider(config *LocalConfig) (*LocalStorageProvider, error) {
	if config == nil {
		return nil, NewValidationError("local storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid local storage configuration", err)
	}

	provider := &LocalStorageProvider{
		basePath:    config.BasePath,
		permissions: config.Permissions,
	}
	if provider.permissions == 0 {
		provider.permissions = 0o755
	}

	if err := os.MkdirAll(provider.basePath, provider.permissions); err != nil {
		return nil, NewStorageError("failed to create base directory", err)
	}
	return provider, nil
}

// Upload copies a local artifact into the store
func (lsp *LocalStorageProvider) Upload(ctx context.Context, key string, localPath string) error {
	dst := lsp.keyPath(key)
	if err := os.MkdirAll(filepath.Dir(dst), lsp.permissions); err != nil {
		return NewStorageError("failed to create backup directory", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return NewStorageError("failed to open artifact for upload", err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return NewStorageError("failed to create stored artifact", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return NewStorageError("failed to copy artifact into store", err)
	}
	return nil
}

// Download copies a stored artifact to a local path
func (lsp *LocalStorageProvider) Download(ctx context.Context, key string, localPath string) error {
	src, err := os.Open(lsp.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return NewStorageError(fmt.Sprintf("backup %s not found", key), err)
		}
		return NewStorageError("failed to open stored artifact", err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return NewStorageError("failed to create download directory", err)
	}

	out, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return NewStorageError("failed to create download file", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return NewStorageError("failed to copy artifact from store", err)
	}
	return nil
}

// List returns metadata for all stored artifacts whose keys match the prefix
func (lsp *LocalStorageProvider) List(ctx context.Context, prefix string) ([]ArtifactInfo, error) {
	var artifacts []ArtifactInfo

	err := filepath.WalkDir(lsp.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(lsp.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		// Sidecars are not artifacts in their own right.
		if strings.HasSuffix(key, ".meta.json") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		artifacts = append(artifacts, ArtifactInfo{
			Key:       key,
			SizeBytes: info.Size(),
			CreatedAt: artifactCreatedAt(key, info),
		})
		return nil
	})
	if err != nil {
		return nil, NewStorageError("failed to list backups", err)
	}
	return artifacts, nil
}

// Delete removes a stored artifact and its sidecar if one exists
func (lsp *LocalStorageProvider) Delete(ctx context.Context, key string) error {
	path := lsp.keyPath(key)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewStorageError(fmt.Sprintf("backup %s not found", key), err)
	}
	if err := os.Remove(path); err != nil {
		return NewStorageError("failed to delete stored artifact", err)
	}
	// Best effort; the sidecar may never have been written.
	os.Remove(SidecarPath(path))
	return nil
}

// Exists reports whether a stored artifact is present
func (lsp *LocalStorageProvider) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(lsp.keyPath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, NewStorageError("failed to stat stored artifact", err)
}

// HealthCheck verifies that the base directory is readable and writable
func (lsp *LocalStorageProvider) HealthCheck(ctx context.Context) error {
	testFile := filepath.Join(lsp.basePath, ".health_check")
	if err := os.WriteFile(testFile, []byte("health_check"), 0o600); err != nil {
		return NewStorageError("storage health check failed: cannot write to base directory", err)
	}
	if _, err := os.ReadFile(testFile); err != nil {
		return NewStorageError("storage health check failed: cannot read from base directory", err)
	}
	os.Remove(testFile)
	return nil
}

// keyPath maps a storage key to an on-disk path, refusing path traversal
func (lsp *LocalStorageProvider) keyPath(key string) string {
	sanitized := strings.ReplaceAll(key, "..", "_")
	return filepath.Join(lsp.basePath, filepath.FromSlash(sanitized))
}

// artifactCreatedAt prefers the timestamp encoded in the artifact name and
// falls back to the file's modification time
func artifactCreatedAt(key string, info fs.FileInfo) time.Time {
	if ts, _, _, err := ParseArtifactName(filepath.Base(key)); err == nil {
		return ts
	}
	return info.ModTime()
}
