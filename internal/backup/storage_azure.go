package backup

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureStorageProvider implements StorageProvider for Azure Blob Storage
type AzureStorageProvider struct {
	containerURL azblob.ContainerURL
	container    string
	prefix       string
}

// NewAzureStorageProvider creates a new AzureStorageProvider instance
func NewAzureStorageProvider(config *AzureConfig) (*AzureStorageProvider, error) {
	if config == nil {
		return nil, NewValidationError("azure storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid azure storage configuration", err)
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, NewStorageError("failed to create azure credential", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})
	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName))
	if err != nil {
		return nil, NewStorageError("failed to parse azure service URL", err)
	}

	containerURL := azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(config.ContainerName)

	return &AzureStorageProvider{
		containerURL: containerURL,
		container:    config.ContainerName,
		prefix:       config.Prefix,
	}, nil
}

// Upload stores a local artifact under the given key
func (a *AzureStorageProvider) Upload(ctx context.Context, key string, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return NewStorageError("failed to open artifact for upload", err)
	}
	defer file.Close()

	blobURL := a.containerURL.NewBlockBlobURL(a.objectKey(key))
	_, err = azblob.UploadFileToBlockBlob(ctx, file, blobURL, azblob.UploadToBlockBlobOptions{})
	if err != nil {
		return NewStorageError("failed to upload artifact to azure", err)
	}
	return nil
}

// Download retrieves a stored artifact into a local file
func (a *AzureStorageProvider) Download(ctx context.Context, key string, localPath string) error {
	blobURL := a.containerURL.NewBlockBlobURL(a.objectKey(key))
	resp, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return NewStorageError("failed to download artifact from azure", err)
	}

	body := resp.Body(azblob.RetryReaderOptions{MaxRetryRequests: 3})
	defer body.Close()

	file, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return NewStorageError("failed to create download file", err)
	}
	defer file.Close()

	if _, err := file.ReadFrom(body); err != nil {
		return NewStorageError("failed to write downloaded artifact", err)
	}
	return nil
}

// List returns metadata for stored artifacts matching the prefix
func (a *AzureStorageProvider) List(ctx context.Context, prefix string) ([]ArtifactInfo, error) {
	var artifacts []ArtifactInfo

	for marker := (azblob.Marker{}); marker.NotDone(); {
		listBlob, err := a.containerURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: a.objectKey(prefix),
		})
		if err != nil {
			return nil, NewStorageError("failed to list artifacts in azure", err)
		}
		marker = listBlob.NextMarker

		for _, blob := range listBlob.Segment.BlobItems {
			key := strings.TrimPrefix(blob.Name, a.prefixWithSlash())
			if strings.HasSuffix(key, ".meta.json") {
				continue
			}
			info := ArtifactInfo{
				Key: key,
			}
			if blob.Properties.CreationTime != nil {
				info.CreatedAt = *blob.Properties.CreationTime
			}
			if blob.Properties.ContentLength != nil {
				info.SizeBytes = *blob.Properties.ContentLength
			}
			if ts, _, _, err := ParseArtifactName(path.Base(key)); err == nil {
				info.CreatedAt = ts
			}
			artifacts = append(artifacts, info)
		}
	}
	return artifacts, nil
}

// Delete removes a stored artifact and its sidecar
func (a *AzureStorageProvider) Delete(ctx context.Context, key string) error {
	blobURL := a.containerURL.NewBlockBlobURL(a.objectKey(key))
	_, err := blobURL.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
	if err != nil {
		return NewStorageError("failed to delete artifact from azure", err)
	}
	sidecarURL := a.containerURL.NewBlockBlobURL(a.objectKey(key) + ".meta.json")
	_, _ = sidecarURL.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
	return nil
}

// Exists reports whether a stored artifact is present
func (a *AzureStorageProvider) Exists(ctx context.Context, key string) (bool, error) {
	blobURL := a.containerURL.NewBlockBlobURL(a.objectKey(key))
	_, err := blobURL.GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if stgErr, ok := err.(azblob.StorageError); ok && stgErr.ServiceCode() == azblob.ServiceCodeBlobNotFound {
			return false, nil
		}
		return false, NewStorageError("failed to check artifact existence in azure", err)
	}
	return true, nil
}

// HealthCheck verifies container access
func (a *AzureStorageProvider) HealthCheck(ctx context.Context) error {
	_, err := a.containerURL.GetProperties(ctx, azblob.LeaseAccessConditions{})
	if err != nil {
		return NewStorageError(fmt.Sprintf("azure container %s is not accessible", a.container), err)
	}
	return nil
}

func (a *AzureStorageProvider) objectKey(key string) string {
	if a.prefix == "" {
		return key
	}
	return path.Join(a.prefix, key)
}

func (a *AzureStorageProvider) prefixWithSlash() string {
	if a.prefix == "" {
		return ""
	}
	return strings.TrimSuffix(a.prefix, "/") + "/"
}
