package backup

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3StorageProvider implements StorageProvider for Amazon S3
type S3StorageProvider struct {
	client     *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
	bucket     string
	prefix     string
}

// NewS3StorageProvider creates a new S3StorageProvider instance
func NewS3StorageProvider(config *S3Config) (*S3StorageProvider, error) {
	if config == nil {
		return nil, NewValidationError("s3 storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid s3 storage configuration", err)
	}

	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
	}
	if config.AccessKey != "" && config.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, NewStorageError("failed to create AWS session", err)
	}

	return &S3StorageProvider{
		client:     s3.New(sess),
		uploader:   s3manager.NewUploader(sess),
		downloader: s3manager.NewDownloader(sess),
		bucket:     config.Bucket,
		prefix:     config.Prefix,
	}, nil
}

// Upload stores a local artifact under the given key
func (s3p *S3StorageProvider) Upload(ctx context.Context, key string, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return NewStorageError("failed to open artifact for upload", err)
	}
	defer file.Close()

	_, err = s3p.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s3p.bucket),
		Key:    aws.String(s3p.objectKey(key)),
		Body:   file,
	})
	if err != nil {
		return NewStorageError("failed to upload artifact to s3", err)
	}
	return nil
}

// Download retrieves a stored artifact into a local file
func (s3p *S3StorageProvider) Download(ctx context.Context, key string, localPath string) error {
	file, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return NewStorageError("failed to create download file", err)
	}
	defer file.Close()

	_, err = s3p.downloader.DownloadWithContext(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(s3p.bucket),
		Key:    aws.String(s3p.objectKey(key)),
	})
	if err != nil {
		return NewStorageError("failed to download artifact from s3", err)
	}
	return nil
}

// List returns metadata for stored artifacts matching the prefix
func (s3p *S3StorageProvider) List(ctx context.Context, prefix string) ([]ArtifactInfo, error) {
	var artifacts []ArtifactInfo

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s3p.bucket),
		Prefix: aws.String(s3p.objectKey(prefix)),
	}

	err := s3p.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.StringValue(obj.Key), s3p.prefixWithSlash())
			if strings.HasSuffix(key, ".meta.json") {
				continue
			}
			info := ArtifactInfo{
				Key:       key,
				SizeBytes: aws.Int64Value(obj.Size),
				CreatedAt: aws.TimeValue(obj.LastModified),
			}
			if ts, _, _, err := ParseArtifactName(path.Base(key)); err == nil {
				info.CreatedAt = ts
			}
			artifacts = append(artifacts, info)
		}
		return true
	})
	if err != nil {
		return nil, NewStorageError("failed to list artifacts in s3", err)
	}
	return artifacts, nil
}

// Delete removes a stored artifact and its sidecar
func (s3p *S3StorageProvider) Delete(ctx context.Context, key string) error {
	for _, k := range []string{s3p.objectKey(key), s3p.objectKey(key) + ".meta.json"} {
		_, err := s3p.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s3p.bucket),
			Key:    aws.String(k),
		})
		if err != nil && !strings.HasSuffix(k, ".meta.json") {
			return NewStorageError("failed to delete artifact from s3", err)
		}
	}
	return nil
}

// Exists reports whether a stored artifact is present
func (s3p *S3StorageProvider) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s3p.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s3p.bucket),
		Key:    aws.String(s3p.objectKey(key)),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case s3.ErrCodeNoSuchKey, "NotFound":
				return false, nil
			}
		}
		return false, NewStorageError("failed to check artifact existence in s3", err)
	}
	return true, nil
}

// HealthCheck verifies bucket access
func (s3p *S3StorageProvider) HealthCheck(ctx context.Context) error {
	_, err := s3p.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s3p.bucket),
	})
	if err != nil {
		return NewStorageError(fmt.Sprintf("s3 bucket %s is not accessible", s3p.bucket), err)
	}
	return nil
}

func (s3p *S3StorageProvider) objectKey(key string) string {
	if s3p.prefix == "" {
		return key
	}
	return path.Join(s3p.prefix, key)
}

func (s3p *S3StorageProvider) prefixWithSlash() string {
	if s3p.prefix == "" {
		return ""
	}
	return strings.TrimSuffix(s3p.prefix, "/") + "/"
}
