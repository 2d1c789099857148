package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// BackupStrategy dumps a database, optionally captures grants, compresses the
// artifact, checksums it, and uploads it with a metadata sidecar.
type BackupStrategy struct {
	deps StrategyDeps
}

// NewBackupStrategy creates a BackupStrategy from its dependencies
func NewBackupStrategy(deps StrategyDeps) *BackupStrategy {
	return &BackupStrategy{deps: deps}
}

// Name returns the registry name
func (s *BackupStrategy) Name() string {
	return StrategyNameBackup
}

// Execute performs one backup attempt. Any partial artifact from an earlier
// attempt is discarded first so retries start clean.
func (s *BackupStrategy) Execute(ctx context.Context, op *Operation) error {
	adapter := s.deps.Adapter
	logger := s.deps.Logger

	workDir := filepath.Join(op.Policy.WorkDir, op.ID)
	if err := os.MkdirAll(workDir, 0o700); err != nil {
		return NewInfrastructureError("failed to create work directory", err).WithOperation(op.ID)
	}

	name := ArtifactName(time.Now(), adapter.Type(), op.Database.Database) + adapter.Extension()
	dumpPath := filepath.Join(workDir, name)
	_ = os.Remove(dumpPath)

	logger.WithFields(map[string]interface{}{
		"operation_id": op.ID,
		"database":     op.Database.Database,
		"adapter":      adapter.Type(),
	}).Info("starting database dump")

	if err := adapter.Dump(ctx, op.Database, dumpPath); err != nil {
		return s.wrap(err, "database dump failed", op.ID)
	}

	if op.Policy.CaptureGrants {
		if err := s.prependGrants(ctx, op, dumpPath); err != nil {
			return s.wrap(err, "failed to capture grants", op.ID)
		}
	}

	info, err := os.Stat(dumpPath)
	if err != nil {
		return NewInfrastructureError("dump artifact missing after dump", err).WithOperation(op.ID)
	}
	op.RawSizeBytes = info.Size()
	op.ArtifactPath = dumpPath

	artifactPath := dumpPath
	if op.Policy.Compression != CompressionTypeNone {
		compressed, size, cerr := s.deps.Compression.CompressFile(dumpPath, op.Policy.Compression, op.Policy.CompressionLevel)
		if cerr != nil {
			// A failed compression never fails the backup; ship uncompressed.
			logger.WithField("operation_id", op.ID).Warnf("compression failed, continuing uncompressed: %v", cerr)
		} else {
			artifactPath = compressed
			op.CompressedSizeBytes = size
			op.ArtifactPath = compressed
			if ratio, ok := op.CompressionRatio(); ok {
				logger.WithField("operation_id", op.ID).Debugf("compressed artifact, ratio %.2fx", ratio)
			}
		}
	}

	checksum, err := s.deps.Validator.ChecksumFile(artifactPath)
	if err != nil {
		return NewIntegrityError("failed to checksum artifact", err).WithOperation(op.ID)
	}
	op.Checksum = checksum
	op.RecordValidation("checksum_computed", true)

	meta := &ArtifactMetadata{
		BackupID:          op.ID,
		CreatedAt:         time.Now().UTC(),
		Hostname:          Hostname(),
		Type:              adapter.Type(),
		FileCount:         1,
		TotalSizeBytes:    op.RawSizeBytes,
		ChecksumSHA256:    checksum,
		EncryptionKeyHash: s.deps.EncryptionKeyHash,
		ToolVersion:       ToolVersion,
	}
	if err := meta.WriteSidecar(artifactPath); err != nil {
		return NewStorageError("failed to write artifact metadata", err).WithOperation(op.ID)
	}

	key := filepath.Base(artifactPath)
	if err := s.deps.Storage.Upload(ctx, key, artifactPath); err != nil {
		return s.wrap(err, "artifact upload failed", op.ID)
	}
	if err := s.deps.Storage.Upload(ctx, key+".meta.json", SidecarPath(artifactPath)); err != nil {
		return s.wrap(err, "metadata upload failed", op.ID)
	}
	op.StorageLocation = key

	logger.WithFields(map[string]interface{}{
		"operation_id": op.ID,
		"location":     key,
		"size_bytes":   op.RawSizeBytes,
	}).Info("backup artifact stored")
	return nil
}

func (s *BackupStrategy) prependGrants(ctx context.Context, op *Operation, dumpPath string) error {
	capturer, ok := s.deps.Adapter.(GrantCapturer)
	if !ok {
		s.deps.Logger.WithField("adapter", s.deps.Adapter.Type()).Debug("adapter does not support grant capture, skipping")
		return nil
	}
	grants, err := capturer.CaptureGrants(ctx, op.Database)
	if err != nil {
		return err
	}
	if len(grants) == 0 {
		return nil
	}

	dump, err := os.ReadFile(dumpPath)
	if err != nil {
		return fmt.Errorf("failed to read dump for grant prepend: %w", err)
	}
	combined := make([]byte, 0, len(grants)+len(dump)+1)
	combined = append(combined, grants...)
	if grants[len(grants)-1] != '\n' {
		combined = append(combined, '\n')
	}
	combined = append(combined, dump...)
	return os.WriteFile(dumpPath, combined, 0o600)
}

func (s *BackupStrategy) wrap(err error, message, opID string) error {
	if opErr, ok := err.(*OperationError); ok {
		return opErr.WithOperation(opID)
	}
	return NewToolError(message, err).WithOperation(opID)
}
