package backup

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// RestoreStrategy resolves a stored artifact, verifies it, and applies it to
// the target database. In rollback mode verification is skipped: the safety
// snapshot was validated when it was created and must be applied even if the
// sidecar can no longer be fetched.
type RestoreStrategy struct {
	deps           StrategyDeps
	skipValidation bool
}

// NewRestoreStrategy creates the normal-mode restore strategy
func NewRestoreStrategy(deps StrategyDeps) *RestoreStrategy {
	return &RestoreStrategy{deps: deps}
}

// NewRollbackRestoreStrategy creates the rollback-mode restore strategy.
// It is never registered; only the rollback coordinator constructs it.
func NewRollbackRestoreStrategy(deps StrategyDeps) *RestoreStrategy {
	return &RestoreStrategy{deps: deps, skipValidation: true}
}

// Name returns the registry name
func (s *RestoreStrategy) Name() string {
	return StrategyNameRestore
}

// Execute performs one restore attempt
func (s *RestoreStrategy) Execute(ctx context.Context, op *Operation) error {
	if op.SourceBackupID == "" {
		return NewValidationError("restore requires a source backup id", nil).WithOperation(op.ID)
	}

	workDir := filepath.Join(op.Policy.WorkDir, op.ID)
	if err := os.MkdirAll(workDir, 0o700); err != nil {
		return NewInfrastructureError("failed to create work directory", err).WithOperation(op.ID)
	}

	localPath, err := s.resolveArtifact(ctx, op, workDir)
	if err != nil {
		return err
	}
	op.ArtifactPath = localPath

	if !s.skipValidation {
		if err := s.validateArtifact(op, localPath); err != nil {
			return err
		}
	}

	plainPath := localPath
	if CompressionTypeForPath(localPath) != CompressionTypeNone {
		plainPath, err = s.deps.Compression.DecompressFile(localPath)
		if err != nil {
			return NewIntegrityError("failed to decompress artifact", err).WithOperation(op.ID)
		}
	}

	if err := s.rewriteIdentifiers(op, plainPath); err != nil {
		return err
	}

	s.deps.Logger.WithFields(map[string]interface{}{
		"operation_id": op.ID,
		"source":       op.SourceBackupID,
		"database":     op.Database.Database,
	}).Info("applying restore artifact")

	if err := s.deps.Adapter.Restore(ctx, op.Database, plainPath); err != nil {
		if opErr, ok := err.(*OperationError); ok {
			return opErr.WithOperation(op.ID)
		}
		return NewToolError("restore tool failed", err).WithOperation(op.ID)
	}
	return nil
}

// resolveArtifact fetches the source artifact into the work directory, or
// uses it in place when the source id is an existing local file.
func (s *RestoreStrategy) resolveArtifact(ctx context.Context, op *Operation, workDir string) (string, error) {
	if _, err := os.Stat(op.SourceBackupID); err == nil {
		return op.SourceBackupID, nil
	}

	exists, err := s.deps.Storage.Exists(ctx, op.SourceBackupID)
	if err != nil {
		return "", NewStorageError("failed to check source artifact", err).WithOperation(op.ID)
	}
	if !exists {
		return "", NewValidationError(
			fmt.Sprintf("source backup %q not found in storage", op.SourceBackupID), nil).WithOperation(op.ID)
	}

	localPath := filepath.Join(workDir, filepath.Base(op.SourceBackupID))
	if err := s.deps.Storage.Download(ctx, op.SourceBackupID, localPath); err != nil {
		return "", NewStorageError("failed to download source artifact", err).WithOperation(op.ID)
	}
	// Sidecar fetch is best effort; validation falls back to skipping the
	// checksum comparison when no sidecar is available.
	_ = s.deps.Storage.Download(ctx, op.SourceBackupID+".meta.json", SidecarPath(localPath))
	return localPath, nil
}

func (s *RestoreStrategy) validateArtifact(op *Operation, localPath string) error {
	meta, err := ReadSidecar(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.deps.Logger.WithField("operation_id", op.ID).Warn("no metadata sidecar found, skipping checksum verification")
			op.RecordValidation("checksum_verified", false)
			return nil
		}
		return NewIntegrityError("failed to read artifact metadata", err).WithOperation(op.ID)
	}

	ok, err := s.deps.Validator.VerifyFileChecksum(localPath, meta.ChecksumSHA256)
	if err != nil {
		return NewIntegrityError("failed to checksum artifact", err).WithOperation(op.ID)
	}
	if !ok {
		op.RecordValidation("checksum_verified", false)
		return NewIntegrityError(
			fmt.Sprintf("artifact checksum mismatch for %q", op.SourceBackupID), nil).WithOperation(op.ID)
	}
	op.RecordValidation("checksum_verified", true)
	op.Checksum = meta.ChecksumSHA256

	if s.deps.EncryptionKeyHash != "" && meta.EncryptionKeyHash != "" {
		if meta.EncryptionKeyHash != s.deps.EncryptionKeyHash {
			op.RecordValidation("encryption_key_verified", false)
			return NewEncryptionKeyError(
				"artifact was written with a different encryption key", nil).WithOperation(op.ID)
		}
		op.RecordValidation("encryption_key_verified", true)
	}
	return nil
}

// rewriteIdentifiers rewrites the database identifier embedded in a SQL dump
// when the artifact was taken from a database with a different name than the
// restore target. Workflow exports carry no embedded identifier.
func (s *RestoreStrategy) rewriteIdentifiers(op *Operation, plainPath string) error {
	if !strings.HasSuffix(plainPath, ".sql") {
		return nil
	}
	_, _, sourceName, err := ParseArtifactName(filepath.Base(plainPath))
	if err != nil || sourceName == "" || sourceName == op.Database.Database {
		return nil
	}

	data, err := os.ReadFile(plainPath)
	if err != nil {
		return NewInfrastructureError("failed to read artifact for identifier rewrite", err).WithOperation(op.ID)
	}

	var out bytes.Buffer
	out.Grow(len(data))
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.ToUpper(strings.TrimSpace(line))
		if strings.HasPrefix(trimmed, "CREATE DATABASE") ||
			strings.HasPrefix(trimmed, "USE ") ||
			strings.HasPrefix(trimmed, "\\CONNECT") {
			line = strings.ReplaceAll(line, "`"+sourceName+"`", "`"+op.Database.Database+"`")
			line = strings.ReplaceAll(line, "\""+sourceName+"\"", "\""+op.Database.Database+"\"")
			line = strings.ReplaceAll(line, " "+sourceName+";", " "+op.Database.Database+";")
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return NewInfrastructureError("failed to scan artifact for identifier rewrite", err).WithOperation(op.ID)
	}

	if err := os.WriteFile(plainPath, out.Bytes(), 0o600); err != nil {
		return NewInfrastructureError("failed to rewrite artifact identifiers", err).WithOperation(op.ID)
	}
	s.deps.Logger.WithFields(map[string]interface{}{
		"operation_id": op.ID,
		"from":         sourceName,
		"to":           op.Database.Database,
	}).Debug("rewrote database identifier in artifact")
	return nil
}
