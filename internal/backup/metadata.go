package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// ToolVersion is stamped into every metadata sidecar
const ToolVersion = "1.0.0"

const timestampLayout = "20060102T150405"

// ArtifactMetadata is the JSON sidecar written next to every backup artifact
type ArtifactMetadata struct {
	BackupID          string    `json:"backup_id"`
	CreatedAt         time.Time `json:"created_at"`
	Hostname          string    `json:"hostname"`
	Type              string    `json:"type"`
	FileCount         int       `json:"file_count"`
	TotalSizeBytes    int64     `json:"total_size_bytes"`
	ChecksumSHA256    string    `json:"checksum_sha256"`
	EncryptionKeyHash string    `json:"encryption_key_hash,omitempty"`
	ToolVersion       string    `json:"tool_version"`
}

// HashEncryptionKey returns a digest of the source system's encryption key.
// The key itself is never written anywhere; the hash lets the restore path
// detect a key mismatch before attempting a destructive import.
func HashEncryptionKey(key []byte) string {
	if len(key) == 0 {
		return ""
	}
	hash := sha256.Sum256(key)
	return hex.EncodeToString(hash[:])
}

// VerifyEncryptionKey checks the local key against the hash recorded at backup
// time. An empty recorded hash means the source had no key to compare.
func (m *ArtifactMetadata) VerifyEncryptionKey(key []byte) error {
	if m.EncryptionKeyHash == "" {
		return nil
	}
	if HashEncryptionKey(key) != m.EncryptionKeyHash {
		return NewEncryptionKeyError("encryption key does not match the key used at backup time", nil)
	}
	return nil
}

// SidecarPath returns the metadata file path for an artifact
func SidecarPath(artifactPath string) string {
	return artifactPath + ".meta.json"
}

// WriteSidecar writes the metadata sidecar next to the artifact
func (m *ArtifactMetadata) WriteSidecar(artifactPath string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return NewStorageError("failed to serialize backup metadata", err)
	}
	if err := os.WriteFile(SidecarPath(artifactPath), data, 0o600); err != nil {
		return NewStorageError("failed to write backup metadata sidecar", err)
	}
	return nil
}

// ReadSidecar loads the metadata sidecar for an artifact
func ReadSidecar(artifactPath string) (*ArtifactMetadata, error) {
	data, err := os.ReadFile(SidecarPath(artifactPath))
	if err != nil {
		return nil, NewStorageError("failed to read backup metadata sidecar", err)
	}
	var meta ArtifactMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, NewIntegrityError("backup metadata sidecar is not valid JSON", err)
	}
	return &meta, nil
}

// ArtifactName builds the canonical artifact filename for a backup
func ArtifactName(ts time.Time, dbType, dbName string) string {
	return fmt.Sprintf("%s_%s_%s", ts.UTC().Format(timestampLayout), dbType, dbName)
}

// ParseArtifactName extracts the timestamp, database type and name from a
// canonical artifact filename, tolerating compression extensions
func ParseArtifactName(name string) (time.Time, string, string, error) {
	base := name
	if ct := CompressionTypeForPath(base); ct != CompressionTypeNone {
		base = strings.TrimSuffix(base, ct.Extension())
	}
	base = strings.TrimSuffix(base, ".sql")
	base = strings.TrimSuffix(base, ".json")

	parts := strings.SplitN(base, "_", 3)
	if len(parts) != 3 {
		return time.Time{}, "", "", fmt.Errorf("artifact name %q does not match {timestamp}_{dbtype}_{dbname}", name)
	}
	ts, err := time.Parse(timestampLayout, parts[0])
	if err != nil {
		return time.Time{}, "", "", fmt.Errorf("artifact name %q has invalid timestamp: %w", name, err)
	}
	return ts, parts[1], parts[2], nil
}

// Hostname returns the local hostname, or "unknown" if it cannot be resolved
func Hostname() string {
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "unknown"
}
