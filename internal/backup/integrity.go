package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// IntegrityValidator performs checksum and structural validation of backup
// artifacts. Failures are collected as a list of messages so operators see
// every defect at once instead of fixing one and re-running.
type IntegrityValidator struct{}

// NewIntegrityValidator creates a new integrity validator
func NewIntegrityValidator() *IntegrityValidator {
	return &IntegrityValidator{}
}

// ChecksumData computes the hex-encoded SHA-256 digest of data
func (v *IntegrityValidator) ChecksumData(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ChecksumFile computes the hex-encoded SHA-256 digest of a file's contents
func (v *IntegrityValidator) ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", NewIntegrityError("failed to open file for checksum", err)
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", NewIntegrityError("failed to read file for checksum", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// ChecksumDirectory computes a combined digest over every regular file under
// dir. Per-file digests are combined sorted by relative filename, so the
// result is independent of directory-listing order.
func (v *IntegrityValidator) ChecksumDirectory(dir string) (string, error) {
	type fileDigest struct {
		name   string
		digest string
	}

	var digests []fileDigest
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		sum, err := v.ChecksumFile(path)
		if err != nil {
			return err
		}
		digests = append(digests, fileDigest{name: filepath.ToSlash(rel), digest: sum})
		return nil
	})
	if err != nil {
		return "", NewIntegrityError("failed to walk backup directory", err)
	}

	sort.Slice(digests, func(i, j int) bool {
		return digests[i].name < digests[j].name
	})

	combined := sha256.New()
	for _, d := range digests {
		fmt.Fprintf(combined, "%s:%s\n", d.name, d.digest)
	}
	return hex.EncodeToString(combined.Sum(nil)), nil
}

// VerifyChecksum reports whether data matches the expected digest
func (v *IntegrityValidator) VerifyChecksum(data []byte, expected string) bool {
	return v.ChecksumData(data) == expected
}

// VerifyFileChecksum reports whether a file matches the expected digest
func (v *IntegrityValidator) VerifyFileChecksum(path, expected string) (bool, error) {
	actual, err := v.ChecksumFile(path)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}

// CredentialRecord is the shape of one exported credential entry. The restore
// path refuses artifacts whose records are missing required fields.
type CredentialRecord struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ValidateCredentialExport runs the syntactic and schema checks over an
// exported credential payload and returns every defect found. An empty slice
// means the payload is valid.
func (v *IntegrityValidator) ValidateCredentialExport(data []byte) []string {
	var problems []string

	var records []CredentialRecord
	if err := json.Unmarshal(data, &records); err != nil {
		// Not a list; some exports wrap records in an object.
		var single CredentialRecord
		if err2 := json.Unmarshal(data, &single); err2 != nil {
			return []string{fmt.Sprintf("payload is not valid JSON: %v", err)}
		}
		records = []CredentialRecord{single}
	}

	for i, rec := range records {
		if rec.ID == "" {
			problems = append(problems, fmt.Sprintf("record %d: missing id", i))
		}
		if rec.Name == "" {
			problems = append(problems, fmt.Sprintf("record %d: missing name", i))
		}
		if rec.Type == "" {
			problems = append(problems, fmt.Sprintf("record %d: missing type", i))
		}
		if len(rec.Data) == 0 {
			problems = append(problems, fmt.Sprintf("record %d: missing data payload", i))
		}
	}
	return problems
}

// ValidateArtifact verifies an artifact file against its recorded checksum and,
// for credential exports, its structure. Every defect is reported.
func (v *IntegrityValidator) ValidateArtifact(path, expectedChecksum string, credentialExport bool) []string {
	var problems []string

	info, err := os.Stat(path)
	if err != nil {
		return []string{fmt.Sprintf("artifact not accessible: %v", err)}
	}
	if info.Size() == 0 {
		problems = append(problems, "artifact is empty")
	}

	if expectedChecksum != "" {
		ok, err := v.VerifyFileChecksum(path, expectedChecksum)
		if err != nil {
			problems = append(problems, fmt.Sprintf("checksum could not be computed: %v", err))
		} else if !ok {
			problems = append(problems, "checksum mismatch: artifact differs from recorded digest")
		}
	}

	if credentialExport {
		data, err := os.ReadFile(path)
		if err != nil {
			problems = append(problems, fmt.Sprintf("artifact not readable: %v", err))
		} else {
			problems = append(problems, v.ValidateCredentialExport(data)...)
		}
	}

	return problems
}
