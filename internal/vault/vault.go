// Package vault implements the encrypted credential store. Credentials are
// encrypted twice: each username/password field individually, and the whole
// container again when persisted, so neither the file at rest nor a loaded
// in-memory vault ever holds plaintext secrets outside the decrypt cache.
package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"dbguardian/internal/backup"
)

const fileVersion = 1

// Entry is one named credential as held inside the vault. Field values are
// ciphertext; callers never see this type, they receive decrypted copies.
type Entry struct {
	Name              string    `json:"name"`
	EncryptedUsername []byte    `json:"encrypted_username"`
	EncryptedPassword []byte    `json:"encrypted_password"`
	Description       string    `json:"description,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Credential is the decrypted view returned to callers. It is a copy, never
// a reference into vault-internal storage.
type Credential struct {
	Username string
	Password string
}

// envelope is the on-disk shape of the vault file. Only the salt and version
// are readable without the passphrase.
type envelope struct {
	Version   int       `json:"version"`
	Salt      []byte    `json:"salt"`
	UpdatedAt time.Time `json:"updated_at"`
	Payload   []byte    `json:"payload"`
}

// Vault is an encrypted key-value store of named credentials with a
// decrypt-on-read cache. It is safe for concurrent use.
type Vault struct {
	path       string
	passphrase string

	mu      sync.RWMutex
	salt    []byte
	cipher  *Cipher
	entries map[string]*Entry
	cache   map[string]Credential
}

// New creates a vault bound to a file path and passphrase. No I/O happens
// until Load or Save.
func New(path, passphrase string) *Vault {
	return &Vault{
		path:       path,
		passphrase: passphrase,
		entries:    make(map[string]*Entry),
		cache:      make(map[string]Credential),
	}
}

// Load reads and decrypts the vault file. It returns false without error when
// the file does not exist yet; an empty vault is a valid starting state. The
// decrypt cache is cleared on every load.
func (v *Vault) Load() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			v.entries = make(map[string]*Entry)
			v.cache = make(map[string]Credential)
			return false, nil
		}
		return false, backup.NewStorageError("failed to read vault file", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false, backup.NewIntegrityError("vault file is corrupt", err)
	}
	if env.Version != fileVersion {
		return false, backup.NewValidationError(
			fmt.Sprintf("unsupported vault file version %d", env.Version), nil)
	}

	v.salt = env.Salt
	v.cipher = NewCipherFromPassphrase(v.passphrase, v.salt)

	plaintext, err := v.cipher.Decrypt(env.Payload)
	if err != nil {
		return false, err
	}

	entries := make(map[string]*Entry)
	if err := json.Unmarshal(plaintext, &entries); err != nil {
		return false, backup.NewIntegrityError("vault payload is corrupt", err)
	}
	v.entries = entries
	v.cache = make(map[string]Credential)
	return true, nil
}

// Save encrypts and persists the vault atomically: the container is written
// to a temp file with owner-only permissions and renamed into place. Parent
// directories are created as needed.
func (v *Vault) Save() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureCipher(); err != nil {
		return err
	}

	plaintext, err := json.Marshal(v.entries)
	if err != nil {
		return backup.NewIntegrityError("failed to serialize vault entries", err)
	}
	payload, err := v.cipher.Encrypt(plaintext)
	if err != nil {
		return err
	}

	env := envelope{
		Version:   fileVersion,
		Salt:      v.salt,
		UpdatedAt: time.Now().UTC(),
		Payload:   payload,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return backup.NewIntegrityError("failed to serialize vault file", err)
	}

	dir := filepath.Dir(v.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return backup.NewStorageError("failed to create vault directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".vault-*")
	if err != nil {
		return backup.NewStorageError("failed to create temporary vault file", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return backup.NewStorageError("failed to set vault file permissions", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return backup.NewStorageError("failed to write vault file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return backup.NewStorageError("failed to close vault file", err)
	}
	if err := os.Rename(tmpPath, v.path); err != nil {
		os.Remove(tmpPath)
		return backup.NewStorageError("failed to replace vault file", err)
	}
	return nil
}

// Set encrypts and stores a credential. An existing entry keeps its original
// creation time; its cache slot is evicted so a stale plaintext is never
// returned after an update.
func (v *Vault) Set(name, username, password, description string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if name == "" {
		return backup.NewValidationError("credential name is required", nil)
	}
	if err := v.ensureCipher(); err != nil {
		return err
	}

	encUser, err := v.cipher.Encrypt([]byte(username))
	if err != nil {
		return err
	}
	encPass, err := v.cipher.Encrypt([]byte(password))
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	entry := &Entry{
		Name:              name,
		EncryptedUsername: encUser,
		EncryptedPassword: encPass,
		Description:       description,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if existing, ok := v.entries[name]; ok {
		entry.CreatedAt = existing.CreatedAt
	}
	v.entries[name] = entry
	delete(v.cache, name)
	return nil
}

// Get returns the decrypted credential for name. Repeated reads of the same
// entry are served from the decrypt cache.
func (v *Vault) Get(name string) (Credential, bool, error) {
	v.mu.RLock()
	if cred, ok := v.cache[name]; ok {
		v.mu.RUnlock()
		return cred, true, nil
	}
	_, ok := v.entries[name]
	v.mu.RUnlock()
	if !ok {
		return Credential{}, false, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	// Another reader may have populated the cache while we upgraded the lock.
	if cred, ok := v.cache[name]; ok {
		return cred, true, nil
	}
	// The entry must be re-read under the write lock: a Set or Remove may have
	// landed while the lock was released, and decrypting the old entry here
	// would cache plaintext that predates the update.
	entry, ok := v.entries[name]
	if !ok {
		return Credential{}, false, nil
	}
	if err := v.ensureCipher(); err != nil {
		return Credential{}, false, err
	}

	username, err := v.cipher.Decrypt(entry.EncryptedUsername)
	if err != nil {
		return Credential{}, false, err
	}
	password, err := v.cipher.Decrypt(entry.EncryptedPassword)
	if err != nil {
		return Credential{}, false, err
	}
	cred := Credential{Username: string(username), Password: string(password)}
	v.cache[name] = cred
	return cred, true, nil
}

// Remove deletes an entry and its cache slot, reporting whether anything
// was removed
func (v *Vault) Remove(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.entries[name]
	delete(v.entries, name)
	delete(v.cache, name)
	return ok
}

// Validate reports whether every required name has an entry. Extra entries
// are permitted, so a decommissioned database does not invalidate the vault.
func (v *Vault) Validate(requiredNames []string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, name := range requiredNames {
		if _, ok := v.entries[name]; !ok {
			return false
		}
	}
	return true
}

// Missing returns the required names that have no entry
func (v *Vault) Missing(requiredNames []string) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var missing []string
	for _, name := range requiredNames {
		if _, ok := v.entries[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Names returns all entry names in sorted order
func (v *Vault) Names() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	names := make([]string, 0, len(v.entries))
	for name := range v.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the non-secret metadata of an entry
func (v *Vault) Describe(name string) (description string, createdAt, updatedAt time.Time, ok bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	entry, found := v.entries[name]
	if !found {
		return "", time.Time{}, time.Time{}, false
	}
	return entry.Description, entry.CreatedAt, entry.UpdatedAt, true
}

// KeyHash returns the fingerprint of the derived encryption key, used to
// detect key mismatches between backup and restore
func (v *Vault) KeyHash() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureCipher(); err != nil {
		return "", err
	}
	return v.cipher.KeyHash(), nil
}

// ensureCipher derives the cipher, generating a fresh salt for a vault that
// has never been persisted. Callers must hold the write lock.
func (v *Vault) ensureCipher() error {
	if v.cipher != nil {
		return nil
	}
	if len(v.salt) == 0 {
		salt, err := GenerateSalt()
		if err != nil {
			return err
		}
		v.salt = salt
	}
	v.cipher = NewCipherFromPassphrase(v.passphrase, v.salt)
	return nil
}
