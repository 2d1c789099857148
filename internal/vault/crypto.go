package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"dbguardian/internal/backup"
)

const (
	keySize    = 32 // 256 bits
	saltSize   = 32
	iterations = 100000
)

// Cipher performs AES-256-GCM authenticated encryption with a fixed key.
// The vault's job is structure, caching, and metadata; all cryptography
// funnels through here.
type Cipher struct {
	key []byte
}

// NewCipher creates a cipher from a raw 256-bit key
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, backup.NewEncryptionKeyError("key must be 32 bytes for AES-256", nil)
	}
	return &Cipher{key: key}, nil
}

// NewCipherFromPassphrase derives the key from a passphrase using PBKDF2
// with SHA-256 and 100,000 iterations
func NewCipherFromPassphrase(passphrase string, salt []byte) *Cipher {
	return &Cipher{key: pbkdf2.Key([]byte(passphrase), salt, iterations, keySize, sha256.New)}
}

// GenerateSalt returns a fresh random salt for key derivation
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, backup.NewEncryptionKeyError("failed to generate salt", err)
	}
	return salt, nil
}

// Encrypt seals plaintext with AES-256-GCM, prepending the random nonce
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, backup.NewEncryptionKeyError("failed to create AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, backup.NewEncryptionKeyError("failed to create GCM cipher", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, backup.NewEncryptionKeyError("failed to generate nonce", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce-prefixed AES-256-GCM ciphertext. A wrong key or
// tampered ciphertext fails authentication and is reported as a key error.
func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, backup.NewEncryptionKeyError("failed to create AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, backup.NewEncryptionKeyError("failed to create GCM cipher", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, backup.NewEncryptionKeyError("encrypted data too short", nil)
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, backup.NewEncryptionKeyError("failed to decrypt data (wrong passphrase?)", err)
	}
	return plaintext, nil
}

// KeyHash returns the SHA-256 fingerprint of the key, suitable for stamping
// into artifact metadata without revealing the key
func (c *Cipher) KeyHash() string {
	return backup.HashEncryptionKey(c.key)
}
