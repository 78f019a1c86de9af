package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32

	hashHexLen = sha256.Size * 2
)

// separator splits the embedded integrity hash from the payload inside the
// AEAD plaintext.
var separator = []byte("::")

// Vault seals and opens evidence payloads. Implementations are safe for
// concurrent use from any worker.
type Vault interface {
	// Encrypt seals payload with meta into a self-contained container.
	Encrypt(payload []byte, meta map[string]interface{}) ([]byte, error)
	// Decrypt opens a container, verifies both the AEAD tag and the
	// embedded hash, and returns the payload, its hex hash, and the
	// container metadata.
	Decrypt(data []byte) ([]byte, string, map[string]interface{}, error)
}

// SecureVault is the symmetric AES-256-GCM vault. The key is immutable
// after construction; Encrypt is stateless apart from nonce generation, so
// the vault is shared by reference across all camera workers.
type SecureVault struct {
	key  []byte
	aead cipher.AEAD
}

// New creates a vault around a raw 32-byte key.
func New(key []byte) (*SecureVault, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault: key must be %d bytes, got %d", KeySize, len(key))
	}
	own := make([]byte, KeySize)
	copy(own, key)

	block, err := aes.NewCipher(own)
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: init gcm: %w", err)
	}
	return &SecureVault{key: own, aead: aead}, nil
}

// Open loads the key from keyPath, generating and persisting a fresh one
// (owner read/write only) if the file does not exist.
func Open(keyPath string) (*SecureVault, error) {
	key, err := loadOrCreateKey(keyPath)
	if err != nil {
		return nil, err
	}
	defer zero(key)
	return New(key)
}

func loadOrCreateKey(keyPath string) ([]byte, error) {
	if data, err := os.ReadFile(keyPath); err == nil {
		if len(data) != KeySize {
			return nil, fmt.Errorf("%w: key file %s has %d bytes, want %d",
				ErrKeyMissing, keyPath, len(data), KeySize)
		}
		log.Info().Str("path", keyPath).Msg("Loaded encryption key")
		return data, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %v", ErrKeyMissing, err)
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: generate: %v", ErrKeyMissing, err)
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMissing, err)
	}
	if err := os.WriteFile(keyPath, key, 0o600); err != nil {
		return nil, fmt.Errorf("%w: persist: %v", ErrKeyMissing, err)
	}

	log.Warn().Str("path", keyPath).
		Msg("Generated new encryption key - back it up, evidence is unrecoverable without it")
	return key, nil
}

// Encrypt seals payload into a container. The plaintext fed to the cipher is
// hex(sha256(payload)) || "::" || payload; the hash survives as a stable
// fingerprint even if the key ever leaks and content is re-encrypted.
func (v *SecureVault) Encrypt(payload []byte, meta map[string]interface{}) ([]byte, error) {
	digest := sha256.Sum256(payload)
	hexHash := hex.EncodeToString(digest[:])

	plaintext := make([]byte, 0, hashHexLen+len(separator)+len(payload))
	plaintext = append(plaintext, hexHash...)
	plaintext = append(plaintext, separator...)
	plaintext = append(plaintext, payload...)

	// Fresh nonce per encryption; reuse under the same key would be
	// catastrophic for GCM.
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: nonce: %w", err)
	}

	ciphertext := v.aead.Seal(nil, nonce, plaintext, nil)
	zero(plaintext)

	return encodeContainer(container{
		Nonce:      nonce,
		Timestamp:  float64(time.Now().UnixNano()) / float64(time.Second),
		Meta:       meta,
		Ciphertext: ciphertext,
	})
}

// Decrypt opens a container. The two integrity layers fail differently:
// a flipped ciphertext bit is ErrTamperedCiphertext (GCM tag), a re-sealed
// payload with a stale hash is ErrIntegrityMismatch.
func (v *SecureVault) Decrypt(data []byte) ([]byte, string, map[string]interface{}, error) {
	c, err := decodeContainer(data)
	if err != nil {
		return nil, "", nil, err
	}

	plaintext, err := v.aead.Open(nil, c.Nonce, c.Ciphertext, nil)
	if err != nil {
		return nil, "", nil, ErrTamperedCiphertext
	}

	payload, storedHash, err := splitPayload(plaintext)
	if err != nil {
		return nil, "", nil, err
	}
	return payload, storedHash, c.Meta, nil
}

// splitPayload separates the embedded hash from the payload and verifies it.
// Shared with the hybrid vault, whose plaintext layout is identical.
func splitPayload(plaintext []byte) ([]byte, string, error) {
	sep := bytes.Index(plaintext, separator)
	if sep < 0 {
		return nil, "", ErrMalformedPayload
	}
	storedHash := string(plaintext[:sep])
	payload := plaintext[sep+len(separator):]

	digest := sha256.Sum256(payload)
	if hex.EncodeToString(digest[:]) != storedHash {
		log.Warn().
			Str("expected", storedHash).
			Str("computed", hex.EncodeToString(digest[:])).
			Msg("AUDIT: evidence integrity check failed")
		return nil, "", ErrIntegrityMismatch
	}
	return payload, storedHash, nil
}

// EncryptToFile seals payload and writes the container atomically:
// tmp file, fsync, rename.
func (v *SecureVault) EncryptToFile(payload []byte, meta map[string]interface{}, path string) error {
	data, err := v.Encrypt(payload, meta)
	if err != nil {
		return err
	}
	return WriteAtomic(path, data)
}

// DecryptFile reads and opens a container file.
func (v *SecureVault) DecryptFile(path string) ([]byte, string, map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", nil, fmt.Errorf("vault: read %s: %w", path, err)
	}
	return v.Decrypt(data)
}

// Close zeroes the key material. The vault must not be used afterwards.
func (v *SecureVault) Close() {
	zero(v.key)
	v.aead = nil
}

// WriteAtomic writes data to path via tmp file, fsync, rename.
func WriteAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("vault: create %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("vault: write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("vault: fsync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("vault: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("vault: rename %s: %w", path, err)
	}
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
