package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// HybridVault wraps a fresh per-file AES-256 session key under RSA-OAEP so
// the encrypting host never holds a long-lived decryption secret. The
// payload layout inside the AEAD (hash::payload) and all integrity laws are
// identical to SecureVault.
//
// Container layout:
//
//	[magic       : 8 bytes "HYBRID1\x00"]
//	[wrapped key : 256 bytes, RSA-2048 OAEP-SHA256]
//	[nonce       : 12 bytes]
//	[timestamp   : 8 bytes little-endian float64]
//	[meta_len    : 4 bytes little-endian uint32]
//	[meta_json   : meta_len bytes]
//	[ciphertext  : rest]
type HybridVault struct {
	publicKey  *rsa.PublicKey
	privateKey *rsa.PrivateKey
}

// HybridMagic prefixes every hybrid container.
var HybridMagic = []byte("HYBRID1\x00")

const wrappedKeySize = 256 // RSA-2048

// NewHybrid builds a hybrid vault. Either path may be empty: a public key
// alone can encrypt, a private key alone can decrypt.
func NewHybrid(publicKeyPath, privateKeyPath string) (*HybridVault, error) {
	v := &HybridVault{}

	if publicKeyPath != "" {
		pub, err := loadPublicKey(publicKeyPath)
		if err != nil {
			return nil, err
		}
		v.publicKey = pub
		log.Info().Str("path", publicKeyPath).Msg("Loaded RSA public key")
	}
	if privateKeyPath != "" {
		priv, err := loadPrivateKey(privateKeyPath)
		if err != nil {
			return nil, err
		}
		v.privateKey = priv
		log.Info().Str("path", privateKeyPath).Msg("Loaded RSA private key")
	}
	if v.publicKey == nil && v.privateKey == nil {
		return nil, fmt.Errorf("%w: hybrid vault needs at least one RSA key", ErrKeyMissing)
	}
	return v, nil
}

// IsHybrid reports whether data starts with the hybrid container magic.
func IsHybrid(data []byte) bool {
	return len(data) >= len(HybridMagic) && string(data[:len(HybridMagic)]) == string(HybridMagic)
}

func (v *HybridVault) Encrypt(payload []byte, meta map[string]interface{}) ([]byte, error) {
	if v.publicKey == nil {
		return nil, fmt.Errorf("%w: public key required for encryption", ErrKeyMissing)
	}

	sessionKey := make([]byte, KeySize)
	if _, err := rand.Read(sessionKey); err != nil {
		return nil, fmt.Errorf("vault: session key: %w", err)
	}
	defer zero(sessionKey)

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, v.publicKey, sessionKey, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: wrap session key: %w", err)
	}

	aead, err := newAEAD(sessionKey)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(payload)
	plaintext := make([]byte, 0, hashHexLen+len(separator)+len(payload))
	plaintext = append(plaintext, hex.EncodeToString(digest[:])...)
	plaintext = append(plaintext, separator...)
	plaintext = append(plaintext, payload...)

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)
	zero(plaintext)

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("vault: encode metadata: %w", err)
	}

	out := make([]byte, 0, len(HybridMagic)+wrappedKeySize+headerMin+len(metaJSON)+len(ciphertext))
	out = append(out, HybridMagic...)
	out = append(out, wrapped...)
	out = append(out, nonce...)
	out = binary.LittleEndian.AppendUint64(out, math.Float64bits(float64(time.Now().UnixNano())/float64(time.Second)))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(metaJSON)))
	out = append(out, metaJSON...)
	out = append(out, ciphertext...)
	return out, nil
}

func (v *HybridVault) Decrypt(data []byte) ([]byte, string, map[string]interface{}, error) {
	if v.privateKey == nil {
		return nil, "", nil, fmt.Errorf("%w: private key required for decryption", ErrKeyMissing)
	}
	if !IsHybrid(data) {
		return nil, "", nil, fmt.Errorf("%w: missing hybrid magic", ErrMalformedPayload)
	}
	body := data[len(HybridMagic):]
	if len(body) < wrappedKeySize+headerMin+gcmTagSize {
		return nil, "", nil, fmt.Errorf("%w: hybrid container truncated", ErrMalformedPayload)
	}

	wrapped := body[:wrappedKeySize]
	sessionKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, v.privateKey, wrapped, nil)
	if err != nil {
		return nil, "", nil, fmt.Errorf("%w: session key unwrap failed", ErrTamperedCiphertext)
	}
	defer zero(sessionKey)

	c, err := decodeContainer(body[wrappedKeySize:])
	if err != nil {
		return nil, "", nil, err
	}

	aead, err := newAEAD(sessionKey)
	if err != nil {
		return nil, "", nil, err
	}
	plaintext, err := aead.Open(nil, c.Nonce, c.Ciphertext, nil)
	if err != nil {
		return nil, "", nil, ErrTamperedCiphertext
	}

	payload, storedHash, err := splitPayload(plaintext)
	if err != nil {
		return nil, "", nil, err
	}
	return payload, storedHash, c.Meta, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: init gcm: %w", err)
	}
	return aead, nil
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMissing, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: %s is not PEM", ErrKeyMissing, path)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse public key: %v", ErrKeyMissing, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an RSA key", ErrKeyMissing, path)
	}
	return rsaPub, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMissing, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: %s is not PEM", ErrKeyMissing, path)
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("%w: %s is not an RSA key", ErrKeyMissing, path)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %v", ErrKeyMissing, err)
	}
	return key, nil
}
