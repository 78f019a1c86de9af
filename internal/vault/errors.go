package vault

import "errors"

// Decrypt failures are terminal: no partial plaintext is ever returned.
var (
	// ErrKeyMissing means the key could not be loaded, generated or
	// persisted, or the key an operation needs is not configured.
	ErrKeyMissing = errors.New("vault: encryption key missing")

	// ErrTamperedCiphertext means AEAD tag verification failed; the nonce,
	// ciphertext or tag was modified after encryption. The timestamp and
	// metadata header fields are not covered by the tag.
	ErrTamperedCiphertext = errors.New("vault: ciphertext tampered (auth tag mismatch)")

	// ErrMalformedPayload means the recovered plaintext does not carry the
	// expected hash::payload layout, or the container header is truncated.
	ErrMalformedPayload = errors.New("vault: malformed payload")

	// ErrIntegrityMismatch means the embedded SHA-256 does not match the
	// recovered payload. This fires even when AEAD verification passed,
	// e.g. after a key-holding adversary re-encrypted modified content.
	ErrIntegrityMismatch = errors.New("vault: integrity verification failed")
)
