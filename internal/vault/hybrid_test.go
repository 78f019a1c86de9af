package vault

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeRSAKeyPair(t *testing.T, dir string) (pubPath, privPath string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	privPath = filepath.Join(dir, "rsa_private.pem")
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal private: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		t.Fatal(err)
	}

	pubPath = filepath.Join(dir, "rsa_public.pem")
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		t.Fatal(err)
	}
	return pubPath, privPath
}

func TestHybridRoundTrip(t *testing.T) {
	pubPath, privPath := writeRSAKeyPair(t, t.TempDir())

	enc, err := NewHybrid(pubPath, "")
	if err != nil {
		t.Fatalf("NewHybrid(pub): %v", err)
	}
	dec, err := NewHybrid("", privPath)
	if err != nil {
		t.Fatalf("NewHybrid(priv): %v", err)
	}

	payload := []byte("raw frames for the hybrid path")
	data, err := enc.Encrypt(payload, map[string]interface{}{"camera": "rtsp"})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if !IsHybrid(data) {
		t.Fatal("container missing hybrid magic")
	}

	got, hash, meta, err := dec.Decrypt(data)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch")
	}
	digest := sha256.Sum256(payload)
	if want := hex.EncodeToString(digest[:]); hash != want {
		t.Errorf("hash = %s, want %s", hash, want)
	}
	if meta["camera"] != "rtsp" {
		t.Errorf("meta = %v", meta)
	}
}

func TestHybridEncryptNeedsPublicKey(t *testing.T) {
	_, privPath := writeRSAKeyPair(t, t.TempDir())
	v, err := NewHybrid("", privPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Encrypt([]byte("x"), nil); !errors.Is(err, ErrKeyMissing) {
		t.Errorf("err = %v, want ErrKeyMissing", err)
	}
}

func TestHybridTamperedCiphertext(t *testing.T) {
	pubPath, privPath := writeRSAKeyPair(t, t.TempDir())
	v, err := NewHybrid(pubPath, privPath)
	if err != nil {
		t.Fatal(err)
	}

	data, err := v.Encrypt([]byte("payload"), nil)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 1

	if _, _, _, err := v.Decrypt(data); !errors.Is(err, ErrTamperedCiphertext) {
		t.Errorf("err = %v, want ErrTamperedCiphertext", err)
	}
}

func TestHybridRejectsSymmetricContainer(t *testing.T) {
	pubPath, privPath := writeRSAKeyPair(t, t.TempDir())
	hybrid, err := NewHybrid(pubPath, privPath)
	if err != nil {
		t.Fatal(err)
	}

	sym := testVault(t)
	data, err := sym.Encrypt([]byte("x"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if IsHybrid(data) {
		t.Fatal("symmetric container misdetected as hybrid")
	}
	if _, _, _, err := hybrid.Decrypt(data); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("err = %v, want ErrMalformedPayload", err)
	}
}
