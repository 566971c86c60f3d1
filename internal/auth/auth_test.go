package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCredentials_SignRequest(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}

	fixed := time.UnixMilli(1700000000123)
	creds := &Credentials{
		KeyID:      "test-key-id",
		PrivateKey: privateKey,
		now:        func() time.Time { return fixed },
	}

	headers, err := creds.SignRequest("GET", "/trade-api/v2/markets/trades")
	if err != nil {
		t.Fatalf("SignRequest failed: %v", err)
	}

	if headers[HeaderKey] != "test-key-id" {
		t.Errorf("%s = %q, want %q", HeaderKey, headers[HeaderKey], "test-key-id")
	}
	if headers[HeaderTimestamp] != "1700000000123" {
		t.Errorf("%s = %q, want %q", HeaderTimestamp, headers[HeaderTimestamp], "1700000000123")
	}

	sig, err := base64.StdEncoding.DecodeString(headers[HeaderSignature])
	if err != nil {
		t.Fatalf("signature is not valid base64: %v", err)
	}

	hashed := sha256.Sum256([]byte("1700000000123GET/trade-api/v2/markets/trades"))
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}
	if err := rsa.VerifyPSS(&privateKey.PublicKey, crypto.SHA256, hashed[:], sig, opts); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}
}

func TestLoadCredentials(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}

	dir := t.TempDir()

	t.Run("pkcs8", func(t *testing.T) {
		der, err := x509.MarshalPKCS8PrivateKey(privateKey)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		path := filepath.Join(dir, "pkcs8.pem")
		writePEM(t, path, "PRIVATE KEY", der)

		creds, err := LoadCredentials("key", path)
		if err != nil {
			t.Fatalf("LoadCredentials: %v", err)
		}
		if !creds.PrivateKey.Equal(privateKey) {
			t.Error("loaded key does not match")
		}
	})

	t.Run("pkcs1", func(t *testing.T) {
		path := filepath.Join(dir, "pkcs1.pem")
		writePEM(t, path, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(privateKey))

		if _, err := LoadCredentials("key", path); err != nil {
			t.Fatalf("LoadCredentials: %v", err)
		}
	})

	t.Run("missing key id", func(t *testing.T) {
		if _, err := LoadCredentials("", filepath.Join(dir, "pkcs1.pem")); err == nil {
			t.Error("expected error for empty key id")
		}
	})

	t.Run("not pem", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.pem")
		if err := os.WriteFile(path, []byte("not a key"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadCredentials("key", path); err == nil {
			t.Error("expected error for non-PEM file")
		}
	})
}

func writePEM(t *testing.T, path, typ string, der []byte) {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
}
