package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"testing"
)

func wrapKey(t *testing.T, header string, masterKey []byte, keyHex string) string {
	t.Helper()

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatalf("failed to create GCM: %v", err)
	}

	nonce := make([]byte, wrapNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		t.Fatalf("failed to generate nonce: %v", err)
	}

	blob := append([]byte(header), nonce...)
	blob = append(blob, gcm.Seal(nil, nonce, []byte(keyHex), nil)...)
	return hex.EncodeToString(blob)
}

func TestUnwrapDatabaseKey(t *testing.T) {
	masterKey := randomKey(t, 32)
	keyHex := strings.Repeat("0123456789abcdef", 4)

	for _, header := range []string{"v10", "v11"} {
		t.Run(header, func(t *testing.T) {
			wrapped := wrapKey(t, header, masterKey, keyHex)
			got, err := UnwrapDatabaseKey(wrapped, masterKey)
			if err != nil {
				t.Fatalf("UnwrapDatabaseKey() unexpected error: %v", err)
			}
			if got != keyHex {
				t.Errorf("UnwrapDatabaseKey() = %s, want %s", got, keyHex)
			}
		})
	}
}

func TestUnwrapDatabaseKeyFailures(t *testing.T) {
	masterKey := randomKey(t, 32)
	keyHex := strings.Repeat("ab", 32)

	tests := []struct {
		name    string
		wrapped string
	}{
		{"not hex", "zz-not-hex"},
		{"too short", "76313000"},
		{"bad header", wrapKey(t, "v99", masterKey, keyHex)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnwrapDatabaseKey(tt.wrapped, masterKey); err == nil {
				t.Error("UnwrapDatabaseKey() expected error, got nil")
			}
		})
	}
}

func TestUnwrapDatabaseKeyWrongMasterKey(t *testing.T) {
	wrapped := wrapKey(t, "v10", randomKey(t, 32), strings.Repeat("cd", 32))
	if _, err := UnwrapDatabaseKey(wrapped, randomKey(t, 32)); err == nil {
		t.Error("UnwrapDatabaseKey() expected authentication failure, got nil")
	}
}

func TestDeriveSecretFromPassphrase(t *testing.T) {
	salt := []byte("0123456789abcdef")

	a := DeriveSecretFromPassphrase("correct horse battery staple", salt)
	b := DeriveSecretFromPassphrase("correct horse battery staple", salt)
	if a != b {
		t.Error("derivation is not deterministic")
	}
	if len(a) != passphraseKeySize*2 {
		t.Errorf("derived secret length = %d, want %d hex chars", len(a), passphraseKeySize*2)
	}
	if _, err := normalizeSecret(a); err != nil {
		t.Errorf("derived secret is not valid key material: %v", err)
	}

	if DeriveSecretFromPassphrase("other", salt) == a {
		t.Error("different passphrases derived the same secret")
	}
}
