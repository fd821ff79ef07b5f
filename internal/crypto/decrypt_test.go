package crypto

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/ahstewart/signal-snapshot/internal/snapshot"
)

// fixturePlaintext builds a buffer that carries the snapshot signature
// followed by size-16 filler bytes so every CBC fixture block-aligns.
func fixturePlaintext(size int) []byte {
	buf := make([]byte, size)
	copy(buf, snapshot.Signature)
	for i := snapshot.SignatureSize; i < size; i++ {
		buf[i] = byte(i % 251)
	}
	return buf
}

func pkcs7Pad(plaintext []byte) []byte {
	n := aes.BlockSize - len(plaintext)%aes.BlockSize
	out := make([]byte, len(plaintext), len(plaintext)+n)
	copy(out, plaintext)
	for i := 0; i < n; i++ {
		out = append(out, byte(n))
	}
	return out
}

// encryptFixture produces IV||body ciphertext for the given mode and padding.
func encryptFixture(t *testing.T, plaintext, key []byte, mode CipherMode, padding Padding) []byte {
	t.Helper()

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		t.Fatalf("failed to generate IV: %v", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	src := plaintext
	if padding == PaddingPKCS7 {
		src = pkcs7Pad(plaintext)
	}

	body := make([]byte, len(src))
	switch mode {
	case ModeCBC:
		if len(src)%aes.BlockSize != 0 {
			t.Fatalf("CBC fixture is not block aligned: %d", len(src))
		}
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(body, src)
	case ModeCTR:
		cipher.NewCTR(block, iv).XORKeyStream(body, src)
	}

	return append(iv, body...)
}

func randomKey(t *testing.T, n int) []byte {
	t.Helper()
	key := make([]byte, n)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

func TestDecryptCBC256FoundInFirstBucket(t *testing.T) {
	key := randomKey(t, 32)
	plaintext := fixturePlaintext(4096)
	ciphertext := encryptFixture(t, plaintext, key, ModeCBC, PaddingPKCS7)

	var trying []string
	onProgress := func(_ float64, msg string) {
		if strings.HasPrefix(msg, "trying ") {
			trying = append(trying, msg)
		}
	}

	got, err := NewDecryptor(nil).Decrypt(context.Background(), ciphertext, hex.EncodeToString(key), onProgress)
	if err != nil {
		t.Fatalf("Decrypt() unexpected error: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Error("Decrypt() recovered plaintext does not match original")
	}
	if !snapshot.IsPlaintext(got) {
		t.Error("recovered plaintext does not carry the snapshot signature")
	}
	// Order property: the right candidate is the very first one tried.
	if len(trying) != 1 || trying[0] != "trying AES-256 cbc/pkcs7" {
		t.Errorf("attempt sequence = %v, want single AES-256 cbc/pkcs7 attempt", trying)
	}
}

func TestDecryptCTR128LandsOnNinthAttempt(t *testing.T) {
	key := randomKey(t, 16)
	plaintext := fixturePlaintext(2048)
	ciphertext := encryptFixture(t, plaintext, key, ModeCTR, PaddingNone)

	var trying []string
	onProgress := func(_ float64, msg string) {
		if strings.HasPrefix(msg, "trying ") {
			trying = append(trying, msg)
		}
	}

	got, err := NewDecryptor(nil).Decrypt(context.Background(), ciphertext, hex.EncodeToString(key), onProgress)
	if err != nil {
		t.Fatalf("Decrypt() unexpected error: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Error("Decrypt() recovered plaintext does not match original")
	}

	// The 32- and 24-byte buckets are exhausted first (6 attempts), then
	// CBC/pkcs7 and CBC/none fail for the 16-byte key, so CTR lands on the
	// 9th attempt overall.
	want := []string{
		"trying AES-256 cbc/pkcs7",
		"trying AES-256 cbc/none",
		"trying AES-256 ctr/none",
		"trying AES-192 cbc/pkcs7",
		"trying AES-192 cbc/none",
		"trying AES-192 ctr/none",
		"trying AES-128 cbc/pkcs7",
		"trying AES-128 cbc/none",
		"trying AES-128 ctr/none",
	}
	if len(trying) != len(want) {
		t.Fatalf("attempted %d candidates, want %d: %v", len(trying), len(want), trying)
	}
	for i := range want {
		if trying[i] != want[i] {
			t.Errorf("attempt %d = %q, want %q", i+1, trying[i], want[i])
		}
	}
}

func TestDecryptWrongSecretExhausts(t *testing.T) {
	key := randomKey(t, 32)
	ciphertext := encryptFixture(t, fixturePlaintext(1024), key, ModeCBC, PaddingPKCS7)

	var final float64
	onProgress := func(p float64, _ string) { final = p }

	wrong := strings.Repeat("ab", 32)
	_, err := NewDecryptor(nil).Decrypt(context.Background(), ciphertext, wrong, onProgress)
	if !errors.Is(err, ErrDecryptionExhausted) {
		t.Fatalf("Decrypt() error = %v, want ErrDecryptionExhausted", err)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatal("error is not an ExhaustedError")
	}
	if exhausted.Attempts != 9 {
		t.Errorf("Attempts = %d, want 9", exhausted.Attempts)
	}
	if final != 100 {
		t.Errorf("final progress = %v, want 100 on the failure path", final)
	}
}

func TestDecryptInvalidSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"non-hex characters", "zznothex"},
		{"mixed hex and symbols", "abcd-1234"},
	}

	ciphertext := make([]byte, 64)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecryptor(nil).Decrypt(context.Background(), ciphertext, tt.secret, nil)
			if !errors.Is(err, ErrInvalidKeyFormat) {
				t.Errorf("Decrypt() error = %v, want ErrInvalidKeyFormat", err)
			}
		})
	}
}

func TestDecryptAcceptsMessySecret(t *testing.T) {
	key := randomKey(t, 32)
	plaintext := fixturePlaintext(512)
	ciphertext := encryptFixture(t, plaintext, key, ModeCBC, PaddingPKCS7)

	messy := "  " + strings.ToUpper(hex.EncodeToString(key)) + "\n"
	got, err := NewDecryptor(nil).Decrypt(context.Background(), ciphertext, messy, nil)
	if err != nil {
		t.Fatalf("Decrypt() unexpected error: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Error("Decrypt() recovered plaintext does not match original")
	}
}

func TestDecryptProgressMonotonic(t *testing.T) {
	key := randomKey(t, 16)
	ciphertext := encryptFixture(t, fixturePlaintext(4096), key, ModeCTR, PaddingNone)

	var percents []float64
	onProgress := func(p float64, _ string) { percents = append(percents, p) }

	if _, err := NewDecryptor(nil).Decrypt(context.Background(), ciphertext, hex.EncodeToString(key), onProgress); err != nil {
		t.Fatalf("Decrypt() unexpected error: %v", err)
	}

	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Fatalf("progress regressed at call %d: %v -> %v", i, percents[i-1], percents[i])
		}
	}
	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Error("progress did not terminate at 100")
	}
}

func TestKeyFromSecret(t *testing.T) {
	tests := []struct {
		name       string
		normalized string
		keyLen     int
		wantHex    string
	}{
		{"exact fit", "00112233445566778899aabbccddeeff", 16, "00112233445566778899aabbccddeeff"},
		{"truncated", strings.Repeat("ab", 40), 32, strings.Repeat("ab", 32)},
		{"right padded", "abcd", 16, "abcd" + strings.Repeat("0", 28)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := keyFromSecret(tt.normalized, tt.keyLen)
			if err != nil {
				t.Fatalf("keyFromSecret() unexpected error: %v", err)
			}
			if got := hex.EncodeToString(key); got != tt.wantHex {
				t.Errorf("keyFromSecret() = %s, want %s", got, tt.wantHex)
			}
		})
	}
}

func TestEnumerateCandidatesOrder(t *testing.T) {
	cands := enumerateCandidates()
	if len(cands) != 9 {
		t.Fatalf("got %d candidates, want 9", len(cands))
	}
	if cands[0].keyLen != 32 || cands[8].keyLen != 16 {
		t.Error("candidates are not ordered strongest key first")
	}
	for i := 0; i < len(cands); i += 3 {
		if cands[i].mode != ModeCBC || cands[i].padding != PaddingPKCS7 {
			t.Errorf("bucket starting at %d does not open with CBC/pkcs7", i)
		}
		if cands[i+2].mode != ModeCTR {
			t.Errorf("bucket starting at %d does not end with CTR", i)
		}
	}
}
