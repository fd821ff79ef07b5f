package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/rand"
	"testing"
)

func TestDecryptChunkedMatchesWholeBufferCBC(t *testing.T) {
	// 5 MiB forces the chunked path; the output must be identical to a
	// single-pass decrypt because the cipher state chains across chunks.
	plaintext := fixturePlaintext(5 * ChunkSize)
	key := randomKey(t, 32)
	ciphertext := encryptFixture(t, plaintext, key, ModeCBC, PaddingPKCS7)
	iv, body := ciphertext[:aes.BlockSize], ciphertext[aes.BlockSize:]

	got, err := decryptChunked(body, key, iv, ModeCBC, PaddingPKCS7, nil)
	if err != nil {
		t.Fatalf("decryptChunked() unexpected error: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Error("chunked CBC output differs from original plaintext")
	}
}

func TestDecryptChunkedMatchesWholeBufferCTR(t *testing.T) {
	plaintext := fixturePlaintext(3*ChunkSize + 12345)
	key := randomKey(t, 16)
	ciphertext := encryptFixture(t, plaintext, key, ModeCTR, PaddingNone)
	iv, body := ciphertext[:aes.BlockSize], ciphertext[aes.BlockSize:]

	got, err := decryptChunked(body, key, iv, ModeCTR, PaddingNone, nil)
	if err != nil {
		t.Fatalf("decryptChunked() unexpected error: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Error("chunked CTR output differs from original plaintext")
	}
}

func TestDecryptChunkedProgress(t *testing.T) {
	// 5 MiB body = 5 chunks: at least 5 progress calls, strictly
	// non-decreasing, reaching at least 90 before signature validation.
	plaintext := fixturePlaintext(5 * ChunkSize)
	key := randomKey(t, 32)
	ciphertext := encryptFixture(t, plaintext, key, ModeCTR, PaddingNone)
	iv, body := ciphertext[:aes.BlockSize], ciphertext[aes.BlockSize:]

	var percents []float64
	onProgress := func(p float64, _ string) { percents = append(percents, p) }

	if _, err := decryptChunked(body, key, iv, ModeCTR, PaddingNone, onProgress); err != nil {
		t.Fatalf("decryptChunked() unexpected error: %v", err)
	}

	if len(percents) < 5 {
		t.Fatalf("got %d progress calls, want at least 5", len(percents))
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Fatalf("progress regressed at call %d: %v -> %v", i, percents[i-1], percents[i])
		}
	}
	if final := percents[len(percents)-1]; final < 90 {
		t.Errorf("final chunk progress = %v, want >= 90", final)
	}
}

func TestDecryptChunkedSmallPayloadSinglePass(t *testing.T) {
	plaintext := fixturePlaintext(2 * ChunkSize)
	key := randomKey(t, 24)
	ciphertext := encryptFixture(t, plaintext, key, ModeCTR, PaddingNone)
	iv, body := ciphertext[:aes.BlockSize], ciphertext[aes.BlockSize:]

	calls := 0
	onProgress := func(float64, string) { calls++ }

	got, err := decryptChunked(body, key, iv, ModeCTR, PaddingNone, onProgress)
	if err != nil {
		t.Fatalf("decryptChunked() unexpected error: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Error("single-pass output differs from original plaintext")
	}
	if calls != 1 {
		t.Errorf("got %d progress calls for a two-chunk payload, want 1", calls)
	}
}

func TestDecryptChunkedRejectsMisalignedCBC(t *testing.T) {
	key := randomKey(t, 32)
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		t.Fatalf("failed to generate IV: %v", err)
	}

	if _, err := decryptChunked(make([]byte, 100), key, iv, ModeCBC, PaddingNone, nil); err == nil {
		t.Error("expected error for CBC body that is not block aligned")
	}
}

func TestDecryptChunkedEmptyBody(t *testing.T) {
	key := randomKey(t, 32)
	if _, err := decryptChunked(nil, key, make([]byte, aes.BlockSize), ModeCTR, PaddingNone, nil); err == nil {
		t.Error("expected error for empty ciphertext body")
	}
}

func TestUnpad(t *testing.T) {
	block := make([]byte, aes.BlockSize)
	for i := range block {
		block[i] = 4
	}

	tests := []struct {
		name      string
		plaintext []byte
		padding   Padding
		wantLen   int
		wantErr   bool
	}{
		{"none passthrough", []byte{1, 2, 3}, PaddingNone, 3, false},
		{"valid pkcs7", pkcs7Pad([]byte("hello")), PaddingPKCS7, 5, false},
		{"full padding block", pkcs7Pad(make([]byte, aes.BlockSize)), PaddingPKCS7, aes.BlockSize, false},
		{"zero pad byte", append(make([]byte, 15), 0), PaddingPKCS7, 0, true},
		{"oversized pad byte", append(make([]byte, 15), 17), PaddingPKCS7, 0, true},
		{"inconsistent pad bytes", append(bytes.Repeat([]byte{9}, 12), 1, 2, 3, 4), PaddingPKCS7, 0, true},
		{"misaligned input", []byte{1, 2, 3}, PaddingPKCS7, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := unpad(tt.plaintext, tt.padding)
			if tt.wantErr {
				if err == nil {
					t.Error("unpad() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unpad() unexpected error: %v", err)
			}
			if len(got) != tt.wantLen {
				t.Errorf("unpad() length = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

// Sanity check that cipher chaining really is preserved across chunk
// boundaries when the body straddles an odd number of blocks past a chunk.
func TestChunkBoundaryIsBlockAligned(t *testing.T) {
	if ChunkSize%aes.BlockSize != 0 {
		t.Fatalf("ChunkSize %d is not a multiple of the AES block size", ChunkSize)
	}
}
