package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"runtime"

	"github.com/ahstewart/signal-snapshot/internal/progress"
)

// ChunkSize is the unit of work for streamed decryption. Chunking exists for
// progress reporting and cooperative yielding only; the cipher state is
// chained across chunks so the output is identical to a whole-buffer decrypt.
const ChunkSize = 1 << 20 // 1 MiB

// decryptChunked decrypts body with the given key, IV, mode, and padding.
// Payloads of at most two chunks are processed in a single pass. Larger
// payloads are walked chunk by chunk; after each chunk the decoder reports
// fractional progress and yields the processor before continuing. Yield
// points only occur between whole chunks, never mid-chunk, so chunking never
// changes the output.
//
// Any cipher or padding error aborts the attempt and is returned to the
// caller, which treats it as a failed candidate rather than a fatal error.
func decryptChunked(body, key, iv []byte, mode CipherMode, padding Padding, onProgress progress.Func) ([]byte, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty ciphertext body")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	var decrypt func(dst, src []byte) error
	switch mode {
	case ModeCBC:
		if len(body)%aes.BlockSize != 0 {
			return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(body))
		}
		bm := cipher.NewCBCDecrypter(block, iv)
		decrypt = func(dst, src []byte) error {
			bm.CryptBlocks(dst, src)
			return nil
		}
	case ModeCTR:
		stream := cipher.NewCTR(block, iv)
		decrypt = func(dst, src []byte) error {
			stream.XORKeyStream(dst, src)
			return nil
		}
	default:
		return nil, fmt.Errorf("unsupported cipher mode %v", mode)
	}

	plaintext := make([]byte, len(body))

	// Small payloads do not benefit from incremental reporting.
	if len(body) <= 2*ChunkSize {
		if err := decrypt(plaintext, body); err != nil {
			return nil, err
		}
		progress.Report(onProgress, 100, "decrypted")
		return unpad(plaintext, padding)
	}

	totalChunks := (len(body) + ChunkSize - 1) / ChunkSize
	for i := 0; i < totalChunks; i++ {
		lo := i * ChunkSize
		hi := lo + ChunkSize
		if hi > len(body) {
			hi = len(body)
		}
		// Chunk boundaries are ChunkSize-aligned and ChunkSize is a
		// multiple of the block size, so CBC chaining state carries
		// over cleanly.
		if err := decrypt(plaintext[lo:hi], body[lo:hi]); err != nil {
			return nil, err
		}
		progress.Report(onProgress, float64(i+1)/float64(totalChunks)*100,
			fmt.Sprintf("decrypted chunk %d/%d", i+1, totalChunks))
		runtime.Gosched()
	}

	return unpad(plaintext, padding)
}

// unpad removes padding from a fully decrypted buffer. Padding only ever
// applies to the final block.
func unpad(plaintext []byte, padding Padding) ([]byte, error) {
	if padding == PaddingNone {
		return plaintext, nil
	}
	if len(plaintext) == 0 || len(plaintext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("padded plaintext length %d is invalid", len(plaintext))
	}
	n := int(plaintext[len(plaintext)-1])
	if n == 0 || n > aes.BlockSize || n > len(plaintext) {
		return nil, fmt.Errorf("invalid padding length %d", n)
	}
	for _, b := range plaintext[len(plaintext)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("inconsistent padding bytes")
		}
	}
	return plaintext[:len(plaintext)-n], nil
}
