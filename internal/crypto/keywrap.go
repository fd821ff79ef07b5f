package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
)

const wrapNonceSize = 12

// UnwrapDatabaseKey recovers the hex database key from a desktop client's
// wrapped key blob. The blob layout is a 3-byte version header ("v10" or
// "v11"), a 12-byte GCM nonce, and the ciphertext with its 16-byte
// authentication tag appended. The plaintext is the hex key string that feeds
// the decryption search.
func UnwrapDatabaseKey(wrappedHex string, masterKey []byte) (string, error) {
	wrapped, err := hex.DecodeString(wrappedHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode wrapped key: %w", err)
	}
	if len(wrapped) < 3+wrapNonceSize+16 {
		return "", fmt.Errorf("wrapped key of %d bytes is too short", len(wrapped))
	}

	header := string(wrapped[:3])
	if header != "v10" && header != "v11" {
		return "", fmt.Errorf("unexpected wrapped key header %q", header)
	}
	nonce := wrapped[3 : 3+wrapNonceSize]
	sealed := wrapped[3+wrapNonceSize:]

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	keyHex, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to unwrap database key: %w", err)
	}
	return string(keyHex), nil
}
