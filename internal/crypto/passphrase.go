package crypto

import (
	"crypto/sha512"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SQLCipher v4 key derivation parameters.
	passphraseIterations = 256000
	passphraseKeySize    = 32
)

// DeriveSecretFromPassphrase turns a human passphrase into hex key material
// for the decryption search, using the same PBKDF2-SHA512 derivation the
// database engine applies to non-raw keys. The salt is the first 16 bytes of
// the encrypted file in deployments that prepend it; callers that have no
// salt pass the IV.
func DeriveSecretFromPassphrase(passphrase string, salt []byte) string {
	key := pbkdf2.Key([]byte(passphrase), salt, passphraseIterations, passphraseKeySize, sha512.New)
	return hex.EncodeToString(key)
}
