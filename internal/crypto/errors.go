package crypto

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKeyFormat indicates a secret that is not well-formed
	// hexadecimal after normalization.
	ErrInvalidKeyFormat = errors.New("secret is not a valid hexadecimal key")

	// ErrMissingKey indicates ciphertext input with no secret supplied.
	ErrMissingKey = errors.New("snapshot is encrypted but no key was supplied")
)

// ExhaustedError is returned when every (key length, mode, padding) candidate
// has been tried without producing a valid snapshot.
type ExhaustedError struct {
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("could not decrypt with any of %d attempted combinations", e.Attempts)
}

// ErrDecryptionExhausted matches any ExhaustedError via errors.Is.
var ErrDecryptionExhausted = errors.New("decryption search exhausted")

// Is lets errors.Is(err, ErrDecryptionExhausted) succeed for ExhaustedError.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrDecryptionExhausted
}
