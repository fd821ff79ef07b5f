package crypto

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ahstewart/signal-snapshot/internal/progress"
	"github.com/ahstewart/signal-snapshot/internal/snapshot"
)

// aes.BlockSize, fixed here to document the wire layout: the first 16 bytes
// of an encrypted snapshot are the IV, the remainder is the ciphertext body.
const ivSize = 16

var hexKeyPattern = regexp.MustCompile(`^[0-9a-f]+$`)

// Decryptor runs the best-effort decryption search. It holds no per-call
// state; a single Decryptor may serve many snapshots.
type Decryptor struct {
	logger *logrus.Logger

	// OnCandidate, when set, observes every attempted candidate with its
	// outcome ("hit" or "miss"). Used to feed metrics without tying the
	// search to a metrics registry.
	OnCandidate func(keyLen int, mode, padding, outcome string)
}

// NewDecryptor creates a decryptor that logs candidate outcomes at debug
// level.
func NewDecryptor(logger *logrus.Logger) *Decryptor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Decryptor{logger: logger}
}

// Decrypt recovers a plaintext snapshot from ciphertext without knowing the
// key length, cipher mode, or padding scheme in advance. Candidates are tried
// strongest-key-first; the first candidate whose output carries the snapshot
// signature wins. Individual candidate failures are silent - only exhaustion
// of the whole search is surfaced, as an ExhaustedError.
//
// Progress is apportioned across key-length buckets by weight, so the AES-256
// bucket consumes the first and largest slice of the 0-100 range. The final
// report is always 100, on success and failure alike.
func (d *Decryptor) Decrypt(ctx context.Context, ciphertext []byte, secret string, onProgress progress.Func) ([]byte, error) {
	onProgress = progress.Monotonic(onProgress)

	normalized, err := normalizeSecret(secret)
	if err != nil {
		progress.Report(onProgress, 100, "invalid key format")
		return nil, err
	}

	if len(ciphertext) <= ivSize {
		progress.Report(onProgress, 100, "ciphertext too short")
		return nil, fmt.Errorf("ciphertext of %d bytes is too short to carry an IV", len(ciphertext))
	}
	iv := ciphertext[:ivSize]
	body := ciphertext[ivSize:]

	total := float64(totalWeight())
	attempts := 0
	cursor := 0.0

	for _, bucket := range keyBuckets {
		bucketSpan := float64(bucket.weight) / total * 100
		key, err := keyFromSecret(normalized, bucket.keyLen)
		if err != nil {
			// A malformed key burns the whole bucket silently.
			d.logger.WithError(err).WithField("key_len", bucket.keyLen).
				Debug("Skipping key bucket")
			attempts += len(bucketModes)
			cursor += bucketSpan
			continue
		}

		candSpan := bucketSpan / float64(len(bucketModes))
		for _, m := range bucketModes {
			if err := ctx.Err(); err != nil {
				progress.Report(onProgress, 100, "decryption aborted")
				return nil, err
			}
			attempts++

			progress.Report(onProgress, cursor, fmt.Sprintf(
				"trying AES-%d %s/%s", bucket.keyLen*8, m.mode, m.padding))

			sub := progress.Stage(onProgress, cursor, cursor+candSpan)
			plaintext, err := decryptChunked(body, key, iv, m.mode, m.padding, sub)
			cursor += candSpan

			if err != nil || len(plaintext) == 0 || !snapshot.IsPlaintext(plaintext) {
				if d.OnCandidate != nil {
					d.OnCandidate(bucket.keyLen, m.mode.String(), m.padding.String(), "miss")
				}
				d.logger.WithFields(logrus.Fields{
					"key_len": bucket.keyLen,
					"mode":    m.mode.String(),
					"padding": m.padding.String(),
					"attempt": attempts,
				}).Debug("Candidate failed")
				continue
			}

			if d.OnCandidate != nil {
				d.OnCandidate(bucket.keyLen, m.mode.String(), m.padding.String(), "hit")
			}
			d.logger.WithFields(logrus.Fields{
				"key_len": bucket.keyLen,
				"mode":    m.mode.String(),
				"padding": m.padding.String(),
				"attempt": attempts,
			}).Info("Decryption candidate succeeded")
			progress.Report(onProgress, 100, "snapshot decrypted")
			return plaintext, nil
		}
	}

	progress.Report(onProgress, 100, fmt.Sprintf(
		"could not decrypt with any of %d attempted combinations", attempts))
	return nil, &ExhaustedError{Attempts: attempts}
}

// normalizeSecret strips whitespace, lowercases, and validates the secret as
// hexadecimal.
func normalizeSecret(secret string) (string, error) {
	s := strings.ToLower(strings.Join(strings.Fields(secret), ""))
	if s == "" || !hexKeyPattern.MatchString(s) {
		return "", ErrInvalidKeyFormat
	}
	return s, nil
}

// keyFromSecret fits the normalized hex secret to the exact character count a
// key length requires: longer secrets are truncated, shorter ones are
// right-padded with zeros.
func keyFromSecret(normalized string, keyLen int) ([]byte, error) {
	want := keyLen * 2
	s := normalized
	if len(s) > want {
		s = s[:want]
	} else if len(s) < want {
		s = s + strings.Repeat("0", want-len(s))
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key material: %w", err)
	}
	return key, nil
}
