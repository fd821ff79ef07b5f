package crypto

// CipherMode selects the block cipher mode of operation for a candidate.
type CipherMode int

const (
	// ModeCBC is AES in cipher block chaining mode.
	ModeCBC CipherMode = iota
	// ModeCTR is AES in counter mode.
	ModeCTR
)

func (m CipherMode) String() string {
	switch m {
	case ModeCBC:
		return "cbc"
	case ModeCTR:
		return "ctr"
	default:
		return "unknown"
	}
}

// Padding selects the padding scheme for a candidate.
type Padding int

const (
	// PaddingPKCS7 strips PKCS#7 padding from the final block.
	PaddingPKCS7 Padding = iota
	// PaddingNone treats the plaintext as unpadded.
	PaddingNone
)

func (p Padding) String() string {
	switch p {
	case PaddingPKCS7:
		return "pkcs7"
	case PaddingNone:
		return "none"
	default:
		return "unknown"
	}
}

// candidate is one (key length, mode, padding) triple tried during the
// decryption search.
type candidate struct {
	keyLen  int
	mode    CipherMode
	padding Padding
}

// keyBucket groups the candidates for one key length. Weight drives both the
// search order and the share of the progress range the bucket consumes.
type keyBucket struct {
	keyLen int
	weight int
}

// keyBuckets lists the standard AES key sizes strongest-first. Real-world
// deployments most commonly use the strongest size, so AES-256 is tried
// before AES-192 before AES-128.
var keyBuckets = []keyBucket{
	{keyLen: 32, weight: 3},
	{keyLen: 24, weight: 2},
	{keyLen: 16, weight: 1},
}

// bucketModes lists the (mode, padding) pairs attempted for every key, in
// order. CTR requires no padding by construction; CBC without padding is a
// fallback for truncated or otherwise malformed ciphertext.
var bucketModes = []struct {
	mode    CipherMode
	padding Padding
}{
	{ModeCBC, PaddingPKCS7},
	{ModeCBC, PaddingNone},
	{ModeCTR, PaddingNone},
}

// enumerateCandidates expands the buckets into the full ordered candidate
// list.
func enumerateCandidates() []candidate {
	out := make([]candidate, 0, len(keyBuckets)*len(bucketModes))
	for _, b := range keyBuckets {
		for _, m := range bucketModes {
			out = append(out, candidate{keyLen: b.keyLen, mode: m.mode, padding: m.padding})
		}
	}
	return out
}

// totalWeight is the sum of all bucket weights, used to apportion progress.
func totalWeight() int {
	sum := 0
	for _, b := range keyBuckets {
		sum += b.weight
	}
	return sum
}
