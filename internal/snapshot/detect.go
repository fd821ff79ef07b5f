package snapshot

// SignatureSize is the length of the SQLite file header magic.
const SignatureSize = 16

// Signature is the fixed 16-byte header every unencrypted SQLite database
// file starts with ("SQLite format 3\x00").
var Signature = []byte{
	0x53, 0x51, 0x4c, 0x69, 0x74, 0x65, 0x20, 0x66,
	0x6f, 0x72, 0x6d, 0x61, 0x74, 0x20, 0x33, 0x00,
}

// IsPlaintext reports whether buf already holds an unencrypted database
// snapshot. The check is an exact byte-for-byte comparison of the first 16
// bytes against the SQLite signature; anything shorter is not a snapshot.
func IsPlaintext(buf []byte) bool {
	if len(buf) < SignatureSize {
		return false
	}
	for i := 0; i < SignatureSize; i++ {
		if buf[i] != Signature[i] {
			return false
		}
	}
	return true
}
