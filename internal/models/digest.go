package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DigestLength is the number of hex characters in a SHA-256 digest.
const DigestLength = 64

// Digest is the lowercase hex SHA-256 of a file's raw bytes.
type Digest string

// DigestOf returns the digest of data.
func DigestOf(data []byte) Digest {
	sum := sha256.Sum256(data)
	return Digest(hex.EncodeToString(sum[:]))
}

// ParseDigest validates s as a 64-character lowercase hex digest.
// Callers accepting user input should normalise case first.
func ParseDigest(s string) (Digest, error) {
	if len(s) != DigestLength {
		return "", fmt.Errorf("%w: got %d characters", ErrInvalidDigest, len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%w: unexpected character %q at position %d", ErrInvalidDigest, c, i)
		}
	}
	return Digest(s), nil
}

// Short returns an abbreviated digest for log lines.
func (d Digest) Short() string {
	if len(d) <= 12 {
		return string(d)
	}
	return string(d[:12])
}

func (d Digest) String() string {
	return string(d)
}
