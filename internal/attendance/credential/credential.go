// Package credential derives and checks device API-key digests. Keys are
// never stored; only their BLAKE3 digest is.
package credential

import (
	"crypto/subtle"

	"github.com/zeebo/blake3"
)

const DigestSize = 32

func Digest(apiKey string) []byte {
	sum := blake3.Sum256([]byte(apiKey))
	return sum[:]
}

// Matches reports whether apiKey hashes to digest, in constant time.
func Matches(apiKey string, digest []byte) bool {
	if len(digest) != DigestSize || apiKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare(Digest(apiKey), digest) == 1
}
