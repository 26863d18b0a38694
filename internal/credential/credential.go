// Package credential owns the single bearer secret shared by every client of the relay.
//
// Only the SHA-256 digest of the secret is consulted when admitting clients, the raw
// secret is persisted so that it can be shown to the user again when pairing a device.
package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// SecretBytes is the amount of randomness in a generated secret.
const SecretBytes = 32

func Generate() (string, error) {
	buf := make([]byte, SecretBytes)

	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func Hash(secret string) string {
	digest := sha256.Sum256([]byte(secret))

	return hex.EncodeToString(digest[:])
}

// Validate reports whether secret hashes to digest. Digests are compared in constant time.
func Validate(secret, digest string) bool {
	if digest == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(Hash(secret)), []byte(digest)) == 1
}

// Fingerprint is a short, log-safe identifier of a secret.
func Fingerprint(secret string) string {
	return Hash(secret)[:12]
}
