package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
)

// SecretSize is the number of random bytes behind every refresh token.
const SecretSize = 32

var (
	// ErrMalformed is returned by Parse for values that cannot be a token.
	ErrMalformed = errors.New("malformed refresh token")
)

var randReader io.Reader = rand.Reader

// New returns a fresh high-entropy opaque token.
func New() (string, error) {
	var secret [SecretSize]byte
	if _, err := io.ReadFull(randReader, secret[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(secret[:]), nil
}

// Parse checks that raw has the shape produced by New. It is a cheap
// pre-filter; a well-formed token may still be unknown to the store.
func Parse(raw string) error {
	if len(raw) != base64.RawURLEncoding.EncodedLen(SecretSize) {
		return ErrMalformed
	}
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil || len(decoded) != SecretSize {
		return ErrMalformed
	}
	return nil
}

// Hash returns the hex SHA-256 digest used as the storage key for raw.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
