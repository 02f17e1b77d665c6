// Package token issues unguessable session identifiers.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// tokenBytes is the raw entropy per token. 32 bytes gives 256 bits, encoded
// to 43 URL-safe characters.
const tokenBytes = 32

// ErrEntropyUnavailable is returned when the system randomness source cannot
// be read. Token issuance never falls back to a weaker generator; session
// creation fails instead.
var ErrEntropyUnavailable = errors.New("entropy source unavailable")

// Issuer generates session tokens from the system CSPRNG.
type Issuer struct{}

// NewIssuer creates a token issuer.
func NewIssuer() *Issuer {
	return &Issuer{}
}

// Issue returns a new opaque session token: 256 bits of entropy encoded with
// the unpadded URL-safe base64 alphabet.
func (i *Issuer) Issue() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%w: %w", ErrEntropyUnavailable, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Valid reports whether a caller-presented string has the shape of an issued
// token. It is a cheap syntactic check only, used to reject garbage before a
// store lookup.
func Valid(tok string) bool {
	if len(tok) != base64.RawURLEncoding.EncodedLen(tokenBytes) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(tok)
	return err == nil
}
