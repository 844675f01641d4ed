// Package secret holds custodial key material in a type that cannot leak
// through formatting, JSON encoding or structured logging.
package secret

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const redacted = "[REDACTED]"

// SigningKeyLen is the length of a secp256k1 private key scalar.
const SigningKeyLen = 32

var ErrMalformedKey = errors.New("malformed signing key")

// SigningKey is an opaque custodial private key. Every rendering path
// (fmt verbs, json, text, zap via fmt.Stringer) prints a placeholder; the raw
// bytes are only reachable through Expose.
type SigningKey struct {
	b []byte
}

// ParseSigningKey decodes a hex key, with or without a 0x prefix.
func ParseSigningKey(s string) (SigningKey, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return SigningKey{}, ErrMalformedKey
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return SigningKey{}, ErrMalformedKey
	}
	k := SigningKey{b: b}
	if err := k.Validate(); err != nil {
		return SigningKey{}, err
	}
	return k, nil
}

// SigningKeyFromBytes copies b into a new key without validating it.
func SigningKeyFromBytes(b []byte) SigningKey {
	c := make([]byte, len(b))
	copy(c, b)
	return SigningKey{b: c}
}

// Validate is the cheap format sanity check run before a key reaches a signer.
func (k SigningKey) Validate() error {
	if len(k.b) == 0 {
		return fmt.Errorf("%w: empty", ErrMalformedKey)
	}
	if len(k.b) != SigningKeyLen {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedKey, SigningKeyLen, len(k.b))
	}
	allZero := true
	for _, c := range k.b {
		if c != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return fmt.Errorf("%w: zero scalar", ErrMalformedKey)
	}
	return nil
}

func (k SigningKey) IsZero() bool {
	return len(k.b) == 0
}

// Expose returns a copy of the raw key. Callers must not retain it beyond the
// signing or sealing call that needed it.
func (k SigningKey) Expose() []byte {
	c := make([]byte, len(k.b))
	copy(c, k.b)
	return c
}

func (k SigningKey) String() string   { return redacted }
func (k SigningKey) GoString() string { return redacted }

func (k SigningKey) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, redacted)
}

func (k SigningKey) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

func (k SigningKey) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}
