package secret

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrSealedKeyCorrupt = errors.New("sealed key corrupt or bound to another address")

// Sealer encrypts signing keys at rest with XChaCha20-Poly1305. The wallet
// address is used as associated data so a sealed key cannot be moved to
// another row.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(keyHex string) (*Sealer, error) {
	key, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(keyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode sealing key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("sealing key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns nonce || ciphertext.
func (s *Sealer) Seal(k SigningKey, address string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(k.b)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, k.b, []byte(strings.ToLower(address))), nil
}

func (s *Sealer) Open(sealed []byte, address string) (SigningKey, error) {
	ns := s.aead.NonceSize()
	if len(sealed) < ns+s.aead.Overhead() {
		return SigningKey{}, ErrSealedKeyCorrupt
	}
	plain, err := s.aead.Open(nil, sealed[:ns], sealed[ns:], []byte(strings.ToLower(address)))
	if err != nil {
		return SigningKey{}, ErrSealedKeyCorrupt
	}
	return SigningKey{b: plain}, nil
}
