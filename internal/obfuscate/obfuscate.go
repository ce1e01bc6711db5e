// Package obfuscate provides the reversible payload transform applied to
// artifacts before they are written.
//
// Payloads are sealed with XChaCha20-Poly1305 under a per-run key. Each
// sealed payload is the random nonce followed by the ciphertext, encoded as
// unpadded base64url text.
package obfuscate

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length of an obfuscation key in bytes.
const KeySize = chacha20poly1305.KeySize

var encoding = base64.RawURLEncoding

// ErrMalformed indicates the input to Reverse is not a sealed payload.
var ErrMalformed = errors.New("malformed payload")

// Obfuscator seals and opens payloads with a single key.
// It is safe for concurrent use.
type Obfuscator struct {
	key  []byte
	aead cipher.AEAD
}

// NewKey returns a fresh random key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// New creates an Obfuscator for key, which must be KeySize bytes.
func New(key []byte) (*Obfuscator, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("invalid key: %w", err)
	}
	return &Obfuscator{key: append([]byte(nil), key...), aead: aead}, nil
}

// Generate creates an Obfuscator with a fresh random key.
func Generate() (*Obfuscator, error) {
	key, err := NewKey()
	if err != nil {
		return nil, err
	}
	return New(key)
}

// FromString creates an Obfuscator from a key exported with Key.
func FromString(s string) (*Obfuscator, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid key encoding: %w", err)
	}
	return New(key)
}

// Key returns the key as standard base64, suitable for escrow.
func (o *Obfuscator) Key() string {
	return base64.StdEncoding.EncodeToString(o.key)
}

// Apply seals plaintext and returns the encoded payload.
func (o *Obfuscator) Apply(plaintext []byte) ([]byte, error) {
	ns := o.aead.NonceSize()
	sealed := make([]byte, ns, ns+len(plaintext)+o.aead.Overhead())
	if _, err := rand.Read(sealed); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed = o.aead.Seal(sealed, sealed, plaintext, nil)

	out := make([]byte, encoding.EncodedLen(len(sealed)))
	encoding.Encode(out, sealed)
	return out, nil
}

// Reverse opens a payload produced by Apply with the same key.
func (o *Obfuscator) Reverse(payload []byte) ([]byte, error) {
	sealed := make([]byte, encoding.DecodedLen(len(payload)))
	n, err := encoding.Decode(sealed, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	sealed = sealed[:n]

	ns := o.aead.NonceSize()
	if len(sealed) < ns+o.aead.Overhead() {
		return nil, fmt.Errorf("%w: too short", ErrMalformed)
	}
	plaintext, err := o.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return plaintext, nil
}

// SealedSize returns the length of Apply's output for n plaintext bytes.
func (o *Obfuscator) SealedSize(n int) int {
	return encoding.EncodedLen(o.aead.NonceSize() + n + o.aead.Overhead())
}
