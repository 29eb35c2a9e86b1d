package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	keySize = 32
	ivSize  = 16
)

// ErrDecryption indicates the blob is truncated, corrupted or was produced
// with a different key.
var ErrDecryption = errors.New("codec: decryption failed")

// Codec encrypts artifact payloads with AES-256-GCM. Every blob is laid out
// as a 16-byte random nonce followed by the ciphertext; the nonce is never
// reused across calls.
type Codec struct {
	aead cipher.AEAD
}

// New derives the fixed symmetric key from the configured secret. Secrets of
// the wrong length are right-padded with spaces or truncated to exactly 32
// bytes, so the same configuration always yields the same key.
func New(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("codec: empty encryption secret")
	}
	block, err := aes.NewCipher(DeriveKey(secret))
	if err != nil {
		return nil, fmt.Errorf("codec: init cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("codec: init aead: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// DeriveKey normalizes a secret to the exact AES-256 key length.
func DeriveKey(secret string) []byte {
	key := make([]byte, keySize)
	for i := range key {
		key[i] = ' '
	}
	copy(key, secret)
	return key
}

// Encrypt seals plaintext under a fresh random nonce and prepends the nonce.
func (c *Codec) Encrypt(plaintext []byte) ([]byte, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("codec: nonce: %w", err)
	}
	out := make([]byte, 0, ivSize+len(plaintext)+c.aead.Overhead())
	out = append(out, iv...)
	return c.aead.Seal(out, iv, plaintext, nil), nil
}

// Decrypt splits the 16-byte nonce prefix and opens the remainder. Any
// modification of the blob body fails authentication.
func (c *Codec) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < ivSize+c.aead.Overhead() {
		return nil, ErrDecryption
	}
	iv := blob[:ivSize]
	plaintext, err := c.aead.Open(nil, iv, blob[ivSize:], nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}
