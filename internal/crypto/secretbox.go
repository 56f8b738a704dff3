package crypto

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrDecrypt is returned for ciphertext that was not produced with the same
// key.
var ErrDecrypt = errors.New("secretbox: message authentication failed")

// SecretBoxCipher implements Cipher locally with NaCl secretbox. It stands in
// for KMS in dev mode.
type SecretBoxCipher struct {
	key [32]byte
}

// NewSecretBoxCipher derives the box key from secret.
func NewSecretBoxCipher(secret string) *SecretBoxCipher {
	return &SecretBoxCipher{key: sha256.Sum256([]byte(secret))}
}

// Encrypt seals plaintext under a random nonce and returns
// base64(nonce || box).
func (c *SecretBoxCipher) Encrypt(_ context.Context, plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &c.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *SecretBoxCipher) Decrypt(_ context.Context, ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	out, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &c.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(out), nil
}
