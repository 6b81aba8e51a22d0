// Package encrypt provides the symmetric authenticated encryption used for
// message bodies. Every conversation and group owns one 32-byte key; each
// call to Encrypt draws a fresh random nonce, so a key never sees a repeated
// nonce. Tokens are base64(nonce ‖ ciphertext ‖ tag).
package encrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	KeyLength   = 32
	NonceLength = 16
	TagLength   = 16
)

// additionalData binds ciphertexts to the messaging domain so a token can
// never be replayed in an unrelated context.
var additionalData = []byte("message-authentication")

// ErrDecryptionFailed is returned when the authentication tag does not
// verify: the data was tampered with or the wrong key was supplied. Decrypt
// never returns garbage plaintext.
var ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")

// GenerateKey produces a fresh base64-encoded 32-byte key.
func GenerateKey() (string, error) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func newAEAD(encodedKey string) (cipher.AEAD, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != KeyLength {
		return nil, fmt.Errorf("invalid key length %d, want %d", len(key), KeyLength)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, NonceLength)
}

// Encrypt seals plaintext under the conversation key and returns one opaque
// base64 token.
func Encrypt(plaintext, encodedKey string) (string, error) {
	aead, err := newAEAD(encodedKey)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), additionalData)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt. A token shorter than
// nonce+tag, or one whose tag does not verify, fails with
// ErrDecryptionFailed.
func Decrypt(token, encodedKey string) (string, error) {
	aead, err := newAEAD(encodedKey)
	if err != nil {
		return "", err
	}
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if len(data) < NonceLength+TagLength {
		return "", ErrDecryptionFailed
	}
	nonce, ciphertext := data[:NonceLength], data[NonceLength:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// GenerateSecureRandom returns n random bytes hex-encoded.
func GenerateSecureRandom(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashString returns the hex sha256 digest of text.
func HashString(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
