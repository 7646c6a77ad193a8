// Package credential seals secrets such as provider API keys before they are
// written to the config file. Sealed values use AES-256-GCM with a key bound
// to the current machine and user, so a copied config file does not leak
// them.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// SealedPrefix marks a sealed value.
const SealedPrefix = "enc:v1:"

var (
	ErrOpenFailed    = errors.New("failed to open sealed value")
	ErrInvalidFormat = errors.New("invalid sealed value")
)

// Sealer seals and opens secrets with a machine-derived key.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer derives the machine key and prepares the cipher.
func NewSealer() (*Sealer, error) {
	block, err := aes.NewCipher(machineKey())
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal returns the storable form of plaintext. Empty and already sealed
// values are returned unchanged.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" || IsSealed(plaintext) {
		return plaintext, nil
	}
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open returns the plaintext of a sealed value. Unsealed values pass
// through, so secrets supplied by environment variables keep working.
func (s *Sealer) Open(stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	n := s.gcm.NonceSize()
	if len(raw) < n {
		return "", ErrInvalidFormat
	}
	plain, err := s.gcm.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", ErrOpenFailed
	}
	return string(plain), nil
}

// IsSealed reports whether value carries the sealed prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// Mask hides all but the first and last four characters of secret.
func Mask(secret string) string {
	if IsSealed(secret) {
		return SealedPrefix + "****"
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

// machineKey hashes host and user identifiers into a 32-byte key.
func machineKey() []byte {
	var b strings.Builder
	hostname, _ := os.Hostname()
	b.WriteString(hostname)
	home, _ := os.UserHomeDir()
	b.WriteString(home)
	b.WriteString(runtime.GOOS)
	b.WriteString(runtime.GOARCH)
	b.WriteString("recall-config-secret-v1")
	if uid := os.Getuid(); uid != -1 {
		fmt.Fprintf(&b, "uid:%d", uid)
	}
	b.WriteString(os.Getenv("USER"))

	sum := sha256.Sum256([]byte(b.String()))
	return sum[:]
}
