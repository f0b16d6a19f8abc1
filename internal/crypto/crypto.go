package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	SaltSize       = 32        // Salt size in bytes, doubles as the challenge for hardware factors
	KeySize        = 32        // XChaCha20-Poly1305 key size
	NonceSize      = 24        // XChaCha20 nonce size
	TagSize        = 16        // Poly1305 authentication tag size
	DefaultTime    = 3         // Argon2id passes
	DefaultMemory  = 64 * 1024 // Argon2id memory in KiB
	DefaultThreads = 2         // Argon2id lanes
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrInvalidParams     = errors.New("invalid key derivation parameters")
)

// KDF handles key derivation from a composite key
type KDF struct {
	Salt    []byte
	Time    uint32
	Memory  uint32
	Threads uint8
}

// NewKDFWithCost creates a new KDF with a random salt and the given cost
func NewKDFWithCost(time, memory uint32, threads uint8) (*KDF, error) {
	salt, err := GenerateRandom(SaltSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	kdf := &KDF{
		Salt:    salt,
		Time:    time,
		Memory:  memory,
		Threads: threads,
	}
	if err := kdf.Validate(); err != nil {
		return nil, err
	}
	return kdf, nil
}

// Validate rejects parameters argon2 would panic on or that are too weak to be
// anything but a corrupted header
func (k *KDF) Validate() error {
	if len(k.Salt) < 16 || k.Time == 0 || k.Threads == 0 || k.Memory < 8*uint32(k.Threads) {
		return ErrInvalidParams
	}
	return nil
}

// DeriveKey derives an encryption key from a composite key using Argon2id
func (k *KDF) DeriveKey(secret []byte) []byte {
	return argon2.IDKey(secret, k.Salt, k.Time, k.Memory, k.Threads, KeySize)
}

// Encryptor provides authenticated encryption
type Encryptor struct {
	key []byte
}

// NewEncryptor creates a new encryptor with the given key
func NewEncryptor(key []byte) *Encryptor {
	return &Encryptor{
		key: key,
	}
}

// Encrypt encrypts plaintext using XChaCha20-Poly1305.
// Format: [nonce 24][ciphertext][tag 16]
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}

	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext produced by Encrypt
func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize+TagSize {
		return nil, ErrInvalidCiphertext
	}

	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}

	nonce := ciphertext[:NonceSize]
	plaintext, err := aead.Open(nil, nonce, ciphertext[NonceSize:], nil)
	if err != nil {
		return nil, ErrAuthFailed
	}

	return plaintext, nil
}

// Destroy clears the encryptor's key from memory
func (e *Encryptor) Destroy() {
	ClearBytes(e.key)
}

// ClearBytes securely clears a byte slice
func ClearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ConstantTimeCompare performs a constant-time comparison of two byte slices
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateRandom generates n random bytes
func GenerateRandom(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}
