// Package cryptoutil holds the primitives the escrow protocol is built on:
// random key/salt/token generation, PBKDF2 password key derivation, and
// AES-256-GCM authenticated encryption with an explicit envelope format.
// All functions are stateless.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	KeyLength   = 32 // AES-256
	SaltLength  = 32
	NonceLength = 12 // standard GCM nonce
	TagLength   = 16

	// PBKDF2-SHA512. Iteration count matches the parameters clients derive
	// with; changing it invalidates every stored wrapped key.
	KDFIterations = 100000
	KDFAlgorithm  = "sha512"
)

var (
	ErrDecryptFailed   = errors.New("decryption failed: ciphertext or auth tag invalid")
	ErrInvalidEnvelope = errors.New("invalid encrypted envelope")
	ErrInvalidKeySize  = errors.New("key must be 32 bytes")
)

// Envelope is the wire form of an authenticated ciphertext. Fields are
// base64 so the struct can live in a JSONB column or an API response
// without further encoding.
type Envelope struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	AuthTag    string `json:"auth_tag"`
}

// KDFParams describe how to re-derive the password key client-side.
type KDFParams struct {
	Iterations int    `json:"iterations"`
	Algorithm  string `json:"algorithm"`
}

func DefaultKDFParams() KDFParams {
	return KDFParams{Iterations: KDFIterations, Algorithm: KDFAlgorithm}
}

// GenerateKey returns a fresh random 256-bit key.
func GenerateKey() ([]byte, error) {
	return randomBytes(KeyLength)
}

// GenerateSalt returns a fresh random salt for password derivation.
func GenerateSalt() ([]byte, error) {
	return randomBytes(SaltLength)
}

// DeriveKey derives a 256-bit key from a password and salt using
// PBKDF2-SHA512 with the fixed iteration count.
func DeriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, KDFIterations, KeyLength, sha512.New)
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random nonce.
// The GCM tag is split out of the sealed output so the envelope carries
// ciphertext, nonce and tag as separate fields.
func Encrypt(plaintext, key []byte) (Envelope, error) {
	if len(key) != KeyLength {
		return Envelope{}, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return Envelope{}, fmt.Errorf("cipher init: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Envelope{}, fmt.Errorf("gcm init: %w", err)
	}

	nonce, err := randomBytes(NonceLength)
	if err != nil {
		return Envelope{}, err
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ciphertext := sealed[:len(sealed)-TagLength]
	tag := sealed[len(sealed)-TagLength:]

	return Envelope{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
	}, nil
}

// Decrypt opens an envelope. Any tampering with ciphertext, nonce or tag
// fails with ErrDecryptFailed; wrong plaintext is never returned silently.
func Decrypt(env Envelope, key []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeySize
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, ErrInvalidEnvelope
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil || len(nonce) != NonceLength {
		return nil, ErrInvalidEnvelope
	}
	tag, err := base64.StdEncoding.DecodeString(env.AuthTag)
	if err != nil || len(tag) != TagLength {
		return nil, ErrInvalidEnvelope
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// Marshal serializes an envelope for JSONB storage.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEnvelope deserializes a stored envelope, rejecting blobs that are
// missing any of the three fields.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, ErrInvalidEnvelope
	}
	if env.Ciphertext == "" || env.Nonce == "" || env.AuthTag == "" {
		return Envelope{}, ErrInvalidEnvelope
	}
	return env, nil
}

// NewToken returns an unguessable URL-safe token for verification and
// role-acceptance links.
func NewToken() (string, error) {
	b, err := randomBytes(32)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewRecoveryCode returns a human-readable backup code, e.g.
// "3F2A-9C01-...". Shown once at encryption setup.
func NewRecoveryCode() (string, error) {
	b, err := randomBytes(16)
	if err != nil {
		return "", err
	}
	hex := strings.ToUpper(fmt.Sprintf("%x", b))
	groups := make([]string, 0, len(hex)/4)
	for i := 0; i < len(hex); i += 4 {
		groups = append(groups, hex[i:i+4])
	}
	return strings.Join(groups, "-"), nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}
