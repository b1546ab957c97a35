// Package keyvault encrypts agent private keys at rest.
//
// The key for an agent is derived from agentId concatenated with a
// server-side salt, and each encryption uses AES-256-GCM with a fresh 16-byte
// IV. Ciphertext, IV and tag are stored as separate hex strings.
package keyvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
)

const (
	ivSize  = 16
	tagSize = 16
)

// ErrAuthenticationFailed is returned for every decryption failure. It never
// says which input was wrong.
var ErrAuthenticationFailed = apperr.New(apperr.KindAuthentication, apperr.CodeAuthenticationFailed, "authentication failed")

// Envelope is the stored form of an encrypted key.
type Envelope struct {
	Ciphertext string `json:"encryptedKey"`
	IV         string `json:"iv"`
	Tag        string `json:"tag"`
}

type Vault struct {
	kdf  KDF
	salt string
}

// New returns a vault. An empty salt is accepted so the process can start,
// but every Encrypt and Decrypt call then fails with MISSING_SECRET.
func New(salt string, kdf KDF) *Vault {
	if kdf == nil {
		kdf = DefaultScrypt
	}
	return &Vault{kdf: kdf, salt: salt}
}

func (v *Vault) aead(agentID string) (cipher.AEAD, error) {
	if v.salt == "" {
		return nil, apperr.New(apperr.KindInfrastructure, apperr.CodeMissingSecret, "SALT is not configured")
	}
	if agentID == "" {
		return nil, apperr.Input(apperr.CodeInvalidRequest, "agentId is required")
	}

	key, err := v.kdf.DeriveKey([]byte(agentID + v.salt))
	if err != nil {
		return nil, fmt.Errorf("derive key (%s): %w", v.kdf.Name(), err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	return cipher.NewGCMWithNonceSize(block, ivSize)
}

// Encrypt seals plaintextKey for agentID under a fresh random IV.
func (v *Vault) Encrypt(plaintextKey, agentID string) (Envelope, error) {
	gcm, err := v.aead(agentID)
	if err != nil {
		return Envelope{}, err
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, fmt.Errorf("rand iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintextKey), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return Envelope{
		Ciphertext: hex.EncodeToString(ct),
		IV:         hex.EncodeToString(iv),
		Tag:        hex.EncodeToString(tag),
	}, nil
}

// Decrypt opens env for agentID. Any malformed or tampered input, and any
// wrong agentID, yields ErrAuthenticationFailed.
func (v *Vault) Decrypt(env Envelope, agentID string) (string, error) {
	gcm, err := v.aead(agentID)
	if err != nil {
		return "", err
	}

	ct, err := hex.DecodeString(env.Ciphertext)
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	iv, err := hex.DecodeString(env.IV)
	if err != nil || len(iv) != ivSize {
		return "", ErrAuthenticationFailed
	}
	tag, err := hex.DecodeString(env.Tag)
	if err != nil || len(tag) != tagSize {
		return "", ErrAuthenticationFailed
	}

	plain, err := gcm.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	return string(plain), nil
}
