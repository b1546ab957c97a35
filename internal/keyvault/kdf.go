package keyvault

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/scrypt"
)

const keyLen = 32

// KDF turns the per-agent secret into a 256-bit key.
type KDF interface {
	Name() string
	DeriveKey(secret []byte) ([]byte, error)
}

// Scrypt parameters match the records written by the first generation of the
// service; changing any of them makes existing records undecryptable.
type Scrypt struct {
	N, R, P int
	Salt    []byte
}

var DefaultScrypt = Scrypt{
	N:    16384,
	R:    8,
	P:    1,
	Salt: []byte("unique_salt"),
}

func (s Scrypt) Name() string { return "scrypt" }

func (s Scrypt) DeriveKey(secret []byte) ([]byte, error) {
	return scrypt.Key(secret, s.Salt, s.N, s.R, s.P, keyLen)
}

// Argon2id is available for deployments that start without legacy records.
type Argon2id struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	Salt    []byte
}

var DefaultArgon2id = Argon2id{
	Time:    2,
	Memory:  64 * 1024,
	Threads: 1,
	Salt:    []byte("dao-agent:keyvault:v1"),
}

func (a Argon2id) Name() string { return "argon2id" }

func (a Argon2id) DeriveKey(secret []byte) ([]byte, error) {
	return argon2.IDKey(secret, a.Salt, a.Time, a.Memory, a.Threads, keyLen), nil
}

// KDFByName returns the default parameters for a named KDF.
func KDFByName(name string) (KDF, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "scrypt":
		return DefaultScrypt, nil
	case "argon2id", "argon2":
		return DefaultArgon2id, nil
	default:
		return nil, fmt.Errorf("unknown kdf %q (allowed: scrypt, argon2id)", name)
	}
}
