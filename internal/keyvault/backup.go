package keyvault

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrBadPassphraseOrCorrupt is returned for every backup that fails to open.
var ErrBadPassphraseOrCorrupt = errors.New("invalid passphrase or corrupted backup")

const backupVersion = 1

// Backup is the plaintext content of an exported agent key.
type Backup struct {
	AgentID       string `json:"agentId"`
	WalletAddress string `json:"walletAddress"`
	PrivateKey    string `json:"privateKey"`
}

// backupFile is what lands on disk. Only the envelope is readable without
// the passphrase.
type backupFile struct {
	Version      int    `json:"version"`
	ArgonTime    uint32 `json:"argon_time"`
	ArgonMemory  uint32 `json:"argon_memory_kib"`
	ArgonThreads uint8  `json:"argon_threads"`

	AgentID  string `json:"agent_id"`
	SaltB64  string `json:"salt_b64"`
	NonceB64 string `json:"nonce_b64"`
	CTB64    string `json:"ct_b64"`
}

// BackupKDF controls the passphrase stretching for new backups. Existing
// files carry their own parameters.
type BackupKDF struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

var DefaultBackupKDF = BackupKDF{Time: 2, Memory: 64 * 1024, Threads: 1}

// WriteBackup encrypts b under passphrase with Argon2id and
// XChaCha20-Poly1305 and writes it atomically with 0600 permissions. The
// agent id is bound as associated data.
func WriteBackup(path string, b Backup, passphrase []byte, kdf BackupKDF) error {
	if len(passphrase) == 0 {
		return errors.New("passphrase cannot be empty")
	}
	if b.AgentID == "" {
		return errors.New("backup has no agent id")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrapf(err, "mkdir %s", filepath.Dir(path))
	}

	plain, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "marshal backup")
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return errors.Wrap(err, "rand salt")
	}
	aead, err := chacha20poly1305.NewX(argon2.IDKey(passphrase, salt, kdf.Time, kdf.Memory, kdf.Threads, keyLen))
	if err != nil {
		return errors.Wrap(err, "aead")
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return errors.Wrap(err, "rand nonce")
	}

	out := backupFile{
		Version:      backupVersion,
		ArgonTime:    kdf.Time,
		ArgonMemory:  kdf.Memory,
		ArgonThreads: kdf.Threads,
		AgentID:      b.AgentID,
		SaltB64:      base64.StdEncoding.EncodeToString(salt),
		NonceB64:     base64.StdEncoding.EncodeToString(nonce),
		CTB64:        base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plain, []byte(b.AgentID))),
	}
	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal backup file")
	}
	return atomicWriteFile(path, raw, 0o600)
}

// ReadBackup opens a file written by WriteBackup. A wrong passphrase, an
// edited envelope and a truncated ciphertext all yield
// ErrBadPassphraseOrCorrupt.
func ReadBackup(path string, passphrase []byte) (Backup, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Backup{}, errors.Wrap(err, "read backup")
	}

	var f backupFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return Backup{}, ErrBadPassphraseOrCorrupt
	}
	if f.Version != backupVersion {
		return Backup{}, errors.Newf("unsupported backup version: %d", f.Version)
	}

	salt, err1 := base64.StdEncoding.DecodeString(f.SaltB64)
	nonce, err2 := base64.StdEncoding.DecodeString(f.NonceB64)
	ct, err3 := base64.StdEncoding.DecodeString(f.CTB64)
	if err1 != nil || err2 != nil || err3 != nil || len(nonce) != chacha20poly1305.NonceSizeX {
		return Backup{}, ErrBadPassphraseOrCorrupt
	}

	aead, err := chacha20poly1305.NewX(argon2.IDKey(passphrase, salt, f.ArgonTime, f.ArgonMemory, f.ArgonThreads, keyLen))
	if err != nil {
		return Backup{}, errors.Wrap(err, "aead")
	}
	plain, err := aead.Open(nil, nonce, ct, []byte(f.AgentID))
	if err != nil {
		return Backup{}, ErrBadPassphraseOrCorrupt
	}

	var b Backup
	if err := json.Unmarshal(plain, &b); err != nil || b.AgentID != f.AgentID {
		return Backup{}, ErrBadPassphraseOrCorrupt
	}
	return b, nil
}

func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	_ = os.Remove(tmp)

	if err := os.WriteFile(tmp, data, perm); err != nil {
		return errors.Wrap(err, "write tmp")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "rename")
	}
	return nil
}
