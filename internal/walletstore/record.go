package walletstore

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/quantumauth-io/dao-agent/internal/keyvault"
)

var (
	// ErrRecordExists is returned by a RecordStore when an insert would
	// violate uniqueness on agentId or walletAddress.
	ErrRecordExists = errors.New("wallet record already exists")
	// ErrNotFound is returned by a RecordStore lookup that matched nothing.
	ErrNotFound = errors.New("wallet record not found")
)

// WalletRecord is the durable form of an agent wallet. The plaintext key is
// never part of it.
type WalletRecord struct {
	AgentID       string `json:"agentId" badgerhold:"key"`
	WalletAddress string `json:"walletAddress" badgerhold:"index"`
	EncryptedKey  string `json:"encryptedKey"`
	IV            string `json:"iv"`
	Tag           string `json:"tag"`
}

func (r WalletRecord) Envelope() keyvault.Envelope {
	return keyvault.Envelope{Ciphertext: r.EncryptedKey, IV: r.IV, Tag: r.Tag}
}

// Complete reports whether every field needed for decryption is present.
func (r WalletRecord) Complete() bool {
	for _, f := range []string{r.AgentID, r.EncryptedKey, r.IV, r.Tag} {
		if strings.TrimSpace(f) == "" {
			return false
		}
	}
	return true
}

// RecordStore is the persistence boundary. Implementations must enforce
// uniqueness of AgentID atomically in Insert.
type RecordStore interface {
	Insert(ctx context.Context, rec WalletRecord) error
	FindByAgent(ctx context.Context, agentID string) (WalletRecord, error)
	FindByAddress(ctx context.Context, address string) (WalletRecord, error)
}
