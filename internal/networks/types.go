package networks

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
)

// Contract is the logical name of a contract in a chain's registry.
type Contract string

const (
	DAOFactory    Contract = "daoFactory"
	DAOManagement Contract = "daoManagement"
)

// CredentialPlaceholder is replaced by the RPC provider key when a profile is resolved.
const CredentialPlaceholder = "{credential}"

// NetworkConfig is one entry of the configured chain table.
type NetworkConfig struct {
	Name               string            `mapstructure:"name" yaml:"name"`
	ChainID            uint64            `mapstructure:"chainId" yaml:"chainId"`
	RPCURL             string            `mapstructure:"rpcUrl" yaml:"rpcUrl"`
	RequiresCredential bool              `mapstructure:"requiresCredential" yaml:"requiresCredential"`
	RequestsPerSecond  int               `mapstructure:"requestsPerSecond" yaml:"requestsPerSecond"`
	Explorer           string            `mapstructure:"explorer" yaml:"explorer"`
	Contracts          map[string]string `mapstructure:"contracts" yaml:"contracts"`
}

// ContractRegistry maps logical contract names to their deployment on one chain.
type ContractRegistry map[Contract]common.Address

// NetworkProfile is the resolved view of a supported chain.
type NetworkProfile struct {
	ChainID           uint64
	Name              string
	RPCEndpoint       string
	Registry          ContractRegistry
	RequestsPerSecond int
	Explorer          string
}

// Address returns the deployed address of name on this chain.
func (p NetworkProfile) Address(name Contract) (common.Address, error) {
	addr, ok := p.Registry[name]
	if !ok || addr == (common.Address{}) {
		return common.Address{}, apperr.Input(apperr.CodeContractNotDeployed,
			"%s is not deployed on %s (chain %d)", name, p.Name, p.ChainID)
	}
	return addr, nil
}

func normalizeContractName(raw string) (Contract, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "daofactory", "dao_factory":
		return DAOFactory, true
	case "daomanagement", "dao_management":
		return DAOManagement, true
	}
	return "", false
}
