package networks

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
)

// Resolver maps chain ids to network profiles. It is built once and never
// mutated afterwards, so it is safe for concurrent use.
type Resolver struct {
	byChainID  map[uint64]entry
	credential string
}

type entry struct {
	profile            NetworkProfile
	requiresCredential bool
}

// NewResolver validates the chain table. credential is the RPC provider key
// substituted into endpoints that require it; it may be empty, in which case
// only those chains fail at resolve time.
func NewResolver(cfgs []NetworkConfig, credential string) (*Resolver, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("networks: empty chain table")
	}

	r := &Resolver{
		byChainID:  make(map[uint64]entry, len(cfgs)),
		credential: strings.TrimSpace(credential),
	}

	for _, c := range cfgs {
		if c.ChainID == 0 {
			return nil, fmt.Errorf("networks: %q has chainId 0", c.Name)
		}
		if _, dup := r.byChainID[c.ChainID]; dup {
			return nil, fmt.Errorf("networks: duplicate chainId %d", c.ChainID)
		}
		if strings.TrimSpace(c.RPCURL) == "" {
			return nil, fmt.Errorf("networks: %q has no rpcUrl", c.Name)
		}

		registry := make(ContractRegistry, len(c.Contracts))
		for rawName, rawAddr := range c.Contracts {
			name, ok := normalizeContractName(rawName)
			if !ok {
				return nil, fmt.Errorf("networks: %q unknown contract %q", c.Name, rawName)
			}
			a := strings.TrimSpace(rawAddr)
			if a == "" {
				continue
			}
			if !common.IsHexAddress(a) {
				return nil, fmt.Errorf("networks: %q invalid %s address %q", c.Name, rawName, rawAddr)
			}
			registry[name] = common.HexToAddress(a)
		}

		r.byChainID[c.ChainID] = entry{
			profile: NetworkProfile{
				ChainID:           c.ChainID,
				Name:              c.Name,
				RPCEndpoint:       c.RPCURL,
				Registry:          registry,
				RequestsPerSecond: c.RequestsPerSecond,
				Explorer:          explorerFor(c),
			},
			requiresCredential: c.RequiresCredential || strings.Contains(c.RPCURL, CredentialPlaceholder),
		}
	}

	return r, nil
}

// Resolve returns the profile for chainID. Unknown ids never fall back to a
// default network.
func (r *Resolver) Resolve(chainID uint64) (NetworkProfile, error) {
	e, ok := r.byChainID[chainID]
	if !ok {
		return NetworkProfile{}, apperr.Input(apperr.CodeUnsupportedChain, "unsupported chain id %d", chainID)
	}

	p := e.profile
	if e.requiresCredential {
		if r.credential == "" {
			return NetworkProfile{}, apperr.Newf(apperr.KindInfrastructure, apperr.CodeMissingProviderCredential,
				"chain %d (%s) requires an rpc provider credential", chainID, p.Name)
		}
		p.RPCEndpoint = strings.ReplaceAll(p.RPCEndpoint, CredentialPlaceholder, r.credential)
	}

	registry := make(ContractRegistry, len(p.Registry))
	for k, v := range p.Registry {
		registry[k] = v
	}
	p.Registry = registry
	return p, nil
}

// Supported lists the configured chains ordered by chain id. Endpoints are
// returned unresolved.
func (r *Resolver) Supported() []NetworkProfile {
	out := make([]NetworkProfile, 0, len(r.byChainID))
	for _, e := range r.byChainID {
		out = append(out, e.profile)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}
