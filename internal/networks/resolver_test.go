package networks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
)

func testTable() []NetworkConfig {
	return []NetworkConfig{
		{
			Name:               "sepolia",
			ChainID:            11155111,
			RPCURL:             "https://sepolia.infura.io/v3/" + CredentialPlaceholder,
			RequiresCredential: true,
			Contracts: map[string]string{
				"daoManagement": "0xd7f0e82c30c832548130b847f3c6709492593195",
				"daoFactory":    "0x3CB6AfA66Da96138C367f99B8033959F06ce28C1",
			},
		},
		{
			Name:    "hardhat",
			ChainID: 31337,
			RPCURL:  "http://127.0.0.1:8545",
			Contracts: map[string]string{
				"daoManagement": "0x5FbDB2315678afecb367f032d93F642f64180aa3",
			},
		},
	}
}

func TestResolveUnknownChainFails(t *testing.T) {
	r, err := NewResolver(testTable(), "key")
	require.NoError(t, err)

	_, err = r.Resolve(999999)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUnsupportedChain, apperr.CodeOf(err))
}

func TestResolveInjectsCredential(t *testing.T) {
	r, err := NewResolver(testTable(), "abc123")
	require.NoError(t, err)

	p, err := r.Resolve(11155111)
	require.NoError(t, err)
	assert.Equal(t, "https://sepolia.infura.io/v3/abc123", p.RPCEndpoint)

	addr, err := p.Address(DAOManagement)
	require.NoError(t, err)
	assert.Equal(t, "0xD7f0E82C30C832548130B847f3c6709492593195", addr.Hex())
}

func TestResolveMissingCredential(t *testing.T) {
	r, err := NewResolver(testTable(), "")
	require.NoError(t, err)

	_, err = r.Resolve(11155111)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeMissingProviderCredential, apperr.CodeOf(err))

	// chains without a credential requirement still resolve
	p, err := r.Resolve(31337)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8545", p.RPCEndpoint)
}

func TestProfileMissingContract(t *testing.T) {
	r, err := NewResolver(testTable(), "")
	require.NoError(t, err)

	p, err := r.Resolve(31337)
	require.NoError(t, err)

	_, err = p.Address(DAOFactory)
	assert.Equal(t, apperr.CodeContractNotDeployed, apperr.CodeOf(err))
}

func TestResolvedRegistryIsACopy(t *testing.T) {
	r, err := NewResolver(testTable(), "")
	require.NoError(t, err)

	p, err := r.Resolve(31337)
	require.NoError(t, err)
	delete(p.Registry, DAOManagement)

	again, err := r.Resolve(31337)
	require.NoError(t, err)
	_, err = again.Address(DAOManagement)
	assert.NoError(t, err)
}

func TestNewResolverRejectsBadTable(t *testing.T) {
	_, err := NewResolver(nil, "")
	assert.Error(t, err)

	bad := testTable()
	bad[1].Contracts["daoFactory"] = "not-an-address"
	_, err = NewResolver(bad, "")
	assert.Error(t, err)

	dup := append(testTable(), NetworkConfig{Name: "again", ChainID: 31337, RPCURL: "http://x"})
	_, err = NewResolver(dup, "")
	assert.Error(t, err)
}
