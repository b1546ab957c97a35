package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSignatures(t *testing.T) {
	ev, ok := DAOFactoryABI.Events[EventDAOCreated]
	require.True(t, ok)
	assert.Equal(t, crypto.Keccak256Hash([]byte("DAOCreated(address,address,address)")), ev.ID)

	ev, ok = DAOManagementABI.Events[EventProposalCreated]
	require.True(t, ok)
	assert.Equal(t, crypto.Keccak256Hash([]byte("proposalCreated(address,address,uint256)")), ev.ID)
}

func TestCreateDAOPacksTupleStructs(t *testing.T) {
	data, err := DAOFactoryABI.Pack("createDAO",
		DaoSettings{Name: "dao", Data: crypto.Keccak256Hash([]byte("x"))},
		common.Address{},
		GovTokenParams{Name: "Gov", Symbol: "GOV", CouncilAddress: common.HexToAddress("0x01")},
		GovernanceSettings{MinimumParticipationPercentage: 10, SupportThresholdPercentage: 50, MinimumDurationForProposal: 3600},
		[]DaoMember{{MemberAddress: common.HexToAddress("0x02"), Deposit: big.NewInt(1)}},
		ProposalCreationSettings{IsTokenBasedProposal: true, MinimumRequirement: big.NewInt(1)},
		false,
	)
	require.NoError(t, err)
	assert.Equal(t, DAOFactoryABI.Methods["createDAO"].ID, data[:4])
}

func TestVoteSelector(t *testing.T) {
	assert.Equal(t, crypto.Keccak256([]byte("vote(uint8)"))[:4], ProposalABI.Methods["vote"].ID)
	assert.Equal(t, crypto.Keccak256([]byte("addDAOMembers((address,uint256)[])"))[:4], DAOABI.Methods["addDAOMembers"].ID)
}

func TestAllIncludesEveryABI(t *testing.T) {
	assert.Len(t, All(), 6)
	for _, a := range All() {
		assert.NotEmpty(t, a.Methods)
	}
}

func TestHashDataIsKeccakOfText(t *testing.T) {
	got := HashData("community treasury")
	assert.Equal(t, crypto.Keccak256([]byte("community treasury")), got[:])
}
