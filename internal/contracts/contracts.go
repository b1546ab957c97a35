// Package contracts embeds the ABIs of the external DAO contracts and the Go
// shapes of their tuple parameters.
package contracts

import (
	"bytes"
	"embed"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

//go:embed abi/*.json
var abiFS embed.FS

var (
	DAOFactoryABI      = mustLoad("DAOFactory.json")
	DAOManagementABI   = mustLoad("DAOManagement.json")
	DAOABI             = mustLoad("DAO.json")
	ProposalABI        = mustLoad("Proposal.json")
	GovernanceTokenABI = mustLoad("GovernanceToken.json")
	UtilityTokenABI    = mustLoad("UtilityToken.json")
)

// Event names the service decodes from receipts.
const (
	EventDAOCreated      = "DAOCreated"
	EventProposalCreated = "proposalCreated"
)

func mustLoad(name string) abi.ABI {
	raw, err := abiFS.ReadFile("abi/" + name)
	if err != nil {
		panic(fmt.Sprintf("contracts: read %s: %v", name, err))
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("contracts: parse %s: %v", name, err))
	}
	return parsed
}

// All returns every known ABI, used to decode custom revert errors when the
// reverting contract is not known up front.
func All() []*abi.ABI {
	return []*abi.ABI{
		&DAOFactoryABI,
		&DAOManagementABI,
		&DAOABI,
		&ProposalABI,
		&GovernanceTokenABI,
		&UtilityTokenABI,
	}
}

// HashData is the bytes32 stored as DaoSettings.Data: keccak256 of the
// UTF-8 text.
func HashData(text string) [32]byte {
	return crypto.Keccak256Hash([]byte(text))
}

type DaoSettings struct {
	Name string
	Data [32]byte
}

type GovTokenParams struct {
	Name           string
	Symbol         string
	CouncilAddress common.Address
}

type GovernanceSettings struct {
	MinimumParticipationPercentage uint8
	SupportThresholdPercentage     uint8
	MinimumDurationForProposal     uint32
	EarlyExecution                 bool
	CanVoteChange                  bool
}

type DaoMember struct {
	MemberAddress common.Address
	Deposit       *big.Int
}

type ProposalCreationSettings struct {
	IsTokenBasedProposal bool
	MinimumRequirement   *big.Int
}

// Action is a call a proposal performs when executed.
type Action struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

type ProposalEntry struct {
	ProposalID              *big.Int `abi:"proposalId"`
	DeployedProposalAddress common.Address
}

type GovernanceTokenActions struct {
	CanMint        bool
	CanBurn        bool
	CanPause       bool
	CanStake       bool
	CanTransfer    bool
	CanChangeOwner bool
}

type UtilityTokenActions struct {
	CanMint        bool
	CanBurn        bool
	CanPause       bool
	CanBlacklist   bool
	CanChangeOwner bool
	CanTxTax       bool
	CanBuyBack     bool
	CanStake       bool
}
