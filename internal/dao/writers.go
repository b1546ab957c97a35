package dao

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
	"github.com/quantumauth-io/dao-agent/internal/chain"
	"github.com/quantumauth-io/dao-agent/internal/contracts"
	"github.com/quantumauth-io/dao-agent/internal/networks"
)

type DeployDAOResult struct {
	DeployedDAOContractAddress string `json:"deployedDAOContractAddress"`
	DeployedGTContractAddress  string `json:"deployedGTContractAddress"`
	TransactionHash            string `json:"transactionHash"`
}

// DeployDAO creates a DAO through the chain's factory with the service key.
func (s *Service) DeployDAO(ctx context.Context, req DeployDAORequest) (DeployDAOResult, error) {
	p, err := req.parse()
	if err != nil {
		return DeployDAOResult{}, err
	}
	n, err := s.connect(ctx, p.chainID)
	if err != nil {
		return DeployDAOResult{}, err
	}
	factory, err := n.profile.Address(networks.DAOFactory)
	if err != nil {
		return DeployDAOResult{}, err
	}
	sess, err := s.serviceSession(n)
	if err != nil {
		return DeployDAOResult{}, err
	}

	out, err := sess.Transact(ctx, &contracts.DAOFactoryABI, factory, "createDAO", p.args...)
	if err != nil {
		return DeployDAOResult{}, err
	}
	hash := out.TransactionHash.Hex()

	dao, err := chain.EventAddress(out.Receipt, &contracts.DAOFactoryABI, contracts.EventDAOCreated, "dao", nil)
	if err != nil {
		return DeployDAOResult{}, err
	}

	govToken := p.govToken
	if govToken == (common.Address{}) {
		govToken, err = chain.Read[common.Address](ctx, sess.AtBlock(out.BlockNumber), &contracts.DAOABI, dao, "governanceToken")
		if err != nil {
			return DeployDAOResult{}, apperr.From(err).WithTx(hash)
		}
	}

	log.Info("dao deployed", "chainId", p.chainID, "dao", dao.Hex(), "governanceToken", govToken.Hex(), "creator", p.creator.Hex(), "tx", hash,
		"explorer", n.profile.TxURL(hash), "daoExplorer", n.profile.AddressURL(dao.Hex()))
	return DeployDAOResult{
		DeployedDAOContractAddress: dao.Hex(),
		DeployedGTContractAddress:  govToken.Hex(),
		TransactionHash:            hash,
	}, nil
}

type DeployGovernanceTokenResult struct {
	DeployedGTContractAddress string `json:"deployedGTContractAddress"`
	TransactionHash           string `json:"transactionHash"`
}

// DeployGovernanceToken creates a standalone governance token through the
// DAO management contract.
func (s *Service) DeployGovernanceToken(ctx context.Context, req DeployGovernanceTokenRequest) (DeployGovernanceTokenResult, error) {
	params, err := req.parse()
	if err != nil {
		return DeployGovernanceTokenResult{}, err
	}
	n, err := s.connect(ctx, uint64(req.ChainID))
	if err != nil {
		return DeployGovernanceTokenResult{}, err
	}
	mgmt, err := n.profile.Address(networks.DAOManagement)
	if err != nil {
		return DeployGovernanceTokenResult{}, err
	}
	sess, err := s.serviceSession(n)
	if err != nil {
		return DeployGovernanceTokenResult{}, err
	}

	out, err := sess.Transact(ctx, &contracts.DAOManagementABI, mgmt, "createGovernanceToken", params)
	if err != nil {
		return DeployGovernanceTokenResult{}, err
	}

	// the new token's own logs are the only ones not emitted by mgmt
	token, err := chain.FirstEmitterExcept(out.Receipt, mgmt)
	if err != nil {
		return DeployGovernanceTokenResult{}, err
	}

	log.Info("governance token deployed", "chainId", req.ChainID, "token", token.Hex(), "tx", out.TransactionHash.Hex(),
		"explorer", n.profile.TxURL(out.TransactionHash.Hex()), "tokenExplorer", n.profile.AddressURL(token.Hex()))
	return DeployGovernanceTokenResult{
		DeployedGTContractAddress: token.Hex(),
		TransactionHash:           out.TransactionHash.Hex(),
	}, nil
}

type CreateProposalResult struct {
	ProposalAddress string `json:"proposalAddress"`
	TransactionHash string `json:"transactionHash"`
}

// CreateProposal submits a proposal signed by the sender's agent wallet.
// Timing rules are left to the contract.
func (s *Service) CreateProposal(ctx context.Context, req CreateProposalRequest) (CreateProposalResult, error) {
	p, err := req.parse()
	if err != nil {
		return CreateProposalResult{}, err
	}
	n, err := s.connect(ctx, p.chainID)
	if err != nil {
		return CreateProposalResult{}, err
	}
	mgmt, err := n.profile.Address(networks.DAOManagement)
	if err != nil {
		return CreateProposalResult{}, err
	}
	sess, err := s.agentSession(ctx, n, p.sender)
	if err != nil {
		return CreateProposalResult{}, err
	}

	out, err := sess.Transact(ctx, &contracts.DAOManagementABI, mgmt, "createProposal", p.args...)
	if err != nil {
		return CreateProposalResult{}, err
	}

	proposal, err := chain.EventAddress(out.Receipt, &contracts.DAOManagementABI, contracts.EventProposalCreated, "proposal", nil)
	if err != nil {
		return CreateProposalResult{}, err
	}

	log.Info("proposal created", "chainId", p.chainID, "dao", p.dao.Hex(), "proposal", proposal.Hex(), "tx", out.TransactionHash.Hex(),
		"proposalExplorer", n.profile.AddressURL(proposal.Hex()))
	return CreateProposalResult{ProposalAddress: proposal.Hex(), TransactionHash: out.TransactionHash.Hex()}, nil
}

// CastVote votes with the sender's agent wallet. It refuses, without
// submitting, when the signer already voted, the proposal was executed or
// its end time has passed.
func (s *Service) CastVote(ctx context.Context, req CastVoteRequest) (TxResult, error) {
	p, err := req.parse()
	if err != nil {
		return TxResult{}, err
	}
	n, err := s.connect(ctx, p.chainID)
	if err != nil {
		return TxResult{}, err
	}
	sess, err := s.agentSession(ctx, n, p.sender)
	if err != nil {
		return TxResult{}, err
	}

	if err := s.checkVotable(ctx, sess.Reader, p.proposal, sess.From()); err != nil {
		return TxResult{}, err
	}

	out, err := sess.Transact(ctx, &contracts.ProposalABI, p.proposal, "vote", uint8(req.VoteType))
	if err != nil {
		return TxResult{}, err
	}
	return txResult(out), nil
}

func (s *Service) checkVotable(ctx context.Context, r *chain.Reader, proposal, voter common.Address) error {
	voted, err := chain.Read[bool](ctx, r, &contracts.ProposalABI, proposal, "hasVoted", voter)
	if err != nil {
		return err
	}
	if voted {
		return apperr.Precondition(apperr.CodeAlreadyVoted, "%s has already voted on this proposal", voter.Hex())
	}

	executed, err := chain.Read[bool](ctx, r, &contracts.ProposalABI, proposal, "executed")
	if err != nil {
		return err
	}
	if executed {
		return apperr.Precondition(apperr.CodeAlreadyExecuted, "proposal has already been executed")
	}

	end, err := chain.Read[*big.Int](ctx, r, &contracts.ProposalABI, proposal, "endTime")
	if err != nil {
		return err
	}
	if big.NewInt(s.now().Unix()).Cmp(end) > 0 {
		return apperr.Precondition(apperr.CodeProposalExpired, "proposal ended at %s", end.String())
	}
	return nil
}

// ExecuteProposal executes an approved proposal with the sender's agent
// wallet, which must hold the configured minimum voting power.
func (s *Service) ExecuteProposal(ctx context.Context, req ExecuteProposalRequest) (TxResult, error) {
	p, err := parseProposalCall(req.ChainID, req.ProposalAddress, req.Sender)
	if err != nil {
		return TxResult{}, err
	}
	n, err := s.connect(ctx, p.chainID)
	if err != nil {
		return TxResult{}, err
	}
	sess, err := s.agentSession(ctx, n, p.sender)
	if err != nil {
		return TxResult{}, err
	}

	approved, err := chain.Read[bool](ctx, sess.Reader, &contracts.ProposalABI, p.proposal, "approved")
	if err != nil {
		return TxResult{}, err
	}
	if !approved {
		return TxResult{}, apperr.Precondition(apperr.CodeNotApproved, "proposal is not approved for execution")
	}

	executed, err := chain.Read[bool](ctx, sess.Reader, &contracts.ProposalABI, p.proposal, "executed")
	if err != nil {
		return TxResult{}, err
	}
	if executed {
		return TxResult{}, apperr.Precondition(apperr.CodeAlreadyExecuted, "proposal has already been executed")
	}

	power, err := chain.Read[*big.Int](ctx, sess.Reader, &contracts.ProposalABI, p.proposal, "_getVotingUnits", sess.From())
	if err != nil {
		return TxResult{}, err
	}
	if power.Cmp(s.minPower) < 0 {
		return TxResult{}, apperr.Precondition(apperr.CodeInsufficientVotingPower,
			"%s has voting power %s, at least %s is required", sess.From().Hex(), power.String(), s.minPower.String())
	}

	out, err := sess.Transact(ctx, &contracts.ProposalABI, p.proposal, "executeProposal")
	if err != nil {
		return TxResult{}, err
	}
	log.Info("proposal executed", "chainId", p.chainID, "proposal", p.proposal.Hex(), "tx", out.TransactionHash.Hex())
	return txResult(out), nil
}

// DelegateVotes delegates the sender's governance token votes.
func (s *Service) DelegateVotes(ctx context.Context, req DelegateVotesRequest) (TxResult, error) {
	d, err := req.parse()
	if err != nil {
		return TxResult{}, err
	}
	return s.delegate(ctx, d)
}

// ClaimVotes delegates the sender's governance token votes to itself.
func (s *Service) ClaimVotes(ctx context.Context, req ClaimVotesRequest) (TxResult, error) {
	d, err := req.parse()
	if err != nil {
		return TxResult{}, err
	}
	return s.delegate(ctx, d)
}

func (s *Service) delegate(ctx context.Context, d delegation) (TxResult, error) {
	n, err := s.connect(ctx, d.chainID)
	if err != nil {
		return TxResult{}, err
	}
	sess, err := s.agentSession(ctx, n, d.sender)
	if err != nil {
		return TxResult{}, err
	}

	token, err := chain.Read[common.Address](ctx, sess.Reader, &contracts.DAOABI, d.dao, "governanceToken")
	if err != nil {
		return TxResult{}, err
	}
	if token == (common.Address{}) {
		return TxResult{}, apperr.Precondition(apperr.CodeContractNotDeployed, "dao %s has no governance token", d.dao.Hex())
	}

	out, err := sess.Transact(ctx, &contracts.GovernanceTokenABI, token, "delegate", d.delegate)
	if err != nil {
		return TxResult{}, err
	}
	log.Info("votes delegated", "chainId", d.chainID, "token", token.Hex(), "from", d.sender.Hex(), "to", d.delegate.Hex(), "tx", out.TransactionHash.Hex())
	return txResult(out), nil
}
