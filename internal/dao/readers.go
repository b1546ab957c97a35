package dao

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
	"github.com/quantumauth-io/dao-agent/internal/chain"
	"github.com/quantumauth-io/dao-agent/internal/contracts"
)

const (
	maxProposalActions = 256
	maxListedProposals = 1000
	listConcurrency    = 8
)

// reads runs independent calls against one contract concurrently. The
// first failure cancels the rest and is returned by wait.
type reads struct {
	g        *errgroup.Group
	ctx      context.Context
	r        *chain.Reader
	contract *abi.ABI
	at       common.Address
}

func newReads(ctx context.Context, r *chain.Reader, contract *abi.ABI, at common.Address) *reads {
	g, gctx := errgroup.WithContext(ctx)
	return &reads{g: g, ctx: gctx, r: r, contract: contract, at: at}
}

func (rs *reads) into(out interface{}, method string, args ...interface{}) {
	rs.g.Go(func() error {
		return rs.r.CallInto(rs.ctx, out, rs.contract, rs.at, method, args...)
	})
}

func (rs *reads) wait() error { return rs.g.Wait() }

func read[T any](rs *reads, dst *T, method string, args ...interface{}) {
	rs.g.Go(func() error {
		v, err := chain.Read[T](rs.ctx, rs.r, rs.contract, rs.at, method, args...)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	})
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// formatUnits renders v with the given number of decimals.
func formatUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

type DaoSettingsView struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

type ProposalCreationSettingsView struct {
	IsTokenBasedProposal bool   `json:"isTokenBasedProposal"`
	MinimumRequirement   string `json:"MinimumRequirement"`
}

type GovernanceSettingsView struct {
	MinimumParticipationPercentage uint8  `json:"minimumParticipationPercentage"`
	SupportThresholdPercentage     uint8  `json:"supportThresholdPercentage"`
	MinimumDurationForProposal     uint32 `json:"minimumDurationForProposal"`
	EarlyExecution                 bool   `json:"earlyExecution"`
	CanVoteChange                  bool   `json:"canVoteChange"`
}

type DaoSnapshot struct {
	DaoSettings              DaoSettingsView              `json:"daoSettings"`
	GovernanceToken          string                       `json:"governanceToken"`
	ProposalCreationSettings ProposalCreationSettingsView `json:"proposalCreationSettings"`
	GovernanceSettings       GovernanceSettingsView       `json:"governanceSettings"`
	DaoCreator               string                       `json:"DaoCreator"`
	IsMultiSignDAO           bool                         `json:"isMultiSignDAO"`
	DaoType                  string                       `json:"DaoType"`
	ProposalCount            string                       `json:"ProposalCount"`
	MembersCount             string                       `json:"MembersCount"`
}

func (s *Service) DaoData(ctx context.Context, req DaoRequest) (DaoSnapshot, error) {
	dao, err := req.parse()
	if err != nil {
		return DaoSnapshot{}, err
	}
	n, err := s.connect(ctx, uint64(req.ChainID))
	if err != nil {
		return DaoSnapshot{}, err
	}

	var (
		govToken      common.Address
		settings      contracts.DaoSettings
		creation      contracts.ProposalCreationSettings
		governance    contracts.GovernanceSettings
		creator       common.Address
		multiSig      bool
		proposalCount *big.Int
		membersCount  *big.Int
	)
	rs := newReads(ctx, n.reader(), &contracts.DAOABI, dao)
	read(rs, &govToken, "governanceToken")
	rs.into(&settings, "_daoSettings")
	rs.into(&creation, "_proposalCreationSettings")
	rs.into(&governance, "governanceSettings")
	read(rs, &creator, "DaoCreator")
	read(rs, &multiSig, "isMultiSignDAO")
	read(rs, &proposalCount, "proposalId")
	read(rs, &membersCount, "membersCount")
	if err := rs.wait(); err != nil {
		return DaoSnapshot{}, err
	}

	daoType := "Token Based DAO"
	if multiSig {
		daoType = "MultiSignDAO"
	}
	return DaoSnapshot{
		DaoSettings:     DaoSettingsView{Name: settings.Name, Data: hexutil.Encode(settings.Data[:])},
		GovernanceToken: govToken.Hex(),
		ProposalCreationSettings: ProposalCreationSettingsView{
			IsTokenBasedProposal: creation.IsTokenBasedProposal,
			MinimumRequirement:   bigString(creation.MinimumRequirement),
		},
		GovernanceSettings: GovernanceSettingsView(governance),
		DaoCreator:         creator.Hex(),
		IsMultiSignDAO:     multiSig,
		DaoType:            daoType,
		ProposalCount:      bigString(proposalCount),
		MembersCount:       bigString(membersCount),
	}, nil
}

type GovernanceTokenActionsView struct {
	CanMint        bool `json:"canMint"`
	CanBurn        bool `json:"canBurn"`
	CanPause       bool `json:"canPause"`
	CanStake       bool `json:"canStake"`
	CanTransfer    bool `json:"canTransfer"`
	CanChangeOwner bool `json:"canChangeOwner"`
}

type GovernanceTokenSnapshot struct {
	Name        string                     `json:"name"`
	Symbol      string                     `json:"symbol"`
	Decimals    uint8                      `json:"decimals"`
	TotalSupply string                     `json:"totalSupply"`
	Actions     GovernanceTokenActionsView `json:"actions"`
	DaoAddress  string                     `json:"daoAddress"`
}

func (s *Service) GovernanceTokenData(ctx context.Context, req ContractRequest) (GovernanceTokenSnapshot, error) {
	token, err := req.parse("address")
	if err != nil {
		return GovernanceTokenSnapshot{}, err
	}
	n, err := s.connect(ctx, uint64(req.ChainID))
	if err != nil {
		return GovernanceTokenSnapshot{}, err
	}

	var (
		out     GovernanceTokenSnapshot
		supply  *big.Int
		actions contracts.GovernanceTokenActions
		dao     common.Address
	)
	rs := newReads(ctx, n.reader(), &contracts.GovernanceTokenABI, token)
	read(rs, &out.Name, "name")
	read(rs, &out.Symbol, "symbol")
	read(rs, &out.Decimals, "decimals")
	read(rs, &supply, "totalSupply")
	rs.into(&actions, "actions")
	read(rs, &dao, "daoAddress")
	if err := rs.wait(); err != nil {
		return GovernanceTokenSnapshot{}, err
	}

	out.TotalSupply = bigString(supply)
	out.Actions = GovernanceTokenActionsView(actions)
	out.DaoAddress = dao.Hex()
	return out, nil
}

type UtilityTokenActionsView struct {
	CanMint        bool `json:"canMint"`
	CanBurn        bool `json:"canBurn"`
	CanPause       bool `json:"canPause"`
	CanBlacklist   bool `json:"canBlacklist"`
	CanChangeOwner bool `json:"canChangeOwner"`
	CanTxTax       bool `json:"canTxTax"`
	CanBuyBack     bool `json:"canBuyBack"`
	CanStake       bool `json:"canStake"`
}

type UtilityTokenSnapshot struct {
	Name           string                  `json:"name"`
	Symbol         string                  `json:"symbol"`
	Decimals       uint8                   `json:"decimals"`
	Owner          string                  `json:"owner"`
	TotalSupply    string                  `json:"totalSupply"`
	TxnTaxWallet   string                  `json:"txnTaxWallet"`
	RewardRates    []string                `json:"rewardRates"`
	UtilityActions UtilityTokenActionsView `json:"utilityActions"`
}

func (s *Service) UtilityTokenData(ctx context.Context, req ContractRequest) (UtilityTokenSnapshot, error) {
	token, err := req.parse("address")
	if err != nil {
		return UtilityTokenSnapshot{}, err
	}
	n, err := s.connect(ctx, uint64(req.ChainID))
	if err != nil {
		return UtilityTokenSnapshot{}, err
	}

	var (
		out     UtilityTokenSnapshot
		owner   common.Address
		supply  *big.Int
		taxW    common.Address
		rates   []*big.Int
		actions contracts.UtilityTokenActions
	)
	rs := newReads(ctx, n.reader(), &contracts.UtilityTokenABI, token)
	read(rs, &out.Name, "name")
	read(rs, &out.Symbol, "symbol")
	read(rs, &out.Decimals, "decimals")
	read(rs, &owner, "owner")
	read(rs, &supply, "totalSupply")
	read(rs, &taxW, "txnTaxWallet")
	read(rs, &rates, "getRewardRates")
	rs.into(&actions, "actions")
	if err := rs.wait(); err != nil {
		return UtilityTokenSnapshot{}, err
	}

	out.Owner = owner.Hex()
	out.TotalSupply = formatUnits(supply, out.Decimals)
	out.TxnTaxWallet = taxW.Hex()
	out.RewardRates = make([]string, len(rates))
	for i, r := range rates {
		out.RewardRates[i] = bigString(r)
	}
	out.UtilityActions = UtilityTokenActionsView(actions)
	return out, nil
}

type ActionView struct {
	To    string `json:"to"`
	Value string `json:"value"`
	Data  string `json:"data"`
}

type ProposalFields struct {
	Approved                       bool         `json:"approved"`
	CanVoteChange                  bool         `json:"canVoteChange"`
	DaoAddress                     string       `json:"daoAddress"`
	EarlyExecution                 bool         `json:"earlyExecution"`
	StartTime                      string       `json:"startTime"`
	EndTime                        string       `json:"endTime"`
	Executed                       bool         `json:"executed"`
	GovernanceTokenAddress         string       `json:"governanceTokenAddress"`
	MinApproval                    string       `json:"minApproval"`
	MinimumDurationForProposal     string       `json:"minimumDurationForProposal"`
	MinimumParticipationPercentage string       `json:"minimumParticipationPercentage"`
	SupportThresholdPercentage     string       `json:"supportThresholdPercentage"`
	YesVotes                       string       `json:"yesVotes"`
	NoVotes                        string       `json:"noVotes"`
	AbstainVotes                   string       `json:"abstainVotes"`
	ProposalTitle                  string       `json:"proposalTitle"`
	ProposalDescription            string       `json:"proposalDescription"`
	ProposerAddress                string       `json:"proposerAddress"`
	Status                         uint8        `json:"status"`
	ActionID                       string       `json:"actionId"`
	Actions                        []ActionView `json:"actions"`
}

type ProposalSnapshot struct {
	ContractAddress string         `json:"contractAddress"`
	Data            ProposalFields `json:"data"`
}

func (s *Service) ProposalData(ctx context.Context, req ProposalRequest) (ProposalSnapshot, error) {
	proposal, err := req.parse()
	if err != nil {
		return ProposalSnapshot{}, err
	}
	n, err := s.connect(ctx, uint64(req.ChainID))
	if err != nil {
		return ProposalSnapshot{}, err
	}
	r := n.reader()

	var (
		f                                            ProposalFields
		dao, govToken, proposer                      common.Address
		start, end, minApproval, minDuration         *big.Int
		minParticipation, supportThreshold, actionID *big.Int
		yes, no, abstain                             *big.Int
	)
	rs := newReads(ctx, r, &contracts.ProposalABI, proposal)
	read(rs, &f.Approved, "approved")
	read(rs, &f.CanVoteChange, "canVoteChange")
	read(rs, &dao, "daoAddress")
	read(rs, &f.EarlyExecution, "earlyExecution")
	read(rs, &start, "startTime")
	read(rs, &end, "endTime")
	read(rs, &f.Executed, "executed")
	read(rs, &govToken, "governanceTokenAddress")
	read(rs, &minApproval, "minApproval")
	read(rs, &minDuration, "minimumDurationForProposal")
	read(rs, &minParticipation, "minimumParticipationPercentage")
	read(rs, &supportThreshold, "supportThresholdPercentage")
	read(rs, &yes, "yesVotes")
	read(rs, &no, "noVotes")
	read(rs, &abstain, "abstainVotes")
	read(rs, &f.ProposalTitle, "proposalTitle")
	read(rs, &f.ProposalDescription, "proposalDescription")
	read(rs, &proposer, "proposerAddress")
	read(rs, &f.Status, "status")
	read(rs, &actionID, "actionId")
	if err := rs.wait(); err != nil {
		return ProposalSnapshot{}, err
	}

	f.DaoAddress = dao.Hex()
	f.GovernanceTokenAddress = govToken.Hex()
	f.ProposerAddress = proposer.Hex()
	f.StartTime = bigString(start)
	f.EndTime = bigString(end)
	f.MinApproval = bigString(minApproval)
	f.MinimumDurationForProposal = bigString(minDuration)
	f.MinimumParticipationPercentage = bigString(minParticipation)
	f.SupportThresholdPercentage = bigString(supportThreshold)
	f.YesVotes = bigString(yes)
	f.NoVotes = bigString(no)
	f.AbstainVotes = bigString(abstain)
	f.ActionID = bigString(actionID)

	if f.Actions, err = s.proposalActions(ctx, r, proposal); err != nil {
		return ProposalSnapshot{}, err
	}
	return ProposalSnapshot{ContractAddress: proposal.Hex(), Data: f}, nil
}

// proposalActions reads actions(i) from 0 until the first index the
// contract rejects.
func (s *Service) proposalActions(ctx context.Context, r *chain.Reader, proposal common.Address) ([]ActionView, error) {
	actions := []ActionView{}
	for i := 0; i < maxProposalActions; i++ {
		var a contracts.Action
		err := r.CallInto(ctx, &a, &contracts.ProposalABI, proposal, "actions", big.NewInt(int64(i)))
		if err != nil {
			if apperr.From(err).Kind == apperr.KindInfrastructure {
				return nil, err
			}
			break
		}
		actions = append(actions, ActionView{To: a.To.Hex(), Value: bigString(a.Value), Data: hexutil.Encode(a.Data)})
	}
	return actions, nil
}

type ProposalEntryView struct {
	ID                      string `json:"id"`
	DeployedProposalAddress string `json:"deployedProposalAddress"`
}

type ProposalList struct {
	DaoAddress     string              `json:"daoAddress"`
	TotalProposals int                 `json:"totalProposals"`
	Proposals      []ProposalEntryView `json:"proposals"`
}

// Proposals lists proposals 1..proposalId of a DAO, skipping empty slots.
func (s *Service) Proposals(ctx context.Context, req DaoRequest) (ProposalList, error) {
	dao, err := req.parse()
	if err != nil {
		return ProposalList{}, err
	}
	n, err := s.connect(ctx, uint64(req.ChainID))
	if err != nil {
		return ProposalList{}, err
	}
	r := n.reader()

	count, err := chain.Read[*big.Int](ctx, r, &contracts.DAOABI, dao, "proposalId")
	if err != nil {
		return ProposalList{}, err
	}
	total := maxListedProposals
	if count.IsInt64() && count.Int64() < int64(total) {
		total = int(count.Int64())
	} else {
		log.Warn("proposal list truncated", "dao", dao.Hex(), "proposalId", count.String(), "limit", maxListedProposals)
	}

	entries := make([]*contracts.ProposalEntry, total)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i := 1; i <= total; i++ {
		g.Go(func() error {
			var e contracts.ProposalEntry
			err := r.CallInto(gctx, &e, &contracts.DAOABI, dao, "proposals", big.NewInt(int64(i)))
			if err != nil {
				if apperr.From(err).Kind == apperr.KindInfrastructure {
					return err
				}
				log.Warn("skipping unreadable proposal", "dao", dao.Hex(), "index", i, "error", err)
				return nil
			}
			entries[i-1] = &e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ProposalList{}, err
	}

	out := ProposalList{DaoAddress: dao.Hex(), Proposals: []ProposalEntryView{}}
	for _, e := range entries {
		if e == nil || e.DeployedProposalAddress == (common.Address{}) {
			continue
		}
		out.Proposals = append(out.Proposals, ProposalEntryView{
			ID:                      bigString(e.ProposalID),
			DeployedProposalAddress: e.DeployedProposalAddress.Hex(),
		})
	}
	out.TotalProposals = len(out.Proposals)
	return out, nil
}

type VotingPower struct {
	ProposalAddress string `json:"proposalAddress"`
	UserAddress     string `json:"userAddress"`
	ChainID         uint64 `json:"chainId"`
	VotingPower     string `json:"votingPower"`
}

func (s *Service) VotingPower(ctx context.Context, req VotingPowerRequest) (VotingPower, error) {
	proposal, user, err := req.parse()
	if err != nil {
		return VotingPower{}, err
	}
	n, err := s.connect(ctx, uint64(req.ChainID))
	if err != nil {
		return VotingPower{}, err
	}
	power, err := chain.Read[*big.Int](ctx, n.reader(), &contracts.ProposalABI, proposal, "_getVotingUnits", user)
	if err != nil {
		return VotingPower{}, err
	}
	return VotingPower{
		ProposalAddress: proposal.Hex(),
		UserAddress:     user.Hex(),
		ChainID:         uint64(req.ChainID),
		VotingPower:     bigString(power),
	}, nil
}

type ProposalStatus struct {
	MinimumParticipationPercentage string `json:"minimumParticipationPercentage"`
	ParticipationAchieved          string `json:"participationAchieved"`
	SupportThresholdPercentage     string `json:"supportThresholdPercentage"`
	SupportAchieved                string `json:"supportAchieved"`
	EndTimePassed                  bool   `json:"endTimePassed"`
	EarlyExecution                 bool   `json:"earlyExecution"`
	StatusText                     string `json:"statusText"`
}

func statusText(status uint8) string {
	switch status {
	case 0:
		return "Not Started"
	case 1:
		return "Active"
	case 2:
		return "Approved"
	case 3:
		return "Executed"
	default:
		return "Unknown"
	}
}

// percentOf returns part/total as a percentage with two decimals; a zero
// total yields "0.00".
func percentOf(part, total *big.Int) string {
	if total == nil || total.Sign() == 0 {
		return decimal.Zero.StringFixed(2)
	}
	return decimal.NewFromBigInt(part, 0).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromBigInt(total, 0)).
		StringFixed(2)
}

func (s *Service) ProposalStatus(ctx context.Context, req ProposalRequest) (ProposalStatus, error) {
	proposal, err := req.parse()
	if err != nil {
		return ProposalStatus{}, err
	}
	n, err := s.connect(ctx, uint64(req.ChainID))
	if err != nil {
		return ProposalStatus{}, err
	}
	r := n.reader()

	var (
		out                                ProposalStatus
		govToken                           common.Address
		minParticipation, supportThreshold *big.Int
		yes, no, abstain, end              *big.Int
		status                             uint8
	)
	rs := newReads(ctx, r, &contracts.ProposalABI, proposal)
	read(rs, &govToken, "governanceTokenAddress")
	read(rs, &minParticipation, "minimumParticipationPercentage")
	read(rs, &supportThreshold, "supportThresholdPercentage")
	read(rs, &yes, "yesVotes")
	read(rs, &no, "noVotes")
	read(rs, &abstain, "abstainVotes")
	read(rs, &end, "endTime")
	read(rs, &out.EarlyExecution, "earlyExecution")
	read(rs, &status, "status")
	if err := rs.wait(); err != nil {
		return ProposalStatus{}, err
	}

	supply, err := chain.Read[*big.Int](ctx, r, &contracts.GovernanceTokenABI, govToken, "totalSupply")
	if err != nil {
		return ProposalStatus{}, err
	}

	votes := new(big.Int).Add(yes, no)
	votes.Add(votes, abstain)

	out.MinimumParticipationPercentage = bigString(minParticipation)
	out.SupportThresholdPercentage = bigString(supportThreshold)
	out.ParticipationAchieved = percentOf(votes, supply)
	out.SupportAchieved = percentOf(yes, votes)
	out.EndTimePassed = big.NewInt(s.now().Unix()).Cmp(end) > 0
	out.StatusText = statusText(status)
	return out, nil
}
