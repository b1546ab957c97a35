package dao

import (
	"encoding/json"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
	"github.com/quantumauth-io/dao-agent/internal/contracts"
)

const (
	maxPercentage = 100
	maxVoteType   = 2
)

// Uint is a non-negative integer field that clients send either as a JSON
// number or as a string, decimal or 0x-prefixed hex.
type Uint uint64

func (u *Uint) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	}
	return u.UnmarshalParam(raw)
}

// UnmarshalParam lets gin bind the same forms from query strings.
func (u *Uint) UnmarshalParam(param string) error {
	raw := strings.TrimSpace(param)
	base := 10
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		raw, base = raw[2:], 16
	}
	n, err := strconv.ParseUint(raw, base, 64)
	if err != nil {
		return apperr.Input(apperr.CodeInvalidRequest, "%q is not a non-negative integer", param)
	}
	*u = Uint(n)
	return nil
}

func requireChain(chainID Uint) error {
	if chainID == 0 {
		return apperr.Input(apperr.CodeInvalidRequest, "chainId is required")
	}
	return nil
}

// parseAddress accepts a hex address in lower, upper or valid checksum case.
func parseAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Address{}, apperr.Input(apperr.CodeInvalidRequest, "%s is required", field)
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, apperr.Input(apperr.CodeInvalidAddress, "%s %q is not a valid address", field, raw)
	}
	body := strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		mixed, err := common.NewMixedcaseAddressFromString(raw)
		if err != nil || !mixed.ValidChecksum() {
			return common.Address{}, apperr.Input(apperr.CodeInvalidAddress, "%s %q has an invalid checksum", field, raw)
		}
	}
	return common.HexToAddress(raw), nil
}

// wholeNumber converts a non-negative integral amount to a big.Int.
func wholeNumber(field string, d decimal.Decimal) (*big.Int, error) {
	if d.IsNegative() || !d.IsInteger() {
		return nil, apperr.Input(apperr.CodeInvalidRequest, "%s must be a non-negative integer, got %s", field, d.String())
	}
	return d.BigInt(), nil
}

// etherToWei converts a non-negative ether amount to wei.
func etherToWei(field string, d decimal.Decimal) (*big.Int, error) {
	if d.IsNegative() {
		return nil, apperr.Input(apperr.CodeInvalidRequest, "%s must not be negative", field)
	}
	wei := d.Shift(18)
	if !wei.IsInteger() {
		return nil, apperr.Input(apperr.CodeInvalidRequest, "%s has more than 18 decimals", field)
	}
	return wei.BigInt(), nil
}

type DaoParams struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

type GovTokenParams struct {
	Name           string `json:"name"`
	Symbol         string `json:"symbol"`
	CouncilAddress string `json:"councilAddress"`
}

type GovTokenSettings struct {
	MinimumParticipationPercentage uint8  `json:"minimumParticipationPercentage"`
	SupportThresholdPercentage     uint8  `json:"supportThresholdPercentage"`
	MinimumDurationForProposal     uint32 `json:"minimumDurationForProposal"`
	EarlyExecution                 bool   `json:"earlyExecution"`
	CanVoteChange                  bool   `json:"canVoteChange"`
}

type Member struct {
	MemberAddress string          `json:"memberAddress"`
	Deposit       decimal.Decimal `json:"deposit"`
}

type DaoMembers struct {
	Members []Member `json:"members"`
}

type ProposalCreationParams struct {
	IsTokenBasedProposal bool            `json:"isTokenBasedProposal"`
	MinimumRequirement   decimal.Decimal `json:"MinimumRequirement"`
}

// DeployDAORequest is the input of DeployDAO. Field names follow the
// existing API, including the propsalCreationParams spelling.
type DeployDAORequest struct {
	DaoCreator             string                 `json:"daoCreator"`
	ChainID                Uint                   `json:"chainId"`
	DaoParams              DaoParams              `json:"daoParams"`
	GovTokenAddress        string                 `json:"govTokenAddress,omitempty"`
	GovTokenParams         GovTokenParams         `json:"govTokenParams"`
	GovTokenSettings       GovTokenSettings       `json:"govTokenSettings"`
	DaoMembers             DaoMembers             `json:"daoMembers"`
	ProposalCreationParams ProposalCreationParams `json:"propsalCreationParams"`
	IsMultisigDao          bool                   `json:"isMultisigDao"`
}

type deployDAO struct {
	chainID  uint64
	creator  common.Address
	govToken common.Address
	args     []interface{}
}

func (r DeployDAORequest) Validate() error {
	_, err := r.parse()
	return err
}

func (r DeployDAORequest) parse() (deployDAO, error) {
	var out deployDAO
	if err := requireChain(r.ChainID); err != nil {
		return out, err
	}
	creator, err := parseAddress("daoCreator", r.DaoCreator)
	if err != nil {
		return out, err
	}
	if (creator == common.Address{}) {
		return out, apperr.Input(apperr.CodeInvalidAddress, "daoCreator must not be the zero address")
	}
	out.chainID, out.creator = uint64(r.ChainID), creator

	if strings.TrimSpace(r.DaoParams.Name) == "" {
		return out, apperr.Input(apperr.CodeInvalidRequest, "daoParams.name is required")
	}

	if strings.TrimSpace(r.GovTokenAddress) != "" {
		if out.govToken, err = parseAddress("govTokenAddress", r.GovTokenAddress); err != nil {
			return out, err
		}
	}

	var council common.Address
	if strings.TrimSpace(r.GovTokenParams.CouncilAddress) != "" || out.govToken == (common.Address{}) {
		if council, err = parseAddress("govTokenParams.councilAddress", r.GovTokenParams.CouncilAddress); err != nil {
			return out, err
		}
	}
	if out.govToken == (common.Address{}) && (r.GovTokenParams.Name == "" || r.GovTokenParams.Symbol == "") {
		return out, apperr.Input(apperr.CodeInvalidRequest, "govTokenParams name and symbol are required when no govTokenAddress is given")
	}

	st := r.GovTokenSettings
	if st.MinimumParticipationPercentage > maxPercentage || st.SupportThresholdPercentage > maxPercentage {
		return out, apperr.Input(apperr.CodeInvalidRequest, "governance percentages must be between 0 and 100")
	}

	if len(r.DaoMembers.Members) == 0 {
		return out, apperr.Input(apperr.CodeInvalidRequest, "daoMembers.members must not be empty")
	}
	members := make([]contracts.DaoMember, len(r.DaoMembers.Members))
	for i, m := range r.DaoMembers.Members {
		addr, err := parseAddress("daoMembers.members.memberAddress", m.MemberAddress)
		if err != nil {
			return out, err
		}
		deposit, err := wholeNumber("daoMembers.members.deposit", m.Deposit)
		if err != nil {
			return out, err
		}
		members[i] = contracts.DaoMember{MemberAddress: addr, Deposit: deposit}
	}

	minReq, err := wholeNumber("propsalCreationParams.MinimumRequirement", r.ProposalCreationParams.MinimumRequirement)
	if err != nil {
		return out, err
	}

	out.args = []interface{}{
		contracts.DaoSettings{Name: r.DaoParams.Name, Data: contracts.HashData(r.DaoParams.Data)},
		out.govToken,
		contracts.GovTokenParams{Name: r.GovTokenParams.Name, Symbol: r.GovTokenParams.Symbol, CouncilAddress: council},
		contracts.GovernanceSettings{
			MinimumParticipationPercentage: st.MinimumParticipationPercentage,
			SupportThresholdPercentage:     st.SupportThresholdPercentage,
			MinimumDurationForProposal:     st.MinimumDurationForProposal,
			EarlyExecution:                 st.EarlyExecution,
			CanVoteChange:                  st.CanVoteChange,
		},
		members,
		contracts.ProposalCreationSettings{IsTokenBasedProposal: r.ProposalCreationParams.IsTokenBasedProposal, MinimumRequirement: minReq},
		r.IsMultisigDao,
	}
	return out, nil
}

type DeployGovernanceTokenRequest struct {
	ChainID        Uint   `json:"chainId"`
	Name           string `json:"name"`
	Symbol         string `json:"symbol"`
	CouncilAddress string `json:"councilAddress"`
}

func (r DeployGovernanceTokenRequest) Validate() error {
	_, err := r.parse()
	return err
}

func (r DeployGovernanceTokenRequest) parse() (contracts.GovTokenParams, error) {
	if err := requireChain(r.ChainID); err != nil {
		return contracts.GovTokenParams{}, err
	}
	if strings.TrimSpace(r.Name) == "" {
		return contracts.GovTokenParams{}, apperr.Input(apperr.CodeInvalidRequest, "name is required")
	}
	if strings.TrimSpace(r.Symbol) == "" {
		return contracts.GovTokenParams{}, apperr.Input(apperr.CodeInvalidRequest, "symbol is required")
	}
	council, err := parseAddress("councilAddress", r.CouncilAddress)
	if err != nil {
		return contracts.GovTokenParams{}, err
	}
	return contracts.GovTokenParams{Name: r.Name, Symbol: r.Symbol, CouncilAddress: council}, nil
}

// ActionInput is one proposal action. It decodes from either a
// [to, value, data] array or a {to, value, data} object.
type ActionInput struct {
	To    string          `json:"to"`
	Value decimal.Decimal `json:"value"`
	Data  string          `json:"data"`
}

func (a *ActionInput) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if strings.HasPrefix(trimmed, "[") {
		var tuple []json.RawMessage
		if err := json.Unmarshal(b, &tuple); err != nil {
			return err
		}
		if len(tuple) != 3 {
			return apperr.Input(apperr.CodeInvalidRequest, "an action is [to, value, data], got %d elements", len(tuple))
		}
		if err := json.Unmarshal(tuple[0], &a.To); err != nil {
			return err
		}
		if err := a.Value.UnmarshalJSON(tuple[1]); err != nil {
			return err
		}
		return json.Unmarshal(tuple[2], &a.Data)
	}

	type plain ActionInput
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*a = ActionInput(p)
	return nil
}

func (a ActionInput) parse() (contracts.Action, error) {
	to, err := parseAddress("actions.to", a.To)
	if err != nil {
		return contracts.Action{}, err
	}
	value, err := wholeNumber("actions.value", a.Value)
	if err != nil {
		return contracts.Action{}, err
	}
	data := []byte{}
	if s := strings.TrimSpace(a.Data); s != "" && s != "0x" {
		if data, err = hexutil.Decode(s); err != nil {
			return contracts.Action{}, apperr.Input(apperr.CodeInvalidRequest, "actions.data is not 0x-prefixed hex")
		}
	}
	return contracts.Action{To: to, Value: value, Data: data}, nil
}

type CreateProposalRequest struct {
	ChainID     Uint            `json:"chainId"`
	Sender      string          `json:"sender"`
	DaoAddress  string          `json:"daoAddress"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	MinApproval decimal.Decimal `json:"minApproval"`
	StartTime   decimal.Decimal `json:"startTime"`
	Duration    decimal.Decimal `json:"duration"`
	ActionID    decimal.Decimal `json:"actionId"`
	Actions     []ActionInput   `json:"actions"`
}

type createProposal struct {
	chainID uint64
	sender  common.Address
	dao     common.Address
	args    []interface{}
}

func (r CreateProposalRequest) Validate() error {
	_, err := r.parse()
	return err
}

func (r CreateProposalRequest) parse() (createProposal, error) {
	var out createProposal
	if err := requireChain(r.ChainID); err != nil {
		return out, err
	}
	var err error
	if out.sender, err = parseAddress("sender", r.Sender); err != nil {
		return out, err
	}
	if out.dao, err = parseAddress("daoAddress", r.DaoAddress); err != nil {
		return out, err
	}
	if strings.TrimSpace(r.Title) == "" {
		return out, apperr.Input(apperr.CodeInvalidRequest, "title is required")
	}
	out.chainID = uint64(r.ChainID)

	nums := make([]*big.Int, 4)
	for i, f := range []struct {
		name string
		v    decimal.Decimal
	}{
		{"minApproval", r.MinApproval},
		{"startTime", r.StartTime},
		{"duration", r.Duration},
		{"actionId", r.ActionID},
	} {
		if nums[i], err = wholeNumber(f.name, f.v); err != nil {
			return out, err
		}
	}

	actions := make([]contracts.Action, len(r.Actions))
	for i, a := range r.Actions {
		if actions[i], err = a.parse(); err != nil {
			return out, err
		}
	}

	out.args = []interface{}{out.dao, r.Title, r.Description, nums[0], nums[1], nums[2], nums[3], actions}
	return out, nil
}

type CastVoteRequest struct {
	ProposalAddress string `json:"proposalAddress"`
	ChainID         Uint   `json:"chainId"`
	Sender          string `json:"sender"`
	VoteType        Uint   `json:"voteType"`
}

type proposalCall struct {
	chainID  uint64
	proposal common.Address
	sender   common.Address
}

func (r CastVoteRequest) Validate() error {
	_, err := r.parse()
	return err
}

func (r CastVoteRequest) parse() (proposalCall, error) {
	if r.VoteType > maxVoteType {
		return proposalCall{}, apperr.Input(apperr.CodeInvalidRequest, "voteType must be 0, 1 or 2, got %d", r.VoteType)
	}
	return parseProposalCall(r.ChainID, r.ProposalAddress, r.Sender)
}

type ExecuteProposalRequest struct {
	ProposalAddress string `json:"proposalAddress"`
	ChainID         Uint   `json:"chainId"`
	Sender          string `json:"sender"`
}

func (r ExecuteProposalRequest) Validate() error {
	_, err := parseProposalCall(r.ChainID, r.ProposalAddress, r.Sender)
	return err
}

func parseProposalCall(chainID Uint, proposal, sender string) (proposalCall, error) {
	out := proposalCall{chainID: uint64(chainID)}
	if err := requireChain(chainID); err != nil {
		return out, err
	}
	var err error
	if out.proposal, err = parseAddress("proposalAddress", proposal); err != nil {
		return out, err
	}
	if out.sender, err = parseAddress("sender", sender); err != nil {
		return out, err
	}
	return out, nil
}

type DelegateVotesRequest struct {
	DaoAddress      string `json:"daoAddress"`
	ChainID         Uint   `json:"chainId"`
	Sender          string `json:"sender"`
	DelegateAddress string `json:"delegateAddress"`
}

type delegation struct {
	chainID  uint64
	dao      common.Address
	sender   common.Address
	delegate common.Address
}

func (r DelegateVotesRequest) Validate() error {
	_, err := r.parse()
	return err
}

func (r DelegateVotesRequest) parse() (delegation, error) {
	out, err := parseDelegation(r.ChainID, r.DaoAddress, r.Sender)
	if err != nil {
		return out, err
	}
	if out.delegate, err = parseAddress("delegateAddress", r.DelegateAddress); err != nil {
		return out, err
	}
	return out, nil
}

// ClaimVotesRequest delegates the sender's votes to itself.
type ClaimVotesRequest struct {
	DaoAddress string `json:"daoAddress"`
	ChainID    Uint   `json:"chainId"`
	Sender     string `json:"sender"`
}

func (r ClaimVotesRequest) Validate() error {
	_, err := r.parse()
	return err
}

func (r ClaimVotesRequest) parse() (delegation, error) {
	out, err := parseDelegation(r.ChainID, r.DaoAddress, r.Sender)
	if err != nil {
		return out, err
	}
	out.delegate = out.sender
	return out, nil
}

func parseDelegation(chainID Uint, dao, sender string) (delegation, error) {
	out := delegation{chainID: uint64(chainID)}
	if err := requireChain(chainID); err != nil {
		return out, err
	}
	var err error
	if out.dao, err = parseAddress("daoAddress", dao); err != nil {
		return out, err
	}
	if out.sender, err = parseAddress("sender", sender); err != nil {
		return out, err
	}
	return out, nil
}

// ContractRequest names one contract on one chain. It backs the DAO, token
// and proposal readers.
type ContractRequest struct {
	Address string `json:"address"`
	ChainID Uint   `json:"chainId"`
}

func (r ContractRequest) Validate() error {
	_, err := r.parse("address")
	return err
}

func (r ContractRequest) parse(field string) (common.Address, error) {
	if err := requireChain(r.ChainID); err != nil {
		return common.Address{}, err
	}
	return parseAddress(field, r.Address)
}

type VotingPowerRequest struct {
	ProposalAddress string `json:"proposalAddress" form:"proposalAddress"`
	UserAddress     string `json:"userAddress" form:"userAddress"`
	ChainID         Uint   `json:"chainId" form:"chainId"`
}

func (r VotingPowerRequest) Validate() error {
	_, _, err := r.parse()
	return err
}

func (r VotingPowerRequest) parse() (common.Address, common.Address, error) {
	if err := requireChain(r.ChainID); err != nil {
		return common.Address{}, common.Address{}, err
	}
	proposal, err := parseAddress("proposalAddress", r.ProposalAddress)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	user, err := parseAddress("userAddress", r.UserAddress)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return proposal, user, nil
}

// ActionsRequest describes proposal actions to encode. addDAOMembers is the
// only supported actionType.
type ActionsRequest struct {
	ActionType      string            `json:"actionType"`
	DaoAddress      string            `json:"daoAddress"`
	MemberAddresses []string          `json:"memberAddresses"`
	Deposits        []decimal.Decimal `json:"deposits"`
}

const ActionAddDAOMembers = "addDAOMembers"

func (r ActionsRequest) Validate() error {
	_, _, err := r.parse()
	return err
}

func (r ActionsRequest) parse() (common.Address, []contracts.DaoMember, error) {
	switch r.ActionType {
	case "":
		return common.Address{}, nil, apperr.Input(apperr.CodeInvalidRequest, "actionType is required")
	case ActionAddDAOMembers:
	default:
		return common.Address{}, nil, apperr.Input(apperr.CodeInvalidRequest, "unsupported actionType %q", r.ActionType)
	}

	dao, err := parseAddress("daoAddress", r.DaoAddress)
	if err != nil {
		return common.Address{}, nil, err
	}
	if len(r.MemberAddresses) == 0 || len(r.Deposits) == 0 {
		return common.Address{}, nil, apperr.Input(apperr.CodeInvalidRequest, "memberAddresses and deposits are required")
	}
	if len(r.MemberAddresses) != len(r.Deposits) {
		return common.Address{}, nil, apperr.Input(apperr.CodeLengthMismatch,
			"memberAddresses has %d entries but deposits has %d", len(r.MemberAddresses), len(r.Deposits))
	}

	members := make([]contracts.DaoMember, len(r.MemberAddresses))
	for i, raw := range r.MemberAddresses {
		addr, err := parseAddress("memberAddresses", raw)
		if err != nil {
			return common.Address{}, nil, err
		}
		deposit, err := etherToWei("deposits", r.Deposits[i])
		if err != nil {
			return common.Address{}, nil, err
		}
		members[i] = contracts.DaoMember{MemberAddress: addr, Deposit: deposit}
	}
	return dao, members, nil
}

type DaoRequest struct {
	DaoAddress string `json:"daoAddress"`
	ChainID    Uint   `json:"chainId"`
}

func (r DaoRequest) Validate() error {
	_, err := r.parse()
	return err
}

func (r DaoRequest) parse() (common.Address, error) {
	return ContractRequest{Address: r.DaoAddress, ChainID: r.ChainID}.parse("daoAddress")
}

type ProposalRequest struct {
	ProposalAddress string `json:"proposalAddress"`
	ChainID         Uint   `json:"chainId"`
}

func (r ProposalRequest) Validate() error {
	_, err := r.parse()
	return err
}

func (r ProposalRequest) parse() (common.Address, error) {
	return ContractRequest{Address: r.ProposalAddress, ChainID: r.ChainID}.parse("proposalAddress")
}
