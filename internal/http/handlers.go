package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
	"github.com/quantumauth-io/dao-agent/internal/dao"
	"github.com/quantumauth-io/dao-agent/internal/walletstore"
)

// DAO is the contract reader and writer surface served over HTTP.
type DAO interface {
	DeployDAO(ctx context.Context, req dao.DeployDAORequest) (dao.DeployDAOResult, error)
	DeployGovernanceToken(ctx context.Context, req dao.DeployGovernanceTokenRequest) (dao.DeployGovernanceTokenResult, error)
	CreateProposal(ctx context.Context, req dao.CreateProposalRequest) (dao.CreateProposalResult, error)
	CastVote(ctx context.Context, req dao.CastVoteRequest) (dao.TxResult, error)
	ExecuteProposal(ctx context.Context, req dao.ExecuteProposalRequest) (dao.TxResult, error)
	DelegateVotes(ctx context.Context, req dao.DelegateVotesRequest) (dao.TxResult, error)
	ClaimVotes(ctx context.Context, req dao.ClaimVotesRequest) (dao.TxResult, error)

	DaoData(ctx context.Context, req dao.DaoRequest) (dao.DaoSnapshot, error)
	GovernanceTokenData(ctx context.Context, req dao.ContractRequest) (dao.GovernanceTokenSnapshot, error)
	UtilityTokenData(ctx context.Context, req dao.ContractRequest) (dao.UtilityTokenSnapshot, error)
	ProposalData(ctx context.Context, req dao.ProposalRequest) (dao.ProposalSnapshot, error)
	Proposals(ctx context.Context, req dao.DaoRequest) (dao.ProposalList, error)
	VotingPower(ctx context.Context, req dao.VotingPowerRequest) (dao.VotingPower, error)
	ProposalStatus(ctx context.Context, req dao.ProposalRequest) (dao.ProposalStatus, error)
}

// Wallets is the custodial wallet surface served over HTTP.
type Wallets interface {
	Create(ctx context.Context, agentID string) (walletstore.Created, error)
	FetchByAgent(ctx context.Context, agentID string) (walletstore.WalletRecord, bool, error)
	FetchByAddress(ctx context.Context, address string) (walletstore.WalletRecord, bool, error)
	RevealPrivateKey(rec walletstore.WalletRecord) (string, error)
}

type Handler struct {
	dao             DAO
	wallets         Wallets
	exposeKeyDecode bool
}

func NewHandler(d DAO, w Wallets, exposeKeyDecode bool) *Handler {
	return &Handler{
		dao:             d,
		wallets:         w,
		exposeKeyDecode: exposeKeyDecode,
	}
}

// -------- DTOs for wallet routes --------

type createWalletReq struct {
	AgentID string `json:"agentId"`
}

type walletRes struct {
	AgentID       string `json:"agentId"`
	WalletAddress string `json:"walletAddress"`
	EncryptedKey  string `json:"encryptedKey"`
	IV            string `json:"iv"`
	Tag           string `json:"tag"`
}

// createWalletRes always carries fundingTx, null when nothing was sent.
type createWalletRes struct {
	walletRes
	FundingTx      *string `json:"fundingTx"`
	FundingWarning string  `json:"fundingWarning,omitempty"`
}

type decodeWalletReq struct {
	WalletAddress string `json:"walletAddress"`
}

type decodeWalletRes struct {
	AgentID       string `json:"agentId"`
	WalletAddress string `json:"walletAddress"`
	PrivateKey    string `json:"privateKey"`
}

func walletView(rec walletstore.WalletRecord) walletRes {
	return walletRes{
		AgentID:       rec.AgentID,
		WalletAddress: rec.WalletAddress,
		EncryptedKey:  rec.EncryptedKey,
		IV:            rec.IV,
		Tag:           rec.Tag,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"health": "ok"})
}

// POST /wallets
func (h *Handler) CreateWallet(c *gin.Context) {
	var req createWalletReq
	if !bindJSON(c, &req) {
		return
	}

	created, err := h.wallets.Create(c.Request.Context(), req.AgentID)
	if err != nil {
		fail(c, err)
		return
	}

	res := createWalletRes{walletRes: walletView(created.Record), FundingWarning: created.FundingWarning}
	if created.FundingTx != "" {
		res.FundingTx = &created.FundingTx
	}
	c.JSON(http.StatusCreated, apperr.Ok(res))
}

// GET /wallets/:agentId
func (h *Handler) GetWallet(c *gin.Context) {
	agentID := c.Param("agentId")
	rec, found, err := h.wallets.FetchByAgent(c.Request.Context(), agentID)
	if err != nil {
		fail(c, err)
		return
	}
	if !found {
		notFound(c, "no wallet for agent %q", agentID)
		return
	}
	c.JSON(http.StatusOK, apperr.Ok(walletView(rec)))
}

// GET /wallets/address/:address
func (h *Handler) GetWalletByAddress(c *gin.Context) {
	address := c.Param("address")
	rec, found, err := h.wallets.FetchByAddress(c.Request.Context(), address)
	if err != nil {
		fail(c, err)
		return
	}
	if !found {
		notFound(c, "no wallet for address %s", address)
		return
	}
	c.JSON(http.StatusOK, apperr.Ok(walletView(rec)))
}

// POST /wallets/decode
func (h *Handler) DecodeWallet(c *gin.Context) {
	if !h.exposeKeyDecode {
		c.Status(http.StatusNotFound)
		return
	}

	var req decodeWalletReq
	if !bindJSON(c, &req) {
		return
	}
	if req.WalletAddress == "" {
		fail(c, apperr.Input(apperr.CodeInvalidRequest, "walletAddress is required"))
		return
	}

	rec, found, err := h.wallets.FetchByAddress(c.Request.Context(), req.WalletAddress)
	if err != nil {
		fail(c, err)
		return
	}
	if !found {
		notFound(c, "no wallet for address %s", req.WalletAddress)
		return
	}

	key, err := h.wallets.RevealPrivateKey(rec)
	if err != nil {
		fail(c, err)
		return
	}
	log.Warn("private key revealed", "agentId", rec.AgentID, "address", rec.WalletAddress, "requestId", requestID(c))
	c.JSON(http.StatusOK, apperr.Ok(decodeWalletRes{
		AgentID:       rec.AgentID,
		WalletAddress: rec.WalletAddress,
		PrivateKey:    key,
	}))
}

// POST /proposal takes {address, chainId} instead of proposalAddress.
func (h *Handler) Proposal(c *gin.Context) {
	var req dao.ContractRequest
	if !bindJSON(c, &req) || !validate(c, req) {
		return
	}
	respond(c, func(ctx context.Context) (any, error) {
		return h.dao.ProposalData(ctx, dao.ProposalRequest{ProposalAddress: req.Address, ChainID: req.ChainID})
	})
}

// POST /get-actions
func (h *Handler) GetActions(c *gin.Context) {
	var req dao.ActionsRequest
	if !bindJSON(c, &req) || !validate(c, req) {
		return
	}
	respond(c, func(context.Context) (any, error) {
		return dao.EncodeActions(req)
	})
}
