package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/quantumauth-io/dao-agent/internal/metrics"
)

type RouterConfig struct {
	AllowOrigins []string
}

func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), withRequestID(), withAccessLog())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        10 * time.Minute,
	}
	if len(cfg.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// writers
	r.POST("/deploy-dao-contract", serve(h.dao.DeployDAO))
	r.POST("/deploy-gt-contract", serve(h.dao.DeployGovernanceToken))
	r.POST("/create-proposal", serve(h.dao.CreateProposal))
	r.POST("/cast-vote", serve(h.dao.CastVote))
	r.POST("/execute-proposal", serve(h.dao.ExecuteProposal))
	r.POST("/delegate-votes", serve(h.dao.DelegateVotes))
	r.POST("/claim-votes", serve(h.dao.ClaimVotes))

	// readers
	r.POST("/dao-data", serve(h.dao.DaoData))
	r.POST("/get-actions", h.GetActions)
	r.POST("/proposal-data", serve(h.dao.ProposalData))
	r.POST("/ut-data", serve(h.dao.UtilityTokenData))
	r.POST("/governance-token-data", serve(h.dao.GovernanceTokenData))
	r.POST("/proposal", h.Proposal)
	r.POST("/getProposals", serve(h.dao.Proposals))
	r.POST("/votingPower", serve(h.dao.VotingPower))
	r.GET("/votingPower", serveQuery(h.dao.VotingPower))
	r.POST("/proposal/status", serve(h.dao.ProposalStatus))

	wallets := r.Group("/wallets")
	{
		wallets.POST("", h.CreateWallet)
		wallets.POST("/decode", h.DecodeWallet)
		wallets.GET("/address/:address", h.GetWalletByAddress)
		wallets.GET("/:agentId", h.GetWallet)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r
}
