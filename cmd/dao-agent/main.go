package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantumauth-io/quantum-go-utils/log"

	agentconfig "github.com/quantumauth-io/dao-agent/cmd/dao-agent/config"
	"github.com/quantumauth-io/dao-agent/internal/chain"
	"github.com/quantumauth-io/dao-agent/internal/dao"
	"github.com/quantumauth-io/dao-agent/internal/funding"
	agenthttp "github.com/quantumauth-io/dao-agent/internal/http"
	"github.com/quantumauth-io/dao-agent/internal/keyvault"
	"github.com/quantumauth-io/dao-agent/internal/networks"
	"github.com/quantumauth-io/dao-agent/internal/recordstore"
	"github.com/quantumauth-io/dao-agent/internal/walletstore"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	log.Info("dao-agent",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := agentconfig.Load()
	if err != nil {
		log.Fatal("failed to parse config", "error", err)
	}
	if missing := cfg.MissingSecrets(); len(missing) > 0 {
		log.Warn("secrets not set; operations that need them will fail", "missing", missing)
	}

	resolver, err := networks.NewResolver(cfg.Networks, cfg.Secrets.InfuraProjectID)
	if err != nil {
		log.Fatal("invalid network table", "error", err)
	}
	clients := networks.NewClients(cfg.Chain.DialTimeout)
	defer clients.Close()

	records, closeRecords, err := recordstore.Open(ctx, cfg.RecordStore, recordstore.Credentials{
		RemoteToken: cfg.Secrets.PIAPIToken,
		DatabaseURL: cfg.Secrets.DatabaseURL,
	})
	if err != nil {
		log.Fatal("record store init failed", "backend", cfg.RecordStore.Backend, "error", err)
	}
	defer closeRecords()

	kdf, err := keyvault.KDFByName(cfg.KeyVault.KDF)
	if err != nil {
		log.Fatal("invalid kdf", "error", err)
	}
	vault := keyvault.New(cfg.Secrets.Salt, kdf)

	fundingKey, err := chain.KeyFromHex(cfg.Secrets.FundingPrivateKey)
	if err != nil {
		log.Fatal("invalid FUNDING_PRIVATE_KEY", "error", err)
	}
	fundingChain := cfg.Funding.ChainID
	funder, err := funding.New(funding.Config{
		ChainID: fundingChain,
		Key:     fundingKey,
		Backend: func(ctx context.Context) (chain.Backend, error) {
			profile, err := resolver.Resolve(fundingChain)
			if err != nil {
				return nil, err
			}
			return clients.Dial(ctx, profile)
		},
		Reserve:       cfg.Funding.Reserve,
		Amount:        cfg.Funding.Amount,
		Confirmations: cfg.Funding.Confirmations,
		PollInterval:  cfg.Chain.PollInterval,
		QueueSize:     cfg.Funding.QueueSize,
	})
	if err != nil {
		log.Fatal("funding init failed", "error", err)
	}
	funder.Start(ctx)

	wallets, err := walletstore.New(walletstore.Config{
		Records: records,
		Vault:   vault,
		Funder:  funder,
	})
	if err != nil {
		log.Fatal("wallet store init failed", "error", err)
	}

	serviceKey, err := chain.KeyFromHex(cfg.Secrets.PrivateKey)
	if err != nil {
		log.Fatal("invalid PRIVATE_KEY", "error", err)
	}
	minPower, err := cfg.MinExecutionVotingPower()
	if err != nil {
		log.Fatal("invalid config", "error", err)
	}
	daoService, err := dao.New(dao.Config{
		Networks:                resolver,
		Dialer:                  clients,
		Signers:                 wallets,
		ServiceKey:              serviceKey,
		Confirmations:           cfg.Chain.Confirmations,
		PollInterval:            cfg.Chain.PollInterval,
		MinExecutionVotingPower: minPower,
	})
	if err != nil {
		log.Fatal("dao service init failed", "error", err)
	}

	handler := agenthttp.NewRouter(
		agenthttp.NewHandler(daoService, wallets, cfg.Server.ExposeKeyDecode),
		agenthttp.RouterConfig{AllowOrigins: cfg.Server.AllowOrigins},
	)
	if cfg.Server.ExposeKeyDecode {
		log.Warn("private key decode route is enabled")
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err = server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
	} else {
		log.Info("HTTP server gracefully stopped")
	}

	select {
	case <-funder.Done():
	case <-shutdownCtx.Done():
		log.Warn("funding worker did not stop before the shutdown deadline")
	}
}
