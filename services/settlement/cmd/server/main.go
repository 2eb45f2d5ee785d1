package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/pkg/config"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/pkg/db"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/pkg/logging"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/affirm"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/gateway"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/indexer"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/ledgerclient"
	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/proofclient"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ledger := ledgerclient.New(cfg.LedgerBaseURL, cfg.UpstreamTimeout())
	proofs := proofclient.New(cfg.ProofServerURL, cfg.UpstreamTimeout())

	var index gateway.ProofIndex
	if cfg.IndexerDatabaseURL != "" {
		pool := db.MustConnect(cfg.IndexerDatabaseURL, cfg.IndexerMaxConns)
		defer pool.Close()
		index = indexer.New(pool)
		logger.Info("reading sender proofs from indexer database")
	}
	gw := gateway.New(ledger, index)

	engine := affirm.New(gw, proofs,
		affirm.WithLogger(logger.Named("affirm")),
		affirm.WithConcurrency(cfg.OracleConcurrency))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(engine, gw, proofs, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("settlement service listening",
		zap.String("port", cfg.Port),
		zap.String("ledger", cfg.LedgerBaseURL),
		zap.String("proof_server", cfg.ProofServerURL))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
