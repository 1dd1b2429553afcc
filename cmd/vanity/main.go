// vanity - периодический воркер пула vanity адресов: догенерация пар до цели
// и возврат брошенных резервов. Запускается по расписанию (cron).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc"
	"github.com/rovshanmuradov/solana-launchpad/internal/config"
	"github.com/rovshanmuradov/solana-launchpad/internal/dex/dbc"
	"github.com/rovshanmuradov/solana-launchpad/internal/lifecycle"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage/postgres"
	applog "github.com/rovshanmuradov/solana-launchpad/internal/utils/logger"
	"github.com/rovshanmuradov/solana-launchpad/internal/vanity"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	sweep := flag.Bool("sweep", true, "release stale reservations after generation")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logCfg := applog.DefaultConfig()
	logCfg.LogFile = "vanity.log"
	logCfg.Development = cfg.Logging.Development
	logCfg.SentryDSN = cfg.Logging.SentryDSN
	log, err := applog.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *sweep, log.WithComponent("vanity-worker")); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("Vanity worker failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, sweep bool, logger *zap.Logger) error {
	if cfg.Database.PostgresURL == "" {
		return errors.New("database.postgres_url is required")
	}
	sealer, err := vanity.NewSealer(cfg.Vanity.EncryptionKey)
	if err != nil {
		return err
	}
	store, err := postgres.NewStorage(cfg.Database.PostgresURL, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.RunMigrations(ctx); err != nil {
		return err
	}

	generator, err := vanity.NewGenerator(store, sealer, logger, vanity.GeneratorConfig{
		Suffix:        cfg.Vanity.Suffix,
		CaseSensitive: cfg.Vanity.CaseSensitive,
		Workers:       cfg.Vanity.Workers,
		Target:        cfg.Vanity.Target,
		MaxDuration:   cfg.Vanity.MaxDuration,
	})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		generator.Stop()
	}()

	stats, err := generator.Run(ctx)
	if err != nil {
		return err
	}
	pool := vanity.NewPool(store, sealer, logger)
	available, err := pool.Available(ctx, cfg.Vanity.Suffix)
	if err != nil {
		return err
	}
	logger.Info("Vanity pool refilled",
		zap.Int64("generated", stats.Generated),
		zap.Int64("available", available),
		zap.Int("target", cfg.Vanity.Target))

	if !sweep {
		return nil
	}

	// резерв возвращается только если mint так и не появился в цепи
	programID, err := solana.PublicKeyFromBase58(cfg.Curve.ProgramID)
	if err != nil {
		return fmt.Errorf("curve.program_id: %w", err)
	}
	chain := solbc.Dial(cfg.RPC.URL, logger, solbc.Config{
		Commitment:     rpc.CommitmentType(cfg.RPC.Commitment),
		ConfirmTimeout: cfg.RPC.ConfirmTimeout,
	}, nil)
	orchestrator := lifecycle.New(lifecycle.Dependencies{
		Store:   store,
		Chain:   chain,
		Program: dbc.New(programID),
		Vanity:  pool,
	}, logger, lifecycle.Config{
		VanitySuffix:         cfg.Vanity.Suffix,
		VanityReservationTTL: cfg.Vanity.ReservationTTL,
		PreparedTTL:          cfg.Launch.PreparedTTL,
	})
	swept, err := orchestrator.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	logger.Info("Stale reservations swept",
		zap.Int("expired", swept.Expired),
		zap.Int("released", swept.Released),
		zap.Int("marked_used", swept.MarkedUsed),
		zap.Int("in_flight", swept.StillInFlight))
	return nil
}
