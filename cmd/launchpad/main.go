package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rovshanmuradov/solana-launchpad/internal/api"
	"github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc"
	"github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/solana-launchpad/internal/config"
	"github.com/rovshanmuradov/solana-launchpad/internal/dex/dbc"
	"github.com/rovshanmuradov/solana-launchpad/internal/events"
	"github.com/rovshanmuradov/solana-launchpad/internal/fees"
	"github.com/rovshanmuradov/solana-launchpad/internal/lifecycle"
	"github.com/rovshanmuradov/solana-launchpad/internal/ratelimit"
	"github.com/rovshanmuradov/solana-launchpad/internal/retry"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage/memory"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage/postgres"
	applog "github.com/rovshanmuradov/solana-launchpad/internal/utils/logger"
	"github.com/rovshanmuradov/solana-launchpad/internal/vanity"
	"github.com/rovshanmuradov/solana-launchpad/internal/wallet"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty - defaults and LAUNCHPAD_* env only)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := applog.DefaultConfig()
	logCfg.LogFile = cfg.Logging.File
	logCfg.Development = cfg.Logging.Development
	logCfg.SentryDSN = cfg.Logging.SentryDSN
	log, err := applog.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting launchpad", zap.Stringer("config", cfg))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.Logger); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("Launchpad stopped with error", zap.Error(err))
	}
	log.Info("Launchpad stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	keys, err := wallet.NewKeyring(wallet.KeyringConfig{
		Deployer: cfg.Keys.Deployer,
		Treasury: cfg.Keys.Treasury,
		Agents:   cfg.Keys.Agents,
	})
	if err != nil {
		return err
	}
	programID, err := solana.PublicKeyFromBase58(cfg.Curve.ProgramID)
	if err != nil {
		return fmt.Errorf("curve.program_id: %w", err)
	}
	program := dbc.New(programID)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var rpcClient solbc.RPC = rpc.New(cfg.RPC.URL)
	var rpcPool *solbc.RPCPool
	if len(cfg.RPC.FallbackURLs) > 0 {
		rpcPool = solbc.NewRPCPool(append([]string{cfg.RPC.URL}, cfg.RPC.FallbackURLs...), cfg.RPC.EndpointCooldown, logger)
		rpcClient = rpcPool
	}
	chain := solbc.NewClient(rpcClient, logger, solbc.Config{
		Commitment:     rpc.CommitmentType(cfg.RPC.Commitment),
		ConfirmTimeout: cfg.RPC.ConfirmTimeout,
		SkipPreflight:  cfg.RPC.SkipPreflight,
		Retry: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
	}, transaction.NewMetrics(registry))

	bus := events.NewBus(logger, 0)
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			return err
		}
		defer func() { _ = sink.Close() }()
		bus.Subscribe(sink)
		logger.Info("Publishing lifecycle events to Kafka", zap.String("topic", cfg.Kafka.Topic))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = bus.Shutdown(shutdownCtx)
	}()

	var vanityPool *vanity.Pool
	if cfg.Vanity.EncryptionKey != "" {
		sealer, err := vanity.NewSealer(cfg.Vanity.EncryptionKey)
		if err != nil {
			return err
		}
		vanityPool = vanity.NewPool(store, sealer, logger)
	} else {
		logger.Warn("Vanity encryption key not set, launches use random mint addresses")
	}

	orchestrator := lifecycle.New(lifecycle.Dependencies{
		Store:   store,
		Chain:   chain,
		Program: program,
		Keys:    keys,
		Vanity:  vanityPool,
		Events:  bus,
	}, logger, lifecycle.Config{
		InitialVirtualSol:      cfg.Curve.InitialVirtualSol,
		InitialVirtualToken:    cfg.Curve.InitialVirtualToken,
		TotalSupply:            cfg.Curve.TotalSupply,
		GraduationThresholdSol: cfg.Curve.GraduationThresholdSol,
		DefaultTradingFeeBps:   cfg.Curve.DefaultTradingFeeBps,
		MaxTradingFeeBps:       cfg.Curve.MaxTradingFeeBps,
		CreatorFeeShareBps:     cfg.Curve.CreatorFeeShareBps,
		MaxSlippageBps:         cfg.Curve.MaxSlippageBps,
		LaunchMaxAttempts:      cfg.Launch.MaxAttempts,
		VerifyAttempts:         cfg.Launch.VerifyAttempts,
		PreparedTTL:            cfg.Launch.PreparedTTL,
		ComputeUnits:           cfg.Launch.ComputeUnits,
		PriorityFeeSol:         cfg.Launch.PriorityFeeSol,
		VanitySuffix:           cfg.Vanity.Suffix,
		VanityReservationTTL:   cfg.Vanity.ReservationTTL,
	})

	ledger := fees.NewLedger(fees.Dependencies{
		Store:   store,
		Chain:   chain,
		Program: program,
		Keys:    keys,
		Events:  bus,
	}, logger, fees.Config{
		MinClaimSol:       cfg.Fees.MinClaimSol,
		ClaimDelay:        cfg.Fees.ClaimDelay,
		ProvisionalExpiry: cfg.Fees.ProvisionalExpiry,
		ComputeUnits:      cfg.Launch.ComputeUnits,
		PriorityFeeSol:    cfg.Launch.PriorityFeeSol,
	})

	limiter, closeLimiter, err := openLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	server := api.NewServer(api.Dependencies{
		Lifecycle:  orchestrator,
		Ledger:     ledger,
		Store:      store,
		Limiter:    limiter,
		Gatherer:   registry,
		Registerer: registry,
	}, logger, api.Config{
		TreasurySecret:     cfg.Treasury.Secret,
		RateLimitPerMinute: cfg.Redis.Limit,
	})

	sweeper := &sweeper{
		lifecycle: orchestrator,
		ledger:    ledger,
		logger:    logger.Named("sweeper"),
		rpcPool:   rpcPool,
		interval:  cfg.Server.SweepInterval,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := server.Run(gctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	return g.Wait()
}

// openStore postgres при заданном DSN, иначе память (только для локального запуска).
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	if cfg.Database.PostgresURL == "" {
		logger.Warn("database.postgres_url not set, using in-memory store")
		return memory.New(), nil
	}
	store, err := postgres.NewStorage(cfg.Database.PostgresURL, logger)
	if err != nil {
		return nil, err
	}
	if err := store.RunMigrations(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func openLimiter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ratelimit.Limiter, func(), error) {
	if cfg.Redis.Addr == "" {
		return ratelimit.NewMemory(cfg.Redis.Window), func() {}, nil
	}
	client, err := ratelimit.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	return ratelimit.NewRedisLimiter(client, cfg.Redis.Window, logger), func() { _ = client.Close() }, nil
}
