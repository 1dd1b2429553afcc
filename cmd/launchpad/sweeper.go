package main

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc"
	"github.com/rovshanmuradov/solana-launchpad/internal/fees"
	"github.com/rovshanmuradov/solana-launchpad/internal/lifecycle"
	"go.uber.org/zap"
)

const (
	migrationRetryLimit = 50
	graduationLimit     = 50
	provisionalLimit    = 100
)

// sweeper периодическая сверка: истекшие записи, неподтвержденные транзакции,
// недописанные выпуски, застрявшие миграции и предварительные выводы комиссий.
type sweeper struct {
	lifecycle *lifecycle.Orchestrator
	ledger    *fees.Ledger
	rpcPool   *solbc.RPCPool
	logger    *zap.Logger
	interval  time.Duration
}

func (s *sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.interval = time.Minute
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.logger.Warn("Sweep finished with errors", zap.Error(err))
			}
		}
	}
}

func (s *sweeper) tick(ctx context.Context) error {
	var result *multierror.Error

	if s.rpcPool != nil {
		if healthy := s.rpcPool.CheckHealth(ctx); healthy == 0 {
			s.logger.Error("No healthy RPC endpoints")
		}
	}

	swept, err := s.lifecycle.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		result = multierror.Append(result, err)
	}
	reconciled, err := s.lifecycle.Reconcile(ctx)
	if err != nil {
		result = multierror.Append(result, err)
	}
	graduated, err := s.lifecycle.GraduatePending(ctx, graduationLimit)
	if err != nil {
		result = multierror.Append(result, err)
	}
	migrations, err := s.lifecycle.RetryMigrations(ctx, migrationRetryLimit)
	if err != nil {
		result = multierror.Append(result, err)
	}
	resolved, err := s.ledger.ReconcileProvisional(ctx, provisionalLimit)
	if err != nil {
		result = multierror.Append(result, err)
	}

	fields := []zap.Field{
		zap.Int("graduated", len(graduated)),
		zap.Int("migrations", len(migrations)),
		zap.Int("claims_resolved", resolved),
	}
	if swept != nil {
		fields = append(fields, zap.Int("expired", swept.Expired), zap.Int("released", swept.Released))
	}
	if reconciled != nil {
		fields = append(fields, zap.Int("settled", reconciled.Settled), zap.Int("failed", reconciled.Failed))
	}
	s.logger.Debug("Sweep tick", fields...)
	return result.ErrorOrNil()
}
