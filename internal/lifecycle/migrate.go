package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/hashicorp/go-multierror"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/events"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
	applog "github.com/rovshanmuradov/solana-launchpad/internal/utils/logger"
	"go.uber.org/zap"
)

// MigrationResult итог миграции пула.
type MigrationResult struct {
	Mint                string `json:"mintAddress"`
	MigratedPoolAddress string `json:"migratedPoolAddress"`
	Signature           string `json:"signature,omitempty"`
	// AlreadyMigrated миграция уже была выполнена в цепи или записана ранее.
	AlreadyMigrated bool `json:"alreadyMigrated"`
}

// graduate шаг 9: единственный CAS bonding -> graduated. Победитель запускает миграцию,
// проигравший просто перечитывает состояние. Ошибка перехода возвращается: пул
// остается bonding, и его подберет GraduatePending.
func (o *Orchestrator) graduate(ctx context.Context, pool *domain.Pool, log *zap.Logger) (*domain.Pool, error) {
	err := o.store.TransitionStatus(ctx, domain.StatusChange{
		Mint: pool.Mint,
		From: domain.StatusBonding,
		To:   domain.StatusGraduated,
		At:   o.now(),
	})
	if errors.Is(err, storage.ErrConflict) {
		log.Debug("Pool already graduated by a concurrent trade")
		return o.reload(ctx, pool), nil
	}
	if err != nil {
		return pool, fmt.Errorf("graduate %s: %w", pool.Mint, err)
	}

	log.Info("Pool graduated", zap.Float64("real_sol", pool.RealSol),
		zap.Float64("threshold", pool.GraduationThresholdSol))
	o.publish(events.PoolGraduatedEvent{
		BaseEvent: events.NewBase(events.PoolGraduated, pool.Mint),
		RealSol:   pool.RealSol,
	})

	// сбой миграции не откатывает сделку: пул остается graduated до RetryMigrations
	if _, err := o.Migrate(ctx, pool.Mint); err != nil {
		log.Warn("Migration after graduation failed, will retry", zap.Error(err))
	}
	return o.reload(ctx, pool), nil
}

// GraduatePending доводит до graduated пулы, которые достигли порога, но остались
// bonding: переход после сделки мог не записаться.
func (o *Orchestrator) GraduatePending(ctx context.Context, limit int) ([]*domain.Pool, error) {
	pools, err := o.store.ListGraduationCandidates(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list graduation candidates: %w", err)
	}

	var (
		graduated []*domain.Pool
		errs      *multierror.Error
	)
	for _, pool := range pools {
		if ctx.Err() != nil {
			errs = multierror.Append(errs, ctx.Err())
			break
		}
		log := applog.WithOperation(o.logger, "graduate").With(zap.String("mint", pool.Mint))
		current, err := o.graduate(ctx, pool, log)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		graduated = append(graduated, current)
	}
	return graduated, errs.ErrorOrNil()
}

func (o *Orchestrator) reload(ctx context.Context, pool *domain.Pool) *domain.Pool {
	fresh, err := o.store.GetPool(ctx, pool.Mint)
	if err != nil {
		o.logger.Warn("Pool reload failed", zap.String("mint", pool.Mint), zap.Error(err))
		return pool
	}
	return fresh
}

// Migrate переводит ликвидность graduated пула в AMM. Идемпотентен: уже мигрированный
// в цепи пул только записывается.
func (o *Orchestrator) Migrate(ctx context.Context, mint string) (*MigrationResult, error) {
	log := applog.WithOperation(o.logger, "migrate").With(zap.String("mint", mint))

	pool, err := o.loadPool(ctx, mint)
	if err != nil {
		return nil, err
	}
	switch pool.Status {
	case domain.StatusMigrated:
		return &MigrationResult{Mint: mint, MigratedPoolAddress: pool.MigratedPoolAddress, AlreadyMigrated: true}, nil
	case domain.StatusBonding:
		return nil, &domain.TradeError{Op: "migrate", Reason: "pool has not graduated", Pool: pool, Err: domain.ErrInvalidInput}
	}

	accounts, err := swapAccounts(pool, pool.Creator)
	if err != nil {
		return nil, err
	}
	onChain, _, err := o.readPoolAccount(ctx, accounts.Pool)
	if err != nil {
		return nil, fmt.Errorf("read pool before migration: %w", err)
	}
	if onChain != nil && onChain.Migrated() {
		log.Info("Pool already migrated on chain, recording")
		return o.recordMigration(ctx, pool, onChain.MigratedPool, "", true, log)
	}

	deployer, err := o.keys.Deployer()
	if err != nil {
		return nil, err
	}
	deployerKey, err := o.keys.Signer(deployer)
	if err != nil {
		return nil, err
	}
	ix, migrated, err := o.program.Migrate(accounts.Config, accounts.Pool, accounts.Mint, deployer)
	if err != nil {
		return nil, err
	}
	blockhash, err := o.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	prepared, err := o.newBuilder().AddInstruction(ix).SetPayer(deployer).AddSigner(deployerKey).Build(blockhash)
	if err != nil {
		return nil, err
	}

	sig, _, err := o.sendAndConfirm(ctx, prepared.Tx)
	if err != nil {
		// параллельная миграция могла успеть раньше
		if again, _, readErr := o.readPoolAccount(ctx, accounts.Pool); readErr == nil && again != nil && again.Migrated() {
			return o.recordMigration(ctx, pool, again.MigratedPool, "", true, log)
		}
		log.Warn("Migration transaction failed, pool stays graduated", zap.Error(err))
		return nil, &domain.TradeError{Op: "migrate", Reason: "migration transaction failed", Pool: pool,
			Signature: prepared.Tx.Signatures[0].String(), Err: err}
	}
	return o.recordMigration(ctx, pool, migrated, sig.String(), false, log)
}

func (o *Orchestrator) recordMigration(ctx context.Context, pool *domain.Pool, migrated solana.PublicKey, sig string, already bool, log *zap.Logger) (*MigrationResult, error) {
	res := &MigrationResult{
		Mint:                pool.Mint,
		MigratedPoolAddress: migrated.String(),
		Signature:           sig,
		AlreadyMigrated:     already,
	}
	err := o.store.TransitionStatus(ctx, domain.StatusChange{
		Mint:                pool.Mint,
		From:                domain.StatusGraduated,
		To:                  domain.StatusMigrated,
		MigratedPoolAddress: res.MigratedPoolAddress,
		At:                  o.now(),
	})
	if errors.Is(err, storage.ErrConflict) {
		res.AlreadyMigrated = true
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("record migration: %w", err)
	}

	log.Info("Pool migrated",
		zap.String("migrated_pool", res.MigratedPoolAddress),
		zap.String("signature", sig))
	o.publish(events.PoolMigratedEvent{
		BaseEvent:           events.NewBase(events.PoolMigrated, pool.Mint),
		MigratedPoolAddress: res.MigratedPoolAddress,
		Signature:           sig,
	})
	return res, nil
}

// RetryMigrations повторяет миграцию для пулов, застрявших в graduated.
// Ошибки по отдельным пулам не прерывают проход.
func (o *Orchestrator) RetryMigrations(ctx context.Context, limit int) ([]*MigrationResult, error) {
	pools, err := o.store.ListPoolsByStatus(ctx, domain.StatusGraduated, limit)
	if err != nil {
		return nil, fmt.Errorf("list graduated pools: %w", err)
	}

	var (
		results []*MigrationResult
		errs    *multierror.Error
	)
	for _, pool := range pools {
		if ctx.Err() != nil {
			errs = multierror.Append(errs, ctx.Err())
			break
		}
		res, err := o.Migrate(ctx, pool.Mint)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", pool.Mint, err))
			continue
		}
		results = append(results, res)
	}
	return results, errs.ErrorOrNil()
}
