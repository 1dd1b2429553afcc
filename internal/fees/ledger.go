// Package fees - леджер системных комиссий: чтение невыведенной суммы из цепи,
// вывод на treasury и пакетный вывод по списку пулов.
package fees

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc"
	"github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/solana-launchpad/internal/curve"
	"github.com/rovshanmuradov/solana-launchpad/internal/dex/dbc"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/events"
	"github.com/rovshanmuradov/solana-launchpad/internal/retry"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
	applog "github.com/rovshanmuradov/solana-launchpad/internal/utils/logger"
	"github.com/rovshanmuradov/solana-launchpad/internal/wallet"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Settlement часть расчетного клиента, нужная леджеру.
type Settlement interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	Confirm(ctx context.Context, sig solana.Signature, target rpc.CommitmentType, timeout time.Duration) (*transaction.Confirmation, error)
	GetAccountState(ctx context.Context, address solana.PublicKey) (*solbc.AccountState, error)
}

var _ Settlement = (*solbc.Client)(nil)

// Store хранилище, с которым работает леджер.
type Store interface {
	storage.PoolStore
	storage.LedgerStore
}

type Config struct {
	MinClaimSol float64
	ClaimDelay  time.Duration
	// ProvisionalExpiry срок, после которого так и не увиденный в цепи вывод обнуляется.
	ProvisionalExpiry time.Duration
	ComputeUnits      uint32
	PriorityFeeSol    float64
}

type Dependencies struct {
	Store   Store
	Chain   Settlement
	Program *dbc.Program
	Keys    *wallet.Keyring
	Events  events.Publisher
}

// Ledger вывод комиссий. Все выводы подписывает treasury.
type Ledger struct {
	store   Store
	chain   Settlement
	program *dbc.Program
	keys    *wallet.Keyring
	events  events.Publisher
	logger  *zap.Logger
	config  Config
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

func NewLedger(deps Dependencies, logger *zap.Logger, config Config) *Ledger {
	publisher := deps.Events
	if publisher == nil {
		publisher = events.Discard
	}
	program := deps.Program
	if program == nil {
		program = dbc.New(solana.PublicKey{})
	}
	if config.MinClaimSol <= 0 {
		config.MinClaimSol = 0.001
	}
	if config.ProvisionalExpiry <= 0 {
		config.ProvisionalExpiry = 10 * time.Minute
	}
	return &Ledger{
		store:   deps.Store,
		chain:   deps.Chain,
		program: program,
		keys:    deps.Keys,
		events:  publisher,
		logger:  logger.Named("fees"),
		config:  config,
		sleep:   retry.Sleep,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ClaimResult итог вывода по одному пулу.
type ClaimResult struct {
	PoolAddress string          `json:"poolAddress"`
	Mint        string          `json:"mintAddress"`
	ClaimedSol  decimal.Decimal `json:"claimedSol"`
	Signature   string          `json:"signature"`
	// Provisional сумма записана до повторного чтения аккаунта.
	Provisional bool `json:"provisional,omitempty"`
}

// GetClaimable невыведенная системная комиссия по аккаунту пула в цепи.
func (l *Ledger) GetClaimable(ctx context.Context, poolAddress string) (decimal.Decimal, error) {
	address, err := parseAddress(poolAddress)
	if err != nil {
		return decimal.Zero, err
	}
	account, err := l.readPool(ctx, address)
	if err != nil {
		return decimal.Zero, err
	}
	return account.ClaimablePartnerFee(), nil
}

func (l *Ledger) readPool(ctx context.Context, address solana.PublicKey) (*dbc.VirtualPool, error) {
	state, err := l.chain.GetAccountState(ctx, address)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, domain.Invalidf("pool account %s not found", address)
	}
	account, err := dbc.DecodeVirtualPool(state.Data)
	if err != nil {
		return nil, fmt.Errorf("decode pool account %s: %w", address, err)
	}
	return account, nil
}

// Claim выводит всю системную комиссию пула. Выведенная сумма - разница чтений
// аккаунта до и после; если второе чтение не удалось, записывается сумма до вывода
// с пометкой Provisional.
func (l *Ledger) Claim(ctx context.Context, poolAddress string) (*ClaimResult, error) {
	log := applog.WithOperation(l.logger, "claim_fees").With(zap.String("pool", poolAddress))

	address, err := parseAddress(poolAddress)
	if err != nil {
		return nil, err
	}
	pool, err := l.store.GetPoolByAddress(ctx, poolAddress)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.Invalidf("unknown pool %s", poolAddress)
	}
	if err != nil {
		return nil, fmt.Errorf("load pool: %w", err)
	}

	before, err := l.readPool(ctx, address)
	if err != nil {
		return nil, err
	}
	if before.PartnerFee == 0 {
		return nil, domain.Invalidf("pool %s has no claimable fees", poolAddress)
	}

	treasury, err := l.keys.Treasury()
	if err != nil {
		return nil, err
	}
	signer, err := l.keys.Signer(treasury)
	if err != nil {
		return nil, err
	}
	config, err := solana.PublicKeyFromBase58(pool.ConfigAddress)
	if err != nil {
		return nil, fmt.Errorf("config address: %w", err)
	}
	mint, err := solana.PublicKeyFromBase58(pool.Mint)
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}

	// MaxAmount ограничивает вывод прочитанной суммой: запись не может занизить вывод
	ix, err := l.program.ClaimPartnerFee(config, address, mint, treasury, treasury, dbc.ClaimFeeArgs{MaxAmount: before.PartnerFee})
	if err != nil {
		return nil, err
	}
	blockhash, err := l.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	prepared, err := transaction.NewBuilder().
		SetComputeBudget(l.config.ComputeUnits, l.config.PriorityFeeSol).
		AddInstruction(ix).
		SetPayer(treasury).
		AddSigner(signer).
		Build(blockhash)
	if err != nil {
		return nil, err
	}

	sig, err := l.chain.Submit(ctx, prepared.Tx)
	if err != nil {
		return nil, &domain.TradeError{Op: "claim fees", Reason: "claim transaction rejected", Pool: pool, Err: err}
	}
	if _, err := l.chain.Confirm(ctx, sig, "", 0); err != nil {
		if domain.IsUnknownOutcome(err) {
			// транзакция могла пройти: сумма до вывода записывается предварительно до сверки
			l.recordUnconfirmed(ctx, pool, poolAddress, sig, before.PartnerFee, log)
		}
		return nil, &domain.TradeError{Op: "claim fees", Reason: "claim not confirmed", Pool: pool, Signature: sig.String(), Err: err}
	}

	res := &ClaimResult{PoolAddress: poolAddress, Mint: pool.Mint, Signature: sig.String()}
	after, err := l.readPool(ctx, address)
	if err != nil {
		log.Warn("Post-claim read failed, recording provisional amount", zap.Error(err))
		res.ClaimedSol = curve.LamportsToDecimal(before.PartnerFee)
		res.Provisional = true
	} else {
		var delta uint64
		if before.PartnerFee > after.PartnerFee {
			delta = before.PartnerFee - after.PartnerFee
		}
		res.ClaimedSol = curve.LamportsToDecimal(delta)
	}

	err = l.store.ApplyClaim(ctx, &domain.FeeClaim{
		ID:          uuid.NewString(),
		PoolMint:    pool.Mint,
		PoolAddress: poolAddress,
		EarnerType:  domain.EarnerSystem,
		ClaimedSol:  res.ClaimedSol,
		Provisional: res.Provisional,
		Signature:   res.Signature,
	})
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return nil, &domain.TradeError{Op: "record claim", Reason: "confirmed on chain but not recorded", Pool: pool,
			Signature: res.Signature, Err: err}
	}

	log.Info("Fees claimed",
		zap.String("claimed_sol", res.ClaimedSol.String()),
		zap.String("signature", res.Signature),
		zap.Bool("provisional", res.Provisional))
	if err := l.events.Publish(events.FeesClaimedEvent{
		BaseEvent:   events.NewBase(events.FeesClaimed, pool.Mint),
		PoolAddress: poolAddress,
		ClaimedSol:  res.ClaimedSol,
		Signature:   res.Signature,
		Provisional: res.Provisional,
	}); err != nil {
		log.Debug("Event not published", zap.Error(err))
	}
	return res, nil
}

func (l *Ledger) recordUnconfirmed(ctx context.Context, pool *domain.Pool, poolAddress string, sig solana.Signature, lamports uint64, log *zap.Logger) {
	err := l.store.ApplyClaim(ctx, &domain.FeeClaim{
		ID:          uuid.NewString(),
		PoolMint:    pool.Mint,
		PoolAddress: poolAddress,
		EarnerType:  domain.EarnerSystem,
		ClaimedSol:  curve.LamportsToDecimal(lamports),
		Provisional: true,
		Signature:   sig.String(),
	})
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		log.Error("Unconfirmed claim not recorded", zap.String("signature", sig.String()), zap.Error(err))
		return
	}
	log.Warn("Claim outcome unknown, recorded as provisional", zap.String("signature", sig.String()))
}

// ReconcileProvisional перепроверяет предварительные выводы на уровне finalized.
// Подтвержденный вывод фиксирует записанную сумму, отклоненный обнуляет её.
// Вывод, не увиденный в цепи за ProvisionalExpiry, тоже обнуляется: его blockhash истек.
func (l *Ledger) ReconcileProvisional(ctx context.Context, limit int) (int, error) {
	claims, err := l.store.ListProvisionalClaims(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list provisional claims: %w", err)
	}
	resolved := 0
	for _, claim := range claims {
		sig, err := solana.SignatureFromBase58(claim.Signature)
		if err != nil {
			return resolved, fmt.Errorf("claim %s signature: %w", claim.ID, err)
		}
		amount := claim.ClaimedSol
		_, err = l.chain.Confirm(ctx, sig, rpc.CommitmentFinalized, 0)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrOnChainFailure):
			amount = decimal.Zero
		case domain.IsUnknownOutcome(err) && ctx.Err() == nil && l.now().Sub(claim.CreatedAt) > l.config.ProvisionalExpiry:
			l.logger.Warn("Provisional claim never observed on chain, voiding",
				zap.String("signature", claim.Signature), zap.Time("created_at", claim.CreatedAt))
			amount = decimal.Zero
		default:
			l.logger.Debug("Provisional claim still unresolved", zap.String("signature", claim.Signature), zap.Error(err))
			continue
		}
		if err := l.store.ResolveClaim(ctx, claim.Signature, amount); err != nil {
			return resolved, fmt.Errorf("resolve claim %s: %w", claim.Signature, err)
		}
		resolved++
	}
	return resolved, nil
}

func parseAddress(value string) (solana.PublicKey, error) {
	if value == "" {
		return solana.PublicKey{}, domain.Invalidf("pool address is required")
	}
	address, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, domain.Invalidf("invalid pool address %q", value)
	}
	return address, nil
}
