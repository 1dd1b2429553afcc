package fees

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc"
	"github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc/solbctest"
	"github.com/rovshanmuradov/solana-launchpad/internal/curve"
	"github.com/rovshanmuradov/solana-launchpad/internal/dex/dbc"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/retry"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage/memory"
	"github.com/rovshanmuradov/solana-launchpad/internal/wallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	ledger   *Ledger
	store    *memory.Store
	chain    *solbctest.FakeChain
	treasury solana.PrivateKey
	sleeps   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	chain := solbctest.NewFakeChain(solana.PublicKey{})
	client := solbc.NewClient(chain, logger, solbc.Config{
		ConfirmTimeout: 200 * time.Millisecond,
		PollInterval:   time.Millisecond,
		Retry:          retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}, nil)

	f := &fixture{
		store:    memory.New(),
		chain:    chain,
		treasury: solana.NewWallet().PrivateKey,
	}
	f.ledger = NewLedger(Dependencies{
		Store:   f.store,
		Chain:   client,
		Program: chain.Program(),
		Keys:    wallet.NewKeyringFromKeys(solana.NewWallet().PrivateKey, f.treasury),
	}, logger, Config{MinClaimSol: 0.001, ClaimDelay: time.Second})
	f.ledger.sleep = func(context.Context, time.Duration) error {
		f.sleeps++
		return nil
	}
	return f
}

// seedPool пул в цепи и в хранилище с заданной системной комиссией.
func (f *fixture) seedPool(t *testing.T, partnerFeeSol float64, claimer solana.PublicKey) *domain.Pool {
	t.Helper()
	config := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	address, err := f.chain.Program().PoolAddress(config, mint)
	require.NoError(t, err)

	f.chain.SetConfig(config, &dbc.PoolConfig{
		FeeClaimer:          claimer,
		TradingFeeBps:       200,
		InitialVirtualSol:   curve.Lamports(30),
		InitialVirtualToken: curve.BaseUnits(1e9),
		TotalSupply:         curve.BaseUnits(1e9),
		MigrationThreshold:  curve.Lamports(85),
	})
	f.chain.SetPool(address, &dbc.VirtualPool{
		Config:       config,
		Mint:         mint,
		VirtualSol:   curve.Lamports(40),
		VirtualToken: curve.BaseUnits(7.5e8),
		RealSol:      curve.Lamports(10),
		PartnerFee:   curve.Lamports(partnerFeeSol),
	})

	pool := &domain.Pool{
		Mint:                   mint.String(),
		Address:                address.String(),
		ConfigAddress:          config.String(),
		Creator:                solana.NewWallet().PublicKey().String(),
		Name:                   "Fee Pool",
		Ticker:                 "FEE",
		GraduationThresholdSol: 85,
		Status:                 domain.StatusBonding,
	}
	require.NoError(t, f.store.CreatePool(context.Background(), pool))
	return pool
}

func TestGetClaimable(t *testing.T) {
	f := newFixture(t)
	pool := f.seedPool(t, 0.0125, f.treasury.PublicKey())

	claimable, err := f.ledger.GetClaimable(context.Background(), pool.Address)
	require.NoError(t, err)
	assert.True(t, claimable.Equal(decimal.RequireFromString("0.0125")), claimable.String())

	_, err = f.ledger.GetClaimable(context.Background(), solana.NewWallet().PublicKey().String())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.ledger.GetClaimable(context.Background(), "???")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestClaim_RecordsChainDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := f.seedPool(t, 0.02, f.treasury.PublicKey())

	res, err := f.ledger.Claim(ctx, pool.Address)
	require.NoError(t, err)
	assert.False(t, res.Provisional)
	assert.True(t, res.ClaimedSol.Equal(decimal.RequireFromString("0.02")), res.ClaimedSol.String())
	assert.Equal(t, 1, f.chain.Claims())

	account := f.chain.Pool(solana.MustPublicKeyFromBase58(pool.Address))
	assert.Zero(t, account.PartnerFee)

	earner, err := f.store.GetFeeEarner(ctx, pool.Mint, domain.EarnerSystem)
	require.NoError(t, err)
	assert.True(t, earner.TotalClaimedSol.Equal(res.ClaimedSol))

	claim, err := f.store.GetClaimBySignature(ctx, res.Signature)
	require.NoError(t, err)
	assert.Equal(t, pool.Address, claim.PoolAddress)

	_, err = f.ledger.Claim(ctx, pool.Address)
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "nothing left to claim")
}

func TestClaim_ProvisionalWhenPostReadFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := f.seedPool(t, 0.03, f.treasury.PublicKey())

	// первое чтение проходит, повторное после вывода - нет
	f.chain.FailReads(nil, solbctest.ErrInjected, solbctest.ErrInjected, solbctest.ErrInjected)

	res, err := f.ledger.Claim(ctx, pool.Address)
	require.NoError(t, err)
	assert.True(t, res.Provisional)
	assert.True(t, res.ClaimedSol.Equal(decimal.RequireFromString("0.03")))

	pending, err := f.store.ListProvisionalClaims(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	resolved, err := f.ledger.ReconcileProvisional(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	pending, err = f.store.ListProvisionalClaims(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	claim, err := f.store.GetClaimBySignature(ctx, res.Signature)
	require.NoError(t, err)
	assert.False(t, claim.Provisional)
	assert.True(t, claim.ClaimedSol.Equal(decimal.RequireFromString("0.03")))
}

func TestBatchClaim_DryRun(t *testing.T) {
	f := newFixture(t)
	var pools []string
	for _, fee := range []float64{0.0005, 0.01, 0.02} {
		pools = append(pools, f.seedPool(t, fee, f.treasury.PublicKey()).Address)
	}

	res, err := f.ledger.BatchClaim(context.Background(), pools, 0.001, true)
	require.NoError(t, err)
	require.Len(t, res.Results, 3)

	assert.Equal(t, ItemSkipped, res.Results[0].Status)
	assert.Equal(t, ReasonBelowMinimum, res.Results[0].Reason)
	for _, item := range res.Results[1:] {
		assert.Equal(t, ItemSkipped, item.Status)
		assert.Equal(t, ReasonDryRun, item.Reason)
	}
	assert.True(t, res.Summary.TotalClaimedSol.IsZero())
	assert.Equal(t, BatchSummary{Processed: 3, Skipped: 3, TotalClaimedSol: decimal.Zero}, res.Summary)
	assert.Zero(t, f.chain.Sends(), "dry run issues no transactions")
}

func TestBatchClaim_IsolatesFailures(t *testing.T) {
	f := newFixture(t)
	pools := []string{
		f.seedPool(t, 0.01, f.treasury.PublicKey()).Address,
		// чужой fee claimer - программа отклонит вывод
		f.seedPool(t, 0.02, solana.NewWallet().PublicKey()).Address,
		f.seedPool(t, 0.03, f.treasury.PublicKey()).Address,
	}

	res, err := f.ledger.BatchClaim(context.Background(), append(pools, pools[0]), 0, false)
	require.NoError(t, err)
	require.Len(t, res.Results, 3, "duplicates are processed once")

	assert.Equal(t, ItemClaimed, res.Results[0].Status)
	assert.Equal(t, ItemFailed, res.Results[1].Status)
	assert.Contains(t, res.Results[1].Reason, "on-chain failure")
	assert.Equal(t, ItemClaimed, res.Results[2].Status)

	assert.Equal(t, 3, res.Summary.Processed)
	assert.Equal(t, 2, res.Summary.Successful)
	assert.Equal(t, 1, res.Summary.Failed)
	assert.True(t, res.Summary.TotalClaimedSol.Equal(decimal.RequireFromString("0.04")), res.Summary.TotalClaimedSol.String())
	assert.Equal(t, 2, f.chain.Claims())
	assert.Equal(t, 2, f.sleeps, "delay after each successful claim")
}

func TestBatchClaim_AllKnownPoolsWhenListEmpty(t *testing.T) {
	f := newFixture(t)
	f.seedPool(t, 0.01, f.treasury.PublicKey())
	f.seedPool(t, 0.0001, f.treasury.PublicKey())

	res, err := f.ledger.BatchClaim(context.Background(), nil, 0, true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.Processed)
	assert.Equal(t, 2, res.Summary.Skipped)
}

func TestClaim_TimeoutRecordedAndReconciled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := f.seedPool(t, 0.02, f.treasury.PublicKey())

	// вывод исполняется в цепи, но подтверждение не приходит вовремя
	f.chain.HideStatuses(true)
	_, err := f.ledger.Claim(ctx, pool.Address)
	require.ErrorIs(t, err, domain.ErrConfirmationTimeout)
	assert.Equal(t, 1, f.chain.Claims())

	pending, err := f.store.ListProvisionalClaims(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].ClaimedSol.Equal(decimal.RequireFromString("0.02")), pending[0].ClaimedSol.String())

	earner, err := f.store.GetFeeEarner(ctx, pool.Mint, domain.EarnerSystem)
	require.NoError(t, err)
	assert.True(t, earner.TotalClaimedSol.Equal(decimal.RequireFromString("0.02")))

	f.chain.RevealStatuses()
	resolved, err := f.ledger.ReconcileProvisional(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	claim, err := f.store.GetClaimBySignature(ctx, pending[0].Signature)
	require.NoError(t, err)
	assert.False(t, claim.Provisional)
	assert.True(t, claim.ClaimedSol.Equal(decimal.RequireFromString("0.02")))
}

func TestReconcileProvisional_VoidsClaimNeverObserved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := f.seedPool(t, 0.02, f.treasury.PublicKey())

	f.chain.HideStatuses(true)
	_, err := f.ledger.Claim(ctx, pool.Address)
	require.ErrorIs(t, err, domain.ErrConfirmationTimeout)

	// до истечения срока запись остается предварительной
	resolved, err := f.ledger.ReconcileProvisional(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, resolved)

	f.ledger.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	resolved, err = f.ledger.ReconcileProvisional(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	earner, err := f.store.GetFeeEarner(ctx, pool.Mint, domain.EarnerSystem)
	require.NoError(t, err)
	assert.True(t, earner.TotalClaimedSol.IsZero(), earner.TotalClaimedSol.String())

	pending, err := f.store.ListProvisionalClaims(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
