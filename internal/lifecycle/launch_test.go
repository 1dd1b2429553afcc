package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc/solbctest"
	"github.com/rovshanmuradov/solana-launchpad/internal/dex/dbc"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vanityStatus(t *testing.T, h *harness, id string) domain.VanityStatus {
	t.Helper()
	kp, err := h.vanity.Get(context.Background(), id)
	require.NoError(t, err)
	return kp.Status
}

func TestCreatePool_Immediate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.orch.CreatePool(ctx, CreatePoolRequest{
		Name:          "Moon Cat",
		Ticker:        "MCAT",
		ImageURL:      "https://img.example/mcat.png",
		CreatorWallet: h.agent.PublicKey().String(),
		TradingFeeBps: 150,
		Mode:          LaunchImmediate,
	})
	require.NoError(t, err)
	assert.False(t, res.Vanity)
	assert.Len(t, res.Signatures, 2)
	assert.Empty(t, res.PreparedID)

	pool := res.Pool
	require.NotNil(t, pool)
	assert.Equal(t, res.MintAddress, pool.Mint)
	assert.Equal(t, domain.StatusBonding, pool.Status)
	assert.Equal(t, uint16(150), pool.TradingFeeBps)
	assert.Equal(t, h.agent.PublicKey().String(), pool.FeeRecipient, "fee recipient defaults to creator")
	assert.InDelta(t, 30, pool.VirtualSol, 1e-9)
	assert.InDelta(t, 1e9, pool.VirtualToken, 1e-3)
	assert.Zero(t, pool.RealSol)
	assert.NotZero(t, pool.ReservesSlot)

	account := h.chain.Pool(solana.MustPublicKeyFromBase58(pool.Address))
	require.NotNil(t, account)
	assert.Equal(t, res.MintAddress, account.Mint.String())
	assert.Equal(t, 1, h.events.count(events.PoolCreated))
}

func TestCreatePool_ImmediateWithVanity(t *testing.T) {
	h := newHarness(t)
	keys := h.seedVanity(t, 1)

	res, err := h.orch.CreatePool(context.Background(), CreatePoolRequest{
		Name:             "Vanity",
		Ticker:           "VAN",
		CreatorWallet:    h.agent.PublicKey().String(),
		UseVanityAddress: true,
		Mode:             LaunchImmediate,
	})
	require.NoError(t, err)
	assert.True(t, res.Vanity)
	assert.Equal(t, keys[0].PublicKey().String(), res.MintAddress)

	available, err := h.vanity.Available(context.Background(), testSuffix)
	require.NoError(t, err)
	assert.Zero(t, available)
}

func TestCreatePool_VanityExhaustedFallsBackToRandomMint(t *testing.T) {
	h := newHarness(t)

	res, err := h.orch.CreatePool(context.Background(), CreatePoolRequest{
		Name:             "Plain",
		Ticker:           "PLN",
		CreatorWallet:    h.agent.PublicKey().String(),
		UseVanityAddress: true,
		Mode:             LaunchImmediate,
	})
	require.NoError(t, err)
	assert.False(t, res.Vanity)
	assert.NotEmpty(t, res.MintAddress)
}

func TestCreatePool_TransientSendRetried(t *testing.T) {
	h := newHarness(t)
	h.chain.FailSends(solbctest.ErrInjected)

	pool := h.launch(t)
	assert.Equal(t, domain.StatusBonding, pool.Status)
}

func TestCreatePool_ReleasesVanityOnFailure(t *testing.T) {
	h := newHarness(t)
	h.seedVanity(t, 1)
	errs := make([]error, 20)
	for i := range errs {
		errs[i] = solbctest.ErrInjected
	}
	h.chain.FailSends(errs...)

	_, err := h.orch.CreatePool(context.Background(), CreatePoolRequest{
		Name:             "Doomed",
		Ticker:           "DOOM",
		CreatorWallet:    h.agent.PublicKey().String(),
		UseVanityAddress: true,
		Mode:             LaunchImmediate,
	})
	require.Error(t, err)
	var tradeErr *domain.TradeError
	assert.True(t, errors.As(err, &tradeErr))

	available, err := h.vanity.Available(context.Background(), testSuffix)
	require.NoError(t, err)
	assert.Equal(t, int64(1), available, "reservation must return to the pool")
}

func TestCreatePool_LandedLaunchKeepsVanityForReconcile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	keys := h.seedVanity(t, 1)
	// обе транзакции проходят, но аккаунт пула не читается
	h.chain.FailReads(solbctest.ErrInjected, solbctest.ErrInjected)

	_, err := h.orch.CreatePool(ctx, CreatePoolRequest{
		Name:             "Stranded",
		Ticker:           "STR",
		CreatorWallet:    h.agent.PublicKey().String(),
		UseVanityAddress: true,
		Mode:             LaunchImmediate,
	})
	require.Error(t, err)
	mint := keys[0].PublicKey().String()

	available, err := h.vanity.Available(ctx, testSuffix)
	require.NoError(t, err)
	assert.Zero(t, available, "landed mint must not return to the pool")

	records, err := h.store.ListPrepared(ctx, domain.PreparedLaunch, domain.PreparedSubmitted, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, mint, records[0].PoolMint)
	assert.Len(t, records[0].Signatures, 2)
	assert.NotEmpty(t, records[0].VanityKeypairID)

	stats, err := h.orch.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Settled)

	pool, err := h.store.GetPool(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBonding, pool.Status)
	assert.Equal(t, domain.VanityUsed, vanityStatus(t, h, records[0].VanityKeypairID))

	record, err := h.store.GetPrepared(ctx, records[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PreparedCompleted, record.Status)
}

func TestCreatePool_Validation(t *testing.T) {
	h := newHarness(t)
	creator := h.agent.PublicKey().String()

	tests := []struct {
		name string
		req  CreatePoolRequest
	}{
		{"empty name", CreatePoolRequest{Ticker: "X", CreatorWallet: creator}},
		{"long ticker", CreatePoolRequest{Name: "X", Ticker: "TOOLONGTICKER", CreatorWallet: creator}},
		{"bad creator", CreatePoolRequest{Name: "X", Ticker: "X", CreatorWallet: "nope"}},
		{"fee above max", CreatePoolRequest{Name: "X", Ticker: "X", CreatorWallet: creator, TradingFeeBps: 2000}},
		{"unknown mode", CreatePoolRequest{Name: "X", Ticker: "X", CreatorWallet: creator, Mode: "later"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.orch.CreatePool(context.Background(), tt.req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
	assert.Zero(t, h.chain.Sends())
}

func deferredLaunch(t *testing.T, h *harness, creator solana.PrivateKey, vanity bool) *CreatePoolResult {
	t.Helper()
	res, err := h.orch.CreatePool(context.Background(), CreatePoolRequest{
		Name:             "Deferred",
		Ticker:           "DEF",
		CreatorWallet:    creator.PublicKey().String(),
		UseVanityAddress: vanity,
		Mode:             LaunchDeferred,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.PreparedID)
	require.Len(t, res.UnsignedTransactions, 2)
	return res
}

func TestCreatePool_DeferredThenComplete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedVanity(t, 1)
	creator := solana.NewWallet().PrivateKey

	prepared := deferredLaunch(t, h, creator, true)
	assert.True(t, prepared.Vanity)
	assert.Equal(t, []string{creator.PublicKey().String()}, prepared.OutstandingSigners)
	assert.Zero(t, h.chain.Sends())

	_, err := h.store.GetPool(ctx, prepared.MintAddress)
	assert.Error(t, err, "pool row is written only after broadcast")

	var signed []string
	for _, tx := range prepared.UnsignedTransactions {
		signed = append(signed, signPrepared(t, tx, creator, nil))
	}
	res, err := h.orch.CompleteLaunch(ctx, prepared.PreparedID, signed)
	require.NoError(t, err)
	require.NotNil(t, res.Pool)
	assert.Equal(t, prepared.MintAddress, res.Pool.Mint)
	assert.Equal(t, creator.PublicKey().String(), res.Pool.Creator)
	assert.Len(t, res.Signatures, 2)

	record, err := h.store.GetPrepared(ctx, prepared.PreparedID)
	require.NoError(t, err)
	assert.Equal(t, domain.PreparedCompleted, record.Status)
	assert.Equal(t, domain.VanityUsed, vanityStatus(t, h, record.VanityKeypairID))

	_, err = h.orch.CompleteLaunch(ctx, prepared.PreparedID, signed)
	assert.ErrorIs(t, err, domain.ErrConcurrencyLost)
}

func TestCompleteLaunch_RejectsTamperedAndWrongCount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	creator := solana.NewWallet().PrivateKey
	prepared := deferredLaunch(t, h, creator, false)

	_, err := h.orch.CompleteLaunch(ctx, prepared.PreparedID, []string{"only-one"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	tampered := []string{
		signPrepared(t, prepared.UnsignedTransactions[0], creator, nil),
		signPrepared(t, prepared.UnsignedTransactions[1], creator, func(tx *solana.Transaction) {
			tx.Message.RecentBlockhash = solana.Hash{1, 2, 3}
		}),
	}
	_, err = h.orch.CompleteLaunch(ctx, prepared.PreparedID, tampered)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, h.chain.Sends())

	record, err := h.store.GetPrepared(ctx, prepared.PreparedID)
	require.NoError(t, err)
	assert.Equal(t, domain.PreparedPending, record.Status, "record stays open for a correct submission")
}

func TestCompleteLaunch_RejectedReleasesVanity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedVanity(t, 1)
	creator := solana.NewWallet().PrivateKey
	prepared := deferredLaunch(t, h, creator, true)

	h.chain.FailInstruction(dbc.KindInitializePool, "AccountNotInitialized")
	var signed []string
	for _, tx := range prepared.UnsignedTransactions {
		signed = append(signed, signPrepared(t, tx, creator, nil))
	}
	_, err := h.orch.CompleteLaunch(ctx, prepared.PreparedID, signed)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOnChainFailure)

	record, err := h.store.GetPrepared(ctx, prepared.PreparedID)
	require.NoError(t, err)
	assert.Equal(t, domain.PreparedFailed, record.Status)
	assert.Equal(t, domain.VanityAvailable, vanityStatus(t, h, record.VanityKeypairID))
}

func TestCompleteLaunch_TimeoutReconciled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	creator := solana.NewWallet().PrivateKey
	prepared := deferredLaunch(t, h, creator, false)

	var signed []string
	for _, tx := range prepared.UnsignedTransactions {
		signed = append(signed, signPrepared(t, tx, creator, nil))
	}

	h.chain.HideStatuses(true)
	_, err := h.orch.CompleteLaunch(ctx, prepared.PreparedID, signed)
	require.Error(t, err)
	assert.True(t, domain.IsUnknownOutcome(err))

	stats, err := h.orch.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)

	// клиент сам доотправил вторую транзакцию
	h.chain.RevealStatuses()
	tx, err := decodeTx(signed[1])
	require.NoError(t, err)
	_, err = h.chain.SendTransactionWithOpts(ctx, tx, skipPreflight)
	require.NoError(t, err)

	stats, err = h.orch.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Settled)

	pool, err := h.store.GetPool(ctx, prepared.MintAddress)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBonding, pool.Status)
	assert.Equal(t, 1, h.events.count(events.PoolCreated))
}

func TestReconcile_UnfinishedLaunchFailsAfterExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedVanity(t, 1)
	creator := solana.NewWallet().PrivateKey
	prepared := deferredLaunch(t, h, creator, true)

	var signed []string
	for _, tx := range prepared.UnsignedTransactions {
		signed = append(signed, signPrepared(t, tx, creator, nil))
	}
	h.chain.HideStatuses(true)
	_, err := h.orch.CompleteLaunch(ctx, prepared.PreparedID, signed)
	require.Error(t, err)

	h.orch.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	stats, err := h.orch.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	record, err := h.store.GetPrepared(ctx, prepared.PreparedID)
	require.NoError(t, err)
	assert.Equal(t, domain.PreparedFailed, record.Status)
	assert.Equal(t, domain.VanityAvailable, vanityStatus(t, h, record.VanityKeypairID))
}

func TestSweepExpired_ReleasesPreparedVanity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedVanity(t, 1)
	prepared := deferredLaunch(t, h, solana.NewWallet().PrivateKey, true)

	stats, err := h.orch.SweepExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, stats.Expired)

	stats, err = h.orch.SweepExpired(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, 1, stats.Released)

	record, err := h.store.GetPrepared(ctx, prepared.PreparedID)
	require.NoError(t, err)
	assert.Equal(t, domain.PreparedExpired, record.Status)
	assert.Equal(t, domain.VanityAvailable, vanityStatus(t, h, record.VanityKeypairID))

	_, err = h.orch.CompleteLaunch(ctx, prepared.PreparedID, nil)
	assert.ErrorIs(t, err, ErrPreparedExpired)
}

func TestSweepExpired_StaleReservations(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.VanityReservationTTL = time.Nanosecond })
	ctx := context.Background()
	h.seedVanity(t, 3)

	minted, err := h.vanity.Reserve(ctx, testSuffix)
	require.NoError(t, err)
	orphan, err := h.vanity.Reserve(ctx, testSuffix)
	require.NoError(t, err)
	// любой аккаунт по адресу mint означает, что пара уже потрачена
	h.chain.SetConfig(minted.PublicKey, &dbc.PoolConfig{})

	inFlight := deferredLaunch(t, h, solana.NewWallet().PrivateKey, true)
	time.Sleep(5 * time.Millisecond)

	stats, err := h.orch.SweepExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MarkedUsed)
	assert.Equal(t, 1, stats.Released)
	assert.Equal(t, 1, stats.StillInFlight)

	assert.Equal(t, domain.VanityUsed, vanityStatus(t, h, minted.ID))
	assert.Equal(t, domain.VanityAvailable, vanityStatus(t, h, orphan.ID))

	record, err := h.store.GetPrepared(ctx, inFlight.PreparedID)
	require.NoError(t, err)
	assert.Equal(t, domain.VanityReserved, vanityStatus(t, h, record.VanityKeypairID))
}
