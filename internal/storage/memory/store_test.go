package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPool(t *testing.T, s *Store, mint string) {
	t.Helper()
	require.NoError(t, s.CreatePool(context.Background(), &domain.Pool{
		Mint:                   mint,
		Address:                "pool-" + mint,
		Reserves:               domain.Reserves{VirtualSol: 30, VirtualToken: 1e9},
		GraduationThresholdSol: 85,
		Status:                 domain.StatusBonding,
	}))
}

func buySettlement(mint, sig string, tokens float64, slot uint64) *domain.TradeSettlement {
	return &domain.TradeSettlement{
		Trade: &domain.Trade{
			PoolMint:  mint,
			Trader:    "wallet-1",
			Direction: domain.Buy,
			AmountIn:  1,
			AmountOut: tokens,
			Signature: sig,
		},
		Reserves:     domain.Reserves{VirtualSol: 31, VirtualToken: 1e9 - tokens, RealSol: 1},
		ReservesSlot: slot,
		HoldingDelta: decimal.NewFromFloat(tokens),
		Fees: []domain.FeeAccrual{
			{EarnerType: domain.EarnerSystem, AmountSol: decimal.RequireFromString("0.01")},
			{EarnerType: domain.EarnerCreator, AmountSol: decimal.RequireFromString("0.01")},
		},
		VolumeSol: decimal.NewFromInt(1),
	}
}

func TestApplyTrade_IdempotentBySignature(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedPool(t, s, "mint-a")

	require.NoError(t, s.ApplyTrade(ctx, buySettlement("mint-a", "sig-1", 1000, 10)))
	err := s.ApplyTrade(ctx, buySettlement("mint-a", "sig-1", 1000, 10))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	trades, err := s.ListTrades(ctx, "mint-a", 0)
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	h, err := s.GetHolding(ctx, "mint-a", "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, "1000", h.Balance.String())

	e, err := s.GetFeeEarner(ctx, "mint-a", domain.EarnerSystem)
	require.NoError(t, err)
	assert.Equal(t, "0.01", e.UnclaimedSol.String())

	p, err := s.GetPool(ctx, "mint-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.TradeCount)
	assert.Equal(t, "1", p.Volume24hSol.String())
}

func TestApplyTrade_HoldingFlooredAtZero(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedPool(t, s, "mint-a")

	require.NoError(t, s.ApplyTrade(ctx, buySettlement("mint-a", "sig-buy", 100, 1)))
	sell := buySettlement("mint-a", "sig-sell", 0, 2)
	sell.Trade.Direction = domain.Sell
	sell.HoldingDelta = decimal.NewFromInt(-250)
	require.NoError(t, s.ApplyTrade(ctx, sell))

	h, err := s.GetHolding(ctx, "mint-a", "wallet-1")
	require.NoError(t, err)
	assert.True(t, h.Balance.IsZero())
}

func TestApplyTrade_StaleReadDoesNotOverwriteReserves(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedPool(t, s, "mint-a")

	newer := buySettlement("mint-a", "sig-new", 2000, 20)
	newer.Reserves.VirtualSol = 40
	require.NoError(t, s.ApplyTrade(ctx, newer))

	older := buySettlement("mint-a", "sig-old", 1000, 15)
	older.Reserves.VirtualSol = 35
	require.NoError(t, s.ApplyTrade(ctx, older))

	p, err := s.GetPool(ctx, "mint-a")
	require.NoError(t, err)
	assert.Equal(t, 40.0, p.VirtualSol)
	assert.Equal(t, uint64(20), p.ReservesSlot)
	// объем и счетчик сделок складываются независимо от слота
	assert.Equal(t, "2", p.Volume24hSol.String())
	assert.Equal(t, int64(2), p.TradeCount)
}

func TestApplyTrade_QuotedDeltaKeepsSlot(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedPool(t, s, "mint-a")

	require.NoError(t, s.ApplyTrade(ctx, buySettlement("mint-a", "sig-1", 1000, 20)))

	// аккаунт не прочитан: резервы сдвигаются на оценку, слот прежний
	estimated := buySettlement("mint-a", "sig-2", 500, 0)
	estimated.ReservesDelta = &domain.Reserves{VirtualSol: 0.98, VirtualToken: -500, RealSol: 1}
	require.NoError(t, s.ApplyTrade(ctx, estimated))

	p, err := s.GetPool(ctx, "mint-a")
	require.NoError(t, err)
	assert.InDelta(t, 31.98, p.VirtualSol, 1e-9)
	assert.InDelta(t, 1e9-1500, p.VirtualToken, 1e-6)
	assert.InDelta(t, 2.0, p.RealSol, 1e-9)
	assert.Equal(t, uint64(20), p.ReservesSlot)

	// следующее чтение с цепи перезаписывает оценку
	fresh := buySettlement("mint-a", "sig-3", 100, 21)
	fresh.Reserves = domain.Reserves{VirtualSol: 33, VirtualToken: 1e9 - 1600, RealSol: 3}
	require.NoError(t, s.ApplyTrade(ctx, fresh))

	p, err = s.GetPool(ctx, "mint-a")
	require.NoError(t, err)
	assert.Equal(t, 3.0, p.RealSol)
	assert.Equal(t, uint64(21), p.ReservesSlot)
}

func TestTransitionStatus_SingleWinner(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedPool(t, s, "mint-a")

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.TransitionStatus(ctx, domain.StatusChange{
				Mint: "mint-a", From: domain.StatusBonding, To: domain.StatusGraduated,
			})
			if err == nil {
				atomic.AddInt32(&wins, 1)
				return
			}
			assert.ErrorIs(t, err, storage.ErrConflict)
			assert.ErrorIs(t, err, domain.ErrConcurrencyLost)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	p, err := s.GetPool(ctx, "mint-a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusGraduated, p.Status)
	assert.NotNil(t, p.GraduatedAt)
}

func TestListGraduationCandidates(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i, mint := range []string{"mint-a", "mint-b", "mint-c"} {
		seedPool(t, s, mint)
		if mint == "mint-a" {
			continue
		}
		st := buySettlement(mint, fmt.Sprintf("sig-%d", i), 100, 5)
		st.Reserves.RealSol = 90
		require.NoError(t, s.ApplyTrade(ctx, st))
	}
	require.NoError(t, s.TransitionStatus(ctx, domain.StatusChange{
		Mint: "mint-c", From: domain.StatusBonding, To: domain.StatusGraduated,
	}))

	pools, err := s.ListGraduationCandidates(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "mint-b", pools[0].Mint)
}

func TestTransitionStatus_RejectsIllegalMoves(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedPool(t, s, "mint-a")

	err := s.TransitionStatus(ctx, domain.StatusChange{Mint: "mint-a", From: domain.StatusBonding, To: domain.StatusMigrated})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = s.TransitionStatus(ctx, domain.StatusChange{Mint: "mint-a", From: domain.StatusGraduated, To: domain.StatusMigrated})
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestReserveVanity_Exclusive(t *testing.T) {
	ctx := context.Background()
	s := New()
	const available, callers = 5, 40

	for i := 0; i < available; i++ {
		require.NoError(t, s.InsertVanity(ctx, &domain.VanityKeypair{
			Suffix:    "pad",
			PublicKey: fmt.Sprintf("key-%dpad", i),
		}))
	}

	var (
		mu       sync.Mutex
		reserved = map[string]int{}
		misses   int
		wg       sync.WaitGroup
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kp, err := s.ReserveVanity(ctx, "pad", time.Now())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, storage.ErrNotFound)
				misses++
				return
			}
			reserved[kp.ID]++
		}()
	}
	wg.Wait()

	assert.Len(t, reserved, available)
	assert.Equal(t, callers-available, misses)
	for id, n := range reserved {
		assert.Equal(t, 1, n, "keypair %s reserved twice", id)
	}
}

func TestVanityTransitions(t *testing.T) {
	ctx := context.Background()
	s := New()
	kp := &domain.VanityKeypair{Suffix: "pad", PublicKey: "abcpad"}
	require.NoError(t, s.InsertVanity(ctx, kp))
	assert.ErrorIs(t, s.InsertVanity(ctx, &domain.VanityKeypair{Suffix: "pad", PublicKey: "abcpad"}), storage.ErrDuplicateKey)

	got, err := s.ReserveVanity(ctx, "pad", time.Now())
	require.NoError(t, err)

	released, err := s.ReleaseVanity(ctx, got.ID)
	require.NoError(t, err)
	assert.True(t, released)

	// release на available - no-op
	released, err = s.ReleaseVanity(ctx, got.ID)
	require.NoError(t, err)
	assert.False(t, released)

	assert.ErrorIs(t, s.MarkVanityUsed(ctx, got.ID, "mint"), storage.ErrConflict)

	got, err = s.ReserveVanity(ctx, "pad", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.MarkVanityUsed(ctx, got.ID, "mint"))

	// used не затирается release
	released, err = s.ReleaseVanity(ctx, got.ID)
	require.NoError(t, err)
	assert.False(t, released)

	stored, err := s.GetVanity(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VanityUsed, stored.Status)
	assert.Equal(t, "mint", stored.TokenMint)
}

func TestApplyClaim_AndResolveProvisional(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedPool(t, s, "mint-a")
	require.NoError(t, s.ApplyTrade(ctx, buySettlement("mint-a", "sig-1", 10, 1)))

	claim := &domain.FeeClaim{
		PoolMint:    "mint-a",
		EarnerType:  domain.EarnerSystem,
		ClaimedSol:  decimal.RequireFromString("0.02"),
		Provisional: true,
		Signature:   "claim-1",
	}
	require.NoError(t, s.ApplyClaim(ctx, claim))
	assert.ErrorIs(t, s.ApplyClaim(ctx, claim), storage.ErrDuplicateKey)

	e, err := s.GetFeeEarner(ctx, "mint-a", domain.EarnerSystem)
	require.NoError(t, err)
	assert.True(t, e.UnclaimedSol.IsZero())
	assert.Equal(t, "0.02", e.TotalClaimedSol.String())

	pending, err := s.ListProvisionalClaims(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, s.ResolveClaim(ctx, "claim-1", decimal.RequireFromString("0.01")))
	e, err = s.GetFeeEarner(ctx, "mint-a", domain.EarnerSystem)
	require.NoError(t, err)
	assert.Equal(t, "0.01", e.TotalClaimedSol.String())
	assert.Equal(t, "0.01", e.UnclaimedSol.String())

	pending, err = s.ListProvisionalClaims(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPrepared_ExpiryAndCAS(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()

	require.NoError(t, s.SavePrepared(ctx, &domain.PreparedTx{
		ID: "p1", Kind: domain.PreparedLaunch, Status: domain.PreparedPending,
		VanityKeypairID: "v1", ExpiresAt: now.Add(-time.Minute),
	}))
	require.NoError(t, s.SavePrepared(ctx, &domain.PreparedTx{
		ID: "p2", Kind: domain.PreparedLaunch, Status: domain.PreparedPending,
		ExpiresAt: now.Add(time.Hour),
	}))

	expired, err := s.ListExpiredPrepared(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "p1", expired[0].ID)

	found, err := s.FindPreparedByVanity(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "p1", found.ID)

	require.NoError(t, s.TransitionPrepared(ctx, "p2", domain.PreparedPending, domain.PreparedSubmitted, []string{"sig"}, ""))
	err = s.TransitionPrepared(ctx, "p2", domain.PreparedPending, domain.PreparedSubmitted, nil, "")
	assert.ErrorIs(t, err, storage.ErrConflict)
}
