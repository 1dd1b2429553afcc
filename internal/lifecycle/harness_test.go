package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc"
	"github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc/solbctest"
	"github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/solana-launchpad/internal/curve"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/events"
	"github.com/rovshanmuradov/solana-launchpad/internal/retry"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage/memory"
	"github.com/rovshanmuradov/solana-launchpad/internal/vanity"
	"github.com/rovshanmuradov/solana-launchpad/internal/wallet"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSuffix = "pump"

var skipPreflight = rpc.TransactionOpts{SkipPreflight: true}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) count(t events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type() == t {
			n++
		}
	}
	return n
}

type harness struct {
	orch   *Orchestrator
	store  *memory.Store
	chain  *solbctest.FakeChain
	vanity *vanity.Pool
	sealer *vanity.Sealer
	events *recorder

	deployer solana.PrivateKey
	treasury solana.PrivateKey
	agent    solana.PrivateKey
}

func testConfig() Config {
	return Config{
		InitialVirtualSol:      30,
		InitialVirtualToken:    1e9,
		TotalSupply:            1e9,
		GraduationThresholdSol: 85,
		DefaultTradingFeeBps:   200,
		MaxTradingFeeBps:       1000,
		CreatorFeeShareBps:     5000,
		MaxSlippageBps:         5000,
		LaunchMaxAttempts:      2,
		VerifyAttempts:         3,
		VerifyDelay:            time.Millisecond,
		PreparedTTL:            15 * time.Minute,
		VanitySuffix:           testSuffix,
		VanityReservationTTL:   30 * time.Minute,
		ReconcileTimeout:       50 * time.Millisecond,
	}
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	store := memory.New()
	chain := solbctest.NewFakeChain(solana.PublicKey{})
	client := solbc.NewClient(chain, logger, solbc.Config{
		ConfirmTimeout: 200 * time.Millisecond,
		PollInterval:   time.Millisecond,
		Retry:          retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}, nil)

	sealer, err := vanity.NewSealer("test-secret")
	require.NoError(t, err)
	pool := vanity.NewPool(store, sealer, logger)

	h := &harness{
		store:    store,
		chain:    chain,
		vanity:   pool,
		sealer:   sealer,
		events:   &recorder{},
		deployer: solana.NewWallet().PrivateKey,
		treasury: solana.NewWallet().PrivateKey,
		agent:    solana.NewWallet().PrivateKey,
	}
	h.orch = New(Dependencies{
		Store:   store,
		Chain:   client,
		Program: chain.Program(),
		Keys:    wallet.NewKeyringFromKeys(h.deployer, h.treasury, h.agent),
		Vanity:  pool,
		Events:  h.events,
	}, logger, cfg)
	return h
}

func (h *harness) seedVanity(t *testing.T, n int) []solana.PrivateKey {
	t.Helper()
	var keys []solana.PrivateKey
	for i := 0; i < n; i++ {
		key := solana.NewWallet().PrivateKey
		sealed, err := h.sealer.Seal(key)
		require.NoError(t, err)
		require.NoError(t, h.store.InsertVanity(context.Background(), &domain.VanityKeypair{
			Suffix:              testSuffix,
			PublicKey:           key.PublicKey().String(),
			EncryptedPrivateKey: sealed,
		}))
		keys = append(keys, key)
	}
	return keys
}

// launch создает пул агентом в immediate режиме.
func (h *harness) launch(t *testing.T) *domain.Pool {
	t.Helper()
	res, err := h.orch.CreatePool(context.Background(), CreatePoolRequest{
		Name:          "Test Token",
		Ticker:        "TEST",
		CreatorWallet: h.agent.PublicKey().String(),
		Mode:          LaunchImmediate,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Pool)
	return res.Pool
}

// setRealSol подменяет реальные резервы пула в цепи, виртуальные не трогает.
func (h *harness) setRealSol(t *testing.T, pool *domain.Pool, sol float64) {
	t.Helper()
	addr := solana.MustPublicKeyFromBase58(pool.Address)
	account := h.chain.Pool(addr)
	require.NotNil(t, account)
	account.RealSol = curve.Lamports(sol)
	h.chain.SetPool(addr, account)
}

func (h *harness) buy(pool *domain.Pool, sol float64) (*TradeResult, error) {
	return h.orch.ExecuteTrade(context.Background(), TradeRequest{
		Mint:        pool.Mint,
		Trader:      h.agent.PublicKey().String(),
		Direction:   domain.Buy,
		Amount:      sol,
		SlippageBps: 100,
	})
}

func decodeTx(encoded string) (*solana.Transaction, error) {
	return transaction.Decode(encoded)
}
