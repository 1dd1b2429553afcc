package vanity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := NewSealer("test-secret")
	require.NoError(t, err)
	return s
}

func seed(t *testing.T, store *memory.Store, sealer *Sealer, suffix string, n int) []solana.PrivateKey {
	t.Helper()
	var keys []solana.PrivateKey
	for i := 0; i < n; i++ {
		key := solana.NewWallet().PrivateKey
		sealed, err := sealer.Seal(key)
		require.NoError(t, err)
		require.NoError(t, store.InsertVanity(context.Background(), &domain.VanityKeypair{
			Suffix:              suffix,
			PublicKey:           key.PublicKey().String(),
			EncryptedPrivateKey: sealed,
		}))
		keys = append(keys, key)
	}
	return keys
}

func TestSealer_RoundTripAndTamper(t *testing.T) {
	sealer := newSealer(t)
	key := solana.NewWallet().PrivateKey

	sealed, err := sealer.Seal(key)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), string(key))

	opened, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, key, opened)

	sealed[len(sealed)-1] ^= 0xff
	_, err = sealer.Open(sealed)
	assert.ErrorIs(t, err, ErrSealedKeyCorrupt)

	other, err := NewSealer("other")
	require.NoError(t, err)
	fresh, _ := sealer.Seal(key)
	_, err = other.Open(fresh)
	assert.ErrorIs(t, err, ErrSealedKeyCorrupt)
}

func TestPool_ReserveReleaseMarkUsed(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sealer := newSealer(t)
	keys := seed(t, store, sealer, "pad", 1)
	pool := NewPool(store, sealer, zaptest.NewLogger(t))

	kp, err := pool.Reserve(ctx, "pad")
	require.NoError(t, err)
	require.NotNil(t, kp)
	assert.Equal(t, keys[0], kp.PrivateKey)

	// пул пуст - nil без ошибки
	none, err := pool.Reserve(ctx, "pad")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, pool.Release(ctx, kp.ID))
	// повторный release - no-op
	require.NoError(t, pool.Release(ctx, kp.ID))

	again, err := pool.Reserve(ctx, "pad")
	require.NoError(t, err)
	require.NotNil(t, again)
	require.NoError(t, pool.MarkUsed(ctx, again.ID, "mint1"))

	// used не возвращается в пул
	require.NoError(t, pool.Release(ctx, again.ID))
	stored, err := pool.Get(ctx, again.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VanityUsed, stored.Status)
	assert.Equal(t, "mint1", stored.TokenMint)
}

func TestPool_ConcurrentReserveHandsOutDistinctKeys(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sealer := newSealer(t)
	seed(t, store, sealer, "pad", 5)
	pool := NewPool(store, sealer, zaptest.NewLogger(t))

	var mu sync.Mutex
	seen := map[string]bool{}
	nils := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kp, err := pool.Reserve(ctx, "pad")
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			if kp == nil {
				nils++
				return
			}
			assert.False(t, seen[kp.ID], "keypair handed out twice")
			seen[kp.ID] = true
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 5)
	assert.Equal(t, 5, nils)
}

func TestGenerator_FillsToTarget(t *testing.T) {
	store := memory.New()
	sealer := newSealer(t)
	gen, err := NewGenerator(store, sealer, zaptest.NewLogger(t), GeneratorConfig{
		Suffix:        "a",
		CaseSensitive: false,
		Workers:       2,
		Target:        3,
		MaxDuration:   20 * time.Second,
	})
	require.NoError(t, err)

	stats, err := gen.Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.Generated, int64(3))
	assert.False(t, stats.TimedOut)

	n, err := store.CountVanity(context.Background(), "a", domain.VanityAvailable)
	require.NoError(t, err)
	assert.Equal(t, stats.Generated, n)

	kp, err := NewPool(store, sealer, zaptest.NewLogger(t)).Reserve(context.Background(), "a")
	require.NoError(t, err)
	require.NotNil(t, kp)
	assert.True(t, gen.Matches(kp.PublicKey.String()))

	// цель уже достигнута - ничего не генерируется
	stats, err = gen.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Attempts)
}

func TestGenerator_StopsAtDeadline(t *testing.T) {
	gen, err := NewGenerator(memory.New(), newSealer(t), zaptest.NewLogger(t), GeneratorConfig{
		// практически недостижимый суффикс
		Suffix:        "zzzzzzzzzz",
		CaseSensitive: true,
		Workers:       2,
		MaxDuration:   50 * time.Millisecond,
	})
	require.NoError(t, err)

	start := time.Now()
	stats, err := gen.Run(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, stats.TimedOut)
	assert.Zero(t, stats.Generated)
	assert.Positive(t, stats.Attempts)
}

func TestGenerator_Stop(t *testing.T) {
	gen, err := NewGenerator(memory.New(), newSealer(t), zaptest.NewLogger(t), GeneratorConfig{
		Suffix:      "zzzzzzzzzz",
		Workers:     1,
		MaxDuration: time.Minute,
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = gen.Run(context.Background())
	}()
	deadline := time.After(5 * time.Second)
	for {
		gen.Stop()
		select {
		case <-done:
			return
		case <-deadline:
			t.Fatal("generator did not stop")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestNewGenerator_RejectsNonBase58Suffix(t *testing.T) {
	_, err := NewGenerator(memory.New(), newSealer(t), zaptest.NewLogger(t), GeneratorConfig{Suffix: "p0l"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
