package vanity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// GeneratorConfig параметры одного прогона генератора.
type GeneratorConfig struct {
	Suffix        string
	CaseSensitive bool
	Workers       int
	// Target желаемое число свободных пар; генерируется только недостающее.
	Target      int
	MaxDuration time.Duration
}

// RunStats итог прогона.
type RunStats struct {
	Generated  int64
	Attempts   int64
	Duplicates int64
	Duration   time.Duration
	// TimedOut прогон остановлен по дедлайну, а не по достижению цели.
	TimedOut bool
}

// Generator CPU-bound перебор ключей, ограниченный по времени и отменяемый.
type Generator struct {
	store  storage.VanityStore
	sealer *Sealer
	logger *zap.Logger
	config GeneratorConfig

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewGenerator(store storage.VanityStore, sealer *Sealer, logger *zap.Logger, config GeneratorConfig) (*Generator, error) {
	if config.Suffix == "" {
		return nil, domain.Invalidf("vanity suffix is empty")
	}
	for _, r := range config.Suffix {
		if !strings.ContainsRune(solanaAlphabet, r) {
			return nil, domain.Invalidf("vanity suffix %q contains non-base58 character %q", config.Suffix, r)
		}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.MaxDuration <= 0 {
		config.MaxDuration = 50 * time.Second
	}
	return &Generator{
		store:  store,
		sealer: sealer,
		logger: logger.Named("vanity-generator"),
		config: config,
	}, nil
}

const solanaAlphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// Matches проверяет суффикс адреса с учетом настройки регистра.
func (g *Generator) Matches(address string) bool {
	if g.config.CaseSensitive {
		return strings.HasSuffix(address, g.config.Suffix)
	}
	return strings.HasSuffix(strings.ToLower(address), strings.ToLower(g.config.Suffix))
}

// Run генерирует недостающие пары до цели, дедлайна или Stop.
func (g *Generator) Run(ctx context.Context) (*RunStats, error) {
	start := time.Now()
	stats := &RunStats{}

	available, err := g.store.CountVanity(ctx, g.config.Suffix, domain.VanityAvailable)
	if err != nil {
		return nil, fmt.Errorf("count available: %w", err)
	}
	need := int64(g.config.Target) - available
	if g.config.Target > 0 && need <= 0 {
		g.logger.Info("Vanity pool is full", zap.Int64("available", available), zap.Int("target", g.config.Target))
		return stats, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, g.config.MaxDuration)
	defer cancel()
	g.mu.Lock()
	g.cancel = cancel
	g.mu.Unlock()

	var generated, attempts, duplicates atomic.Int64
	group, groupCtx := errgroup.WithContext(runCtx)
	for i := 0; i < g.config.Workers; i++ {
		group.Go(func() error {
			for groupCtx.Err() == nil {
				key, err := solana.NewRandomPrivateKey()
				if err != nil {
					return fmt.Errorf("generate key: %w", err)
				}
				attempts.Add(1)
				address := key.PublicKey().String()
				if !g.Matches(address) {
					continue
				}

				inserted, err := g.insert(groupCtx, key, address)
				if err != nil {
					if groupCtx.Err() != nil {
						return nil
					}
					return err
				}
				if !inserted {
					duplicates.Add(1)
					continue
				}
				if n := generated.Add(1); need > 0 && n >= need {
					cancel()
				}
			}
			return nil
		})
	}

	err = group.Wait()
	stats.Generated = generated.Load()
	stats.Attempts = attempts.Load()
	stats.Duplicates = duplicates.Load()
	stats.Duration = time.Since(start)
	stats.TimedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded) && (need <= 0 || stats.Generated < need)

	g.logger.Info("Vanity generation finished",
		zap.String("suffix", g.config.Suffix),
		zap.Int64("generated", stats.Generated),
		zap.Int64("attempts", stats.Attempts),
		zap.Int64("duplicates", stats.Duplicates),
		zap.Duration("duration", stats.Duration),
		zap.Bool("timed_out", stats.TimedOut))
	return stats, err
}

// Stop прерывает текущий прогон.
func (g *Generator) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
}

// insert - дубликат публичного ключа не ошибка.
func (g *Generator) insert(ctx context.Context, key solana.PrivateKey, address string) (bool, error) {
	sealed, err := g.sealer.Seal(key)
	if err != nil {
		return false, err
	}
	err = g.store.InsertVanity(ctx, &domain.VanityKeypair{
		Suffix:              g.config.Suffix,
		PublicKey:           address,
		EncryptedPrivateKey: sealed,
		Status:              domain.VanityAvailable,
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		g.logger.Debug("Duplicate vanity public key skipped", zap.String("public_key", address))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert vanity: %w", err)
	}
	return true, nil
}
