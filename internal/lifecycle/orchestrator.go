// Package lifecycle - оркестратор жизненного цикла пула: сделки, запуск,
// выпуск с кривой (graduation), миграция и сверка с цепью.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc"
	"github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/solana-launchpad/internal/dex/dbc"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/events"
	"github.com/rovshanmuradov/solana-launchpad/internal/retry"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
	"github.com/rovshanmuradov/solana-launchpad/internal/vanity"
	"github.com/rovshanmuradov/solana-launchpad/internal/wallet"
	"go.uber.org/zap"
)

// Settlement расчетный клиент; реализуется *solbc.Client.
type Settlement interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	Confirm(ctx context.Context, sig solana.Signature, target rpc.CommitmentType, timeout time.Duration) (*transaction.Confirmation, error)
	GetAccountState(ctx context.Context, address solana.PublicKey) (*solbc.AccountState, error)
}

var _ Settlement = (*solbc.Client)(nil)

// Config параметры кривой и запуска.
type Config struct {
	InitialVirtualSol      float64
	InitialVirtualToken    float64
	TotalSupply            float64
	GraduationThresholdSol float64
	DefaultTradingFeeBps   uint16
	MaxTradingFeeBps       uint16
	CreatorFeeShareBps     uint16
	MaxSlippageBps         uint16

	LaunchMaxAttempts int
	VerifyAttempts    int
	VerifyDelay       time.Duration
	PreparedTTL       time.Duration
	ComputeUnits      uint32
	PriorityFeeSol    float64

	VanitySuffix         string
	VanityReservationTTL time.Duration
	// ReconcileTimeout сколько ждать статус одной подписи при сверке.
	ReconcileTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxTradingFeeBps == 0 {
		c.MaxTradingFeeBps = 1000
	}
	if c.MaxSlippageBps == 0 {
		c.MaxSlippageBps = 5000
	}
	if c.LaunchMaxAttempts <= 0 {
		c.LaunchMaxAttempts = 3
	}
	if c.VerifyAttempts <= 0 {
		c.VerifyAttempts = 5
	}
	if c.VerifyDelay <= 0 {
		c.VerifyDelay = time.Second
	}
	if c.PreparedTTL <= 0 {
		c.PreparedTTL = 15 * time.Minute
	}
	if c.VanityReservationTTL <= 0 {
		c.VanityReservationTTL = 30 * time.Minute
	}
	if c.ReconcileTimeout <= 0 {
		c.ReconcileTimeout = 2 * time.Second
	}
	return c
}

// Dependencies внешние коллабораторы оркестратора. Vanity и Events необязательны.
type Dependencies struct {
	Store   storage.Store
	Chain   Settlement
	Program *dbc.Program
	Keys    *wallet.Keyring
	Vanity  *vanity.Pool
	Events  events.Publisher
}

// Orchestrator не держит состояния между запросами: вся координация идет через
// условные обновления хранилища.
type Orchestrator struct {
	store   storage.Store
	chain   Settlement
	program *dbc.Program
	keys    *wallet.Keyring
	vanity  *vanity.Pool
	events  events.Publisher
	logger  *zap.Logger
	config  Config
	now     func() time.Time
}

func New(deps Dependencies, logger *zap.Logger, config Config) *Orchestrator {
	publisher := deps.Events
	if publisher == nil {
		publisher = events.Discard
	}
	program := deps.Program
	if program == nil {
		program = dbc.New(solana.PublicKey{})
	}
	return &Orchestrator{
		store:   deps.Store,
		chain:   deps.Chain,
		program: program,
		keys:    deps.Keys,
		vanity:  deps.Vanity,
		events:  publisher,
		logger:  logger.Named("lifecycle"),
		config:  config.withDefaults(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// loadPool NotFound превращается в InvalidInput: клиент прислал неизвестный mint.
func (o *Orchestrator) loadPool(ctx context.Context, mint string) (*domain.Pool, error) {
	pool, err := o.store.GetPool(ctx, mint)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.Invalidf("unknown pool %s", mint)
	}
	if err != nil {
		return nil, fmt.Errorf("load pool %s: %w", mint, err)
	}
	return pool, nil
}

// readPoolAccount авторитетное состояние пула из цепи.
func (o *Orchestrator) readPoolAccount(ctx context.Context, address solana.PublicKey) (*dbc.VirtualPool, uint64, error) {
	state, err := o.chain.GetAccountState(ctx, address)
	if err != nil {
		return nil, 0, err
	}
	if state == nil {
		return nil, 0, nil
	}
	pool, err := dbc.DecodeVirtualPool(state.Data)
	if err != nil {
		return nil, 0, fmt.Errorf("decode pool account %s: %w", address, err)
	}
	return pool, state.Slot, nil
}

// sendAndConfirm отправка и ожидание на уровне commitment клиента.
// При таймауте возвращается подпись: исход неизвестен, но транзакция может приземлиться.
func (o *Orchestrator) sendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, *transaction.Confirmation, error) {
	sig, err := o.chain.Submit(ctx, tx)
	if err != nil {
		return solana.Signature{}, nil, err
	}
	conf, err := o.chain.Confirm(ctx, sig, "", 0)
	return sig, conf, err
}

func (o *Orchestrator) newBuilder() *transaction.Builder {
	return transaction.NewBuilder().SetComputeBudget(o.config.ComputeUnits, o.config.PriorityFeeSol)
}

func (o *Orchestrator) publish(event events.Event) {
	if err := o.events.Publish(event); err != nil {
		o.logger.Debug("Event not published",
			zap.String("event_type", string(event.Type())),
			zap.Error(err))
	}
}

// waitVisible ждет появления аккаунта в цепи: RPC может отставать от подтверждения.
func (o *Orchestrator) waitVisible(ctx context.Context, address solana.PublicKey) (*solbc.AccountState, error) {
	policy := retry.Policy{
		MaxAttempts: o.config.VerifyAttempts,
		BaseDelay:   o.config.VerifyDelay,
		MaxDelay:    4 * o.config.VerifyDelay,
		Retryable: func(err error) bool {
			return errors.Is(err, errNotVisible)
		},
	}
	return retry.Do(ctx, policy, o.logger, "verify account", func(ctx context.Context) (*solbc.AccountState, error) {
		state, err := o.chain.GetAccountState(ctx, address)
		if err != nil {
			return nil, err
		}
		if state == nil {
			return nil, errNotVisible
		}
		return state, nil
	})
}

var errNotVisible = errors.New("account not visible on chain")

func parseKey(field, value string) (solana.PublicKey, error) {
	if value == "" {
		return solana.PublicKey{}, domain.Invalidf("%s is required", field)
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, domain.Invalidf("%s is not a valid address: %v", field, err)
	}
	return key, nil
}
