// Package vanity - пул заранее сгенерированных пар с суффиксом адреса.
package vanity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
	"go.uber.org/zap"
)

// Keypair зарезервированная пара, ключ уже расшифрован.
type Keypair struct {
	ID         string
	Suffix     string
	PublicKey  solana.PublicKey
	PrivateKey solana.PrivateKey
	ReservedAt time.Time
}

// Pool резервирование, освобождение и пометка использования.
// Все переходы статуса выполняются условно в хранилище.
type Pool struct {
	store  storage.VanityStore
	sealer *Sealer
	logger *zap.Logger
	now    func() time.Time
}

func NewPool(store storage.VanityStore, sealer *Sealer, logger *zap.Logger) *Pool {
	return &Pool{
		store:  store,
		sealer: sealer,
		logger: logger.Named("vanity-pool"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Reserve атомарно забирает свободную пару. nil, nil - свободных нет.
func (p *Pool) Reserve(ctx context.Context, suffix string) (*Keypair, error) {
	kp, err := p.store.ReserveVanity(ctx, suffix, p.now())
	if errors.Is(err, storage.ErrNotFound) {
		p.logger.Info("No vanity keypair available", zap.String("suffix", suffix))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reserve vanity: %w", err)
	}

	key, err := p.sealer.Open(kp.EncryptedPrivateKey)
	if err == nil && key.PublicKey().String() != kp.PublicKey {
		err = ErrSealedKeyCorrupt
	}
	if err != nil {
		// пара остается reserved: повторно её не выдаем
		p.logger.Error("Vanity keypair cannot be opened",
			zap.String("vanity_id", kp.ID),
			zap.String("public_key", kp.PublicKey),
			zap.Error(err))
		return nil, err
	}

	reservedAt := p.now()
	if kp.ReservedAt != nil {
		reservedAt = *kp.ReservedAt
	}
	p.logger.Debug("Vanity keypair reserved",
		zap.String("vanity_id", kp.ID),
		zap.String("public_key", kp.PublicKey))
	return &Keypair{
		ID:         kp.ID,
		Suffix:     kp.Suffix,
		PublicKey:  key.PublicKey(),
		PrivateKey: key,
		ReservedAt: reservedAt,
	}, nil
}

// Release возвращает пару в пул. Для пары не в статусе reserved - no-op.
func (p *Pool) Release(ctx context.Context, id string) error {
	released, err := p.store.ReleaseVanity(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release vanity %s: %w", id, err)
	}
	if released {
		p.logger.Info("Vanity keypair released", zap.String("vanity_id", id))
	}
	return nil
}

// MarkUsed reserved -> used с привязкой к mint.
func (p *Pool) MarkUsed(ctx context.Context, id, mint string) error {
	if err := p.store.MarkVanityUsed(ctx, id, mint); err != nil {
		return fmt.Errorf("mark vanity %s used: %w", id, err)
	}
	return nil
}

func (p *Pool) Get(ctx context.Context, id string) (*domain.VanityKeypair, error) {
	return p.store.GetVanity(ctx, id)
}

// StaleReservations резервы старше olderThan.
func (p *Pool) StaleReservations(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.VanityKeypair, error) {
	return p.store.ListStaleReservations(ctx, p.now().Add(-olderThan), limit)
}

func (p *Pool) Available(ctx context.Context, suffix string) (int64, error) {
	return p.store.CountVanity(ctx, suffix, domain.VanityAvailable)
}
