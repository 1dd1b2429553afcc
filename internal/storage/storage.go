// internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/shopspring/decimal"
)

// PoolStore снапшоты пулов и CAS статуса.
type PoolStore interface {
	// CreatePool возвращает ErrDuplicateKey, если mint уже зарегистрирован.
	CreatePool(ctx context.Context, pool *domain.Pool) error
	GetPool(ctx context.Context, mint string) (*domain.Pool, error)
	GetPoolByAddress(ctx context.Context, address string) (*domain.Pool, error)
	ListPoolsByStatus(ctx context.Context, status domain.PoolStatus, limit int) ([]*domain.Pool, error)
	// ListGraduationCandidates bonding пулы, у которых RealSol уже достиг порога.
	ListGraduationCandidates(ctx context.Context, limit int) ([]*domain.Pool, error)
	// TransitionStatus - условный переход статуса. ErrConflict, если текущий статус != change.From.
	TransitionStatus(ctx context.Context, change domain.StatusChange) error
}

// LedgerStore сделки, балансы и накопители комиссий.
type LedgerStore interface {
	// ApplyTrade атомарно: вставка сделки (уникальная подпись), баланс, комиссии, резервы.
	// ErrDuplicateKey, если подпись уже учтена - в этом случае ничего не меняется.
	ApplyTrade(ctx context.Context, settlement *domain.TradeSettlement) error
	GetTradeBySignature(ctx context.Context, signature string) (*domain.Trade, error)
	ListTrades(ctx context.Context, mint string, limit int) ([]*domain.Trade, error)
	GetHolding(ctx context.Context, mint, wallet string) (*domain.Holding, error)
	GetFeeEarner(ctx context.Context, mint string, earner domain.EarnerType) (*domain.FeeEarner, error)

	// ApplyClaim атомарно: запись истории (уникальная подпись) и перенос unclaimed -> claimed.
	ApplyClaim(ctx context.Context, claim *domain.FeeClaim) error
	GetClaimBySignature(ctx context.Context, signature string) (*domain.FeeClaim, error)
	ListProvisionalClaims(ctx context.Context, limit int) ([]*domain.FeeClaim, error)
	// ResolveClaim фиксирует подтвержденную сумму и корректирует накопитель на разницу.
	ResolveClaim(ctx context.Context, signature string, claimedSol decimal.Decimal) error
}

// VanityStore пары с суффиксом. Все переходы статуса условные.
type VanityStore interface {
	// InsertVanity - ErrDuplicateKey при повторном публичном ключе.
	InsertVanity(ctx context.Context, kp *domain.VanityKeypair) error
	// ReserveVanity атомарно available -> reserved. ErrNotFound, если свободных нет.
	ReserveVanity(ctx context.Context, suffix string, now time.Time) (*domain.VanityKeypair, error)
	// ReleaseVanity reserved -> available; false, если пара уже не reserved.
	ReleaseVanity(ctx context.Context, id string) (bool, error)
	// MarkVanityUsed reserved -> used. ErrConflict, если пара не reserved.
	MarkVanityUsed(ctx context.Context, id, mint string) error
	GetVanity(ctx context.Context, id string) (*domain.VanityKeypair, error)
	ListStaleReservations(ctx context.Context, reservedBefore time.Time, limit int) ([]*domain.VanityKeypair, error)
	CountVanity(ctx context.Context, suffix string, status domain.VanityStatus) (int64, error)
}

// PreparedStore транзакции, ожидающие подписи клиента.
type PreparedStore interface {
	SavePrepared(ctx context.Context, p *domain.PreparedTx) error
	GetPrepared(ctx context.Context, id string) (*domain.PreparedTx, error)
	FindPreparedByVanity(ctx context.Context, vanityID string) (*domain.PreparedTx, error)
	// TransitionPrepared условный переход; ErrConflict, если статус уже другой.
	TransitionPrepared(ctx context.Context, id string, from, to domain.PreparedStatus, signatures []string, errMsg string) error
	ListPrepared(ctx context.Context, kind domain.PreparedKind, status domain.PreparedStatus, limit int) ([]*domain.PreparedTx, error)
	ListExpiredPrepared(ctx context.Context, now time.Time, limit int) ([]*domain.PreparedTx, error)
}

// APIKeyStore поиск ключей сторонних потребителей по sha256.
type APIKeyStore interface {
	SaveAPIKey(ctx context.Context, key *domain.APIKey) error
	FindAPIKey(ctx context.Context, keyHash string) (*domain.APIKey, error)
}

// Store полное хранилище.
type Store interface {
	PoolStore
	LedgerStore
	VanityStore
	PreparedStore
	APIKeyStore
	Close() error
}
