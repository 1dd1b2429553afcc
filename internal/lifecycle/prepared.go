package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
)

var (
	// ErrPreparedExpired запись истекла, клиенту нужно подготовить транзакцию заново.
	ErrPreparedExpired = fmt.Errorf("%w: prepared transaction expired", domain.ErrInvalidInput)
	// ErrPreparedClosed запись уже отправлена или закрыта другим запросом.
	ErrPreparedClosed = fmt.Errorf("%w: prepared transaction already submitted or closed", domain.ErrConcurrencyLost)
)

func (o *Orchestrator) newPrepared(kind domain.PreparedKind, mint, wallet string, txs ...*transaction.Prepared) *domain.PreparedTx {
	now := o.now()
	record := &domain.PreparedTx{
		ID:        uuid.NewString(),
		Kind:      kind,
		PoolMint:  mint,
		Wallet:    wallet,
		Status:    domain.PreparedPending,
		ExpiresAt: now.Add(o.config.PreparedTTL),
	}
	seen := map[string]bool{}
	for _, p := range txs {
		record.MessageHashes = append(record.MessageHashes, p.MessageHash)
		for _, key := range p.OutstandingStrings() {
			if !seen[key] {
				seen[key] = true
				record.OutstandingSigners = append(record.OutstandingSigners, key)
			}
		}
	}
	return record
}

// openPrepared запись, готовая к фазе 2.
func (o *Orchestrator) openPrepared(ctx context.Context, id string, kind domain.PreparedKind) (*domain.PreparedTx, error) {
	if id == "" {
		return nil, domain.Invalidf("preparedId is required")
	}
	record, err := o.store.GetPrepared(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.Invalidf("unknown prepared transaction %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load prepared %s: %w", id, err)
	}
	if record.Kind != kind {
		return nil, domain.Invalidf("prepared transaction %s is a %s, not a %s", id, record.Kind, kind)
	}
	if record.Expired(o.now()) || record.Status == domain.PreparedExpired {
		return nil, ErrPreparedExpired
	}
	if record.Status != domain.PreparedPending {
		return nil, ErrPreparedClosed
	}
	if len(record.MessageHashes) == 0 {
		return nil, fmt.Errorf("prepared transaction %s has no message hashes", id)
	}
	return record, nil
}
