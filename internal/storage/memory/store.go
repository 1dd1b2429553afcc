// Package memory - хранилище в памяти с теми же гарантиями CAS и уникальности,
// что и postgres. Используется в тестах и для локального запуска.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu sync.RWMutex

	pools         map[string]*domain.Pool // keyed by mint
	poolByAddress map[string]string

	trades   map[string]*domain.Trade // keyed by signature
	holdings map[string]*domain.Holding
	earners  map[string]*domain.FeeEarner
	claims   map[string]*domain.FeeClaim

	vanity      map[string]*domain.VanityKeypair
	vanityOrder []string
	vanityByKey map[string]string

	prepared map[string]*domain.PreparedTx
	apiKeys  map[string]*domain.APIKey

	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		pools:         make(map[string]*domain.Pool),
		poolByAddress: make(map[string]string),
		trades:        make(map[string]*domain.Trade),
		holdings:      make(map[string]*domain.Holding),
		earners:       make(map[string]*domain.FeeEarner),
		claims:        make(map[string]*domain.FeeClaim),
		vanity:        make(map[string]*domain.VanityKeypair),
		vanityByKey:   make(map[string]string),
		prepared:      make(map[string]*domain.PreparedTx),
		apiKeys:       make(map[string]*domain.APIKey),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Close() error { return nil }

// CreatePool registers a new pool. Returns ErrDuplicateKey if the mint exists.
func (s *Store) CreatePool(_ context.Context, pool *domain.Pool) error {
	if pool == nil || pool.Mint == "" {
		return domain.Invalidf("pool mint is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pools[pool.Mint]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.poolByAddress[pool.Address]; exists && pool.Address != "" {
		return storage.ErrDuplicateKey
	}

	cp := pool.Clone()
	now := s.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	if cp.Status == "" {
		cp.Status = domain.StatusBonding
	}
	s.pools[cp.Mint] = cp
	if cp.Address != "" {
		s.poolByAddress[cp.Address] = cp.Mint
	}
	return nil
}

func (s *Store) GetPool(_ context.Context, mint string) (*domain.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *Store) GetPoolByAddress(ctx context.Context, address string) (*domain.Pool, error) {
	s.mu.RLock()
	mint, ok := s.poolByAddress[address]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.GetPool(ctx, mint)
}

func (s *Store) ListPoolsByStatus(_ context.Context, status domain.PoolStatus, limit int) ([]*domain.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Pool
	for _, p := range s.pools {
		if p.Status == status {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

// TransitionStatus is the compare-and-swap on pool status.
func (s *Store) ListGraduationCandidates(_ context.Context, limit int) ([]*domain.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Pool
	for _, p := range s.pools {
		if p.Status == domain.StatusBonding && p.ReachedThreshold() {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

func (s *Store) TransitionStatus(_ context.Context, change domain.StatusChange) error {
	if err := domain.ValidateTransition(change.From, change.To); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[change.Mint]
	if !ok {
		return storage.ErrNotFound
	}
	if p.Status != change.From {
		return storage.ErrConflict
	}

	at := change.At
	if at.IsZero() {
		at = s.now()
	}
	p.Status = change.To
	switch change.To {
	case domain.StatusGraduated:
		p.GraduatedAt = &at
	case domain.StatusMigrated:
		p.MigratedAt = &at
		p.MigratedPoolAddress = change.MigratedPoolAddress
	}
	p.Version++
	p.UpdatedAt = at
	return nil
}

func (s *Store) SavePrepared(_ context.Context, p *domain.PreparedTx) error {
	if p == nil || p.ID == "" {
		return domain.Invalidf("prepared id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.prepared[p.ID]; exists {
		return storage.ErrDuplicateKey
	}
	cp := clonePrepared(p)
	now := s.now()
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.prepared[p.ID] = cp
	return nil
}

func (s *Store) GetPrepared(_ context.Context, id string) (*domain.PreparedTx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prepared[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clonePrepared(p), nil
}

func (s *Store) FindPreparedByVanity(_ context.Context, vanityID string) (*domain.PreparedTx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.prepared {
		if p.VanityKeypairID == vanityID {
			return clonePrepared(p), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) TransitionPrepared(_ context.Context, id string, from, to domain.PreparedStatus, signatures []string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.prepared[id]
	if !ok {
		return storage.ErrNotFound
	}
	if p.Status != from {
		return storage.ErrConflict
	}
	p.Status = to
	if len(signatures) > 0 {
		p.Signatures = append([]string(nil), signatures...)
	}
	if errMsg != "" {
		p.Error = errMsg
	}
	p.UpdatedAt = s.now()
	return nil
}

func (s *Store) ListPrepared(_ context.Context, kind domain.PreparedKind, status domain.PreparedStatus, limit int) ([]*domain.PreparedTx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PreparedTx
	for _, p := range s.prepared {
		if p.Kind == kind && p.Status == status {
			out = append(out, clonePrepared(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

func (s *Store) ListExpiredPrepared(_ context.Context, now time.Time, limit int) ([]*domain.PreparedTx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PreparedTx
	for _, p := range s.prepared {
		if p.Expired(now) {
			out = append(out, clonePrepared(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return truncate(out, limit), nil
}

func (s *Store) SaveAPIKey(_ context.Context, key *domain.APIKey) error {
	if key == nil || key.KeyHash == "" {
		return domain.Invalidf("api key hash is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.apiKeys[key.KeyHash]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *key
	s.apiKeys[key.KeyHash] = &cp
	return nil
}

func (s *Store) FindAPIKey(_ context.Context, keyHash string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.apiKeys[keyHash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func clonePrepared(p *domain.PreparedTx) *domain.PreparedTx {
	cp := *p
	cp.Payload = append([]byte(nil), p.Payload...)
	cp.MessageHashes = append([]string(nil), p.MessageHashes...)
	cp.OutstandingSigners = append([]string(nil), p.OutstandingSigners...)
	cp.Signatures = append([]string(nil), p.Signatures...)
	return &cp
}

func truncate[T any](in []T, limit int) []T {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}
