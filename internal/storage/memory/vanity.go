package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
)

func (s *Store) InsertVanity(_ context.Context, kp *domain.VanityKeypair) error {
	if kp == nil || kp.PublicKey == "" {
		return domain.Invalidf("vanity public key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vanityByKey[kp.PublicKey]; exists {
		return storage.ErrDuplicateKey
	}

	cp := cloneVanity(kp)
	if cp.ID == "" {
		cp.ID = uuid.NewString()
		kp.ID = cp.ID
	}
	if cp.Status == "" {
		cp.Status = domain.VanityAvailable
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	s.vanity[cp.ID] = cp
	s.vanityByKey[cp.PublicKey] = cp.ID
	s.vanityOrder = append(s.vanityOrder, cp.ID)
	return nil
}

// ReserveVanity flips the oldest available keypair with the suffix to reserved.
func (s *Store) ReserveVanity(_ context.Context, suffix string, now time.Time) (*domain.VanityKeypair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.vanityOrder {
		kp := s.vanity[id]
		if kp.Status != domain.VanityAvailable || kp.Suffix != suffix {
			continue
		}
		at := now
		kp.Status = domain.VanityReserved
		kp.ReservedAt = &at
		return cloneVanity(kp), nil
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ReleaseVanity(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kp, ok := s.vanity[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if kp.Status != domain.VanityReserved {
		return false, nil
	}
	kp.Status = domain.VanityAvailable
	kp.ReservedAt = nil
	return true, nil
}

func (s *Store) MarkVanityUsed(_ context.Context, id, mint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kp, ok := s.vanity[id]
	if !ok {
		return storage.ErrNotFound
	}
	if kp.Status != domain.VanityReserved {
		return storage.ErrConflict
	}
	kp.Status = domain.VanityUsed
	kp.TokenMint = mint
	return nil
}

func (s *Store) GetVanity(_ context.Context, id string) (*domain.VanityKeypair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kp, ok := s.vanity[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneVanity(kp), nil
}

func (s *Store) ListStaleReservations(_ context.Context, reservedBefore time.Time, limit int) ([]*domain.VanityKeypair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.VanityKeypair
	for _, id := range s.vanityOrder {
		kp := s.vanity[id]
		if kp.Status == domain.VanityReserved && kp.ReservedAt != nil && kp.ReservedAt.Before(reservedBefore) {
			out = append(out, cloneVanity(kp))
		}
	}
	return truncate(out, limit), nil
}

func (s *Store) CountVanity(_ context.Context, suffix string, status domain.VanityStatus) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, kp := range s.vanity {
		if kp.Suffix == suffix && kp.Status == status {
			n++
		}
	}
	return n, nil
}

func cloneVanity(kp *domain.VanityKeypair) *domain.VanityKeypair {
	cp := *kp
	cp.EncryptedPrivateKey = append([]byte(nil), kp.EncryptedPrivateKey...)
	if kp.ReservedAt != nil {
		t := *kp.ReservedAt
		cp.ReservedAt = &t
	}
	return &cp
}
