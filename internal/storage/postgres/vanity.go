package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage/models"
	"gorm.io/gorm/clause"
)

func (s *Store) InsertVanity(ctx context.Context, kp *domain.VanityKeypair) error {
	if kp == nil || kp.PublicKey == "" {
		return domain.Invalidf("vanity public key is required")
	}
	m := models.VanityFromDomain(kp)
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = string(domain.VanityAvailable)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "public_key"}},
		DoNothing: true,
	}).Create(m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrDuplicateKey
	}
	kp.ID = m.ID
	return nil
}

// reserveSQL - выбор и переход одним запросом; SKIP LOCKED разводит конкурентов по разным строкам.
const reserveSQL = `
UPDATE vanity_keypairs SET status = ?, reserved_at = ?
WHERE id = (
	SELECT id FROM vanity_keypairs
	WHERE status = ? AND suffix = ?
	ORDER BY created_at
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING *`

func (s *Store) ReserveVanity(ctx context.Context, suffix string, now time.Time) (*domain.VanityKeypair, error) {
	var m models.VanityKeypair
	err := s.db.WithContext(ctx).
		Raw(reserveSQL, string(domain.VanityReserved), now, string(domain.VanityAvailable), suffix).
		Scan(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == "" {
		return nil, storage.ErrNotFound
	}
	return m.ToDomain(), nil
}

func (s *Store) ReleaseVanity(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.VanityKeypair{}).
		Where("id = ? AND status = ?", id, string(domain.VanityReserved)).
		Updates(map[string]interface{}{"status": string(domain.VanityAvailable), "reserved_at": nil})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetVanity(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *Store) MarkVanityUsed(ctx context.Context, id, mint string) error {
	res := s.db.WithContext(ctx).Model(&models.VanityKeypair{}).
		Where("id = ? AND status = ?", id, string(domain.VanityReserved)).
		Updates(map[string]interface{}{"status": string(domain.VanityUsed), "token_mint": mint})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetVanity(ctx, id); err != nil {
			return err
		}
		return storage.ErrConflict
	}
	return nil
}

func (s *Store) GetVanity(ctx context.Context, id string) (*domain.VanityKeypair, error) {
	var m models.VanityKeypair
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, mapError(err)
	}
	return m.ToDomain(), nil
}

func (s *Store) ListStaleReservations(ctx context.Context, reservedBefore time.Time, limit int) ([]*domain.VanityKeypair, error) {
	var rows []*models.VanityKeypair
	q := s.db.WithContext(ctx).
		Where("status = ? AND reserved_at < ?", string(domain.VanityReserved), reservedBefore).
		Order("reserved_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.VanityKeypair, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToDomain())
	}
	return out, nil
}

func (s *Store) CountVanity(ctx context.Context, suffix string, status domain.VanityStatus) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.VanityKeypair{}).
		Where("suffix = ? AND status = ?", suffix, string(status)).
		Count(&n).Error
	return n, err
}
