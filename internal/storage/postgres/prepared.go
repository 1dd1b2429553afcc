package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage/models"
)

func (s *Store) SavePrepared(ctx context.Context, p *domain.PreparedTx) error {
	if p == nil || p.ID == "" {
		return domain.Invalidf("prepared id is required")
	}
	return mapError(s.db.WithContext(ctx).Create(models.PreparedFromDomain(p)).Error)
}

func (s *Store) GetPrepared(ctx context.Context, id string) (*domain.PreparedTx, error) {
	var m models.PreparedTx
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, mapError(err)
	}
	return m.ToDomain(), nil
}

func (s *Store) FindPreparedByVanity(ctx context.Context, vanityID string) (*domain.PreparedTx, error) {
	var m models.PreparedTx
	err := s.db.WithContext(ctx).Where("vanity_keypair_id = ?", vanityID).
		Order("created_at desc").First(&m).Error
	if err != nil {
		return nil, mapError(err)
	}
	return m.ToDomain(), nil
}

func (s *Store) TransitionPrepared(ctx context.Context, id string, from, to domain.PreparedStatus, signatures []string, errMsg string) error {
	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": time.Now().UTC(),
	}
	if len(signatures) > 0 {
		updates["signatures"] = strings.Join(signatures, ",")
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}

	res := s.db.WithContext(ctx).Model(&models.PreparedTx{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetPrepared(ctx, id); err != nil {
			return err
		}
		return storage.ErrConflict
	}
	return nil
}

func (s *Store) ListPrepared(ctx context.Context, kind domain.PreparedKind, status domain.PreparedStatus, limit int) ([]*domain.PreparedTx, error) {
	var rows []*models.PreparedTx
	q := s.db.WithContext(ctx).Where("kind = ? AND status = ?", string(kind), string(status)).Order("created_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toPrepared(rows), nil
}

func (s *Store) ListExpiredPrepared(ctx context.Context, now time.Time, limit int) ([]*domain.PreparedTx, error) {
	var rows []*models.PreparedTx
	q := s.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", string(domain.PreparedPending), now).
		Order("expires_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toPrepared(rows), nil
}

func toPrepared(rows []*models.PreparedTx) []*domain.PreparedTx {
	out := make([]*domain.PreparedTx, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToDomain())
	}
	return out
}
