package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ApplyTrade применяет эффекты сделки одной транзакцией БД.
// Уникальный индекс по signature делает повтор безопасным.
func (s *Store) ApplyTrade(ctx context.Context, st *domain.TradeSettlement) error {
	if st == nil || st.Trade == nil || st.Trade.Signature == "" {
		return domain.Invalidf("settlement requires a signed trade")
	}
	now := time.Now().UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trade := models.TradeFromDomain(st.Trade)
		if trade.ID == "" {
			trade.ID = uuid.NewString()
		}
		if trade.CreatedAt.IsZero() {
			trade.CreatedAt = now
		}

		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "signature"}},
			DoNothing: true,
		}).Create(trade)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return storage.ErrDuplicateKey
		}

		if err := upsertHolding(tx, trade.PoolMint, trade.Trader, st.HoldingDelta, now); err != nil {
			return err
		}
		for _, fee := range st.Fees {
			if err := accrueFee(tx, trade.PoolMint, fee, now); err != nil {
				return err
			}
		}

		// счетчики сливаются всегда
		res = tx.Model(&models.Pool{}).Where("mint = ?", trade.PoolMint).Updates(map[string]interface{}{
			"volume_24h_sol": gorm.Expr("volume_24h_sol + ?", st.VolumeSol),
			"trade_count":    gorm.Expr("trade_count + 1"),
			"version":        gorm.Expr("version + 1"),
			"updated_at":     now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return storage.ErrNotFound
		}

		if d := st.ReservesDelta; d != nil {
			return tx.Model(&models.Pool{}).Where("mint = ?", trade.PoolMint).Updates(map[string]interface{}{
				"virtual_sol_reserves":   gorm.Expr("GREATEST(virtual_sol_reserves + ?, 0)", d.VirtualSol),
				"virtual_token_reserves": gorm.Expr("GREATEST(virtual_token_reserves + ?, 0)", d.VirtualToken),
				"real_sol_reserves":      gorm.Expr("GREATEST(real_sol_reserves + ?, 0)", d.RealSol),
			}).Error
		}
		// резервы - только если чтение с цепи не старее сохраненного
		return tx.Model(&models.Pool{}).
			Where("mint = ? AND reserves_slot <= ?", trade.PoolMint, int64(st.ReservesSlot)).
			Updates(map[string]interface{}{
				"virtual_sol_reserves":   st.Reserves.VirtualSol,
				"virtual_token_reserves": st.Reserves.VirtualToken,
				"real_sol_reserves":      st.Reserves.RealSol,
				"reserves_slot":          int64(st.ReservesSlot),
			}).Error
	})
}

func upsertHolding(tx *gorm.DB, mint, wallet string, delta decimal.Decimal, now time.Time) error {
	initial := delta
	if initial.IsNegative() {
		initial = decimal.Zero
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "pool_mint"}, {Name: "wallet"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":    gorm.Expr("GREATEST(holdings.balance + ?, 0)", delta),
			"updated_at": now,
		}),
	}).Create(&models.Holding{PoolMint: mint, Wallet: wallet, Balance: initial, UpdatedAt: now}).Error
}

func accrueFee(tx *gorm.DB, mint string, fee domain.FeeAccrual, now time.Time) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "pool_mint"}, {Name: "earner_type"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"unclaimed_sol":    gorm.Expr("fee_earners.unclaimed_sol + ?", fee.AmountSol),
			"total_earned_sol": gorm.Expr("fee_earners.total_earned_sol + ?", fee.AmountSol),
			"updated_at":       now,
		}),
	}).Create(&models.FeeEarner{
		PoolMint:        mint,
		EarnerType:      string(fee.EarnerType),
		UnclaimedSol:    fee.AmountSol,
		TotalEarnedSol:  fee.AmountSol,
		TotalClaimedSol: decimal.Zero,
		UpdatedAt:       now,
	}).Error
}

func (s *Store) GetTradeBySignature(ctx context.Context, signature string) (*domain.Trade, error) {
	var m models.Trade
	if err := s.db.WithContext(ctx).Where("signature = ?", signature).First(&m).Error; err != nil {
		return nil, mapError(err)
	}
	return m.ToDomain(), nil
}

func (s *Store) ListTrades(ctx context.Context, mint string, limit int) ([]*domain.Trade, error) {
	var rows []*models.Trade
	q := s.db.WithContext(ctx).Where("pool_mint = ?", mint).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Trade, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToDomain())
	}
	return out, nil
}

func (s *Store) GetHolding(ctx context.Context, mint, wallet string) (*domain.Holding, error) {
	var m models.Holding
	if err := s.db.WithContext(ctx).Where("pool_mint = ? AND wallet = ?", mint, wallet).First(&m).Error; err != nil {
		return nil, mapError(err)
	}
	return m.ToDomain(), nil
}

func (s *Store) GetFeeEarner(ctx context.Context, mint string, earner domain.EarnerType) (*domain.FeeEarner, error) {
	var m models.FeeEarner
	err := s.db.WithContext(ctx).Where("pool_mint = ? AND earner_type = ?", mint, string(earner)).First(&m).Error
	if err != nil {
		return nil, mapError(err)
	}
	return m.ToDomain(), nil
}

// ApplyClaim пишет историю и переносит unclaimed -> claimed одной транзакцией.
func (s *Store) ApplyClaim(ctx context.Context, claim *domain.FeeClaim) error {
	if claim == nil || claim.Signature == "" {
		return domain.Invalidf("claim signature is required")
	}
	now := time.Now().UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := models.FeeClaimFromDomain(claim)
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "signature"}},
			DoNothing: true,
		}).Create(m)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return storage.ErrDuplicateKey
		}

		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "pool_mint"}, {Name: "earner_type"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"unclaimed_sol":     gorm.Expr("GREATEST(fee_earners.unclaimed_sol - ?, 0)", claim.ClaimedSol),
				"total_claimed_sol": gorm.Expr("fee_earners.total_claimed_sol + ?", claim.ClaimedSol),
				"updated_at":        now,
			}),
		}).Create(&models.FeeEarner{
			PoolMint:        claim.PoolMint,
			EarnerType:      string(claim.EarnerType),
			UnclaimedSol:    decimal.Zero,
			TotalEarnedSol:  decimal.Zero,
			TotalClaimedSol: claim.ClaimedSol,
			UpdatedAt:       now,
		}).Error
	})
}

func (s *Store) GetClaimBySignature(ctx context.Context, signature string) (*domain.FeeClaim, error) {
	var m models.FeeClaim
	if err := s.db.WithContext(ctx).Where("signature = ?", signature).First(&m).Error; err != nil {
		return nil, mapError(err)
	}
	return m.ToDomain(), nil
}

func (s *Store) ListProvisionalClaims(ctx context.Context, limit int) ([]*domain.FeeClaim, error) {
	var rows []*models.FeeClaim
	q := s.db.WithContext(ctx).Where("provisional = ?", true).Order("created_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.FeeClaim, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToDomain())
	}
	return out, nil
}

// ResolveClaim заменяет предварительную сумму подтвержденной.
func (s *Store) ResolveClaim(ctx context.Context, signature string, claimedSol decimal.Decimal) error {
	now := time.Now().UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.FeeClaim
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("signature = ?", signature).First(&m).Error
		if err != nil {
			return mapError(err)
		}
		if !m.Provisional {
			return nil
		}

		diff := claimedSol.Sub(m.ClaimedSol)
		err = tx.Model(&models.FeeClaim{}).Where("signature = ? AND provisional = ?", signature, true).
			Updates(map[string]interface{}{"claimed_sol": claimedSol, "provisional": false}).Error
		if err != nil {
			return err
		}

		return tx.Model(&models.FeeEarner{}).
			Where("pool_mint = ? AND earner_type = ?", m.PoolMint, m.EarnerType).
			Updates(map[string]interface{}{
				"unclaimed_sol":     gorm.Expr("GREATEST(unclaimed_sol - ?, 0)", diff),
				"total_claimed_sol": gorm.Expr("total_claimed_sol + ?", diff),
				"updated_at":        now,
			}).Error
	})
}
