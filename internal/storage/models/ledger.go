package models

import (
	"time"

	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/shopspring/decimal"
)

type Trade struct {
	ID            string          `gorm:"primaryKey;type:varchar(36)"`
	Signature     string          `gorm:"uniqueIndex;not null;type:varchar(88)"`
	PoolMint      string          `gorm:"index;not null;type:varchar(44)"`
	PoolAddress   string          `gorm:"type:varchar(44)"`
	Trader        string          `gorm:"index;not null;type:varchar(44)"`
	Direction     string          `gorm:"not null;type:varchar(4)"`
	AmountIn      float64         `gorm:"type:double precision;not null"`
	AmountOut     float64         `gorm:"type:double precision;not null"`
	PriceSol      float64         `gorm:"type:double precision"`
	SystemFeeSol  decimal.Decimal `gorm:"type:numeric(38,9);not null;default:0"`
	CreatorFeeSol decimal.Decimal `gorm:"type:numeric(38,9);not null;default:0"`
	Slot          int64
	CreatedAt     time.Time `gorm:"index;not null"`
}

func (Trade) TableName() string { return "trades" }

func TradeFromDomain(t *domain.Trade) *Trade {
	return &Trade{
		ID:            t.ID,
		Signature:     t.Signature,
		PoolMint:      t.PoolMint,
		PoolAddress:   t.PoolAddress,
		Trader:        t.Trader,
		Direction:     string(t.Direction),
		AmountIn:      t.AmountIn,
		AmountOut:     t.AmountOut,
		PriceSol:      t.PriceSol,
		SystemFeeSol:  t.SystemFeeSol,
		CreatorFeeSol: t.CreatorFeeSol,
		Slot:          int64(t.Slot),
		CreatedAt:     t.CreatedAt,
	}
}

func (m *Trade) ToDomain() *domain.Trade {
	return &domain.Trade{
		ID:            m.ID,
		PoolMint:      m.PoolMint,
		PoolAddress:   m.PoolAddress,
		Trader:        m.Trader,
		Direction:     domain.Direction(m.Direction),
		AmountIn:      m.AmountIn,
		AmountOut:     m.AmountOut,
		PriceSol:      m.PriceSol,
		SystemFeeSol:  m.SystemFeeSol,
		CreatorFeeSol: m.CreatorFeeSol,
		Signature:     m.Signature,
		Slot:          uint64(m.Slot),
		CreatedAt:     m.CreatedAt,
	}
}

type Holding struct {
	PoolMint  string          `gorm:"primaryKey;type:varchar(44)"`
	Wallet    string          `gorm:"primaryKey;type:varchar(44)"`
	Balance   decimal.Decimal `gorm:"type:numeric(38,6);not null;default:0"`
	UpdatedAt time.Time       `gorm:"not null"`
}

func (Holding) TableName() string { return "holdings" }

func (m *Holding) ToDomain() *domain.Holding {
	return &domain.Holding{PoolMint: m.PoolMint, Wallet: m.Wallet, Balance: m.Balance, UpdatedAt: m.UpdatedAt}
}

type FeeEarner struct {
	PoolMint        string          `gorm:"primaryKey;type:varchar(44)"`
	EarnerType      string          `gorm:"primaryKey;type:varchar(16)"`
	UnclaimedSol    decimal.Decimal `gorm:"type:numeric(38,9);not null;default:0"`
	TotalEarnedSol  decimal.Decimal `gorm:"type:numeric(38,9);not null;default:0"`
	TotalClaimedSol decimal.Decimal `gorm:"type:numeric(38,9);not null;default:0"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

func (FeeEarner) TableName() string { return "fee_earners" }

func (m *FeeEarner) ToDomain() *domain.FeeEarner {
	return &domain.FeeEarner{
		PoolMint:        m.PoolMint,
		EarnerType:      domain.EarnerType(m.EarnerType),
		UnclaimedSol:    m.UnclaimedSol,
		TotalEarnedSol:  m.TotalEarnedSol,
		TotalClaimedSol: m.TotalClaimedSol,
		UpdatedAt:       m.UpdatedAt,
	}
}

type FeeClaim struct {
	ID          string          `gorm:"primaryKey;type:varchar(36)"`
	Signature   string          `gorm:"uniqueIndex;not null;type:varchar(88)"`
	PoolMint    string          `gorm:"index;not null;type:varchar(44)"`
	PoolAddress string          `gorm:"type:varchar(44)"`
	EarnerType  string          `gorm:"not null;type:varchar(16)"`
	ClaimedSol  decimal.Decimal `gorm:"type:numeric(38,9);not null"`
	Provisional bool            `gorm:"index;not null;default:false"`
	CreatedAt   time.Time       `gorm:"not null"`
}

func (FeeClaim) TableName() string { return "fee_claims" }

func FeeClaimFromDomain(c *domain.FeeClaim) *FeeClaim {
	return &FeeClaim{
		ID:          c.ID,
		Signature:   c.Signature,
		PoolMint:    c.PoolMint,
		PoolAddress: c.PoolAddress,
		EarnerType:  string(c.EarnerType),
		ClaimedSol:  c.ClaimedSol,
		Provisional: c.Provisional,
		CreatedAt:   c.CreatedAt,
	}
}

func (m *FeeClaim) ToDomain() *domain.FeeClaim {
	return &domain.FeeClaim{
		ID:          m.ID,
		PoolMint:    m.PoolMint,
		PoolAddress: m.PoolAddress,
		EarnerType:  domain.EarnerType(m.EarnerType),
		ClaimedSol:  m.ClaimedSol,
		Provisional: m.Provisional,
		Signature:   m.Signature,
		CreatedAt:   m.CreatedAt,
	}
}
