// internal/storage/models/pool.go
package models

import (
	"time"

	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/shopspring/decimal"
)

type Pool struct {
	Mint          string `gorm:"primaryKey;type:varchar(44)"`
	Address       string `gorm:"uniqueIndex;not null;type:varchar(44)"`
	ConfigAddress string `gorm:"type:varchar(44)"`
	Creator       string `gorm:"index;not null;type:varchar(44)"`
	FeeRecipient  string `gorm:"type:varchar(44)"`

	Name        string `gorm:"type:varchar(64)"`
	Ticker      string `gorm:"type:varchar(16)"`
	Description string `gorm:"type:text"`
	ImageURL    string `gorm:"column:image_url;type:text"`

	VirtualSolReserves     float64 `gorm:"type:double precision;not null"`
	VirtualTokenReserves   float64 `gorm:"type:double precision;not null"`
	RealSolReserves        float64 `gorm:"type:double precision;not null;default:0"`
	InitialVirtualSol      float64 `gorm:"type:double precision;not null"`
	TotalSupply            float64 `gorm:"type:double precision;not null"`
	TradingFeeBps          int     `gorm:"not null"`
	CreatorFeeShareBps     int     `gorm:"not null"`
	GraduationThresholdSol float64 `gorm:"type:double precision;not null"`

	Status              string     `gorm:"index;not null;type:varchar(16)"`
	MigratedPoolAddress string     `gorm:"type:varchar(44)"`
	GraduatedAt         *time.Time
	MigratedAt          *time.Time

	ReservesSlot int64           `gorm:"not null;default:0"`
	Volume24hSol decimal.Decimal `gorm:"column:volume_24h_sol;type:numeric(38,9);not null;default:0"`
	TradeCount   int64           `gorm:"not null;default:0"`
	Version      int64           `gorm:"not null;default:0"`

	Timestamps
}

func (Pool) TableName() string { return "pools" }

func PoolFromDomain(p *domain.Pool) *Pool {
	return &Pool{
		Mint:                   p.Mint,
		Address:                p.Address,
		ConfigAddress:          p.ConfigAddress,
		Creator:                p.Creator,
		FeeRecipient:           p.FeeRecipient,
		Name:                   p.Name,
		Ticker:                 p.Ticker,
		Description:            p.Description,
		ImageURL:               p.ImageURL,
		VirtualSolReserves:     p.VirtualSol,
		VirtualTokenReserves:   p.VirtualToken,
		RealSolReserves:        p.RealSol,
		InitialVirtualSol:      p.InitialVirtualSol,
		TotalSupply:            p.TotalSupply,
		TradingFeeBps:          int(p.TradingFeeBps),
		CreatorFeeShareBps:     int(p.CreatorFeeShareBps),
		GraduationThresholdSol: p.GraduationThresholdSol,
		Status:                 string(p.Status),
		MigratedPoolAddress:    p.MigratedPoolAddress,
		GraduatedAt:            p.GraduatedAt,
		MigratedAt:             p.MigratedAt,
		ReservesSlot:           int64(p.ReservesSlot),
		Volume24hSol:           p.Volume24hSol,
		TradeCount:             p.TradeCount,
		Version:                p.Version,
		Timestamps:             Timestamps{CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt},
	}
}

func (m *Pool) ToDomain() *domain.Pool {
	return &domain.Pool{
		Mint:          m.Mint,
		Address:       m.Address,
		ConfigAddress: m.ConfigAddress,
		Creator:       m.Creator,
		FeeRecipient:  m.FeeRecipient,
		Name:          m.Name,
		Ticker:        m.Ticker,
		Description:   m.Description,
		ImageURL:      m.ImageURL,
		Reserves: domain.Reserves{
			VirtualSol:   m.VirtualSolReserves,
			VirtualToken: m.VirtualTokenReserves,
			RealSol:      m.RealSolReserves,
		},
		InitialVirtualSol:      m.InitialVirtualSol,
		TotalSupply:            m.TotalSupply,
		TradingFeeBps:          uint16(m.TradingFeeBps),
		CreatorFeeShareBps:     uint16(m.CreatorFeeShareBps),
		GraduationThresholdSol: m.GraduationThresholdSol,
		Status:                 domain.PoolStatus(m.Status),
		MigratedPoolAddress:    m.MigratedPoolAddress,
		GraduatedAt:            m.GraduatedAt,
		MigratedAt:             m.MigratedAt,
		ReservesSlot:           uint64(m.ReservesSlot),
		Volume24hSol:           m.Volume24hSol,
		TradeCount:             m.TradeCount,
		Version:                m.Version,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}
