package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Reserves виртуальные и реальные резервы кривой, SOL и целые токены.
type Reserves struct {
	VirtualSol   float64 `json:"virtualSolReserves"`
	VirtualToken float64 `json:"virtualTokenReserves"`
	RealSol      float64 `json:"realSolReserves"`
}

// Pool один рынок на bonding curve.
type Pool struct {
	Mint          string `json:"mintAddress"`
	Address       string `json:"poolAddress"`
	ConfigAddress string `json:"configAddress"`
	Creator       string `json:"creatorWallet"`
	FeeRecipient  string `json:"feeRecipientWallet"`

	Name        string `json:"name"`
	Ticker      string `json:"ticker"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`

	Reserves
	InitialVirtualSol      float64 `json:"initialVirtualSol"`
	TotalSupply            float64 `json:"totalSupply"`
	TradingFeeBps          uint16  `json:"tradingFeeBps"`
	CreatorFeeShareBps     uint16  `json:"creatorFeeShareBps"`
	GraduationThresholdSol float64 `json:"graduationThresholdSol"`

	Status              PoolStatus `json:"status"`
	MigratedPoolAddress string     `json:"migratedPoolAddress,omitempty"`
	GraduatedAt         *time.Time `json:"graduatedAt,omitempty"`
	MigratedAt          *time.Time `json:"migratedAt,omitempty"`

	// ReservesSlot слот чтения аккаунта, из которого взяты резервы.
	ReservesSlot uint64          `json:"reservesSlot"`
	Volume24hSol decimal.Decimal `json:"volume24hSol"`
	TradeCount   int64           `json:"tradeCount"`
	Version      int64           `json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Price SOL за один токен.
func (p *Pool) Price() float64 {
	if p.VirtualToken <= 0 {
		return 0
	}
	return p.VirtualSol / p.VirtualToken
}

func (p *Pool) MarketCapSol() float64 {
	return p.Price() * p.TotalSupply
}

// BondingProgressPct realSol / threshold * 100, capped at 100.
func (p *Pool) BondingProgressPct() float64 {
	if p.GraduationThresholdSol <= 0 {
		return 0
	}
	return math.Min(100, p.RealSol/p.GraduationThresholdSol*100)
}

// ReachedThreshold reports whether real reserves crossed the graduation threshold.
func (p *Pool) ReachedThreshold() bool {
	return p.GraduationThresholdSol > 0 && p.RealSol >= p.GraduationThresholdSol
}

// Clone returns a copy safe to hand out of a store.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	cp := *p
	if p.GraduatedAt != nil {
		t := *p.GraduatedAt
		cp.GraduatedAt = &t
	}
	if p.MigratedAt != nil {
		t := *p.MigratedAt
		cp.MigratedAt = &t
	}
	return &cp
}

// StatusChange описывает CAS-переход статуса пула.
type StatusChange struct {
	Mint                string
	From                PoolStatus
	To                  PoolStatus
	MigratedPoolAddress string
	At                  time.Time
}
