package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// Trade подтвержденная сделка. Signature уникальна.
// AmountOut - котировка на момент отправки; в цепи получено не меньше MinimumOut
// инструкции, точная сумма не читается.
type Trade struct {
	ID            string          `json:"id"`
	PoolMint      string          `json:"mintAddress"`
	PoolAddress   string          `json:"poolAddress"`
	Trader        string          `json:"trader"`
	Direction     Direction       `json:"direction"`
	AmountIn      float64         `json:"amountIn"`
	AmountOut     float64         `json:"amountOut"`
	PriceSol      float64         `json:"priceSol"`
	SystemFeeSol  decimal.Decimal `json:"systemFeeSol"`
	CreatorFeeSol decimal.Decimal `json:"creatorFeeSol"`
	Signature     string          `json:"signature"`
	Slot          uint64          `json:"slot"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Holding кэш баланса кошелька по токену, собранный из котировок сделок.
// Источник истины - токен-аккаунт кошелька в цепи; расхождение ограничено проскальзыванием.
type Holding struct {
	PoolMint  string          `json:"mintAddress"`
	Wallet    string          `json:"wallet"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type EarnerType string

const (
	EarnerSystem  EarnerType = "system"
	EarnerCreator EarnerType = "creator"
)

// FeeEarner накопитель комиссий пула для одного типа получателя.
type FeeEarner struct {
	PoolMint        string          `json:"mintAddress"`
	EarnerType      EarnerType      `json:"earnerType"`
	UnclaimedSol    decimal.Decimal `json:"unclaimedSol"`
	TotalEarnedSol  decimal.Decimal `json:"totalEarnedSol"`
	TotalClaimedSol decimal.Decimal `json:"totalClaimedSol"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// FeeAccrual приращение накопителя от одной сделки.
type FeeAccrual struct {
	EarnerType EarnerType
	AmountSol  decimal.Decimal
}

// TradeSettlement все эффекты одной подтвержденной сделки; применяется атомарно.
type TradeSettlement struct {
	Trade *Trade
	// Reserves из аккаунта пула на ReservesSlot.
	Reserves     Reserves
	ReservesSlot uint64
	// ReservesDelta оценка изменения резервов по котировке, если аккаунт не прочитан.
	// Применяется приращением к сохраненным резервам, слот не меняется.
	ReservesDelta *Reserves
	HoldingDelta  decimal.Decimal
	Fees          []FeeAccrual
	VolumeSol     decimal.Decimal
}

// FeeClaim история вывода комиссий. Signature уникальна.
type FeeClaim struct {
	ID          string          `json:"id"`
	PoolMint    string          `json:"mintAddress"`
	PoolAddress string          `json:"poolAddress"`
	EarnerType  EarnerType      `json:"earnerType"`
	ClaimedSol  decimal.Decimal `json:"claimedSol"`
	// Provisional сумма не подтверждена повторным чтением аккаунта.
	Provisional bool      `json:"provisional"`
	Signature   string    `json:"signature"`
	CreatedAt   time.Time `json:"createdAt"`
}
