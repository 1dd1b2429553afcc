// internal/events/types.go
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType represents the type of event.
type EventType string

const (
	PoolCreated   EventType = "pool.created"
	TradeExecuted EventType = "trade.executed"
	PoolGraduated EventType = "pool.graduated"
	PoolMigrated  EventType = "pool.migrated"
	FeesClaimed   EventType = "fees.claimed"
)

// AllTypes все типы событий жизненного цикла.
var AllTypes = []EventType{PoolCreated, TradeExecuted, PoolGraduated, PoolMigrated, FeesClaimed}

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
	// Key ключ партиционирования (mint пула).
	Key() string
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType `json:"type"`
	EventTime time.Time `json:"timestamp"`
	Mint      string    `json:"mintAddress"`
}

func NewBase(t EventType, mint string) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now().UTC(), Mint: mint}
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

func (e BaseEvent) Key() string {
	return e.Mint
}

type PoolCreatedEvent struct {
	BaseEvent
	PoolAddress string `json:"poolAddress"`
	Creator     string `json:"creatorWallet"`
	Vanity      bool   `json:"vanity"`
}

type TradeExecutedEvent struct {
	BaseEvent
	Signature string  `json:"signature"`
	Trader    string  `json:"trader"`
	Direction string  `json:"direction"`
	AmountIn  float64 `json:"amountIn"`
	AmountOut float64 `json:"amountOut"`
	RealSol   float64 `json:"realSolReserves"`
}

type PoolGraduatedEvent struct {
	BaseEvent
	RealSol float64 `json:"realSolReserves"`
}

type PoolMigratedEvent struct {
	BaseEvent
	MigratedPoolAddress string `json:"migratedPoolAddress"`
	Signature           string `json:"signature,omitempty"`
}

type FeesClaimedEvent struct {
	BaseEvent
	PoolAddress string          `json:"poolAddress"`
	ClaimedSol  decimal.Decimal `json:"claimedSol"`
	Signature   string          `json:"signature"`
	Provisional bool            `json:"provisional"`
}
