package domain

import (
	"encoding/json"
	"time"
)

type PreparedKind string

const (
	PreparedTrade  PreparedKind = "trade"
	PreparedLaunch PreparedKind = "launch"
)

type PreparedStatus string

const (
	PreparedPending   PreparedStatus = "prepared"
	PreparedSubmitted PreparedStatus = "submitted"
	PreparedCompleted PreparedStatus = "completed"
	PreparedFailed    PreparedStatus = "failed"
	PreparedExpired   PreparedStatus = "expired"
)

// PreparedTx набор транзакций, ожидающих подписи клиента (фаза 1).
type PreparedTx struct {
	ID       string       `json:"id"`
	Kind     PreparedKind `json:"kind"`
	PoolMint string       `json:"mintAddress"`
	Wallet   string       `json:"wallet"`
	// Payload сериализованное намерение (сделка или параметры запуска).
	Payload json.RawMessage `json:"payload"`
	// MessageHashes sha256 сообщений, которые клиент обязан подписать без изменений.
	MessageHashes      []string       `json:"messageHashes"`
	OutstandingSigners []string       `json:"outstandingSigners"`
	VanityKeypairID    string         `json:"vanityKeypairId,omitempty"`
	Signatures         []string       `json:"signatures,omitempty"`
	Status             PreparedStatus `json:"status"`
	Error              string         `json:"error,omitempty"`
	ExpiresAt          time.Time      `json:"expiresAt"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// Expired reports whether a still-open record passed its deadline.
func (p *PreparedTx) Expired(now time.Time) bool {
	return p.Status == PreparedPending && now.After(p.ExpiresAt)
}

// APIKey ключ стороннего потребителя; хранится только sha256 hex.
type APIKey struct {
	KeyHash            string    `json:"-"`
	Name               string    `json:"name"`
	Active             bool      `json:"active"`
	RateLimitPerMinute int       `json:"rateLimitPerMinute,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}
