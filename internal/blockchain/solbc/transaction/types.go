// internal/blockchain/solbc/transaction/types.go
package transaction

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
)

var (
	ErrInvalidSignature   = fmt.Errorf("%w: invalid transaction signature", domain.ErrInvalidInput)
	ErrInvalidBlockhash   = fmt.Errorf("%w: invalid blockhash", domain.ErrInvalidInput)
	ErrInvalidInstruction = fmt.Errorf("%w: invalid instruction", domain.ErrInvalidInput)
	ErrMissingSignature   = fmt.Errorf("%w: required signature missing", domain.ErrInvalidInput)
	ErrMessageTampered    = fmt.Errorf("%w: transaction message differs from the prepared one", domain.ErrInvalidInput)
)

// Config параметры ожидания подтверждения.
type Config struct {
	Commitment      rpc.CommitmentType
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
	MaxPollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Commitment == "" {
		c.Commitment = rpc.CommitmentConfirmed
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.MaxPollInterval < c.PollInterval {
		c.MaxPollInterval = 4 * c.PollInterval
	}
	return c
}

// Status наблюдаемое состояние подписи.
type Status struct {
	Signature     solana.Signature
	Status        string
	Confirmations uint64
	Slot          uint64
	Error         string
	Timestamp     time.Time
}

// Confirmation успешный исход ожидания.
type Confirmation struct {
	Signature solana.Signature
	Slot      uint64
	Status    rpc.ConfirmationStatusType
	Latency   time.Duration
}

// commitmentRank порядок уровней подтверждения.
func commitmentRank(status string) int {
	switch status {
	case string(rpc.ConfirmationStatusProcessed):
		return 1
	case string(rpc.ConfirmationStatusConfirmed):
		return 2
	case string(rpc.ConfirmationStatusFinalized):
		return 3
	}
	return 0
}

// Reached reports whether an observed status satisfies the target commitment.
func Reached(observed rpc.ConfirmationStatusType, target rpc.CommitmentType) bool {
	got := commitmentRank(string(observed))
	return got > 0 && got >= commitmentRank(string(target))
}
