package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput - некорректный запрос, отклоняется до любого I/O.
	ErrInvalidInput = errors.New("invalid input")
	// ErrArithmetic - кривая вернула отрицательное/NaN значение.
	ErrArithmetic = errors.New("arithmetic error")
	// ErrPoolNotTradable - пул уже graduated/migrated.
	ErrPoolNotTradable = errors.New("pool not tradable")
	// ErrPoolExhausted - сделка выбрала бы виртуальный резерв целиком.
	ErrPoolExhausted = errors.New("pool exhausted")
	// ErrOnChainFailure - транзакция отклонена сетью или программой.
	ErrOnChainFailure = errors.New("on-chain failure")
	// ErrConfirmationTimeout - исход транзакции неизвестен.
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	// ErrTransientRPC - временная ошибка RPC после исчерпания ретраев.
	ErrTransientRPC = errors.New("transient rpc error")
	// ErrResourceExhausted - нет свободной vanity пары.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrConcurrencyLost - условие CAS больше не выполняется.
	ErrConcurrencyLost = errors.New("concurrency lost")
)

// TradeError несет причину и последнее известное состояние пула для клиента.
type TradeError struct {
	Op        string
	Reason    string
	Pool      *Pool
	Signature string
	Err       error
}

func (e *TradeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

// Invalidf returns an ErrInvalidInput with a human readable reason.
func Invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// IsUnknownOutcome reports whether the chain outcome of an operation is still unknown.
func IsUnknownOutcome(err error) bool {
	return errors.Is(err, ErrConfirmationTimeout)
}
