// Package retry - единый примитив повторов с ограниченным экспоненциальным backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// ErrExhausted оборачивает последнюю ошибку, когда попытки закончились.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy параметры повторов.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxDelay верхняя граница одной паузы (0 - без ограничения сверх удвоения).
	MaxDelay time.Duration
	// Retryable решает, стоит ли повторять; nil - повторять любую ошибку.
	Retryable func(error) bool
}

// DefaultPolicy 5 попыток, 1s, удвоение.
func DefaultPolicy(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    16 * time.Second,
		Retryable:   retryable,
	}
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = p.BaseDelay << 10
	}
	return b
}

// Do выполняет fn, повторяя только ошибки, признанные Retryable.
// Неповторяемая ошибка возвращается сразу и без обертки.
func Do[T any](ctx context.Context, p Policy, log *zap.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}

	attempts := 0
	operation := func() (T, error) {
		attempts++
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	notify := func(err error, next time.Duration) {
		log.Warn("Retrying after error",
			zap.String("operation", op),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", next),
			zap.Error(err))
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithNotify(notify))
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return res, err
	}
	if attempts >= p.MaxAttempts && (p.Retryable == nil || p.Retryable(err)) {
		return res, fmt.Errorf("%s: %w after %d attempts: %w", op, ErrExhausted, attempts, err)
	}
	return res, err
}

// Sleep ждет d или отмены контекста.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
