// internal/blockchain/solbc/transaction/monitor.go
package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/retry"
	"go.uber.org/zap"
)

// StatusReader часть RPC, нужная для ожидания подтверждения.
type StatusReader interface {
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

type Monitor struct {
	client  StatusReader
	logger  *zap.Logger
	config  Config
	metrics *Metrics
}

func NewMonitor(client StatusReader, logger *zap.Logger, config Config, metrics *Metrics) *Monitor {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Monitor{
		client:  client,
		logger:  logger.Named("tx-monitor"),
		config:  config.withDefaults(),
		metrics: metrics,
	}
}

// GetTransactionStatus один опрос статуса подписи.
func (m *Monitor) GetTransactionStatus(ctx context.Context, signature solana.Signature) (*Status, error) {
	response, err := m.client.GetSignatureStatuses(ctx, true, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction status: %w", err)
	}

	if response == nil || len(response.Value) == 0 || response.Value[0] == nil {
		return &Status{
			Signature: signature,
			Status:    "pending",
			Timestamp: time.Now(),
		}, nil
	}

	status := response.Value[0]
	txStatus := &Status{
		Signature: signature,
		Status:    string(status.ConfirmationStatus),
		Timestamp: time.Now(),
		Slot:      status.Slot,
	}
	if txStatus.Status == "" {
		txStatus.Status = "pending"
	}
	if status.Confirmations != nil {
		txStatus.Confirmations = *status.Confirmations
	}
	if status.Err != nil {
		txStatus.Error = fmt.Sprintf("%v", status.Err)
		txStatus.Status = "failed"
	}

	return txStatus, nil
}

// AwaitConfirmation опрашивает статус с растущим интервалом до target или таймаута.
// Ненаблюдаемая подпись - продолжаем ждать; ошибка исполнения - ErrOnChainFailure;
// истек таймаут - ErrConfirmationTimeout (исход неизвестен).
func (m *Monitor) AwaitConfirmation(ctx context.Context, signature solana.Signature, target rpc.CommitmentType, timeout time.Duration) (*Confirmation, error) {
	if target == "" {
		target = m.config.Commitment
	}
	if timeout <= 0 {
		timeout = m.config.ConfirmTimeout
	}

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	poll := backoff.NewExponentialBackOff()
	poll.InitialInterval = m.config.PollInterval
	poll.MaxInterval = m.config.MaxPollInterval
	poll.Multiplier = 2
	poll.RandomizationFactor = 0
	poll.Reset()

	log := m.logger.With(zap.String("signature", signature.String()), zap.String("target", string(target)))

	for {
		status, err := m.GetTransactionStatus(waitCtx, signature)
		switch {
		case err != nil:
			if waitCtx.Err() == nil {
				log.Warn("Confirmation check failed", zap.Error(err))
			}
		case status.Error != "":
			m.metrics.ObserveConfirmation("failed", time.Since(start))
			return nil, fmt.Errorf("%w: transaction %s failed: %s", domain.ErrOnChainFailure, signature, status.Error)
		case Reached(rpc.ConfirmationStatusType(status.Status), target):
			latency := time.Since(start)
			m.metrics.ObserveConfirmation("confirmed", latency)
			log.Debug("Transaction confirmed",
				zap.String("status", status.Status),
				zap.Uint64("slot", status.Slot),
				zap.Duration("latency", latency))
			return &Confirmation{
				Signature: signature,
				Slot:      status.Slot,
				Status:    rpc.ConfirmationStatusType(status.Status),
				Latency:   latency,
			}, nil
		}

		if err := retry.Sleep(waitCtx, poll.NextBackOff()); err != nil {
			m.metrics.ObserveConfirmation("timeout", time.Since(start))
			if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s: %w", domain.ErrConfirmationTimeout, signature, ctx.Err())
			}
			return nil, fmt.Errorf("%w: %s not confirmed within %s", domain.ErrConfirmationTimeout, signature, timeout)
		}
	}
}
