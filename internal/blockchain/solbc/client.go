// internal/blockchain/solbc/client.go
package solbc

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	solbcrpc "github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/solana-launchpad/internal/retry"
	"go.uber.org/zap"
)

// RPC подмножество *rpc.Client, которым пользуется расчетный клиент.
type RPC interface {
	transaction.StatusReader
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
}

var _ RPC = (*rpc.Client)(nil)

// Config параметры отправки и подтверждения.
type Config struct {
	Commitment     rpc.CommitmentType
	ConfirmTimeout time.Duration
	SkipPreflight  bool
	Retry          retry.Policy
	PollInterval   time.Duration
}

// AccountState снимок аккаунта на слоте чтения.
type AccountState struct {
	Address  solana.PublicKey
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
	Slot     uint64
}

// Client – расчетный клиент: отправка, подтверждение, чтение аккаунтов.
// Транзиентные ошибки RPC повторяются с ограниченным экспоненциальным backoff.
type Client struct {
	rpc     RPC
	logger  *zap.Logger
	config  Config
	monitor *transaction.Monitor
	metrics *transaction.Metrics
}

// NewClient создаёт клиент поверх готового RPC. metrics может быть nil.
func NewClient(rpcClient RPC, logger *zap.Logger, config Config, metrics *transaction.Metrics) *Client {
	if config.Commitment == "" {
		config.Commitment = rpc.CommitmentConfirmed
	}
	if config.ConfirmTimeout <= 0 {
		config.ConfirmTimeout = 30 * time.Second
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = retry.DefaultPolicy(nil)
	}
	config.Retry.Retryable = solbcrpc.IsRetryableError
	if metrics == nil {
		metrics = transaction.NewMetrics(nil)
	}

	logger = logger.Named("solbc-client")
	return &Client{
		rpc:    rpcClient,
		logger: logger,
		config: config,
		monitor: transaction.NewMonitor(rpcClient, logger, transaction.Config{
			Commitment:     config.Commitment,
			ConfirmTimeout: config.ConfirmTimeout,
			PollInterval:   config.PollInterval,
		}, metrics),
		metrics: metrics,
	}
}

// Dial создаёт клиент для RPC URL.
func Dial(rpcURL string, logger *zap.Logger, config Config, metrics *transaction.Metrics) *Client {
	return NewClient(rpc.New(rpcURL), logger, config, metrics)
}

func (c *Client) Commitment() rpc.CommitmentType {
	return c.config.Commitment
}

// LatestBlockhash последний blockhash на уровне commitment клиента.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return retry.Do(ctx, c.config.Retry, c.logger, "getLatestBlockhash", func(ctx context.Context) (solana.Hash, error) {
		result, err := c.rpc.GetLatestBlockhash(ctx, c.config.Commitment)
		if err != nil {
			c.countRetryable(err)
			return solana.Hash{}, solbcrpc.Classify("getLatestBlockhash", err)
		}
		return result.Value.Blockhash, nil
	})
}

// Submit отправляет полностью подписанную транзакцию.
// Повторная отправка той же транзакции идемпотентна: подпись определяется содержимым.
func (c *Client) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if err := transaction.ValidateTransaction(tx); err != nil {
		c.metrics.ObserveSubmission("invalid")
		return solana.Signature{}, err
	}
	expected := tx.Signatures[0]
	log := c.logger.With(zap.String("signature", expected.String()))

	opts := rpc.TransactionOpts{
		SkipPreflight:       c.config.SkipPreflight,
		PreflightCommitment: c.config.Commitment,
	}
	sig, err := retry.Do(ctx, c.config.Retry, log, "sendTransaction", func(ctx context.Context) (solana.Signature, error) {
		sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, opts)
		if err != nil {
			if solbcrpc.IsAlreadyProcessed(err) {
				log.Info("Transaction already processed")
				return expected, nil
			}
			c.countRetryable(err)
			return solana.Signature{}, solbcrpc.Classify("sendTransaction", err)
		}
		return sig, nil
	})
	if err != nil {
		c.metrics.ObserveSubmission(outcome(err))
		log.Warn("Transaction submission failed", zap.Error(err))
		return solana.Signature{}, err
	}

	c.metrics.ObserveSubmission("ok")
	log.Debug("Transaction submitted")
	return sig, nil
}

// Confirm ждёт target commitment не дольше timeout (0 - значения клиента).
func (c *Client) Confirm(ctx context.Context, sig solana.Signature, target rpc.CommitmentType, timeout time.Duration) (*transaction.Confirmation, error) {
	if target == "" {
		target = c.config.Commitment
	}
	if timeout <= 0 {
		timeout = c.config.ConfirmTimeout
	}
	return c.monitor.AwaitConfirmation(ctx, sig, target, timeout)
}

// SendAndConfirm Submit + Confirm с настройками клиента.
func (c *Client) SendAndConfirm(ctx context.Context, tx *solana.Transaction) (*transaction.Confirmation, error) {
	sig, err := c.Submit(ctx, tx)
	if err != nil {
		return nil, err
	}
	return c.Confirm(ctx, sig, "", 0)
}

// GetAccountState читает аккаунт. nil без ошибки - аккаунта не существует.
func (c *Client) GetAccountState(ctx context.Context, address solana.PublicKey) (*AccountState, error) {
	opts := &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.config.Commitment,
	}
	return retry.Do(ctx, c.config.Retry, c.logger, "getAccountInfo", func(ctx context.Context) (*AccountState, error) {
		result, err := c.rpc.GetAccountInfoWithOpts(ctx, address, opts)
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			c.countRetryable(err)
			return nil, solbcrpc.Classify("getAccountInfo", err)
		}
		if result == nil || result.Value == nil {
			return nil, nil
		}

		state := &AccountState{
			Address:  address,
			Owner:    result.Value.Owner,
			Lamports: result.Value.Lamports,
			Slot:     result.Context.Slot,
		}
		if result.Value.Data != nil {
			state.Data = result.Value.Data.GetBinary()
		}
		return state, nil
	})
}

func (c *Client) countRetryable(err error) {
	if solbcrpc.IsRetryableError(err) {
		c.metrics.ObserveRetry()
	}
}

func outcome(err error) string {
	switch {
	case solbcrpc.IsRetryableError(err):
		return "transient"
	case errors.Is(err, retry.ErrExhausted):
		return "transient"
	default:
		return "rejected"
	}
}
