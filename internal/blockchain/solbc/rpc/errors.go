// internal/blockchain/solbc/rpc/errors.go
package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
)

var (
	// ErrRateLimit возникает при превышении лимита запросов
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrTimeout возникает при превышении времени ожидания
	ErrTimeout = errors.New("request timeout")

	// ErrConnectionFailed возникает при ошибке подключения
	ErrConnectionFailed = errors.New("connection failed")

	// ErrNodeUnhealthy узел отстал или перегружен
	ErrNodeUnhealthy = errors.New("node unhealthy")
)

// Коды JSON-RPC ошибок Solana, которые нас интересуют.
const (
	codePreflightFailure     = -32002
	codeSignatureVerify      = -32003
	codeNodeUnhealthy        = -32005
	codeSlotSkipped          = -32007
	codeMinContextSlot       = -32016
	alreadyProcessedFragment = "already been processed"
)

// Error представляет ошибку RPC с дополнительным контекстом
type Error struct {
	Err    error
	Method string
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error [%s]: %v", e.Method, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError оборачивает ошибку вызова method.
func NewError(err error, method string) error {
	return &Error{Err: err, Method: method}
}

// ProgramError ошибка Anchor-программы из логов симуляции.
type ProgramError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

func (e ProgramError) String() string {
	if e.Name == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

// IsRetryableError определяет, стоит ли повторять вызов.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrTransientRPC) {
		return true
	}
	if errors.Is(err, domain.ErrOnChainFailure) || errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrConfirmationTimeout) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	switch {
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrRateLimit),
		errors.Is(err, ErrConnectionFailed),
		errors.Is(err, ErrNodeUnhealthy),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case codeNodeUnhealthy, codeSlotSkipped, codeMinContextSlot:
			return true
		}
		if rpcErr.Code == codePreflightFailure && strings.Contains(rpcErr.Message, "Blockhash not found") {
			return true
		}
		return false
	}

	// Проверяем текст ошибки для общих сетевых проблем
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "eof") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// IsAlreadyProcessed - повторная отправка уже принятой транзакции.
func IsAlreadyProcessed(err error) bool {
	return err != nil && strings.Contains(err.Error(), alreadyProcessedFragment)
}

// Classify приводит ошибку RPC к таксономии домена:
// preflight/программа -> ErrOnChainFailure, сеть -> ErrTransientRPC.
// Прочие ошибки возвращаются как есть.
func Classify(method string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrOnChainFailure) || errors.Is(err, domain.ErrTransientRPC) {
		return err
	}
	if IsRetryableError(err) {
		return fmt.Errorf("%w: %w", domain.ErrTransientRPC, NewError(err, method))
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Code == codePreflightFailure || rpcErr.Code == codeSignatureVerify ||
			strings.Contains(rpcErr.Message, "Transaction simulation failed") {
			reason := rpcErr.Message
			if pe, ok := ProgramErrorFromRPC(rpcErr); ok {
				reason = pe.String()
			}
			return fmt.Errorf("%w: %s", domain.ErrOnChainFailure, reason)
		}
	}
	return NewError(err, method)
}

// ProgramErrorFromRPC ищет AnchorError в логах симуляции.
func ProgramErrorFromRPC(rpcErr *jsonrpc.RPCError) (ProgramError, bool) {
	dataMap, ok := rpcErr.Data.(map[string]interface{})
	if !ok {
		return ProgramError{}, false
	}
	logs, ok := dataMap["logs"].([]interface{})
	if !ok {
		return ProgramError{}, false
	}
	for _, entry := range logs {
		if line, ok := entry.(string); ok && strings.Contains(line, "AnchorError occurred") {
			return ParseAnchorErrorLog(line), true
		}
	}
	return ProgramError{}, false
}

// ParseAnchorErrorLog разбирает строку лога вида
// "Program log: AnchorError occurred. Error Code: X. Error Number: 6001. Error Message: Y."
func ParseAnchorErrorLog(line string) ProgramError {
	var result ProgramError
	if _, rest, ok := strings.Cut(line, "Error Number:"); ok {
		num, _, _ := strings.Cut(rest, ".")
		fmt.Sscanf(strings.TrimSpace(num), "%d", &result.Code)
	}
	if _, rest, ok := strings.Cut(line, "Error Code:"); ok {
		name, _, _ := strings.Cut(rest, ".")
		result.Name = strings.TrimSpace(name)
	}
	if _, rest, ok := strings.Cut(line, "Error Message:"); ok {
		result.Msg = strings.TrimSuffix(strings.TrimSpace(rest), ".")
	}
	return result
}
