package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
)

type errorResponse struct {
	Error     string       `json:"error"`
	Code      string       `json:"code"`
	Status    string       `json:"status,omitempty"`
	Signature string       `json:"signature,omitempty"`
	Pool      *domain.Pool `json:"pool,omitempty"`
}

// classify код ответа для доменной ошибки.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrPoolExhausted):
		return http.StatusUnprocessableEntity, "pool_exhausted"
	case errors.Is(err, domain.ErrPoolNotTradable):
		return http.StatusConflict, "pool_not_tradable"
	case errors.Is(err, domain.ErrConcurrencyLost):
		return http.StatusConflict, "concurrency_lost"
	case errors.Is(err, domain.ErrOnChainFailure):
		return http.StatusUnprocessableEntity, "on_chain_failure"
	case errors.Is(err, domain.ErrConfirmationTimeout):
		return http.StatusAccepted, "confirmation_timeout"
	case errors.Is(err, domain.ErrTransientRPC), errors.Is(err, domain.ErrResourceExhausted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status, code := classify(err)
	resp := errorResponse{Error: err.Error(), Code: code}

	var tradeErr *domain.TradeError
	if errors.As(err, &tradeErr) {
		resp.Pool = tradeErr.Pool
		resp.Signature = tradeErr.Signature
	}
	if status == http.StatusAccepted {
		resp.Status = "unknown"
	}
	if status == http.StatusInternalServerError {
		// детали внутренних ошибок только в журнал
		resp.Error = "internal error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: msg, Code: code})
}
