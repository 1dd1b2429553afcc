package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
	"go.uber.org/zap"
)

const (
	headerAPIKey         = "x-api-key"
	headerTreasurySecret = "x-treasury-secret"
	ctxAPIKeyName        = "api_key_name"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	m := &httpMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "launchpad_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "launchpad_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.latency)
	}
	return m
}

// requestLogger журнал запросов: 5xx - error, 4xx - warn, остальное - info.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		s.metrics.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.metrics.latency.WithLabelValues(route).Observe(latency.Seconds())

		if route == "/health" || route == "/metrics" {
			return
		}
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		}
		if name := c.GetString(ctxAPIKeyName); name != "" {
			fields = append(fields, zap.String("api_key", name))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.ByType(gin.ErrorTypePrivate).String()))
		}
		switch {
		case status >= http.StatusInternalServerError:
			s.logger.Error("Request failed", fields...)
		case status >= http.StatusBadRequest:
			s.logger.Warn("Request rejected", fields...)
		default:
			s.logger.Info("Request served", fields...)
		}
	}
}

// cors разрешает любые источники; OPTIONS отвечает 204 без тела.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, x-api-key, x-treasury-secret")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// HashAPIKey sha256 hex предъявленного ключа; в хранилище лежит только он.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (s *Server) apiKeyAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(headerAPIKey)
		if presented == "" {
			abort(c, http.StatusUnauthorized, "unauthorized", "missing api key")
			return
		}
		keyHash := HashAPIKey(presented)
		key, err := s.store.FindAPIKey(c.Request.Context(), keyHash)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && !key.Active) {
			abort(c, http.StatusUnauthorized, "unauthorized", "invalid api key")
			return
		}
		if err != nil {
			_ = c.Error(err)
			abort(c, http.StatusInternalServerError, "internal", "api key lookup failed")
			return
		}
		c.Set(ctxAPIKeyName, key.Name)

		limit := key.RateLimitPerMinute
		if limit <= 0 {
			limit = s.config.RateLimitPerMinute
		}
		decision, err := s.limiter.Allow(c.Request.Context(), keyHash, limit)
		if err != nil {
			// лимитер недоступен - запрос пропускается
			s.logger.Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(decision.ResetIn.Seconds())+1))
			abort(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		c.Next()
	}
}

func (s *Server) treasuryAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(headerTreasurySecret)
		if s.config.TreasurySecret == "" || presented == "" ||
			subtle.ConstantTimeCompare([]byte(presented), []byte(s.config.TreasurySecret)) != 1 {
			abort(c, http.StatusUnauthorized, "unauthorized", "invalid treasury secret")
			return
		}
		c.Next()
	}
}
