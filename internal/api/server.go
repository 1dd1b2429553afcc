// Package api - HTTP поверхность лаунчпада на gin.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/fees"
	"github.com/rovshanmuradov/solana-launchpad/internal/lifecycle"
	"github.com/rovshanmuradov/solana-launchpad/internal/ratelimit"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Lifecycle операции оркестратора; реализуется *lifecycle.Orchestrator.
type Lifecycle interface {
	CreatePool(ctx context.Context, req lifecycle.CreatePoolRequest) (*lifecycle.CreatePoolResult, error)
	CompleteLaunch(ctx context.Context, preparedID string, signedTxs []string) (*lifecycle.CreatePoolResult, error)
	ExecuteTrade(ctx context.Context, req lifecycle.TradeRequest) (*lifecycle.TradeResult, error)
	SubmitSignedTrade(ctx context.Context, preparedID, signedTx string) (*lifecycle.TradeResult, error)
	Quote(ctx context.Context, req lifecycle.TradeRequest) (*lifecycle.TradeResult, error)
	Migrate(ctx context.Context, mint string) (*lifecycle.MigrationResult, error)
}

// FeeLedger операции казначейства; реализуется *fees.Ledger.
type FeeLedger interface {
	GetClaimable(ctx context.Context, poolAddress string) (decimal.Decimal, error)
	BatchClaim(ctx context.Context, pools []string, minClaimSol float64, dryRun bool) (*fees.BatchResult, error)
}

// Store чтение пулов и ключей API.
type Store interface {
	GetPool(ctx context.Context, mint string) (*domain.Pool, error)
	ListTrades(ctx context.Context, mint string, limit int) ([]*domain.Trade, error)
	FindAPIKey(ctx context.Context, keyHash string) (*domain.APIKey, error)
}

var (
	_ Lifecycle = (*lifecycle.Orchestrator)(nil)
	_ FeeLedger = (*fees.Ledger)(nil)
	_ Store     = (storage.Store)(nil)
)

type Config struct {
	// TreasurySecret значение заголовка x-treasury-secret. Пустое - маршруты казначейства закрыты.
	TreasurySecret string
	// RateLimitPerMinute лимит по умолчанию для ключей без собственного.
	RateLimitPerMinute int
	RequestTimeout     time.Duration
}

type Dependencies struct {
	Lifecycle Lifecycle
	Ledger    FeeLedger
	Store     Store
	Limiter   ratelimit.Limiter
	// Gatherer источник /metrics; nil - prometheus.DefaultGatherer.
	Gatherer   prometheus.Gatherer
	Registerer prometheus.Registerer
}

type Server struct {
	engine    *gin.Engine
	lifecycle Lifecycle
	ledger    FeeLedger
	store     Store
	limiter   ratelimit.Limiter
	logger    *zap.Logger
	config    Config
	metrics   *httpMetrics
}

func NewServer(deps Dependencies, logger *zap.Logger, config Config) *Server {
	gin.SetMode(gin.ReleaseMode)
	if config.RateLimitPerMinute <= 0 {
		config.RateLimitPerMinute = 60
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 90 * time.Second
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.NewMemory(time.Minute)
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		engine:    gin.New(),
		lifecycle: deps.Lifecycle,
		ledger:    deps.Ledger,
		store:     deps.Store,
		limiter:   limiter,
		logger:    logger.Named("api"),
		config:    config,
		metrics:   newHTTPMetrics(deps.Registerer),
	}

	s.engine.Use(gin.Recovery(), s.requestLogger(), cors())

	s.engine.GET("/health", s.health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	pool := s.engine.Group("/pool")
	pool.POST("/create", s.createPool)
	pool.POST("/complete", s.completeLaunch)
	pool.GET("/:mint", s.getPool)

	swap := s.engine.Group("/swap")
	swap.POST("/execute", s.executeSwap)
	swap.POST("/submit", s.submitSwap)
	swap.POST("/quote", s.apiKeyAuth(), s.quoteSwap)

	treasury := s.engine.Group("/treasury", s.treasuryAuth())
	treasury.POST("/claim-batch", s.claimBatch)
	treasury.GET("/claim-batch", s.claimableBatch)
	treasury.POST("/migrate/:mint", s.migrate)

	return s
}

// Handler для http.Server и httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run слушает addr до отмены ctx, затем корректно останавливается.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.RequestTimeout + 10*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}
