package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/lifecycle"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
	"github.com/shopspring/decimal"
)

const recentTradesLimit = 20

func (s *Server) bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.fail(c, domain.Invalidf("malformed request body: %v", err))
		return false
	}
	return true
}

func (s *Server) createPool(c *gin.Context) {
	var req lifecycle.CreatePoolRequest
	if !s.bind(c, &req) {
		return
	}
	res, err := s.lifecycle.CreatePool(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type completeLaunchRequest struct {
	PreparedID         string   `json:"preparedId"`
	SignedTransactions []string `json:"signedTransactions"`
}

func (s *Server) completeLaunch(c *gin.Context) {
	var req completeLaunchRequest
	if !s.bind(c, &req) {
		return
	}
	res, err := s.lifecycle.CompleteLaunch(c.Request.Context(), req.PreparedID, req.SignedTransactions)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getPool(c *gin.Context) {
	mint := c.Param("mint")
	pool, err := s.store.GetPool(c.Request.Context(), mint)
	if errors.Is(err, storage.ErrNotFound) {
		abort(c, http.StatusNotFound, "not_found", "pool not found")
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	trades, err := s.store.ListTrades(c.Request.Context(), mint, recentTradesLimit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pool":            pool,
		"price":           pool.Price(),
		"marketCapSol":    pool.MarketCapSol(),
		"bondingProgress": pool.BondingProgressPct(),
		"recentTrades":    trades,
	})
}

// swapRequest направление задается isBuy или direction.
type swapRequest struct {
	MintAddress string           `json:"mintAddress"`
	UserWallet  string           `json:"userWallet"`
	Amount      float64          `json:"amount"`
	IsBuy       *bool            `json:"isBuy"`
	Direction   domain.Direction `json:"direction"`
	SlippageBps uint16           `json:"slippageBps"`
}

func (r swapRequest) trade() lifecycle.TradeRequest {
	direction := r.Direction
	if r.IsBuy != nil {
		direction = domain.Sell
		if *r.IsBuy {
			direction = domain.Buy
		}
	}
	return lifecycle.TradeRequest{
		Mint:        r.MintAddress,
		Trader:      r.UserWallet,
		Direction:   direction,
		Amount:      r.Amount,
		SlippageBps: r.SlippageBps,
	}
}

func (s *Server) executeSwap(c *gin.Context) {
	var req swapRequest
	if !s.bind(c, &req) {
		return
	}
	res, err := s.lifecycle.ExecuteTrade(c.Request.Context(), req.trade())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type submitSwapRequest struct {
	PreparedID        string `json:"preparedId"`
	SignedTransaction string `json:"signedTransaction"`
}

func (s *Server) submitSwap(c *gin.Context) {
	var req submitSwapRequest
	if !s.bind(c, &req) {
		return
	}
	res, err := s.lifecycle.SubmitSignedTrade(c.Request.Context(), req.PreparedID, req.SignedTransaction)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) quoteSwap(c *gin.Context) {
	var req swapRequest
	if !s.bind(c, &req) {
		return
	}
	res, err := s.lifecycle.Quote(c.Request.Context(), req.trade())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type claimBatchRequest struct {
	PoolAddresses []string `json:"poolAddresses"`
	DryRun        bool     `json:"dryRun"`
	MinClaimSol   float64  `json:"minClaimSol"`
}

func (s *Server) claimBatch(c *gin.Context) {
	var req claimBatchRequest
	if !s.bind(c, &req) {
		return
	}
	res, err := s.ledger.BatchClaim(c.Request.Context(), req.PoolAddresses, req.MinClaimSol, req.DryRun)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type claimableItem struct {
	PoolAddress  string          `json:"poolAddress"`
	ClaimableSol decimal.Decimal `json:"claimableSol"`
	Error        string          `json:"error,omitempty"`
}

// claimableBatch только чтение: ?pools=a,b,c.
func (s *Server) claimableBatch(c *gin.Context) {
	var pools []string
	for _, p := range strings.Split(c.Query("pools"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			pools = append(pools, p)
		}
	}
	if len(pools) == 0 {
		s.fail(c, domain.Invalidf("pools query parameter is required"))
		return
	}

	total := decimal.Zero
	results := make([]claimableItem, 0, len(pools))
	for _, address := range pools {
		item := claimableItem{PoolAddress: address, ClaimableSol: decimal.Zero}
		amount, err := s.ledger.GetClaimable(c.Request.Context(), address)
		if err != nil {
			item.Error = err.Error()
		} else {
			item.ClaimableSol = amount
			total = total.Add(amount)
		}
		results = append(results, item)
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "totalClaimableSol": total})
}

func (s *Server) migrate(c *gin.Context) {
	res, err := s.lifecycle.Migrate(c.Request.Context(), c.Param("mint"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
