package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/solana-launchpad/internal/curve"
	"github.com/rovshanmuradov/solana-launchpad/internal/dex/dbc"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/events"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
	applog "github.com/rovshanmuradov/solana-launchpad/internal/utils/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TradeRequest Amount в SOL для покупки и в целых токенах для продажи.
type TradeRequest struct {
	Mint        string           `json:"mintAddress"`
	Trader      string           `json:"userWallet"`
	Direction   domain.Direction `json:"direction"`
	Amount      float64          `json:"amount"`
	SlippageBps uint16           `json:"slippageBps"`
}

type TradeStatus string

const (
	TradeConfirmed TradeStatus = "confirmed"
	TradePrepared  TradeStatus = "prepared"
	TradeUnknown   TradeStatus = "unknown"
)

// TradeResult ответ клиенту. Для prepared заполнены Transaction и OutstandingSigners.
type TradeResult struct {
	Status         TradeStatus      `json:"status"`
	Signature      string           `json:"signature,omitempty"`
	Direction      domain.Direction `json:"direction"`
	AmountIn       float64          `json:"amountIn"`
	TokensOut      float64          `json:"tokensOut"`
	SolOut         float64          `json:"solOut"`
	FeeSol         float64          `json:"feeSol"`
	PriceImpactPct float64          `json:"priceImpactPct"`
	NewPrice       float64          `json:"newPrice"`

	BondingProgressPct  float64 `json:"bondingProgress"`
	Graduated           bool    `json:"graduated"`
	Migrated            bool    `json:"migrated"`
	MigratedPoolAddress string  `json:"migratedPoolAddress,omitempty"`
	// GraduationPending порог достигнут, но переход в graduated не записан.
	GraduationPending bool `json:"graduationPending,omitempty"`
	// Duplicate подпись уже была учтена ранее.
	Duplicate bool `json:"duplicate,omitempty"`

	PreparedID         string     `json:"preparedId,omitempty"`
	Transaction        string     `json:"transaction,omitempty"`
	OutstandingSigners []string   `json:"outstandingSigners,omitempty"`
	ExpiresAt          *time.Time `json:"expiresAt,omitempty"`

	Pool *domain.Pool `json:"pool,omitempty"`
}

// tradeIntent сохраняется в PreparedTx.Payload: из него сделка рассчитывается и после рестарта.
type tradeIntent struct {
	Mint          string           `json:"mint"`
	PoolAddress   string           `json:"poolAddress"`
	Trader        string           `json:"trader"`
	Direction     domain.Direction `json:"direction"`
	AmountIn      float64          `json:"amountIn"`
	AmountInUnits uint64           `json:"amountInUnits"`
	// ExpectedOut токены (buy) или SOL после комиссии (sell) по котировке.
	ExpectedOut    float64 `json:"expectedOut"`
	ExpectedUnits  uint64  `json:"expectedUnits"`
	MinimumOut     uint64  `json:"minimumOut"`
	FeeSol         float64 `json:"feeSol"`
	VolumeSol      float64 `json:"volumeSol"`
	PriceImpactPct float64 `json:"priceImpactPct"`
	NewPrice       float64 `json:"newPrice"`
	Transaction    string  `json:"transaction"`
	// приращения резервов по котировке, как их применит программа
	VirtualSolDelta   float64 `json:"virtualSolDelta"`
	VirtualTokenDelta float64 `json:"virtualTokenDelta"`
	RealSolDelta      float64 `json:"realSolDelta"`
}

func (i *tradeIntent) result(status TradeStatus) *TradeResult {
	r := &TradeResult{
		Status:         status,
		Direction:      i.Direction,
		AmountIn:       i.AmountIn,
		FeeSol:         i.FeeSol,
		PriceImpactPct: i.PriceImpactPct,
		NewPrice:       i.NewPrice,
	}
	if i.Direction == domain.Buy {
		r.TokensOut = i.ExpectedOut
	} else {
		r.SolOut = i.ExpectedOut
	}
	return r
}

func (i *tradeIntent) reservesDelta() *domain.Reserves {
	return &domain.Reserves{
		VirtualSol:   i.VirtualSolDelta,
		VirtualToken: i.VirtualTokenDelta,
		RealSol:      i.RealSolDelta,
	}
}

// ExecuteTrade кастодиальный трейдер (ключ в keyring) - подпись и исполнение на сервере.
// Иначе возвращается подготовленная транзакция для подписи кошельком (см. SubmitSignedTrade).
func (o *Orchestrator) ExecuteTrade(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	trader, err := parseKey("userWallet", req.Trader)
	if err != nil {
		return nil, err
	}
	if !o.keys.IsCustodial(trader) {
		return o.PrepareTrade(ctx, req)
	}

	log := applog.WithOperation(o.logger, "execute_trade").With(
		zap.String("mint", req.Mint),
		zap.String("trader", req.Trader),
		zap.String("direction", string(req.Direction)))

	pool, intent, err := o.quoteTrade(ctx, req)
	if err != nil {
		return nil, err
	}
	traderKey, err := o.keys.Signer(trader)
	if err != nil {
		return nil, err
	}

	prepared, err := o.buildSwap(ctx, pool, intent, traderKey)
	if err != nil {
		return nil, &domain.TradeError{Op: "execute trade", Reason: "build swap", Pool: pool, Err: err}
	}
	sig := prepared.Tx.Signatures[0]

	record := o.newPrepared(domain.PreparedTrade, pool.Mint, req.Trader, prepared)
	record.Status = domain.PreparedSubmitted
	record.Signatures = []string{sig.String()}
	if record.Payload, err = json.Marshal(intent); err != nil {
		return nil, fmt.Errorf("encode trade intent: %w", err)
	}
	if err := o.store.SavePrepared(ctx, record); err != nil {
		return nil, fmt.Errorf("save trade record: %w", err)
	}

	log.Info("Submitting custodial trade",
		zap.Float64("amount", req.Amount),
		zap.Float64("expected_out", intent.ExpectedOut),
		zap.String("signature", sig.String()))
	return o.submitAndSettle(ctx, record.ID, pool, intent, prepared.Tx, log)
}

// PrepareTrade фаза 1 для некастодиального трейдера: транзакция без подписи плательщика.
func (o *Orchestrator) PrepareTrade(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	pool, intent, err := o.quoteTrade(ctx, req)
	if err != nil {
		return nil, err
	}

	prepared, err := o.buildSwap(ctx, pool, intent)
	if err != nil {
		return nil, &domain.TradeError{Op: "prepare trade", Reason: "build swap", Pool: pool, Err: err}
	}
	if intent.Transaction, err = prepared.Encode(); err != nil {
		return nil, err
	}

	record := o.newPrepared(domain.PreparedTrade, pool.Mint, req.Trader, prepared)
	if record.Payload, err = json.Marshal(intent); err != nil {
		return nil, fmt.Errorf("encode trade intent: %w", err)
	}
	if err := o.store.SavePrepared(ctx, record); err != nil {
		return nil, fmt.Errorf("save prepared trade: %w", err)
	}

	o.logger.Info("Trade prepared for client signing",
		zap.String("prepared_id", record.ID),
		zap.String("mint", pool.Mint),
		zap.String("trader", req.Trader),
		zap.Strings("outstanding", record.OutstandingSigners))

	res := intent.result(TradePrepared)
	res.PreparedID = record.ID
	res.Transaction = intent.Transaction
	res.OutstandingSigners = record.OutstandingSigners
	res.ExpiresAt = &record.ExpiresAt
	res.BondingProgressPct = pool.BondingProgressPct()
	res.Pool = pool
	return res, nil
}

// SubmitSignedTrade фаза 2: сообщение должно совпасть с подготовленным байт в байт.
func (o *Orchestrator) SubmitSignedTrade(ctx context.Context, preparedID, signedTx string) (*TradeResult, error) {
	record, err := o.openPrepared(ctx, preparedID, domain.PreparedTrade)
	if err != nil {
		return nil, err
	}
	var intent tradeIntent
	if err := json.Unmarshal(record.Payload, &intent); err != nil {
		return nil, fmt.Errorf("decode trade intent %s: %w", preparedID, err)
	}

	partial, err := transaction.Decode(intent.Transaction)
	if err != nil {
		return nil, err
	}
	signed, err := transaction.Decode(signedTx)
	if err != nil {
		return nil, err
	}
	tx, err := transaction.Merge(partial, record.MessageHashes[0], signed)
	if err != nil {
		return nil, err
	}

	pool, err := o.loadPool(ctx, intent.Mint)
	if err != nil {
		return nil, err
	}
	if !pool.Status.Tradable() {
		_ = o.store.TransitionPrepared(ctx, record.ID, domain.PreparedPending, domain.PreparedFailed, nil, "pool not tradable")
		return nil, notTradable("submit trade", pool)
	}

	sig := tx.Signatures[0]
	if err := o.store.TransitionPrepared(ctx, record.ID, domain.PreparedPending, domain.PreparedSubmitted,
		[]string{sig.String()}, ""); err != nil {
		return nil, fmt.Errorf("claim prepared trade %s: %w", preparedID, err)
	}

	log := applog.WithOperation(o.logger, "submit_signed_trade").With(
		zap.String("prepared_id", preparedID),
		zap.String("mint", intent.Mint),
		zap.String("signature", sig.String()))
	return o.submitAndSettle(ctx, record.ID, pool, &intent, tx, log)
}

// Quote котировка без побочных эффектов.
func (o *Orchestrator) Quote(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	pool, intent, err := o.quoteTrade(ctx, req)
	if err != nil {
		return nil, err
	}
	res := intent.result(TradePrepared)
	res.Status = ""
	res.BondingProgressPct = pool.BondingProgressPct()
	res.Pool = pool
	return res, nil
}

// quoteTrade шаги 1-2: валидация, снапшот пула, котировка.
func (o *Orchestrator) quoteTrade(ctx context.Context, req TradeRequest) (*domain.Pool, *tradeIntent, error) {
	if _, err := parseKey("mintAddress", req.Mint); err != nil {
		return nil, nil, err
	}
	if _, err := parseKey("userWallet", req.Trader); err != nil {
		return nil, nil, err
	}
	if req.Direction != domain.Buy && req.Direction != domain.Sell {
		return nil, nil, domain.Invalidf("direction must be buy or sell, got %q", req.Direction)
	}
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount <= 0 {
		return nil, nil, domain.Invalidf("amount must be positive")
	}
	if req.SlippageBps > o.config.MaxSlippageBps {
		return nil, nil, domain.Invalidf("slippageBps %d exceeds maximum %d", req.SlippageBps, o.config.MaxSlippageBps)
	}

	pool, err := o.loadPool(ctx, req.Mint)
	if err != nil {
		return nil, nil, err
	}
	if !pool.Status.Tradable() {
		return nil, nil, notTradable("quote trade", pool)
	}

	intent := &tradeIntent{
		Mint:        pool.Mint,
		PoolAddress: pool.Address,
		Trader:      req.Trader,
		Direction:   req.Direction,
		AmountIn:    req.Amount,
	}

	switch req.Direction {
	case domain.Buy:
		q, err := curve.QuoteBuy(req.Amount, pool.VirtualSol, pool.VirtualToken, pool.TradingFeeBps)
		if err != nil {
			return nil, nil, &domain.TradeError{Op: "quote buy", Reason: "curve rejected amount", Pool: pool, Err: err}
		}
		intent.AmountInUnits = curve.Lamports(req.Amount)
		intent.ExpectedOut = q.TokensOut
		intent.ExpectedUnits = curve.BaseUnits(q.TokensOut)
		intent.MinimumOut = curve.BaseUnits(curve.MinOut(q.TokensOut, req.SlippageBps))
		intent.FeeSol = q.FeeSol
		intent.VolumeSol = req.Amount
		intent.PriceImpactPct = q.PriceImpactPct
		intent.NewPrice = q.NewPrice
		intent.VirtualSolDelta = q.NewVirtualSol - pool.VirtualSol
		intent.VirtualTokenDelta = q.NewVirtualToken - pool.VirtualToken
		// RealSol учитывается брутто: комиссия остается в пуле до вывода
		intent.RealSolDelta = req.Amount
	case domain.Sell:
		units := curve.BaseUnits(req.Amount)
		if units == 0 {
			return nil, nil, domain.Invalidf("sell amount is below one token unit")
		}
		holding, err := o.store.GetHolding(ctx, pool.Mint, req.Trader)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("load holding: %w", err)
		}
		balance := decimal.Zero
		if holding != nil {
			balance = holding.Balance
		}
		if unitsToTokens(units).GreaterThan(balance) {
			return nil, nil, &domain.TradeError{
				Op:     "quote sell",
				Reason: fmt.Sprintf("sell of %s tokens exceeds holding of %s", unitsToTokens(units), balance),
				Pool:   pool,
				Err:    domain.ErrInvalidInput,
			}
		}
		q, err := curve.QuoteSell(req.Amount, pool.VirtualSol, pool.VirtualToken, pool.TradingFeeBps)
		if err != nil {
			return nil, nil, &domain.TradeError{Op: "quote sell", Reason: "curve rejected amount", Pool: pool, Err: err}
		}
		intent.AmountInUnits = units
		intent.ExpectedOut = q.SolOut
		intent.ExpectedUnits = curve.Lamports(q.SolOut)
		intent.MinimumOut = curve.Lamports(curve.MinOut(q.SolOut, req.SlippageBps))
		intent.FeeSol = q.FeeSol
		intent.VolumeSol = q.GrossSolOut
		intent.PriceImpactPct = q.PriceImpactPct
		intent.NewPrice = q.NewPrice
		intent.VirtualSolDelta = q.NewVirtualSol - pool.VirtualSol
		intent.VirtualTokenDelta = q.NewVirtualToken - pool.VirtualToken
		intent.RealSolDelta = -q.SolOut
	}
	return pool, intent, nil
}

// buildSwap шаг 3. signers пуст - плательщик подпишет на клиенте.
func (o *Orchestrator) buildSwap(ctx context.Context, pool *domain.Pool, intent *tradeIntent, signers ...solana.PrivateKey) (*transaction.Prepared, error) {
	accounts, err := swapAccounts(pool, intent.Trader)
	if err != nil {
		return nil, err
	}
	direction := dbc.DirectionBuy
	if intent.Direction == domain.Sell {
		direction = dbc.DirectionSell
	}
	ix, err := o.program.Swap(accounts, dbc.SwapArgs{
		AmountIn:         intent.AmountInUnits,
		MinimumAmountOut: intent.MinimumOut,
		Direction:        direction,
	})
	if err != nil {
		return nil, err
	}

	blockhash, err := o.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	builder := o.newBuilder().AddInstruction(ix).SetPayer(accounts.Trader)
	for _, s := range signers {
		builder.AddSigner(s)
	}
	return builder.Build(blockhash)
}

// submitAndSettle шаги 3-10 после того, как запись переведена в submitted.
func (o *Orchestrator) submitAndSettle(ctx context.Context, recordID string, pool *domain.Pool, intent *tradeIntent, tx *solana.Transaction, log *zap.Logger) (*TradeResult, error) {
	sig, conf, err := o.sendAndConfirm(ctx, tx)
	if err != nil {
		if sig.IsZero() {
			sig = tx.Signatures[0]
		}
		return nil, o.tradeFailure(ctx, recordID, pool, sig, err, log)
	}

	res, err := o.settleTrade(ctx, pool, intent, sig, conf.Slot, log)
	if err != nil {
		return nil, err
	}
	if err := o.store.TransitionPrepared(ctx, recordID, domain.PreparedSubmitted, domain.PreparedCompleted, nil, ""); err != nil &&
		!errors.Is(err, storage.ErrConflict) {
		log.Warn("Failed to complete trade record", zap.Error(err))
	}
	return res, nil
}

// tradeFailure таймаут - запись остается submitted до сверки; отказ цепи - failed.
func (o *Orchestrator) tradeFailure(ctx context.Context, recordID string, pool *domain.Pool, sig solana.Signature, err error, log *zap.Logger) error {
	if domain.IsUnknownOutcome(err) {
		log.Warn("Trade outcome unknown, left for reconciliation", zap.Error(err))
		return &domain.TradeError{
			Op:        "execute trade",
			Reason:    "transaction not confirmed in time, outcome unknown",
			Pool:      pool,
			Signature: sig.String(),
			Err:       err,
		}
	}

	if tErr := o.store.TransitionPrepared(ctx, recordID, domain.PreparedSubmitted, domain.PreparedFailed, nil, err.Error()); tErr != nil {
		log.Warn("Failed to mark trade record failed", zap.Error(tErr))
	}
	log.Warn("Trade failed", zap.Error(err))
	return &domain.TradeError{
		Op:        "execute trade",
		Reason:    "transaction rejected",
		Pool:      pool,
		Signature: sig.String(),
		Err:       err,
	}
}

// settleTrade шаги 4-10: авторитетные резервы из цепи, атомарная запись, graduation.
func (o *Orchestrator) settleTrade(ctx context.Context, pool *domain.Pool, intent *tradeIntent, sig solana.Signature, slot uint64, log *zap.Logger) (*TradeResult, error) {
	poolAddress, err := solana.PublicKeyFromBase58(intent.PoolAddress)
	if err != nil {
		return nil, fmt.Errorf("pool address: %w", err)
	}

	settlement := &domain.TradeSettlement{
		Trade: &domain.Trade{
			ID:          uuid.NewString(),
			PoolMint:    intent.Mint,
			PoolAddress: intent.PoolAddress,
			Trader:      intent.Trader,
			Direction:   intent.Direction,
			AmountIn:    intent.AmountIn,
			AmountOut:   intent.ExpectedOut,
			Signature:   sig.String(),
			Slot:        slot,
		},
		VolumeSol: curve.SolDecimal(intent.VolumeSol),
	}
	if intent.ExpectedOut > 0 {
		if intent.Direction == domain.Buy {
			settlement.Trade.PriceSol = intent.AmountIn / intent.ExpectedOut
		} else {
			settlement.Trade.PriceSol = intent.ExpectedOut / intent.AmountIn
		}
	}

	system, creator := curve.FeeSplit(intent.FeeSol, pool.CreatorFeeShareBps)
	settlement.Trade.SystemFeeSol, settlement.Trade.CreatorFeeSol = system, creator
	settlement.Fees = []domain.FeeAccrual{
		{EarnerType: domain.EarnerSystem, AmountSol: system},
		{EarnerType: domain.EarnerCreator, AmountSol: creator},
	}
	if intent.Direction == domain.Buy {
		settlement.HoldingDelta = unitsToTokens(intent.ExpectedUnits)
	} else {
		settlement.HoldingDelta = unitsToTokens(intent.AmountInUnits).Neg()
	}

	account, readSlot, err := o.readPoolAccount(ctx, poolAddress)
	switch {
	case err != nil:
		// сделка подтверждена: резервы по котировке, следующее чтение с цепи их перезапишет
		log.Warn("Pool account read failed after confirmation, applying quoted reserves", zap.Error(err))
		settlement.ReservesDelta = intent.reservesDelta()
	case account == nil:
		log.Warn("Pool account missing after confirmed trade, applying quoted reserves")
		settlement.ReservesDelta = intent.reservesDelta()
	default:
		settlement.Reserves = account.Reserves()
		settlement.ReservesSlot = readSlot
	}

	realSol := settlement.Reserves.RealSol
	if d := settlement.ReservesDelta; d != nil {
		realSol = math.Max(0, pool.RealSol+d.RealSol)
	}

	res := intent.result(TradeConfirmed)
	res.Signature = sig.String()

	err = o.store.ApplyTrade(ctx, settlement)
	switch {
	case errors.Is(err, storage.ErrDuplicateKey):
		log.Info("Trade already recorded, skipping")
		res.Duplicate = true
	case err != nil:
		// исход в цепи известен, запись не удалась - сверка повторит ApplyTrade
		return nil, &domain.TradeError{
			Op:        "record trade",
			Reason:    "confirmed on chain but not recorded",
			Pool:      pool,
			Signature: sig.String(),
			Err:       err,
		}
	default:
		log.Info("Trade settled",
			zap.Uint64("slot", slot),
			zap.Float64("real_sol", realSol),
			zap.Uint64("reserves_slot", settlement.ReservesSlot))
		o.publish(events.TradeExecutedEvent{
			BaseEvent: events.NewBase(events.TradeExecuted, intent.Mint),
			Signature: sig.String(),
			Trader:    intent.Trader,
			Direction: string(intent.Direction),
			AmountIn:  intent.AmountIn,
			AmountOut: intent.ExpectedOut,
			RealSol:   realSol,
		})
	}

	current, err := o.store.GetPool(ctx, intent.Mint)
	if err != nil {
		return nil, fmt.Errorf("reload pool: %w", err)
	}
	crossed := current.ReachedThreshold() ||
		(settlement.ReservesSlot > 0 && settlement.Reserves.RealSol >= current.GraduationThresholdSol)
	if crossed && current.Status == domain.StatusBonding {
		graduated, err := o.graduate(ctx, current, log)
		if err != nil {
			// сделка уже учтена: переход повторит GraduatePending
			log.Error("Graduation transition failed, deferred to sweeper", zap.Error(err))
			res.GraduationPending = true
		}
		current = graduated
	}

	res.Graduated = current.Status != domain.StatusBonding
	res.Migrated = current.Status == domain.StatusMigrated
	res.MigratedPoolAddress = current.MigratedPoolAddress
	res.BondingProgressPct = current.BondingProgressPct()
	res.Pool = current
	return res, nil
}

func swapAccounts(pool *domain.Pool, trader string) (dbc.SwapAccounts, error) {
	var (
		a   dbc.SwapAccounts
		err error
	)
	if a.Config, err = solana.PublicKeyFromBase58(pool.ConfigAddress); err != nil {
		return a, fmt.Errorf("config address: %w", err)
	}
	if a.Pool, err = solana.PublicKeyFromBase58(pool.Address); err != nil {
		return a, fmt.Errorf("pool address: %w", err)
	}
	if a.Mint, err = solana.PublicKeyFromBase58(pool.Mint); err != nil {
		return a, fmt.Errorf("mint: %w", err)
	}
	if a.Trader, err = solana.PublicKeyFromBase58(trader); err != nil {
		return a, domain.Invalidf("userWallet is not a valid address")
	}
	return a, nil
}

func notTradable(op string, pool *domain.Pool) error {
	return &domain.TradeError{
		Op:     op,
		Reason: fmt.Sprintf("pool is %s; trade on the migrated venue", pool.Status),
		Pool:   pool,
		Err:    domain.ErrPoolNotTradable,
	}
}

// unitsToTokens минимальные единицы -> целые токены без округления.
func unitsToTokens(units uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -curve.TokenDecimals)
}
