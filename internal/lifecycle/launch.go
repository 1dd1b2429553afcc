package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/solana-launchpad/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/solana-launchpad/internal/curve"
	"github.com/rovshanmuradov/solana-launchpad/internal/dex/dbc"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/events"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
	applog "github.com/rovshanmuradov/solana-launchpad/internal/utils/logger"
	"github.com/rovshanmuradov/solana-launchpad/internal/vanity"
	"go.uber.org/zap"
)

// LaunchMode immediate - агентский запуск с подписью на сервере,
// deferred - кошелек создателя подписывает и платит сам.
type LaunchMode string

const (
	LaunchImmediate LaunchMode = "immediate"
	LaunchDeferred  LaunchMode = "deferred"
)

type CreatePoolRequest struct {
	Name               string     `json:"name"`
	Ticker             string     `json:"ticker"`
	Description        string     `json:"description"`
	ImageURL           string     `json:"imageUrl"`
	CreatorWallet      string     `json:"creatorWallet"`
	FeeRecipientWallet string     `json:"feeRecipientWallet"`
	TradingFeeBps      uint16     `json:"tradingFeeBps"`
	UseVanityAddress   bool       `json:"useVanityAddress"`
	Mode               LaunchMode `json:"mode"`
}

type CreatePoolResult struct {
	MintAddress   string `json:"mintAddress"`
	PoolAddress   string `json:"poolAddress"`
	ConfigAddress string `json:"configAddress"`
	Vanity        bool   `json:"vanity"`

	Signatures []string     `json:"signatures,omitempty"`
	Pool       *domain.Pool `json:"pool,omitempty"`

	PreparedID           string     `json:"preparedId,omitempty"`
	UnsignedTransactions []string   `json:"unsignedTransactions,omitempty"`
	OutstandingSigners   []string   `json:"outstandingSigners,omitempty"`
	ExpiresAt            *time.Time `json:"expiresAt,omitempty"`
}

// launchPlan все, что нужно для завершения запуска, в том числе после рестарта.
type launchPlan struct {
	Request       CreatePoolRequest `json:"request"`
	Mint          string            `json:"mint"`
	PoolAddress   string            `json:"poolAddress"`
	ConfigAddress string            `json:"configAddress"`
	FeeClaimer    string            `json:"feeClaimer"`
	TradingFeeBps uint16            `json:"tradingFeeBps"`
	VanityID      string            `json:"vanityId,omitempty"`
	// Transactions config, затем pool; base64 с серверными подписями.
	Transactions []string `json:"transactions"`
}

const (
	maxNameLen   = 32
	maxTickerLen = 10
	maxURILen    = 200
)

func (o *Orchestrator) validateLaunch(req *CreatePoolRequest) (creator solana.PublicKey, err error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Ticker = strings.TrimSpace(req.Ticker)
	switch {
	case req.Name == "" || len(req.Name) > maxNameLen:
		return creator, domain.Invalidf("name must be 1-%d characters", maxNameLen)
	case req.Ticker == "" || len(req.Ticker) > maxTickerLen:
		return creator, domain.Invalidf("ticker must be 1-%d characters", maxTickerLen)
	case len(req.ImageURL) > maxURILen:
		return creator, domain.Invalidf("imageUrl exceeds %d characters", maxURILen)
	}
	if creator, err = parseKey("creatorWallet", req.CreatorWallet); err != nil {
		return creator, err
	}
	if req.FeeRecipientWallet == "" {
		req.FeeRecipientWallet = req.CreatorWallet
	} else if _, err = parseKey("feeRecipientWallet", req.FeeRecipientWallet); err != nil {
		return creator, err
	}
	if req.TradingFeeBps == 0 {
		req.TradingFeeBps = o.config.DefaultTradingFeeBps
	}
	if req.TradingFeeBps > o.config.MaxTradingFeeBps {
		return creator, domain.Invalidf("tradingFeeBps %d exceeds maximum %d", req.TradingFeeBps, o.config.MaxTradingFeeBps)
	}
	switch req.Mode {
	case "":
		req.Mode = LaunchDeferred
	case LaunchImmediate, LaunchDeferred:
	default:
		return creator, domain.Invalidf("unknown launch mode %q", req.Mode)
	}
	return creator, nil
}

// CreatePool строит транзакции создания config и пула. Vanity пара резервируется
// первой и освобождается на любом пути отказа.
func (o *Orchestrator) CreatePool(ctx context.Context, req CreatePoolRequest) (*CreatePoolResult, error) {
	creator, err := o.validateLaunch(&req)
	if err != nil {
		return nil, err
	}
	log := applog.WithOperation(o.logger, "create_pool").With(
		zap.String("creator", req.CreatorWallet),
		zap.String("ticker", req.Ticker),
		zap.String("mode", string(req.Mode)))

	feeClaimer, err := o.keys.Treasury()
	if err != nil {
		return nil, err
	}
	var payer solana.PublicKey
	var deployerKey solana.PrivateKey
	if req.Mode == LaunchImmediate {
		if payer, err = o.keys.Deployer(); err != nil {
			return nil, err
		}
		if deployerKey, err = o.keys.Signer(payer); err != nil {
			return nil, err
		}
	} else {
		payer = creator
	}

	mintKey, reservation, err := o.reserveMint(ctx, req.UseVanityAddress, log)
	if err != nil {
		return nil, err
	}
	// резерв, не переданный в запись prepared или не помеченный used, освобождается
	keepReservation := false
	defer func() {
		if reservation != nil && !keepReservation {
			o.releaseVanity(reservation.ID, log)
		}
	}()

	configKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate config key: %w", err)
	}

	plan := &launchPlan{
		Request:       req,
		Mint:          mintKey.PublicKey().String(),
		ConfigAddress: configKey.PublicKey().String(),
		FeeClaimer:    feeClaimer.String(),
		TradingFeeBps: req.TradingFeeBps,
	}
	if reservation != nil {
		plan.VanityID = reservation.ID
	}

	signers := []solana.PrivateKey{configKey, mintKey}
	if deployerKey != nil {
		signers = append(signers, deployerKey)
	}

	if req.Mode == LaunchImmediate {
		pool, sigs, err := o.launchImmediate(ctx, plan, payer, creator, signers, log)
		if err != nil {
			if len(sigs) > 0 {
				// часть запуска могла попасть в цепь: mint уже не свободен, завершает сверка
				keepReservation = true
				o.handOffLaunch(ctx, plan, sigs, err, log)
			}
			return nil, err
		}
		keepReservation = plan.VanityID != ""
		return &CreatePoolResult{
			MintAddress:   plan.Mint,
			PoolAddress:   plan.PoolAddress,
			ConfigAddress: plan.ConfigAddress,
			Vanity:        plan.VanityID != "",
			Signatures:    sigs,
			Pool:          pool,
		}, nil
	}

	txs, err := o.buildLaunch(ctx, plan, payer, creator, signers)
	if err != nil {
		return nil, fmt.Errorf("build launch transactions: %w", err)
	}
	record := o.newPrepared(domain.PreparedLaunch, plan.Mint, req.CreatorWallet, txs...)
	record.VanityKeypairID = plan.VanityID
	if record.Payload, err = json.Marshal(plan); err != nil {
		return nil, fmt.Errorf("encode launch plan: %w", err)
	}
	if err := o.store.SavePrepared(ctx, record); err != nil {
		return nil, fmt.Errorf("save prepared launch: %w", err)
	}
	// дальше резерв живет вместе с записью: его освобождает сверка или CompleteLaunch
	keepReservation = true

	log.Info("Launch prepared for wallet signing",
		zap.String("prepared_id", record.ID),
		zap.String("mint", plan.Mint),
		zap.String("pool", plan.PoolAddress),
		zap.Bool("vanity", plan.VanityID != ""))
	return &CreatePoolResult{
		MintAddress:          plan.Mint,
		PoolAddress:          plan.PoolAddress,
		ConfigAddress:        plan.ConfigAddress,
		Vanity:               plan.VanityID != "",
		PreparedID:           record.ID,
		UnsignedTransactions: plan.Transactions,
		OutstandingSigners:   record.OutstandingSigners,
		ExpiresAt:            &record.ExpiresAt,
	}, nil
}

// reserveMint vanity пара, если доступна; иначе случайный mint.
func (o *Orchestrator) reserveMint(ctx context.Context, useVanity bool, log *zap.Logger) (solana.PrivateKey, *vanity.Keypair, error) {
	if useVanity && o.vanity != nil && o.config.VanitySuffix != "" {
		kp, err := o.vanity.Reserve(ctx, o.config.VanitySuffix)
		switch {
		case err != nil:
			log.Warn("Vanity reservation failed, using random mint", zap.Error(err))
		case kp == nil:
			log.Info("Vanity pool exhausted, using random mint",
				zap.NamedError("reason", domain.ErrResourceExhausted))
		default:
			return kp.PrivateKey, kp, nil
		}
	}
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("generate mint key: %w", err)
	}
	return key, nil, nil
}

func (o *Orchestrator) releaseVanity(id string, log *zap.Logger) {
	if o.vanity == nil || id == "" {
		return
	}
	// отдельный контекст: исходный мог быть отменен
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.vanity.Release(ctx, id); err != nil {
		log.Error("Vanity release failed", zap.String("vanity_id", id), zap.Error(err))
	}
}

// buildLaunch create_config + initialize_virtual_pool, частично подписанные.
func (o *Orchestrator) buildLaunch(ctx context.Context, plan *launchPlan, payer, creator solana.PublicKey, signers []solana.PrivateKey) ([]*transaction.Prepared, error) {
	configAddr := solana.MustPublicKeyFromBase58(plan.ConfigAddress)
	mint := solana.MustPublicKeyFromBase58(plan.Mint)
	feeClaimer := solana.MustPublicKeyFromBase58(plan.FeeClaimer)

	configIx, err := o.program.CreateConfig(configAddr, feeClaimer, payer, dbc.CreateConfigArgs{
		TradingFeeBps:       plan.TradingFeeBps,
		CreatorFeeShareBps:  o.config.CreatorFeeShareBps,
		InitialVirtualSol:   curve.Lamports(o.config.InitialVirtualSol),
		InitialVirtualToken: curve.BaseUnits(o.config.InitialVirtualToken),
		TotalSupply:         curve.BaseUnits(o.config.TotalSupply),
		MigrationThreshold:  curve.Lamports(o.config.GraduationThresholdSol),
	})
	if err != nil {
		return nil, err
	}
	poolIx, poolAddr, err := o.program.InitializePool(dbc.InitializePoolAccounts{
		Config:  configAddr,
		Creator: creator,
		Mint:    mint,
		Payer:   payer,
	}, dbc.InitializePoolArgs{
		Name:   plan.Request.Name,
		Symbol: plan.Request.Ticker,
		URI:    plan.Request.ImageURL,
	})
	if err != nil {
		return nil, err
	}
	plan.PoolAddress = poolAddr.String()

	blockhash, err := o.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	plan.Transactions = plan.Transactions[:0]
	var out []*transaction.Prepared
	for _, ix := range []solana.Instruction{configIx, poolIx} {
		builder := o.newBuilder().AddInstruction(ix).SetPayer(payer)
		for _, s := range signers {
			builder.AddSigner(s)
		}
		prepared, err := builder.Build(blockhash)
		if err != nil {
			return nil, err
		}
		encoded, err := prepared.Encode()
		if err != nil {
			return nil, err
		}
		plan.Transactions = append(plan.Transactions, encoded)
		out = append(out, prepared)
	}
	return out, nil
}

// launchImmediate каждая транзакция - до LaunchMaxAttempts попыток со свежим blockhash;
// после отправки существование аккаунта проверяется в цепи.
// При ошибке возвращаются подписи, которые приземлились или могли приземлиться.
func (o *Orchestrator) launchImmediate(ctx context.Context, plan *launchPlan, payer, creator solana.PublicKey, signers []solana.PrivateKey, log *zap.Logger) (*domain.Pool, []string, error) {
	targets := []solana.PublicKey{solana.MustPublicKeyFromBase58(plan.ConfigAddress)}

	var sigs, inFlight []string
	for step := 0; step < 2; step++ {
		var lastErr error
		landed := false
		for attempt := 1; attempt <= o.config.LaunchMaxAttempts && !landed; attempt++ {
			txs, err := o.buildLaunch(ctx, plan, payer, creator, signers)
			if err != nil {
				return nil, append(sigs, inFlight...), fmt.Errorf("build launch transactions: %w", err)
			}
			if step == 1 && len(targets) == 1 {
				targets = append(targets, solana.MustPublicKeyFromBase58(plan.PoolAddress))
			}
			tx := txs[step].Tx

			sig, _, err := o.sendAndConfirm(ctx, tx)
			if err == nil {
				sigs = append(sigs, sig.String())
				landed = true
				break
			}
			lastErr = err
			log.Warn("Launch transaction attempt failed",
				zap.Int("step", step),
				zap.Int("attempt", attempt),
				zap.Error(err))

			// прошлая попытка могла приземлиться, несмотря на ошибку
			if state, readErr := o.chain.GetAccountState(ctx, targets[step]); readErr == nil && state != nil {
				sigs = append(sigs, tx.Signatures[0].String())
				landed = true
			} else if domain.IsUnknownOutcome(err) {
				inFlight = append(inFlight, tx.Signatures[0].String())
			}
			if errors.Is(err, domain.ErrInvalidInput) {
				break
			}
		}
		if !landed {
			return nil, append(sigs, inFlight...), &domain.TradeError{Op: "create pool", Reason: "launch transaction did not land", Err: lastErr}
		}
	}

	pool, err := o.finalizeLaunch(ctx, plan, log)
	if err != nil {
		return nil, sigs, err
	}
	return pool, sigs, nil
}

// handOffLaunch сохраняет прерванный немедленный запуск как submitted запись:
// Reconcile создаст пул, когда аккаунт станет виден, или освободит vanity пару по истечении.
// Без записи резерв остается за sweepReservations.
func (o *Orchestrator) handOffLaunch(ctx context.Context, plan *launchPlan, sigs []string, cause error, log *zap.Logger) {
	record := o.newPrepared(domain.PreparedLaunch, plan.Mint, plan.Request.CreatorWallet)
	record.Status = domain.PreparedSubmitted
	record.Signatures = sigs
	record.VanityKeypairID = plan.VanityID
	record.Error = cause.Error()

	payload, err := json.Marshal(plan)
	if err == nil {
		record.Payload = payload
		// отдельный контекст: исходный мог быть отменен
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err = o.store.SavePrepared(saveCtx, record)
	}
	if err != nil {
		log.Error("Failed to hand off interrupted launch", zap.String("mint", plan.Mint), zap.Error(err))
		return
	}
	log.Warn("Launch interrupted after submission, left for reconciliation",
		zap.String("prepared_id", record.ID),
		zap.String("mint", plan.Mint),
		zap.Strings("signatures", sigs),
		zap.NamedError("reason", cause))
}

// CompleteLaunch фаза 2 отложенного запуска: транзакции, подписанные кошельком создателя.
func (o *Orchestrator) CompleteLaunch(ctx context.Context, preparedID string, signedTxs []string) (*CreatePoolResult, error) {
	record, err := o.openPrepared(ctx, preparedID, domain.PreparedLaunch)
	if err != nil {
		return nil, err
	}
	var plan launchPlan
	if err := json.Unmarshal(record.Payload, &plan); err != nil {
		return nil, fmt.Errorf("decode launch plan %s: %w", preparedID, err)
	}
	if len(signedTxs) != len(plan.Transactions) || len(record.MessageHashes) != len(plan.Transactions) {
		return nil, domain.Invalidf("expected %d signed transactions, got %d", len(plan.Transactions), len(signedTxs))
	}

	var txs []*solana.Transaction
	var sigs []string
	for i, encoded := range signedTxs {
		partial, err := transaction.Decode(plan.Transactions[i])
		if err != nil {
			return nil, err
		}
		signed, err := transaction.Decode(encoded)
		if err != nil {
			return nil, err
		}
		merged, err := transaction.Merge(partial, record.MessageHashes[i], signed)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		txs = append(txs, merged)
		sigs = append(sigs, merged.Signatures[0].String())
	}

	if err := o.store.TransitionPrepared(ctx, record.ID, domain.PreparedPending, domain.PreparedSubmitted, sigs, ""); err != nil {
		return nil, fmt.Errorf("claim prepared launch %s: %w", preparedID, err)
	}

	log := applog.WithOperation(o.logger, "complete_launch").With(
		zap.String("prepared_id", preparedID),
		zap.String("mint", plan.Mint))

	for i, tx := range txs {
		if _, _, err := o.sendAndConfirm(ctx, tx); err != nil {
			if domain.IsUnknownOutcome(err) {
				log.Warn("Launch outcome unknown, left for reconciliation", zap.Int("step", i), zap.Error(err))
				return nil, &domain.TradeError{Op: "complete launch", Reason: "transaction not confirmed in time, outcome unknown",
					Signature: sigs[i], Err: err}
			}
			o.failLaunch(ctx, record, &plan, err, log)
			return nil, &domain.TradeError{Op: "complete launch", Reason: "launch transaction rejected", Signature: sigs[i], Err: err}
		}
	}

	pool, err := o.finalizeLaunch(ctx, &plan, log)
	if err != nil {
		return nil, err
	}
	if err := o.store.TransitionPrepared(ctx, record.ID, domain.PreparedSubmitted, domain.PreparedCompleted, nil, ""); err != nil {
		log.Warn("Failed to complete launch record", zap.Error(err))
	}
	return &CreatePoolResult{
		MintAddress:   plan.Mint,
		PoolAddress:   plan.PoolAddress,
		ConfigAddress: plan.ConfigAddress,
		Vanity:        plan.VanityID != "",
		Signatures:    sigs,
		Pool:          pool,
	}, nil
}

func (o *Orchestrator) failLaunch(ctx context.Context, record *domain.PreparedTx, plan *launchPlan, cause error, log *zap.Logger) {
	if err := o.store.TransitionPrepared(ctx, record.ID, domain.PreparedSubmitted, domain.PreparedFailed, nil, cause.Error()); err != nil {
		log.Warn("Failed to mark launch record failed", zap.Error(err))
	}
	o.releaseVanity(plan.VanityID, log)
	log.Warn("Launch failed", zap.Error(cause))
}

// finalizeLaunch общий хвост обоих вариантов: проверка пула в цепи, vanity used, строка Pool.
func (o *Orchestrator) finalizeLaunch(ctx context.Context, plan *launchPlan, log *zap.Logger) (*domain.Pool, error) {
	poolAddr := solana.MustPublicKeyFromBase58(plan.PoolAddress)
	state, err := o.waitVisible(ctx, poolAddr)
	if err != nil {
		return nil, &domain.TradeError{Op: "create pool", Reason: "pool account not found after broadcast", Err: err}
	}
	account, err := dbc.DecodeVirtualPool(state.Data)
	if err != nil {
		return nil, fmt.Errorf("decode created pool: %w", err)
	}

	if plan.VanityID != "" && o.vanity != nil {
		if err := o.vanity.MarkUsed(ctx, plan.VanityID, plan.Mint); err != nil && !errors.Is(err, storage.ErrConflict) {
			log.Error("Failed to mark vanity keypair used", zap.String("vanity_id", plan.VanityID), zap.Error(err))
		}
	}

	req := plan.Request
	pool := &domain.Pool{
		Mint:                   plan.Mint,
		Address:                plan.PoolAddress,
		ConfigAddress:          plan.ConfigAddress,
		Creator:                req.CreatorWallet,
		FeeRecipient:           req.FeeRecipientWallet,
		Name:                   req.Name,
		Ticker:                 req.Ticker,
		Description:            req.Description,
		ImageURL:               req.ImageURL,
		Reserves:               account.Reserves(),
		InitialVirtualSol:      o.config.InitialVirtualSol,
		TotalSupply:            o.config.TotalSupply,
		TradingFeeBps:          plan.TradingFeeBps,
		CreatorFeeShareBps:     o.config.CreatorFeeShareBps,
		GraduationThresholdSol: o.config.GraduationThresholdSol,
		Status:                 domain.StatusBonding,
		ReservesSlot:           state.Slot,
	}
	err = o.store.CreatePool(ctx, pool)
	if errors.Is(err, storage.ErrDuplicateKey) {
		// сверка и клиент могли завершить один и тот же запуск
		return o.store.GetPool(ctx, plan.Mint)
	}
	if err != nil {
		return nil, fmt.Errorf("insert pool: %w", err)
	}

	log.Info("Pool created",
		zap.String("mint", plan.Mint),
		zap.String("pool", plan.PoolAddress),
		zap.Bool("vanity", plan.VanityID != ""))
	o.publish(events.PoolCreatedEvent{
		BaseEvent:   events.NewBase(events.PoolCreated, plan.Mint),
		PoolAddress: plan.PoolAddress,
		Creator:     req.CreatorWallet,
		Vanity:      plan.VanityID != "",
	})
	return o.store.GetPool(ctx, plan.Mint)
}
