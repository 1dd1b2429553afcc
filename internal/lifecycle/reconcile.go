package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/hashicorp/go-multierror"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
	applog "github.com/rovshanmuradov/solana-launchpad/internal/utils/logger"
	"go.uber.org/zap"
)

const reconcileBatch = 100

// ReconcileStats итог одного прохода сверки.
type ReconcileStats struct {
	Settled int `json:"settled"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// Reconcile проходит по записям в статусе submitted, исход которых неизвестен.
// Подтвержденные сделки учитываются (повтор безопасен: подпись уникальна),
// отклоненные закрываются, неизвестные остаются до следующего прохода.
func (o *Orchestrator) Reconcile(ctx context.Context) (*ReconcileStats, error) {
	log := applog.WithOperation(o.logger, "reconcile")
	stats := &ReconcileStats{}
	var result *multierror.Error

	trades, err := o.store.ListPrepared(ctx, domain.PreparedTrade, domain.PreparedSubmitted, reconcileBatch)
	if err != nil {
		return nil, fmt.Errorf("list submitted trades: %w", err)
	}
	for _, record := range trades {
		if err := o.reconcileTrade(ctx, record, stats, log); err != nil {
			result = multierror.Append(result, fmt.Errorf("trade %s: %w", record.ID, err))
		}
	}

	launches, err := o.store.ListPrepared(ctx, domain.PreparedLaunch, domain.PreparedSubmitted, reconcileBatch)
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("list submitted launches: %w", err))
		return stats, result.ErrorOrNil()
	}
	for _, record := range launches {
		if err := o.reconcileLaunch(ctx, record, stats, log); err != nil {
			result = multierror.Append(result, fmt.Errorf("launch %s: %w", record.ID, err))
		}
	}

	if stats.Settled+stats.Failed > 0 {
		log.Info("Reconciliation pass finished",
			zap.Int("settled", stats.Settled),
			zap.Int("failed", stats.Failed),
			zap.Int("pending", stats.Pending))
	}
	return stats, result.ErrorOrNil()
}

func (o *Orchestrator) reconcileTrade(ctx context.Context, record *domain.PreparedTx, stats *ReconcileStats, log *zap.Logger) error {
	if len(record.Signatures) == 0 {
		return errors.New("submitted record has no signature")
	}
	sig, err := solana.SignatureFromBase58(record.Signatures[0])
	if err != nil {
		return fmt.Errorf("parse signature: %w", err)
	}
	log = log.With(zap.String("prepared_id", record.ID), zap.String("signature", sig.String()))

	conf, err := o.chain.Confirm(ctx, sig, "", o.config.ReconcileTimeout)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrOnChainFailure):
		o.closeRecord(ctx, record, domain.PreparedFailed, err.Error(), log)
		stats.Failed++
		return nil
	case domain.IsUnknownOutcome(err):
		if o.now().After(record.ExpiresAt) {
			// blockhash давно истек: транзакция уже не приземлится
			o.closeRecord(ctx, record, domain.PreparedFailed, "not confirmed before expiry", log)
			stats.Failed++
			return nil
		}
		stats.Pending++
		return nil
	default:
		stats.Pending++
		return err
	}

	var intent tradeIntent
	if err := json.Unmarshal(record.Payload, &intent); err != nil {
		return fmt.Errorf("decode trade intent: %w", err)
	}
	pool, err := o.loadPool(ctx, intent.Mint)
	if err != nil {
		return err
	}
	if _, err := o.settleTrade(ctx, pool, &intent, sig, conf.Slot, log); err != nil {
		return err
	}
	o.closeRecord(ctx, record, domain.PreparedCompleted, "", log)
	stats.Settled++
	return nil
}

// reconcileLaunch существование пула в цепи важнее статусов подписей:
// вторая транзакция могла так и не уйти после таймаута первой.
func (o *Orchestrator) reconcileLaunch(ctx context.Context, record *domain.PreparedTx, stats *ReconcileStats, log *zap.Logger) error {
	var plan launchPlan
	if err := json.Unmarshal(record.Payload, &plan); err != nil {
		return fmt.Errorf("decode launch plan: %w", err)
	}
	log = log.With(zap.String("prepared_id", record.ID), zap.String("mint", plan.Mint))

	poolAddr, err := solana.PublicKeyFromBase58(plan.PoolAddress)
	if err != nil {
		return fmt.Errorf("pool address: %w", err)
	}
	state, err := o.chain.GetAccountState(ctx, poolAddr)
	if err != nil {
		stats.Pending++
		return err
	}
	if state != nil {
		if _, err := o.finalizeLaunch(ctx, &plan, log); err != nil {
			return err
		}
		o.closeRecord(ctx, record, domain.PreparedCompleted, "", log)
		stats.Settled++
		return nil
	}

	for _, s := range record.Signatures {
		sig, err := solana.SignatureFromBase58(s)
		if err != nil {
			return fmt.Errorf("parse signature: %w", err)
		}
		if _, err := o.chain.Confirm(ctx, sig, "", o.config.ReconcileTimeout); errors.Is(err, domain.ErrOnChainFailure) {
			o.failLaunch(ctx, record, &plan, err, log)
			stats.Failed++
			return nil
		}
	}
	if o.now().After(record.ExpiresAt) {
		o.failLaunch(ctx, record, &plan, errors.New("pool not created before expiry"), log)
		stats.Failed++
		return nil
	}
	stats.Pending++
	return nil
}

func (o *Orchestrator) closeRecord(ctx context.Context, record *domain.PreparedTx, to domain.PreparedStatus, msg string, log *zap.Logger) {
	err := o.store.TransitionPrepared(ctx, record.ID, domain.PreparedSubmitted, to, nil, msg)
	if err != nil && !errors.Is(err, storage.ErrConflict) {
		log.Warn("Failed to close prepared record", zap.String("to", string(to)), zap.Error(err))
	}
}

// SweepStats итог очистки.
type SweepStats struct {
	Expired       int `json:"expired"`
	Released      int `json:"released"`
	MarkedUsed    int `json:"markedUsed"`
	StillInFlight int `json:"stillInFlight"`
}

// SweepExpired истекшие prepared записи и зависшие vanity резервы.
// Резерв с минтом, уже существующим в цепи, помечается used, иначе возвращается в пул.
func (o *Orchestrator) SweepExpired(ctx context.Context, now time.Time) (*SweepStats, error) {
	log := applog.WithOperation(o.logger, "sweep")
	stats := &SweepStats{}
	var result *multierror.Error

	expired, err := o.store.ListExpiredPrepared(ctx, now, reconcileBatch)
	if err != nil {
		return nil, fmt.Errorf("list expired prepared: %w", err)
	}
	for _, record := range expired {
		err := o.store.TransitionPrepared(ctx, record.ID, domain.PreparedPending, domain.PreparedExpired, nil, "expired before signing")
		if errors.Is(err, storage.ErrConflict) {
			continue
		}
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("expire %s: %w", record.ID, err))
			continue
		}
		stats.Expired++
		if record.VanityKeypairID != "" && o.vanity != nil {
			if err := o.vanity.Release(ctx, record.VanityKeypairID); err != nil {
				result = multierror.Append(result, fmt.Errorf("release vanity %s: %w", record.VanityKeypairID, err))
				continue
			}
			stats.Released++
		}
	}

	if o.vanity != nil {
		if err := o.sweepReservations(ctx, now, stats, log); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if stats.Expired+stats.Released+stats.MarkedUsed > 0 {
		log.Info("Sweep finished",
			zap.Int("expired", stats.Expired),
			zap.Int("released", stats.Released),
			zap.Int("marked_used", stats.MarkedUsed))
	}
	return stats, result.ErrorOrNil()
}

func (o *Orchestrator) sweepReservations(ctx context.Context, now time.Time, stats *SweepStats, log *zap.Logger) error {
	stale, err := o.vanity.StaleReservations(ctx, o.config.VanityReservationTTL, reconcileBatch)
	if err != nil {
		return fmt.Errorf("list stale reservations: %w", err)
	}
	var result *multierror.Error
	for _, kp := range stale {
		record, err := o.store.FindPreparedByVanity(ctx, kp.ID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			result = multierror.Append(result, fmt.Errorf("vanity %s: %w", kp.ID, err))
			continue
		}
		if record != nil && (record.Status == domain.PreparedSubmitted ||
			(record.Status == domain.PreparedPending && !record.Expired(now))) {
			stats.StillInFlight++
			continue
		}

		mint, err := solana.PublicKeyFromBase58(kp.PublicKey)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("vanity %s public key: %w", kp.ID, err))
			continue
		}
		state, err := o.chain.GetAccountState(ctx, mint)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("vanity %s chain check: %w", kp.ID, err))
			continue
		}
		if state != nil {
			if err := o.vanity.MarkUsed(ctx, kp.ID, kp.PublicKey); err != nil {
				result = multierror.Append(result, err)
				continue
			}
			log.Info("Stale vanity reservation already minted, marked used", zap.String("vanity_id", kp.ID))
			stats.MarkedUsed++
			continue
		}
		if err := o.vanity.Release(ctx, kp.ID); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		stats.Released++
	}
	return result.ErrorOrNil()
}
