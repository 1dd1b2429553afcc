package fees

import (
	"context"
	"fmt"

	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	applog "github.com/rovshanmuradov/solana-launchpad/internal/utils/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ItemStatus исход обработки одного пула в пакете.
type ItemStatus string

const (
	ItemClaimed ItemStatus = "claimed"
	ItemSkipped ItemStatus = "skipped"
	ItemFailed  ItemStatus = "failed"
)

// Причины пропуска.
const (
	ReasonBelowMinimum = "below_minimum"
	ReasonDryRun       = "dry_run"
)

type BatchItem struct {
	PoolAddress  string          `json:"poolAddress"`
	Status       ItemStatus      `json:"status"`
	Reason       string          `json:"reason,omitempty"`
	ClaimableSol decimal.Decimal `json:"claimableSol"`
	ClaimedSol   decimal.Decimal `json:"claimedSol"`
	Signature    string          `json:"signature,omitempty"`
	Provisional  bool            `json:"provisional,omitempty"`
}

type BatchSummary struct {
	Processed       int             `json:"processed"`
	Successful      int             `json:"successful"`
	Skipped         int             `json:"skipped"`
	Failed          int             `json:"failed"`
	TotalClaimedSol decimal.Decimal `json:"totalClaimedSol"`
}

type BatchResult struct {
	DryRun  bool         `json:"dryRun"`
	Results []BatchItem  `json:"results"`
	Summary BatchSummary `json:"summary"`
}

const batchPoolLimit = 500

// BatchClaim обходит пулы последовательно. Ошибка одного пула не прерывает пакет;
// после каждого успешного вывода выдерживается пауза ClaimDelay.
// Пустой список - все известные пулы. minClaimSol <= 0 - значение из конфигурации.
func (l *Ledger) BatchClaim(ctx context.Context, pools []string, minClaimSol float64, dryRun bool) (*BatchResult, error) {
	if minClaimSol <= 0 {
		minClaimSol = l.config.MinClaimSol
	}
	if len(pools) == 0 {
		all, err := l.allPools(ctx)
		if err != nil {
			return nil, err
		}
		pools = all
	}
	pools = dedupe(pools)

	log := applog.WithOperation(l.logger, "batch_claim").With(
		zap.Int("pools", len(pools)),
		zap.Bool("dry_run", dryRun))
	minimum := decimal.NewFromFloat(minClaimSol)

	res := &BatchResult{DryRun: dryRun, Results: make([]BatchItem, 0, len(pools))}
	res.Summary.TotalClaimedSol = decimal.Zero

	for _, address := range pools {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		item := BatchItem{PoolAddress: address, ClaimedSol: decimal.Zero}
		res.Summary.Processed++

		claimable, err := l.GetClaimable(ctx, address)
		switch {
		case err != nil:
			item.Status, item.Reason = ItemFailed, err.Error()
		case claimable.LessThan(minimum):
			item.ClaimableSol = claimable
			item.Status, item.Reason = ItemSkipped, ReasonBelowMinimum
		case dryRun:
			item.ClaimableSol = claimable
			item.Status, item.Reason = ItemSkipped, ReasonDryRun
		default:
			item.ClaimableSol = claimable
			claim, err := l.Claim(ctx, address)
			if err != nil {
				item.Status, item.Reason = ItemFailed, err.Error()
				break
			}
			item.Status = ItemClaimed
			item.ClaimedSol = claim.ClaimedSol
			item.Signature = claim.Signature
			item.Provisional = claim.Provisional
		}

		switch item.Status {
		case ItemClaimed:
			res.Summary.Successful++
			res.Summary.TotalClaimedSol = res.Summary.TotalClaimedSol.Add(item.ClaimedSol)
		case ItemSkipped:
			res.Summary.Skipped++
		case ItemFailed:
			res.Summary.Failed++
			log.Warn("Pool claim failed", zap.String("pool", address), zap.String("reason", item.Reason))
		}
		res.Results = append(res.Results, item)

		if item.Status == ItemClaimed && l.config.ClaimDelay > 0 {
			if err := l.sleep(ctx, l.config.ClaimDelay); err != nil {
				return res, err
			}
		}
	}

	log.Info("Batch claim finished",
		zap.Int("successful", res.Summary.Successful),
		zap.Int("skipped", res.Summary.Skipped),
		zap.Int("failed", res.Summary.Failed),
		zap.String("total_claimed_sol", res.Summary.TotalClaimedSol.String()))
	return res, nil
}

func (l *Ledger) allPools(ctx context.Context) ([]string, error) {
	var out []string
	for _, status := range []domain.PoolStatus{domain.StatusBonding, domain.StatusGraduated, domain.StatusMigrated} {
		pools, err := l.store.ListPoolsByStatus(ctx, status, batchPoolLimit)
		if err != nil {
			return nil, fmt.Errorf("list %s pools: %w", status, err)
		}
		for _, p := range pools {
			out = append(out, p.Address)
		}
	}
	return out, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
