package memory

import (
	"context"
	"math"
	"sort"

	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/rovshanmuradov/solana-launchpad/internal/storage"
	"github.com/shopspring/decimal"
)

func holdingKey(mint, wallet string) string { return mint + "/" + wallet }

func earnerKey(mint string, t domain.EarnerType) string { return mint + "/" + string(t) }

// ApplyTrade applies every effect of a confirmed trade under one lock.
// A repeated signature returns ErrDuplicateKey and changes nothing.
func (s *Store) ApplyTrade(_ context.Context, st *domain.TradeSettlement) error {
	if st == nil || st.Trade == nil || st.Trade.Signature == "" {
		return domain.Invalidf("settlement requires a signed trade")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.trades[st.Trade.Signature]; exists {
		return storage.ErrDuplicateKey
	}
	pool, ok := s.pools[st.Trade.PoolMint]
	if !ok {
		return storage.ErrNotFound
	}

	now := s.now()
	trade := *st.Trade
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = now
	}
	s.trades[trade.Signature] = &trade

	hk := holdingKey(trade.PoolMint, trade.Trader)
	h, ok := s.holdings[hk]
	if !ok {
		h = &domain.Holding{PoolMint: trade.PoolMint, Wallet: trade.Trader, Balance: decimal.Zero}
		s.holdings[hk] = h
	}
	h.Balance = floorZero(h.Balance.Add(st.HoldingDelta))
	h.UpdatedAt = now

	for _, fee := range st.Fees {
		e := s.earner(trade.PoolMint, fee.EarnerType)
		e.UnclaimedSol = e.UnclaimedSol.Add(fee.AmountSol)
		e.TotalEarnedSol = e.TotalEarnedSol.Add(fee.AmountSol)
		e.UpdatedAt = now
	}

	// резервы с цепи применяются, только если чтение не старее уже сохраненного
	switch d := st.ReservesDelta; {
	case d != nil:
		pool.VirtualSol = math.Max(0, pool.VirtualSol+d.VirtualSol)
		pool.VirtualToken = math.Max(0, pool.VirtualToken+d.VirtualToken)
		pool.RealSol = math.Max(0, pool.RealSol+d.RealSol)
	case st.ReservesSlot >= pool.ReservesSlot:
		pool.Reserves = st.Reserves
		pool.ReservesSlot = st.ReservesSlot
	}
	pool.Volume24hSol = pool.Volume24hSol.Add(st.VolumeSol)
	pool.TradeCount++
	pool.Version++
	pool.UpdatedAt = now
	return nil
}

func (s *Store) GetTradeBySignature(_ context.Context, signature string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trades[signature]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) ListTrades(_ context.Context, mint string, limit int) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Trade
	for _, t := range s.trades {
		if t.PoolMint == mint {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

func (s *Store) GetHolding(_ context.Context, mint, wallet string) (*domain.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.holdings[holdingKey(mint, wallet)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *h
	return &cp, nil
}

func (s *Store) GetFeeEarner(_ context.Context, mint string, earner domain.EarnerType) (*domain.FeeEarner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.earners[earnerKey(mint, earner)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// ApplyClaim records the claim and moves the earner balance from unclaimed to claimed.
func (s *Store) ApplyClaim(_ context.Context, claim *domain.FeeClaim) error {
	if claim == nil || claim.Signature == "" {
		return domain.Invalidf("claim signature is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.claims[claim.Signature]; exists {
		return storage.ErrDuplicateKey
	}

	now := s.now()
	cp := *claim
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	s.claims[cp.Signature] = &cp

	e := s.earner(cp.PoolMint, cp.EarnerType)
	e.UnclaimedSol = floorZero(e.UnclaimedSol.Sub(cp.ClaimedSol))
	e.TotalClaimedSol = e.TotalClaimedSol.Add(cp.ClaimedSol)
	e.UpdatedAt = now
	return nil
}

func (s *Store) GetClaimBySignature(_ context.Context, signature string) (*domain.FeeClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.claims[signature]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListProvisionalClaims(_ context.Context, limit int) ([]*domain.FeeClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.FeeClaim
	for _, c := range s.claims {
		if c.Provisional {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

// ResolveClaim replaces a provisional amount with the confirmed one.
func (s *Store) ResolveClaim(_ context.Context, signature string, claimedSol decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[signature]
	if !ok {
		return storage.ErrNotFound
	}
	if !c.Provisional {
		return nil
	}

	diff := claimedSol.Sub(c.ClaimedSol)
	e := s.earner(c.PoolMint, c.EarnerType)
	e.UnclaimedSol = floorZero(e.UnclaimedSol.Sub(diff))
	e.TotalClaimedSol = e.TotalClaimedSol.Add(diff)
	e.UpdatedAt = s.now()

	c.ClaimedSol = claimedSol
	c.Provisional = false
	return nil
}

// earner returns the accumulator row, creating it. Caller holds the lock.
func (s *Store) earner(mint string, t domain.EarnerType) *domain.FeeEarner {
	key := earnerKey(mint, t)
	e, ok := s.earners[key]
	if !ok {
		e = &domain.FeeEarner{
			PoolMint:        mint,
			EarnerType:      t,
			UnclaimedSol:    decimal.Zero,
			TotalEarnedSol:  decimal.Zero,
			TotalClaimedSol: decimal.Zero,
		}
		s.earners[key] = e
	}
	return e
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
