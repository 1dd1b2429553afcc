package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to PoolStatus
		ok       bool
	}{
		{StatusBonding, StatusGraduated, true},
		{StatusGraduated, StatusMigrated, true},
		{StatusBonding, StatusMigrated, false},
		{StatusGraduated, StatusBonding, false},
		{StatusMigrated, StatusGraduated, false},
		{StatusMigrated, StatusMigrated, false},
		{StatusBonding, "closed", false},
	}

	for _, tt := range tests {
		err := ValidateTransition(tt.from, tt.to)
		if tt.ok {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
			continue
		}
		assert.True(t, errors.Is(err, ErrInvalidInput), "%s -> %s", tt.from, tt.to)
	}
}

func TestPoolDerivedValues(t *testing.T) {
	p := &Pool{
		Reserves:               Reserves{VirtualSol: 30, VirtualToken: 1e9, RealSol: 100},
		TotalSupply:            1e9,
		GraduationThresholdSol: 85,
	}

	assert.InDelta(t, 3e-8, p.Price(), 1e-15)
	assert.InDelta(t, 30, p.MarketCapSol(), 1e-9)
	assert.Equal(t, 100.0, p.BondingProgressPct())
	assert.True(t, p.ReachedThreshold())

	p.RealSol = 42.5
	assert.InDelta(t, 50, p.BondingProgressPct(), 1e-9)
	assert.False(t, p.ReachedThreshold())
}

func TestTradeError_Unwrap(t *testing.T) {
	err := &TradeError{Op: "execute trade", Reason: "slippage", Err: ErrOnChainFailure}
	assert.True(t, errors.Is(err, ErrOnChainFailure))
	assert.Contains(t, err.Error(), "slippage")
}
