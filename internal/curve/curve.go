// =============================
// File: internal/curve/curve.go
// =============================
package curve

import (
	"fmt"
	"math"

	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
)

const bpsDenominator = 10_000.0

var (
	// ErrInvalidAmount вход <= 0 или слишком мал для ненулевого выхода.
	ErrInvalidAmount = fmt.Errorf("%w: amount must be positive", domain.ErrInvalidInput)
	ErrPoolExhausted = domain.ErrPoolExhausted
	ErrArithmetic    = domain.ErrArithmetic
)

// BuyQuote результат покупки токенов за SOL.
type BuyQuote struct {
	SolIn           float64 `json:"solIn"`
	FeeSol          float64 `json:"feeSol"`
	SolAfterFee     float64 `json:"solAfterFee"`
	TokensOut       float64 `json:"tokensOut"`
	NewVirtualSol   float64 `json:"newVirtualSol"`
	NewVirtualToken float64 `json:"newVirtualToken"`
	PriceImpactPct  float64 `json:"priceImpactPct"`
	NewPrice        float64 `json:"newPrice"`
}

// SellQuote результат продажи токенов за SOL.
type SellQuote struct {
	TokenIn         float64 `json:"tokenIn"`
	GrossSolOut     float64 `json:"grossSolOut"`
	FeeSol          float64 `json:"feeSol"`
	SolOut          float64 `json:"solOut"`
	NewVirtualSol   float64 `json:"newVirtualSol"`
	NewVirtualToken float64 `json:"newVirtualToken"`
	PriceImpactPct  float64 `json:"priceImpactPct"`
	NewPrice        float64 `json:"newPrice"`
}

// QuoteBuy считает покупку по формуле постоянного произведения.
// Комиссия берется с входящего SOL до обмена, k считается на сумме после комиссии.
func QuoteBuy(solIn, virtualSol, virtualToken float64, feeBps uint16) (BuyQuote, error) {
	if err := checkInputs(solIn, virtualSol, virtualToken, feeBps); err != nil {
		return BuyQuote{}, err
	}

	fee := solIn * float64(feeBps) / bpsDenominator
	solAfterFee := solIn - fee

	k := virtualSol * virtualToken
	newVirtualSol := virtualSol + solAfterFee
	newVirtualToken := k / newVirtualSol
	tokensOut := virtualToken - newVirtualToken

	if tokensOut >= virtualToken {
		return BuyQuote{}, fmt.Errorf("%w: buy of %.9f SOL drains %.6f of %.6f tokens",
			ErrPoolExhausted, solIn, tokensOut, virtualToken)
	}
	if tokensOut <= 0 {
		return BuyQuote{}, fmt.Errorf("%w: %.9f SOL buys zero tokens", ErrInvalidAmount, solIn)
	}

	expectedPrice := virtualSol / virtualToken
	actualPrice := solAfterFee / tokensOut

	q := BuyQuote{
		SolIn:           solIn,
		FeeSol:          fee,
		SolAfterFee:     solAfterFee,
		TokensOut:       tokensOut,
		NewVirtualSol:   newVirtualSol,
		NewVirtualToken: newVirtualToken,
		PriceImpactPct:  (actualPrice - expectedPrice) / expectedPrice * 100,
		NewPrice:        newVirtualSol / newVirtualToken,
	}
	if err := checkOutputs(q.FeeSol, q.SolAfterFee, q.TokensOut, q.NewVirtualSol,
		q.NewVirtualToken, q.PriceImpactPct, q.NewPrice); err != nil {
		return BuyQuote{}, err
	}
	return q, nil
}

// QuoteSell считает продажу: токены на входе, комиссия удерживается из SOL на выходе.
func QuoteSell(tokenIn, virtualSol, virtualToken float64, feeBps uint16) (SellQuote, error) {
	if err := checkInputs(tokenIn, virtualSol, virtualToken, feeBps); err != nil {
		return SellQuote{}, err
	}

	k := virtualSol * virtualToken
	newVirtualToken := virtualToken + tokenIn
	newVirtualSol := k / newVirtualToken
	grossSolOut := virtualSol - newVirtualSol

	if grossSolOut >= virtualSol {
		return SellQuote{}, fmt.Errorf("%w: sell of %.6f tokens drains %.9f of %.9f SOL",
			ErrPoolExhausted, tokenIn, grossSolOut, virtualSol)
	}
	if grossSolOut <= 0 {
		return SellQuote{}, fmt.Errorf("%w: %.6f tokens sell for zero SOL", ErrInvalidAmount, tokenIn)
	}

	fee := grossSolOut * float64(feeBps) / bpsDenominator
	expectedPrice := virtualSol / virtualToken
	actualPrice := grossSolOut / tokenIn

	q := SellQuote{
		TokenIn:         tokenIn,
		GrossSolOut:     grossSolOut,
		FeeSol:          fee,
		SolOut:          grossSolOut - fee,
		NewVirtualSol:   newVirtualSol,
		NewVirtualToken: newVirtualToken,
		PriceImpactPct:  (expectedPrice - actualPrice) / expectedPrice * 100,
		NewPrice:        newVirtualSol / newVirtualToken,
	}
	if err := checkOutputs(q.GrossSolOut, q.FeeSol, q.SolOut, q.NewVirtualSol,
		q.NewVirtualToken, q.PriceImpactPct, q.NewPrice); err != nil {
		return SellQuote{}, err
	}
	return q, nil
}

func checkInputs(amountIn, virtualSol, virtualToken float64, feeBps uint16) error {
	if math.IsNaN(amountIn) || math.IsInf(amountIn, 0) || amountIn <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidAmount, amountIn)
	}
	if feeBps > bpsDenominator {
		return domain.Invalidf("fee %d bps exceeds 100%%", feeBps)
	}
	if !finitePositive(virtualSol) || !finitePositive(virtualToken) {
		return fmt.Errorf("%w: non-physical reserves sol=%v token=%v", ErrArithmetic, virtualSol, virtualToken)
	}
	return nil
}

// checkOutputs: отрицательный или NaN результат - дефект, а не котировка.
func checkOutputs(values ...float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: output #%d is %v", ErrArithmetic, i, v)
		}
	}
	return nil
}

func finitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
