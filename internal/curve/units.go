package curve

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	SolDecimals   = 9
	TokenDecimals = 6

	LamportsPerSol    = 1_000_000_000
	BaseUnitsPerToken = 1_000_000
)

// Lamports переводит SOL в лампорты с округлением вниз.
func Lamports(sol float64) uint64 {
	if sol <= 0 {
		return 0
	}
	return uint64(math.Floor(sol * LamportsPerSol))
}

func FromLamports(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSol
}

// BaseUnits переводит целые токены в минимальные единицы.
func BaseUnits(tokens float64) uint64 {
	if tokens <= 0 {
		return 0
	}
	return uint64(math.Floor(tokens * BaseUnitsPerToken))
}

func FromBaseUnits(units uint64) float64 {
	return float64(units) / BaseUnitsPerToken
}

// LamportsToDecimal точное представление суммы для леджера комиссий.
func LamportsToDecimal(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -SolDecimals)
}

// SolDecimal округляет float SOL до лампорта.
func SolDecimal(sol float64) decimal.Decimal {
	return decimal.NewFromFloat(sol).Round(SolDecimals)
}

// TokenDecimal округляет float токены до минимальной единицы.
func TokenDecimal(tokens float64) decimal.Decimal {
	return decimal.NewFromFloat(tokens).Round(TokenDecimals)
}

// MinOut нижняя граница выхода с учетом проскальзывания.
func MinOut(expected float64, slippageBps uint16) float64 {
	if slippageBps >= bpsDenominator {
		return 0
	}
	return expected * (1 - float64(slippageBps)/bpsDenominator)
}

// FeeSplit делит комиссию между системой и создателем.
func FeeSplit(feeSol float64, creatorShareBps uint16) (system, creator decimal.Decimal) {
	total := SolDecimal(feeSol)
	creator = total.Mul(decimal.NewFromInt(int64(creatorShareBps))).
		Div(decimal.NewFromInt(bpsDenominator)).Round(SolDecimals)
	return total.Sub(creator), creator
}
