package domain

import "fmt"

// PoolStatus стадия жизненного цикла пула.
type PoolStatus string

const (
	StatusBonding   PoolStatus = "bonding"
	StatusGraduated PoolStatus = "graduated"
	StatusMigrated  PoolStatus = "migrated"
)

var nextStatus = map[PoolStatus]PoolStatus{
	StatusBonding:   StatusGraduated,
	StatusGraduated: StatusMigrated,
}

// Valid reports whether s is a known status.
func (s PoolStatus) Valid() bool {
	switch s {
	case StatusBonding, StatusGraduated, StatusMigrated:
		return true
	}
	return false
}

// Tradable only while on the bonding curve.
func (s PoolStatus) Tradable() bool {
	return s == StatusBonding
}

// ValidateTransition is the single place that decides which status moves are legal:
// bonding -> graduated -> migrated, one step at a time, never backwards.
func ValidateTransition(from, to PoolStatus) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: unknown pool status %q -> %q", ErrInvalidInput, from, to)
	}
	if nextStatus[from] != to {
		return fmt.Errorf("%w: illegal pool status transition %s -> %s", ErrInvalidInput, from, to)
	}
	return nil
}
