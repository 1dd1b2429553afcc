package storage

import (
	"errors"
	"fmt"

	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a unique key (signature, mint, public key) already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrConflict is returned when a conditional update's precondition no longer holds.
	ErrConflict = fmt.Errorf("%w: precondition failed", domain.ErrConcurrencyLost)
)
