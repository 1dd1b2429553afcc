// ==============================================
// File: internal/dex/dbc/program.go
// ==============================================

// Package dbc - привязка к программе bonding curve: PDA, инструкции, раскладка аккаунтов.
package dbc

import (
	"crypto/sha256"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// DefaultProgramID адрес программы bonding curve в mainnet.
var DefaultProgramID = solana.MustPublicKeyFromBase58("dbcij3LWUppWqq96dh6gJWwBifmcGfLSB5D4DuSMaqN")

var (
	seedPool           = []byte("pool")
	seedPoolAuthority  = []byte("pool_authority")
	seedTokenVault     = []byte("token_vault")
	seedSolVault       = []byte("sol_vault")
	seedAmmPool        = []byte("amm_pool")
	seedEventAuthority = []byte("__event_authority")
)

// Program адреса и билдеры одной развернутой программы.
type Program struct {
	ID solana.PublicKey
}

func New(programID solana.PublicKey) *Program {
	if programID.IsZero() {
		programID = DefaultProgramID
	}
	return &Program{ID: programID}
}

// PoolAddress PDA пула: ["pool", config, mint].
func (p *Program) PoolAddress(config, mint solana.PublicKey) (solana.PublicKey, error) {
	return p.derive(seedPool, config.Bytes(), mint.Bytes())
}

func (p *Program) PoolAuthority() (solana.PublicKey, error) {
	return p.derive(seedPoolAuthority)
}

// TokenVault порядок сидов как в программе: ["token_vault", mint, pool].
func (p *Program) TokenVault(pool, mint solana.PublicKey) (solana.PublicKey, error) {
	return p.derive(seedTokenVault, mint.Bytes(), pool.Bytes())
}

func (p *Program) SolVault(pool solana.PublicKey) (solana.PublicKey, error) {
	return p.derive(seedSolVault, pool.Bytes())
}

// MigratedPoolAddress адрес постоянного AMM пула после миграции.
func (p *Program) MigratedPoolAddress(pool solana.PublicKey) (solana.PublicKey, error) {
	return p.derive(seedAmmPool, pool.Bytes())
}

func (p *Program) EventAuthority() (solana.PublicKey, error) {
	return p.derive(seedEventAuthority)
}

func (p *Program) derive(seeds ...[]byte) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(seeds, p.ID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive %q: %w", seeds[0], err)
	}
	return addr, nil
}

func instructionDiscriminator(name string) [8]byte {
	return sighash("global:" + name)
}

func accountDiscriminator(name string) [8]byte {
	return sighash("account:" + name)
}

func sighash(preimage string) [8]byte {
	hash := sha256.Sum256([]byte(preimage))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}
