// ==============================================
// File: internal/dex/dbc/accounts.go
// ==============================================
package dbc

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/solana-launchpad/internal/curve"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	virtualPoolDiscriminator = accountDiscriminator("VirtualPool")
	poolConfigDiscriminator  = accountDiscriminator("PoolConfig")

	ErrWrongAccount = errors.New("account discriminator mismatch")
)

// PoolConfig параметры кривой, общие для пулов одного запуска.
type PoolConfig struct {
	FeeClaimer          solana.PublicKey
	TradingFeeBps       uint16
	CreatorFeeShareBps  uint16
	InitialVirtualSol   uint64
	InitialVirtualToken uint64
	TotalSupply         uint64
	MigrationThreshold  uint64
}

// VirtualPool состояние пула на кривой. Суммы в лампортах и минимальных единицах токена.
// RealSol включает комиссии, которые лежат в хранилище до вывода.
type VirtualPool struct {
	Config       solana.PublicKey
	Creator      solana.PublicKey
	Mint         solana.PublicKey
	VirtualSol   uint64
	VirtualToken uint64
	RealSol      uint64
	RealToken    uint64
	PartnerFee   uint64
	CreatorFee   uint64
	IsMigrated   uint8
	MigratedPool solana.PublicKey
}

// Reserves резервы пула в единицах домена.
func (v *VirtualPool) Reserves() domain.Reserves {
	return domain.Reserves{
		VirtualSol:   curve.FromLamports(v.VirtualSol),
		VirtualToken: curve.FromBaseUnits(v.VirtualToken),
		RealSol:      curve.FromLamports(v.RealSol),
	}
}

// ClaimablePartnerFee невыведенная системная комиссия.
func (v *VirtualPool) ClaimablePartnerFee() decimal.Decimal {
	return curve.LamportsToDecimal(v.PartnerFee)
}

func (v *VirtualPool) Migrated() bool {
	return v.IsMigrated != 0
}

func DecodeVirtualPool(data []byte) (*VirtualPool, error) {
	var out VirtualPool
	if err := decodeAccount(data, virtualPoolDiscriminator, &out); err != nil {
		return nil, fmt.Errorf("decode virtual pool: %w", err)
	}
	return &out, nil
}

func EncodeVirtualPool(v *VirtualPool) ([]byte, error) {
	return encodeAccount(virtualPoolDiscriminator, v)
}

func DecodePoolConfig(data []byte) (*PoolConfig, error) {
	var out PoolConfig
	if err := decodeAccount(data, poolConfigDiscriminator, &out); err != nil {
		return nil, fmt.Errorf("decode pool config: %w", err)
	}
	return &out, nil
}

func EncodePoolConfig(c *PoolConfig) ([]byte, error) {
	return encodeAccount(poolConfigDiscriminator, c)
}

func decodeAccount(data []byte, discriminator [8]byte, dst interface{}) error {
	if len(data) < 8 {
		return fmt.Errorf("account data too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], discriminator[:]) {
		return ErrWrongAccount
	}
	return bin.NewBorshDecoder(data[8:]).Decode(dst)
}

func encodeAccount(discriminator [8]byte, v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(discriminator[:])
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
