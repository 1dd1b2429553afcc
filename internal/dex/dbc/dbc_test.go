package dbc

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualPoolLayout(t *testing.T) {
	in := &VirtualPool{
		Config:       solana.NewWallet().PublicKey(),
		Creator:      solana.NewWallet().PublicKey(),
		Mint:         solana.NewWallet().PublicKey(),
		VirtualSol:   30_000_000_000,
		VirtualToken: 1_073_000_000_000_000,
		RealSol:      1_500_000_000,
		PartnerFee:   15_000_000,
		IsMigrated:   1,
	}
	data, err := EncodeVirtualPool(in)
	require.NoError(t, err)
	// 8 дискриминатор + 3 ключа + 6 u64 + u8 + ключ
	assert.Len(t, data, 8+32*3+8*6+1+32)

	out, err := DecodeVirtualPool(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.True(t, out.Migrated())
	assert.Equal(t, "0.015", out.ClaimablePartnerFee().String())

	reserves := out.Reserves()
	assert.Equal(t, 30.0, reserves.VirtualSol)
	assert.Equal(t, 1.5, reserves.RealSol)
	assert.Equal(t, 1_073_000_000.0, reserves.VirtualToken)
}

func TestDecodeVirtualPool_RejectsOtherAccounts(t *testing.T) {
	data, err := EncodePoolConfig(&PoolConfig{TradingFeeBps: 200})
	require.NoError(t, err)

	_, err = DecodeVirtualPool(data)
	assert.ErrorIs(t, err, ErrWrongAccount)

	_, err = DecodeVirtualPool([]byte{1, 2})
	assert.Error(t, err)
}

func TestPoolAddressIsDeterministic(t *testing.T) {
	p := New(solana.PublicKey{})
	assert.Equal(t, DefaultProgramID, p.ID)

	config := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	a, err := p.PoolAddress(config, mint)
	require.NoError(t, err)
	b, err := p.PoolAddress(config, mint)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := p.PoolAddress(config, solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestSwapInstructionRoundTrip(t *testing.T) {
	p := New(DefaultProgramID)
	trader := solana.NewWallet().PublicKey()
	accounts := SwapAccounts{
		Config: solana.NewWallet().PublicKey(),
		Pool:   solana.NewWallet().PublicKey(),
		Mint:   solana.NewWallet().PublicKey(),
		Trader: trader,
	}
	ix, err := p.Swap(accounts, SwapArgs{AmountIn: 1_000_000_000, MinimumAmountOut: 42, Direction: DirectionBuy})
	require.NoError(t, err)
	assert.Equal(t, p.ID, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	kind, args, err := ParseInstruction(data)
	require.NoError(t, err)
	assert.Equal(t, KindSwap, kind)
	assert.Equal(t, &SwapArgs{AmountIn: 1_000_000_000, MinimumAmountOut: 42, Direction: DirectionBuy}, args)

	var signers []solana.PublicKey
	for _, meta := range ix.Accounts() {
		if meta.IsSigner {
			signers = append(signers, meta.PublicKey)
		}
	}
	assert.Equal(t, []solana.PublicKey{trader}, signers)
}

func TestMigrateInstruction(t *testing.T) {
	p := New(DefaultProgramID)
	pool := solana.NewWallet().PublicKey()
	ix, migrated, err := p.Migrate(solana.NewWallet().PublicKey(), pool, solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	require.NoError(t, err)

	expected, err := p.MigratedPoolAddress(pool)
	require.NoError(t, err)
	assert.Equal(t, expected, migrated)

	data, err := ix.Data()
	require.NoError(t, err)
	kind, _, err := ParseInstruction(data)
	require.NoError(t, err)
	assert.Equal(t, KindMigrate, kind)
}

func TestParseInstruction_Unknown(t *testing.T) {
	_, _, err := ParseInstruction([]byte{0, 0, 0, 0, 0, 0, 0, 0})
	assert.Error(t, err)
}
