package transaction

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/rovshanmuradov/solana-launchpad/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transferFrom(from, mint solana.PublicKey) solana.Instruction {
	ix := system.NewTransferInstruction(1000, from, mint).Build()
	return ix
}

func TestBuild_PartialSignTracksOutstanding(t *testing.T) {
	user := solana.NewWallet().PrivateKey
	mint := solana.NewWallet().PrivateKey
	blockhash := solana.Hash{1, 2, 3}

	// плательщик - пользователь, mint подписывает сервер
	ix := system.NewCreateAccountInstruction(1_000_000, 82, solana.TokenProgramID, user.PublicKey(), mint.PublicKey()).Build()
	prepared, err := NewBuilder().
		SetPayer(user.PublicKey()).
		SetComputeBudget(200_000, 0.0001).
		AddInstruction(ix).
		AddSigner(mint).
		Build(blockhash)
	require.NoError(t, err)

	assert.False(t, prepared.Complete())
	assert.Equal(t, []string{user.PublicKey().String()}, prepared.OutstandingStrings())
	assert.Len(t, prepared.Tx.Signatures, 2)
	assert.True(t, prepared.Tx.Signatures[0].IsZero())
	assert.False(t, prepared.Tx.Signatures[1].IsZero())
	assert.ErrorIs(t, ValidateTransaction(prepared.Tx), ErrMissingSignature)

	// клиент декодирует, подписывает свою часть и возвращает
	encoded, err := prepared.Encode()
	require.NoError(t, err)
	clientTx, err := Decode(encoded)
	require.NoError(t, err)
	outstanding, err := Cosign(clientTx, user)
	require.NoError(t, err)
	assert.Empty(t, outstanding)

	merged, err := Merge(prepared.Tx, prepared.MessageHash, clientTx)
	require.NoError(t, err)
	require.NoError(t, ValidateTransaction(merged))
	require.NoError(t, merged.VerifySignatures())
}

func TestMerge_RejectsTamperedMessage(t *testing.T) {
	user := solana.NewWallet().PrivateKey
	other := solana.NewWallet().PublicKey()

	prepared, err := NewBuilder().
		SetPayer(user.PublicKey()).
		AddInstruction(transferFrom(user.PublicKey(), other)).
		Build(solana.Hash{9})
	require.NoError(t, err)

	tampered, err := NewBuilder().
		AddInstruction(system.NewTransferInstruction(999_999, user.PublicKey(), other).Build()).
		AddSigner(user).
		Build(solana.Hash{9})
	require.NoError(t, err)

	_, err = Merge(prepared.Tx, prepared.MessageHash, tampered.Tx)
	assert.ErrorIs(t, err, ErrMessageTampered)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestMerge_RejectsUnsigned(t *testing.T) {
	user := solana.NewWallet().PrivateKey
	prepared, err := NewBuilder().
		SetPayer(user.PublicKey()).
		AddInstruction(transferFrom(user.PublicKey(), solana.NewWallet().PublicKey())).
		Build(solana.Hash{4})
	require.NoError(t, err)

	_, err = Merge(prepared.Tx, prepared.MessageHash, prepared.Tx)
	assert.ErrorIs(t, err, ErrMissingSignature)
}

func TestBuild_FullySignedWhenAllKeysLocal(t *testing.T) {
	deployer := solana.NewWallet().PrivateKey
	prepared, err := NewBuilder().
		AddInstruction(transferFrom(deployer.PublicKey(), solana.NewWallet().PublicKey())).
		AddSigner(deployer).
		Build(solana.Hash{7})
	require.NoError(t, err)

	assert.True(t, prepared.Complete())
	require.NoError(t, ValidateTransaction(prepared.Tx))
	assert.Len(t, prepared.MessageHash, 64)
}

func TestBuild_Rejects(t *testing.T) {
	_, err := NewBuilder().Build(solana.Hash{1})
	assert.ErrorIs(t, err, ErrInvalidInstruction)

	key := solana.NewWallet().PrivateKey
	_, err = NewBuilder().
		AddInstruction(transferFrom(key.PublicKey(), key.PublicKey())).
		AddSigner(key).
		Build(solana.Hash{})
	assert.ErrorIs(t, err, ErrInvalidBlockhash)
}

func TestReached(t *testing.T) {
	assert.True(t, Reached("finalized", "confirmed"))
	assert.True(t, Reached("confirmed", "confirmed"))
	assert.False(t, Reached("processed", "confirmed"))
	assert.False(t, Reached("", "processed"))
}
