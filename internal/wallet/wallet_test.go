package wallet

import (
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyring(t *testing.T) {
	deployer := solana.NewWallet().PrivateKey
	agent := solana.NewWallet().PrivateKey

	k, err := NewKeyring(KeyringConfig{
		Deployer: base58.Encode(deployer),
		Agents:   []string{agent.String()},
	})
	require.NoError(t, err)

	pub, err := k.Deployer()
	require.NoError(t, err)
	assert.Equal(t, deployer.PublicKey(), pub)

	_, err = k.Treasury()
	assert.ErrorIs(t, err, ErrNoTreasury)

	assert.True(t, k.IsCustodial(agent.PublicKey()))
	assert.False(t, k.IsCustodial(solana.NewWallet().PublicKey()))

	key, err := k.Signer(agent.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, agent, key)

	_, err = k.Signer(solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, ErrUnknownSigner)
}

func TestNewKeyring_ErrorDoesNotLeakSecret(t *testing.T) {
	secret := base58.Encode([]byte("short-secret-material"))
	_, err := NewKeyring(KeyringConfig{Treasury: secret})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), secret)
}

func TestWallet_FormatHidesPrivateKey(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	w := FromPrivateKey(key)
	out := fmt.Sprintf("%v %s", w, w)
	assert.NotContains(t, out, key.String())
	assert.Contains(t, out, key.PublicKey().String())
}
