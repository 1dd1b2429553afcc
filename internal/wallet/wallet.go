// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

var (
	ErrUnknownSigner = errors.New("signer not held by keyring")
	ErrNoDeployer    = errors.New("deployer key is not configured")
	ErrNoTreasury    = errors.New("treasury key is not configured")
)

// Wallet представляет кошелёк Solana.
type Wallet struct {
	privateKey solana.PrivateKey
	PublicKey  solana.PublicKey
}

// NewWallet создаёт новый кошелёк из base58-encoded приватного ключа.
func NewWallet(privateKeyBase58 string) (*Wallet, error) {
	privateKeyBytes, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(privateKeyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(privateKeyBytes))
	}
	return FromPrivateKey(solana.PrivateKey(privateKeyBytes)), nil
}

func FromPrivateKey(key solana.PrivateKey) *Wallet {
	return &Wallet{privateKey: key, PublicKey: key.PublicKey()}
}

// String возвращает строковое представление кошелька (его публичный ключ).
// Приватный ключ не форматируется ни при каком %v.
func (w *Wallet) String() string {
	return w.PublicKey.String()
}

// Keyring неизменяемый набор подписантов, загружается один раз при старте.
type Keyring struct {
	deployer *Wallet
	treasury *Wallet
	agents   map[solana.PublicKey]*Wallet
}

// KeyringConfig секреты в base58. Пустые значения допустимы.
type KeyringConfig struct {
	Deployer string
	Treasury string
	Agents   []string
}

// NewKeyring разбирает все ключи. Ошибка не содержит материала ключа.
func NewKeyring(cfg KeyringConfig) (*Keyring, error) {
	k := &Keyring{agents: make(map[solana.PublicKey]*Wallet)}

	var err error
	if cfg.Deployer != "" {
		if k.deployer, err = NewWallet(cfg.Deployer); err != nil {
			return nil, fmt.Errorf("deployer key: %w", err)
		}
	}
	if cfg.Treasury != "" {
		if k.treasury, err = NewWallet(cfg.Treasury); err != nil {
			return nil, fmt.Errorf("treasury key: %w", err)
		}
	}
	for i, secret := range cfg.Agents {
		w, err := NewWallet(secret)
		if err != nil {
			return nil, fmt.Errorf("agent key #%d: %w", i, err)
		}
		k.agents[w.PublicKey] = w
	}
	return k, nil
}

// NewKeyringFromKeys для тестов и генерации.
func NewKeyringFromKeys(deployer, treasury solana.PrivateKey, agents ...solana.PrivateKey) *Keyring {
	k := &Keyring{agents: make(map[solana.PublicKey]*Wallet)}
	if len(deployer) > 0 {
		k.deployer = FromPrivateKey(deployer)
	}
	if len(treasury) > 0 {
		k.treasury = FromPrivateKey(treasury)
	}
	for _, a := range agents {
		w := FromPrivateKey(a)
		k.agents[w.PublicKey] = w
	}
	return k
}

func (k *Keyring) Deployer() (solana.PublicKey, error) {
	if k.deployer == nil {
		return solana.PublicKey{}, ErrNoDeployer
	}
	return k.deployer.PublicKey, nil
}

func (k *Keyring) Treasury() (solana.PublicKey, error) {
	if k.treasury == nil {
		return solana.PublicKey{}, ErrNoTreasury
	}
	return k.treasury.PublicKey, nil
}

// IsCustodial reports whether the keyring can sign for the wallet.
func (k *Keyring) IsCustodial(wallet solana.PublicKey) bool {
	_, ok := k.lookup(wallet)
	return ok
}

// Signer ключ для подписи транзакции; ErrUnknownSigner, если ключа нет.
func (k *Keyring) Signer(key solana.PublicKey) (solana.PrivateKey, error) {
	w, ok := k.lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSigner, key)
	}
	return w.privateKey, nil
}

func (k *Keyring) lookup(key solana.PublicKey) (*Wallet, bool) {
	if k.deployer != nil && k.deployer.PublicKey.Equals(key) {
		return k.deployer, true
	}
	if k.treasury != nil && k.treasury.PublicKey.Equals(key) {
		return k.treasury, true
	}
	w, ok := k.agents[key]
	return w, ok
}

// GetATA возвращает адрес ассоциированного токен-аккаунта (ATA) для заданного токена (mint).
func GetATA(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	return ata, err
}
