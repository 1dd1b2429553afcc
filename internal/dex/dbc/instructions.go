// ==============================================
// File: internal/dex/dbc/instructions.go
// ==============================================
package dbc

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// InstructionKind имя инструкции программы.
type InstructionKind string

const (
	KindCreateConfig   InstructionKind = "create_config"
	KindInitializePool InstructionKind = "initialize_virtual_pool"
	KindSwap           InstructionKind = "swap"
	KindClaimFee       InstructionKind = "claim_trading_fee"
	KindMigrate        InstructionKind = "migrate"
)

var discriminators = map[[8]byte]InstructionKind{}

func init() {
	for _, kind := range []InstructionKind{KindCreateConfig, KindInitializePool, KindSwap, KindClaimFee, KindMigrate} {
		discriminators[instructionDiscriminator(string(kind))] = kind
	}
}

// Направление свапа в аргументах инструкции.
const (
	DirectionBuy  uint8 = 0
	DirectionSell uint8 = 1
)

type CreateConfigArgs struct {
	TradingFeeBps       uint16
	CreatorFeeShareBps  uint16
	InitialVirtualSol   uint64
	InitialVirtualToken uint64
	TotalSupply         uint64
	MigrationThreshold  uint64
}

type InitializePoolArgs struct {
	Name   string
	Symbol string
	URI    string
}

// SwapArgs AmountIn в лампортах (buy) или минимальных единицах (sell).
type SwapArgs struct {
	AmountIn         uint64
	MinimumAmountOut uint64
	Direction        uint8
}

type ClaimFeeArgs struct {
	MaxAmount uint64
}

type MigrateArgs struct{}

// CreateConfig инициализирует аккаунт конфигурации; config подписывает.
func (p *Program) CreateConfig(config, feeClaimer, payer solana.PublicKey, args CreateConfigArgs) (solana.Instruction, error) {
	eventAuthority, err := p.EventAuthority()
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		solana.Meta(config).WRITE().SIGNER(),
		solana.Meta(feeClaimer),
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(eventAuthority),
		solana.Meta(p.ID),
	}
	return p.instruction(KindCreateConfig, accounts, args)
}

// InitializePoolAccounts mint подписывает, создание mint выполняет программа.
type InitializePoolAccounts struct {
	Config  solana.PublicKey
	Creator solana.PublicKey
	Mint    solana.PublicKey
	Payer   solana.PublicKey
}

func (p *Program) InitializePool(a InitializePoolAccounts, args InitializePoolArgs) (solana.Instruction, solana.PublicKey, error) {
	pool, err := p.PoolAddress(a.Config, a.Mint)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	authority, tokenVault, solVault, eventAuthority, err := p.poolAccounts(pool, a.Mint)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}

	accounts := []*solana.AccountMeta{
		solana.Meta(a.Config),
		solana.Meta(authority),
		solana.Meta(a.Creator),
		solana.Meta(a.Mint).WRITE().SIGNER(),
		solana.Meta(pool).WRITE(),
		solana.Meta(tokenVault).WRITE(),
		solana.Meta(solVault).WRITE(),
		solana.Meta(a.Payer).WRITE().SIGNER(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(eventAuthority),
		solana.Meta(p.ID),
	}
	ix, err := p.instruction(KindInitializePool, accounts, args)
	return ix, pool, err
}

// SwapAccounts аккаунты сделки; токен-аккаунт трейдера - ATA, создается программой при необходимости.
type SwapAccounts struct {
	Config solana.PublicKey
	Pool   solana.PublicKey
	Mint   solana.PublicKey
	Trader solana.PublicKey
}

func (p *Program) Swap(a SwapAccounts, args SwapArgs) (solana.Instruction, error) {
	authority, tokenVault, solVault, eventAuthority, err := p.poolAccounts(a.Pool, a.Mint)
	if err != nil {
		return nil, err
	}
	traderToken, _, err := solana.FindAssociatedTokenAddress(a.Trader, a.Mint)
	if err != nil {
		return nil, fmt.Errorf("trader token account: %w", err)
	}

	accounts := []*solana.AccountMeta{
		solana.Meta(authority),
		solana.Meta(a.Config),
		solana.Meta(a.Pool).WRITE(),
		solana.Meta(traderToken).WRITE(),
		solana.Meta(tokenVault).WRITE(),
		solana.Meta(solVault).WRITE(),
		solana.Meta(a.Mint),
		solana.Meta(a.Trader).WRITE().SIGNER(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SPLAssociatedTokenAccountProgramID),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(eventAuthority),
		solana.Meta(p.ID),
	}
	return p.instruction(KindSwap, accounts, args)
}

// ClaimPartnerFee выводит системную комиссию пула на receiver; feeClaimer подписывает.
func (p *Program) ClaimPartnerFee(config, pool, mint, feeClaimer, receiver solana.PublicKey, args ClaimFeeArgs) (solana.Instruction, error) {
	authority, _, solVault, eventAuthority, err := p.poolAccounts(pool, mint)
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		solana.Meta(authority),
		solana.Meta(config),
		solana.Meta(pool).WRITE(),
		solana.Meta(solVault).WRITE(),
		solana.Meta(feeClaimer).SIGNER(),
		solana.Meta(receiver).WRITE(),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(eventAuthority),
		solana.Meta(p.ID),
	}
	return p.instruction(KindClaimFee, accounts, args)
}

// Migrate переводит ликвидность пула в постоянный AMM пул. Возвращает его адрес.
func (p *Program) Migrate(config, pool, mint, payer solana.PublicKey) (solana.Instruction, solana.PublicKey, error) {
	migrated, err := p.MigratedPoolAddress(pool)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	authority, tokenVault, solVault, eventAuthority, err := p.poolAccounts(pool, mint)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	accounts := []*solana.AccountMeta{
		solana.Meta(authority),
		solana.Meta(config),
		solana.Meta(pool).WRITE(),
		solana.Meta(migrated).WRITE(),
		solana.Meta(tokenVault).WRITE(),
		solana.Meta(solVault).WRITE(),
		solana.Meta(mint),
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(eventAuthority),
		solana.Meta(p.ID),
	}
	ix, err := p.instruction(KindMigrate, accounts, MigrateArgs{})
	return ix, migrated, err
}

func (p *Program) poolAccounts(pool, mint solana.PublicKey) (authority, tokenVault, solVault, eventAuthority solana.PublicKey, err error) {
	if authority, err = p.PoolAuthority(); err != nil {
		return
	}
	if tokenVault, err = p.TokenVault(pool, mint); err != nil {
		return
	}
	if solVault, err = p.SolVault(pool); err != nil {
		return
	}
	eventAuthority, err = p.EventAuthority()
	return
}

func (p *Program) instruction(kind InstructionKind, accounts []*solana.AccountMeta, args interface{}) (solana.Instruction, error) {
	discriminator := instructionDiscriminator(string(kind))
	buf := new(bytes.Buffer)
	buf.Write(discriminator[:])
	if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
		return nil, fmt.Errorf("encode %s args: %w", kind, err)
	}
	return solana.NewInstruction(p.ID, accounts, buf.Bytes()), nil
}

// ParseInstruction определяет инструкцию по дискриминатору и декодирует аргументы.
func ParseInstruction(data []byte) (InstructionKind, interface{}, error) {
	if len(data) < 8 {
		return "", nil, fmt.Errorf("instruction data too short: %d bytes", len(data))
	}
	var disc [8]byte
	copy(disc[:], data[:8])
	kind, ok := discriminators[disc]
	if !ok {
		return "", nil, fmt.Errorf("unknown instruction discriminator %x", disc)
	}

	var args interface{}
	switch kind {
	case KindCreateConfig:
		args = &CreateConfigArgs{}
	case KindInitializePool:
		args = &InitializePoolArgs{}
	case KindSwap:
		args = &SwapArgs{}
	case KindClaimFee:
		args = &ClaimFeeArgs{}
	case KindMigrate:
		return kind, &MigrateArgs{}, nil
	}
	if err := bin.NewBorshDecoder(data[8:]).Decode(args); err != nil {
		return "", nil, fmt.Errorf("decode %s args: %w", kind, err)
	}
	return kind, args, nil
}
