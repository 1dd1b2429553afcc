// internal/blockchain/solbc/transaction/builder.go
package transaction

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
)

const microLamportsPerLamport = 1_000_000

// Builder собирает транзакцию и подписывает ее теми ключами, что есть на сервере.
// Недостающие подписи остаются нулевыми и перечисляются в Prepared.Outstanding.
type Builder struct {
	instructions   []solana.Instruction
	signers        []solana.PrivateKey
	payer          solana.PublicKey
	units          uint32
	priorityFeeSol float64
}

func NewBuilder() *Builder {
	return &Builder{}
}

// SetComputeBudget лимит compute units и приоритетная комиссия на всю транзакцию в SOL.
func (b *Builder) SetComputeBudget(units uint32, priorityFeeSol float64) *Builder {
	b.units = units
	b.priorityFeeSol = priorityFeeSol
	return b
}

func (b *Builder) AddInstruction(instructions ...solana.Instruction) *Builder {
	b.instructions = append(b.instructions, instructions...)
	return b
}

func (b *Builder) AddSigner(signer solana.PrivateKey) *Builder {
	b.signers = append(b.signers, signer)
	return b
}

// SetPayer плательщик комиссии; по умолчанию - первый подписант.
func (b *Builder) SetPayer(payer solana.PublicKey) *Builder {
	b.payer = payer
	return b
}

// Prepared результат фазы 1.
type Prepared struct {
	Tx          *solana.Transaction
	MessageHash string
	Outstanding []solana.PublicKey
}

// Complete - все обязательные подписи на месте.
func (p *Prepared) Complete() bool {
	return len(p.Outstanding) == 0
}

// Encode base64 с частичными подписями (requireAllSignatures=false).
func (p *Prepared) Encode() (string, error) {
	return Encode(p.Tx)
}

// OutstandingStrings base58 ключи недостающих подписантов.
func (p *Prepared) OutstandingStrings() []string {
	out := make([]string, 0, len(p.Outstanding))
	for _, key := range p.Outstanding {
		out = append(out, key.String())
	}
	return out
}

// Build фаза 1: компилирует сообщение и ставит доступные подписи.
func (b *Builder) Build(blockhash solana.Hash) (*Prepared, error) {
	if len(b.instructions) == 0 {
		return nil, ErrInvalidInstruction
	}
	if blockhash.IsZero() {
		return nil, ErrInvalidBlockhash
	}
	payer := b.payer
	if payer.IsZero() {
		if len(b.signers) == 0 {
			return nil, errors.New("no payer and no signers provided")
		}
		payer = b.signers[0].PublicKey()
	}

	instructions := make([]solana.Instruction, 0, len(b.instructions)+2)
	instructions = append(instructions, b.budgetInstructions()...)
	instructions = append(instructions, b.instructions...)

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	outstanding, err := partialSign(tx, b.signers)
	if err != nil {
		return nil, err
	}
	hash, err := MessageHash(tx)
	if err != nil {
		return nil, err
	}
	return &Prepared{Tx: tx, MessageHash: hash, Outstanding: outstanding}, nil
}

func (b *Builder) budgetInstructions() []solana.Instruction {
	if b.units == 0 {
		return nil
	}
	out := []solana.Instruction{computebudget.NewSetComputeUnitLimitInstruction(b.units).Build()}
	if b.priorityFeeSol > 0 {
		lamports := b.priorityFeeSol * float64(solana.LAMPORTS_PER_SOL)
		price := uint64(lamports * microLamportsPerLamport / float64(b.units))
		if price > 0 {
			out = append(out, computebudget.NewSetComputeUnitPriceInstruction(price).Build())
		}
	}
	return out
}

// partialSign подписывает слоты обязательных подписантов, чьи ключи переданы.
func partialSign(tx *solana.Transaction, signers []solana.PrivateKey) ([]solana.PublicKey, error) {
	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) != required {
		existing := tx.Signatures
		tx.Signatures = make([]solana.Signature, required)
		copy(tx.Signatures, existing)
	}

	var outstanding []solana.PublicKey
	for i := 0; i < required; i++ {
		key := tx.Message.AccountKeys[i]
		signer := findSigner(signers, key)
		if signer == nil {
			if tx.Signatures[i].IsZero() {
				outstanding = append(outstanding, key)
			}
			continue
		}
		sig, err := signer.Sign(message)
		if err != nil {
			return nil, fmt.Errorf("failed to sign for %s: %w", key, err)
		}
		tx.Signatures[i] = sig
	}
	return outstanding, nil
}

func findSigner(signers []solana.PrivateKey, key solana.PublicKey) *solana.PrivateKey {
	for _, signer := range signers {
		if signer.PublicKey().Equals(key) {
			privateCopy := signer
			return &privateCopy
		}
	}
	return nil
}

// Cosign добавляет серверные подписи к уже собранной транзакции.
func Cosign(tx *solana.Transaction, signers ...solana.PrivateKey) ([]solana.PublicKey, error) {
	return partialSign(tx, signers)
}

// Merge фаза 2: принимает транзакцию, подписанную клиентом, и сверяет ее с подготовленной.
// Сообщение должно совпадать байт в байт; серверные подписи сохраняются.
func Merge(prepared *solana.Transaction, expectedHash string, signed *solana.Transaction) (*solana.Transaction, error) {
	hash, err := MessageHash(signed)
	if err != nil {
		return nil, err
	}
	if hash != expectedHash {
		return nil, ErrMessageTampered
	}

	required := int(signed.Message.Header.NumRequiredSignatures)
	merged := *signed
	merged.Signatures = make([]solana.Signature, required)
	for i := 0; i < required; i++ {
		if i < len(signed.Signatures) && !signed.Signatures[i].IsZero() {
			merged.Signatures[i] = signed.Signatures[i]
		} else if prepared != nil && i < len(prepared.Signatures) {
			merged.Signatures[i] = prepared.Signatures[i]
		}
		if merged.Signatures[i].IsZero() {
			return nil, fmt.Errorf("%w: %s", ErrMissingSignature, merged.Message.AccountKeys[i])
		}
	}
	if err := merged.VerifySignatures(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return &merged, nil
}

// MessageHash sha256 сериализованного сообщения, hex.
func MessageHash(tx *solana.Transaction) (string, error) {
	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}
	sum := sha256.Sum256(message)
	return hex.EncodeToString(sum[:]), nil
}

func Encode(tx *solana.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decode разбирает base64 транзакцию от клиента.
func Decode(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: transaction is not base64: %v", ErrInvalidInstruction, err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decode transaction: %v", ErrInvalidInstruction, err)
	}
	return tx, nil
}
