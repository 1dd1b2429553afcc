// internal/blockchain/solbc/transaction/validator.go
package transaction

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ValidateTransaction проверка перед отправкой: все подписи на месте, blockhash задан, есть инструкции.
func ValidateTransaction(tx *solana.Transaction) error {
	if tx == nil {
		return ErrInvalidInstruction
	}
	if err := ValidateSignatures(tx); err != nil {
		return err
	}
	if err := ValidateBlockhash(tx); err != nil {
		return err
	}
	return ValidateInstructions(tx.Message.Instructions)
}

func ValidateSignatures(tx *solana.Transaction) error {
	required := int(tx.Message.Header.NumRequiredSignatures)
	if required == 0 || len(tx.Signatures) != required {
		return ErrInvalidSignature
	}
	for i, sig := range tx.Signatures {
		if sig.IsZero() {
			return fmt.Errorf("%w: %s", ErrMissingSignature, tx.Message.AccountKeys[i])
		}
	}
	return nil
}

func ValidateBlockhash(tx *solana.Transaction) error {
	if tx.Message.RecentBlockhash.IsZero() {
		return ErrInvalidBlockhash
	}
	return nil
}

func ValidateInstructions(instructions []solana.CompiledInstruction) error {
	if len(instructions) == 0 {
		return ErrInvalidInstruction
	}
	return nil
}
