package vanity

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var ErrSealedKeyCorrupt = errors.New("sealed key cannot be opened")

// Sealer шифрует приватные ключи пар перед записью в хранилище.
type Sealer struct {
	key [32]byte
}

// NewSealer ключ выводится из секрета sha256, пустой секрет недопустим.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("vanity encryption key is empty")
	}
	return &Sealer{key: sha256.Sum256([]byte(secret))}, nil
}

// Seal nonce(24) || secretbox.
func (s *Sealer) Seal(key solana.PrivateKey) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], key, &nonce, &s.key), nil
}

func (s *Sealer) Open(sealed []byte) (solana.PrivateKey, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrSealedKeyCorrupt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok || len(plain) != 64 {
		return nil, ErrSealedKeyCorrupt
	}
	return solana.PrivateKey(plain), nil
}
